// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// 資格情報ストアのバックエンド種別
const (
	CredentialBackendFile     = "file"
	CredentialBackendPostgres = "postgres"
	CredentialBackendMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend API
	APIBaseURL     string
	RequestTimeout time.Duration

	// Credential store
	CredentialBackend string
	CredentialFile    string
	DatabaseURL       string

	// Session
	LogoutOnUnauthorized bool
	LoginLandingRoute    string
	RoutesFile           string

	// Rate Limit
	LoginRateLimit int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool

	// CORS（空の場合は無効）
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	cfg.CredentialBackend = strings.ToLower(getEnvString("CREDENTIAL_BACKEND", CredentialBackendFile))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.CredentialBackend == CredentialBackendPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := ValidateAPIBaseURL(cfg.APIBaseURL); err != nil {
		return nil, err
	}

	switch cfg.CredentialBackend {
	case CredentialBackendFile, CredentialBackendPostgres, CredentialBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported CREDENTIAL_BACKEND: %q", cfg.CredentialBackend)
	}

	// Optional fields with defaults
	cfg.BaseURL = strings.TrimRight(getEnvString("BASE_URL", "http://localhost:4200"), "/")
	cfg.ServerPort = getEnvString("SERVER_PORT", "4200")
	cfg.CredentialFile = getEnvString("CREDENTIAL_FILE", DefaultCredentialFile())
	cfg.LogoutOnUnauthorized = getEnvBool("LOGOUT_ON_UNAUTHORIZED", false)
	cfg.LoginLandingRoute = getEnvString("LOGIN_LANDING_ROUTE", "/app")
	cfg.RoutesFile = getEnvString("ROUTES_FILE", "")
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
	cfg.LoginRateLimit = getEnvInt("LOGIN_RATE_LIMIT", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	if !strings.HasPrefix(cfg.LoginLandingRoute, "/") {
		return nil, fmt.Errorf("LOGIN_LANDING_ROUTE must start with '/': %q", cfg.LoginLandingRoute)
	}

	return cfg, nil
}

// ValidateAPIBaseURL は信頼済みAPIのベースURLを検証する。
// http/httpsの絶対URLで、クエリとフラグメントを持たないこと。
func ValidateAPIBaseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API_BASE_URL scheme must be http or https: %q", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("API_BASE_URL must have a host: %q", rawURL)
	}
	if u.User != nil {
		return fmt.Errorf("API_BASE_URL must not contain credentials")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("API_BASE_URL must not contain query or fragment: %q", rawURL)
	}
	return nil
}

// DefaultCredentialFile は資格情報ファイルの既定パスを返す。
// $XDG_CONFIG_HOME（未設定時は~/.config）配下のbackoffice/credentials.json。
func DefaultCredentialFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "backoffice", "credentials.json")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
