// Package apiclient はバックオフィスREST APIの認証エンドポイントを呼び出すクライアントを提供する。
// 失敗はこの境界で一度だけmodel.APIErrorに正規化される。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/backoffice/internal/apierror"
	"github.com/hitoshi/backoffice/internal/model"
)

const (
	loginPath = "/api/auth/login"
	mePath    = "/api/auth/me"

	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20

	userAgent = "backoffice-console/1.0"
)

// UpstreamRecorder はバックエンド応答の記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type UpstreamRecorder interface {
	RecordUpstreamStatus(statusCode int)
	RecordUpstreamLatency(duration time.Duration)
}

// Credentials はログインリクエストのボディ。
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Client はバックエンドAPIのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	recorder   UpstreamRecorder
	logger     *slog.Logger
}

// NewHTTPClient はCookieJar付きのhttp.Clientを生成する。
// /api/auth/me はCookieによるセッションも併用するため、Jarを共有する。
func NewHTTPClient(transport http.RoundTripper, timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   timeout,
	}, nil
}

// New はClientを生成する。
func New(httpClient *http.Client, baseURL string, recorder UpstreamRecorder, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recorder:   recorder,
		logger:     logger,
	}
}

// Login は資格情報を送信し、ユーザープロファイルを返す。
// 失敗時のエラーはログイン用のフォールバックメッセージで正規化された*model.APIError。
func (c *Client) Login(ctx context.Context, username, password string) (*model.UserProfile, error) {
	body, err := json.Marshal(Credentials{Username: username, Password: password})
	if err != nil {
		return nil, apierror.NormalizeWithFallback(err, model.LoginErrorMessage)
	}
	return c.profile(ctx, http.MethodPost, loginPath, body, model.LoginErrorMessage)
}

// Me は現在の資格情報（Cookieまたはベアラートークン）に対応するプロファイルを返す。
func (c *Client) Me(ctx context.Context) (*model.UserProfile, error) {
	return c.profile(ctx, http.MethodGet, mePath, nil, model.DefaultErrorMessage)
}

// profile はリクエストを実行し、レスポンスをUserProfileとしてデコードする。
func (c *Client) profile(ctx context.Context, method, path string, body []byte, fallback string) (*model.UserProfile, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, apierror.NormalizeWithFallback(err, fallback)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.recorder != nil {
		c.recorder.RecordUpstreamLatency(time.Since(start))
	}
	if err != nil {
		c.logger.Warn("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, apierror.NormalizeWithFallback(err, fallback)
	}
	defer resp.Body.Close()

	if c.recorder != nil {
		c.recorder.RecordUpstreamStatus(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apierror.NormalizeWithFallback(err, fallback)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := apierror.NormalizeWithFallback(&apierror.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       data,
		}, fallback)
		c.logger.Info("backend returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, apiErr
	}

	var profile model.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		c.logger.Warn("failed to decode profile response",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, &model.APIError{Status: resp.StatusCode, Message: fallback}
	}
	return &profile, nil
}
