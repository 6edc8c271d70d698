package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hitoshi/backoffice/internal/auth"
	"github.com/hitoshi/backoffice/internal/config"
	"github.com/hitoshi/backoffice/internal/database"
	"github.com/hitoshi/backoffice/internal/guard"
	"github.com/hitoshi/backoffice/internal/handler"
	"github.com/hitoshi/backoffice/internal/logger"
	"github.com/hitoshi/backoffice/internal/metrics"
	"github.com/hitoshi/backoffice/internal/middleware"
	"github.com/hitoshi/backoffice/internal/security"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// levelが空の場合はLOG_LEVELを使用する。
func Init(w io.Writer, level string) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	log := logger.SetupDefault(w, level)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, log, nil
}

// Run はサブコマンドを実行する。ctxのキャンセルでserveはシャットダウンする。
func Run(ctx context.Context, cmd Command, opts Options) error {
	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "4200"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, log, err := Init(opts.Logs, opts.LogLevel)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("credential_backend", cfg.CredentialBackend),
	)

	if cmd == CommandMigrate {
		return runMigrate(cfg, log)
	}
	if !cmd.needsConsole() {
		return fmt.Errorf("unknown command: %q", cmd)
	}

	nav := auth.NavigatorFunc(func(ctx context.Context, route string) {
		log.Info("navigate after login", slog.String("route", route))
	})
	console, err := NewConsole(ctx, cfg, log, nav)
	if err != nil {
		return err
	}
	defer console.Close()

	switch cmd {
	case CommandServe:
		return runServe(ctx, console)
	case CommandLogin:
		return runLogin(ctx, console, opts)
	case CommandLogout:
		return runLogout(ctx, console, opts)
	default:
		return runWhoami(ctx, console, opts)
	}
}

// runServe はコンソールサーバーを起動する。
// ハイドレーションをバックグラウンドで開始し、ctxが終了するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, c *Console) error {
	cfg := c.Config

	routes, err := guard.LoadRouteTable(cfg.RoutesFile)
	if err != nil {
		return fmt.Errorf("failed to load route table: %w", err)
	}

	apiBase, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid API base URL: %w", err)
	}

	limiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig().WithLoginPerMinute(cfg.LoginRateLimit),
	)
	defer limiter.Stop()

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF:              middleware.CSRFConfig{CookieSecure: cfg.CookieSecure},
		RateLimiter:       limiter,
		Logger:            c.Logger,

		Session:    c.Store,
		Hydration:  c.Hydrator,
		Login:      c.Login,
		Landing:    cfg.LoginLandingRoute,
		RouteTable: routes,
		Sanitizer:  security.NewMessageSanitizer(),

		APIBaseURL:   apiBase,
		APITransport: c.Transport,

		MetricsHandler: metrics.Handler(c.Registry),
	}
	if c.DB != nil {
		deps.HealthChecker = c.DB
	}

	router, err := handler.NewRouter(deps)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	// ハイドレーションはサーバー起動と並行して行い、保護ルートはその完了を待つ
	go c.Hydrator.Run(ctx)

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// SSEのため書き込みタイムアウトは設定しない
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("console server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down console server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	c.Logger.Info("console server stopped gracefully")
	return nil
}

// runLogin はCLIからログインし、結果を表示する。
// 成功した資格情報はセッションストアの副作用で永続化される。
func runLogin(ctx context.Context, c *Console, opts Options) error {
	attempt, err := c.Login.Login(ctx, opts.Username, opts.Password)
	if err != nil {
		return err
	}
	if err := attempt.Wait(ctx); err != nil {
		return fmt.Errorf("login interrupted: %w", err)
	}
	if apiErr := attempt.Err(); apiErr != nil {
		return apiErr
	}

	profile := attempt.Profile()
	fmt.Fprintf(opts.stdout(), "Autenticado como %s (%s)\n", profile.Username, strings.Join(profile.Roles, ", "))
	return nil
}

// runLogout は保存済みの資格情報を破棄する。
func runLogout(ctx context.Context, c *Console, opts Options) error {
	c.Login.Logout(ctx)
	fmt.Fprintln(opts.stdout(), "Sessão encerrada.")
	return nil
}

// runWhoami は保存済みセッションを復元し、ユーザーとトークンの有効期限を表示する。
func runWhoami(ctx context.Context, c *Console, opts Options) error {
	c.Hydrator.Run(ctx)

	st := c.Store.Snapshot()
	if !st.IsAuthenticated || st.UserDetails == nil {
		return errors.New("não autenticado: execute 'backoffice login'")
	}

	out := opts.stdout()
	p := st.UserDetails
	fmt.Fprintf(out, "Usuário:  %s\n", p.Username)
	if p.Name != "" {
		fmt.Fprintf(out, "Nome:     %s\n", p.Name)
	}
	if p.Company.Name != "" {
		fmt.Fprintf(out, "Empresa:  %s\n", p.Company.Name)
	}
	fmt.Fprintf(out, "Perfis:   %s\n", strings.Join(p.Roles, ", "))

	exp, err := auth.TokenExpiry(st.Token())
	switch {
	case err != nil:
		fmt.Fprintln(out, "Expira:   desconhecido")
	case time.Now().After(exp):
		fmt.Fprintf(out, "Expira:   %s (expirado)\n", exp.Local().Format(time.RFC3339))
	default:
		fmt.Fprintf(out, "Expira:   %s\n", exp.Local().Format(time.RFC3339))
	}
	return nil
}

// runMigrate はcredential_storeテーブルのマイグレーションを実行する。
// Postgresバックエンドでのみ意味を持つ。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	if cfg.CredentialBackend != config.CredentialBackendPostgres {
		return fmt.Errorf("migrate requires CREDENTIAL_BACKEND=%s (current: %s)",
			config.CredentialBackendPostgres, cfg.CredentialBackend)
	}

	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
