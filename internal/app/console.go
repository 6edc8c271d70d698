package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/backoffice/internal/apiclient"
	"github.com/hitoshi/backoffice/internal/auth"
	"github.com/hitoshi/backoffice/internal/config"
	"github.com/hitoshi/backoffice/internal/credstore"
	"github.com/hitoshi/backoffice/internal/database"
	"github.com/hitoshi/backoffice/internal/metrics"
	"github.com/hitoshi/backoffice/internal/session"
	"github.com/hitoshi/backoffice/internal/transport"
)

// Console はセッション関連の依存関係をワイヤリングした結果を保持する。
// serve・login・logout・whoamiの各コマンドで共有する。
type Console struct {
	Config    *config.Config
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Collector
	Store     *session.Store
	Creds     *credstore.Store
	DB        *sql.DB // Postgresバックエンド使用時のみ
	Transport http.RoundTripper
	API       *apiclient.Client
	Hydrator  *auth.Hydrator
	Login     *auth.LoginController
}

// NewConsole は設定から依存関係を構築する。navはログイン成功時の遷移先の通知に使う。
//
// 送信チェーン:
//
//	AuthTransport → UnauthorizedTransport → http.DefaultTransport
//
// AuthTransportが外側にあるため、401ポリシーは付与済みのAuthorizationヘッダーを参照できる。
func NewConsole(ctx context.Context, cfg *config.Config, logger *slog.Logger, nav auth.Navigator) (*Console, error) {
	c := &Console{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewCollector(c.Registry)

	// 1. 資格情報ストア
	backend, err := c.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	c.Creds = credstore.New(backend, logger.With(slog.String("component", "credstore")), c.Metrics)

	// 2. セッションストア（永続化と遷移メトリクスを副作用として登録）
	c.Store = session.NewStore(cfg.APIBaseURL, logger.With(slog.String("component", "session")),
		c.Creds,
		session.EffectFunc(func(_ context.Context, _, _ session.State, ev session.Event) {
			c.Metrics.RecordTransition(ev.Name())
		}),
	)

	// 3. 送信チェーン
	tokens := auth.SessionTokenSource{Session: c.Store, Cache: c.Creds}
	unauthorized := transport.NewUnauthorizedTransport(http.DefaultTransport, cfg.LogoutOnUnauthorized,
		func(ctx context.Context) {
			// 401はログインコントローラー構築後にのみ発生する
			c.Login.Logout(context.WithoutCancel(ctx))
		}, logger)
	c.Transport = transport.NewAuthTransport(unauthorized, cfg.APIBaseURL, tokens, c.Metrics, logger)

	// 4. バックエンドAPIクライアント
	httpClient, err := apiclient.NewHTTPClient(c.Transport, cfg.RequestTimeout)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.API = apiclient.New(httpClient, cfg.APIBaseURL, c.Metrics, logger)

	// 5. ハイドレーションとログイン
	c.Hydrator = auth.NewHydrator(c.Store, c.Creds, c.API, c.Metrics, logger)
	c.Login = auth.NewLoginController(c.Store, c.API, nav, cfg.LoginLandingRoute, c.Metrics, logger)

	return c, nil
}

// openBackend は設定に応じた資格情報バックエンドを返す。
func (c *Console) openBackend(ctx context.Context) (credstore.Backend, error) {
	switch c.Config.CredentialBackend {
	case config.CredentialBackendPostgres:
		db, err := database.Connect(ctx, c.Config.DatabaseURL)
		if err != nil {
			return nil, err
		}
		c.DB = db
		c.Logger.Info("database connection established")
		return credstore.NewPostgresBackend(db), nil
	case config.CredentialBackendMemory:
		return credstore.NewMemoryBackend(), nil
	case config.CredentialBackendFile:
		backend := credstore.NewFileBackend(c.Config.CredentialFile)
		c.Logger.Debug("using credential file", slog.String("path", backend.Path()))
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported credential backend: %q", c.Config.CredentialBackend)
	}
}

// Close は保持しているリソースを解放する。
func (c *Console) Close() {
	if c.DB != nil {
		c.DB.Close()
	}
}
