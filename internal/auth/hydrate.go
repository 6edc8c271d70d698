package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/session"
)

// ハイドレーションの取得元（ログとメトリクスのラベル）
const (
	HydrationSourceCache   = "cache"
	HydrationSourceBackend = "backend"
	HydrationSourceFailure = "failure"
)

// SessionLoader は永続化済みスナップショットを読み込む。
type SessionLoader interface {
	Load(ctx context.Context) *model.PersistedSession
}

// ProfileFetcher は現在の資格情報でプロファイルを取得する。
type ProfileFetcher interface {
	Me(ctx context.Context) (*model.UserProfile, error)
}

// HydrationRecorder はハイドレーション結果の記録に必要なインターフェース。
type HydrationRecorder interface {
	RecordHydration(source string)
}

// Hydrator は起動時にセッションを復元する。プロセスごとに一度だけ実行される。
type Hydrator struct {
	store    session.Dispatcher
	cache    SessionLoader
	api      ProfileFetcher
	recorder HydrationRecorder
	logger   *slog.Logger
	now      func() time.Time

	once sync.Once
	done chan struct{}
}

// NewHydrator はHydratorを生成する。
func NewHydrator(store session.Dispatcher, cache SessionLoader, api ProfileFetcher, recorder HydrationRecorder, logger *slog.Logger) *Hydrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hydrator{
		store:    store,
		cache:    cache,
		api:      api,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Run はハイドレーションを実行する。2回目以降の呼び出しは何もしない。
// エラーは返さず、再試行もしない。失敗時は匿名状態に落ち着く。
func (h *Hydrator) Run(ctx context.Context) {
	h.once.Do(func() {
		defer close(h.done)
		h.run(ctx)
	})
}

// Done は遷移が確定した後にクローズされるチャネルを返す。
func (h *Hydrator) Done() <-chan struct{} {
	return h.done
}

// Wait はハイドレーションの完了またはctxの終了まで待機する。
func (h *Hydrator) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hydrator) run(ctx context.Context) {
	st := h.store.Dispatch(ctx, session.InitStart{})
	if !st.Loading {
		// 既にログイン等で状態が確定している
		h.logger.Debug("hydration skipped", slog.String("phase", string(st.Phase)))
		return
	}

	if persisted := h.cachedProfile(ctx); persisted != nil {
		h.warnIfExpired(persisted.BearerToken())
		h.store.Dispatch(ctx, session.InitSuccess{Profile: persisted})
		h.record(HydrationSourceCache, persisted.Username)
		return
	}

	profile, err := h.api.Me(ctx)
	if err != nil || profile == nil {
		attrs := []any{}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		h.logger.Info("no session restored", attrs...)
		h.store.Dispatch(ctx, session.InitFailure{})
		h.record(HydrationSourceFailure, "")
		return
	}

	h.store.Dispatch(ctx, session.InitSuccess{Profile: profile})
	h.record(HydrationSourceBackend, profile.Username)
}

// cachedProfile は永続化済みのプロファイルを返す。
// スナップショットのトークンとプロファイルのトークンが異なる場合はスナップショットを優先する。
func (h *Hydrator) cachedProfile(ctx context.Context) *model.UserProfile {
	if h.cache == nil {
		return nil
	}
	persisted := h.cache.Load(ctx)
	if persisted == nil || persisted.User == nil {
		return nil
	}
	profile := persisted.User.Clone()
	if persisted.Token != "" {
		profile.Token = persisted.Token
	}
	return profile
}

// warnIfExpired はキャッシュされたトークンの期限切れを警告する。
// 判定はバックエンドに委ねるため、キャッシュは引き続き信頼する。
func (h *Hydrator) warnIfExpired(token string) {
	if token == "" {
		return
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		return
	}
	if exp.Before(h.now()) {
		h.logger.Warn("cached token appears expired",
			slog.Time("expires_at", exp),
		)
	}
}

func (h *Hydrator) record(source, username string) {
	h.logger.Info("session hydrated",
		slog.String("source", source),
		slog.String("username", username),
	)
	if h.recorder != nil {
		h.recorder.RecordHydration(source)
	}
}
