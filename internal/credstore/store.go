package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/session"
)

// Key はセッションスナップショットを保存する固定キー。
const Key = "app_auth"

// ErrorRecorder はストレージエラーの記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type ErrorRecorder interface {
	RecordStorageError(op string)
}

// Store はセッションスナップショットの保存・読み込み・削除を行う。
// Backendのエラーはログに記録して握りつぶし、呼び出し元には伝播しない。
type Store struct {
	backend Backend
	logger  *slog.Logger
	errors  ErrorRecorder
}

// New はStoreを生成する。
func New(backend Backend, logger *slog.Logger, recorder ErrorRecorder) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		errors:  recorder,
	}
}

// Save は認証済みの状態であればスナップショットを保存し、それ以外はキーを削除する。
func (s *Store) Save(ctx context.Context, st session.State) {
	if !st.IsAuthenticated || st.UserDetails == nil {
		s.Clear(ctx)
		return
	}

	data, err := json.Marshal(model.PersistedSession{
		Token: st.UserDetails.Token,
		User:  st.UserDetails,
	})
	if err != nil {
		s.fail("encode", err)
		return
	}

	if err := s.backend.Put(ctx, Key, data); err != nil {
		s.fail("put", err)
	}
}

// Load は保存済みのスナップショットを返す。
// キーが存在しない場合、読み込みに失敗した場合、JSONが壊れている場合はnilを返す。
func (s *Store) Load(ctx context.Context) *model.PersistedSession {
	data, err := s.backend.Get(ctx, Key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		s.fail("get", err)
		return nil
	}

	var persisted model.PersistedSession
	if err := json.Unmarshal(data, &persisted); err != nil {
		s.fail("decode", err)
		return nil
	}
	return &persisted
}

// Token は保存済みスナップショットのトークンを返す。存在しない場合は空文字列。
func (s *Store) Token(ctx context.Context) string {
	persisted := s.Load(ctx)
	if persisted == nil {
		return ""
	}
	if persisted.Token != "" {
		return persisted.Token
	}
	return persisted.User.BearerToken()
}

// Clear はスナップショットを削除する。何度呼んでも同じ結果になる。
func (s *Store) Clear(ctx context.Context) {
	if err := s.backend.Delete(ctx, Key); err != nil {
		s.fail("delete", err)
	}
}

// Apply はsession.Effectを実装する。
// ローディング中の状態は保存せず、確定した状態のみを反映する。
// Logoutでは状態に関わらず明示的に削除する。
func (s *Store) Apply(ctx context.Context, _, next session.State, ev session.Event) {
	if _, ok := ev.(session.Logout); ok {
		s.Clear(ctx)
		return
	}
	if next.Loading {
		return
	}
	s.Save(ctx, next)
}

// fail はストレージエラーを記録する。
func (s *Store) fail(op string, err error) {
	s.logger.Warn("credential store operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	if s.errors != nil {
		s.errors.RecordStorageError(op)
	}
}

var _ session.Effect = (*Store)(nil)
