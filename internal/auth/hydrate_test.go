package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/session"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return token
}

func TestHydrator_CachedProfile(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	store := session.NewStore("http://api.local", logger)
	loader := &mockLoader{persisted: &model.PersistedSession{
		Token: "T1",
		User:  &model.UserProfile{Username: "alice", Roles: []string{"ROLE_MASTER"}},
	}}
	fetcher := &mockFetcher{}
	rec := &mockRecorder{}

	h := NewHydrator(store, loader, fetcher, rec, logger)
	h.Run(context.Background())

	select {
	case <-h.Done():
	default:
		t.Fatal("Run の完了後にDoneがクローズされていない")
	}

	st := store.Snapshot()
	if !st.IsAuthenticated || st.Username() != "alice" {
		t.Errorf("状態 = %+v, want alice で認証済み", st)
	}
	if st.Token() != "T1" {
		t.Errorf("Token = %q, want T1", st.Token())
	}
	if !st.Hydrated || st.Loading {
		t.Errorf("Hydrated=%v Loading=%v, want true/false", st.Hydrated, st.Loading)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("キャッシュがあるのにバックエンドを呼び出した: %d 回", fetcher.callCount())
	}
	if _, sources := rec.snapshot(); len(sources) != 1 || sources[0] != HydrationSourceCache {
		t.Errorf("記録 = %v, want [cache]", sources)
	}
}

func TestHydrator_BackendProfile(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	store := session.NewStore("http://api.local", logger)
	fetcher := &mockFetcher{profile: &model.UserProfile{Username: "bob", Token: "T2"}}
	rec := &mockRecorder{}

	h := NewHydrator(store, &mockLoader{}, fetcher, rec, logger)
	h.Run(context.Background())

	st := store.Snapshot()
	if !st.IsAuthenticated || st.Username() != "bob" {
		t.Errorf("状態 = %+v, want bob で認証済み", st)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Me の呼び出し回数 = %d, want 1", fetcher.callCount())
	}
	if _, sources := rec.snapshot(); len(sources) != 1 || sources[0] != HydrationSourceBackend {
		t.Errorf("記録 = %v, want [backend]", sources)
	}
}

func TestHydrator_FailureSettlesAnonymous(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	store := session.NewStore("http://api.local", logger)
	fetcher := &mockFetcher{err: &model.APIError{Status: 401, Message: "401 Unauthorized"}}
	rec := &mockRecorder{}

	h := NewHydrator(store, &mockLoader{}, fetcher, rec, logger)
	h.Run(context.Background())

	st := store.Snapshot()
	if st.IsAuthenticated || st.UserDetails != nil {
		t.Errorf("失敗後に認証済みになっている: %+v", st)
	}
	if !st.Hydrated || st.Loading {
		t.Errorf("Hydrated=%v Loading=%v, want true/false", st.Hydrated, st.Loading)
	}
	if st.Error != nil {
		t.Errorf("ハイドレーション失敗がエラーとして表面化している: %+v", st.Error)
	}
	if _, sources := rec.snapshot(); len(sources) != 1 || sources[0] != HydrationSourceFailure {
		t.Errorf("記録 = %v, want [failure]", sources)
	}
}

func TestHydrator_RunsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	store := session.NewStore("http://api.local", logger)
	fetcher := &mockFetcher{err: errors.New("connection refused")}

	h := NewHydrator(store, &mockLoader{}, fetcher, nil, logger)
	h.Run(context.Background())
	h.Run(context.Background())

	if fetcher.callCount() != 1 {
		t.Errorf("Me の呼び出し回数 = %d, want 1", fetcher.callCount())
	}
}

func TestHydrator_SkipsWhenAlreadySettled(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	store := session.NewStore("http://api.local", logger)
	store.Dispatch(context.Background(), session.LoginSuccess{Profile: &model.UserProfile{Username: "carol"}})
	fetcher := &mockFetcher{}

	h := NewHydrator(store, &mockLoader{}, fetcher, nil, logger)
	h.Run(context.Background())

	if fetcher.callCount() != 0 {
		t.Errorf("確定済みの状態でバックエンドを呼び出した")
	}
	if store.Snapshot().Username() != "carol" {
		t.Error("確定済みのセッションが変更された")
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Errorf("Wait がエラーを返した: %v", err)
	}
}

func TestHydrator_WarnsOnExpiredCachedToken(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	store := session.NewStore("http://api.local", logger)
	token := signedToken(t, time.Now().Add(-time.Hour))
	loader := &mockLoader{persisted: &model.PersistedSession{
		Token: token,
		User:  &model.UserProfile{Username: "alice"},
	}}

	h := NewHydrator(store, loader, &mockFetcher{}, nil, logger)
	h.Run(context.Background())

	if !strings.Contains(buf.String(), "cached token appears expired") {
		t.Errorf("期限切れの警告が出力されていない: %s", buf.String())
	}
	if !store.Snapshot().IsAuthenticated {
		t.Error("期限切れでもキャッシュは信頼されるべき")
	}
}

func TestHydrator_WaitHonorsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	h := NewHydrator(session.NewStore("http://api.local", logger), &mockLoader{}, &mockFetcher{}, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, err := TokenExpiry(signedToken(t, exp))
	if err != nil {
		t.Fatalf("TokenExpiry がエラーを返した: %v", err)
	}
	if !got.Equal(exp) {
		t.Errorf("exp = %v, want %v", got, exp)
	}

	if _, err := TokenExpiry("opaque-token"); !errors.Is(err, ErrNoExpiry) {
		t.Errorf("不透明トークン: err = %v, want ErrNoExpiry", err)
	}
}

func TestSessionTokenSource(t *testing.T) {
	var buf bytes.Buffer
	store := session.NewStore("http://api.local", newTestLogger(&buf))
	src := SessionTokenSource{Session: store, Cache: &mockLoader{token: "CACHED"}}

	if got := src.Token(context.Background()); got != "CACHED" {
		t.Errorf("未ログイン時 Token = %q, want CACHED", got)
	}

	store.Dispatch(context.Background(), session.LoginSuccess{Profile: &model.UserProfile{Username: "alice", Token: "LIVE"}})
	if got := src.Token(context.Background()); got != "LIVE" {
		t.Errorf("ログイン後 Token = %q, want LIVE", got)
	}
}
