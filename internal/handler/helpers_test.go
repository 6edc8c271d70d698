package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/backoffice/internal/auth"
	"github.com/hitoshi/backoffice/internal/guard"
	"github.com/hitoshi/backoffice/internal/middleware"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/session"
)

const testCSRFToken = "test-csrf-token"

// --- モック定義 ---

// fakeAuthenticator はバックエンドのログインAPIを模倣する。
type fakeAuthenticator struct {
	mu      sync.Mutex
	loginFn func(ctx context.Context, username, password string) (*model.UserProfile, error)
	calls   int
}

func (f *fakeAuthenticator) Login(ctx context.Context, username, password string) (*model.UserProfile, error) {
	f.mu.Lock()
	f.calls++
	fn := f.loginFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, username, password)
	}
	return masterProfile(), nil
}

// closedWaiter は完了済みのハイドレーションを表す。
type closedWaiter struct{ ch chan struct{} }

func newClosedWaiter() closedWaiter {
	ch := make(chan struct{})
	close(ch)
	return closedWaiter{ch: ch}
}

func (w closedWaiter) Done() <-chan struct{} { return w.ch }

func masterProfile() *model.UserProfile {
	return &model.UserProfile{
		Token:    "secret-token",
		Username: "admin",
		Name:     "Administrador",
		Company:  model.Company{ID: 1, Name: "Petro Campo"},
		Roles:    []string{guard.RoleMaster},
	}
}

// testEnv はテスト用に実物のStoreとLoginControllerで構成したルーター。
type testEnv struct {
	store   *session.Store
	api     *fakeAuthenticator
	router  http.Handler
	limiter *middleware.RateLimiter
}

type envOption func(*RouterDeps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewStore("http://api.example", logger)
	api := &fakeAuthenticator{}
	ctrl := auth.NewLoginController(store, api, nil, "/app", nil, logger)
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	deps := &RouterDeps{
		RateLimiter: limiter,
		Logger:      logger,
		Session:     store,
		Hydration:   newClosedWaiter(),
		Login:       ctrl,
		Landing:     "/app",
		RouteTable:  guard.DefaultRouteTable(),
	}
	for _, opt := range opts {
		opt(deps)
	}

	router, err := NewRouter(deps)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return &testEnv{store: store, api: api, router: router, limiter: limiter}
}

func (e *testEnv) serve(req *http.Request) *http.Response {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w.Result()
}

// signIn はストアを認証済み状態にする。
func (e *testEnv) signIn(profile *model.UserProfile) {
	e.store.Dispatch(context.Background(), session.LoginStart{Username: profile.Username})
	e.store.Dispatch(context.Background(), session.LoginSuccess{Profile: profile})
}

// withCSRF はダブルサブミットCookieとヘッダーを設定する。
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	return req
}

func jsonLoginRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return withCSRF(req)
}

func formLoginRequest(username, password string) *http.Request {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set(middleware.CSRFFormField, testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}
