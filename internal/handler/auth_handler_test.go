package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/session"
)

func TestLoginPage_RendersFormWithCSRFToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.serve(httptest.NewRequest(http.MethodGet, "/login", nil))
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !strings.Contains(body, `name="csrf_token"`) {
		t.Error("login form should include the csrf_token field")
	}

	var csrfCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "csrf_token" {
			csrfCookie = c
		}
	}
	if csrfCookie == nil {
		t.Fatal("expected csrf_token cookie")
	}
	if !strings.Contains(body, csrfCookie.Value) {
		t.Error("form token should match the csrf cookie")
	}
}

func TestLoginPage_AuthenticatedRedirectsToLanding(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(masterProfile())

	resp := env.serve(httptest.NewRequest(http.MethodGet, "/login", nil))

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/app" {
		t.Errorf("Location = %q, want %q", loc, "/app")
	}
}

// pendingWaiter はrelease後に完了するハイドレーションを表す。
type pendingWaiter struct{ ch chan struct{} }

func (w pendingWaiter) Done() <-chan struct{} { return w.ch }

func TestLoginPage_WaitsForHydrationBeforeDeciding(t *testing.T) {
	hydration := pendingWaiter{ch: make(chan struct{})}
	env := newTestEnv(t, func(d *RouterDeps) { d.Hydration = hydration })

	result := make(chan *http.Response, 1)
	go func() {
		result <- env.serve(httptest.NewRequest(http.MethodGet, "/login", nil))
	}()

	select {
	case resp := <-result:
		resp.Body.Close()
		t.Fatalf("responded with %d before hydration settled", resp.StatusCode)
	case <-time.After(50 * time.Millisecond):
	}

	// キャッシュから復元されたセッション
	env.store.Dispatch(context.Background(), session.InitStart{})
	env.store.Dispatch(context.Background(), session.InitSuccess{Profile: masterProfile()})
	close(hydration.ch)

	var resp *http.Response
	select {
	case resp = <-result:
	case <-time.After(5 * time.Second):
		t.Fatal("login page did not respond after hydration")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/app" {
		t.Errorf("Location = %q, want %q", loc, "/app")
	}
}

func TestLogin_JSON_Success(t *testing.T) {
	env := newTestEnv(t)

	resp := env.serve(jsonLoginRequest(`{"username":"admin","password":"secret123"}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Username != "admin" || got.Redirect != "/app" {
		t.Errorf("response = %+v", got)
	}

	st := env.store.Snapshot()
	if !st.IsAuthenticated || st.Token() != "secret-token" {
		t.Errorf("store should be authenticated, got %+v", st)
	}
}

func TestLogin_Form_SuccessRedirects(t *testing.T) {
	env := newTestEnv(t)

	resp := env.serve(formLoginRequest("admin", "secret123"))

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/app" {
		t.Errorf("Location = %q, want %q", loc, "/app")
	}
}

func TestLogin_Form_BackendFailureRendersSanitizedMessage(t *testing.T) {
	env := newTestEnv(t)
	env.api.loginFn = func(ctx context.Context, username, password string) (*model.UserProfile, error) {
		return nil, &model.APIError{Status: http.StatusUnauthorized, Message: "Credenciais <b>inválidas</b>"}
	}

	resp := env.serve(formLoginRequest("admin", "wrongpass"))
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if !strings.Contains(body, "Credenciais inválidas") {
		t.Errorf("body should contain sanitized message, got %s", body)
	}
	if strings.Contains(body, "<b>") {
		t.Error("backend markup must not be rendered")
	}
	if !strings.Contains(body, `value="admin"`) {
		t.Error("username should be kept in the form")
	}

	st := env.store.Snapshot()
	if st.IsAuthenticated || st.Error == nil {
		t.Errorf("store should hold the login error, got %+v", st)
	}
}

func TestLogin_JSON_TransportFailureReturnsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.api.loginFn = func(ctx context.Context, username, password string) (*model.UserProfile, error) {
		return nil, &model.APIError{Message: model.LoginErrorMessage}
	}

	resp := env.serve(jsonLoginRequest(`{"username":"admin","password":"secret123"}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
	var got model.APIError
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Message != model.LoginErrorMessage {
		t.Errorf("message = %q, want %q", got.Message, model.LoginErrorMessage)
	}
}

func TestLogin_ValidationErrorDoesNotCallBackend(t *testing.T) {
	env := newTestEnv(t)

	resp := env.serve(jsonLoginRequest(`{"username":"a!","password":"secret123"}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	if env.api.calls != 0 {
		t.Errorf("backend calls = %d, want 0", env.api.calls)
	}
	if st := env.store.Snapshot(); st.Loading {
		t.Error("validation failure must not start a login")
	}
}

func TestLogin_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	resp := env.serve(jsonLoginRequest(`{"username":`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestLogin_RejectsMissingCSRFToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"admin","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := env.serve(req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	if env.api.calls != 0 {
		t.Errorf("backend calls = %d, want 0", env.api.calls)
	}
}

func TestLogout_ClearsSessionAndRedirects(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(masterProfile())

	resp := env.serve(withCSRF(httptest.NewRequest(http.MethodPost, "/logout", nil)))

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want %q", loc, "/login")
	}
	if st := env.store.Snapshot(); st.IsAuthenticated || st.UserDetails != nil {
		t.Errorf("session should be cleared, got %+v", st)
	}
}

func TestLogout_GetIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		resp := env.serve(httptest.NewRequest(http.MethodGet, "/logout", nil))
		if resp.StatusCode != http.StatusFound {
			t.Errorf("call %d status = %d, want %d", i, resp.StatusCode, http.StatusFound)
		}
	}
}

func TestFailureStatus(t *testing.T) {
	tests := []struct {
		status int
		want   int
	}{
		{0, http.StatusBadGateway},
		{http.StatusUnauthorized, http.StatusUnauthorized},
		{http.StatusInternalServerError, http.StatusInternalServerError},
		{http.StatusOK, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := failureStatus(&model.APIError{Status: tt.status}); got != tt.want {
			t.Errorf("failureStatus(%d) = %d, want %d", tt.status, got, tt.want)
		}
	}
}
