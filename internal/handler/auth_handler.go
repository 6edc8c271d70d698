package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/backoffice/internal/auth"
	"github.com/hitoshi/backoffice/internal/guard"
	"github.com/hitoshi/backoffice/internal/middleware"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/security"
	"github.com/hitoshi/backoffice/internal/session"
)

const (
	// maxLoginBodySize はログインリクエストボディの上限。
	maxLoginBodySize = 16 << 10

	invalidBodyMessage = "Corpo da requisição inválido."
	supersededMessage  = "Tentativa de login substituída por outra mais recente."
)

// LoginService はログインハンドラーが必要とするサービスインターフェース。
// auth.LoginControllerが実装する。
type LoginService interface {
	Login(ctx context.Context, username, password string) (*auth.Attempt, error)
	Logout(ctx context.Context)
}

// loginRequest はJSONログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse はJSONログイン成功時のレスポンス。
type loginResponse struct {
	Username string   `json:"username"`
	Name     string   `json:"nome"`
	Roles    []string `json:"roles"`
	Redirect string   `json:"redirect"`
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service   LoginService
	reader    session.Reader
	hydration guard.HydrationWaiter
	views     *Views
	sanitizer *security.MessageSanitizer
	landing   string
	logger    *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。landingが空の場合は既定の遷移先を使用する。
// hydrationがnilの場合はハイドレーションを待たない。
func NewAuthHandler(service LoginService, reader session.Reader, hydration guard.HydrationWaiter, views *Views, sanitizer *security.MessageSanitizer, landing string, logger *slog.Logger) *AuthHandler {
	if landing == "" {
		landing = auth.DefaultLandingRoute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		service:   service,
		reader:    reader,
		hydration: hydration,
		views:     views,
		sanitizer: sanitizer,
		landing:   landing,
		logger:    logger,
	}
}

// LoginPage はログイン画面を表示する。ログイン済みの場合は遷移先にリダイレクトする。
// 起動直後はハイドレーションの完了を待ってから判定する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.hydration != nil {
		select {
		case <-h.hydration.Done():
		case <-r.Context().Done():
			return
		}
	}

	st := h.reader.Snapshot()
	if st.IsAuthenticated {
		http.Redirect(w, r, h.landing, http.StatusFound)
		return
	}

	view := h.loginView(r, "", st.Loading)
	if st.Error != nil {
		view.Error = h.sanitizer.SanitizeOr(st.Error.Message, model.LoginErrorMessage)
	}
	h.views.Render(w, http.StatusOK, viewLogin, view)
}

// Login はログインフォームまたはJSONを受け付け、試行の完了を待って応答する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	asJSON := wantsJSON(r)

	creds, err := readLoginRequest(w, r)
	if err != nil {
		h.fail(w, r, asJSON, http.StatusBadRequest, "", &model.APIError{Message: invalidBodyMessage})
		return
	}

	// クライアントが切断しても試行は最後まで進める
	attempt, err := h.service.Login(context.WithoutCancel(r.Context()), creds.Username, creds.Password)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			apiErr = &model.APIError{Message: model.LoginErrorMessage}
		}
		h.fail(w, r, asJSON, http.StatusUnprocessableEntity, creds.Username, apiErr)
		return
	}

	if err := attempt.Wait(r.Context()); err != nil {
		h.logger.Debug("client left before login completed",
			slog.String("attempt_id", attempt.ID()),
		)
		return
	}

	if attempt.Superseded() {
		h.fail(w, r, asJSON, http.StatusConflict, creds.Username, &model.APIError{
			Status:  http.StatusConflict,
			Message: supersededMessage,
		})
		return
	}

	if apiErr := attempt.Err(); apiErr != nil {
		apiErr.Message = h.sanitizer.SanitizeOr(apiErr.Message, model.LoginErrorMessage)
		h.fail(w, r, asJSON, failureStatus(apiErr), creds.Username, apiErr)
		return
	}

	profile := attempt.Profile()
	if asJSON {
		writeJSON(w, http.StatusOK, loginResponse{
			Username: profile.Username,
			Name:     profile.Name,
			Roles:    profile.Roles,
			Redirect: h.landing,
		})
		return
	}
	http.Redirect(w, r, h.landing, http.StatusFound)
}

// Logout はセッションを破棄してログイン画面にリダイレクトする。
// GET /logout, POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(context.WithoutCancel(r.Context()))

	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, guard.LoginRoute, http.StatusFound)
}

// fail はエラーをJSONまたはログイン画面で返す。
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, asJSON bool, statusCode int, username string, apiErr *model.APIError) {
	if asJSON {
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}
	view := h.loginView(r, username, false)
	view.Error = apiErr.Message
	h.views.Render(w, statusCode, viewLogin, view)
}

func (h *AuthHandler) loginView(r *http.Request, username string, loading bool) loginView {
	return loginView{
		CSRFField: middleware.CSRFFormField,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Username:  username,
		Loading:   loading,
	}
}

// readLoginRequest はJSONまたはフォームから資格情報を読み取る。
func readLoginRequest(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)

	var req loginRequest
	if isJSONRequest(r) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return req, err
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	return req, nil
}

// failureStatus はバックエンドのエラーをコンソールの応答ステータスに変換する。
// バックエンドから応答がない場合は502とする。
func failureStatus(apiErr *model.APIError) int {
	if apiErr.Status >= 400 && apiErr.Status <= 599 {
		return apiErr.Status
	}
	return http.StatusBadGateway
}
