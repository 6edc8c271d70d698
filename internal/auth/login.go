package auth

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/backoffice/internal/apierror"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/session"
)

// DefaultLandingRoute はログイン成功後の遷移先。
const DefaultLandingRoute = "/app"

// ログイン結果（メトリクスのラベル）
const (
	LoginOutcomeSuccess    = "success"
	LoginOutcomeFailure    = "failure"
	LoginOutcomeSuperseded = "superseded"
	LoginOutcomeInvalid    = "invalid"
)

// 入力検証メッセージ
const (
	invalidUsernameMessage = "Usuário deve ter ao menos 3 caracteres alfanuméricos."
	invalidPasswordMessage = "Senha deve ter ao menos 6 caracteres."
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,}$`)

// Authenticator は資格情報をバックエンドに送信する。apiclient.Clientが実装する。
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*model.UserProfile, error)
}

// Navigator はログイン成功後の遷移を行う。
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

// NavigatorFunc は関数をNavigatorとして扱うためのアダプタ。
type NavigatorFunc func(ctx context.Context, route string)

// Navigate はfを呼び出す。
func (f NavigatorFunc) Navigate(ctx context.Context, route string) { f(ctx, route) }

// LoginRecorder はログイン結果の記録に必要なインターフェース。
type LoginRecorder interface {
	RecordLoginOutcome(outcome string)
}

// ValidateCredentials はログインフォームの入力規則を検証する。
// ユーザー名は3文字以上の英数字、パスワードは6文字以上。
func ValidateCredentials(username, password string) *model.APIError {
	if !usernamePattern.MatchString(username) {
		return model.NewValidationError(invalidUsernameMessage)
	}
	if utf8.RuneCountInString(password) < 6 {
		return model.NewValidationError(invalidPasswordMessage)
	}
	return nil
}

// Attempt は1回のログイン試行を表す。
type Attempt struct {
	id         string
	username   string
	generation uint64
	done       chan struct{}

	mu         sync.Mutex
	superseded bool
	profile    *model.UserProfile
	err        *model.APIError
}

// ID は試行の識別子を返す。
func (a *Attempt) ID() string { return a.id }

// Done は試行の結果が確定した後にクローズされるチャネルを返す。
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Wait は試行の完了またはctxの終了まで待機する。
func (a *Attempt) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Superseded は後続の試行またはログアウトにより結果が破棄されたかを返す。
func (a *Attempt) Superseded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.superseded
}

// Profile は成功時のプロファイルを返す。
func (a *Attempt) Profile() *model.UserProfile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile.Clone()
}

// Err は失敗時の正規化済みエラーを返す。
func (a *Attempt) Err() *model.APIError {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err.Clone()
}

func (a *Attempt) supersede() {
	a.mu.Lock()
	a.superseded = true
	a.mu.Unlock()
}

// LoginController はログイン試行を管理する。
// 最後に発行された試行のみが状態に反映される。
type LoginController struct {
	store    session.Dispatcher
	api      Authenticator
	nav      Navigator
	landing  string
	recorder LoginRecorder
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	current    *Attempt
	cancel     context.CancelFunc
}

// NewLoginController はLoginControllerを生成する。
// landingが空の場合はDefaultLandingRouteを使用する。navはnilでもよい。
func NewLoginController(store session.Dispatcher, api Authenticator, nav Navigator, landing string, recorder LoginRecorder, logger *slog.Logger) *LoginController {
	if landing == "" {
		landing = DefaultLandingRoute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginController{
		store:    store,
		api:      api,
		nav:      nav,
		landing:  landing,
		recorder: recorder,
		logger:   logger,
	}
}

// Login はログイン試行を開始し、即座に返る。
// 入力検証に失敗した場合はイベントを発行せずにエラーを返す。
// 進行中の試行があればキャンセルし、その結果は破棄される。
func (c *LoginController) Login(ctx context.Context, username, password string) (*Attempt, error) {
	if verr := ValidateCredentials(username, password); verr != nil {
		c.recordOutcome(LoginOutcomeInvalid)
		return nil, verr
	}

	attemptCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.generation++
	attempt := &Attempt{
		id:         uuid.NewString(),
		username:   username,
		generation: c.generation,
		done:       make(chan struct{}),
	}
	c.supersedeLocked()
	c.current = attempt
	c.cancel = cancel
	c.store.Dispatch(ctx, session.LoginStart{Username: username})
	c.mu.Unlock()

	c.logger.Info("login attempt started",
		slog.String("attempt_id", attempt.id),
		slog.String("username", username),
	)

	go c.run(attemptCtx, cancel, attempt, password)
	return attempt, nil
}

// Logout はセッションを破棄し、進行中の試行をキャンセルする。何度呼んでもよい。
func (c *LoginController) Logout(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.supersedeLocked()
	c.store.Dispatch(ctx, session.Logout{})
	c.logger.Info("logged out")
}

// supersedeLocked は進行中の試行を破棄扱いにしてキャンセルする。c.muを保持して呼ぶ。
func (c *LoginController) supersedeLocked() {
	if c.current != nil {
		c.current.supersede()
		c.current = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *LoginController) run(ctx context.Context, cancel context.CancelFunc, attempt *Attempt, password string) {
	defer close(attempt.done)
	defer cancel()

	profile, err := c.api.Login(ctx, attempt.username, password)

	c.mu.Lock()
	if attempt.generation != c.generation {
		c.mu.Unlock()
		attempt.supersede()
		c.logger.Info("stale login response discarded", slog.String("attempt_id", attempt.id))
		c.recordOutcome(LoginOutcomeSuperseded)
		return
	}
	c.current = nil
	c.cancel = nil

	// 呼び出し元のキャンセル後も確定した結果は永続化する
	dctx := context.WithoutCancel(ctx)

	if err != nil || profile == nil {
		apiErr := apierror.NormalizeWithFallback(err, model.LoginErrorMessage)
		c.store.Dispatch(dctx, session.LoginFailure{Err: apiErr})
		c.mu.Unlock()

		attempt.mu.Lock()
		attempt.err = apiErr.Clone()
		attempt.mu.Unlock()

		c.logger.Info("login failed",
			slog.String("attempt_id", attempt.id),
			slog.Int("status", apiErr.Status),
		)
		c.recordOutcome(LoginOutcomeFailure)
		return
	}

	c.store.Dispatch(dctx, session.LoginSuccess{Profile: profile})
	c.mu.Unlock()

	attempt.mu.Lock()
	attempt.profile = profile.Clone()
	attempt.mu.Unlock()

	c.logger.Info("login succeeded",
		slog.String("attempt_id", attempt.id),
		slog.String("username", profile.Username),
	)
	c.recordOutcome(LoginOutcomeSuccess)

	if c.nav != nil {
		c.nav.Navigate(ctx, c.landing)
	}
}

func (c *LoginController) recordOutcome(outcome string) {
	if c.recorder != nil {
		c.recorder.RecordLoginOutcome(outcome)
	}
}
