// Package guard はコンソールルートへのアクセス可否を判定する。
package guard

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/backoffice/internal/session"
)

// リダイレクト先
const (
	LoginRoute        = "/login"
	UnauthorizedRoute = "/unauthorized"
	NotFoundRoute     = "/404"
)

// Decision はルートへのアクセス判定結果。Allowがfalseの場合はRedirectへ遷移する。
type Decision struct {
	Allow    bool
	Redirect string
}

// Allowed はアクセスを許可する判定。
var Allowed = Decision{Allow: true}

// RedirectTo はrouteへの遷移を指示する判定を返す。
func RedirectTo(route string) Decision {
	return Decision{Redirect: route}
}

// HydrationWaiter はハイドレーションの完了を通知する。auth.Hydratorが実装する。
type HydrationWaiter interface {
	Done() <-chan struct{}
}

// Authorizer はセッションのスナップショットに基づいてアクセスを判定する。
type Authorizer struct {
	session session.Reader
	logger  *slog.Logger
}

// NewAuthorizer はAuthorizerを生成する。
func NewAuthorizer(reader session.Reader, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{session: reader, logger: logger}
}

// Authorize は必要なロールに対する判定を行う。
// 判定は1つのスナップショットから行い、途中で状態が変わっても混在しない。
func (a *Authorizer) Authorize(required []string) Decision {
	st := a.session.Snapshot()

	if !st.IsAuthenticated {
		return RedirectTo(LoginRoute)
	}
	if len(required) == 0 {
		return Allowed
	}
	if st.UserDetails.HasAnyRole(required) {
		return Allowed
	}
	return RedirectTo(UnauthorizedRoute)
}

// Middleware はハイドレーションの完了を待ってから判定し、
// 拒否時は302でリダイレクトするミドルウェアを返す。
func (a *Authorizer) Middleware(hydration HydrationWaiter, required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hydration != nil {
				select {
				case <-hydration.Done():
				case <-r.Context().Done():
					// クライアントが切断した
					return
				}
			}

			decision := a.Authorize(required)
			if !decision.Allow {
				a.logger.Debug("route access denied",
					slog.String("path", r.URL.Path),
					slog.String("redirect", decision.Redirect),
				)
				http.Redirect(w, r, decision.Redirect, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
