package handler

import (
	"net/http"
	"strings"

	"github.com/hitoshi/backoffice/internal/guard"
	"github.com/hitoshi/backoffice/internal/middleware"
	"github.com/hitoshi/backoffice/internal/session"
)

// ViewHandler は保護ビューとエラーページを描画する。
type ViewHandler struct {
	reader session.Reader
	views  *Views
	table  guard.RouteTable
}

// NewViewHandler はViewHandlerを生成する。
func NewViewHandler(reader session.Reader, views *Views, table guard.RouteTable) *ViewHandler {
	return &ViewHandler{
		reader: reader,
		views:  views,
		table:  table,
	}
}

// Root はログイン画面にリダイレクトする。ログイン済みならログイン画面が遷移先に送る。
// GET /
func (h *ViewHandler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, guard.LoginRoute, http.StatusFound)
}

// Page は保護ルートのビューを描画するハンドラーを返す。
// アクセス判定はguard.Authorizer.Middlewareで済んでいる前提。
func (h *ViewHandler) Page(route guard.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := h.reader.Snapshot()
		view := pageView{
			Title:     route.Title,
			Path:      r.URL.Path,
			CSRFField: middleware.CSRFFormField,
			CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		}
		if p := st.UserDetails; p != nil {
			view.Username = p.Username
			view.Name = p.Name
			view.Company = p.Company.Name
			view.Roles = p.Roles
			for _, rt := range h.table.Routes {
				// パスパラメータを持つルートはナビゲーションに出さない
				if hasParam(rt.Path) || !p.HasAnyRole(rt.Roles) {
					continue
				}
				view.Nav = append(view.Nav, navItem{Path: rt.Path, Title: rt.Title})
			}
		}
		h.views.Render(w, http.StatusOK, viewPage, view)
	}
}

// Unauthorized は権限不足のページを表示する。
// GET /unauthorized
func (h *ViewHandler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	h.views.Render(w, http.StatusForbidden, viewStatus, statusView{
		Title:   "Acesso negado",
		Message: "Você não tem permissão para acessar esta página.",
		Link:    guard.LoginRoute,
		LinkTxt: "Voltar",
	})
}

// NotFound はページが見つからない旨を表示する。
// GET /404
func (h *ViewHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.views.Render(w, http.StatusNotFound, viewStatus, statusView{
		Title:   "Página não encontrada",
		Message: "A página solicitada não existe.",
		Link:    guard.LoginRoute,
		LinkTxt: "Voltar",
	})
}

// RedirectNotFound は未定義のパスを/404にリダイレクトする。
func (h *ViewHandler) RedirectNotFound(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, guard.NotFoundRoute, http.StatusFound)
}

func hasParam(path string) bool {
	return strings.Contains(path, "{")
}
