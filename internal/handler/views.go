package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// ビュー名
const (
	viewLogin  = "login.html"
	viewPage   = "page.html"
	viewStatus = "status.html"
)

// navItem はナビゲーションに表示するルート。
type navItem struct {
	Path  string
	Title string
}

// loginView はログイン画面のテンプレートデータ。
type loginView struct {
	CSRFField string
	CSRFToken string
	Username  string
	Error     string
	Loading   bool
}

// pageView は保護ビューのテンプレートデータ。
type pageView struct {
	Title     string
	Path      string
	Username  string
	Name      string
	Company   string
	Roles     []string
	Nav       []navItem
	CSRFField string
	CSRFToken string
}

// statusView はエラーページのテンプレートデータ。
type statusView struct {
	Title   string
	Message string
	Link    string
	LinkTxt string
}

// Views は埋め込みテンプレートを描画する。
type Views struct {
	tmpl   *template.Template
	logger *slog.Logger
}

// NewViews は埋め込みテンプレートを解析してViewsを生成する。
func NewViews(logger *slog.Logger) (*Views, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Views{tmpl: tmpl, logger: logger}, nil
}

// Render はテンプレートをバッファに描画してから書き込む。
// 描画に失敗した場合は途中までのHTMLを送らず500を返す。
func (v *Views) Render(w http.ResponseWriter, statusCode int, name string, data any) {
	var buf bytes.Buffer
	if err := v.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		v.logger.Error("failed to render view",
			slog.String("view", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	buf.WriteTo(w)
}
