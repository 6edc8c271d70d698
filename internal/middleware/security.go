package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

// consoleCSP はコンソールのビュー向けのContent-Security-Policy。
// ビューは外部リソースを読み込まず、フォームの送信先は自オリジンのみ。
const consoleCSP = "default-src 'self'; form-action 'self'; base-uri 'none'; frame-ancestors 'none'"

// hstsValue はHTTPSで公開する場合のStrict-Transport-Security。
const hstsValue = "max-age=31536000"

// panicMessage はHTMLビューへのpanic時に返す本文。
const panicMessage = internalErrorMessage + "\n"

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。
// /api/*、/session*およびJSONを要求するリクエストにはJSON、それ以外にはテキストで応答する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// リバースプロキシの中断は再送出する
					panic(rec)
				}
				logger.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				if expectsJSON(r) {
					WriteInternalServerError(w)
					return
				}
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(panicMessage))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// /api/*はバックエンドのキャッシュ指定をそのまま返すため、Cache-Controlを付与しない。
// httpsがtrueの場合はHSTSを付与する。
func NewSecurityHeadersMiddleware(https bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", consoleCSP)
			if !isAPIPath(r.URL.Path) {
				h.Set("Cache-Control", "no-store")
			}
			if https {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// expectsJSON はJSONで応答すべきリクエストかを判定する。
func expectsJSON(r *http.Request) bool {
	if isAPIPath(r.URL.Path) || strings.HasPrefix(r.URL.Path, "/session") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
