// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/backoffice/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// usernameContextKey はリクエストコンテキストにログイン中のユーザー名を格納するためのキー。
var usernameContextKey = contextKey("username")

// NewSessionMiddleware はセッションのスナップショットを読み取り、
// ログイン中であればユーザー名をリクエストコンテキストに注入するミドルウェアを返す。
// アクセス可否の判定は行わない（guard.Authorizerが担当する）。
func NewSessionMiddleware(reader session.Reader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := reader.Snapshot()
			if st.IsAuthenticated && st.Username() != "" {
				r = r.WithContext(ContextWithUsername(r.Context(), st.Username()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UsernameFromContext はリクエストコンテキストからユーザー名を取得する。
// 未ログインの場合は空文字列とfalseを返す。
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameContextKey).(string)
	if !ok || username == "" {
		return "", false
	}
	return username, true
}

// ContextWithUsername はコンテキストにユーザー名を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameContextKey, username)
}
