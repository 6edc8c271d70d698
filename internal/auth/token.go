// Package auth は起動時のハイドレーションとログインフローを提供する。
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/backoffice/internal/session"
)

// ErrNoExpiry はトークンがJWTでない、またはexpクレームを持たないことを表す。
var ErrNoExpiry = errors.New("token has no expiry claim")

// CachedTokenReader は永続化済みスナップショットからトークンを読み取る。
// credstore.Storeが実装する。
type CachedTokenReader interface {
	Token(ctx context.Context) string
}

// SessionTokenSource はメモリ上のセッションを優先し、
// なければ永続化済みスナップショットのトークンを返す。
type SessionTokenSource struct {
	Session session.Reader
	Cache   CachedTokenReader
}

// Token はtransport.TokenSourceを実装する。
func (s SessionTokenSource) Token(ctx context.Context) string {
	if s.Session != nil {
		if token := s.Session.Snapshot().Token(); token != "" {
			return token
		}
	}
	if s.Cache != nil {
		return s.Cache.Token(ctx)
	}
	return ""
}

// TokenExpiry はJWTのexpクレームを署名検証なしで取り出す。
// 署名鍵はバックエンドのみが持つため、表示と警告の用途に限って使用する。
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, errors.Join(ErrNoExpiry, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}
