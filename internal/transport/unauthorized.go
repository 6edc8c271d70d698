package transport

import (
	"context"
	"log/slog"
	"net/http"
)

// UnauthorizedTransport は認証情報付きリクエストへの401応答を検知し、
// 有効化されている場合にコールバックを呼び出す。
// AuthTransportの内側（base）に配置し、付与済みのヘッダーを観測できるようにする。
type UnauthorizedTransport struct {
	base           http.RoundTripper
	enabled        bool
	onUnauthorized func(ctx context.Context)
	logger         *slog.Logger
}

// NewUnauthorizedTransport はUnauthorizedTransportを生成する。
// enabledがfalseの場合は応答を観測するだけで何もしない。
func NewUnauthorizedTransport(base http.RoundTripper, enabled bool, onUnauthorized func(ctx context.Context), logger *slog.Logger) *UnauthorizedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnauthorizedTransport{
		base:           base,
		enabled:        enabled,
		onUnauthorized: onUnauthorized,
		logger:         logger,
	}
}

// RoundTrip はhttp.RoundTripperを実装する。
func (t *UnauthorizedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if req.Header.Get("Authorization") == "" || IsPublicPath(req.URL.Path) {
		return resp, nil
	}

	t.logger.Warn("backend rejected credentials",
		slog.String("path", req.URL.Path),
		slog.Bool("auto_logout", t.enabled),
	)

	if t.enabled && t.onUnauthorized != nil {
		t.onUnauthorized(req.Context())
	}
	return resp, nil
}

var _ http.RoundTripper = (*UnauthorizedTransport)(nil)
