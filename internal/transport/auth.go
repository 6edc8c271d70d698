// Package transport はバックエンドへの送信リクエストに作用するhttp.RoundTripperを提供する。
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// requestIDHeader は信頼済みバックエンドへのリクエストに付与する相関ID。
const requestIDHeader = "X-Request-ID"

// Decision はリクエストに認証情報を付与するかの判定結果。
type Decision string

const (
	DecisionPreflight Decision = "preflight" // OPTIONSはそのまま通す
	DecisionPublic    Decision = "public"    // 公開エンドポイント
	DecisionExternal  Decision = "external"  // 信頼済みオリジン以外
	DecisionExplicit  Decision = "explicit"  // 既にAuthorizationを持つ
	DecisionAttached  Decision = "attached"  // ベアラートークンを付与した
	DecisionAnonymous Decision = "anonymous" // トークンがなく、そのまま送信した
)

// TokenSource は現在のベアラートークンを返す。トークンがない場合は空文字列。
type TokenSource interface {
	Token(ctx context.Context) string
}

// TokenSourceFunc は関数をTokenSourceとして扱うためのアダプタ。
type TokenSourceFunc func(ctx context.Context) string

// Token はfを呼び出す。
func (f TokenSourceFunc) Token(ctx context.Context) string { return f(ctx) }

// DecisionRecorder は判定結果の記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type DecisionRecorder interface {
	RecordOutboundRequest(decision string)
}

// IsPublicPath は認証情報を付与しない公開パスかを判定する。
// /api/auth を含むパス、/assets/ 配下、.json で終わるパスが対象。
func IsPublicPath(path string) bool {
	return strings.Contains(path, "/api/auth") ||
		strings.Contains(path, "/assets/") ||
		strings.HasSuffix(path, ".json")
}

// AuthTransport は信頼済みバックエンド宛てのリクエストにベアラートークンを付与する。
// 元のリクエストは変更せず、付与が必要な場合のみクローンする。
type AuthTransport struct {
	base     http.RoundTripper
	trusted  *url.URL
	tokens   TokenSource
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewAuthTransport はAuthTransportを生成する。
// apiBaseURLは信頼済みAPIのオリジン（パスを含む場合はそのプレフィックス）を指定する。
// baseがnilの場合はhttp.DefaultTransportを使用する。
func NewAuthTransport(base http.RoundTripper, apiBaseURL string, tokens TokenSource, recorder DecisionRecorder, logger *slog.Logger) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}

	trusted, err := url.Parse(strings.TrimRight(apiBaseURL, "/"))
	if err != nil || trusted.Host == "" {
		trusted = nil
	}

	return &AuthTransport{
		base:     base,
		trusted:  trusted,
		tokens:   tokens,
		recorder: recorder,
		logger:   logger,
	}
}

// Decide はリクエストへの認証情報付与の判定を行う（先勝ち）。
// トークンの有無に依存する最終判定（attached/anonymous）は行わず、空文字列を返す。
func (t *AuthTransport) Decide(req *http.Request) Decision {
	// 1. プリフライト
	if req.Method == http.MethodOptions {
		return DecisionPreflight
	}

	// 2. 公開エンドポイント
	if req.URL != nil && IsPublicPath(req.URL.Path) {
		return DecisionPublic
	}

	// 3. 絶対URLで信頼済みオリジン外
	if t.isExternal(req.URL) {
		return DecisionExternal
	}

	// 4. 明示的な認証ヘッダー
	if req.Header.Get("Authorization") != "" {
		return DecisionExplicit
	}

	return ""
}

// RoundTrip はhttp.RoundTripperを実装する。
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := t.Decide(req)

	out := req
	if decision == "" {
		token := ""
		if t.tokens != nil {
			token = t.tokens.Token(req.Context())
		}

		out = req.Clone(req.Context())
		if token != "" {
			out.Header.Set("Authorization", "Bearer "+token)
			decision = DecisionAttached
		} else {
			// トークンなしでも送信し、拒否するかはバックエンドに任せる
			decision = DecisionAnonymous
		}
		if out.Header.Get(requestIDHeader) == "" {
			out.Header.Set(requestIDHeader, uuid.NewString())
		}
	}

	if t.recorder != nil {
		t.recorder.RecordOutboundRequest(string(decision))
	}
	t.logger.Debug("outbound request",
		slog.String("method", req.Method),
		slog.String("host", hostOf(req.URL)),
		slog.String("path", pathOf(req.URL)),
		slog.String("decision", string(decision)),
	)

	return t.base.RoundTrip(out)
}

// isExternal はURLが絶対URLで、信頼済みオリジン外かを判定する。
// 相対URLは常に信頼済みとみなす。信頼済みオリジンが未設定なら絶対URLはすべて外部。
func (t *AuthTransport) isExternal(u *url.URL) bool {
	if u == nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if t.trusted == nil {
		return true
	}

	if !strings.EqualFold(scheme, t.trusted.Scheme) || !strings.EqualFold(u.Host, t.trusted.Host) {
		return true
	}

	prefix := strings.TrimRight(t.trusted.Path, "/")
	if prefix == "" {
		return false
	}
	return u.Path != prefix && !strings.HasPrefix(u.Path, prefix+"/")
}

func hostOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Host
}

func pathOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Path
}

var _ http.RoundTripper = (*AuthTransport)(nil)
