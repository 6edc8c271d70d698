// Package apierror はHTTP失敗を正規化済みエラー（model.APIError）に変換する。
//
// 変換はAPIクライアントの境界で一度だけ行う。
// 抽出順序: レスポンスボディのメッセージ項目 → トランスポート層のメッセージ → 固定のフォールバック。
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/backoffice/internal/model"
)

// bodyMessageFields はレスポンスボディから参照するメッセージ項目（優先順）。
// "mensage"はバックエンドの標準エラー形式の綴りに合わせている。
var bodyMessageFields = []string{"mensage", "message", "error"}

// HTTPError はバックエンドが2xx以外を返したことを表す未正規化のエラー。
type HTTPError struct {
	StatusCode int
	Status     string // "401 Unauthorized" 形式
	Body       []byte
}

// Error はerrorインターフェースを実装する。
func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned %s", e.statusLine())
}

// statusLine はトランスポート層のメッセージを返す。
func (e *HTTPError) statusLine() string {
	if e.Status != "" {
		return e.Status
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return fmt.Sprintf("%d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("%d", e.StatusCode)
}

// Normalize はデフォルトのフォールバックメッセージで正規化する。
func Normalize(err error) *model.APIError {
	return NormalizeWithFallback(err, model.DefaultErrorMessage)
}

// NormalizeWithFallback はerrを正規化する。
// 既に正規化済みのエラーはそのまま返す（二重正規化しない）。
// 応答を受信していない失敗はステータス0とフォールバックメッセージになる。
// 戻り値のMessageは空にならない。
func NormalizeWithFallback(err error, fallback string) *model.APIError {
	if strings.TrimSpace(fallback) == "" {
		fallback = model.DefaultErrorMessage
	}
	if err == nil {
		return &model.APIError{Message: fallback}
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		if strings.TrimSpace(apiErr.Message) == "" {
			return &model.APIError{Status: apiErr.Status, Message: fallback}
		}
		return apiErr
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		if msg := messageFromBody(httpErr.Body); msg != "" {
			return &model.APIError{Status: httpErr.StatusCode, Message: msg}
		}
		if line := httpErr.statusLine(); line != "" {
			return &model.APIError{Status: httpErr.StatusCode, Message: line}
		}
		return &model.APIError{Status: httpErr.StatusCode, Message: fallback}
	}

	// ネットワーク障害・タイムアウト・キャンセルなど応答のない失敗
	return &model.APIError{Message: fallback}
}

// messageFromBody はJSONボディからメッセージ項目を抽出する。
// JSONでない場合や該当項目がない場合は空文字列を返す。
func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}

	for _, key := range bodyMessageFields {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case float64, bool:
			return fmt.Sprint(val)
		}
	}
	return ""
}
