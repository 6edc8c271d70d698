package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/backoffice/internal/model"
)

// 固定のエラーメッセージ
const (
	internalErrorMessage = "Erro interno. Tente novamente mais tarde."
	csrfErrorMessage     = "Falha na validação do token CSRF."
	rateLimitMessage     = "Muitas tentativas. Aguarde e tente novamente."
)

// ErrorResponseBody はエラーレスポンスの統一フォーマット。
// model.APIErrorと同じ{status, message}の形を持つ。
type ErrorResponseBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// apiErr.Statusが0（応答なし）の場合もstatusCodeをHTTPステータスとして使用する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	message := model.DefaultErrorMessage
	if apiErr != nil && apiErr.Message != "" {
		message = apiErr.Message
	}
	status := statusCode
	if apiErr != nil && apiErr.Status != 0 {
		status = apiErr.Status
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Status:  status,
		Message: message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Status:  http.StatusInternalServerError,
		Message: internalErrorMessage,
	})
}

func csrfRejectedError() *model.APIError {
	return &model.APIError{Status: http.StatusForbidden, Message: csrfErrorMessage}
}
