// Package model はドメインモデルを定義する。
package model

import "fmt"

// 定義済みのフォールバックメッセージ
const (
	// DefaultErrorMessage は抽出できるメッセージがない場合に使用する。
	DefaultErrorMessage = "Erro ao processar a requisição."
	// LoginErrorMessage はログイン失敗時のフォールバックメッセージ。
	LoginErrorMessage = "Falha ao autenticar."
)

// APIError は正規化済みのエラーを表す。
// すべてのHTTP失敗はこの形に変換されてから呼び出し元に届く。
type APIError struct {
	Status  int    `json:"status,omitempty"` // HTTPステータス。応答を受信していない場合は0
	Message string `json:"message"`          // 空にならない
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("[%d] %s", e.Status, e.Message)
}

// HasStatus は応答由来のステータスを保持しているかを返す。
func (e *APIError) HasStatus() bool {
	return e.Status != 0
}

// Clone はコピーを返す。nilにはnilを返す。
func (e *APIError) Clone() *APIError {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{Message: message}
}
