// Package security はバックエンド由来の文字列を表示用に無害化する。
//
// バックエンドのエラーメッセージはそのままログインビューやJSONに表示されるため、
// bluemondayの厳格なポリシーでHTMLタグを除去し、プレーンテキストとして扱う。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxMessageRunes は表示するメッセージの最大文字数。
const maxMessageRunes = 300

// MessageSanitizer はエラーメッセージのサニタイズを行う。
// bluemondayのポリシーはスレッドセーフなため、1つのインスタンスを共有できる。
type MessageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerを生成する。
// すべてのタグと属性を除去するStrictPolicyを使用する。
func NewMessageSanitizer() *MessageSanitizer {
	return &MessageSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメッセージからHTMLを除去し、空白を正規化したプレーンテキストを返す。
// 出力側（html/template、JSON）で改めてエスケープされるため、エンティティは復元する。
// 最大文字数を超える部分は切り詰める。同一入力に対して常に同一出力を返す。
func (s *MessageSanitizer) Sanitize(message string) string {
	if message == "" {
		return ""
	}

	text := html.UnescapeString(s.policy.Sanitize(message))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > maxMessageRunes {
		runes := []rune(text)
		text = string(runes[:maxMessageRunes]) + "…"
	}
	return text
}

// SanitizeOr はサニタイズ結果が空の場合にfallbackを返す。
func (s *MessageSanitizer) SanitizeOr(message, fallback string) string {
	if text := s.Sanitize(message); text != "" {
		return text
	}
	return fallback
}
