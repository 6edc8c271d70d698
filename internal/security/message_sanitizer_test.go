package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMessageSanitizer_Sanitize(t *testing.T) {
	s := NewMessageSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Credenciais inválidas", "Credenciais inválidas"},
		{"空文字列", "", ""},
		{"タグを除去", "<b>Usuário</b> bloqueado", "Usuário bloqueado"},
		{"scriptを除去", "Erro<script>alert(1)</script>", "Erro"},
		{"イベント属性ごと除去", `<img src=x onerror="alert(1)">Falha`, "Falha"},
		{"エンティティを復元", "Senha d&#39;acesso &amp; usuário", "Senha d'acesso & usuário"},
		{"空白を正規化", "  Falha\n\tao   autenticar  ", "Falha ao autenticar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMessageSanitizer_Truncates(t *testing.T) {
	s := NewMessageSanitizer()

	got := s.Sanitize(strings.Repeat("á", maxMessageRunes+50))
	if n := utf8.RuneCountInString(got); n != maxMessageRunes+1 {
		t.Errorf("rune count = %d, want %d", n, maxMessageRunes+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated message should end with ellipsis: %q", got[len(got)-8:])
	}
}

func TestMessageSanitizer_Idempotent(t *testing.T) {
	s := NewMessageSanitizer()
	input := "<p>Erro &amp; falha</p>"

	first := s.Sanitize(input)
	if second := s.Sanitize(first); second != first {
		t.Errorf("Sanitize is not idempotent: %q -> %q", first, second)
	}
}

func TestMessageSanitizer_SanitizeOr(t *testing.T) {
	s := NewMessageSanitizer()

	if got := s.SanitizeOr("<br/>", "Falha ao autenticar."); got != "Falha ao autenticar." {
		t.Errorf("SanitizeOr = %q, want fallback", got)
	}
	if got := s.SanitizeOr("Bloqueado", "fallback"); got != "Bloqueado" {
		t.Errorf("SanitizeOr = %q, want %q", got, "Bloqueado")
	}
}
