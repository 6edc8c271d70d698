// Package model はドメインモデルを定義する。
package model

import "slices"

// Company はオペレーターが所属する事業者を表す。
type Company struct {
	ID    int64  `json:"id"`
	Name  string `json:"nome"`
	TaxID string `json:"cpnj"`
}

// UserProfile はバックエンドの認証APIが返すオペレーター情報を表す。
// JSONタグはバックエンドのワイヤー形式（nome, empresa等）に合わせている。
type UserProfile struct {
	Token       string   `json:"token"`
	AccessToken string   `json:"accessToken,omitempty"`
	TokenType   string   `json:"tokenType,omitempty"`
	Type        string   `json:"type,omitempty"`
	Username    string   `json:"username"`
	Name        string   `json:"nome"`
	Email       string   `json:"email"`
	Company     Company  `json:"empresa"`
	Roles       []string `json:"roles"`
}

// BearerToken はリクエストに付与するトークンを返す。
// tokenが空の場合はaccessTokenを使用する。
func (p *UserProfile) BearerToken() string {
	if p == nil {
		return ""
	}
	if p.Token != "" {
		return p.Token
	}
	return p.AccessToken
}

// HasAnyRole は指定ロールのいずれかを保持しているかを返す。
func (p *UserProfile) HasAnyRole(roles []string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if slices.Contains(roles, r) {
			return true
		}
	}
	return false
}

// Clone はディープコピーを返す。nilにはnilを返す。
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Roles = slices.Clone(p.Roles)
	return &c
}

// PersistedSession は資格情報ストアに保存されるセッションのスナップショット。
// 認証済みで確定した状態のみを保持し、ローディング中の状態は保存しない。
type PersistedSession struct {
	Token string       `json:"token,omitempty"`
	User  *UserProfile `json:"user,omitempty"`
}
