// Package session はオペレーターの認証セッション状態を保持する。
//
// 状態の変更は宣言済みのイベントをStore.Dispatchに渡すことでのみ行う。
// 遷移はReduceによる純粋関数で計算され、永続化などの副作用は
// Effectとして遷移の直後に同期的に実行される。
package session

import "github.com/hitoshi/backoffice/internal/model"

// Phase はセッションのステートマシン上の位置を表す。
type Phase string

const (
	PhaseAnonymous     Phase = "anonymous"
	PhaseHydrating     Phase = "hydrating"
	PhaseAuthenticated Phase = "authenticated"
	PhaseLoggingIn     Phase = "logging_in"
)

// State はプロセス内で唯一のセッションを表す。
type State struct {
	BaseURL         string             `json:"baseUrl"`
	UserDetails     *model.UserProfile `json:"userDetails"`
	IsAuthenticated bool               `json:"isAuthenticated"`
	Loading         bool               `json:"loading"`
	Error           *model.APIError    `json:"error"`
	Phase           Phase              `json:"phase"`
	Hydrated        bool               `json:"hydrated"`
}

// Initial はbaseURLを設定した初期状態を返す。
func Initial(baseURL string) State {
	return State{
		BaseURL: baseURL,
		Phase:   PhaseAnonymous,
	}
}

// Token は現在のベアラートークンを返す。未ログイン時は空文字列。
func (s State) Token() string {
	return s.UserDetails.BearerToken()
}

// Roles は保持しているロールを返す。
func (s State) Roles() []string {
	if s.UserDetails == nil {
		return nil
	}
	return s.UserDetails.Roles
}

// Username はログイン中のユーザー名を返す。
func (s State) Username() string {
	if s.UserDetails == nil {
		return ""
	}
	return s.UserDetails.Username
}

// clone はポインタフィールドをコピーした状態を返す。
func (s State) clone() State {
	s.UserDetails = s.UserDetails.Clone()
	s.Error = s.Error.Clone()
	return s
}

// settledPhase はローディング完了後のフェーズを返す。
func (s State) settledPhase() Phase {
	if s.IsAuthenticated {
		return PhaseAuthenticated
	}
	return PhaseAnonymous
}
