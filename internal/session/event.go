package session

import "github.com/hitoshi/backoffice/internal/model"

// Event はセッションの状態遷移を引き起こすイベント。
type Event interface {
	// Name はログとメトリクスで使用するイベント名を返す。
	Name() string
}

// InitStart は起動時のハイドレーション開始を表す。
type InitStart struct{}

// InitSuccess はハイドレーションでプロファイルを取得できたことを表す。
type InitSuccess struct {
	Profile *model.UserProfile
}

// InitFailure はハイドレーションでプロファイルを取得できなかったことを表す。
type InitFailure struct{}

// LoginStart はログイン試行の開始を表す。パスワードは保持しない。
type LoginStart struct {
	Username string
}

// LoginSuccess はログイン成功を表す。
type LoginSuccess struct {
	Profile *model.UserProfile
}

// LoginFailure は正規化済みエラーによるログイン失敗を表す。
type LoginFailure struct {
	Err *model.APIError
}

// Logout はサインアウトを表す。どの状態からでも受け付ける。
type Logout struct{}

func (InitStart) Name() string    { return "init_start" }
func (InitSuccess) Name() string  { return "init_success" }
func (InitFailure) Name() string  { return "init_failure" }
func (LoginStart) Name() string   { return "login_start" }
func (LoginSuccess) Name() string { return "login_success" }
func (LoginFailure) Name() string { return "login_failure" }
func (Logout) Name() string       { return "logout" }
