package app

import (
	"io"
	"os"
)

// Command はアプリケーションのサブコマンドを表す。
type Command string

const (
	// CommandServe はコンソールサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandLogin はCLIからログインし、資格情報を保存することを示す。
	CommandLogin Command = "login"
	// CommandLogout は保存済みの資格情報を破棄することを示す。
	CommandLogout Command = "logout"
	// CommandWhoami は保存済みセッションのユーザーを表示することを示す。
	CommandWhoami Command = "whoami"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// needsConsole はセッション関連の依存関係の構築が必要かを返す。
func (c Command) needsConsole() bool {
	switch c {
	case CommandServe, CommandLogin, CommandLogout, CommandWhoami:
		return true
	default:
		return false
	}
}

// Options はサブコマンドの入出力と引数をまとめる。
type Options struct {
	// Stdout はコマンドの結果の出力先。
	Stdout io.Writer
	// Logs はJSONログの出力先。nilの場合はos.Stderr。
	Logs io.Writer
	// LogLevel はLOG_LEVELより優先するログレベル。
	LogLevel string

	// login用
	Username string
	Password string
}

func (o Options) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}
