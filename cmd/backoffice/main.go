// Command backoffice はバックオフィスコンソールのエントリーポイント。
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hitoshi/backoffice/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	run := func(command app.Command, opts func(*app.Options) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			o := app.Options{
				Stdout:   cmd.OutOrStdout(),
				Logs:     cmd.ErrOrStderr(),
				LogLevel: logLevel,
			}
			if opts != nil {
				if err := opts(&o); err != nil {
					return err
				}
			}
			return app.Run(cmd.Context(), command, o)
		}
	}

	root := &cobra.Command{
		Use:           "backoffice",
		Short:         "Console de backoffice: sessão, login e proxy da API",
		SilenceUsage:  true,
		SilenceErrors: true,
		// サブコマンドなしの起動はserveとして扱う
		RunE: run(app.CommandServe, nil),
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Nível de log (debug, info, warn, error); sobrepõe LOG_LEVEL")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Inicia o servidor do console",
			Args:  cobra.NoArgs,
			RunE:  run(app.CommandServe, nil),
		},
		loginCmd(run),
		&cobra.Command{
			Use:   "logout",
			Short: "Encerra a sessão salva",
			Args:  cobra.NoArgs,
			RunE:  run(app.CommandLogout, nil),
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Mostra o usuário da sessão salva",
			Args:  cobra.NoArgs,
			RunE:  run(app.CommandWhoami, nil),
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Aplica as migrações do armazenamento de credenciais (Postgres)",
			Args:  cobra.NoArgs,
			RunE:  run(app.CommandMigrate, nil),
		},
		&cobra.Command{
			Use:   "healthcheck",
			Short: "Verifica o endpoint /health do servidor local",
			Args:  cobra.NoArgs,
			RunE:  run(app.CommandHealthcheck, nil),
		},
	)

	return root
}

func loginCmd(run func(app.Command, func(*app.Options) error) func(*cobra.Command, []string) error) *cobra.Command {
	var (
		username      string
		password      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Autentica no backend e salva a sessão",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = run(app.CommandLogin, func(o *app.Options) error {
		o.Username = username
		o.Password = password
		if passwordStdin {
			p, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			o.Password = p
		}
		return nil
	})

	cmd.Flags().StringVarP(&username, "username", "u", "", "Usuário")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Senha (prefira --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Lê a senha da entrada padrão")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	return cmd
}

// readPassword は標準入力の最初の行をパスワードとして読み取る。
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
