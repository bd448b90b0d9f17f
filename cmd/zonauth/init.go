package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/udisondev/zonauth/pkg/config"
	"github.com/udisondev/zonauth/pkg/credential"
	"github.com/udisondev/zonauth/pkg/identity"
)

var initFlags struct {
	host       string
	port       int
	user       string
	zone       string
	caFile     string
	serverName string
	insecure   bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Configure the environment and store the password",
	Long: `init записывает окружение клиента, запрашивает пароль, проверяет его
на сервере и сохраняет в обфусцированном файле.`,
	RunE: runInit,
}

func init() {
	f := initCmd.Flags()
	f.StringVar(&initFlags.host, "host", "", "server host")
	f.IntVar(&initFlags.port, "port", 0, "server port")
	f.StringVar(&initFlags.user, "user", "", "user name (name or name#zone)")
	f.StringVar(&initFlags.zone, "zone", "", "zone name")
	f.StringVar(&initFlags.caFile, "ca-file", "", "CA certificate of the server (PEM)")
	f.StringVar(&initFlags.serverName, "server-name", "", "expected TLS server name")
	f.BoolVar(&initFlags.insecure, "insecure", false, "skip server certificate verification")
}

// applyInitFlags переносит заданные флаги в окружение.
func applyInitFlags(env *config.ClientConfig) error {
	if initFlags.host != "" {
		env.Host = initFlags.host
	}
	if initFlags.port != 0 {
		env.Port = initFlags.port
	}
	if initFlags.user != "" {
		u, err := identity.Parse(initFlags.user)
		if err != nil {
			return fmt.Errorf("parse user: %w", err)
		}
		env.User = u.Name
		if u.Zone != "" {
			env.Zone = u.Zone
		}
	}
	if initFlags.zone != "" {
		env.Zone = initFlags.zone
	}
	if initFlags.caFile != "" {
		env.CAFile = initFlags.caFile
	}
	if initFlags.serverName != "" {
		env.ServerName = initFlags.serverName
	}
	if initFlags.insecure {
		env.InsecureSkipVerify = true
	}
	return env.Validate()
}

func runInit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// 1. Окружение
	env, err := loadEnv()
	if err != nil {
		return err
	}
	if err := applyInitFlags(env); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	// 2. Пароль
	user := identity.User{Name: env.User, Zone: env.Zone}
	var password []byte
	if !user.IsAnonymous() {
		prompter := credential.NewTerminalPrompter(os.Stdin, cmd.ErrOrStderr())
		password, err = prompter.ReadSecret(ctx, credential.PromptLabel)
		if err != nil {
			return err
		}
		defer clear(password)
	}

	// 3. Проверка на сервере
	sess, err := authenticate(ctx, env, credential.Fixed(password))
	if err != nil {
		return fmt.Errorf("authenticate %s: %w", user, err)
	}

	// 4. Сохранение
	path := envPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create environment directory: %w", err)
	}
	if err := config.SaveClient(path, env); err != nil {
		return err
	}
	if !user.IsAnonymous() {
		if err := newStore(env).Save(password); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Authenticated as %s (session %s)\n", user, sess.Signature())
	fmt.Fprintf(cmd.OutOrStdout(), "Environment: %s\n", path)
	return nil
}
