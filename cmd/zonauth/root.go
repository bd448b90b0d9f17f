package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/udisondev/zonauth/internal/appdir"
	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/client"
	"github.com/udisondev/zonauth/pkg/config"
	"github.com/udisondev/zonauth/pkg/credential"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/native"
)

var flags struct {
	envFile string
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "zonauth",
	Short: "zonauth client",
	Long: `zonauth настраивает клиентское окружение и проходит аутентификацию
на сервере зоны.

Окружение хранится в environment.yaml директории приложения,
пароль — в обфусцированном файле рядом с ним.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if flags.verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env", "", "path to environment file (default: XDG config dir)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func envPath() string {
	if flags.envFile != "" {
		return flags.envFile
	}
	return appdir.EnvironmentPath()
}

func loadEnv() (*config.ClientConfig, error) {
	env, err := config.LoadClient(envPath())
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return env, nil
}

// connectOptions переводит окружение в опции подключения.
func connectOptions(env *config.ClientConfig) []client.ConnectOption {
	opts := []client.ConnectOption{client.WithDialTimeout(env.Timeout)}
	if env.CAFile != "" {
		opts = append(opts, client.WithCACertFile(env.CAFile))
	}
	if env.ServerName != "" {
		opts = append(opts, client.WithServerName(env.ServerName))
	}
	if env.InsecureSkipVerify {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	return opts
}

// authenticate проходит handshake с секретом из src.
func authenticate(ctx context.Context, env *config.ClientConfig, src native.SecretSource) (*auth.Session, error) {
	if env.Scheme != native.Name {
		return nil, fmt.Errorf("unsupported scheme %q", env.Scheme)
	}

	proxy := identity.User{Name: env.User, Zone: env.Zone}
	target := identity.User{Name: env.ClientUser, Zone: env.ClientZone}

	ctx, cancel := context.WithTimeout(ctx, env.Timeout)
	defer cancel()

	conn, sess, err := client.Login(ctx, env.Addr(), native.New(native.WithSecrets(src)), proxy, target, connectOptions(env)...)
	if err != nil {
		return nil, err
	}
	if err := conn.Close(); err != nil {
		slog.Debug("zonauth: close connection", "error", err)
	}
	return sess, nil
}

func newStore(env *config.ClientConfig) *credential.Store {
	return credential.NewStore(env.AuthFile)
}
