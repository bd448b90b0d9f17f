package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/udisondev/zonauth/pkg/credential"
	"github.com/udisondev/zonauth/pkg/identity"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the stored environment",
	Long: `login проходит аутентификацию с сохранённым паролем. Если пароль не
сохранён, он запрашивается с терминала.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		if err := env.Validate(); err != nil {
			return fmt.Errorf("invalid environment, run zonauth init: %w", err)
		}

		acq := credential.NewAcquirer(newStore(env), credential.NewTerminalPrompter(os.Stdin, cmd.ErrOrStderr()))
		sess, err := authenticate(cmd.Context(), env, acq)
		if err != nil {
			return err
		}

		user := identity.User{Name: env.User, Zone: env.Zone}
		fmt.Fprintf(cmd.OutOrStdout(), "Authenticated as %s (session %s)\n", user, sess.Signature())
		return nil
	},
}
