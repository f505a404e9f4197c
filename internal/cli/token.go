package cli

import (
	"fmt"
	"time"

	"deskbridge/internal/models"
	"deskbridge/internal/services"

	"github.com/spf13/cobra"
)

// newTokenCommand mints view tokens. The HTTP surface has no token endpoint.
func newTokenCommand(opts *rootOptions) *cobra.Command {
	var view string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a token a view can use to connect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			auth, err := services.NewAuthService(services.AuthOptions{
				Secret:      cfg.Auth.Secret,
				SecretFile:  cfg.Auth.SecretFile,
				TokenExpiry: cfg.Auth.TokenExpiry,
			}, logger)
			if err != nil {
				return err
			}

			token, expiresAt, err := auth.GenerateToken(view)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "view:    %s\n", view)
			fmt.Fprintf(out, "expires: %s\n", expiresAt.Format(time.RFC3339))
			fmt.Fprintf(out, "token:   %s\n", token)
			fmt.Fprintf(out, "ws url:  ws://%s/ws?token=%s\n", cfg.Server.Addr, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", models.DefaultView, "label of the view the token is for")
	return cmd
}
