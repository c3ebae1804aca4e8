package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby-go/internal/model"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account with --user and --password in --realm",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout())
			defer cancel()

			c, err := connect(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Register(ctx, model.Realm(cfg.Realm), cfg.User, cfg.Password); err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage("Registered " + cfg.User + " as " + cfg.Realm)
			return nil
		},
	}
}
