package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby-go/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show rooms and online users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				report, err := c.Status(ctx)
				if err != nil {
					return err
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).Print(report)
				return nil
			})
		},
	}
}

func newInvitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invites",
		Short: "List pending invites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				invites, err := c.Invites(ctx)
				if err != nil {
					return err
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).Print(invites)
				return nil
			})
		},
	}
}
