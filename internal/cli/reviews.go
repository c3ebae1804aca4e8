package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby-go/internal/client"
)

func newReviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Review commands",
	}

	cmd.AddCommand(newReviewsListCmd())
	cmd.AddCommand(newReviewsAddCmd())

	return cmd
}

func newReviewsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <game>",
		Short: "Show the reviews of a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				list, summary, err := c.Reviews(ctx, args[0])
				if err != nil {
					return err
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).Print(ReviewList{Game: args[0], Summary: summary, Reviews: list})
				return nil
			})
		},
	}
}

func newReviewsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <game> <rating 1-5> [comment]",
		Short: "Review a game",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return err
			}
			comment := ""
			if len(args) == 3 {
				comment = args[2]
			}
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				review, err := c.LeaveReview(ctx, args[0], rating, comment)
				if err != nil {
					return err
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).Print(review)
				return nil
			})
		},
	}
}
