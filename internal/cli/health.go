package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby-go/internal/api/response"
)

var errDegraded = errors.New("lobby degraded")

func newHealthCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check lobby health through the status API",
		Long: `Reports lobby sessions, running game instances and whether the database
answers. Exits non-zero when degraded. With --wait, polls until healthy or
the wait runs out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := checkHealth(cmd.Context(), NewAPIClient(cfg.API), wait)
			if result.Status != "" {
				NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Keep polling until healthy for up to this long")
	return cmd
}

func checkHealth(ctx context.Context, client *APIClient, wait time.Duration) (response.Health, error) {
	var result response.Health
	check := func() error {
		result = response.Health{}
		if err := client.Get(ctx, "/api/v1/health", &result); err != nil {
			return err
		}
		if result.Status != "ok" {
			return fmt.Errorf("%w: database %s", errDegraded, result.Database)
		}
		return nil
	}
	if wait <= 0 {
		err := check()
		return result, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = wait
	err := backoff.Retry(check, backoff.WithContext(policy, ctx))
	return result, err
}
