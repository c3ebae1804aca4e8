package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby-go/internal/client"
)

func newGamesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "games",
		Short: "Marketplace commands",
	}

	cmd.AddCommand(newGamesListCmd())
	cmd.AddCommand(newGamesMineCmd())
	cmd.AddCommand(newGamesPublishCmd("upload", "Publish a new game", false))
	cmd.AddCommand(newGamesPublishCmd("update", "Publish a new version of your game", true))
	cmd.AddCommand(newGamesDeleteCmd())
	cmd.AddCommand(newGamesDownloadCmd())

	return cmd
}

func newGamesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List published games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				listings, err := c.ListGames(ctx)
				if err != nil {
					return err
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).Print(listings)
				return nil
			})
		},
	}
}

func newGamesMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List the games you published (developer realm)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				listings, err := c.ListOwnGames(ctx)
				if err != nil {
					return err
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).Print(listings)
				return nil
			})
		},
	}
}

func newGamesPublishCmd(use, short string, update bool) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   use + " <name> <file>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[1]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				var published client.Published
				if update {
					published, err = c.Update(ctx, name, description, data)
				} else {
					published, err = c.Upload(ctx, name, description, data)
				}
				if err != nil {
					return err
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).Print(published)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Game description")
	return cmd
}

func newGamesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a game you published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				finished, err := c.DeleteGame(ctx, args[0])
				if err != nil {
					return err
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage(
					fmt.Sprintf("Deleted %s; %d room(s) finished", args[0], len(finished)))
				return nil
			})
		},
	}
}

func newGamesDownloadCmd() *cobra.Command {
	var version string
	var outPath string

	cmd := &cobra.Command{
		Use:   "download <name>",
		Short: "Download a game into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cache, err := client.OpenCache(cfg.CacheDir)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				artifact, err := c.Download(ctx, name, version)
				if err != nil {
					return err
				}
				if err := cache.Store(artifact.Name, artifact.Version, artifact.Data); err != nil {
					return err
				}
				dest := cache.Path(artifact.Name)
				if outPath != "" {
					if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
						return err
					}
					if err := os.WriteFile(outPath, artifact.Data, 0o644); err != nil {
						return err
					}
					dest = outPath
				}
				NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage(
					fmt.Sprintf("Downloaded %s version %s (%d bytes) to %s", artifact.Name, artifact.Version, len(artifact.Data), dest))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Version token (default: current)")
	cmd.Flags().StringVarP(&outPath, "out", "O", "", "Also write the bytes to this path")
	return cmd
}
