package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfg *Config

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "gpctl",
		Short: "CLI tool for the game lobby",
		Long: `gpctl talks to the game lobby over its TCP protocol and to the lobby's
status API.

It covers accounts, room status, invites, the game marketplace, reviews
and live room events. Use play to stay logged in and create, join and
play rooms.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.Lobby, "lobby", cfg.Lobby, "Lobby address host:port (env: GAMELOBBY_CLIENT_LOBBY)")
	rootCmd.PersistentFlags().StringVar(&cfg.API, "api", cfg.API, "Status API URL (env: GAMELOBBY_CLIENT_API)")
	rootCmd.PersistentFlags().StringVarP(&cfg.User, "user", "u", cfg.User, "Username (env: GAMELOBBY_USER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Password, "password", "p", cfg.Password, "Password (env: GAMELOBBY_PASSWORD)")
	rootCmd.PersistentFlags().StringVar(&cfg.Realm, "realm", cfg.Realm, "Realm: player, developer")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Downloaded games cache")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newInvitesCmd())
	rootCmd.AddCommand(newPlayCmd())
	rootCmd.AddCommand(newGamesCmd())
	rootCmd.AddCommand(newReviewsCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
