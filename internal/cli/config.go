package cli

import (
	"os"
	"time"

	"github.com/mcoot/gamelobby-go/internal/client"
	"github.com/mcoot/gamelobby-go/internal/config"
	"github.com/mcoot/gamelobby-go/internal/model"
)

// Config holds CLI configuration
type Config struct {
	Lobby    string
	API      string
	User     string
	Password string
	Realm    string
	Output   string
	CacheDir string
	Verbose  bool

	Client config.ClientConfig
}

// DefaultConfig returns a Config from the process configuration, falling
// back to built-in defaults when it cannot be loaded
func DefaultConfig() *Config {
	c, err := config.Load("")
	if err != nil {
		c = config.Default()
	}
	return &Config{
		Lobby:    c.Client.Lobby,
		API:      c.Client.API,
		User:     os.Getenv("GAMELOBBY_USER"),
		Password: os.Getenv("GAMELOBBY_PASSWORD"),
		Realm:    string(model.RealmPlayer),
		Output:   "text",
		CacheDir: c.Client.CacheDir,
		Client:   c.Client,
	}
}

// clientConfig returns the lobby client configuration for these settings
func (c *Config) clientConfig() client.Config {
	cc := client.DefaultConfig(c.Lobby)
	if c.Client.RequestTimeout > 0 {
		cc.RequestTimeout = c.Client.RequestTimeout
	}
	if c.Client.ReadyTimeout > 0 {
		cc.ReadyTimeout = c.Client.ReadyTimeout
	}
	if c.Client.DownloadTimeout > 0 {
		cc.DownloadTimeout = c.Client.DownloadTimeout
	}
	if c.Client.ConnectAttempts > 0 {
		cc.ConnectAttempts = c.Client.ConnectAttempts
	}
	if c.Client.ConnectInterval > 0 {
		cc.ConnectInterval = c.Client.ConnectInterval
	}
	return cc
}

// timeout bounds a whole command
func (c *Config) timeout() time.Duration {
	return c.clientConfig().DownloadTimeout + c.clientConfig().RequestTimeout
}
