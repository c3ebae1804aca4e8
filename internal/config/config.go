// Package config loads process configuration for the lobby, the database
// and the client. Values are layered: defaults, then an optional YAML
// file, then a .env file, then GAMELOBBY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "GAMELOBBY"

// Config is the full configuration of all processes
type Config struct {
	Lobby       LobbyConfig       `mapstructure:"lobby"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Game        GameConfig        `mapstructure:"game"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Auth        AuthConfig        `mapstructure:"auth"`
	API         APIConfig         `mapstructure:"api"`
	Client      ClientConfig      `mapstructure:"client"`
	Log         LogConfig         `mapstructure:"log"`
}

// LobbyConfig configures the client-facing lobby listener
type LobbyConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	MaxFrameSize    int           `mapstructure:"max_frame_size"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	UploadTimeout   time.Duration `mapstructure:"upload_timeout"`
	CloseAckTimeout time.Duration `mapstructure:"close_ack_timeout"`
	HubCleanup      time.Duration `mapstructure:"hub_cleanup"`
}

// DatabaseConfig configures the database backend listener
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	MaxFrameSize     int           `mapstructure:"max_frame_size"`
	HistorySize      int           `mapstructure:"history_size"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
	HistoryPrune     time.Duration `mapstructure:"history_prune"`
}

// MarketplaceConfig configures where artifact bytes live
type MarketplaceConfig struct {
	// BlobStore is "local" or "s3"
	BlobStore       string   `mapstructure:"blob_store"`
	Dir             string   `mapstructure:"dir"`
	MaxArtifactSize int64    `mapstructure:"max_artifact_size"`
	S3              S3Config `mapstructure:"s3"`
}

// S3Config configures the S3 blob store
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// GameConfig configures game instances
type GameConfig struct {
	ListenHost    string        `mapstructure:"listen_host"`
	AdvertiseHost string        `mapstructure:"advertise_host"`
	PortMin       int           `mapstructure:"port_min"`
	PortMax       int           `mapstructure:"port_max"`
	TickMs        int           `mapstructure:"tick_ms"`
	BagRule       string        `mapstructure:"bag_rule"`
	Encoding      string        `mapstructure:"encoding"`
	JoinTimeout   time.Duration `mapstructure:"join_timeout"`
	TicketSecret  string        `mapstructure:"ticket_secret"`
	TicketTTL     time.Duration `mapstructure:"ticket_ttl"`
}

// StorageConfig selects the durable store behind the database backend
type StorageConfig struct {
	// Type is "memory", "redis" or "postgres"
	Type        string `mapstructure:"type"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// AuthConfig configures password hashing
type AuthConfig struct {
	// PasswordHash is "bcrypt" or "sha256"
	PasswordHash string `mapstructure:"password_hash"`
	BcryptCost   int    `mapstructure:"bcrypt_cost"`
}

// APIConfig configures the status API
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// ClientConfig configures the command line client
type ClientConfig struct {
	Lobby           string        `mapstructure:"lobby"`
	API             string        `mapstructure:"api"`
	CacheDir        string        `mapstructure:"cache_dir"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectInterval time.Duration `mapstructure:"connect_interval"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Lobby: LobbyConfig{
			Host:            "0.0.0.0",
			Port:            8888,
			MaxFrameSize:    65536,
			DialTimeout:     5 * time.Second,
			RequestTimeout:  10 * time.Second,
			UploadTimeout:   10 * time.Second,
			CloseAckTimeout: 5 * time.Second,
			HubCleanup:      time.Minute,
		},
		Database: DatabaseConfig{
			Host:             "127.0.0.1",
			Port:             9000,
			MaxFrameSize:     65536,
			HistorySize:      50,
			HistoryRetention: 24 * time.Hour,
			HistoryPrune:     10 * time.Minute,
		},
		Marketplace: MarketplaceConfig{
			BlobStore:       "local",
			Dir:             "data/artifacts",
			MaxArtifactSize: 16 << 20,
			S3: S3Config{
				Region:    "us-east-1",
				KeyPrefix: "artifacts/",
			},
		},
		Game: GameConfig{
			ListenHost:    "0.0.0.0",
			AdvertiseHost: "127.0.0.1",
			PortMin:       9100,
			PortMax:       9199,
			TickMs:        1000,
			BagRule:       "7bag-restricted-first",
			Encoding:      "rle",
			JoinTimeout:   30 * time.Second,
			TicketTTL:     10 * time.Minute,
		},
		Storage: StorageConfig{
			Type:        "memory",
			RedisURL:    "redis://localhost:6379",
			RedisPrefix: "gamelobby",
			PostgresDSN: "postgres://localhost:5432/gamelobby?sslmode=disable",
		},
		Auth: AuthConfig{
			PasswordHash: "bcrypt",
			BcryptCost:   10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "",
			Port:    8080,
		},
		Client: ClientConfig{
			Lobby:           "127.0.0.1:8888",
			API:             "http://127.0.0.1:8080",
			CacheDir:        defaultCacheDir(),
			RequestTimeout:  10 * time.Second,
			ReadyTimeout:    10 * time.Second,
			DownloadTimeout: 15 * time.Second,
			ConnectAttempts: 10,
			ConnectInterval: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration. path may be empty, in which case only
// defaults, .env and the environment apply.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail late
func (c Config) Validate() error {
	switch {
	case c.Game.PortMin < 0 || c.Game.PortMax < c.Game.PortMin:
		return fmt.Errorf("invalid game port range %d-%d", c.Game.PortMin, c.Game.PortMax)
	case c.Lobby.MaxFrameSize <= 0 || c.Database.MaxFrameSize <= 0:
		return errors.New("max frame size must be positive")
	case c.Game.TickMs <= 0:
		return errors.New("tick period must be positive")
	}
	switch c.Storage.Type {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	switch c.Marketplace.BlobStore {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown blob store %q", c.Marketplace.BlobStore)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name onto slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds the process logger described by c
func (c LogConfig) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".gamelobby"
	}
	return dir + string(os.PathSeparator) + "gamelobby"
}
