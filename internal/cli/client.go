package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mcoot/gamelobby-go/internal/client"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// APIClient is an HTTP client for the status API
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new status API client
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an API error
type ErrorResponse struct {
	Error APIError `json:"error"`
}

func (e *APIError) String() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Get performs a GET request and decodes the JSON body into result
func (c *APIClient) Get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusServiceUnavailable {
		var errResp ErrorResponse
		if err := wire.Unmarshal(body, &errResp); err == nil && errResp.Error.Code != "" {
			return errors.New(errResp.Error.String())
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := wire.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connect dials the lobby and, when login is set, logs in with the
// configured credentials
func connect(ctx context.Context, login bool) (*client.Client, error) {
	realm := model.Realm(cfg.Realm)
	if !realm.Valid() {
		return nil, fmt.Errorf("unknown realm %q", cfg.Realm)
	}
	c, err := client.Dial(ctx, cfg.clientConfig(), cfg.logger())
	if err != nil {
		return nil, err
	}
	if !login {
		return c, nil
	}
	if cfg.User == "" {
		_ = c.Close()
		return nil, errors.New("--user is required (env: GAMELOBBY_USER)")
	}
	if _, err := c.Login(ctx, realm, cfg.User, cfg.Password); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("login as %s: %w", cfg.User, err)
	}
	return c, nil
}

// withSession runs fn on a logged-in connection, logging out afterwards
func withSession(ctx context.Context, fn func(ctx context.Context, c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	c, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := fn(ctx, c); err != nil {
		return err
	}
	return c.Logout(ctx)
}
