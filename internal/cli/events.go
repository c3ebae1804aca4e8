package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby-go/internal/client"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

func newWatchCmd() *cobra.Command {
	var jsonOutput bool
	var boards bool

	cmd := &cobra.Command{
		Use:   "watch <room_id>",
		Short: "Follow a room's live events",
		Long: `Connect to the status API's event stream for a room and print events
as they arrive.

Events include:
  - room: a player joined or left, the game started, finished or was aborted
  - game: messages broadcast by the running game instance

With --boards, game snapshots are drawn as boards.

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := model.RoomID(args[0])
			if !roomID.Valid() {
				return fmt.Errorf("room id must be 6 digits, got %q", args[0])
			}
			return streamEvents(cmd.Context(), cmd.OutOrStdout(), roomID, jsonOutput, boards)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")
	cmd.Flags().BoolVar(&boards, "boards", false, "Draw game snapshots")

	return cmd
}

// SSEEvent represents a parsed SSE event
type SSEEvent struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Data  string    `json:"data"`
}

func streamEvents(ctx context.Context, w io.Writer, roomID model.RoomID, jsonOutput, boards bool) error {
	url := strings.TrimSuffix(cfg.API, "/") + "/api/v1/rooms/" + string(roomID) + "/events"
	if cfg.User != "" {
		url += "?watcher=" + cfg.User
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// No timeout for SSE
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if !jsonOutput {
		fmt.Fprintf(w, "Watching room %s\n", roomID)
	}

	views := make(map[string]*client.BoardView)
	err = parseSSE(resp.Body, func(event, data string) {
		if boards && !jsonOutput && event == "game" && drawSnapshot(w, views, data) {
			return
		}
		printEvent(w, event, data, jsonOutput)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream error: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintln(w, "Disconnected")
	}
	return nil
}

// parseSSE calls fn for every complete event in r
func parseSSE(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), wire.DefaultMaxFrameSize)
	var currentEvent string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case line == "":
			if currentEvent != "" {
				fn(currentEvent, strings.Join(dataLines, "\n"))
			}
			currentEvent = ""
			dataLines = nil
		}
	}
	return scanner.Err()
}

// drawSnapshot renders a game snapshot, reporting false for any other data
func drawSnapshot(w io.Writer, views map[string]*client.BoardView, data string) bool {
	var msg wire.GameMessage
	if err := wire.Unmarshal([]byte(data), &msg); err != nil || msg.Type != wire.GameSnapshot {
		return false
	}
	view, ok := views[msg.Username]
	if !ok {
		view = &client.BoardView{}
		views[msg.Username] = view
	}
	if err := view.Apply(msg); err != nil {
		return false
	}
	fmt.Fprint(w, view.Render())
	return true
}

func printEvent(w io.Writer, event, data string, jsonOutput bool) {
	now := time.Now()

	if jsonOutput {
		jsonData, _ := json.Marshal(SSEEvent{Time: now, Event: event, Data: data})
		fmt.Fprintln(w, string(jsonData))
		return
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	// Truncate data if it's too long for display
	displayData := data
	if len(displayData) > 100 {
		displayData = displayData[:100] + "..."
	}
	displayData = strings.ReplaceAll(displayData, "\n", " ")
	fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, event, displayData)
}
