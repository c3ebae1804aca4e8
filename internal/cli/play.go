package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby-go/internal/client"
	"github.com/mcoot/gamelobby-go/internal/games/tetris"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

const playHelp = `Commands:
  create <public|private> <game>   open a room
  join <room_id>                   take the free seat of a room
  leave                            leave your room
  invite <user>                    invite a player to your room
  invites                          list pending invites
  accept <inviter> <room_id>       accept an invite
  decline <inviter> <room_id>      decline an invite
  start                            start the game (host only)
  status                           show rooms and online users
  left | right | cw | ccw | down | drop | hold
                                   move your piece during a game
  quit                             log out and exit
`

var playActions = map[string]tetris.Action{
	"left":  tetris.ActionLeft,
	"right": tetris.ActionRight,
	"cw":    tetris.ActionCW,
	"ccw":   tetris.ActionCCW,
	"down":  tetris.ActionSoftDrop,
	"drop":  tetris.ActionHardDrop,
	"hold":  tetris.ActionHold,
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Stay logged in to create, join and play rooms",
		Long: `Log in once and keep the lobby connection open. Commands are read from
standard input one per line; type help to list them.

Invites and room updates are printed as they arrive. When a game starts,
the cached copy of the game is refreshed if its version changed, the game
connection is opened and boards are drawn as they change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// activeGame is the connection to the instance of a started room
type activeGame struct {
	conn  *client.GameConn
	msgs  chan wire.GameMessage
	stop  chan struct{}
	views map[string]*client.BoardView
}

// playSession is one logged-in connection driven by typed commands and
// lobby notifications
type playSession struct {
	client *client.Client
	cache  *client.VersionCache
	cfg    client.Config
	logger *slog.Logger
	w      io.Writer
	out    *Output

	game *activeGame
}

func runPlay(ctx context.Context, in io.Reader, w io.Writer) error {
	cache, err := client.OpenCache(cfg.CacheDir)
	if err != nil {
		return err
	}
	c, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	p := &playSession{
		client: c,
		cache:  cache,
		cfg:    cfg.clientConfig(),
		logger: cfg.logger(),
		w:      w,
		out:    NewOutput(cfg.Output, w),
	}
	defer p.closeGame()
	fmt.Fprintf(w, "Logged in as %s. Type help for commands.\n", c.Username())

	quit := make(chan struct{})
	defer close(quit)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-quit:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return p.logout()
		case line, ok := <-lines:
			if !ok {
				return p.logout()
			}
			done, err := p.command(ctx, line)
			if err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
			}
			if done {
				return p.logout()
			}
		case ev, ok := <-c.Events():
			if !ok {
				if err := c.Err(); err != nil {
					return fmt.Errorf("lobby connection lost: %w", err)
				}
				return errors.New("lobby connection closed")
			}
			if err := p.notify(ctx, ev); err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
			}
		case msg, ok := <-p.gameMessages():
			if !ok {
				p.closeGame()
				fmt.Fprintln(w, "Game connection closed")
				continue
			}
			p.gameMessage(msg)
		}
	}
}

func (p *playSession) logout() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	defer cancel()
	if err := p.client.Logout(ctx); err != nil && !errors.Is(err, model.ErrTransportClosed) {
		return err
	}
	return nil
}

func needArgs(fields []string, n int, usage string) error {
	if len(fields)-1 != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

// command runs one typed line and reports whether the session should end
func (p *playSession) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name := strings.ToLower(fields[0])
	if action, ok := playActions[name]; ok {
		if p.game == nil {
			return false, errors.New("no game in progress")
		}
		return false, p.game.conn.Input(action)
	}

	switch name {
	case "help":
		fmt.Fprint(p.w, playHelp)
	case "quit", "exit":
		return true, nil
	case "create":
		if err := needArgs(fields, 2, "create <public|private> <game>"); err != nil {
			return false, err
		}
		room, err := p.client.CreateRoom(ctx, model.Visibility(fields[1]), fields[2])
		if err != nil {
			return false, err
		}
		p.out.Print(room)
	case "join":
		if err := needArgs(fields, 1, "join <room_id>"); err != nil {
			return false, err
		}
		room, err := p.client.JoinRoom(ctx, model.RoomID(fields[1]))
		if err != nil {
			return false, err
		}
		p.out.Print(room)
	case "leave":
		room, err := p.client.LeaveRoom(ctx)
		if err != nil {
			return false, err
		}
		p.out.PrintMessage(fmt.Sprintf("Left room %s", room.ID))
	case "invite":
		if err := needArgs(fields, 1, "invite <user>"); err != nil {
			return false, err
		}
		invite, err := p.client.Invite(ctx, fields[1])
		if err != nil {
			return false, err
		}
		p.out.PrintMessage(fmt.Sprintf("Invited %s to room %s", invite.Invitee, invite.RoomID))
	case "invites":
		invites, err := p.client.Invites(ctx)
		if err != nil {
			return false, err
		}
		p.out.Print(invites)
	case "accept":
		if err := needArgs(fields, 2, "accept <inviter> <room_id>"); err != nil {
			return false, err
		}
		room, err := p.client.Accept(ctx, fields[1], model.RoomID(fields[2]))
		if err != nil {
			return false, err
		}
		p.out.Print(room)
	case "decline":
		if err := needArgs(fields, 2, "decline <inviter> <room_id>"); err != nil {
			return false, err
		}
		if err := p.client.Decline(ctx, fields[1], model.RoomID(fields[2])); err != nil {
			return false, err
		}
		p.out.PrintMessage(fmt.Sprintf("Declined invite from %s", fields[1]))
	case "start":
		room, err := p.client.StartGame(ctx)
		if err != nil {
			return false, err
		}
		p.out.PrintMessage(fmt.Sprintf("Starting game in room %s", room.ID))
	case "status":
		report, err := p.client.Status(ctx)
		if err != nil {
			return false, err
		}
		p.out.Print(report)
	default:
		return false, fmt.Errorf("unknown command %q, type help", fields[0])
	}
	return false, nil
}

// notify reacts to a pushed lobby notification
func (p *playSession) notify(ctx context.Context, ev wire.Response) error {
	switch ev.Status {
	case wire.StatusInvite:
		var invite model.Invite
		if err := ev.DecodeParam(0, &invite); err != nil {
			return err
		}
		fmt.Fprintf(p.w, "%s invited you to room %s (%s); type: accept %s %s\n",
			invite.Inviter, invite.RoomID, invite.GameKind, invite.Inviter, invite.RoomID)
	case wire.StatusInviteDeclined:
		var invite model.Invite
		if err := ev.DecodeParam(0, &invite); err != nil {
			return err
		}
		fmt.Fprintf(p.w, "%s declined your invite to room %s\n", invite.Invitee, invite.RoomID)
	case wire.StatusUpdate:
		var event model.RoomEvent
		if err := ev.DecodeParam(0, &event); err != nil {
			fmt.Fprintf(p.w, "update: %s\n", ev.Message)
			return nil
		}
		fmt.Fprintf(p.w, "room %s: %s %s\n", event.RoomID, event.Type, event.Username)
	case wire.StatusP2PInfo:
		return p.joinGame(ctx, ev)
	default:
		p.logger.Debug("ignored notification", slog.String("status", ev.Status), slog.String("message", ev.Message))
	}
	return nil
}

// joinGame refreshes the cached game when its version changed, then opens
// the game connection and takes the caller's seat
func (p *playSession) joinGame(ctx context.Context, ev wire.Response) error {
	info, err := wire.ParseP2PInfo(ev)
	if err != nil {
		return err
	}
	downloaded, err := p.client.Ensure(ctx, p.cache, info.GameKind, info.GameVersion)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", info.GameKind, err)
	}
	if downloaded {
		fmt.Fprintf(p.w, "Downloaded %s version %s\n", info.GameKind, info.GameVersion)
	}

	p.closeGame()
	conn, err := client.DialGame(ctx, p.cfg, info, p.logger)
	if err != nil {
		return err
	}
	if err := conn.Join(p.client.Username(), info.RoomID, info.Ticket); err != nil {
		_ = conn.Close()
		return err
	}

	g := &activeGame{
		conn:  conn,
		msgs:  make(chan wire.GameMessage, 64),
		stop:  make(chan struct{}),
		views: make(map[string]*client.BoardView),
	}
	go func() {
		defer close(g.msgs)
		for {
			msg, err := conn.Read()
			if err != nil {
				return
			}
			select {
			case g.msgs <- msg:
			case <-g.stop:
				return
			}
		}
	}()
	p.game = g
	fmt.Fprintf(p.w, "Joining game in room %s at %s as %s\n", info.RoomID, info.Addr(), info.Role)
	return nil
}

func (p *playSession) gameMessages() <-chan wire.GameMessage {
	if p.game == nil {
		return nil
	}
	return p.game.msgs
}

func (p *playSession) closeGame() {
	if p.game == nil {
		return
	}
	close(p.game.stop)
	_ = p.game.conn.Close()
	p.game = nil
}

func (p *playSession) gameMessage(msg wire.GameMessage) {
	switch msg.Type {
	case wire.GameWelcome:
		fmt.Fprintf(p.w, "Seated as %s\n", msg.Role)
		if msg.Role == wire.RolePlayer {
			if err := p.game.conn.Ready(); err != nil {
				fmt.Fprintf(p.w, "error: %v\n", err)
			}
		}
	case wire.GameStart:
		fmt.Fprintln(p.w, "Game started")
	case wire.GameSnapshot:
		view, ok := p.game.views[msg.Username]
		if !ok {
			view = &client.BoardView{}
			p.game.views[msg.Username] = view
		}
		if err := view.Apply(msg); err != nil {
			p.logger.Debug("bad snapshot", slog.String("error", err.Error()))
			return
		}
		fmt.Fprint(p.w, view.Render())
	case wire.GameTempo:
		fmt.Fprintf(p.w, "Pieces now fall every %d ms\n", msg.DropMs)
	case wire.GameOver:
		fmt.Fprintf(p.w, "Game over: %s wins (%s)\n", msg.Winner, msg.Reason)
		for _, s := range msg.FinalScores {
			fmt.Fprintf(p.w, "  %s  score %d  lines %d\n", s.Username, s.Score, s.Lines)
		}
		p.closeGame()
	case wire.GameError:
		fmt.Fprintf(p.w, "game error: %s\n", msg.Message)
	}
}
