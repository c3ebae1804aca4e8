package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/mcoot/gamelobby-go/internal/gameserver"
	"github.com/mcoot/gamelobby-go/internal/model"
)

// Attacher hands a transport to the instance of a room
type Attacher interface {
	Attach(roomID model.RoomID, conn gameserver.Conn) error
}

// PlayHandler upgrades browsers to websockets and attaches them to the
// room's instance, where they send JOIN or WATCH like any TCP client
type PlayHandler struct {
	games        Attacher
	upgrader     websocket.Upgrader
	maxFrameSize int
	logger       *slog.Logger
}

// NewPlayHandler creates a new play handler
func NewPlayHandler(games Attacher, maxFrameSize int, logger *slog.Logger) *PlayHandler {
	return &PlayHandler{
		games: games,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		maxFrameSize: maxFrameSize,
		logger:       logger.With(slog.String("component", "play")),
	}
}

// Connect handles GET /api/v1/rooms/{room_id}/ws
func (h *PlayHandler) Connect(w http.ResponseWriter, r *http.Request) {
	roomID := model.RoomID(mux.Vars(r)["room_id"])
	if !roomID.Valid() {
		WriteError(w, NewInvalidRequestError("room id must be 6 digits"))
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := gameserver.NewWSConn(ws, h.maxFrameSize)
	if err := h.games.Attach(roomID, conn); err != nil {
		msg := "internal error"
		if errors.Is(err, model.ErrInstanceMissing) {
			msg = "no game running in this room"
		}
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg))
		_ = ws.Close()
		return
	}
	h.logger.Info("websocket attached",
		slog.String("room_id", string(roomID)),
		slog.String("remote", conn.RemoteAddr()))
}
