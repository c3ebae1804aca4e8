package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamelobby-go/internal/api/response"
	"github.com/mcoot/gamelobby-go/internal/coordinator"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Querier sends read-only commands to the database as the lobby
type Querier interface {
	Call(ctx context.Context, command string, params ...any) (wire.Response, error)
}

// Instances lists the running game instances
type Instances interface {
	Active() []coordinator.Info
}

// StatusHandler serves the read-only status endpoints
type StatusHandler struct {
	db        Querier
	instances Instances
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db Querier, instances Instances) *StatusHandler {
	return &StatusHandler{db: db, instances: instances}
}

// call sends command and turns an error envelope into an error
func (h *StatusHandler) call(ctx context.Context, command string, params ...any) (wire.Response, error) {
	resp, err := h.db.Call(ctx, command, params...)
	if err != nil {
		return wire.Response{}, err
	}
	if err := resp.Err(); err != nil {
		return wire.Response{}, err
	}
	return resp, nil
}

// Rooms handles GET /api/v1/rooms
func (h *StatusHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	resp, err := h.call(r.Context(), wire.CmdShowStatus)
	if err != nil {
		WriteError(w, err)
		return
	}
	var report model.StatusReport
	if err := resp.DecodeParam(0, &report); err != nil {
		WriteError(w, err)
		return
	}

	running := make(map[model.RoomID]coordinator.Info)
	if h.instances != nil {
		for _, info := range h.instances.Active() {
			running[info.RoomID] = info
		}
	}

	out := response.Rooms{
		Rooms:       make([]response.Room, 0, len(report.Rooms)),
		History:     make([]response.Room, 0, len(report.History)),
		OnlineUsers: make([]string, 0, len(report.OnlineUsers)),
	}
	for _, room := range report.Rooms {
		item := response.RoomFromModel(room)
		if info, ok := running[room.ID]; ok {
			item.Instance = &response.Instance{Port: info.Port, StartedAt: info.StartedAt}
		}
		out.Rooms = append(out.Rooms, item)
	}
	for _, room := range report.History {
		out.History = append(out.History, response.RoomFromModel(room))
	}
	for _, session := range report.OnlineUsers {
		out.OnlineUsers = append(out.OnlineUsers, session.Username)
	}
	sort.Strings(out.OnlineUsers)

	response.JSON(w, http.StatusOK, out)
}

// Games handles GET /api/v1/games
func (h *StatusHandler) Games(w http.ResponseWriter, r *http.Request) {
	resp, err := h.call(r.Context(), wire.CmdListAllGames)
	if err != nil {
		WriteError(w, err)
		return
	}
	var listings []model.ArtifactListing
	if err := resp.DecodeParam(0, &listings); err != nil {
		WriteError(w, err)
		return
	}

	out := response.Games{Games: make([]response.Game, len(listings))}
	for i, l := range listings {
		out.Games[i] = response.GameFromModel(l)
	}
	response.JSON(w, http.StatusOK, out)
}

// Reviews handles GET /api/v1/games/{name}/reviews
func (h *StatusHandler) Reviews(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	resp, err := h.call(r.Context(), wire.CmdGetReviews, name)
	if err != nil {
		WriteError(w, err)
		return
	}
	var list []model.Review
	var summary model.ReviewSummary
	if err := resp.DecodeParam(1, &list); err != nil {
		WriteError(w, err)
		return
	}
	if err := resp.DecodeParam(2, &summary); err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.ReviewsFromModel(resp.Param(0), list, summary))
}
