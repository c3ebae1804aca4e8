package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamelobby-go/internal/api/handler"
	"github.com/mcoot/gamelobby-go/internal/api/middleware"
	"github.com/mcoot/gamelobby-go/internal/api/response"
	"github.com/mcoot/gamelobby-go/internal/api/sse"
	"github.com/mcoot/gamelobby-go/internal/coordinator"
	"github.com/mcoot/gamelobby-go/internal/gameserver"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Games is what the API needs from the game coordinator
type Games interface {
	Active() []coordinator.Info
	Attach(roomID model.RoomID, conn gameserver.Conn) error
}

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger     *slog.Logger
	Database   handler.Querier
	Games      Games
	HubManager *sse.HubManager
	// Sessions reports how many clients are logged in to the lobby
	Sessions     func() int
	MaxFrameSize int
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	statusHandler := handler.NewStatusHandler(cfg.Database, cfg.Games)
	eventsHandler := handler.NewEventsHandler(cfg.HubManager)
	playHandler := handler.NewPlayHandler(cfg.Games, cfg.MaxFrameSize, cfg.Logger)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestID)
	api.Use(middleware.Logging(cfg.Logger))
	api.Use(middleware.Recovery(cfg.Logger))

	api.HandleFunc("/health", healthHandler(cfg)).Methods(http.MethodGet)

	api.HandleFunc("/rooms", statusHandler.Rooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{room_id}/events", eventsHandler.Stream).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{room_id}/ws", playHandler.Connect).Methods(http.MethodGet)

	api.HandleFunc("/games", statusHandler.Games).Methods(http.MethodGet)
	api.HandleFunc("/games/{name}/reviews", statusHandler.Reviews).Methods(http.MethodGet)

	return r
}

// healthHandler reports degraded when the database does not answer
func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := response.Health{Status: "ok", Database: "ok"}
		if cfg.Sessions != nil {
			health.Sessions = cfg.Sessions()
		}
		if cfg.Games != nil {
			health.Instances = len(cfg.Games.Active())
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		resp, err := cfg.Database.Call(ctx, wire.CmdShowStatus)
		if err == nil {
			err = resp.Err()
		}
		if err != nil {
			health.Status = "degraded"
			health.Database = err.Error()
			response.JSON(w, http.StatusServiceUnavailable, health)
			return
		}
		response.JSON(w, http.StatusOK, health)
	}
}
