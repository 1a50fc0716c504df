package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"battleforge/internal/protocol"
	"battleforge/internal/sim"
)

// RouterConfig carries the dependencies the HTTP router needs.
type RouterConfig struct {
	Rooms       *protocol.RoomManager
	Hub         *Hub
	RateLimiter *IPRateLimiter
	CORSOrigins []string
	Level       *sim.Level
}

// NewRouter builds the public HTTP surface: health, room creation, room
// inspection and the websocket endpoint.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"rooms":   len(cfg.Rooms.Rooms()),
			"clients": cfg.Hub.ClientCount(),
		})
	})

	r.Post("/rooms", func(w http.ResponseWriter, _ *http.Request) {
		room := cfg.Rooms.CreateRoom(cfg.Level)
		room.Engine.SetTickObserver(ObserveTick)
		writeJSON(w, http.StatusCreated, map[string]any{"roomId": room.ID})
	})

	r.Get("/rooms/{roomID}", func(w http.ResponseWriter, req *http.Request) {
		roomID := chi.URLParam(req, "roomID")
		room, ok := cfg.Rooms.Room(roomID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown room"})
			return
		}
		seats := make([]map[string]any, 0, 2)
		for _, s := range room.SeatsInOrder() {
			seats = append(seats, map[string]any{
				"playerId": s.PlayerID,
				"team":     s.Team,
				"ready":    s.Ready,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"roomId":    room.ID,
			"gameState": room.Engine.Phase(),
			"round":     room.Round,
			"seats":     seats,
		})
	})

	r.Get("/ws", cfg.Hub.HandleWebSocket)

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
