package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"battleforge/internal/protocol"
	"battleforge/internal/sim"
)

// Server combines the HTTP router, the websocket hub and the single
// simulation loop. All engine mutation happens on that loop: websocket
// reads enqueue, the loop drains, ticks, and replies through the hub.
type Server struct {
	log         zerolog.Logger
	rooms       *protocol.RoomManager
	coordinator *protocol.Coordinator
	hub         *Hub
	router      *chi.Mux
	rateLimiter *IPRateLimiter

	tickRate int
	stopChan chan struct{}
}

// ServerConfig carries server construction options.
type ServerConfig struct {
	Logger         zerolog.Logger
	TickRate       int
	BattleDuration float64
	Level          *sim.Level
	CORSOrigins    []string
	CommandLog     *protocol.CommandLog
}

// NewServer wires the full server. The simulation loop and the HTTP
// listener start in Run; the rate limiter's cleanup goroutine starts here.
func NewServer(cfg ServerConfig) *Server {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 30
	}
	rooms := protocol.NewRoomManager(cfg.Logger, cfg.TickRate, cfg.BattleDuration)
	hub := NewHub(cfg.Logger, rooms, cfg.CORSOrigins)
	coordinator := protocol.NewCoordinator(cfg.Logger, rooms, hub, cfg.CommandLog)
	coordinator.SetDesyncHook(RecordDesyncMismatch)

	s := &Server{
		log:         cfg.Logger,
		rooms:       rooms,
		coordinator: coordinator,
		hub:         hub,
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		tickRate:    cfg.TickRate,
		stopChan:    make(chan struct{}),
	}
	s.router = NewRouter(RouterConfig{
		Rooms:       rooms,
		Hub:         hub,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
		Level:       cfg.Level,
	})
	return s
}

// Router exposes the HTTP handler for embedding and tests.
func (s *Server) Router() http.Handler { return s.router }

// Coordinator exposes the protocol coordinator for tests.
func (s *Server) Coordinator() *protocol.Coordinator { return s.coordinator }

// Run starts the simulation loop and serves HTTP until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.simulationLoop(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", addr).Int("tickRate", s.tickRate).Msg("🎮 server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// simulationLoop is the single goroutine that owns every engine. It
// alternates between draining queued client messages and advancing the
// rooms one fixed tick.
func (s *Server) simulationLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.hub.Inbound():
			s.coordinator.HandleMessage(msg.PlayerID, msg.Envelope)
		case playerID := <-s.hub.Disconnects():
			s.rooms.Leave(playerID)
		case <-ticker.C:
			s.drainInbound()
			s.coordinator.TickRooms()
			s.publishMetrics()
		}
	}
}

// drainInbound consumes every queued message before the tick so command
// application and simulation advance never interleave.
func (s *Server) drainInbound() {
	for {
		select {
		case msg := <-s.hub.Inbound():
			s.coordinator.HandleMessage(msg.PlayerID, msg.Envelope)
		case playerID := <-s.hub.Disconnects():
			s.rooms.Leave(playerID)
		default:
			return
		}
	}
}

func (s *Server) publishMetrics() {
	rooms := s.rooms.Rooms()
	UpdateRoomCount(len(rooms))
	entities := 0
	for _, room := range rooms {
		entities += len(room.Engine.Store().LiveEntities())
	}
	UpdateEntityCount(entities)
}
