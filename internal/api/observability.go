package api

import (
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics with bounded cardinality: no per-player or per-room labels.
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Time spent advancing one simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
	})

	entityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_entity_count",
		Help: "Live entities across all rooms",
	})

	roomCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_room_count",
		Help: "Active rooms",
	})

	desyncMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_desync_mismatch_total",
		Help: "Tick hash mismatches reported by clients",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// ObserveTick records one tick's wall duration.
func ObserveTick(seconds float64) {
	tickDuration.Observe(seconds)
}

// UpdateEntityCount sets the live-entity gauge.
func UpdateEntityCount(n int) {
	entityCount.Set(float64(n))
}

// UpdateRoomCount sets the active-room gauge.
func UpdateRoomCount(n int) {
	roomCount.Set(float64(n))
}

// RecordDesyncMismatch bumps the divergence counter.
func RecordDesyncMismatch() {
	desyncMismatches.Inc()
}

// RecordConnectionRejected bumps the rejection counter for a bounded
// reason label.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections sets the active-websocket gauge.
func UpdateWSConnections(n int) {
	wsConnectionsActive.Set(float64(n))
}

// IncrementWSMessages bumps the sent-message counter.
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Enabled    bool
	ListenAddr string // keep on localhost in production
}

// DefaultObservabilityConfig returns safe defaults.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// StartDebugServer starts the internal observability server with metrics
// and pprof. It must stay bound to localhost unless explicitly overridden
// via ALLOW_DEBUG_EXTERNAL.
func StartDebugServer(log zerolog.Logger, cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Info().Msg("📊 debug server disabled")
		return nil
	}

	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Warn().Msg("debug server forced to localhost")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("📊 debug server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("debug server failed")
		}
	}()
	return nil
}
