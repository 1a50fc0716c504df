package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"battleforge/internal/api"
	"battleforge/internal/config"
	"battleforge/internal/protocol"
	"battleforge/internal/sim"
)

func main() {
	envLoaded := godotenv.Load(".env") == nil

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if os.Getenv("LOG_JSON") == "true" {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if !envLoaded {
		log.Info().Msg("💡 no .env file found, using environment variables only")
	}

	cfg := config.Load()
	log.Info().
		Int("tickRate", cfg.Sim.TickRate).
		Float64("battleDuration", cfg.Sim.BattleDuration).
		Int("port", cfg.Server.Port).
		Msg("🎮 battleforge server starting")

	var cmdlog *protocol.CommandLog
	if cfg.Server.CmdLogPath != "" {
		cmdlog = protocol.NewCommandLog()
		if err := cmdlog.Start(cfg.Server.CmdLogPath); err != nil {
			log.Fatal().Err(err).Msg("command log failed to start")
		}
		defer cmdlog.Stop()
		log.Info().Str("path", cfg.Server.CmdLogPath).Msg("📼 command log enabled")
	}

	if err := api.StartDebugServer(log, api.ObservabilityConfig{
		Enabled:    cfg.Observability.Enabled,
		ListenAddr: cfg.Observability.ListenAddr,
	}); err != nil {
		log.Fatal().Err(err).Msg("debug server failed to start")
	}

	level := sim.DefaultLevel()
	level.PlacementCols = cfg.Sim.PlacementCols
	level.PlacementRows = cfg.Sim.PlacementRows
	level.PlacementCellSize = cfg.Sim.PlacementCell

	server := api.NewServer(api.ServerConfig{
		Logger:         log,
		TickRate:       cfg.Sim.TickRate,
		BattleDuration: cfg.Sim.BattleDuration,
		Level:          level,
		CORSOrigins:    cfg.Server.CORSOrigins,
		CommandLog:     cmdlog,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	if err := server.Run(ctx, addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("🛑 server stopped")
}
