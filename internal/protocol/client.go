package protocol

import (
	"fmt"

	"github.com/rs/zerolog"

	"battleforge/internal/sim"
)

// Client is the client-side half of the lockstep pair: a local engine
// mirroring the server's, driven only by acknowledged commands and the
// battle-start snapshot. It never invents entity or placement IDs.
type Client struct {
	Engine   *sim.Engine
	RoomID   string
	PlayerID string

	log zerolog.Logger
}

// NewClient builds a client mirror for one room seat.
func NewClient(log zerolog.Logger, roomID, playerID string, cfg sim.Config) *Client {
	return &Client{
		Engine:   sim.NewEngine(cfg),
		RoomID:   roomID,
		PlayerID: playerID,
		log:      log,
	}
}

// ApplyStartingState mirrors the server's player entities with their
// server-assigned IDs.
func (cl *Client) ApplyStartingState(msg GotStartingState) {
	for _, info := range msg.PlayerEntities {
		if info.PlayerStats == nil {
			continue
		}
		id := cl.Engine.Store().CreateEntity(info.EntityID)
		stats := *info.PlayerStats
		cl.Engine.Store().AddComponent(id, sim.CompPlayerStats, &stats)
	}
	cl.Engine.SetPhase(sim.Phase(msg.GameState))
	cl.Engine.SetRound(msg.Round)
}

// ApplySubmittedPlacement mirrors the player's own accepted placement
// using the server-assigned entity IDs, then adopts the server's ID
// counter. The counter is set after creation, never before, so the
// mirrored entities land on exactly the server's IDs.
func (cl *Client) ApplySubmittedPlacement(req sim.PlacementRequest, ack SubmittedPlacement) error {
	if !ack.Success {
		return fmt.Errorf("placement rejected: %s", ack.Reason)
	}
	req.PlayerID = cl.PlayerID
	ids := cl.Engine.MirrorPlacement(req, ack.PlacementID, ack.SquadUnits)
	if len(ids) == 0 {
		return fmt.Errorf("mirror placement %d produced no entities", ack.PlacementID)
	}
	cl.Engine.Store().SetNextID(ack.NextEntityID)

	if stats := cl.Engine.StatsForPlayer(cl.PlayerID); stats != nil {
		if def, ok := cl.Engine.UnitDefFor(ids[0]); ok {
			stats.Gold -= def.Cost
			stats.Supply += def.Supply
		}
	}
	return nil
}

// ApplyOpponentPlacement mirrors the other seat's accepted placement.
func (cl *Client) ApplyOpponentPlacement(msg OpponentPlacement) {
	cl.Engine.MirrorPlacement(msg.Placement, msg.PlacementID, msg.SquadUnits)
}

// ApplyReadyUpdate handles READY_FOR_BATTLE_UPDATE. On allReady the
// client resets time, seeds the battle RNG from the room and round, fires
// battle start, and finally overwrites its ECS with the server snapshot.
// The snapshot is authoritative; nothing local survives it.
func (cl *Client) ApplyReadyUpdate(msg ReadyForBattleUpdate) error {
	if !msg.AllReady {
		return nil
	}

	engine := cl.Engine
	engine.ResetCurrentTime()
	engine.ReseedRNG(sim.BattleSeed(cl.RoomID, msg.Round))
	engine.SetRound(msg.Round)
	engine.StartBattle()
	engine.Desync().SetEnabled(true)

	if len(msg.EntitySync) > 0 {
		if err := engine.ResyncEntities(msg.EntitySync); err != nil {
			return fmt.Errorf("apply entity sync: %w", err)
		}
	}
	if msg.NextEntityID != nil {
		engine.Store().SetNextID(*msg.NextEntityID)
	}
	return nil
}

// ApplySquadTargetSet mirrors a confirmed squad order, own or opponent's.
func (cl *Client) ApplySquadTargetSet(msg SquadTargetSet) {
	if !msg.Success {
		return
	}
	cl.Engine.SetSquadTarget(msg.PlacementID, msg.TargetPosition, msg.IssuedTime)
}

// DesyncHashMessage builds the periodic hash report the client sends so
// the server can spot the first diverging tick.
func (cl *Client) DesyncHashMessage() DesyncHash {
	return DesyncHash{
		Tick: cl.Engine.TickCount(),
		Hash: cl.Engine.Desync().HashState(),
	}
}

// ApplyBattleEnd handles the authoritative battle-over broadcast.
func (cl *Client) ApplyBattleEnd(msg BattleEnd) {
	engine := cl.Engine
	engine.EndBattle()
	engine.Desync().SetEnabled(false)
	engine.RoundCleanup()
	engine.GrantRoundIncome(RoundIncomeBase)
	engine.SetRound(msg.Round + 1)
	engine.SetPhase(sim.PhasePlacement)
}
