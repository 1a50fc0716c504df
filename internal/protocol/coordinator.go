package protocol

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"battleforge/internal/sim"
)

// RoundIncomeBase is the gold stipend granted after each battle.
const RoundIncomeBase = 50

// Coordinator is the server-authoritative protocol state machine:
// lobby -> placement -> battle -> post-battle -> placement -> ...
//
// Every client message is validated against the sender's seat and the
// room's phase; failures answer success=false with a reason and mutate
// nothing.
type Coordinator struct {
	log    zerolog.Logger
	rooms  *RoomManager
	sender Sender
	cmdlog *CommandLog

	// onDesync is an optional hook the embedder uses for metrics.
	onDesync func()
}

// NewCoordinator wires the coordinator over a room manager and transport.
func NewCoordinator(log zerolog.Logger, rooms *RoomManager, sender Sender, cmdlog *CommandLog) *Coordinator {
	return &Coordinator{log: log, rooms: rooms, sender: sender, cmdlog: cmdlog}
}

// Rooms exposes the room manager.
func (c *Coordinator) Rooms() *RoomManager { return c.rooms }

// SetDesyncHook installs a callback fired on every detected divergence.
func (c *Coordinator) SetDesyncHook(fn func()) { c.onDesync = fn }

// HandleMessage dispatches one client message. Unknown rooms and players
// answer an ERROR and the message is dropped.
func (c *Coordinator) HandleMessage(playerID string, env Envelope) {
	room, ok := c.rooms.RoomFor(playerID)
	if !ok {
		c.sender.SendToPlayer(playerID, MsgError, ErrorMessage{Reason: "not in a room"})
		return
	}
	seat, ok := room.Seats[playerID]
	if !ok {
		c.sender.SendToPlayer(playerID, MsgError, ErrorMessage{Reason: "unknown player"})
		return
	}

	if c.cmdlog != nil {
		c.cmdlog.Record(room.ID, playerID, env)
	}

	switch env.Type {
	case MsgGetStartingState:
		c.handleGetStartingState(room, seat)
	case MsgSubmitPlacement:
		c.handleSubmitPlacement(room, seat, env.Payload)
	case MsgUndoPlacement:
		c.handleUndoPlacement(room, seat)
	case MsgReadyForBattle:
		c.handleReadyForBattle(room, seat)
	case MsgSetSquadTarget:
		c.handleSetSquadTarget(room, seat, env.Payload)
	case MsgSetSquadTargets:
		c.handleSetSquadTargets(room, seat, env.Payload)
	case MsgPurchaseUpgrade:
		c.handlePurchaseUpgrade(room, seat, env.Payload)
	case MsgLevelSquad:
		c.handleLevelSquad(room, seat, env.Payload)
	case MsgCancelBuilding:
		c.handleCancelBuilding(room, seat, env.Payload)
	case MsgDesyncHash:
		c.handleDesyncHash(room, seat, env.Payload)
	default:
		c.sender.SendToPlayer(playerID, MsgError, ErrorMessage{Reason: "unknown message type"})
	}
}

func (c *Coordinator) handleGetStartingState(room *Room, seat *Seat) {
	infos := make([]PlayerEntityInfo, 0, 2)
	for _, s := range room.SeatsInOrder() {
		stats := room.Engine.StatsForPlayer(s.PlayerID)
		infos = append(infos, PlayerEntityInfo{EntityID: s.Entity, PlayerStats: stats})
	}
	c.sender.SendToPlayer(seat.PlayerID, MsgGotStartingState, GotStartingState{
		Success:        true,
		PlayerEntities: infos,
		GameState:      string(room.Engine.Phase()),
		Round:          room.Round,
	})
}

func (c *Coordinator) handleSubmitPlacement(room *Room, seat *Seat, payload json.RawMessage) {
	var msg SubmitPlacement
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sender.SendToPlayer(seat.PlayerID, MsgSubmittedPlacement, SubmittedPlacement{
			Success: false, Reason: "malformed placement", PlacementID: -1,
		})
		return
	}

	// The seat, not the client, decides identity and side.
	req := msg.Placement
	req.PlayerID = seat.PlayerID
	req.Team = seat.Team
	req.RoundPlaced = room.Round

	result := room.Engine.CreatePlacement(req)
	ack := SubmittedPlacement{
		Success:      result.Success,
		Reason:       result.Reason,
		PlacementID:  result.PlacementID,
		SquadUnits:   result.SquadUnits,
		NextEntityID: result.NextID,
		ServerTime:   room.Engine.Now(),
	}
	c.sender.SendToPlayer(seat.PlayerID, MsgSubmittedPlacement, ack)

	if result.Success {
		for _, other := range room.SeatsInOrder() {
			if other.PlayerID == seat.PlayerID {
				continue
			}
			c.sender.SendToPlayer(other.PlayerID, MsgOpponentPlacement, OpponentPlacement{
				Placement:   req,
				PlacementID: result.PlacementID,
				SquadUnits:  result.SquadUnits,
			})
		}
	}
}

func (c *Coordinator) handleUndoPlacement(room *Room, seat *Seat) {
	result := room.Engine.UndoPlacement(seat.PlayerID)
	gold := 0
	if stats := room.Engine.StatsForPlayer(seat.PlayerID); stats != nil {
		gold = stats.Gold
	}
	c.sender.SendToPlayer(seat.PlayerID, MsgPlacementUndone, PlacementUndone{
		Success:     result.Success,
		Reason:      result.Reason,
		PlacementID: result.PlacementID,
		Gold:        gold,
	})
}

func (c *Coordinator) handleReadyForBattle(room *Room, seat *Seat) {
	if room.Engine.Phase() != sim.PhasePlacement {
		c.sender.SendToPlayer(seat.PlayerID, MsgError, ErrorMessage{Reason: "wrong phase"})
		return
	}
	seat.Ready = true

	if !room.AllReady() {
		c.sender.BroadcastToRoom(room.ID, MsgReadyForBattleUpdate, ReadyForBattleUpdate{
			GameState: string(sim.PhasePlacement),
			AllReady:  false,
			Round:     room.Round,
		})
		return
	}

	// Battle start sequence. Order matters: time reset, target
	// application and AI reset all happen before the snapshot is
	// serialized, so the snapshot already reflects battle-ready state.
	engine := room.Engine
	engine.ResetCurrentTime()
	engine.ApplyTargetPositions()
	engine.ResetAI()
	engine.ReseedRNG(sim.BattleSeed(room.ID, room.Round))
	engine.StartBattle()
	engine.ClearUndoStacks()
	engine.Desync().SetEnabled(true)

	entitySync, err := engine.SerializeEntities()
	if err != nil {
		c.log.Error().Err(err).Str("room", room.ID).Msg("entity snapshot failed")
		c.sender.BroadcastToRoom(room.ID, MsgError, ErrorMessage{Reason: "snapshot failed"})
		return
	}

	serverTime := engine.Now()
	nextID := engine.Store().NextID()
	c.sender.BroadcastToRoom(room.ID, MsgReadyForBattleUpdate, ReadyForBattleUpdate{
		GameState:    string(sim.PhaseBattle),
		AllReady:     true,
		EntitySync:   entitySync,
		ServerTime:   &serverTime,
		NextEntityID: &nextID,
		Round:        room.Round,
	})
	c.log.Info().Str("room", room.ID).Int("round", room.Round).Msg("⚔️ battle started")
}

func (c *Coordinator) handleSetSquadTarget(room *Room, seat *Seat, payload json.RawMessage) {
	var msg SetSquadTarget
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sender.SendToPlayer(seat.PlayerID, MsgSquadTargetSet, SquadTargetSet{Success: false, Reason: "malformed order"})
		return
	}
	if !c.ownsPlacement(room, seat, msg.PlacementID) {
		c.sender.SendToPlayer(seat.PlayerID, MsgSquadTargetSet, SquadTargetSet{
			Success: false, Reason: "placement not found", PlacementID: msg.PlacementID,
		})
		return
	}

	issued := room.Engine.Now()
	room.Engine.SetSquadTarget(msg.PlacementID, msg.TargetPosition, issued)
	ack := SquadTargetSet{
		Success:        true,
		PlacementID:    msg.PlacementID,
		TargetPosition: msg.TargetPosition,
		Meta:           msg.Meta,
		IssuedTime:     issued,
	}
	c.sender.SendToPlayer(seat.PlayerID, MsgSquadTargetSet, ack)
	for _, other := range room.SeatsInOrder() {
		if other.PlayerID != seat.PlayerID {
			c.sender.SendToPlayer(other.PlayerID, MsgOpponentSquadTargetSet, ack)
		}
	}
}

func (c *Coordinator) handleSetSquadTargets(room *Room, seat *Seat, payload json.RawMessage) {
	var msg SetSquadTargets
	if err := json.Unmarshal(payload, &msg); err != nil || len(msg.PlacementIDs) != len(msg.TargetPositions) {
		c.sender.SendToPlayer(seat.PlayerID, MsgSquadTargetsSet, SquadTargetsSet{Success: false, Reason: "malformed orders"})
		return
	}
	for _, pid := range msg.PlacementIDs {
		if !c.ownsPlacement(room, seat, pid) {
			c.sender.SendToPlayer(seat.PlayerID, MsgSquadTargetsSet, SquadTargetsSet{
				Success: false, Reason: "placement not found", PlacementIDs: msg.PlacementIDs,
			})
			return
		}
	}

	issued := room.Engine.Now()
	for i, pid := range msg.PlacementIDs {
		room.Engine.SetSquadTarget(pid, msg.TargetPositions[i], issued)
	}
	ack := SquadTargetsSet{
		Success:         true,
		PlacementIDs:    msg.PlacementIDs,
		TargetPositions: msg.TargetPositions,
		Meta:            msg.Meta,
		IssuedTime:      issued,
	}
	c.sender.SendToPlayer(seat.PlayerID, MsgSquadTargetsSet, ack)
	for _, other := range room.SeatsInOrder() {
		if other.PlayerID != seat.PlayerID {
			c.sender.SendToPlayer(other.PlayerID, MsgOpponentSquadTargetsSet, ack)
		}
	}
}

func (c *Coordinator) ownsPlacement(room *Room, seat *Seat, placementID int) bool {
	for _, id := range room.Engine.PlacementEntities(placementID) {
		p, ok := room.Engine.Store().GetComponent(id, sim.CompPlacement).(*sim.Placement)
		if ok && p.PlayerID == seat.PlayerID {
			return true
		}
	}
	return false
}

func (c *Coordinator) handlePurchaseUpgrade(room *Room, seat *Seat, payload json.RawMessage) {
	var msg PurchaseUpgrade
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sender.SendToPlayer(seat.PlayerID, MsgPurchasedUpgrade, PurchasedUpgrade{Success: false, Reason: "malformed purchase"})
		return
	}
	result := room.Engine.PurchaseUpgrade(seat.PlayerID, msg.UpgradeID)
	ack := PurchasedUpgrade{
		Success:   result.Success,
		Reason:    result.Reason,
		UpgradeID: msg.UpgradeID,
		Gold:      result.Gold,
	}
	c.sender.SendToPlayer(seat.PlayerID, MsgPurchasedUpgrade, ack)
	if result.Success {
		for _, other := range room.SeatsInOrder() {
			if other.PlayerID != seat.PlayerID {
				c.sender.SendToPlayer(other.PlayerID, MsgPurchasedUpgrade, ack)
			}
		}
	}
}

func (c *Coordinator) handleLevelSquad(room *Room, seat *Seat, payload json.RawMessage) {
	var msg LevelSquad
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sender.SendToPlayer(seat.PlayerID, MsgSquadLeveled, SquadLeveled{Success: false, Reason: "malformed request"})
		return
	}
	if !c.ownsPlacement(room, seat, msg.PlacementID) {
		c.sender.SendToPlayer(seat.PlayerID, MsgSquadLeveled, SquadLeveled{
			Success: false, Reason: "placement not found", PlacementID: msg.PlacementID,
		})
		return
	}

	stats := room.Engine.StatsForPlayer(seat.PlayerID)
	cost := room.Engine.SquadLevelCost(msg.PlacementID)
	if cost < 0 {
		c.sender.SendToPlayer(seat.PlayerID, MsgSquadLeveled, SquadLeveled{
			Success: false, Reason: "squad cannot level", PlacementID: msg.PlacementID, CurrentGold: stats.Gold,
		})
		return
	}
	if stats.Gold < cost {
		c.sender.SendToPlayer(seat.PlayerID, MsgSquadLeveled, SquadLeveled{
			Success: false, Reason: "insufficient gold", PlacementID: msg.PlacementID, CurrentGold: stats.Gold,
		})
		return
	}

	stats.Gold -= cost
	room.Engine.LevelSquad(msg.PlacementID)
	ack := SquadLeveled{Success: true, PlacementID: msg.PlacementID, CurrentGold: stats.Gold}
	c.sender.BroadcastToRoom(room.ID, MsgSquadLeveled, ack)
}

func (c *Coordinator) handleCancelBuilding(room *Room, seat *Seat, payload json.RawMessage) {
	var msg CancelBuilding
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sender.SendToPlayer(seat.PlayerID, MsgBuildingCancelled, BuildingCancelled{Success: false, Reason: "malformed request"})
		return
	}
	result := room.Engine.CancelBuilding(seat.PlayerID, msg.BuildingEntityID)
	ack := BuildingCancelled{
		Success:      result.Success,
		Reason:       result.Reason,
		RefundAmount: result.RefundAmount,
		Gold:         result.Gold,
	}
	c.sender.SendToPlayer(seat.PlayerID, MsgBuildingCancelled, ack)
	if result.Success {
		for _, other := range room.SeatsInOrder() {
			if other.PlayerID != seat.PlayerID {
				c.sender.SendToPlayer(other.PlayerID, MsgBuildingCancelled, ack)
			}
		}
	}
}

func (c *Coordinator) handleDesyncHash(room *Room, seat *Seat, payload json.RawMessage) {
	var msg DesyncHash
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	if report := room.Engine.Desync().Compare(msg.Tick, msg.Hash); report != nil {
		if c.onDesync != nil {
			c.onDesync()
		}
		c.log.Error().
			Str("room", room.ID).
			Str("player", seat.PlayerID).
			Int64("tick", report.Tick).
			Msg("client diverged from server state")
	}
}

// TickRooms advances every battling room one tick and handles battle
// termination: timeout or a team's elimination ends the round.
func (c *Coordinator) TickRooms() {
	for _, room := range c.rooms.Rooms() {
		if room.Engine.Phase() != sim.PhaseBattle {
			continue
		}
		room.Engine.Step()

		winner, eliminated := c.battleOutcome(room)
		timedOut := room.Engine.Paused()
		if !eliminated && !timedOut {
			continue
		}
		c.endBattle(room, winner, !eliminated)
	}
}

// battleOutcome reports whether a side has been eliminated and, if so,
// which team won.
func (c *Coordinator) battleOutcome(room *Room) (winner sim.TeamID, eliminated bool) {
	alive := map[sim.TeamID]int{}
	store := room.Engine.Store()
	for _, id := range store.EntitiesWith(sim.CompTeam, sim.CompHealth, sim.CompUnitType) {
		h := store.GetComponent(id, sim.CompHealth).(*sim.Health)
		if h.Current <= 0 {
			continue
		}
		team := store.GetComponent(id, sim.CompTeam).(*sim.Team)
		alive[team.ID]++
	}
	if alive[sim.TeamLeft] == 0 && alive[sim.TeamRight] == 0 {
		return "", true
	}
	if alive[sim.TeamLeft] == 0 {
		return sim.TeamRight, true
	}
	if alive[sim.TeamRight] == 0 {
		return sim.TeamLeft, true
	}
	return "", false
}

// endBattle broadcasts the authoritative BATTLE_END, cleans the round up
// and re-enters placement.
func (c *Coordinator) endBattle(room *Room, winner sim.TeamID, draw bool) {
	engine := room.Engine
	engine.EndBattle()
	engine.Desync().SetEnabled(false)

	c.sender.BroadcastToRoom(room.ID, MsgBattleEnd, BattleEnd{
		Round:       room.Round,
		WinningTeam: string(winner),
		Draw:        draw,
	})
	c.log.Info().Str("room", room.ID).Int("round", room.Round).Str("winner", string(winner)).Msg("🏁 battle ended")

	engine.RoundCleanup()
	engine.GrantRoundIncome(RoundIncomeBase)

	room.Round++
	engine.SetRound(room.Round)
	for _, s := range room.Seats {
		s.Ready = false
	}
	engine.SetPhase(sim.PhasePlacement)
}
