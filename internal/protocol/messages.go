// Package protocol implements the server-authoritative coordination
// layer: rooms, the placement/ready-up flow, snapshot sync at battle
// start, and the wire messages both peers exchange.
package protocol

import (
	"encoding/json"

	"battleforge/internal/sim"
)

// Wire message types. The server validates every client message,
// acknowledges it to the sender, and mirrors it to the opponent where the
// protocol calls for it.
const (
	MsgGetStartingState = "GET_STARTING_STATE"
	MsgGotStartingState = "GOT_STARTING_STATE"

	MsgSubmitPlacement    = "SUBMIT_PLACEMENT"
	MsgSubmittedPlacement = "SUBMITTED_PLACEMENT"
	MsgOpponentPlacement  = "OPPONENT_PLACEMENT"

	MsgUndoPlacement   = "UNDO_PLACEMENT"
	MsgPlacementUndone = "PLACEMENT_UNDONE"

	MsgReadyForBattle       = "READY_FOR_BATTLE"
	MsgReadyForBattleUpdate = "READY_FOR_BATTLE_UPDATE"

	MsgSetSquadTarget          = "SET_SQUAD_TARGET"
	MsgSquadTargetSet          = "SQUAD_TARGET_SET"
	MsgOpponentSquadTargetSet  = "OPPONENT_SQUAD_TARGET_SET"
	MsgSetSquadTargets         = "SET_SQUAD_TARGETS"
	MsgSquadTargetsSet         = "SQUAD_TARGETS_SET"
	MsgOpponentSquadTargetsSet = "OPPONENT_SQUAD_TARGETS_SET"

	MsgPurchaseUpgrade   = "PURCHASE_UPGRADE"
	MsgPurchasedUpgrade  = "PURCHASED_UPGRADE"
	MsgLevelSquad        = "LEVEL_SQUAD"
	MsgSquadLeveled      = "SQUAD_LEVELED"
	MsgCancelBuilding    = "CANCEL_BUILDING"
	MsgBuildingCancelled = "BUILDING_CANCELLED"

	MsgBattleEnd  = "BATTLE_END"
	MsgDesyncHash = "DESYNC_HASH"
	MsgError      = "ERROR"
)

// Envelope is the framing every wire message travels in.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PlayerEntityInfo pairs a player's stats entity with its record.
type PlayerEntityInfo struct {
	EntityID    sim.EntityID     `json:"entityId"`
	PlayerStats *sim.PlayerStats `json:"playerStats"`
}

// GotStartingState answers GET_STARTING_STATE.
type GotStartingState struct {
	Success        bool               `json:"success"`
	Reason         string             `json:"reason,omitempty"`
	PlayerEntities []PlayerEntityInfo `json:"playerEntities,omitempty"`
	GameState      string             `json:"gameState,omitempty"`
	Round          int                `json:"round,omitempty"`
}

// SubmitPlacement carries a client's deployment. It has no placement ID
// field; the server assigns the ID and returns it in SubmittedPlacement.
type SubmitPlacement struct {
	Placement sim.PlacementRequest `json:"placement"`
}

// SubmittedPlacement acknowledges a placement to its submitter.
type SubmittedPlacement struct {
	Success      bool           `json:"success"`
	Reason       string         `json:"reason,omitempty"`
	PlacementID  int            `json:"placementId"`
	SquadUnits   []sim.EntityID `json:"squadUnits,omitempty"`
	NextEntityID sim.EntityID   `json:"nextEntityId,omitempty"`
	ServerTime   float64        `json:"serverTime"`
}

// OpponentPlacement mirrors an accepted placement to the other seat.
type OpponentPlacement struct {
	Placement   sim.PlacementRequest `json:"placement"`
	PlacementID int                  `json:"placementId"`
	SquadUnits  []sim.EntityID       `json:"squadUnits"`
}

// PlacementUndone acknowledges an undo.
type PlacementUndone struct {
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
	PlacementID int    `json:"placementId"`
	Gold        int    `json:"gold"`
}

// ReadyForBattleUpdate is broadcast whenever readiness changes. When
// AllReady flips true it carries the authoritative entity snapshot and
// the ID counter both clients must adopt.
type ReadyForBattleUpdate struct {
	GameState    string          `json:"gameState"`
	AllReady     bool            `json:"allReady"`
	EntitySync   json.RawMessage `json:"entitySync,omitempty"`
	ServerTime   *float64        `json:"serverTime,omitempty"`
	NextEntityID *sim.EntityID   `json:"nextEntityId,omitempty"`
	Round        int             `json:"round"`
}

// SetSquadTarget orders one placement to a position.
type SetSquadTarget struct {
	PlacementID    int      `json:"placementId"`
	TargetPosition sim.Vec3 `json:"targetPosition"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// SquadTargetSet acknowledges/mirrors a squad order.
type SquadTargetSet struct {
	Success        bool     `json:"success"`
	Reason         string   `json:"reason,omitempty"`
	PlacementID    int      `json:"placementId"`
	TargetPosition sim.Vec3 `json:"targetPosition"`
	Meta           map[string]any `json:"meta,omitempty"`
	IssuedTime     float64  `json:"issuedTime"`
}

// SetSquadTargets orders several placements at once.
type SetSquadTargets struct {
	PlacementIDs    []int      `json:"placementIds"`
	TargetPositions []sim.Vec3 `json:"targetPositions"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// SquadTargetsSet acknowledges/mirrors a multi-squad order.
type SquadTargetsSet struct {
	Success         bool       `json:"success"`
	Reason          string     `json:"reason,omitempty"`
	PlacementIDs    []int      `json:"placementIds"`
	TargetPositions []sim.Vec3 `json:"targetPositions"`
	Meta            map[string]any `json:"meta,omitempty"`
	IssuedTime      float64    `json:"issuedTime"`
}

// PurchaseUpgrade requests an upgrade purchase.
type PurchaseUpgrade struct {
	UpgradeID string `json:"upgradeId"`
}

// PurchasedUpgrade acknowledges a purchase.
type PurchasedUpgrade struct {
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
	UpgradeID string `json:"upgradeId"`
	Gold      int    `json:"gold,omitempty"`
}

// LevelSquad requests a squad level-up.
type LevelSquad struct {
	PlacementID      int    `json:"placementId"`
	SpecializationID string `json:"specializationId,omitempty"`
}

// SquadLeveled acknowledges a level-up.
type SquadLeveled struct {
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
	PlacementID int    `json:"placementId"`
	CurrentGold int    `json:"currentGold"`
}

// CancelBuilding requests demolition of an under-construction building.
type CancelBuilding struct {
	BuildingEntityID sim.EntityID `json:"buildingEntityId"`
}

// BuildingCancelled acknowledges a cancellation.
type BuildingCancelled struct {
	Success      bool   `json:"success"`
	Reason       string `json:"reason,omitempty"`
	RefundAmount int    `json:"refundAmount"`
	Gold         int    `json:"gold"`
}

// BattleEnd is the authoritative battle-over broadcast.
type BattleEnd struct {
	Round       int    `json:"round"`
	WinningTeam string `json:"winningTeam,omitempty"`
	Draw        bool   `json:"draw"`
}

// DesyncHash carries a peer's per-tick state hash for comparison.
type DesyncHash struct {
	Tick int64  `json:"tick"`
	Hash uint64 `json:"hash"`
}

// ErrorMessage reports a protocol error to the sender.
type ErrorMessage struct {
	Reason string `json:"reason"`
}

// Sender abstracts the transport. The api package implements it over
// websockets; tests implement it in memory.
type Sender interface {
	SendToPlayer(playerID, msgType string, payload any)
	BroadcastToRoom(roomID, msgType string, payload any)
	GetPlayerRoom(playerID string) string
}
