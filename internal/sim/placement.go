package sim

import (
	"battleforge/internal/sim/spatial"
)

// PlacementRequest is a client's deployment submission. It carries no
// placement ID; the server assigns one and returns it in the result.
type PlacementRequest struct {
	GridPosition GridPos `json:"gridPosition"`
	Collection   string  `json:"collection"`
	UnitTypeID   string  `json:"unitTypeId"`
	Team         TeamID  `json:"team"`
	PlayerID     string  `json:"playerId"`
	RoundPlaced  int     `json:"roundPlaced"`

	// Peasant construction: when set, the new placement is a building
	// erected by this builder.
	PeasantBuilder EntityID `json:"peasantBuilder,omitempty"`
}

// PlacementResult reports a placement attempt. Failure carries a
// human-readable reason and mutates nothing.
type PlacementResult struct {
	Success     bool       `json:"success"`
	Reason      string     `json:"reason,omitempty"`
	PlacementID int        `json:"placementId"`
	SquadUnits  []EntityID `json:"squadUnits"`
	NextID      EntityID   `json:"nextEntityId"`
	Cost        int        `json:"cost"`
}

// CreatePlacement validates and executes a deployment: gold check, cell
// validity, terrain, team side; then entity creation, cell reservation,
// gold deduction and a supply tally. Supply is added to the player's
// total but is not checked against any cap. Server-side this issues the
// authoritative placement and entity IDs; clients mirror via
// MirrorPlacement.
func (e *Engine) CreatePlacement(req PlacementRequest) PlacementResult {
	if e.phase != PhasePlacement && e.phase != PhaseLobby {
		return PlacementResult{Success: false, Reason: "not in placement phase", PlacementID: -1}
	}

	ci, ti, ok := UnitIndexByName(req.Collection, req.UnitTypeID)
	if !ok {
		return PlacementResult{Success: false, Reason: "unknown unit type", PlacementID: -1}
	}
	def, _ := UnitDefByIndex(ci, ti)

	stats := e.StatsForPlayer(req.PlayerID)
	if stats == nil {
		return PlacementResult{Success: false, Reason: "unknown player", PlacementID: -1}
	}
	if stats.Gold < def.Cost {
		return PlacementResult{Success: false, Reason: "insufficient gold", PlacementID: -1}
	}

	cells := SquadCells(req.GridPosition, def)
	scells := make([]spatial.Cell, len(cells))
	for i, c := range cells {
		scells[i] = spatial.Cell{X: c.X, Z: c.Z}
	}
	if !e.reservations.IsValid(scells, string(req.Team)) {
		return PlacementResult{Success: false, Reason: "invalid placement cells", PlacementID: -1}
	}

	e.nextPlacementID++
	placementID := e.nextPlacementID

	p := Placement{
		PlacementID:         placementID,
		GridPosition:        req.GridPosition,
		Cells:               cells,
		Team:                req.Team,
		PlayerID:            req.PlayerID,
		UnitCollection:      ci,
		UnitType:            ti,
		RoundPlaced:         req.RoundPlaced,
		IsUnderConstruction: def.IsBuilding && req.PeasantBuilder != NoEntity,
		AssignedBuilder:     req.PeasantBuilder,
	}

	ids := e.SpawnSquad(p, nil)
	if len(ids) == 0 {
		return PlacementResult{Success: false, Reason: "unit spawn failed", PlacementID: -1}
	}
	e.ReserveSquadCells(p, ids[0])
	stats.Gold -= def.Cost
	stats.Supply += def.Supply

	if p.IsUnderConstruction && e.store.Exists(req.PeasantBuilder) {
		e.store.AddComponent(req.PeasantBuilder, CompBuildingState, &BuildingState{
			TargetBuilding: ids[0],
		})
	}

	e.undoStacks[req.PlayerID] = append(e.undoStacks[req.PlayerID], placementID)

	return PlacementResult{
		Success:     true,
		PlacementID: placementID,
		SquadUnits:  ids,
		NextID:      e.store.NextID(),
		Cost:        def.Cost,
	}
}

// MirrorPlacement replays a server-accepted placement on a client using
// the server-assigned IDs verbatim. The caller must set the store's next
// ID to the server's published value afterwards, never before.
func (e *Engine) MirrorPlacement(req PlacementRequest, placementID int, serverIDs []EntityID) []EntityID {
	ci, ti, ok := UnitIndexByName(req.Collection, req.UnitTypeID)
	if !ok {
		return nil
	}
	def, _ := UnitDefByIndex(ci, ti)

	p := Placement{
		PlacementID:         placementID,
		GridPosition:        req.GridPosition,
		Cells:               SquadCells(req.GridPosition, def),
		Team:                req.Team,
		PlayerID:            req.PlayerID,
		UnitCollection:      ci,
		UnitType:            ti,
		RoundPlaced:         req.RoundPlaced,
		IsUnderConstruction: def.IsBuilding && req.PeasantBuilder != NoEntity,
		AssignedBuilder:     req.PeasantBuilder,
	}
	if placementID > e.nextPlacementID {
		e.nextPlacementID = placementID
	}

	ids := e.SpawnSquad(p, serverIDs)
	if len(ids) > 0 {
		e.ReserveSquadCells(p, ids[0])
	}
	return ids
}

// UndoPlacement reverses the player's most recent placement this round:
// entities destroyed, cells released, gold refunded.
func (e *Engine) UndoPlacement(playerID string) PlacementResult {
	stack := e.undoStacks[playerID]
	if len(stack) == 0 {
		return PlacementResult{Success: false, Reason: "nothing to undo", PlacementID: -1}
	}
	placementID := stack[len(stack)-1]
	e.undoStacks[playerID] = stack[:len(stack)-1]

	refund := 0
	supply := 0
	for _, id := range e.placementEntities(placementID) {
		if def, ok := e.UnitDefFor(id); ok && refund == 0 {
			refund = def.Cost
			supply = def.Supply
		}
		e.DestroyEntity(id)
	}
	e.reservations.Release(placementID)

	if stats := e.StatsForPlayer(playerID); stats != nil {
		stats.Gold += refund
		stats.Supply -= supply
		if stats.Supply < 0 {
			stats.Supply = 0
		}
	}
	return PlacementResult{Success: true, PlacementID: placementID, Cost: refund}
}

// UndoStackLen reports the player's remaining undoable placements.
func (e *Engine) UndoStackLen(playerID string) int {
	return len(e.undoStacks[playerID])
}

// ClearUndoStacks empties every undo stack; placements commit when the
// battle starts.
func (e *Engine) ClearUndoStacks() {
	e.undoStacks = make(map[string][]int)
}

// CancelBuildingResult reports a cancellation.
type CancelBuildingResult struct {
	Success      bool   `json:"success"`
	Reason       string `json:"reason,omitempty"`
	RefundAmount int    `json:"refundAmount"`
	Gold         int    `json:"gold"`
}

// CancelBuilding tears down an under-construction building: validates
// ownership and construction state, destroys the entity, refunds gold and
// clears the builder's buildingState.
func (e *Engine) CancelBuilding(playerID string, buildingEntity EntityID) CancelBuildingResult {
	p, ok := e.store.GetComponent(buildingEntity, CompPlacement).(*Placement)
	if !ok {
		return CancelBuildingResult{Success: false, Reason: "building not found"}
	}
	if p.PlayerID != playerID {
		return CancelBuildingResult{Success: false, Reason: "building not yours"}
	}
	if !p.IsUnderConstruction {
		return CancelBuildingResult{Success: false, Reason: "not under construction"}
	}

	refund := 0
	if def, ok := e.UnitDefFor(buildingEntity); ok {
		refund = def.Cost
	}

	// Clear the builder's assignment; the back-reference is non-owning
	// so the builder may already be gone.
	if p.AssignedBuilder != NoEntity && e.store.Exists(p.AssignedBuilder) {
		if bs, ok := e.store.GetComponent(p.AssignedBuilder, CompBuildingState).(*BuildingState); ok {
			bs.TargetBuilding = NoEntity
			bs.IsBuilding = false
		}
	}

	placementID := p.PlacementID
	e.DestroyEntity(buildingEntity)
	e.reservations.Release(placementID)

	stats := e.StatsForPlayer(playerID)
	gold := 0
	if stats != nil {
		stats.Gold += refund
		gold = stats.Gold
	}
	return CancelBuildingResult{Success: true, RefundAmount: refund, Gold: gold}
}

// placementEntities returns the entities of a placement, ascending.
func (e *Engine) placementEntities(placementID int) []EntityID {
	var out []EntityID
	for _, id := range e.store.EntitiesWith(CompPlacement) {
		p := e.store.GetComponent(id, CompPlacement).(*Placement)
		if p.PlacementID == placementID {
			out = append(out, id)
		}
	}
	return out
}

// PlacementEntities exposes placementEntities to the coordinator.
func (e *Engine) PlacementEntities(placementID int) []EntityID {
	return e.placementEntities(placementID)
}

// SetSquadTarget stamps a player order on every unit of a placement.
func (e *Engine) SetSquadTarget(placementID int, target Vec3, issuedTime float64) bool {
	ids := e.placementEntities(placementID)
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if p, ok := e.store.GetComponent(id, CompPlacement).(*Placement); ok {
			tp := target
			p.TargetPosition = &tp
		}
		e.store.AddComponent(id, CompPlayerOrder, &PlayerOrder{
			TargetPosition: target,
			IssuedTime:     issuedTime,
		})
	}
	e.TriggerEvent(EventIssuedPlayerOrders, placementID)
	return true
}

// RoundCleanup removes corpses, transient effects and per-round state at
// the end of a battle.
func (e *Engine) RoundCleanup() {
	for _, id := range e.store.EntitiesWith(CompDeathState) {
		ds := e.store.GetComponent(id, CompDeathState).(*DeathState)
		if ds.State != DeathAlive {
			p, ok := e.store.GetComponent(id, CompPlacement).(*Placement)
			if ok {
				e.reservations.Release(p.PlacementID)
			}
			e.DestroyEntity(id)
		}
	}
	for _, id := range e.store.EntitiesWith(CompLifetime) {
		e.DestroyEntity(id)
	}
	e.scheduler.Reset()
	e.flows.Clear()
	e.ClearUndoStacks()
}
