package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"battleforge/internal/sim/spatial"
)

func placementEngine() *Engine {
	e := newTestEngine(DefaultLevel())
	e.SetPhase(PhasePlacement)
	e.CreatePlayerEntity("p1", TeamLeft)
	e.CreatePlayerEntity("p2", TeamRight)
	return e
}

func TestCreatePlacementReservesCellsAndDeductsGold(t *testing.T) {
	e := placementEngine()
	nextBefore := e.Store().NextID()

	result := e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})
	require.True(t, result.Success)
	require.Greater(t, result.PlacementID, 0)

	// A 4-unit squad spawns with sequential IDs from the server's
	// counter.
	require.Len(t, result.SquadUnits, 4)
	for i, id := range result.SquadUnits {
		require.Equal(t, nextBefore+EntityID(i), id)
	}

	// Footprint is the 2x2 block anchored at the grid position.
	want := []spatial.Cell{{X: 2, Z: 7}, {X: 3, Z: 7}, {X: 2, Z: 8}, {X: 3, Z: 8}}
	require.ElementsMatch(t, want, e.Reservations().HeldBy(result.PlacementID))

	require.Equal(t, 70, e.StatsForPlayer("p1").Gold)
}

func TestCreatePlacementValidationFailures(t *testing.T) {
	e := placementEngine()

	tests := []struct {
		name   string
		req    PlacementRequest
		reason string
	}{
		{
			name: "unknown unit type",
			req: PlacementRequest{
				GridPosition: GridPos{X: 2, Z: 7}, Collection: "standard",
				UnitTypeID: "dragon", Team: TeamLeft, PlayerID: "p1",
			},
			reason: "unknown unit type",
		},
		{
			name: "unknown player",
			req: PlacementRequest{
				GridPosition: GridPos{X: 2, Z: 7}, Collection: "standard",
				UnitTypeID: "soldier", Team: TeamLeft, PlayerID: "ghost",
			},
			reason: "unknown player",
		},
		{
			name: "wrong side of the arena",
			req: PlacementRequest{
				GridPosition: GridPos{X: 10, Z: 7}, Collection: "standard",
				UnitTypeID: "soldier", Team: TeamLeft, PlayerID: "p1",
			},
			reason: "invalid placement cells",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.CreatePlacement(tt.req)
			require.False(t, result.Success)
			require.Equal(t, tt.reason, result.Reason)
			// Failure mutates nothing.
			require.Equal(t, 100, e.StatsForPlayer("p1").Gold)
		})
	}
}

func TestCreatePlacementInsufficientGold(t *testing.T) {
	e := placementEngine()
	e.StatsForPlayer("p1").Gold = 10

	result := e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})
	require.False(t, result.Success)
	require.Equal(t, "insufficient gold", result.Reason)
}

func TestCreatePlacementRejectsOccupiedCells(t *testing.T) {
	e := placementEngine()
	req := PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	}
	require.True(t, e.CreatePlacement(req).Success)

	result := e.CreatePlacement(req)
	require.False(t, result.Success)
	require.Equal(t, "invalid placement cells", result.Reason)
}

func TestCreatePlacementWrongPhase(t *testing.T) {
	e := placementEngine()
	e.SetPhase(PhaseBattle)
	result := e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})
	require.False(t, result.Success)
	require.Equal(t, "not in placement phase", result.Reason)
}

func TestUndoPlacementRestoresEverything(t *testing.T) {
	e := placementEngine()
	result := e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})
	require.True(t, result.Success)
	require.Equal(t, 1, e.UndoStackLen("p1"))

	undo := e.UndoPlacement("p1")
	require.True(t, undo.Success)

	for _, id := range result.SquadUnits {
		require.False(t, e.Store().Exists(id))
	}
	require.Equal(t, 100, e.StatsForPlayer("p1").Gold)
	require.Empty(t, e.Reservations().HeldBy(result.PlacementID))
	require.Zero(t, e.UndoStackLen("p1"))

	// Nothing left to undo.
	require.False(t, e.UndoPlacement("p1").Success)
}

func TestMirrorPlacementUsesServerIDs(t *testing.T) {
	server := placementEngine()
	result := server.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})
	require.True(t, result.Success)

	client := placementEngine()
	ids := client.MirrorPlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	}, result.PlacementID, result.SquadUnits)

	require.Equal(t, result.SquadUnits, ids)
	client.Store().SetNextID(result.NextID)
	require.Equal(t, result.NextID, client.Store().NextID())
}

func TestCancelBuildingRefundsAndClearsBuilder(t *testing.T) {
	e := placementEngine()
	e.StatsForPlayer("p1").Gold = 200
	builderResult := e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 0, Z: 0},
		Collection:   "standard",
		UnitTypeID:   "peasant",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})
	require.True(t, builderResult.Success)
	builder := builderResult.SquadUnits[0]

	buildingResult := e.CreatePlacement(PlacementRequest{
		GridPosition:   GridPos{X: 4, Z: 4},
		Collection:     "buildings",
		UnitTypeID:     "watchtower",
		Team:           TeamLeft,
		PlayerID:       "p1",
		PeasantBuilder: builder,
	})
	require.True(t, buildingResult.Success)
	building := buildingResult.SquadUnits[0]

	goldBefore := e.StatsForPlayer("p1").Gold
	cancel := e.CancelBuilding("p1", building)
	require.True(t, cancel.Success)
	require.Equal(t, 90, cancel.RefundAmount)
	require.Equal(t, goldBefore+90, cancel.Gold)
	require.False(t, e.Store().Exists(building))

	bs := e.Store().GetComponent(builder, CompBuildingState).(*BuildingState)
	require.Equal(t, NoEntity, bs.TargetBuilding)
}

func TestCancelBuildingValidation(t *testing.T) {
	e := placementEngine()
	require.Equal(t, "building not found", e.CancelBuilding("p1", 999).Reason)

	// A finished squad is not a construction site.
	result := e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})
	unit := result.SquadUnits[0]
	require.Equal(t, "not under construction", e.CancelBuilding("p1", unit).Reason)
	require.Equal(t, "building not yours", e.CancelBuilding("p2", unit).Reason)
}

func TestSetSquadTargetStampsOrders(t *testing.T) {
	e := placementEngine()
	result := e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})

	require.True(t, e.SetSquadTarget(result.PlacementID, Vec3{X: 50, Z: 10}, 3.5))
	for _, id := range result.SquadUnits {
		order := e.Store().GetComponent(id, CompPlayerOrder).(*PlayerOrder)
		require.Equal(t, 50.0, order.TargetPosition.X)
		require.Equal(t, 3.5, order.IssuedTime)
	}
	require.False(t, e.SetSquadTarget(9999, Vec3{}, 0))
}
