package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func populatedEngine() *Engine {
	e := newTestEngine(DefaultLevel())
	e.SetPhase(PhasePlacement)
	e.CreatePlayerEntity("p1", TeamLeft)
	e.CreatePlayerEntity("p2", TeamRight)
	e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 2, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamLeft,
		PlayerID:     "p1",
	})
	e.CreatePlacement(PlacementRequest{
		GridPosition: GridPos{X: 10, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "archer",
		Team:         TeamRight,
		PlayerID:     "p2",
	})
	e.PurchaseUpgrade("p1", "sharpenedBlades")
	return e
}

func TestSaveRoundTrip(t *testing.T) {
	src := populatedEngine()
	data, err := src.GetSaveData(1234)
	require.NoError(t, err)
	require.Equal(t, SaveVersionCurrent, data.SaveVersion)
	require.ElementsMatch(t, []string{"p1", "p2"}, data.Players)

	dst := newTestEngine(DefaultLevel())
	require.NoError(t, dst.LoadSaveData(data))

	// Component-wise equality via the canonical hash.
	require.Equal(t, src.desync.HashState(), dst.desync.HashState())
	require.Equal(t, src.Store().NextID(), dst.Store().NextID())
	require.Equal(t, src.Now(), dst.Now())
	require.Equal(t, src.Phase(), dst.Phase())

	// Map containers round-trip through the {__type, data} marker.
	require.Equal(t, 0.10, dst.TeamEffect(TeamLeft, "damagePercent"))
}

func TestSaveRejectsUnknownVersion(t *testing.T) {
	src := populatedEngine()
	data, err := src.GetSaveData(0)
	require.NoError(t, err)

	data.SaveVersion = 3
	dst := newTestEngine(DefaultLevel())
	err = dst.LoadSaveData(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported save version")
}

func TestSaveAcceptsLegacyVersion(t *testing.T) {
	src := populatedEngine()
	data, err := src.GetSaveData(0)
	require.NoError(t, err)

	data.SaveVersion = SaveVersionLegacy
	dst := newTestEngine(DefaultLevel())
	require.NoError(t, dst.LoadSaveData(data))
}

func TestSaveExcludesAnimationState(t *testing.T) {
	src := populatedEngine()
	data, err := src.GetSaveData(0)
	require.NoError(t, err)

	for id, comps := range data.ECSData.Entities {
		_, ok := comps[CompAnimation]
		require.False(t, ok, "entity %d leaked animation state into the save", id)
	}
}

func TestResyncOverwritesLocalState(t *testing.T) {
	server := populatedEngine()
	snapshot, err := server.SerializeEntities()
	require.NoError(t, err)

	client := newTestEngine(DefaultLevel())
	client.SetPhase(PhasePlacement)
	// Divergent local state that the snapshot must obliterate.
	client.CreatePlayerEntity("stale", TeamLeft)

	require.NoError(t, client.ResyncEntities(snapshot))
	require.Equal(t, server.desync.HashState(), client.desync.HashState())
	require.Nil(t, client.StatsForPlayer("stale"))
}

func TestResyncRebuildsReservations(t *testing.T) {
	server := populatedEngine()
	snapshot, err := server.SerializeEntities()
	require.NoError(t, err)

	client := newTestEngine(DefaultLevel())
	require.NoError(t, client.ResyncEntities(snapshot))

	// The mirrored cells are occupied: the same footprint is invalid.
	req := PlacementRequest{
		GridPosition: GridPos{X: 10, Z: 7},
		Collection:   "standard",
		UnitTypeID:   "soldier",
		Team:         TeamRight,
		PlayerID:     "p2",
	}
	client.SetPhase(PhasePlacement)
	result := client.CreatePlacement(req)
	require.False(t, result.Success)
	require.Equal(t, "invalid placement cells", result.Reason)
}
