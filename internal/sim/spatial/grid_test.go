package spatial

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNearbyIndexQuerySquare(t *testing.T) {
	idx := NewNearbyIndex(100, 100, 20)
	idx.Insert(3, 0, 0)
	idx.Insert(1, 5, 5)
	idx.Insert(2, 50, 50)
	idx.Insert(4, -5, -5)

	// Square query of side 2*10 around the origin, excluding self.
	got := idx.QuerySquare(0, 0, 10, 3)
	require.Equal(t, []int64{1, 4}, got)
}

func TestNearbyIndexZeroRadius(t *testing.T) {
	idx := NewNearbyIndex(100, 100, 20)
	idx.Insert(1, 0, 0)
	require.Empty(t, idx.QuerySquare(0, 0, 0, 99))
}

func TestNearbyIndexHugeRadiusReturnsAllAscending(t *testing.T) {
	idx := NewNearbyIndex(100, 100, 20)
	idx.Insert(9, 80, -80)
	idx.Insert(2, -90, 90)
	idx.Insert(5, 0, 0)

	got := idx.QuerySquare(0, 0, 1e6, -1)
	require.Equal(t, []int64{2, 5, 9}, got)
}

func TestNearbyIndexSquareNotCircle(t *testing.T) {
	idx := NewNearbyIndex(100, 100, 20)
	// Corner of the square: inside the square, outside the circle.
	idx.Insert(1, 9, 9)
	got := idx.QuerySquare(0, 0, 10, -1)
	require.Equal(t, []int64{1}, got)
}

func newReservations() *Reservations {
	return NewReservations(16, 16, &gridSource{cols: 8, rows: 8})
}

func TestReservationsValidPlacement(t *testing.T) {
	r := newReservations()
	cells := []Cell{{X: 2, Z: 7}, {X: 3, Z: 7}, {X: 2, Z: 8}, {X: 3, Z: 8}}
	require.True(t, r.IsValid(cells, "left"))

	r.Reserve(cells, "left", 10, 1)
	// Overlap on the same team is invalid.
	require.False(t, r.IsValid([]Cell{{X: 3, Z: 8}}, "left"))
	// The other team has its own table, but side validation still
	// rejects cells on the wrong half.
	require.False(t, r.IsValid([]Cell{{X: 3, Z: 8}}, "right"))
}

func TestReservationsTeamSides(t *testing.T) {
	r := newReservations()
	require.False(t, r.IsValid([]Cell{{X: 8, Z: 0}}, "left"))
	require.True(t, r.IsValid([]Cell{{X: 8, Z: 0}}, "right"))
	require.False(t, r.IsValid([]Cell{{X: 7, Z: 0}}, "right"))
	require.False(t, r.IsValid([]Cell{{X: -1, Z: 0}}, "left"))
	require.False(t, r.IsValid([]Cell{{X: 0, Z: 16}}, "left"))
}

func TestReservationsRelease(t *testing.T) {
	r := newReservations()
	cells := []Cell{{X: 1, Z: 1}, {X: 2, Z: 1}}
	r.Reserve(cells, "left", 5, 42)

	holder, ok := r.Holder(Cell{X: 1, Z: 1}, "left")
	require.True(t, ok)
	require.Equal(t, int64(5), holder)
	require.Equal(t, cells, r.HeldBy(42))

	r.Release(42)
	_, ok = r.Holder(Cell{X: 1, Z: 1}, "left")
	require.False(t, ok)
	require.Empty(t, r.HeldBy(42))
}

func TestPlacementToTerrain(t *testing.T) {
	require.Equal(t, Cell{X: 1, Z: 3}, PlacementToTerrain(Cell{X: 2, Z: 7}))
	require.Equal(t, Cell{X: 0, Z: 0}, PlacementToTerrain(Cell{X: 1, Z: 1}))
	require.Equal(t, Cell{X: -1, Z: -1}, PlacementToTerrain(Cell{X: -1, Z: -2}))
}
