package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowFieldDirectionsPointToGoal(t *testing.T) {
	m := NewFlowFieldManager(openGrid(10, 10))
	field := m.GetOrCreate(85, 85, 0)

	// From the far corner the flow must head toward the goal.
	dir, ok := field.Direction(5, 5)
	require.True(t, ok)
	require.Greater(t, dir.X, 0.0)
	require.Greater(t, dir.Z, 0.0)

	// Diagonal directions are unit length.
	require.InDelta(t, 1.0, math.Hypot(dir.X, dir.Z), 1e-9)
}

func TestFlowFieldIntegerCosts(t *testing.T) {
	m := NewFlowFieldManager(openGrid(10, 10))
	field := m.GetOrCreate(5, 5, 0)

	// One cardinal step costs 10, one diagonal 14.
	require.Equal(t, 0.0, field.CostToGoal(5, 5))
	require.Equal(t, 10.0, field.CostToGoal(15, 5))
	require.Equal(t, 14.0, field.CostToGoal(15, 15))
	require.Equal(t, 20.0, field.CostToGoal(25, 5))
}

func TestFlowFieldUnreachableCells(t *testing.T) {
	blocked := make([]Cell, 0, 8)
	for z := 0; z < 8; z++ {
		blocked = append(blocked, Cell{X: 4, Z: z})
	}
	m := NewFlowFieldManager(blockedGrid(8, 8, blocked...))
	field := m.GetOrCreate(5, 5, 0)

	// Cells across the wall hold the unreachable sentinel: +Inf cost and
	// a null direction.
	require.True(t, math.IsInf(field.CostToGoal(65, 5), 1))
	_, ok := field.Direction(65, 5)
	require.False(t, ok)

	// The wall itself is impassable.
	_, ok = field.Direction(45, 5)
	require.False(t, ok)
}

func TestFlowFieldOutOfBoundsReturnsNull(t *testing.T) {
	m := NewFlowFieldManager(openGrid(8, 8))
	field := m.GetOrCreate(5, 5, 0)
	_, ok := field.Direction(-10, 5)
	require.False(t, ok)
	require.True(t, math.IsInf(field.CostToGoal(500, 5), 1))
}

func TestFlowFieldQuantizationIdempotence(t *testing.T) {
	m := NewFlowFieldManager(openGrid(10, 10))

	// Two destinations inside the same 64-unit quantization cell share
	// one field object; the hit only touches LastAccessed.
	a := m.GetOrCreate(10, 10, 1)
	b := m.GetOrCreate(50, 50, 2)
	require.Same(t, a, b)
	require.Equal(t, 2.0, a.LastAccessed)
	require.Equal(t, 1, m.Len())
}

func TestFlowFieldLRUEviction(t *testing.T) {
	// World wide enough for four distinct quantization cells.
	m := NewFlowFieldManager(openGrid(40, 10))
	m.SetCapacity(3)

	const spacing = DestinationQuantization
	first := m.GetOrCreate(5, 5, 1)
	m.GetOrCreate(5+spacing, 5, 2)
	m.GetOrCreate(5+2*spacing, 5, 3)

	m.AssignEntity(77, first.Key)
	if _, ok := m.EntityDirection(77, 300, 5); !ok {
		t.Fatal("entity should see a direction while its field is cached")
	}

	// Fourth field evicts the strictly least-recently-accessed one.
	m.GetOrCreate(5+3*spacing, 5, 4)
	require.Equal(t, 3, m.Len())
	_, stillCached := m.Get(first.Key)
	require.False(t, stillCached)

	// Entities bound to the evicted key now get null directions.
	_, ok := m.EntityDirection(77, 300, 5)
	require.False(t, ok)
}

func TestFlowFieldExpiry(t *testing.T) {
	m := NewFlowFieldManager(openGrid(40, 10))
	m.GetOrCreate(5, 5, 0)
	m.GetOrCreate(5+DestinationQuantization, 5, 9000)

	m.Expire(10500)
	require.Equal(t, 1, m.Len())
}

func TestFlowFieldIsAtGoal(t *testing.T) {
	m := NewFlowFieldManager(openGrid(10, 10))
	field := m.GetOrCreate(50, 50, 0)
	require.True(t, field.IsAtGoal(50, 50))
	require.True(t, field.IsAtGoal(55, 45))
	require.False(t, field.IsAtGoal(90, 50))
}
