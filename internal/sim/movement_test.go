package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// spawnMobile creates a full AI-driven unit of the given type at pos.
func spawnMobile(e *Engine, team TeamID, pos Vec3, collection, unitType int) EntityID {
	def, _ := UnitDefByIndex(collection, unitType)
	id := e.store.CreateEntity()
	e.store.AddComponent(id, CompTransform, &Transform{Position: pos})
	e.store.AddComponent(id, CompVelocity, &Velocity{MaxSpeed: def.MaxSpeed})
	e.store.AddComponent(id, CompCollision, &Collision{Radius: def.Radius})
	e.store.AddComponent(id, CompHealth, &Health{Current: def.MaxHP, Max: def.MaxHP})
	e.store.AddComponent(id, CompTeam, &Team{ID: team})
	e.store.AddComponent(id, CompUnitType, &UnitTypeRef{Collection: collection, Type: unitType})
	e.store.AddComponent(id, CompAIState, &AIState{CurrentActionCollection: -1, CurrentAction: -1})
	e.store.AddComponent(id, CompDeathState, &DeathState{State: DeathAlive})
	e.store.AddComponent(id, CompMovementState, &MovementState{})
	e.store.AddComponent(id, CompPathfinding, &Pathfinding{})
	e.store.AddComponent(id, CompCombat, &Combat{
		Damage: def.Damage, Range: def.Range, AttackCooldown: def.AttackCooldown, Element: def.Element,
	})
	return id
}

func TestMovementFollowsPlayerOrder(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: -100, Z: 0}, 0, 0)
	e.store.AddComponent(id, CompPlayerOrder, &PlayerOrder{
		TargetPosition: Vec3{X: 100, Z: 0},
	})

	start := e.store.GetComponent(id, CompTransform).(*Transform).Position.X
	stepFor(e, 60) // 2s
	now := e.store.GetComponent(id, CompTransform).(*Transform).Position.X
	require.Greater(t, now, start+10, "unit should advance toward the order target")
}

func TestMovementAnchoredNeverMoves(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnStatic(e, TeamLeft, Vec3{X: 10, Z: 20}, 100)
	stepFor(e, 30)

	tr := e.store.GetComponent(id, CompTransform).(*Transform)
	require.Equal(t, 10.0, tr.Position.X)
	require.Equal(t, 20.0, tr.Position.Z)
}

func TestMovementSpeedCap(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: -200, Z: 0}, 0, 0)
	e.store.AddComponent(id, CompPlayerOrder, &PlayerOrder{TargetPosition: Vec3{X: 500, Z: 0}})

	for i := 0; i < 90; i++ {
		e.Step()
		v := e.store.GetComponent(id, CompVelocity).(*Velocity)
		speed := math.Hypot(v.VX, v.VZ)
		require.LessOrEqual(t, speed, v.MaxSpeed*SpeedCapMultiplier+1e-9)
	}
}

func TestMovementSeparationPushesOverlappingUnitsApart(t *testing.T) {
	e := newBattleEngine(bigLevel())
	a := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	b := spawnMobile(e, TeamLeft, Vec3{X: 1, Z: 0}, 0, 0)

	stepFor(e, 45)

	ta := e.store.GetComponent(a, CompTransform).(*Transform)
	tb := e.store.GetComponent(b, CompTransform).(*Transform)
	dist := math.Hypot(ta.Position.X-tb.Position.X, ta.Position.Z-tb.Position.Z)
	require.Greater(t, dist, 1.0, "overlapping units should separate")
}

func TestMovementBoundsClamp(t *testing.T) {
	level := bigLevel()
	e := newBattleEngine(level)
	id := spawnMobile(e, TeamLeft, Vec3{X: level.HalfWidth() - 20, Z: 0}, 0, 0)
	// Order far past the arena edge.
	e.store.AddComponent(id, CompPlayerOrder, &PlayerOrder{TargetPosition: Vec3{X: level.HalfWidth() + 500, Z: 0}})

	stepFor(e, 120)

	tr := e.store.GetComponent(id, CompTransform).(*Transform)
	c := e.store.GetComponent(id, CompCollision).(*Collision)
	require.LessOrEqual(t, tr.Position.X, level.HalfWidth()-c.Radius+1e-9)
}

func TestMovementGroundClamp(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Y: 50, Z: 0}, 0, 0)
	v := e.store.GetComponent(id, CompVelocity).(*Velocity)
	v.AffectedByGravity = true

	stepFor(e, 120)

	tr := e.store.GetComponent(id, CompTransform).(*Transform)
	require.InDelta(t, 0.0, tr.Position.Y, 0.1, "unit should rest on the terrain")
	vv := e.store.GetComponent(id, CompVelocity).(*Velocity)
	require.GreaterOrEqual(t, vv.VY, 0.0)
}

func TestMovementLeapingSkipsIntegration(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Y: 30, Z: 0}, 0, 0)
	v := e.store.GetComponent(id, CompVelocity).(*Velocity)
	v.AffectedByGravity = true
	e.store.AddComponent(id, CompLeaping, &Leaping{IsLeaping: true})

	stepFor(e, 30)

	// While leaping the ability owns integration: no gravity, no clamps.
	tr := e.store.GetComponent(id, CompTransform).(*Transform)
	require.Equal(t, 30.0, tr.Position.Y)
}

func TestMovementWritesRoundedValues(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: -50, Z: 13}, 0, 0)
	e.store.AddComponent(id, CompPlayerOrder, &PlayerOrder{TargetPosition: Vec3{X: 90, Z: -77}})

	stepFor(e, 30)

	tr := e.store.GetComponent(id, CompTransform).(*Transform)
	require.Equal(t, Round6(tr.Position.X), tr.Position.X)
	require.Equal(t, Round6(tr.Position.Z), tr.Position.Z)
	require.Equal(t, Round6(tr.RotationY), tr.RotationY)
	v := e.store.GetComponent(id, CompVelocity).(*Velocity)
	require.Equal(t, Round6(v.VX), v.VX)
	require.Equal(t, Round6(v.VZ), v.VZ)
}

func TestDirectionChangesCountsOscillation(t *testing.T) {
	steady := []Vec2{{X: 1, Z: 0}, {X: 1, Z: 0.1}, {X: 1, Z: 0}, {X: 1, Z: 0.1}, {X: 1, Z: 0}}
	require.Zero(t, directionChanges(steady))

	flapping := []Vec2{{X: 1, Z: 0}, {X: -1, Z: 0}, {X: 1, Z: 0}, {X: -1, Z: 0}, {X: 1, Z: 0}}
	require.Equal(t, 4, directionChanges(flapping))
}
