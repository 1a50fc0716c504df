package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnimationIdleToWalk(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	e.store.AddComponent(id, CompAnimation, &AnimationState{CurrentClip: ClipIdle})
	e.store.AddComponent(id, CompPlayerOrder, &PlayerOrder{TargetPosition: Vec3{X: 200, Z: 0}})

	stepFor(e, 20)
	anim := e.store.GetComponent(id, CompAnimation).(*AnimationState)
	require.Equal(t, ClipWalk, anim.CurrentClip)
}

func TestAnimationDeathNeverReverts(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnStatic(e, TeamLeft, Vec3{}, 10)
	e.store.AddComponent(id, CompAnimation, &AnimationState{CurrentClip: ClipIdle})

	ds := e.store.GetComponent(id, CompDeathState).(*DeathState)
	ds.State = DeathDying
	e.Step()
	anim := e.store.GetComponent(id, CompAnimation).(*AnimationState)
	require.Equal(t, ClipDeath, anim.CurrentClip)

	// Even back-to-alive state cannot pull the clip off death.
	ds.State = DeathAlive
	stepFor(e, 30)
	anim = e.store.GetComponent(id, CompAnimation).(*AnimationState)
	require.Equal(t, ClipDeath, anim.CurrentClip)
}

func TestAnimationSinglePlayHoldsUntilNinetyPercent(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnStatic(e, TeamLeft, Vec3{}, 10)
	e.store.AddComponent(id, CompAnimation, &AnimationState{CurrentClip: ClipAttack})

	// Attack is 0.6s; 90% is 0.54s. Before that the desired idle clip
	// parks in PendingClip.
	stepFor(e, 10) // 0.33s
	anim := e.store.GetComponent(id, CompAnimation).(*AnimationState)
	require.Equal(t, ClipAttack, anim.CurrentClip)
	require.Equal(t, ClipIdle, anim.PendingClip)

	stepFor(e, 10) // 0.66s total
	anim = e.store.GetComponent(id, CompAnimation).(*AnimationState)
	require.Equal(t, ClipIdle, anim.CurrentClip)
}

func TestResolveClipFallbackChain(t *testing.T) {
	available := map[string]bool{"combat": true, "idle": true}
	require.Equal(t, "combat", ResolveClip(ClipAttack, available))
	require.Equal(t, ClipAttack, ResolveClip(ClipAttack, map[string]bool{"attack": true}))
	require.Equal(t, ClipIdle, ResolveClip("somersault", map[string]bool{"idle": true}))
}

func TestSpriteDirectionPerspectiveSnapsCamera(t *testing.T) {
	// Facing the same way the camera looks (back to the camera).
	require.Equal(t, 4, SpriteDirection(0, 0, false, Vec2{}))
	// A camera yaw just off a pi/4 step snaps onto it.
	a := SpriteDirection(0, math.Pi/4, false, Vec2{})
	b := SpriteDirection(0, math.Pi/4+0.05, false, Vec2{})
	require.Equal(t, a, b)
}

func TestSpriteDirectionOrthographicUsesForwardVector(t *testing.T) {
	d1 := SpriteDirection(0, 0, true, Vec2{X: 0, Z: 1})
	d2 := SpriteDirection(math.Pi/2, 0, true, Vec2{X: 0, Z: 1})
	require.NotEqual(t, d1, d2)
	require.GreaterOrEqual(t, d1, 0)
	require.Less(t, d1, 8)
}

func TestSpriteFrameLoopingAndHold(t *testing.T) {
	require.Equal(t, 2, SpriteFrame(0.25, 8, 10, true))
	require.Equal(t, 1, SpriteFrame(0.95, 8, 10, true)) // 9 % 8
	// Non-looping clips hold the last frame.
	require.Equal(t, 7, SpriteFrame(5, 8, 10, false))
	require.Equal(t, 0, SpriteFrame(1, 0, 10, true))
}
