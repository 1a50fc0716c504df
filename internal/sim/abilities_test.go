package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeteorPicksDensestCluster(t *testing.T) {
	e := newBattleEngine(bigLevel())
	caster := spawnStatic(e, TeamRight, Vec3{X: 500, Z: 0}, 100)
	near1 := spawnStatic(e, TeamLeft, Vec3{X: 0, Z: 0}, 100)
	near2 := spawnStatic(e, TeamLeft, Vec3{X: 10, Z: 0}, 100)
	far := spawnStatic(e, TeamLeft, Vec3{X: 200, Z: 0}, 100)

	ability, ok := AbilityByName(AbilityMeteor)
	require.True(t, ok)
	require.True(t, ability.CanExecute(e, caster))
	ability.Execute(e, caster)

	// Nothing lands before castTime+delay (1.6s).
	stepFor(e, 45) // 1.5s
	require.Equal(t, 100.0, healthOf(e, near1))

	stepFor(e, 5) // past 1.6s
	// Impact at (10,0): the pair beats the lone enemy at (200,0). Both
	// covered enemies take damage with distance falloff >= 0.5.
	require.Equal(t, 60.0, healthOf(e, near2), "impact center takes full damage")
	require.Equal(t, 62.0, healthOf(e, near1), "falloff 1-0.5*10/120 on 40 damage")
	require.Equal(t, 100.0, healthOf(e, far), "outside splash radius")
}

func TestChainLightningDeterministicBounces(t *testing.T) {
	e := newBattleEngine(bigLevel())
	caster := spawnStatic(e, TeamRight, Vec3{X: -30, Z: 0}, 100)
	first := spawnStatic(e, TeamLeft, Vec3{X: 0, Z: 0}, 100)
	second := spawnStatic(e, TeamLeft, Vec3{X: 50, Z: 0}, 100)
	third := spawnStatic(e, TeamLeft, Vec3{X: 100, Z: 0}, 100)
	outOfReach := spawnStatic(e, TeamLeft, Vec3{X: 250, Z: 0}, 100)

	ability, ok := AbilityByName(AbilityChainLightning)
	require.True(t, ok)
	ability.Execute(e, caster)

	stepFor(e, 30) // 1.0s, past every jump

	// Hits land in chain order with per-jump reduction, floored:
	// 60, 60*0.8=48, 60*0.64=38.4 -> 38.
	require.Equal(t, 40.0, healthOf(e, first))
	require.Equal(t, 52.0, healthOf(e, second))
	require.Equal(t, 62.0, healthOf(e, third))
	// The fourth enemy is beyond jumpRange of the third: untouched.
	require.Equal(t, 100.0, healthOf(e, outOfReach))
}

func TestChainLightningJumpTimingsAreStaggered(t *testing.T) {
	e := newBattleEngine(bigLevel())
	caster := spawnStatic(e, TeamRight, Vec3{X: -30, Z: 0}, 100)
	first := spawnStatic(e, TeamLeft, Vec3{X: 0, Z: 0}, 100)
	second := spawnStatic(e, TeamLeft, Vec3{X: 50, Z: 0}, 100)

	ability, _ := AbilityByName(AbilityChainLightning)
	ability.Execute(e, caster)

	// castTime 0.5: first hit due at 0.5, second at 0.65.
	stepFor(e, 17) // ~0.567s
	require.Equal(t, 40.0, healthOf(e, first))
	require.Equal(t, 100.0, healthOf(e, second))

	stepFor(e, 4) // ~0.7s
	require.Equal(t, 52.0, healthOf(e, second))
}

func TestShadowStrikeTeleportAndBackstab(t *testing.T) {
	e := newBattleEngine(bigLevel())
	caster := spawnStatic(e, TeamRight, Vec3{X: 100, Z: 0}, 100)
	victim := spawnStatic(e, TeamLeft, Vec3{X: 0, Z: 0}, 300)

	ability, ok := AbilityByName(AbilityShadowStrike)
	require.True(t, ok)
	ability.Execute(e, caster)

	stepFor(e, 15) // past castTime 0.4

	// First teleport offset (-25,-25) relative to the victim is within
	// the coordinate bound, so it wins.
	ct := e.store.GetComponent(caster, CompTransform).(*Transform)
	require.Equal(t, -25.0, ct.Position.X)
	require.Equal(t, -25.0, ct.Position.Z)

	// 30 base, x2 critical, x1.5 backstab -> 90.
	require.Equal(t, 210.0, healthOf(e, victim))
}

func TestShadowStrikeCooldownGates(t *testing.T) {
	e := newBattleEngine(bigLevel())
	caster := spawnStatic(e, TeamRight, Vec3{X: 50, Z: 0}, 100)
	spawnStatic(e, TeamLeft, Vec3{X: 0, Z: 0}, 300)

	ability, _ := AbilityByName(AbilityShadowStrike)
	require.True(t, ability.CanExecute(e, caster))
	ability.Execute(e, caster)
	require.False(t, ability.CanExecute(e, caster), "cooldown not elapsed")
}

func TestAbilityGateRequiresEnemyInRange(t *testing.T) {
	e := newBattleEngine(bigLevel())
	caster := spawnStatic(e, TeamRight, Vec3{X: 0, Z: 0}, 100)
	// Closest enemy sits beyond chain lightning's 120 range.
	spawnStatic(e, TeamLeft, Vec3{X: 400, Z: 0}, 100)

	ability, _ := AbilityByName(AbilityChainLightning)
	require.False(t, ability.CanExecute(e, caster))
}

func TestJaggedPathIsDeterministic(t *testing.T) {
	a := JaggedPath(Vec3{X: 1, Y: 2, Z: 3}, 6)
	b := JaggedPath(Vec3{X: 1, Y: 2, Z: 3}, 6)
	require.Equal(t, a, b)
	require.Len(t, a, 6)
}
