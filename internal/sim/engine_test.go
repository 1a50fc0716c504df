package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTickInvariants(t *testing.T) {
	e := newBattleEngine(bigLevel())
	for i := 0; i < 3; i++ {
		spawnMobile(e, TeamLeft, Vec3{X: -100, Z: float64(i * 30)}, 0, 0)
		spawnMobile(e, TeamRight, Vec3{X: 100, Z: float64(i * 30)}, 0, 0)
	}

	for tick := 0; tick < 200; tick++ {
		e.Step()
		for _, id := range e.store.EntitiesWith(CompHealth) {
			h := e.store.GetComponent(id, CompHealth).(*Health)
			require.GreaterOrEqual(t, h.Current, 0.0)
			require.LessOrEqual(t, h.Current, h.Max)
		}
		for _, id := range e.store.EntitiesWith(CompVelocity) {
			v := e.store.GetComponent(id, CompVelocity).(*Velocity)
			if v.MaxSpeed > 0 {
				require.LessOrEqual(t, math.Hypot(v.VX, v.VZ), v.MaxSpeed*SpeedCapMultiplier+1e-9)
			}
		}
		for _, id := range e.store.EntitiesWith(CompTransform) {
			if lp, ok := e.store.GetComponent(id, CompLeaping).(*Leaping); ok && lp.IsLeaping {
				continue
			}
			tr := e.store.GetComponent(id, CompTransform).(*Transform)
			if h, ok := e.terrain.HeightAt(tr.Position.X, tr.Position.Z); ok {
				require.GreaterOrEqual(t, tr.Position.Y+0.1, h)
			}
		}
	}
}

func TestCombatKillsAndDeathProgression(t *testing.T) {
	e := newBattleEngine(bigLevel())
	attacker := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	victim := spawnStatic(e, TeamRight, Vec3{X: 5, Z: 0}, 20)

	// Soldier: 12 damage, 1.2s cooldown. Two hits kill a 20hp target.
	stepFor(e, 60) // 2s
	require.Equal(t, 0.0, healthOf(e, victim))

	ds := e.store.GetComponent(victim, CompDeathState).(*DeathState)
	require.Equal(t, DeathDying, ds.State)
	require.True(t, ds.IsDying)

	// Dying -> corpse after the dying duration.
	stepFor(e, 45) // +1.5s
	ds = e.store.GetComponent(victim, CompDeathState).(*DeathState)
	require.Equal(t, DeathCorpse, ds.State)

	// Corpse expires and the entity destroys.
	stepFor(e, 120) // +4s
	require.False(t, e.store.Exists(victim))

	// The attacker's meta target cleared once the victim died.
	require.True(t, e.store.Exists(attacker))
}

func TestCombatRespectsCooldown(t *testing.T) {
	e := newBattleEngine(bigLevel())
	spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	victim := spawnStatic(e, TeamRight, Vec3{X: 5, Z: 0}, 1000)

	stepFor(e, 30) // 1s: exactly one attack fits a 1.2s cooldown
	require.Equal(t, 988.0, healthOf(e, victim))
}

func TestTeamDamageUpgradeAppliesInPipeline(t *testing.T) {
	e := newBattleEngine(bigLevel())
	attacker := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	victim := spawnStatic(e, TeamRight, Vec3{X: 5, Z: 0}, 1000)
	_ = attacker

	e.teamEffects[TeamLeft]["damagePercent"] = 0.10

	stepFor(e, 30)
	// 12 * 1.10 = 13.2, floored to 13.
	require.Equal(t, 987.0, healthOf(e, victim))
}

func TestBattleSafetyCapPausesSimulation(t *testing.T) {
	e := NewEngine(Config{TickRate: 30, BattleDuration: 0.5, Level: bigLevel(), Seed: 1})
	e.StartBattle()
	require.False(t, e.Paused())
	stepFor(e, 20)
	require.True(t, e.Paused(), "client pauses at battleDuration to avoid outrunning the server")
}

func TestPlacementPhaseRunsReducedTick(t *testing.T) {
	e := newTestEngine(bigLevel())
	e.SetPhase(PhasePlacement)
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	e.store.AddComponent(id, CompPlayerOrder, &PlayerOrder{TargetPosition: Vec3{X: 100, Z: 0}})

	stepFor(e, 30)

	// No movement or combat outside battle; the scheduler still runs.
	tr := e.store.GetComponent(id, CompTransform).(*Transform)
	require.Equal(t, 0.0, tr.Position.X)

	fired := false
	e.scheduler.Schedule(func() { fired = true }, 0.01, e.Now(), NoEntity)
	e.Step()
	require.True(t, fired)
}

func TestGetNearbyUnitsContract(t *testing.T) {
	e := newBattleEngine(bigLevel())
	a := spawnStatic(e, TeamLeft, Vec3{X: 0, Z: 0}, 10)
	b := spawnStatic(e, TeamLeft, Vec3{X: 5, Z: 5}, 10)
	c := spawnStatic(e, TeamLeft, Vec3{X: 300, Z: 0}, 10)
	e.Step()

	require.Empty(t, e.GetNearbyUnits(Vec3{}, 0, NoEntity))

	got := e.GetNearbyUnits(Vec3{}, 10, a)
	require.Equal(t, []EntityID{b}, got)

	all := e.GetNearbyUnits(Vec3{}, 1e6, NoEntity)
	require.Equal(t, []EntityID{a, b, c}, all)
}

func TestTriggerEventListeners(t *testing.T) {
	e := newTestEngine(bigLevel())
	var got []string
	e.On(EventBattleStart, func(data any) { got = append(got, "first") })
	e.On(EventBattleStart, func(data any) { panic("listener bug") })
	e.On(EventBattleStart, func(data any) { got = append(got, "third") })

	e.StartBattle()
	require.Equal(t, []string{"first", "third"}, got)
}

func TestDestroyEntityCancelsScheduledActions(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnStatic(e, TeamLeft, Vec3{}, 10)

	fired := false
	e.scheduler.Schedule(func() { fired = true }, 0.1, e.Now(), id)
	e.DestroyEntity(id)
	stepFor(e, 10)
	require.False(t, fired)
}
