package sim

import (
	"github.com/rs/zerolog"
)

// bigLevel is a flat arena wide enough that ability scenario positions
// stay inside the bound clamp.
func bigLevel() *Level {
	l := DefaultLevel()
	l.PlacementCellSize = 100 // half-extent 800
	return l
}

func newTestEngine(level *Level) *Engine {
	return NewEngine(Config{
		TickRate: 30,
		Level:    level,
		Seed:     42,
		Logger:   zerolog.Nop(),
	})
}

// newBattleEngine is a test engine already in the battle phase.
func newBattleEngine(level *Level) *Engine {
	e := newTestEngine(level)
	e.StartBattle()
	return e
}

// spawnStatic creates a minimal combat-less, AI-less unit pinned at a
// position. Anchored so the movement pass leaves it in place.
func spawnStatic(e *Engine, team TeamID, pos Vec3, hp float64) EntityID {
	id := e.store.CreateEntity()
	e.store.AddComponent(id, CompTransform, &Transform{Position: pos})
	e.store.AddComponent(id, CompVelocity, &Velocity{MaxSpeed: 20, Anchored: true})
	e.store.AddComponent(id, CompCollision, &Collision{Radius: DefaultUnitRadius})
	e.store.AddComponent(id, CompHealth, &Health{Current: hp, Max: hp})
	e.store.AddComponent(id, CompTeam, &Team{ID: team})
	e.store.AddComponent(id, CompDeathState, &DeathState{State: DeathAlive})
	return id
}

// stepFor advances the engine n ticks.
func stepFor(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.Step()
	}
}

func healthOf(e *Engine, id EntityID) float64 {
	h, ok := e.store.GetComponent(id, CompHealth).(*Health)
	if !ok {
		return -1
	}
	return h.Current
}
