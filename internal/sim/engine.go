package sim

import (
	"time"

	"github.com/rs/zerolog"

	"battleforge/internal/sim/spatial"
)

// Phase is the coordinator-driven game phase.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhasePlacement  Phase = "placement"
	PhaseBattle     Phase = "battle"
	PhasePostBattle Phase = "postBattle"
)

// Simulation-wide event hooks (see TriggerEvent).
const (
	EventGameStarted         = "onGameStarted"
	EventBattleStart         = "onBattleStart"
	EventBattleEnd           = "onBattleEnd"
	EventPlacementPhaseStart = "onPlacementPhaseStart"
	EventIssuedPlayerOrders  = "onIssuedPlayerOrders"
	EventBillboardSpawned    = "onBillboardSpawned"
)

// maxPathRequestsPerTick bounds the background A* work drained at each
// tick boundary.
const maxPathRequestsPerTick = 8

// Config configures an engine instance.
type Config struct {
	TickRate       int
	BattleDuration float64
	Level          *Level
	Seed           uint64
	Renderer       Renderer
	Logger         zerolog.Logger
}

// Engine is the deterministic lockstep game state. Server and client each
// run one; both advance it identically from the same seed, inputs and
// snapshot. Everything happens on the simulation goroutine: the engine is
// single-threaded, cooperative and tick-driven by design, and the only
// legitimate suspension point is between ticks.
type Engine struct {
	log      zerolog.Logger
	store    *Store
	level    *Level
	terrain  Terrain
	renderer Renderer
	rng      *RNG

	phase      Phase
	now        float64
	fixedDelta float64
	tick       int64
	round      int

	battleStartTime float64
	battleDuration  float64
	paused          bool

	scheduler    *ActionScheduler
	nearby       *spatial.NearbyIndex
	paths        *spatial.PathManager
	flows        *spatial.FlowFieldManager
	reservations *spatial.Reservations
	behaviors    *BehaviorRegistry
	behaviorMeta map[EntityID]*BehaviorMeta

	destroyCallbacks map[EntityID][]func()
	teamEffects      map[TeamID]map[string]float64
	damageQueue      []DamageRequest
	damageSeq        uint64
	listeners        map[string][]func(any)
	desync           *DesyncDetector

	nextPlacementID int
	undoStacks      map[string][]int

	// onTickDone reports tick wall duration for observability; nil on
	// clients.
	onTickDone func(seconds float64)
}

// NewEngine builds an engine over a level. The seed is the battle seed;
// the coordinator reseeds at each battle start.
func NewEngine(cfg Config) *Engine {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 30
	}
	if cfg.BattleDuration <= 0 {
		cfg.BattleDuration = 60
	}
	if cfg.Level == nil {
		cfg.Level = DefaultLevel()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NopRenderer{}
	}

	level := cfg.Level
	nav := level.NavGrid()

	e := &Engine{
		log:              cfg.Logger,
		store:            NewStore(),
		level:            level,
		terrain:          level,
		renderer:         cfg.Renderer,
		rng:              NewRNG(cfg.Seed),
		phase:            PhaseLobby,
		fixedDelta:       1.0 / float64(cfg.TickRate),
		battleDuration:   cfg.BattleDuration,
		scheduler:        NewActionScheduler(cfg.Logger),
		nearby:           spatial.NewNearbyIndex(level.HalfWidth(), level.HalfHeight(), level.TerrainCellSize()),
		paths:            spatial.NewPathManager(nav),
		flows:            spatial.NewFlowFieldManager(nav),
		reservations:     spatial.NewReservations(level.PlacementCols, level.PlacementRows, level),
		behaviorMeta:     make(map[EntityID]*BehaviorMeta),
		destroyCallbacks: make(map[EntityID][]func()),
		teamEffects: map[TeamID]map[string]float64{
			TeamLeft:  {},
			TeamRight: {},
		},
		listeners:  make(map[string][]func(any)),
		undoStacks: make(map[string][]int),
	}
	e.behaviors = NewBehaviorRegistry()
	e.desync = NewDesyncDetector(e)
	return e
}

// Store exposes the entity/component registry.
func (e *Engine) Store() *Store { return e.store }

// Level returns the static battlefield description.
func (e *Engine) Level() *Level { return e.level }

// Terrain returns the terrain surface.
func (e *Engine) Terrain() Terrain { return e.terrain }

// Renderer returns the effect sink.
func (e *Engine) Renderer() Renderer { return e.renderer }

// RNG returns the battle random stream.
func (e *Engine) RNG() *RNG { return e.rng }

// Now returns the current simulation time in seconds.
func (e *Engine) Now() float64 { return e.now }

// Delta returns the fixed tick duration.
func (e *Engine) Delta() float64 { return e.fixedDelta }

// TickCount returns the number of completed ticks.
func (e *Engine) TickCount() int64 { return e.tick }

// Phase returns the current game phase.
func (e *Engine) Phase() Phase { return e.phase }

// Round returns the current round number.
func (e *Engine) Round() int { return e.round }

// Paused reports whether the battle safety cap tripped.
func (e *Engine) Paused() bool { return e.paused }

// Scheduler returns the deferred action scheduler.
func (e *Engine) Scheduler() *ActionScheduler { return e.scheduler }

// Paths returns the pathfinding manager.
func (e *Engine) Paths() *spatial.PathManager { return e.paths }

// Flows returns the flow-field manager.
func (e *Engine) Flows() *spatial.FlowFieldManager { return e.flows }

// Reservations returns the placement-cell reservation table.
func (e *Engine) Reservations() *spatial.Reservations { return e.reservations }

// Desync returns the divergence detector.
func (e *Engine) Desync() *DesyncDetector { return e.desync }

// SetTickObserver installs a wall-clock tick duration callback.
func (e *Engine) SetTickObserver(fn func(seconds float64)) { e.onTickDone = fn }

// SetPhase transitions the game phase. The coordinator owns transitions.
func (e *Engine) SetPhase(p Phase) {
	e.phase = p
	if p == PhasePlacement {
		e.TriggerEvent(EventPlacementPhaseStart, e.round)
	}
}

// SetRound updates the round counter.
func (e *Engine) SetRound(r int) { e.round = r }

// ResetCurrentTime rewinds simulation time to zero. Called by the
// coordinator immediately before serializing the battle-start snapshot so
// both peers begin the battle at t=0.
func (e *Engine) ResetCurrentTime() {
	e.now = 0
	e.tick = 0
	e.battleStartTime = 0
	e.paused = false
}

// ReseedRNG installs the per-battle random stream.
func (e *Engine) ReseedRNG(seed uint64) {
	e.rng = NewRNG(seed)
}

// Step advances the simulation one fixed tick. Tick order is strict:
// scheduler, behavior, movement, combat, lifetime, animation, desync
// hash. Within each pass entities are processed in ascending-ID order.
// The placement phase runs a reduced tick without movement or combat.
func (e *Engine) Step() {
	started := time.Now()

	e.tick++
	e.now += e.fixedDelta

	// Battle safety cap: the client pauses once the nominal duration has
	// elapsed so it cannot outrun the server; BATTLE_END is authoritative.
	if e.phase == PhaseBattle && e.now-e.battleStartTime >= e.battleDuration {
		e.paused = true
	}

	e.scheduler.RunDue(e.now)

	if e.phase == PhaseBattle && !e.paused {
		e.paths.ProcessQueue(maxPathRequestsPerTick)
		e.rebuildNearbyIndex()
		e.runBehaviorPass()
		e.runMovementPass()
		e.runCombatPass()
	}

	e.expireLifetimes()
	e.runAnimationPass()
	e.flows.Expire(e.now)

	if e.phase == PhaseBattle {
		e.desync.RecordTick()
	}

	if e.onTickDone != nil {
		e.onTickDone(time.Since(started).Seconds())
	}
}

// rebuildNearbyIndex refreshes the uniform grid from current transforms.
func (e *Engine) rebuildNearbyIndex() {
	e.nearby.Clear()
	for _, id := range e.store.EntitiesWith(CompTransform, CompCollision) {
		if ds, ok := e.store.GetComponent(id, CompDeathState).(*DeathState); ok && ds.State == DeathCorpse {
			continue
		}
		t := e.store.GetComponent(id, CompTransform).(*Transform)
		e.nearby.Insert(int64(id), t.Position.X, t.Position.Z)
	}
}

// GetNearbyUnits returns live entity IDs within a square of side
// 2*radius centered on pos, excluding self, ascending by ID.
func (e *Engine) GetNearbyUnits(pos Vec3, radius float64, self EntityID) []EntityID {
	raw := e.nearby.QuerySquare(pos.X, pos.Z, radius, int64(self))
	out := make([]EntityID, len(raw))
	for i, id := range raw {
		out[i] = EntityID(id)
	}
	return out
}

// DestroyEntity tears an entity down: destruction callbacks first, then
// scheduler/path/flow cleanup, then the store record.
func (e *Engine) DestroyEntity(id EntityID) {
	if !e.store.Exists(id) {
		return
	}
	for _, fn := range e.destroyCallbacks[id] {
		fn()
	}
	delete(e.destroyCallbacks, id)
	delete(e.behaviorMeta, id)
	e.scheduler.EntityDestroyed(id)
	e.paths.EntityDestroyed(int64(id))
	e.flows.EntityDestroyed(int64(id))
	e.store.DestroyEntity(id)
}

// On registers a listener for a simulation-wide hook.
func (e *Engine) On(name string, fn func(data any)) {
	e.listeners[name] = append(e.listeners[name], fn)
}

// TriggerEvent fires a simulation-wide hook. Listener panics are isolated
// so one bad listener cannot poison the tick.
func (e *Engine) TriggerEvent(name string, data any) {
	for _, fn := range e.listeners[name] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error().Str("event", name).Interface("panic", r).
						Msg("event listener panicked, skipping")
				}
			}()
			fn(data)
		}()
	}
}

// StartBattle flips to the battle phase. The coordinator calls this after
// time reset, target application and AI reset.
func (e *Engine) StartBattle() {
	e.phase = PhaseBattle
	e.battleStartTime = e.now
	e.paused = false
	e.TriggerEvent(EventBattleStart, e.round)
}

// EndBattle transitions to post-battle.
func (e *Engine) EndBattle() {
	e.phase = PhasePostBattle
	e.paused = false
	e.TriggerEvent(EventBattleEnd, e.round)
}

// ResetAI clears combat timers and behavior state on every unit so the
// battle opens without stale cooldowns. Called server-side before the
// snapshot is serialized.
func (e *Engine) ResetAI() {
	for _, id := range e.store.EntitiesWith(CompCombat) {
		c := e.store.GetComponent(id, CompCombat).(*Combat)
		c.LastAttack = 0
	}
	for _, id := range e.store.EntitiesWith(CompAIState) {
		ai := e.store.GetComponent(id, CompAIState).(*AIState)
		ai.CurrentActionCollection = -1
		ai.CurrentAction = -1
		ai.Status = StatusNone
	}
	e.behaviorMeta = make(map[EntityID]*BehaviorMeta)
}

// ApplyTargetPositions stamps each placement's target position into a
// player order on its units, so battle AI starts moving immediately.
func (e *Engine) ApplyTargetPositions() {
	for _, id := range e.store.EntitiesWith(CompPlacement) {
		p := e.store.GetComponent(id, CompPlacement).(*Placement)
		if p.TargetPosition == nil {
			continue
		}
		e.store.AddComponent(id, CompPlayerOrder, &PlayerOrder{
			TargetPosition: *p.TargetPosition,
			IssuedTime:     e.now,
		})
	}
}
