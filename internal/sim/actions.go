package sim

// moveAction drives the unit toward meta.TargetPosition. The movement
// pass does the actual steering; the action only maintains intent and
// reports arrival.
type moveAction struct{}

func (moveAction) Name() string { return ActionMove }

func (moveAction) OnStart(e *Engine, id EntityID, meta *BehaviorMeta) {}

func (moveAction) Execute(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorStatus {
	if meta.TargetPosition == nil {
		return StatusFailure
	}
	t, ok := e.store.GetComponent(id, CompTransform).(*Transform)
	if !ok {
		return StatusFailure
	}
	dx := meta.TargetPosition.X - t.Position.X
	dz := meta.TargetPosition.Z - t.Position.Z
	if dx*dx+dz*dz <= arrivalDistance*arrivalDistance {
		meta.TargetPosition = nil
		return StatusSuccess
	}
	return StatusRunning
}

func (moveAction) OnEnd(e *Engine, id EntityID, meta *BehaviorMeta) {
	meta.TargetPosition = nil
	e.paths.ClearEntityPath(int64(id))
}

// attackEnemyAction holds position and lets the combat pass fire when the
// cooldown allows. Running while the target exists and has health left;
// range is not checked here.
type attackEnemyAction struct{}

func (attackEnemyAction) Name() string { return ActionAttackEnemy }

func (attackEnemyAction) OnStart(e *Engine, id EntityID, meta *BehaviorMeta) {}

func (attackEnemyAction) Execute(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorStatus {
	target := meta.TargetEntity
	if target == NoEntity || !e.store.Exists(target) {
		return StatusSuccess
	}
	if h, ok := e.store.GetComponent(target, CompHealth).(*Health); ok && h.Current <= 0 {
		return StatusSuccess
	}
	return StatusRunning
}

func (attackEnemyAction) OnEnd(e *Engine, id EntityID, meta *BehaviorMeta) {
	meta.TargetEntity = NoEntity
}

// combatAction is the generic engage leaf kept for units whose trees
// drive combat without a specific target (defensive stances).
type combatAction struct{}

func (combatAction) Name() string { return ActionCombat }

func (combatAction) OnStart(e *Engine, id EntityID, meta *BehaviorMeta) {}

func (combatAction) Execute(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorStatus {
	if e.ClosestEnemy(id) == NoEntity {
		return StatusSuccess
	}
	return StatusRunning
}

func (combatAction) OnEnd(e *Engine, id EntityID, meta *BehaviorMeta) {}

// mineAction sends a worker gathering; gold accrues to the owning player
// at a fixed rate while the action runs.
type mineAction struct{}

func (mineAction) Name() string { return ActionMine }

func (mineAction) OnStart(e *Engine, id EntityID, meta *BehaviorMeta) {}

func (mineAction) Execute(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorStatus {
	p, ok := e.store.GetComponent(id, CompPlacement).(*Placement)
	if !ok {
		return StatusFailure
	}
	stats := e.StatsForPlayer(p.PlayerID)
	if stats == nil {
		return StatusFailure
	}
	// Whole-gold trickle keyed to tick count keeps both peers integral.
	if e.tick%int64(1.0/e.fixedDelta) == 0 {
		stats.Gold += minegoldPerSecond
	}
	return StatusRunning
}

func (mineAction) OnEnd(e *Engine, id EntityID, meta *BehaviorMeta) {}

const minegoldPerSecond = 1

// buildAction advances construction on the builder's assigned building.
type buildAction struct{}

func (buildAction) Name() string { return ActionBuild }

func (buildAction) OnStart(e *Engine, id EntityID, meta *BehaviorMeta) {}

func (buildAction) Execute(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorStatus {
	bs, ok := e.store.GetComponent(id, CompBuildingState).(*BuildingState)
	if !ok || bs.TargetBuilding == NoEntity {
		return StatusFailure
	}
	// Non-owning reference: validate before use.
	building := bs.TargetBuilding
	if !e.store.Exists(building) {
		bs.TargetBuilding = NoEntity
		bs.IsBuilding = false
		return StatusFailure
	}
	p, ok := e.store.GetComponent(building, CompPlacement).(*Placement)
	if !ok || !p.IsUnderConstruction {
		bs.IsBuilding = false
		return StatusSuccess
	}
	h, ok := e.store.GetComponent(building, CompHealth).(*Health)
	if !ok {
		return StatusFailure
	}
	bs.IsBuilding = true
	h.Current += buildRatePerSecond * e.fixedDelta
	if h.Current >= h.Max {
		h.Current = h.Max
		p.IsUnderConstruction = false
		bs.IsBuilding = false
		return StatusSuccess
	}
	return StatusRunning
}

func (buildAction) OnEnd(e *Engine, id EntityID, meta *BehaviorMeta) {
	if bs, ok := e.store.GetComponent(id, CompBuildingState).(*BuildingState); ok {
		bs.IsBuilding = false
	}
}

const buildRatePerSecond = 20.0

// idleAction does nothing and always reports running.
type idleAction struct{}

func (idleAction) Name() string { return ActionIdle }

func (idleAction) OnStart(e *Engine, id EntityID, meta *BehaviorMeta)              {}
func (idleAction) Execute(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorStatus { return StatusRunning }
func (idleAction) OnEnd(e *Engine, id EntityID, meta *BehaviorMeta)                {}

// castAbilityAction runs while a cast is in flight. The ability scheduled
// its deferred effects at cast start; this leaf just holds the unit in
// the cast until castTime elapses.
type castAbilityAction struct{}

func (castAbilityAction) Name() string { return ActionCastAbility }

func (castAbilityAction) OnStart(e *Engine, id EntityID, meta *BehaviorMeta) {
	ability, ok := AbilityByName(meta.CastingAbility)
	if !ok {
		return
	}
	ability.Execute(e, id)
}

func (castAbilityAction) Execute(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorStatus {
	if meta.CastingAbility == "" {
		return StatusFailure
	}
	if e.now >= meta.CastUntil {
		meta.CastingAbility = ""
		return StatusSuccess
	}
	return StatusRunning
}

func (castAbilityAction) OnEnd(e *Engine, id EntityID, meta *BehaviorMeta) {
	meta.CastingAbility = ""
}
