package sim

// Behavior collection indices. aiState persists (collection, index) pairs
// so transported state stays small integers; these constants name the two
// collections.
const (
	CollectionBehaviorTrees   = 0
	CollectionBehaviorActions = 1
)

// Tree and action names. Trees are composites; actions are executable
// leaves with lifecycle hooks.
const (
	TreeUniversal = "UniversalBehaviorTree"
	TreeCombat    = "CombatBehaviorTree"
	TreeAbilities = "AbilitiesBehaviorTree"

	ActionMove        = "Move"
	ActionAttackEnemy = "AttackEnemy"
	ActionCombat      = "Combat"
	ActionMine        = "Mine"
	ActionBuild       = "Build"
	ActionIdle        = "Idle"
	ActionCastAbility = "CastAbility"
)

// BehaviorMeta is the per-entity scratch a behavior shares across ticks.
// It lives in an engine-side map keyed by entity, never in the ECS, so
// transient AI intent stays out of snapshots and hashes.
type BehaviorMeta struct {
	TargetEntity      EntityID
	TargetPosition    *Vec3
	UseDirectMovement bool

	// Ability cast state. LastCast is keyed by ability name.
	CastingAbility string
	CastUntil      float64
	LastCast       map[string]float64

	// Build/mine assignment.
	WorkTarget EntityID
}

// metaFor returns the entity's behavior scratch, creating it on first use.
func (e *Engine) metaFor(id EntityID) *BehaviorMeta {
	m, ok := e.behaviorMeta[id]
	if !ok {
		m = &BehaviorMeta{TargetEntity: NoEntity, WorkTarget: NoEntity}
		e.behaviorMeta[id] = m
	}
	return m
}

// BehaviorMetaFor exposes the scratch for the movement pass.
func (e *Engine) BehaviorMetaFor(id EntityID) *BehaviorMeta {
	return e.metaFor(id)
}

// BehaviorResult is what a tree evaluation yields: the desired action by
// name plus a status hint. Valid=false means "no opinion, keep current".
type BehaviorResult struct {
	Action string
	Status BehaviorStatus
	Valid  bool
}

// BehaviorTree is a composite decision node.
type BehaviorTree interface {
	Name() string
	Evaluate(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorResult
}

// BehaviorAction is an executable leaf with lifecycle hooks.
type BehaviorAction interface {
	Name() string
	OnStart(e *Engine, id EntityID, meta *BehaviorMeta)
	Execute(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorStatus
	OnEnd(e *Engine, id EntityID, meta *BehaviorMeta)
}

// BehaviorRegistry loads both collections at init into lookup tables
// mapping names to indices, so persisted aiState fields stay integers.
type BehaviorRegistry struct {
	trees       []BehaviorTree
	treeIndex   map[string]int
	actions     []BehaviorAction
	actionIndex map[string]int
}

// NewBehaviorRegistry registers the built-in trees and actions. Order is
// fixed: indices are part of the transported state contract.
func NewBehaviorRegistry() *BehaviorRegistry {
	r := &BehaviorRegistry{
		treeIndex:   make(map[string]int),
		actionIndex: make(map[string]int),
	}
	for _, t := range []BehaviorTree{
		&universalTree{},
		&combatTree{},
		&abilitiesTree{},
	} {
		r.treeIndex[t.Name()] = len(r.trees)
		r.trees = append(r.trees, t)
	}
	for _, a := range []BehaviorAction{
		&moveAction{},
		&attackEnemyAction{},
		&combatAction{},
		&mineAction{},
		&buildAction{},
		&idleAction{},
		&castAbilityAction{},
	} {
		r.actionIndex[a.Name()] = len(r.actions)
		r.actions = append(r.actions, a)
	}
	return r
}

// TreeByName resolves a tree.
func (r *BehaviorRegistry) TreeByName(name string) (BehaviorTree, bool) {
	i, ok := r.treeIndex[name]
	if !ok {
		return nil, false
	}
	return r.trees[i], true
}

// ActionIndex resolves an action name to its transported index.
func (r *BehaviorRegistry) ActionIndex(name string) (int, bool) {
	i, ok := r.actionIndex[name]
	return i, ok
}

// ActionByIndex resolves a transported index back to the action.
func (r *BehaviorRegistry) ActionByIndex(i int) (BehaviorAction, bool) {
	if i < 0 || i >= len(r.actions) {
		return nil, false
	}
	return r.actions[i], true
}

// ActionName resolves an index to its name, for logs and hashes.
func (r *BehaviorRegistry) ActionName(i int) string {
	if a, ok := r.ActionByIndex(i); ok {
		return a.Name()
	}
	return ""
}

// runBehaviorPass evaluates every AI unit's root tree and applies the
// action-switch protocol, in ascending-ID order.
func (e *Engine) runBehaviorPass() {
	root, _ := e.behaviors.TreeByName(TreeUniversal)
	ids := e.store.EntitiesWith(CompAIState, CompUnitType)
	for _, id := range ids {
		e.evaluateEntity(root, id)
	}
}

// evaluateEntity runs one unit's tree and switch decision. Any panic is
// contained: no entity's update may poison another's.
func (e *Engine) evaluateEntity(root BehaviorTree, id EntityID) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Int64("entity", int64(id)).Interface("panic", r).
				Msg("behavior evaluation panicked, skipping entity")
		}
	}()

	if ds, ok := e.store.GetComponent(id, CompDeathState).(*DeathState); ok && ds.State != DeathAlive {
		return
	}

	ai := e.store.GetComponent(id, CompAIState).(*AIState)
	meta := e.metaFor(id)
	result := root.Evaluate(e, id, meta)

	current, hasCurrent := e.behaviors.ActionByIndex(ai.CurrentAction)
	if ai.CurrentActionCollection != CollectionBehaviorActions {
		hasCurrent = false
	}

	switch {
	case !result.Valid:
		// Null result keeps the current action running.
	case !hasCurrent:
		e.adoptAction(id, ai, meta, result.Action)
	case result.Status == StatusRunning && current.Name() == result.Action:
		// Same action still running: keep.
	default:
		// Different action, or the same action no longer running:
		// switch (a same-action switch restarts it).
		current.OnEnd(e, id, meta)
		e.adoptAction(id, ai, meta, result.Action)
	}

	if action, ok := e.behaviors.ActionByIndex(ai.CurrentAction); ok && ai.CurrentActionCollection == CollectionBehaviorActions {
		ai.Status = action.Execute(e, id, meta)
	}
}

func (e *Engine) adoptAction(id EntityID, ai *AIState, meta *BehaviorMeta, name string) {
	idx, ok := e.behaviors.ActionIndex(name)
	if !ok {
		return
	}
	ai.CurrentActionCollection = CollectionBehaviorActions
	ai.CurrentAction = idx
	ai.Status = StatusRunning
	action, _ := e.behaviors.ActionByIndex(idx)
	action.OnStart(e, id, meta)
}

// universalTree is the root: abilities win over combat, combat over
// player orders, orders over idling.
type universalTree struct{}

func (universalTree) Name() string { return TreeUniversal }

func (universalTree) Evaluate(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorResult {
	abilities, _ := e.behaviors.TreeByName(TreeAbilities)
	if r := abilities.Evaluate(e, id, meta); r.Valid {
		return r
	}
	combat, _ := e.behaviors.TreeByName(TreeCombat)
	if r := combat.Evaluate(e, id, meta); r.Valid {
		return r
	}

	// A builder with an assigned construction site works it.
	if bs, ok := e.store.GetComponent(id, CompBuildingState).(*BuildingState); ok {
		if bs.TargetBuilding != NoEntity && e.store.Exists(bs.TargetBuilding) {
			return BehaviorResult{Action: ActionBuild, Status: StatusRunning, Valid: true}
		}
	}

	// Player order: move toward the ordered position until arrival.
	if order, ok := e.store.GetComponent(id, CompPlayerOrder).(*PlayerOrder); ok {
		t, ok := e.store.GetComponent(id, CompTransform).(*Transform)
		if ok {
			dx := order.TargetPosition.X - t.Position.X
			dz := order.TargetPosition.Z - t.Position.Z
			if dx*dx+dz*dz > arrivalDistance*arrivalDistance {
				meta.TargetPosition = &Vec3{X: order.TargetPosition.X, Z: order.TargetPosition.Z}
				return BehaviorResult{Action: ActionMove, Status: StatusRunning, Valid: true}
			}
		}
	}

	// Workers without orders gather instead of idling.
	if def, ok := e.UnitDefFor(id); ok && def.Name == "peasant" {
		return BehaviorResult{Action: ActionMine, Status: StatusRunning, Valid: true}
	}

	return BehaviorResult{Action: ActionIdle, Status: StatusRunning, Valid: true}
}

// combatTree picks attack-in-range over chase. Target selection is the
// closest living enemy; ties resolve by ascending entity ID.
type combatTree struct{}

func (combatTree) Name() string { return TreeCombat }

func (combatTree) Evaluate(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorResult {
	combat, ok := e.store.GetComponent(id, CompCombat).(*Combat)
	if !ok {
		return BehaviorResult{}
	}
	target := e.ClosestEnemy(id)
	if target == NoEntity {
		meta.TargetEntity = NoEntity
		return BehaviorResult{}
	}
	meta.TargetEntity = target

	tt, ok := e.store.GetComponent(target, CompTransform).(*Transform)
	if !ok {
		return BehaviorResult{}
	}
	t, ok := e.store.GetComponent(id, CompTransform).(*Transform)
	if !ok {
		return BehaviorResult{}
	}

	dx := tt.Position.X - t.Position.X
	dz := tt.Position.Z - t.Position.Z
	if dx*dx+dz*dz <= combat.Range*combat.Range {
		return BehaviorResult{Action: ActionAttackEnemy, Status: StatusRunning, Valid: true}
	}

	// Buildings can't chase.
	if v, ok := e.store.GetComponent(id, CompVelocity).(*Velocity); !ok || v.Anchored {
		return BehaviorResult{}
	}

	meta.TargetPosition = &Vec3{X: tt.Position.X, Z: tt.Position.Z}
	return BehaviorResult{Action: ActionMove, Status: StatusRunning, Valid: true}
}

// abilitiesTree is a selector over the unit's declared ability list, in
// declaration order; the first ability whose gate passes wins.
type abilitiesTree struct{}

func (abilitiesTree) Name() string { return TreeAbilities }

func (abilitiesTree) Evaluate(e *Engine, id EntityID, meta *BehaviorMeta) BehaviorResult {
	// A cast in progress owns the unit until it completes.
	if meta.CastingAbility != "" && e.now < meta.CastUntil {
		return BehaviorResult{Action: ActionCastAbility, Status: StatusRunning, Valid: true}
	}

	def, ok := e.UnitDefFor(id)
	if !ok || len(def.Abilities) == 0 {
		return BehaviorResult{}
	}
	for _, name := range def.Abilities {
		ability, ok := AbilityByName(name)
		if !ok {
			continue
		}
		if !ability.CanExecute(e, id) {
			continue
		}
		meta.CastingAbility = name
		meta.CastUntil = e.now + ability.Def().CastTime
		return BehaviorResult{Action: ActionCastAbility, Status: StatusRunning, Valid: true}
	}
	return BehaviorResult{}
}
