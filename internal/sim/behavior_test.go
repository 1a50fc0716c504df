package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBehaviorRegistryNameIndexRoundTrip(t *testing.T) {
	r := NewBehaviorRegistry()
	for _, name := range []string{ActionMove, ActionAttackEnemy, ActionCombat, ActionMine, ActionBuild, ActionIdle, ActionCastAbility} {
		idx, ok := r.ActionIndex(name)
		require.True(t, ok, name)
		action, ok := r.ActionByIndex(idx)
		require.True(t, ok)
		require.Equal(t, name, action.Name())
	}
	for _, name := range []string{TreeUniversal, TreeCombat, TreeAbilities} {
		_, ok := r.TreeByName(name)
		require.True(t, ok, name)
	}
}

func TestBehaviorRegistryIndicesAreStable(t *testing.T) {
	// aiState persists these indices across snapshots and the wire;
	// registration order is part of the contract.
	a := NewBehaviorRegistry()
	b := NewBehaviorRegistry()
	for _, name := range []string{ActionMove, ActionIdle, ActionCastAbility} {
		ia, _ := a.ActionIndex(name)
		ib, _ := b.ActionIndex(name)
		require.Equal(t, ia, ib)
	}
}

func TestBehaviorAdoptsIdleWithoutStimulus(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{}, 0, 0)
	e.Step()

	ai := e.store.GetComponent(id, CompAIState).(*AIState)
	require.Equal(t, CollectionBehaviorActions, ai.CurrentActionCollection)
	require.Equal(t, ActionIdle, e.behaviors.ActionName(ai.CurrentAction))
	require.Equal(t, StatusRunning, ai.Status)
}

func TestBehaviorSwitchesToAttackWhenEnemyInRange(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	spawnStatic(e, TeamRight, Vec3{X: 5, Z: 0}, 500)

	e.Step()
	ai := e.store.GetComponent(id, CompAIState).(*AIState)
	require.Equal(t, ActionAttackEnemy, e.behaviors.ActionName(ai.CurrentAction))
}

func TestBehaviorChasesDistantEnemy(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	spawnStatic(e, TeamRight, Vec3{X: 300, Z: 0}, 500)

	e.Step()
	ai := e.store.GetComponent(id, CompAIState).(*AIState)
	require.Equal(t, ActionMove, e.behaviors.ActionName(ai.CurrentAction))

	meta := e.metaFor(id)
	require.NotNil(t, meta.TargetPosition)
	require.Equal(t, 300.0, meta.TargetPosition.X)
}

func TestBehaviorAbilityWinsOverCombat(t *testing.T) {
	e := newBattleEngine(bigLevel())
	// Stormcaller (declares chainLightning) with an enemy in ability
	// range: the abilities selector outranks plain combat.
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 5)
	spawnStatic(e, TeamRight, Vec3{X: 50, Z: 0}, 500)

	e.Step()
	ai := e.store.GetComponent(id, CompAIState).(*AIState)
	require.Equal(t, ActionCastAbility, e.behaviors.ActionName(ai.CurrentAction))

	meta := e.metaFor(id)
	require.Equal(t, AbilityChainLightning, meta.CastingAbility)
}

func TestBehaviorCastRunsToCompletion(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 5)
	spawnStatic(e, TeamRight, Vec3{X: 50, Z: 0}, 5000)

	e.Step()
	ai := e.store.GetComponent(id, CompAIState).(*AIState)
	require.Equal(t, ActionCastAbility, e.behaviors.ActionName(ai.CurrentAction))

	// Mid-cast the action stays put (castTime 0.5).
	stepFor(e, 5)
	ai = e.store.GetComponent(id, CompAIState).(*AIState)
	require.Equal(t, ActionCastAbility, e.behaviors.ActionName(ai.CurrentAction))

	// After the cast the unit falls back to ordinary behavior until the
	// cooldown allows another cast.
	stepFor(e, 30)
	ai = e.store.GetComponent(id, CompAIState).(*AIState)
	require.NotEqual(t, ActionCastAbility, e.behaviors.ActionName(ai.CurrentAction))
}

func TestResetAIClearsActionsAndTimers(t *testing.T) {
	e := newBattleEngine(bigLevel())
	id := spawnMobile(e, TeamLeft, Vec3{X: 0, Z: 0}, 0, 0)
	spawnStatic(e, TeamRight, Vec3{X: 5, Z: 0}, 500)
	stepFor(e, 5)

	combat := e.store.GetComponent(id, CompCombat).(*Combat)
	require.Greater(t, combat.LastAttack, 0.0)

	e.ResetAI()
	combat = e.store.GetComponent(id, CompCombat).(*Combat)
	require.Equal(t, 0.0, combat.LastAttack)
	ai := e.store.GetComponent(id, CompAIState).(*AIState)
	require.Equal(t, -1, ai.CurrentAction)
}
