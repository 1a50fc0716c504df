package sim

import "math"

// Clip names used by the animation state machine.
const (
	ClipIdle      = "idle"
	ClipWalk      = "walk"
	ClipAttack    = "attack"
	ClipCast      = "cast"
	ClipDeath     = "death"
	ClipCelebrate = "celebrate"
)

// StateChangeCooldown is the minimum time between clip switches.
const StateChangeCooldown = 0.1

// singlePlayFraction: single-play clips must reach this fraction of their
// duration before another clip may interrupt them.
const singlePlayFraction = 0.9

// singlePlayClips play through before yielding; death never yields.
var singlePlayClips = map[string]bool{
	ClipAttack: true,
	ClipCast:   true,
	ClipDeath:  true,
}

// clipDurations are nominal clip lengths in seconds, used for the
// single-play interrupt rule. The renderer owns real timing.
var clipDurations = map[string]float64{
	ClipIdle:      1.0,
	ClipWalk:      0.8,
	ClipAttack:    0.6,
	ClipCast:      0.8,
	ClipDeath:     1.2,
	ClipCelebrate: 1.5,
}

// clipFallbacks resolves desired clip names to available ones when a
// model lacks the exact clip.
var clipFallbacks = map[string][]string{
	ClipAttack:    {"combat", "fight", "swing", "strike", ClipIdle},
	ClipCast:      {ClipAttack, "combat", ClipIdle},
	ClipWalk:      {"run", "move", ClipIdle},
	ClipDeath:     {"die", "fall", ClipIdle},
	ClipCelebrate: {ClipIdle},
}

// ResolveClip maps a desired clip to the first available name via the
// fallback chain.
func ResolveClip(desired string, available map[string]bool) string {
	if available[desired] {
		return desired
	}
	for _, alt := range clipFallbacks[desired] {
		if available[alt] {
			return alt
		}
	}
	return ClipIdle
}

// AnimationState is the clip-selection state machine for one entity.
// The animation pass is a pure consumer of simulation state: it reads
// velocity, combat and ai state, and never writes any of them back.
type AnimationState struct {
	CurrentClip      string  `json:"currentClip"`
	AnimationTime    float64 `json:"animationTime"`
	MinAnimationTime float64 `json:"minAnimationTime"`
	PendingClip      string  `json:"pendingClip"`
	IsCelebrating    bool    `json:"isCelebrating"`
	LastChange       float64 `json:"lastChange"`
}

// runAnimationPass advances every entity's clip state from the frozen
// tick state, ascending-ID like everything else.
func (e *Engine) runAnimationPass() {
	ids := e.store.EntitiesWith(CompAnimation, CompTransform)
	for _, id := range ids {
		anim := e.store.GetComponent(id, CompAnimation).(*AnimationState)
		e.advanceAnimation(id, anim)
	}
}

func (e *Engine) advanceAnimation(id EntityID, anim *AnimationState) {
	anim.AnimationTime += e.fixedDelta
	desired := e.desiredClip(id, anim)

	if desired == anim.CurrentClip {
		anim.PendingClip = ""
		return
	}

	// Death clips never revert.
	if anim.CurrentClip == ClipDeath {
		return
	}

	// Single-play clips must hit 90% of their duration first; the
	// desired clip parks in PendingClip until then. Death preempts
	// everything regardless.
	if desired != ClipDeath && singlePlayClips[anim.CurrentClip] {
		dur := clipDurations[anim.CurrentClip]
		if anim.AnimationTime < dur*singlePlayFraction || anim.AnimationTime < anim.MinAnimationTime {
			anim.PendingClip = desired
			return
		}
	}

	if desired != ClipDeath && e.now-anim.LastChange < StateChangeCooldown {
		anim.PendingClip = desired
		return
	}

	anim.CurrentClip = desired
	anim.AnimationTime = 0
	anim.PendingClip = ""
	anim.LastChange = e.now
}

// desiredClip derives the clip from death state, ai action and velocity.
func (e *Engine) desiredClip(id EntityID, anim *AnimationState) string {
	if ds, ok := e.store.GetComponent(id, CompDeathState).(*DeathState); ok && ds.State != DeathAlive {
		return ClipDeath
	}
	if anim.IsCelebrating {
		return ClipCelebrate
	}

	if ai, ok := e.store.GetComponent(id, CompAIState).(*AIState); ok && ai.CurrentActionCollection == CollectionBehaviorActions {
		switch e.behaviors.ActionName(ai.CurrentAction) {
		case ActionCastAbility:
			return ClipCast
		case ActionAttackEnemy:
			if c, ok := e.store.GetComponent(id, CompCombat).(*Combat); ok {
				if c.LastAttack > 0 && e.now-c.LastAttack < clipDurations[ClipAttack] {
					return ClipAttack
				}
			}
		}
	}

	if v, ok := e.store.GetComponent(id, CompVelocity).(*Velocity); ok {
		if math.Hypot(v.VX, v.VZ) > 0.5 {
			return ClipWalk
		}
	}
	return ClipIdle
}

// SpriteDirection computes the 8-direction billboard index for an entity
// facing rotationY, as seen by a camera. Perspective cameras snap their
// yaw to pi/4 steps; orthographic cameras supply a fixed forward vector.
// Index 0 faces the camera, advancing clockwise.
func SpriteDirection(rotationY float64, cameraYaw float64, orthographic bool, camForward Vec2) int {
	var viewAngle float64
	if orthographic {
		viewAngle = math.Atan2(camForward.X, camForward.Z)
	} else {
		step := math.Pi / 4
		viewAngle = math.Round(cameraYaw/step) * step
	}

	rel := rotationY - viewAngle + math.Pi
	for rel < 0 {
		rel += 2 * math.Pi
	}
	for rel >= 2*math.Pi {
		rel -= 2 * math.Pi
	}
	idx := int(math.Round(rel/(math.Pi/4))) % 8
	return idx
}

// SpriteFrame advances a sprite clip and reports the frame to show.
// Non-looping clips hold their last frame until a completion callback
// reverts them; death clips never revert.
func SpriteFrame(elapsed float64, frameCount int, fps float64, looping bool) int {
	if frameCount <= 0 {
		return 0
	}
	frame := int(elapsed * fps)
	if looping {
		return frame % frameCount
	}
	if frame >= frameCount {
		return frameCount - 1
	}
	return frame
}
