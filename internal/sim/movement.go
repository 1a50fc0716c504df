package sim

import (
	"math"
)

// Movement tuning. Every constant here is part of the lockstep contract:
// changing one desyncs peers running the old value.
const (
	AISpeedMultiplier          = 1.0
	DefaultAISpeed             = 10.0
	SpeedCapMultiplier         = 1.4
	SeparationRadiusMultiplier = 2.5
	MaxSeparationChecks        = 8
	ForceDamping               = 0.85
	PathfindingCheckPoints     = 3
	PathfindingLookahead       = 30.0
	VelocitySmoothing          = 0.25
	Gravity                    = 60.0

	velocityHistorySize       = 5
	arrivalDistance           = 5.0
	directMovementDistance    = 40.0
	waypointReachedDistance   = 6.0
	oscillationAngleThreshold = math.Pi / 6
	avoidanceForceScale       = 0.6
)

// runMovementPass steers and integrates every mobile unit, ascending-ID.
// Runs only during the battle phase.
func (e *Engine) runMovementPass() {
	ids := e.store.EntitiesWith(CompTransform, CompVelocity)
	for _, id := range ids {
		if e.store.HasComponent(id, CompProjectile) {
			continue
		}
		e.moveEntity(id)
	}
}

func (e *Engine) moveEntity(id EntityID) {
	t := e.store.GetComponent(id, CompTransform).(*Transform)
	v := e.store.GetComponent(id, CompVelocity).(*Velocity)

	if ds, ok := e.store.GetComponent(id, CompDeathState).(*DeathState); ok && ds.State != DeathAlive {
		v.VX, v.VZ = 0, 0
		return
	}

	leaping := false
	if lp, ok := e.store.GetComponent(id, CompLeaping).(*Leaping); ok && lp.IsLeaping {
		leaping = true
	}
	if leaping {
		// The ability owns integration while leaping: no steering, no
		// gravity, no clamps.
		return
	}

	// Anchored entities (buildings) have movement zeroed outright.
	if v.Anchored {
		v.VX, v.VZ = 0, 0
		return
	}

	meta := e.metaFor(id)
	ms, ok := e.store.GetComponent(id, CompMovementState).(*MovementState)
	if !ok {
		ms = &MovementState{}
		e.store.AddComponent(id, CompMovementState, ms)
	}

	radius := DefaultUnitRadius
	if c, ok := e.store.GetComponent(id, CompCollision).(*Collision); ok {
		radius = c.Radius
	}

	// Attacking with the target in range holds position: no desired
	// velocity and no steering forces, just velocity decay.
	var desired, separation, avoidance Vec2
	if !e.holdingAttack(id, t, meta) {
		desired = e.desiredVelocity(id, t, v, meta)
		separation = e.separationForce(id, t, radius, ms)
		if meta.TargetEntity != NoEntity && desired.Length() > 0 {
			avoidance = e.pathAvoidance(id, t, desired, ms)
		}
	}

	target := Vec2{
		X: desired.X + separation.X + avoidance.X,
		Z: desired.Z + separation.Z + avoidance.Z,
	}

	// Oscillation check: a unit flip-flopping between headings gets a
	// stiffer blend so it stops vibrating between two forces.
	smoothing := VelocitySmoothing
	if directionChanges(ms.VelocityHistory) >= 2 {
		smoothing *= 0.5
	}

	v.VX += (target.X - v.VX) * smoothing
	v.VZ += (target.Z - v.VZ) * smoothing

	// Speed cap.
	maxSpeed := v.MaxSpeed * SpeedCapMultiplier
	if speed := math.Sqrt(v.VX*v.VX + v.VZ*v.VZ); speed > maxSpeed && maxSpeed > 0 {
		v.VX = v.VX / speed * maxSpeed
		v.VZ = v.VZ / speed * maxSpeed
	}

	v.VX = Round6(v.VX)
	v.VZ = Round6(v.VZ)
	ms.PushVelocity(Vec2{X: v.VX, Z: v.VZ})

	// Direction smoothing feeds facing, not velocity.
	dir := Vec2{X: v.VX, Z: v.VZ}
	if dir.Length() > 0.01 {
		n := dir.Normalized()
		ms.SmoothedDirection.X += (n.X - ms.SmoothedDirection.X) * 0.3
		ms.SmoothedDirection.Z += (n.Z - ms.SmoothedDirection.Z) * 0.3
		if ms.SmoothedDirection.Length() > 0.01 {
			t.RotationY = Round6(math.Atan2(ms.SmoothedDirection.X, ms.SmoothedDirection.Z))
		}
	}

	e.integrate(id, t, v, radius)

	// Stuck detection feeds the avoidance side commitment reset.
	moved := math.Hypot(t.Position.X-ms.LastPosition.X, t.Position.Z-ms.LastPosition.Z)
	if desired.Length() > 0 && moved < 0.05 {
		ms.StuckTime += e.fixedDelta
	} else {
		ms.StuckTime = 0
	}
	if ms.StuckTime > 1.5 {
		ms.AvoidanceDirection = -ms.AvoidanceDirection
		ms.StuckTime = 0
	}
	ms.LastPosition = t.Position
}

// holdingAttack reports whether the unit is attacking with its target in
// range, which pins it in place.
func (e *Engine) holdingAttack(id EntityID, t *Transform, meta *BehaviorMeta) bool {
	if meta.TargetEntity == NoEntity {
		return false
	}
	combat, ok := e.store.GetComponent(id, CompCombat).(*Combat)
	if !ok {
		return false
	}
	tt, ok := e.store.GetComponent(meta.TargetEntity, CompTransform).(*Transform)
	if !ok {
		return false
	}
	dx := tt.Position.X - t.Position.X
	dz := tt.Position.Z - t.Position.Z
	return dx*dx+dz*dz <= combat.Range*combat.Range
}

// desiredVelocity resolves behavior intent into a velocity toward the
// next waypoint of a path or straight at the target.
func (e *Engine) desiredVelocity(id EntityID, t *Transform, v *Velocity, meta *BehaviorMeta) Vec2 {
	if meta.TargetPosition == nil {
		return Vec2{}
	}
	goal := *meta.TargetPosition

	speed := math.Max(v.MaxSpeed*AISpeedMultiplier, DefaultAISpeed)
	dx := goal.X - t.Position.X
	dz := goal.Z - t.Position.Z
	dist := math.Sqrt(dx*dx + dz*dz)
	if dist < 1e-9 {
		return Vec2{}
	}

	pf, _ := e.store.GetComponent(id, CompPathfinding).(*Pathfinding)
	if pf == nil {
		pf = &Pathfinding{}
		e.store.AddComponent(id, CompPathfinding, pf)
	}

	// Short hops and flagged entities skip pathfinding entirely.
	if dist <= directMovementDistance || pf.UseDirectMovement {
		return Vec2{X: dx / dist * speed, Z: dz / dist * speed}
	}

	// Stale path: the goal moved too far from what we computed against.
	if e.paths.IsStale(int64(id), goal.X, goal.Z) {
		e.paths.ClearEntityPath(int64(id))
		pf.PathIndex = 0
	}

	path := e.paths.GetEntityPath(int64(id))
	if path == nil {
		if e.now-pf.LastPathRequest >= 0.5 {
			pf.LastPathRequest = e.now
			pf.LastTargetX = goal.X
			pf.LastTargetZ = goal.Z
			if cached := e.paths.RequestPath(int64(id), t.Position.X, t.Position.Z, goal.X, goal.Z, 0); cached != nil {
				path = cached
				pf.PathIndex = 0
			}
		}
		if path == nil {
			// Nothing yet: head straight while the request computes.
			return Vec2{X: dx / dist * speed, Z: dz / dist * speed}
		}
	}

	// The first waypoint is the center of the cell the unit stands in;
	// skip it so the unit does not first steer sideways to that center.
	if pf.PathIndex == 0 && len(path) > 1 {
		if c, ok := e.paths.Grid().CellAt(t.Position.X, t.Position.Z); ok && e.paths.Grid().CellCenter(c) == path[0] {
			pf.PathIndex = 1
		}
	}

	// Advance past reached waypoints.
	for pf.PathIndex < len(path) {
		wp := path[pf.PathIndex]
		wx := wp.X - t.Position.X
		wz := wp.Z - t.Position.Z
		if math.Sqrt(wx*wx+wz*wz) > waypointReachedDistance {
			break
		}
		pf.PathIndex++
	}
	if pf.PathIndex >= len(path) {
		e.paths.ClearEntityPath(int64(id))
		pf.PathIndex = 0
		return Vec2{X: dx / dist * speed, Z: dz / dist * speed}
	}

	wp := path[pf.PathIndex]
	wx := wp.X - t.Position.X
	wz := wp.Z - t.Position.Z
	wd := math.Sqrt(wx*wx + wz*wz)
	if wd < 1e-9 {
		return Vec2{}
	}
	return Vec2{X: wx / wd * speed, Z: wz / wd * speed}
}

// separationForce pushes overlapping neighbors apart. The neighbor
// average is blended 0.7/0.3 with the damped per-entity history so the
// force doesn't jitter at contact boundaries.
func (e *Engine) separationForce(id EntityID, t *Transform, radius float64, ms *MovementState) Vec2 {
	queryRadius := radius * SeparationRadiusMultiplier
	neighbors := e.nearby.QuerySquare(t.Position.X, t.Position.Z, queryRadius, int64(id))

	var force Vec2
	count := 0
	for _, nid := range neighbors {
		if count >= MaxSeparationChecks {
			break
		}
		other := EntityID(nid)
		ot, ok := e.store.GetComponent(other, CompTransform).(*Transform)
		if !ok {
			continue
		}
		otherRadius := DefaultUnitRadius
		if c, ok := e.store.GetComponent(other, CompCollision).(*Collision); ok {
			otherRadius = c.Radius
		}
		dx := t.Position.X - ot.Position.X
		dz := t.Position.Z - ot.Position.Z
		dist := math.Sqrt(dx*dx + dz*dz)
		minDist := radius + otherRadius
		if dist >= minDist {
			continue
		}
		count++
		if dist < 1e-6 {
			// Coincident units separate along a direction derived from
			// the ID pair, not the RNG, so peers agree.
			angle := float64((id*31+other)%64) / 64 * 2 * math.Pi
			dx, dz = math.Cos(angle), math.Sin(angle)
			dist = 1
		}
		penetration := (minDist - dist) / minDist
		force.X += dx / dist * penetration * DefaultAISpeed
		force.Z += dz / dist * penetration * DefaultAISpeed
	}

	if count > 0 {
		force.X /= float64(count)
		force.Z /= float64(count)
	}

	ms.DampedForces.X = ms.DampedForces.X*ForceDamping*0.3 + force.X*0.7
	ms.DampedForces.Z = ms.DampedForces.Z*ForceDamping*0.3 + force.Z*0.7
	return ms.DampedForces
}

// pathAvoidance samples ahead along the desired direction and, when an
// obstacle blocks a probe point, steers to a perpendicular side. The side
// is committed per obstacle in movementState so the unit doesn't dither
// left-right across ticks.
func (e *Engine) pathAvoidance(id EntityID, t *Transform, desired Vec2, ms *MovementState) Vec2 {
	dir := desired.Normalized()
	if dir.Length() == 0 {
		return Vec2{}
	}

	step := PathfindingLookahead / float64(PathfindingCheckPoints)
	for i := 1; i <= PathfindingCheckPoints; i++ {
		px := t.Position.X + dir.X*step*float64(i)
		pz := t.Position.Z + dir.Z*step*float64(i)
		cell, ok := e.paths.Grid().CellAt(px, pz)
		if ok && e.paths.Grid().Walkable(cell) {
			continue
		}

		if ms.AvoidanceDirection == 0 {
			// Commit to whichever side is walkable; prefer the left
			// probe, matching the fixed probe order.
			left := Vec2{X: -dir.Z, Z: dir.X}
			lc, lok := e.paths.Grid().CellAt(t.Position.X+left.X*step, t.Position.Z+left.Z*step)
			if lok && e.paths.Grid().Walkable(lc) {
				ms.AvoidanceDirection = 1
			} else {
				ms.AvoidanceDirection = -1
			}
		}

		perp := Vec2{X: -dir.Z * ms.AvoidanceDirection, Z: dir.X * ms.AvoidanceDirection}
		strength := desired.Length() * avoidanceForceScale * (1 - float64(i-1)/float64(PathfindingCheckPoints))
		return Vec2{X: perp.X * strength, Z: perp.Z * strength}
	}

	ms.AvoidanceDirection = 0
	return Vec2{}
}

// integrate applies velocity, gravity, ground clamp and bounds clamp.
func (e *Engine) integrate(id EntityID, t *Transform, v *Velocity, radius float64) {
	dt := e.fixedDelta
	t.Position.X += v.VX * dt
	t.Position.Z += v.VZ * dt

	if v.AffectedByGravity {
		v.VY -= Gravity * dt
	}
	t.Position.Y += v.VY * dt

	if h, ok := e.terrain.HeightAt(t.Position.X, t.Position.Z); ok {
		if t.Position.Y < h {
			t.Position.Y = h
			if v.VY < 0 {
				v.VY = 0
			}
		}
	}

	halfW := e.level.HalfWidth() - radius
	halfH := e.level.HalfHeight() - radius
	t.Position.X = math.Max(-halfW, math.Min(halfW, t.Position.X))
	t.Position.Z = math.Max(-halfH, math.Min(halfH, t.Position.Z))

	t.Position.X = Round6(t.Position.X)
	t.Position.Y = Round6(t.Position.Y)
	t.Position.Z = Round6(t.Position.Z)
}

// directionChanges counts heading flips above the oscillation threshold
// across the velocity history window.
func directionChanges(history []Vec2) int {
	changes := 0
	for i := 1; i < len(history); i++ {
		a := history[i-1]
		b := history[i]
		if a.Length() < 0.01 || b.Length() < 0.01 {
			continue
		}
		angleA := math.Atan2(a.Z, a.X)
		angleB := math.Atan2(b.Z, b.X)
		diff := math.Abs(angleB - angleA)
		if diff > math.Pi {
			diff = 2*math.Pi - diff
		}
		if diff >= oscillationAngleThreshold {
			changes++
		}
	}
	return changes
}
