package sim

import (
	"math"
	"sort"
)

// Death progression timing.
const (
	dyingDuration  = 1.2
	corpseDuration = 3.0
)

// DamageRequest is one queued hit. Requests accumulate during a tick and
// flush in insertion order, so damage application is independent of which
// pass produced it.
type DamageRequest struct {
	Source   EntityID
	Target   EntityID
	Amount   float64
	Critical bool
	Backstab bool
	Splash   bool
	Element  string

	seq uint64
}

// QueueDamage appends a hit to the damage queue.
func (e *Engine) QueueDamage(req DamageRequest) {
	e.damageSeq++
	req.seq = e.damageSeq
	e.damageQueue = append(e.damageQueue, req)
}

// FlushDamageQueue applies every queued hit in insertion order. Exposed
// as a service so ability callbacks firing at tick start land the same
// tick.
func (e *Engine) FlushDamageQueue() {
	queue := e.damageQueue
	e.damageQueue = nil
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].seq < queue[j].seq })
	for _, req := range queue {
		e.applyDamage(req)
	}
}

// applyDamage runs the deterministic pipeline: team upgrade modifiers,
// critical, backstab, then an integer floor before the health write.
func (e *Engine) applyDamage(req DamageRequest) {
	h, ok := e.store.GetComponent(req.Target, CompHealth).(*Health)
	if !ok || h.Current <= 0 {
		return
	}

	amount := req.Amount
	if team, ok := e.store.GetComponent(req.Source, CompTeam).(*Team); ok {
		if pct, ok := e.teamEffects[team.ID]["damagePercent"]; ok {
			amount *= 1 + pct
		}
	}
	if req.Critical {
		amount *= 2
	}
	if req.Backstab {
		amount *= 1.5
	}

	dealt := math.Floor(amount)
	if dealt <= 0 {
		return
	}
	h.Current -= dealt
	if h.Current < 0 {
		h.Current = 0
	}

	if h.Current == 0 {
		e.killEntity(req.Target, req.Source)
	}
}

// killEntity starts the monotonic alive -> dying -> corpse progression.
// The corpse lingers briefly for the renderer, then the entity destroys.
func (e *Engine) killEntity(id, killer EntityID) {
	ds, ok := e.store.GetComponent(id, CompDeathState).(*DeathState)
	if !ok {
		ds = &DeathState{}
		e.store.AddComponent(id, CompDeathState, ds)
	}
	if ds.State != DeathAlive {
		return
	}
	ds.State = DeathDying
	ds.IsDying = true

	if v, ok := e.store.GetComponent(id, CompVelocity).(*Velocity); ok {
		v.VX, v.VY, v.VZ = 0, 0, 0
	}

	e.grantKillExperience(killer, id)

	dying := id
	e.scheduler.Schedule(func() {
		if cur, ok := e.store.GetComponent(dying, CompDeathState).(*DeathState); ok {
			cur.State = DeathCorpse
			cur.IsDying = false
			e.AddLifetime(dying, corpseDuration, LifetimeOptions{FadeOut: true})
		}
	}, dyingDuration, e.now, id)
}

// runCombatPass fires attacks for units whose behavior holds a target in
// range, then flushes the damage queue.
func (e *Engine) runCombatPass() {
	ids := e.store.EntitiesWith(CompCombat, CompTransform, CompTeam)
	for _, id := range ids {
		e.tryAttack(id)
	}
	e.FlushDamageQueue()
}

func (e *Engine) tryAttack(id EntityID) {
	if ds, ok := e.store.GetComponent(id, CompDeathState).(*DeathState); ok && ds.State != DeathAlive {
		return
	}
	combat := e.store.GetComponent(id, CompCombat).(*Combat)
	if combat.Damage <= 0 {
		return
	}
	meta := e.metaFor(id)
	target := meta.TargetEntity
	if target == NoEntity || !e.store.Exists(target) {
		// Anchored attackers (towers) pick their own target since the
		// combat tree never sends them chasing.
		if v, ok := e.store.GetComponent(id, CompVelocity).(*Velocity); ok && v.Anchored {
			target = e.ClosestEnemy(id)
		}
		if target == NoEntity {
			return
		}
	}

	if h, ok := e.store.GetComponent(target, CompHealth).(*Health); !ok || h.Current <= 0 {
		return
	}

	cooldown := combat.AttackCooldown
	if cooldown <= 0 {
		cooldown = 1.0
	}
	if combat.LastAttack > 0 && e.now-combat.LastAttack < cooldown {
		return
	}

	t := e.store.GetComponent(id, CompTransform).(*Transform)
	tt, ok := e.store.GetComponent(target, CompTransform).(*Transform)
	if !ok {
		return
	}
	dx := tt.Position.X - t.Position.X
	dz := tt.Position.Z - t.Position.Z
	if dx*dx+dz*dz > combat.Range*combat.Range {
		return
	}
	if !e.HasLineOfSight(t.Position, tt.Position) {
		return
	}

	combat.LastAttack = e.now
	e.QueueDamage(DamageRequest{
		Source:  id,
		Target:  target,
		Amount:  combat.Damage,
		Element: combat.Element,
	})
	e.renderer.PlayEffect("attack", t.Position)
}

// ClosestEnemy returns the nearest living enemy of the entity, ties by
// ascending entity ID (the iteration is ascending and only a strictly
// smaller distance replaces the candidate).
func (e *Engine) ClosestEnemy(id EntityID) EntityID {
	team, ok := e.store.GetComponent(id, CompTeam).(*Team)
	if !ok {
		return NoEntity
	}
	t, ok := e.store.GetComponent(id, CompTransform).(*Transform)
	if !ok {
		return NoEntity
	}

	best := NoEntity
	bestDist := math.Inf(1)
	for _, other := range e.store.EntitiesWith(CompTeam, CompTransform, CompHealth) {
		if other == id {
			continue
		}
		ot := e.store.GetComponent(other, CompTeam).(*Team)
		if ot.ID == team.ID {
			continue
		}
		if h := e.store.GetComponent(other, CompHealth).(*Health); h.Current <= 0 {
			continue
		}
		if ds, ok := e.store.GetComponent(other, CompDeathState).(*DeathState); ok && ds.State != DeathAlive {
			continue
		}
		op := e.store.GetComponent(other, CompTransform).(*Transform)
		dx := op.Position.X - t.Position.X
		dz := op.Position.Z - t.Position.Z
		d := dx*dx + dz*dz
		if d < bestDist {
			bestDist = d
			best = other
		}
	}
	return best
}

// EnemiesInRange returns living enemies within range of a position,
// sorted by ascending distance then ascending ID.
func (e *Engine) EnemiesInRange(pos Vec3, radius float64, team TeamID) []EntityID {
	type candidate struct {
		id   EntityID
		dist float64
	}
	var out []candidate
	for _, other := range e.store.EntitiesWith(CompTeam, CompTransform, CompHealth) {
		ot := e.store.GetComponent(other, CompTeam).(*Team)
		if ot.ID == team {
			continue
		}
		if h := e.store.GetComponent(other, CompHealth).(*Health); h.Current <= 0 {
			continue
		}
		if ds, ok := e.store.GetComponent(other, CompDeathState).(*DeathState); ok && ds.State != DeathAlive {
			continue
		}
		op := e.store.GetComponent(other, CompTransform).(*Transform)
		dx := op.Position.X - pos.X
		dz := op.Position.Z - pos.Z
		d := math.Sqrt(dx*dx + dz*dz)
		if d <= radius {
			out = append(out, candidate{id: other, dist: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].id < out[j].id
	})
	ids := make([]EntityID, len(out))
	for i, c := range out {
		ids[i] = c.id
	}
	return ids
}

// HasLineOfSight walks the nav grid between two positions; any
// unwalkable cell on the segment blocks the shot.
func (e *Engine) HasLineOfSight(from, to Vec3) bool {
	grid := e.paths.Grid()
	_, _, cellSize := grid.Dimensions()
	dx := to.X - from.X
	dz := to.Z - from.Z
	dist := math.Sqrt(dx*dx + dz*dz)
	if dist < 1e-9 {
		return true
	}
	steps := int(dist/(cellSize/2)) + 1
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		cell, ok := grid.CellAt(from.X+dx*f, from.Z+dz*f)
		if !ok || !grid.Walkable(cell) {
			return false
		}
	}
	return true
}
