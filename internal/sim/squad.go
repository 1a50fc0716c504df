package sim

import (
	"battleforge/internal/sim/spatial"
)

// MaxSquadLevel caps squad progression.
const MaxSquadLevel = 10

// levelBonus is the per-level progression table. Bonuses are cumulative
// multipliers applied on level-up; Cost is the gold price to level.
type levelBonus struct {
	HPBonus     float64
	DamageBonus float64
	Cost        int
}

// squadLevelTable indexes by the level being reached (2..10).
var squadLevelTable = map[int]levelBonus{
	2:  {HPBonus: 0.10, DamageBonus: 0.10, Cost: 20},
	3:  {HPBonus: 0.10, DamageBonus: 0.10, Cost: 30},
	4:  {HPBonus: 0.12, DamageBonus: 0.12, Cost: 45},
	5:  {HPBonus: 0.12, DamageBonus: 0.12, Cost: 60},
	6:  {HPBonus: 0.15, DamageBonus: 0.15, Cost: 80},
	7:  {HPBonus: 0.15, DamageBonus: 0.15, Cost: 100},
	8:  {HPBonus: 0.18, DamageBonus: 0.18, Cost: 130},
	9:  {HPBonus: 0.18, DamageBonus: 0.18, Cost: 160},
	10: {HPBonus: 0.20, DamageBonus: 0.20, Cost: 200},
}

// experienceForLevel is the XP needed to unlock the next level.
func experienceForLevel(level int) float64 {
	return float64(40 * level)
}

// CalculateUnitPositions lays a squad out around the placement's world
// center: a row-major grid with unit spacing, sized to the squad count.
// The layout is pure geometry, identical on both peers.
func (e *Engine) CalculateUnitPositions(gridPos GridPos, def *UnitDef) []Vec3 {
	cx, cz := e.terrain.PlacementGridToWorld(GridPos{X: gridPos.X + 1, Z: gridPos.Z + 1})
	// gridPos is the squad's top-left placement cell; the +1 centers on
	// the 2x2 footprint.
	cx -= e.level.PlacementCellSize / 2
	cz -= e.level.PlacementCellSize / 2

	n := def.SquadSize
	if n < 1 {
		n = 1
	}
	cols := 1
	for cols*cols < n {
		cols++
	}
	spacing := def.Radius * 3
	positions := make([]Vec3, n)
	for i := 0; i < n; i++ {
		row := i / cols
		col := i % cols
		offX := (float64(col) - float64(cols-1)/2) * spacing
		offZ := (float64(row) - float64((n-1)/cols)/2) * spacing
		y := e.level.BaseHeight
		if h, ok := e.terrain.HeightAt(cx+offX, cz+offZ); ok {
			y = h
		}
		positions[i] = Vec3{X: Round6(cx + offX), Y: y, Z: Round6(cz + offZ)}
	}
	return positions
}

// SquadCells returns the placement cells a squad occupies: a 2x2 block
// for units, footprint*2 per axis for buildings.
func SquadCells(gridPos GridPos, def *UnitDef) []GridPos {
	w, h := 2, 2
	if def.IsBuilding {
		w = def.FootprintWidth * 2
		h = def.FootprintHeight * 2
	}
	cells := make([]GridPos, 0, w*h)
	for dz := 0; dz < h; dz++ {
		for dx := 0; dx < w; dx++ {
			cells = append(cells, GridPos{X: gridPos.X + dx, Z: gridPos.Z + dz})
		}
	}
	return cells
}

// SpawnSquad creates the units of one placement. When serverIDs is
// non-nil (a client mirroring the server's creation) those IDs are used
// verbatim; otherwise fresh IDs are issued.
func (e *Engine) SpawnSquad(p Placement, serverIDs []EntityID) []EntityID {
	def, ok := UnitDefByIndex(p.UnitCollection, p.UnitType)
	if !ok {
		return nil
	}
	positions := e.CalculateUnitPositions(p.GridPosition, def)
	ids := make([]EntityID, 0, len(positions))

	for i, pos := range positions {
		var id EntityID
		if serverIDs != nil && i < len(serverIDs) {
			id = e.store.CreateEntity(serverIDs[i])
		} else {
			id = e.store.CreateEntity()
		}
		ids = append(ids, id)

		e.store.AddComponent(id, CompTransform, &Transform{Position: pos})
		e.store.AddComponent(id, CompVelocity, &Velocity{
			MaxSpeed:          def.MaxSpeed,
			Anchored:          def.IsBuilding,
			AffectedByGravity: !def.IsBuilding,
		})
		radius := def.Radius
		if radius < DefaultUnitRadius {
			radius = DefaultUnitRadius
		}
		e.store.AddComponent(id, CompCollision, &Collision{Radius: radius})
		hp := def.MaxHP
		current := hp
		if p.IsUnderConstruction {
			current = 1
		}
		e.store.AddComponent(id, CompHealth, &Health{Current: current, Max: hp})
		e.store.AddComponent(id, CompTeam, &Team{ID: p.Team})
		e.store.AddComponent(id, CompUnitType, &UnitTypeRef{Collection: p.UnitCollection, Type: p.UnitType})
		e.store.AddComponent(id, CompDeathState, &DeathState{State: DeathAlive})
		e.store.AddComponent(id, CompAnimation, &AnimationState{CurrentClip: ClipIdle})

		if def.Damage > 0 {
			e.store.AddComponent(id, CompCombat, &Combat{
				Damage:         def.Damage,
				Range:          def.Range,
				AttackCooldown: def.AttackCooldown,
				Element:        def.Element,
			})
		}
		if !def.IsBuilding || def.Damage > 0 {
			e.store.AddComponent(id, CompAIState, &AIState{
				CurrentActionCollection: -1,
				CurrentAction:           -1,
			})
		}
		if !def.IsBuilding {
			e.store.AddComponent(id, CompMovementState, &MovementState{})
			e.store.AddComponent(id, CompPathfinding, &Pathfinding{})
			e.store.AddComponent(id, CompExperience, &Experience{
				Level:                 1,
				ExperienceToNextLevel: experienceForLevel(1),
				SquadValue:            def.Cost,
			})
		}

		placement := p
		e.store.AddComponent(id, CompPlacement, &placement)

		e.TriggerEvent(EventBillboardSpawned, id)
	}
	return ids
}

// ReserveSquadCells records the cell ownership for a spawned squad under
// its lead entity.
func (e *Engine) ReserveSquadCells(p Placement, lead EntityID) {
	cells := make([]spatial.Cell, len(p.Cells))
	for i, c := range p.Cells {
		cells[i] = spatial.Cell{X: c.X, Z: c.Z}
	}
	e.reservations.Reserve(cells, string(p.Team), int64(lead), p.PlacementID)
}

// grantKillExperience awards squad XP to the killer's squad when a victim
// dies. Every unit sharing the killer's placement gains the same XP so
// the squad levels as one.
func (e *Engine) grantKillExperience(killer, victim EntityID) {
	if killer == NoEntity {
		return
	}
	kp, ok := e.store.GetComponent(killer, CompPlacement).(*Placement)
	if !ok {
		return
	}
	gain := 10.0
	if vdef, ok := e.UnitDefFor(victim); ok {
		gain = float64(vdef.Cost) / 3
	}
	for _, id := range e.store.EntitiesWith(CompExperience, CompPlacement) {
		p := e.store.GetComponent(id, CompPlacement).(*Placement)
		if p.PlacementID != kp.PlacementID {
			continue
		}
		exp := e.store.GetComponent(id, CompExperience).(*Experience)
		if exp.Level >= MaxSquadLevel {
			continue
		}
		exp.Experience += gain
		if exp.Experience >= exp.ExperienceToNextLevel {
			exp.CanLevelUp = true
		}
	}
}

// LevelSquad advances every unit of the placement one level, applying the
// hp/damage bonuses from the progression table. Returns false when the
// squad is already at cap.
func (e *Engine) LevelSquad(placementID int) bool {
	leveled := false
	for _, id := range e.store.EntitiesWith(CompExperience, CompPlacement) {
		p := e.store.GetComponent(id, CompPlacement).(*Placement)
		if p.PlacementID != placementID {
			continue
		}
		exp := e.store.GetComponent(id, CompExperience).(*Experience)
		if exp.Level >= MaxSquadLevel {
			continue
		}
		next := exp.Level + 1
		bonus := squadLevelTable[next]
		exp.Level = next
		exp.Experience = 0
		exp.ExperienceToNextLevel = experienceForLevel(next)
		exp.CanLevelUp = false

		if h, ok := e.store.GetComponent(id, CompHealth).(*Health); ok {
			h.Max = Round6(h.Max * (1 + bonus.HPBonus))
			h.Current = Round6(h.Current * (1 + bonus.HPBonus))
			if h.Current > h.Max {
				h.Current = h.Max
			}
		}
		if c, ok := e.store.GetComponent(id, CompCombat).(*Combat); ok {
			c.Damage = Round6(c.Damage * (1 + bonus.DamageBonus))
		}
		leveled = true
	}
	return leveled
}

// SquadLevelCost returns the gold price to take the squad to its next
// level, or -1 when it cannot level.
func (e *Engine) SquadLevelCost(placementID int) int {
	for _, id := range e.store.EntitiesWith(CompExperience, CompPlacement) {
		p := e.store.GetComponent(id, CompPlacement).(*Placement)
		if p.PlacementID != placementID {
			continue
		}
		exp := e.store.GetComponent(id, CompExperience).(*Experience)
		if exp.Level >= MaxSquadLevel {
			return -1
		}
		return squadLevelTable[exp.Level+1].Cost
	}
	return -1
}
