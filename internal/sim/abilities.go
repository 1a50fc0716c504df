package sim

import (
	"math"
)

// Ability names as declared by unit definitions.
const (
	AbilityShadowStrike   = "shadowStrike"
	AbilityMeteor         = "meteor"
	AbilityChainLightning = "chainLightning"
)

// AbilityDef is the data-driven ability record.
type AbilityDef struct {
	Name      string  `json:"name"`
	Cooldown  float64 `json:"cooldown"`
	Range     float64 `json:"range"`
	ManaCost  float64 `json:"manaCost"`
	CastTime  float64 `json:"castTime"`
	Priority  int     `json:"priority"`
	TargetType string `json:"targetType"`

	Damage          float64 `json:"damage"`
	SplashRadius    float64 `json:"splashRadius"`
	ImpactDelay     float64 `json:"impactDelay"`
	MaxJumps        int     `json:"maxJumps"`
	JumpRange       float64 `json:"jumpRange"`
	DamageReduction float64 `json:"damageReduction"`
}

// Ability gates and executes one data-driven ability. Execute performs
// all targeting immediately with current state, then schedules its
// impacts through the action scheduler; the unit's behavior action yields
// running for the cast duration.
type Ability interface {
	Def() *AbilityDef
	CanExecute(e *Engine, caster EntityID) bool
	Execute(e *Engine, caster EntityID)
}

var abilityRegistry = map[string]Ability{}

func registerAbility(a Ability) {
	abilityRegistry[a.Def().Name] = a
}

func init() {
	registerAbility(&shadowStrike{def: AbilityDef{
		Name: AbilityShadowStrike, Cooldown: 8, Range: 150, CastTime: 0.4,
		TargetType: "enemy", Damage: 30,
	}})
	registerAbility(&meteor{def: AbilityDef{
		Name: AbilityMeteor, Cooldown: 12, Range: 1000, CastTime: 1.0,
		TargetType: "point", Damage: 40, SplashRadius: 120, ImpactDelay: 0.6,
	}})
	registerAbility(&chainLightning{def: AbilityDef{
		Name: AbilityChainLightning, Cooldown: 10, Range: 120, CastTime: 0.5,
		TargetType: "enemy", Damage: 60, MaxJumps: 3, JumpRange: 70, DamageReduction: 0.8,
	}})
}

// AbilityByName resolves a registered ability.
func AbilityByName(name string) (Ability, bool) {
	a, ok := abilityRegistry[name]
	return a, ok
}

// abilityGate is the shared CanExecute: cooldown elapsed and a living
// enemy within range.
func abilityGate(e *Engine, caster EntityID, def *AbilityDef) bool {
	meta := e.metaFor(caster)
	if meta.LastCast != nil {
		if last, ok := meta.LastCast[def.Name]; ok && e.now-last < def.Cooldown {
			return false
		}
	}
	t, ok := e.store.GetComponent(caster, CompTransform).(*Transform)
	if !ok {
		return false
	}
	team, ok := e.store.GetComponent(caster, CompTeam).(*Team)
	if !ok {
		return false
	}
	return len(e.EnemiesInRange(t.Position, def.Range, team.ID)) > 0
}

func markCast(e *Engine, caster EntityID, def *AbilityDef) {
	meta := e.metaFor(caster)
	if meta.LastCast == nil {
		meta.LastCast = make(map[string]float64)
	}
	meta.LastCast[def.Name] = e.now
}

// shadowStrike teleports the caster behind its victim and lands a
// critical backstab.
type shadowStrike struct {
	def AbilityDef
}

// teleportOffsets is the fixed priority list of candidate landing offsets
// relative to the victim. The first offset whose absolute landing
// coordinates stay within 1000 wins; the first entry is the fallback.
var teleportOffsets = [5][2]float64{
	{-25, -25}, {-25, 0}, {-25, 25}, {0, -25}, {0, 25},
}

func (a *shadowStrike) Def() *AbilityDef { return &a.def }

func (a *shadowStrike) CanExecute(e *Engine, caster EntityID) bool {
	return abilityGate(e, caster, &a.def)
}

func (a *shadowStrike) Execute(e *Engine, caster EntityID) {
	markCast(e, caster, &a.def)

	target := e.ClosestEnemy(caster)
	if target == NoEntity {
		return
	}
	tt, ok := e.store.GetComponent(target, CompTransform).(*Transform)
	if !ok {
		return
	}

	landing := [2]float64{
		tt.Position.X + teleportOffsets[0][0],
		tt.Position.Z + teleportOffsets[0][1],
	}
	for _, off := range teleportOffsets {
		x := tt.Position.X + off[0]
		z := tt.Position.Z + off[1]
		if math.Abs(x) <= 1000 && math.Abs(z) <= 1000 {
			landing = [2]float64{x, z}
			break
		}
	}

	ct, _ := e.store.GetComponent(caster, CompTransform).(*Transform)
	if ct != nil {
		e.renderer.PlayEffect("shadowStrikeCast", ct.Position)
	}

	damage := a.def.Damage
	victim := target
	e.scheduler.Schedule(func() {
		t, ok := e.store.GetComponent(caster, CompTransform).(*Transform)
		if !ok {
			return
		}
		t.Position.X = Round6(landing[0])
		t.Position.Z = Round6(landing[1])
		e.QueueDamage(DamageRequest{
			Source:   caster,
			Target:   victim,
			Amount:   damage,
			Critical: true,
			Backstab: true,
			Element:  "shadow",
		})
		e.renderer.PlayEffect("shadowStrikeHit", t.Position)
	}, a.def.CastTime, e.now, caster)
}

// meteor drops a delayed cluster strike on the densest clump of enemies.
type meteor struct {
	def AbilityDef
}

func (a *meteor) Def() *AbilityDef { return &a.def }

func (a *meteor) CanExecute(e *Engine, caster EntityID) bool {
	return abilityGate(e, caster, &a.def)
}

func (a *meteor) Execute(e *Engine, caster EntityID) {
	markCast(e, caster, &a.def)

	t, ok := e.store.GetComponent(caster, CompTransform).(*Transform)
	if !ok {
		return
	}
	team, ok := e.store.GetComponent(caster, CompTeam).(*Team)
	if !ok {
		return
	}

	candidates := e.EnemiesInRange(t.Position, a.def.Range, team.ID)
	if len(candidates) == 0 {
		return
	}

	// Impact point: the enemy whose position covers the most other
	// enemies within the splash radius. Ties break by lower total
	// distance to the covered enemies; remaining ties keep the candidate
	// nearer the caster, then the lower ID (candidates iterate in
	// ascending-distance-from-caster-then-ID order and only strictly
	// better scores replace the pick).
	bestID := NoEntity
	bestCount := -1
	bestTotal := math.Inf(1)
	for _, cand := range candidates {
		cp := e.store.GetComponent(cand, CompTransform).(*Transform)
		count := 0
		total := 0.0
		for _, other := range candidates {
			if other == cand {
				continue
			}
			op := e.store.GetComponent(other, CompTransform).(*Transform)
			d := math.Hypot(op.Position.X-cp.Position.X, op.Position.Z-cp.Position.Z)
			if d <= a.def.SplashRadius {
				count++
				total += d
			}
		}
		if count > bestCount || (count == bestCount && total < bestTotal) {
			bestCount = count
			bestTotal = total
			bestID = cand
		}
	}
	if bestID == NoEntity {
		return
	}
	ip := e.store.GetComponent(bestID, CompTransform).(*Transform)
	impact := Vec3{X: ip.Position.X, Y: ip.Position.Y, Z: ip.Position.Z}

	e.renderer.PlayEffect("meteorWarning", impact)

	damage := a.def.Damage
	splash := a.def.SplashRadius
	casterTeam := team.ID
	e.scheduler.Schedule(func() {
		e.renderer.PlayEffect("meteorImpact", impact)
		e.renderer.PlayScreenShake(4, 0.4)
		for _, victim := range e.EnemiesInRange(impact, splash, casterTeam) {
			vp := e.store.GetComponent(victim, CompTransform).(*Transform)
			d := math.Hypot(vp.Position.X-impact.X, vp.Position.Z-impact.Z)
			falloff := math.Max(0.5, 1-0.5*d/splash)
			e.QueueDamage(DamageRequest{
				Source:  caster,
				Target:  victim,
				Amount:  damage * falloff,
				Splash:  true,
				Element: "fire",
			})
		}
	}, a.def.CastTime+a.def.ImpactDelay, e.now, caster)
}

// chainLightning hits up to maxJumps enemies in total, starting with the
// closest, each jump losing damage.
type chainLightning struct {
	def AbilityDef
}

func (a *chainLightning) Def() *AbilityDef { return &a.def }

func (a *chainLightning) CanExecute(e *Engine, caster EntityID) bool {
	return abilityGate(e, caster, &a.def)
}

func (a *chainLightning) Execute(e *Engine, caster EntityID) {
	markCast(e, caster, &a.def)

	first := e.ClosestEnemy(caster)
	if first == NoEntity {
		return
	}

	// Targeting happens now, with current state; only the impacts and
	// visuals are deferred.
	chain := []EntityID{first}
	hit := map[EntityID]bool{first: true}
	current := first
	for jump := 0; jump < a.def.MaxJumps-1; jump++ {
		cp, ok := e.store.GetComponent(current, CompTransform).(*Transform)
		if !ok {
			break
		}
		team, ok := e.store.GetComponent(current, CompTeam).(*Team)
		if !ok {
			break
		}
		next := NoEntity
		for _, cand := range e.EnemiesInRange(cp.Position, a.def.JumpRange, team.ID.Opponent()) {
			if !hit[cand] {
				next = cand
				break
			}
		}
		if next == NoEntity {
			break
		}
		chain = append(chain, next)
		hit[next] = true
		current = next
	}

	damage := a.def.Damage
	for i, victim := range chain {
		jumpIndex := i
		victim := victim
		amount := damage * math.Pow(a.def.DamageReduction, float64(jumpIndex))
		e.scheduler.Schedule(func() {
			if !e.store.Exists(victim) {
				return
			}
			vp, ok := e.store.GetComponent(victim, CompTransform).(*Transform)
			if !ok {
				return
			}
			e.QueueDamage(DamageRequest{
				Source:  caster,
				Target:  victim,
				Amount:  amount,
				Element: "lightning",
			})
			e.renderer.CreateLayeredEffect(map[string]any{
				"type":   "chainLightning",
				"jump":   jumpIndex,
				"points": JaggedPath(vp.Position, 6),
			})
		}, a.def.CastTime+float64(jumpIndex)*0.150, e.now, caster)
	}
}

// JaggedPath produces the lightning bolt's jitter offsets. The "random"
// look comes from the fixed formula ((i*k) mod 100)/100 - 0.5 for
// k in {37, 73, 91}, never the battle RNG, so replays and both peers
// render identical bolts without consuming random draws.
func JaggedPath(around Vec3, segments int) []Vec3 {
	ks := [3]int{37, 73, 91}
	out := make([]Vec3, segments)
	for i := 0; i < segments; i++ {
		jitter := func(k int) float64 {
			return float64((i*k)%100)/100 - 0.5
		}
		out[i] = Vec3{
			X: around.X + jitter(ks[0])*8,
			Y: around.Y + 10 + jitter(ks[1])*8,
			Z: around.Z + jitter(ks[2])*8,
		}
	}
	return out
}
