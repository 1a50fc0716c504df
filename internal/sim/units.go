package sim

// DefaultUnitRadius is the collision radius floor for any unit.
const DefaultUnitRadius = 4.0

// UnitDef is the static definition a unitType component resolves to.
type UnitDef struct {
	Name           string   `json:"name"`
	MaxHP          float64  `json:"maxHp"`
	Damage         float64  `json:"damage"`
	Range          float64  `json:"range"`
	AttackCooldown float64  `json:"attackCooldown"`
	MaxSpeed       float64  `json:"maxSpeed"`
	Radius         float64  `json:"radius"`
	Element        string   `json:"element"`
	Cost           int      `json:"cost"`
	Supply         int      `json:"supply"`
	SquadSize      int      `json:"squadSize"`
	Abilities      []string `json:"abilities"`

	// Building-only fields. Footprint is in building units; validation
	// multiplies by 2 to get placement cells per axis.
	IsBuilding      bool `json:"isBuilding"`
	FootprintWidth  int  `json:"footprintWidth"`
	FootprintHeight int  `json:"footprintHeight"`
}

// UnitCollection groups unit definitions; aiState and placements address
// units by (collection index, type index) so only small integers travel.
type UnitCollection struct {
	Name  string
	Units []UnitDef
}

var unitCollections = []UnitCollection{
	{
		Name: "standard",
		Units: []UnitDef{
			{
				Name: "soldier", MaxHP: 100, Damage: 12, Range: 10, AttackCooldown: 1.2,
				MaxSpeed: 20, Radius: DefaultUnitRadius, Element: "physical",
				Cost: 30, Supply: 4, SquadSize: 4,
			},
			{
				Name: "archer", MaxHP: 60, Damage: 10, Range: 80, AttackCooldown: 1.6,
				MaxSpeed: 18, Radius: DefaultUnitRadius, Element: "physical",
				Cost: 40, Supply: 4, SquadSize: 4,
			},
			{
				Name: "knight", MaxHP: 220, Damage: 20, Range: 12, AttackCooldown: 1.8,
				MaxSpeed: 14, Radius: 5, Element: "physical",
				Cost: 70, Supply: 6, SquadSize: 2,
			},
			{
				Name: "shadowblade", MaxHP: 80, Damage: 18, Range: 10, AttackCooldown: 1.4,
				MaxSpeed: 26, Radius: DefaultUnitRadius, Element: "shadow",
				Cost: 90, Supply: 5, SquadSize: 1,
				Abilities: []string{AbilityShadowStrike},
			},
			{
				Name: "pyromancer", MaxHP: 70, Damage: 8, Range: 120, AttackCooldown: 2.0,
				MaxSpeed: 16, Radius: DefaultUnitRadius, Element: "fire",
				Cost: 110, Supply: 6, SquadSize: 1,
				Abilities: []string{AbilityMeteor},
			},
			{
				Name: "stormcaller", MaxHP: 75, Damage: 9, Range: 100, AttackCooldown: 1.8,
				MaxSpeed: 16, Radius: DefaultUnitRadius, Element: "lightning",
				Cost: 100, Supply: 6, SquadSize: 1,
				Abilities: []string{AbilityChainLightning},
			},
			{
				Name: "peasant", MaxHP: 50, Damage: 3, Range: 8, AttackCooldown: 2.0,
				MaxSpeed: 18, Radius: DefaultUnitRadius, Element: "physical",
				Cost: 15, Supply: 2, SquadSize: 1,
			},
		},
	},
	{
		Name: "buildings",
		Units: []UnitDef{
			{
				Name: "barracks", MaxHP: 400, Cost: 120, Supply: 0, SquadSize: 1,
				Radius: 12, IsBuilding: true, FootprintWidth: 1, FootprintHeight: 1,
			},
			{
				Name: "watchtower", MaxHP: 250, Damage: 15, Range: 140, AttackCooldown: 2.2,
				Cost: 90, Supply: 0, SquadSize: 1,
				Radius: 8, Element: "physical", IsBuilding: true,
				FootprintWidth: 1, FootprintHeight: 1,
			},
		},
	},
}

var (
	unitCollectionIndex = map[string]int{}
	unitTypeIndex       = map[string]map[string]int{}
)

func init() {
	for ci, c := range unitCollections {
		unitCollectionIndex[c.Name] = ci
		types := make(map[string]int, len(c.Units))
		for ti, u := range c.Units {
			types[u.Name] = ti
		}
		unitTypeIndex[c.Name] = types
	}
}

// UnitDefByIndex resolves a (collection, type) pair.
func UnitDefByIndex(collection, typ int) (*UnitDef, bool) {
	if collection < 0 || collection >= len(unitCollections) {
		return nil, false
	}
	units := unitCollections[collection].Units
	if typ < 0 || typ >= len(units) {
		return nil, false
	}
	return &units[typ], true
}

// UnitIndexByName resolves names to the transported index pair.
func UnitIndexByName(collection, unit string) (ci, ti int, ok bool) {
	ci, ok = unitCollectionIndex[collection]
	if !ok {
		return 0, 0, false
	}
	ti, ok = unitTypeIndex[collection][unit]
	if !ok {
		return 0, 0, false
	}
	return ci, ti, true
}

// UnitDefFor resolves an entity's unitType component to its definition.
func (e *Engine) UnitDefFor(id EntityID) (*UnitDef, bool) {
	ref, ok := e.store.GetComponent(id, CompUnitType).(*UnitTypeRef)
	if !ok {
		return nil, false
	}
	return UnitDefByIndex(ref.Collection, ref.Type)
}
