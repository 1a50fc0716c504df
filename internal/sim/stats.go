package sim

// StartingGold is each player's opening economy.
const StartingGold = 100

// UpgradeDef is one purchasable team upgrade. The damage pipeline reads
// damagePercent and round income reads goldIncome; hpPercent is stored in
// the team effect set, and nothing reads it.
type UpgradeDef struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Cost   int     `json:"cost"`
	Effect string  `json:"effect"`
	Value  float64 `json:"value"`
}

var upgradeCatalog = map[string]UpgradeDef{
	"sharpenedBlades": {ID: "sharpenedBlades", Name: "Sharpened Blades", Cost: 50, Effect: "damagePercent", Value: 0.10},
	"hardenedArmor":   {ID: "hardenedArmor", Name: "Hardened Armor", Cost: 50, Effect: "hpPercent", Value: 0.10},
	"taxCollectors":   {ID: "taxCollectors", Name: "Tax Collectors", Cost: 80, Effect: "goldIncome", Value: 5},
}

// UpgradeByID resolves a catalog entry.
func UpgradeByID(id string) (UpgradeDef, bool) {
	u, ok := upgradeCatalog[id]
	return u, ok
}

// CreatePlayerEntity creates the per-player stats entity. Server-side
// these are created at room start and their IDs broadcast with the
// starting state.
func (e *Engine) CreatePlayerEntity(playerID string, team TeamID, explicit ...EntityID) EntityID {
	id := e.store.CreateEntity(explicit...)
	e.store.AddComponent(id, CompPlayerStats, &PlayerStats{
		PlayerID: playerID,
		Team:     team,
		Gold:     StartingGold,
		Upgrades: []string{},
	})
	return id
}

// StatsForPlayer returns the player's stats record, or nil.
func (e *Engine) StatsForPlayer(playerID string) *PlayerStats {
	for _, id := range e.store.EntitiesWith(CompPlayerStats) {
		ps := e.store.GetComponent(id, CompPlayerStats).(*PlayerStats)
		if ps.PlayerID == playerID {
			return ps
		}
	}
	return nil
}

// PlayerEntity returns the entity carrying a player's stats, or NoEntity.
func (e *Engine) PlayerEntity(playerID string) EntityID {
	for _, id := range e.store.EntitiesWith(CompPlayerStats) {
		ps := e.store.GetComponent(id, CompPlayerStats).(*PlayerStats)
		if ps.PlayerID == playerID {
			return id
		}
	}
	return NoEntity
}

// UpgradeResult reports a purchase attempt.
type UpgradeResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Gold    int    `json:"gold"`
}

// PurchaseUpgrade deducts gold and stamps the upgrade's effect onto the
// team effect set. Buying the same upgrade twice is rejected.
func (e *Engine) PurchaseUpgrade(playerID, upgradeID string) UpgradeResult {
	upgrade, ok := UpgradeByID(upgradeID)
	if !ok {
		return UpgradeResult{Success: false, Reason: "unknown upgrade"}
	}
	stats := e.StatsForPlayer(playerID)
	if stats == nil {
		return UpgradeResult{Success: false, Reason: "unknown player"}
	}
	for _, owned := range stats.Upgrades {
		if owned == upgradeID {
			return UpgradeResult{Success: false, Reason: "already owned", Gold: stats.Gold}
		}
	}
	if stats.Gold < upgrade.Cost {
		return UpgradeResult{Success: false, Reason: "insufficient gold", Gold: stats.Gold}
	}

	stats.Gold -= upgrade.Cost
	stats.Upgrades = append(stats.Upgrades, upgradeID)
	e.teamEffects[stats.Team][upgrade.Effect] += upgrade.Value
	return UpgradeResult{Success: true, Gold: stats.Gold}
}

// TeamEffect reads one accumulated team effect value.
func (e *Engine) TeamEffect(team TeamID, effect string) float64 {
	return e.teamEffects[team][effect]
}

// GrantRoundIncome credits end-of-round gold: a base stipend plus any
// goldIncome upgrades.
func (e *Engine) GrantRoundIncome(base int) {
	for _, id := range e.store.EntitiesWith(CompPlayerStats) {
		ps := e.store.GetComponent(id, CompPlayerStats).(*PlayerStats)
		income := base + int(e.teamEffects[ps.Team]["goldIncome"])
		ps.Gold += income
	}
}
