package sim

import (
	"encoding/json"
	"fmt"
	"sort"

	"battleforge/internal/sim/spatial"
)

// Supported save document versions.
const (
	SaveVersionLegacy  = 1
	SaveVersionCurrent = 2
)

// savedComponentExclusions lists components never written into save
// documents or snapshots: purely derived or renderer-facing state that
// rebuilds on load.
var savedComponentExclusions = map[string]bool{
	CompAnimation: true,
}

// typedContainer tags Map/Set containers in the document so
// deserialization rebuilds the right structure instead of a plain object.
type typedContainer struct {
	Type string  `json:"__type"`
	Data [][]any `json:"data"`
}

func marshalMap(m map[string]float64) typedContainer {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := make([][]any, 0, len(m))
	for _, k := range keys {
		data = append(data, []any{k, m[k]})
	}
	return typedContainer{Type: "Map", Data: data}
}

func unmarshalMap(raw json.RawMessage) (map[string]float64, error) {
	var tc typedContainer
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil, err
	}
	if tc.Type != "Map" {
		return nil, fmt.Errorf("expected Map container, got %q", tc.Type)
	}
	out := make(map[string]float64, len(tc.Data))
	for _, pair := range tc.Data {
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed Map entry")
		}
		key, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("malformed Map key")
		}
		val, ok := pair[1].(float64)
		if !ok {
			return nil, fmt.Errorf("malformed Map value")
		}
		out[key] = val
	}
	return out, nil
}

// SaveState is the engine-level state block of a save document.
type SaveState struct {
	Phase           Phase                      `json:"phase"`
	Now             float64                    `json:"now"`
	Tick            int64                      `json:"tick"`
	Round           int                        `json:"round"`
	RNGState        uint64                     `json:"rngState"`
	NextPlacementID int                        `json:"nextPlacementId"`
	TeamEffects     map[TeamID]typedContainer  `json:"teamEffects"`
}

// ECSData is the full component dump, keyed entity -> component -> record.
type ECSData struct {
	NextID   EntityID                              `json:"nextId"`
	Entities map[EntityID]map[string]json.RawMessage `json:"entities"`
}

// SaveData is the persisted document.
type SaveData struct {
	SaveVersion int        `json:"saveVersion"`
	Timestamp   int64      `json:"timestamp"`
	State       SaveState  `json:"state"`
	ECSData     ECSData    `json:"ecsData"`
	Players     []string   `json:"players"`
	Level       *Level     `json:"level"`
}

// GetSaveData serializes the engine: phase/time/rng state, the full ECS
// minus the exclusion set, player list and level.
func (e *Engine) GetSaveData(timestamp int64) (*SaveData, error) {
	ecs, err := e.dumpECS()
	if err != nil {
		return nil, err
	}

	players := make([]string, 0, 2)
	for _, id := range e.store.EntitiesWith(CompPlayerStats) {
		ps := e.store.GetComponent(id, CompPlayerStats).(*PlayerStats)
		players = append(players, ps.PlayerID)
	}

	effects := make(map[TeamID]typedContainer, len(e.teamEffects))
	for team, m := range e.teamEffects {
		effects[team] = marshalMap(m)
	}

	return &SaveData{
		SaveVersion: SaveVersionCurrent,
		Timestamp:   timestamp,
		State: SaveState{
			Phase:           e.phase,
			Now:             e.now,
			Tick:            e.tick,
			Round:           e.round,
			RNGState:        e.rng.Seed(),
			NextPlacementID: e.nextPlacementID,
			TeamEffects:     effects,
		},
		ECSData: ecs,
		Players: players,
		Level:   e.level,
	}, nil
}

func (e *Engine) dumpECS() (ECSData, error) {
	out := ECSData{
		NextID:   e.store.NextID(),
		Entities: make(map[EntityID]map[string]json.RawMessage),
	}
	for _, id := range e.store.LiveEntities() {
		records := make(map[string]json.RawMessage)
		for _, name := range e.store.ComponentsOf(id) {
			if savedComponentExclusions[name] {
				continue
			}
			raw, err := json.Marshal(e.store.GetComponent(id, name))
			if err != nil {
				return ECSData{}, fmt.Errorf("serialize entity %d component %s: %w", id, name, err)
			}
			records[name] = raw
		}
		out.Entities[id] = records
	}
	return out, nil
}

// LoadSaveData restores the engine from a document. Versions 1 and 2 are
// accepted; anything else is rejected with an error the caller surfaces.
func (e *Engine) LoadSaveData(data *SaveData) error {
	if data.SaveVersion != SaveVersionLegacy && data.SaveVersion != SaveVersionCurrent {
		return fmt.Errorf("unsupported save version %d", data.SaveVersion)
	}

	if err := e.restoreECS(data.ECSData); err != nil {
		return err
	}

	e.phase = data.State.Phase
	e.now = data.State.Now
	e.tick = data.State.Tick
	e.round = data.State.Round
	e.rng.Reseed(data.State.RNGState)
	e.nextPlacementID = data.State.NextPlacementID

	for team, tc := range data.State.TeamEffects {
		raw, err := json.Marshal(tc)
		if err != nil {
			return err
		}
		m, err := unmarshalMap(raw)
		if err != nil {
			return fmt.Errorf("restore team effects: %w", err)
		}
		e.teamEffects[team] = m
	}
	return nil
}

// restoreECS replaces the store contents with the dump. Entities rebuild
// with their original IDs; the counter adopts the saved watermark.
func (e *Engine) restoreECS(data ECSData) error {
	e.store.Reset()
	e.behaviorMeta = make(map[EntityID]*BehaviorMeta)
	e.destroyCallbacks = make(map[EntityID][]func())

	ids := make([]EntityID, 0, len(data.Entities))
	for id := range data.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		e.store.CreateEntity(id)
		records := data.Entities[id]
		names := make([]string, 0, len(records))
		for name := range records {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			factory, ok := componentFactories[name]
			if !ok {
				return fmt.Errorf("unknown component %q on entity %d", name, id)
			}
			rec := factory()
			if err := json.Unmarshal(records[name], rec); err != nil {
				return fmt.Errorf("restore entity %d component %s: %w", id, name, err)
			}
			e.store.AddComponent(id, name, rec)
		}
		// Units always carry animation state; it is excluded from the
		// dump and rebuilt here.
		if e.store.HasComponent(id, CompUnitType) && !e.store.HasComponent(id, CompAnimation) {
			e.store.AddComponent(id, CompAnimation, &AnimationState{CurrentClip: ClipIdle})
		}
	}

	e.store.SetNextID(data.NextID)
	e.rebuildReservations()
	return nil
}

// rebuildReservations reconstructs cell ownership from placements after a
// restore or snapshot resync. The previous table is dropped wholesale;
// the snapshot is authoritative.
func (e *Engine) rebuildReservations() {
	e.reservations = spatial.NewReservations(e.level.PlacementCols, e.level.PlacementRows, e.level)
	seen := make(map[int]bool)
	for _, id := range e.store.EntitiesWith(CompPlacement) {
		p := e.store.GetComponent(id, CompPlacement).(*Placement)
		if seen[p.PlacementID] {
			continue
		}
		seen[p.PlacementID] = true
		e.ReserveSquadCells(*p, id)
		if p.PlacementID > e.nextPlacementID {
			e.nextPlacementID = p.PlacementID
		}
	}
}

// SerializeEntities dumps the ECS for the battle-start snapshot sync.
func (e *Engine) SerializeEntities() (json.RawMessage, error) {
	ecs, err := e.dumpECS()
	if err != nil {
		return nil, err
	}
	return json.Marshal(ecs)
}

// ResyncEntities overwrites the local ECS with the server's snapshot.
// The snapshot is authoritative: per-placement flags are read from it,
// never reconciled against local state.
func (e *Engine) ResyncEntities(snapshot json.RawMessage) error {
	var ecs ECSData
	if err := json.Unmarshal(snapshot, &ecs); err != nil {
		return fmt.Errorf("decode entity snapshot: %w", err)
	}
	return e.restoreECS(ecs)
}
