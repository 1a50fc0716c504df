package spatial

import (
	"fmt"
	"math"
)

// Flow-field tuning. Destinations snap to DestinationQuantization-sized
// cells before keying the cache, so many units ordered to roughly the same
// spot share one field.
const (
	DestinationQuantization = 64.0
	MaxFlowFields           = 50
	FlowFieldExpiry         = 10000.0

	// UnreachableCost marks impassable or unreached cells in the
	// integration field; NoDirection is its direction sentinel.
	UnreachableCost = uint16(65535)
	NoDirection     = uint8(255)
)

// flowDirections are the 8 neighbor offsets in fixed order; a cell's
// direction byte indexes this table.
var flowDirections = [8]Cell{
	{X: -1, Z: -1}, {X: 0, Z: -1}, {X: 1, Z: -1},
	{X: -1, Z: 0}, {X: 1, Z: 0},
	{X: -1, Z: 1}, {X: 0, Z: 1}, {X: 1, Z: 1},
}

// FlowField is a precomputed direction-per-cell grid guiding many agents
// toward one shared goal. Instead of running A* per agent, one breadth-
// first relaxation serves every unit bound to the field.
//
// Integration costs are integers (10 cardinal / 14 diagonal) so both
// peers build bit-identical fields.
type FlowField struct {
	Key          string
	GoalX, GoalZ float64
	LastAccessed float64

	grid        *NavGrid
	integration []uint16
	direction   []uint8
}

// generate computes the integration and direction fields toward the goal
// cell.
func (f *FlowField) generate(goal Cell) {
	cols, rows, _ := f.grid.Dimensions()
	size := cols * rows
	f.integration = make([]uint16, size)
	f.direction = make([]uint8, size)
	for i := range f.integration {
		f.integration[i] = UnreachableCost
		f.direction[i] = NoDirection
	}

	idx := func(c Cell) int { return c.Z*cols + c.X }
	if !f.grid.Walkable(goal) {
		return
	}
	f.integration[idx(goal)] = 0

	// Dijkstra-lite: the queue may revisit cells when a diagonal relaxes
	// an already-seen cell, which keeps costs exact without a heap.
	queue := make([]Cell, 0, size/4)
	queue = append(queue, goal)
	for head := 0; head < len(queue); head++ {
		current := queue[head]
		ci := idx(current)
		base := f.integration[ci]
		for _, d := range flowDirections {
			n := Cell{X: current.X + d.X, Z: current.Z + d.Z}
			if !f.grid.Walkable(n) {
				continue
			}
			step := uint16(CostCardinal)
			if d.X != 0 && d.Z != 0 {
				step = CostDiagonal
			}
			cost := base + step
			ni := idx(n)
			if cost < f.integration[ni] {
				f.integration[ni] = cost
				queue = append(queue, n)
			}
		}
	}

	// Direction field: each cell points at its cheapest neighbor. Ties
	// resolve to the first offset in table order.
	for z := 0; z < rows; z++ {
		for x := 0; x < cols; x++ {
			ci := z*cols + x
			if f.integration[ci] == UnreachableCost {
				continue
			}
			best := f.integration[ci]
			bestDir := NoDirection
			for di, d := range flowDirections {
				n := Cell{X: x + d.X, Z: z + d.Z}
				if n.X < 0 || n.X >= cols || n.Z < 0 || n.Z >= rows {
					continue
				}
				ni := n.Z*cols + n.X
				if f.integration[ni] < best {
					best = f.integration[ni]
					bestDir = uint8(di)
				}
			}
			f.direction[ci] = bestDir
		}
	}
}

// Direction returns the unit flow vector at a world position, or ok=false
// when out of bounds, impassable, or unreachable. Diagonal directions are
// normalized to unit length.
func (f *FlowField) Direction(x, z float64) (Point, bool) {
	c, inBounds := f.grid.CellAt(x, z)
	if !inBounds {
		return Point{}, false
	}
	cols, _, _ := f.grid.Dimensions()
	d := f.direction[c.Z*cols+c.X]
	if d == NoDirection {
		return Point{}, false
	}
	off := flowDirections[d]
	v := Point{X: float64(off.X), Z: float64(off.Z)}
	if off.X != 0 && off.Z != 0 {
		inv := 1.0 / math.Sqrt2
		v.X *= inv
		v.Z *= inv
	}
	return v, true
}

// CostToGoal returns the integration cost at a world position, or +Inf
// for unreachable/out-of-bounds cells.
func (f *FlowField) CostToGoal(x, z float64) float64 {
	c, ok := f.grid.CellAt(x, z)
	if !ok {
		return math.Inf(1)
	}
	cols, _, _ := f.grid.Dimensions()
	cost := f.integration[c.Z*cols+c.X]
	if cost == UnreachableCost {
		return math.Inf(1)
	}
	return float64(cost)
}

// IsAtGoal reports whether the position is within one nav cell of the
// field's goal; consumers use this as the termination test.
func (f *FlowField) IsAtGoal(x, z float64) bool {
	_, _, cellSize := f.grid.Dimensions()
	return math.Abs(x-f.GoalX) <= cellSize && math.Abs(z-f.GoalZ) <= cellSize
}

// FlowFieldManager holds a bounded LRU of flow fields keyed by quantized
// destination, plus the entity -> field bindings.
type FlowFieldManager struct {
	grid        *NavGrid
	fields      map[string]*FlowField
	assignments map[int64]string
	capacity    int
}

// NewFlowFieldManager creates a manager over the nav grid.
func NewFlowFieldManager(grid *NavGrid) *FlowFieldManager {
	return &FlowFieldManager{
		grid:        grid,
		fields:      make(map[string]*FlowField),
		assignments: make(map[int64]string),
		capacity:    MaxFlowFields,
	}
}

// SetCapacity overrides the cache bound.
func (m *FlowFieldManager) SetCapacity(n int) {
	if n > 0 {
		m.capacity = n
	}
}

// QuantizeKey snaps a destination to the quantization cell and renders
// the cache key.
func QuantizeKey(x, z float64) string {
	qx := int(math.Floor(x / DestinationQuantization))
	qz := int(math.Floor(z / DestinationQuantization))
	return fmt.Sprintf("%d:%d", qx, qz)
}

// GetOrCreate returns the field for the quantized destination, creating
// and caching it on a miss. Hits only update LastAccessed. When the cache
// is full the strictly least-recently-accessed field is evicted and any
// entities bound to it start receiving null directions.
func (m *FlowFieldManager) GetOrCreate(x, z float64, now float64) *FlowField {
	key := QuantizeKey(x, z)
	if field, ok := m.fields[key]; ok {
		field.LastAccessed = now
		return field
	}

	if len(m.fields) >= m.capacity {
		m.evictLRU()
	}

	field := &FlowField{
		Key:          key,
		GoalX:        x,
		GoalZ:        z,
		LastAccessed: now,
		grid:         m.grid,
	}
	goal, ok := m.grid.CellAt(x, z)
	if ok {
		if walkableGoal, found := m.grid.NearestWalkable(goal); found {
			goal = walkableGoal
		}
		field.generate(goal)
	} else {
		field.generate(Cell{X: -1, Z: -1})
	}
	m.fields[key] = field
	return field
}

// Get returns a cached field without creating one.
func (m *FlowFieldManager) Get(key string) (*FlowField, bool) {
	f, ok := m.fields[key]
	return f, ok
}

func (m *FlowFieldManager) evictLRU() {
	oldestKey := ""
	oldest := math.Inf(1)
	for key, f := range m.fields {
		if f.LastAccessed < oldest || (f.LastAccessed == oldest && (oldestKey == "" || key < oldestKey)) {
			oldest = f.LastAccessed
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(m.fields, oldestKey)
	}
}

// Expire evicts fields not accessed within FlowFieldExpiry sim-time units.
func (m *FlowFieldManager) Expire(now float64) {
	for key, f := range m.fields {
		if now-f.LastAccessed > FlowFieldExpiry {
			delete(m.fields, key)
		}
	}
}

// AssignEntity binds a consumer to a field key.
func (m *FlowFieldManager) AssignEntity(entity int64, key string) {
	m.assignments[entity] = key
}

// EntityDirection returns the bound field's flow direction at the
// entity's position. ok is false when the entity has no binding, the key
// was evicted, or the cell is impassable.
func (m *FlowFieldManager) EntityDirection(entity int64, x, z float64) (Point, bool) {
	key, ok := m.assignments[entity]
	if !ok {
		return Point{}, false
	}
	field, ok := m.fields[key]
	if !ok {
		return Point{}, false
	}
	return field.Direction(x, z)
}

// EntityField returns the field an entity is bound to, if still cached.
func (m *FlowFieldManager) EntityField(entity int64) (*FlowField, bool) {
	key, ok := m.assignments[entity]
	if !ok {
		return nil, false
	}
	f, ok := m.fields[key]
	return f, ok
}

// EntityDestroyed drops the entity's binding.
func (m *FlowFieldManager) EntityDestroyed(entity int64) {
	delete(m.assignments, entity)
}

// Len returns the number of cached fields.
func (m *FlowFieldManager) Len() int {
	return len(m.fields)
}

// Clear drops every field and binding.
func (m *FlowFieldManager) Clear() {
	m.fields = make(map[string]*FlowField)
	m.assignments = make(map[int64]string)
}
