package spatial

import (
	"container/heap"
	"math"
	"sort"
)

// Step costs on the nav grid. Integer costs keep peers bit-identical.
const (
	CostCardinal = 10
	CostDiagonal = 14
)

// StalePathDistance is how far a goal may drift from the position a path
// was computed for before the path must be discarded.
const StalePathDistance = 50.0

// Point is a world-space waypoint.
type Point struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// NavGrid is the walkable bitmap derived from the terrain tile map.
// Cells are terrain cells; world coordinates map through the origin and
// cell size.
type NavGrid struct {
	cols, rows int
	cellSize   float64
	originX    float64
	originZ    float64
	walkable   []bool
}

// NewNavGrid builds a nav grid from a terrain source. Origin is the world
// position of cell (0,0)'s corner.
func NewNavGrid(cols, rows int, cellSize, originX, originZ float64, terrain TerrainSource) *NavGrid {
	g := &NavGrid{
		cols:     cols,
		rows:     rows,
		cellSize: cellSize,
		originX:  originX,
		originZ:  originZ,
		walkable: make([]bool, cols*rows),
	}
	for z := 0; z < rows; z++ {
		for x := 0; x < cols; x++ {
			walkable, _, ok := terrain.TerrainAt(x, z)
			g.walkable[z*cols+x] = ok && walkable
		}
	}
	return g
}

// Dimensions returns the grid shape.
func (g *NavGrid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}

// CellAt converts a world position to a nav cell; ok is false out of
// bounds.
func (g *NavGrid) CellAt(x, z float64) (Cell, bool) {
	cx := int(math.Floor((x - g.originX) / g.cellSize))
	cz := int(math.Floor((z - g.originZ) / g.cellSize))
	if cx < 0 || cx >= g.cols || cz < 0 || cz >= g.rows {
		return Cell{}, false
	}
	return Cell{X: cx, Z: cz}, true
}

// CellCenter returns the world position at the center of a cell.
func (g *NavGrid) CellCenter(c Cell) Point {
	return Point{
		X: g.originX + (float64(c.X)+0.5)*g.cellSize,
		Z: g.originZ + (float64(c.Z)+0.5)*g.cellSize,
	}
}

// Walkable reports cell passability; out-of-bounds cells are impassable.
func (g *NavGrid) Walkable(c Cell) bool {
	if c.X < 0 || c.X >= g.cols || c.Z < 0 || c.Z >= g.rows {
		return false
	}
	return g.walkable[c.Z*g.cols+c.X]
}

// SetWalkable overrides one cell, used when buildings claim terrain.
func (g *NavGrid) SetWalkable(c Cell, w bool) {
	if c.X < 0 || c.X >= g.cols || c.Z < 0 || c.Z >= g.rows {
		return
	}
	g.walkable[c.Z*g.cols+c.X] = w
}

// NearestWalkable searches outward from c up to two rings and returns the
// closest walkable cell, scanning each ring in (z, x) order so both peers
// pick the same cell. ok is false when no ring contains one.
func (g *NavGrid) NearestWalkable(c Cell) (Cell, bool) {
	if g.Walkable(c) {
		return c, true
	}
	for ring := 1; ring <= 2; ring++ {
		for dz := -ring; dz <= ring; dz++ {
			for dx := -ring; dx <= ring; dx++ {
				if dx > -ring && dx < ring && dz > -ring && dz < ring {
					continue
				}
				n := Cell{X: c.X + dx, Z: c.Z + dz}
				if g.Walkable(n) {
					return n, true
				}
			}
		}
	}
	return Cell{}, false
}

// aStarNode is an open-list entry.
type aStarNode struct {
	cell Cell
	f    int
	g    int
	idx  int
}

type openList []*aStarNode

func (o openList) Len() int { return len(o) }

// Less orders by f-score; equal scores resolve by lower (z, x) so the
// expansion order is identical on every peer.
func (o openList) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	if o[i].cell.Z != o[j].cell.Z {
		return o[i].cell.Z < o[j].cell.Z
	}
	return o[i].cell.X < o[j].cell.X
}

func (o openList) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].idx = i
	o[j].idx = j
}

func (o *openList) Push(x any) {
	n := x.(*aStarNode)
	n.idx = len(*o)
	*o = append(*o, n)
}

func (o *openList) Pop() any {
	old := *o
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*o = old[:len(old)-1]
	return n
}

var neighborOffsets = [8]Cell{
	{X: -1, Z: -1}, {X: 0, Z: -1}, {X: 1, Z: -1},
	{X: -1, Z: 0}, {X: 1, Z: 0},
	{X: -1, Z: 1}, {X: 0, Z: 1}, {X: 1, Z: 1},
}

func stepCost(d Cell) int {
	if d.X != 0 && d.Z != 0 {
		return CostDiagonal
	}
	return CostCardinal
}

func octileHeuristic(a, b Cell) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return CostCardinal*(dx-dz) + CostDiagonal*dz
	}
	return CostCardinal*(dz-dx) + CostDiagonal*dx
}

// FindPath runs A* from start to goal on the nav grid. Returns the cell
// sequence including both endpoints, or nil when unreachable. No
// randomness anywhere: tie-breaks are (f, z, x).
func (g *NavGrid) FindPath(start, goal Cell) []Cell {
	if !g.Walkable(start) || !g.Walkable(goal) {
		return nil
	}
	if start == goal {
		return []Cell{start}
	}

	size := g.cols * g.rows
	gScore := make([]int, size)
	cameFrom := make([]int32, size)
	closed := make([]bool, size)
	inOpen := make([]*aStarNode, size)
	for i := range gScore {
		gScore[i] = math.MaxInt32
		cameFrom[i] = -1
	}

	idx := func(c Cell) int { return c.Z*g.cols + c.X }

	open := make(openList, 0, 64)
	startNode := &aStarNode{cell: start, g: 0, f: octileHeuristic(start, goal)}
	gScore[idx(start)] = 0
	heap.Push(&open, startNode)
	inOpen[idx(start)] = startNode

	for open.Len() > 0 {
		current := heap.Pop(&open).(*aStarNode)
		ci := idx(current.cell)
		inOpen[ci] = nil
		if current.cell == goal {
			return reconstruct(cameFrom, g.cols, goal)
		}
		closed[ci] = true

		for _, d := range neighborOffsets {
			n := Cell{X: current.cell.X + d.X, Z: current.cell.Z + d.Z}
			if !g.Walkable(n) {
				continue
			}
			ni := idx(n)
			if closed[ni] {
				continue
			}
			tentative := gScore[ci] + stepCost(d)
			if tentative >= gScore[ni] {
				continue
			}
			gScore[ni] = tentative
			cameFrom[ni] = int32(ci)
			f := tentative + octileHeuristic(n, goal)
			if node := inOpen[ni]; node != nil {
				node.g = tentative
				node.f = f
				heap.Fix(&open, node.idx)
			} else {
				node := &aStarNode{cell: n, g: tentative, f: f}
				heap.Push(&open, node)
				inOpen[ni] = node
			}
		}
	}
	return nil
}

func reconstruct(cameFrom []int32, cols int, goal Cell) []Cell {
	var rev []Cell
	i := int32(goal.Z*cols + goal.X)
	for i >= 0 {
		rev = append(rev, Cell{X: int(i) % cols, Z: int(i) / cols})
		i = cameFrom[i]
	}
	path := make([]Cell, len(rev))
	for j := range rev {
		path[j] = rev[len(rev)-1-j]
	}
	return path
}

// pathCacheKey identifies a completed path by its endpoint cells.
type pathCacheKey struct {
	start, goal Cell
}

// pathRequest is a queued background computation.
type pathRequest struct {
	entity   int64
	start    Cell
	goal     Cell
	targetX  float64
	targetZ  float64
	priority int
	seq      uint64
}

// PathManager owns path computation, the completed-path cache, and the
// per-entity path assignment. Requests that miss the cache enqueue; the
// engine drains the queue at tick boundaries so results appear on a later
// tick, never mid-pass.
type PathManager struct {
	grid       *NavGrid
	cache      map[pathCacheKey][]Point
	queue      []pathRequest
	paths      map[int64][]Point
	lastTarget map[int64]Point
	seq        uint64
}

// NewPathManager creates a manager over the nav grid.
func NewPathManager(grid *NavGrid) *PathManager {
	return &PathManager{
		grid:       grid,
		cache:      make(map[pathCacheKey][]Point),
		paths:      make(map[int64][]Point),
		lastTarget: make(map[int64]Point),
	}
}

// Grid exposes the underlying nav grid.
func (m *PathManager) Grid() *NavGrid {
	return m.grid
}

// RequestPath returns a cached completed path synchronously when one
// exists for the same cell endpoints; otherwise it enqueues background
// work and returns nil. The result becomes observable through
// GetEntityPath on a later tick.
func (m *PathManager) RequestPath(entity int64, sx, sz, tx, tz float64, priority int) []Point {
	start, ok := m.grid.CellAt(sx, sz)
	if !ok {
		return nil
	}
	start, ok = m.grid.NearestWalkable(start)
	if !ok {
		return nil
	}
	goal, ok := m.grid.CellAt(tx, tz)
	if !ok {
		return nil
	}
	goal, ok = m.grid.NearestWalkable(goal)
	if !ok {
		return nil
	}

	key := pathCacheKey{start: start, goal: goal}
	if path, hit := m.cache[key]; hit {
		m.paths[entity] = path
		m.lastTarget[entity] = Point{X: tx, Z: tz}
		return path
	}

	m.seq++
	m.queue = append(m.queue, pathRequest{
		entity:   entity,
		start:    start,
		goal:     goal,
		targetX:  tx,
		targetZ:  tz,
		priority: priority,
		seq:      m.seq,
	})
	return nil
}

// ProcessQueue computes up to maxRequests queued paths. Higher priority
// first, insertion order within a priority, so both peers drain the queue
// identically.
func (m *PathManager) ProcessQueue(maxRequests int) {
	if len(m.queue) == 0 {
		return
	}
	sort.SliceStable(m.queue, func(i, j int) bool {
		if m.queue[i].priority != m.queue[j].priority {
			return m.queue[i].priority > m.queue[j].priority
		}
		return m.queue[i].seq < m.queue[j].seq
	})

	n := maxRequests
	if n > len(m.queue) {
		n = len(m.queue)
	}
	for _, req := range m.queue[:n] {
		key := pathCacheKey{start: req.start, goal: req.goal}
		path, hit := m.cache[key]
		if !hit {
			cells := m.grid.FindPath(req.start, req.goal)
			if cells == nil {
				continue
			}
			path = make([]Point, len(cells))
			for i, c := range cells {
				path[i] = m.grid.CellCenter(c)
			}
			m.cache[key] = path
		}
		m.paths[req.entity] = path
		m.lastTarget[req.entity] = Point{X: req.targetX, Z: req.targetZ}
	}
	m.queue = m.queue[n:]
}

// GetEntityPath returns the entity's assigned path, or nil.
func (m *PathManager) GetEntityPath(entity int64) []Point {
	return m.paths[entity]
}

// SetEntityPath assigns a path directly.
func (m *PathManager) SetEntityPath(entity int64, path []Point) {
	m.paths[entity] = path
}

// ClearEntityPath drops the entity's path and target record.
func (m *PathManager) ClearEntityPath(entity int64) {
	delete(m.paths, entity)
	delete(m.lastTarget, entity)
}

// IsStale reports whether the goal has moved more than StalePathDistance
// from the position the entity's path was computed for.
func (m *PathManager) IsStale(entity int64, tx, tz float64) bool {
	last, ok := m.lastTarget[entity]
	if !ok {
		return false
	}
	dx := tx - last.X
	dz := tz - last.Z
	return math.Sqrt(dx*dx+dz*dz) > StalePathDistance
}

// EntityDestroyed drops all per-entity path state.
func (m *PathManager) EntityDestroyed(entity int64) {
	m.ClearEntityPath(entity)
}

// InvalidateCache drops completed paths, used when walkability changes.
func (m *PathManager) InvalidateCache() {
	m.cache = make(map[pathCacheKey][]Point)
}
