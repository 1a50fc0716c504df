// Package spatial provides the grid substrate of the simulation:
// placement-cell reservations, nearby-entity queries, nav-grid A* and
// flow fields.
//
// All structures use preallocated slices with integer entity IDs (not
// pointers) to minimize GC pressure and keep traversal order explicit,
// which the lockstep model depends on.
package spatial

import (
	"math"
	"sort"
)

// Cell is a placement-grid coordinate.
type Cell struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// PlacementToTerrain converts a placement cell to its terrain cell. One
// placement cell spans half a terrain cell in each axis.
func PlacementToTerrain(c Cell) Cell {
	return Cell{X: floorDiv(c.X, 2), Z: floorDiv(c.Z, 2)}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// TerrainSource answers walkability/buildability questions for terrain
// cells. The level owns the tile map; the grid only asks.
type TerrainSource interface {
	TerrainAt(tx, tz int) (walkable, buildable, ok bool)
}

// NearbyIndex is a uniform grid over entity positions, rebuilt each tick.
// QuerySquare returns the exact set of IDs within a square of side
// 2*radius, ascending by ID, so every consumer iterates identically on
// both peers.
type NearbyIndex struct {
	cellSize    float64
	invCellSize float64
	cols, rows  int
	originX     float64
	originZ     float64
	cells       [][]int64
	positions   map[int64][2]float64
	scratch     []int64
}

// NewNearbyIndex creates an index covering [-halfW,halfW] x [-halfH,halfH].
func NewNearbyIndex(halfW, halfH, cellSize float64) *NearbyIndex {
	cols := int(math.Ceil(2 * halfW / cellSize))
	rows := int(math.Ceil(2 * halfH / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	cells := make([][]int64, cols*rows)
	for i := range cells {
		cells[i] = make([]int64, 0, 4)
	}
	return &NearbyIndex{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		originX:     -halfW,
		originZ:     -halfH,
		cells:       cells,
		positions:   make(map[int64][2]float64),
		scratch:     make([]int64, 0, 64),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *NearbyIndex) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	clear(g.positions)
}

// Insert adds an entity at world position (x, z).
func (g *NearbyIndex) Insert(id int64, x, z float64) {
	col := g.clampCol(int((x - g.originX) * g.invCellSize))
	row := g.clampRow(int((z - g.originZ) * g.invCellSize))
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], id)
	g.positions[id] = [2]float64{x, z}
}

func (g *NearbyIndex) clampCol(c int) int {
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

func (g *NearbyIndex) clampRow(r int) int {
	if r < 0 {
		return 0
	}
	if r >= g.rows {
		return g.rows - 1
	}
	return r
}

// QuerySquare returns entity IDs within the square of side 2*radius
// centered on (cx, cz), excluding self, ascending by ID.
//
// The returned slice is reused on subsequent calls; copy to persist.
func (g *NearbyIndex) QuerySquare(cx, cz, radius float64, self int64) []int64 {
	g.scratch = g.scratch[:0]
	if radius <= 0 {
		return g.scratch
	}

	minCol := g.clampCol(int((cx - radius - g.originX) * g.invCellSize))
	maxCol := g.clampCol(int((cx + radius - g.originX) * g.invCellSize))
	minRow := g.clampRow(int((cz - radius - g.originZ) * g.invCellSize))
	maxRow := g.clampRow(int((cz + radius - g.originZ) * g.invCellSize))

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, id := range g.cells[row*g.cols+col] {
				if id == self {
					continue
				}
				pos := g.positions[id]
				if math.Abs(pos[0]-cx) <= radius && math.Abs(pos[1]-cz) <= radius {
					g.scratch = append(g.scratch, id)
				}
			}
		}
	}

	sort.Slice(g.scratch, func(i, j int) bool { return g.scratch[i] < g.scratch[j] })
	return g.scratch
}

// reservation records which entity holds a placement cell.
type reservation struct {
	entity      int64
	placementID int
}

// Reservations tracks placement-cell ownership per team. A cell can be
// held by at most one placement per team at a time.
type Reservations struct {
	cols, rows int
	byTeam     map[string]map[Cell]reservation
	terrain    TerrainSource
}

// NewReservations creates the reservation table for a cols x rows
// placement grid.
func NewReservations(cols, rows int, terrain TerrainSource) *Reservations {
	return &Reservations{
		cols:    cols,
		rows:    rows,
		byTeam:  make(map[string]map[Cell]reservation),
		terrain: terrain,
	}
}

func (r *Reservations) teamCells(team string) map[Cell]reservation {
	cells, ok := r.byTeam[team]
	if !ok {
		cells = make(map[Cell]reservation)
		r.byTeam[team] = cells
	}
	return cells
}

// IsValid reports whether every cell is inside the team's half of the
// arena, unoccupied, and on buildable+walkable terrain. The left team
// owns columns [0, cols/2), the right team the rest.
func (r *Reservations) IsValid(cells []Cell, team string) bool {
	half := r.cols / 2
	held := r.teamCells(team)
	for _, c := range cells {
		if c.X < 0 || c.X >= r.cols || c.Z < 0 || c.Z >= r.rows {
			return false
		}
		if team == "left" {
			if c.X >= half {
				return false
			}
		} else if c.X < half {
			return false
		}
		if _, taken := held[c]; taken {
			return false
		}
		tc := PlacementToTerrain(c)
		walkable, buildable, ok := r.terrain.TerrainAt(tc.X, tc.Z)
		if !ok || !walkable || !buildable {
			return false
		}
	}
	return true
}

// Reserve associates the cells with an entity and its placement.
func (r *Reservations) Reserve(cells []Cell, team string, entity int64, placementID int) {
	held := r.teamCells(team)
	for _, c := range cells {
		held[c] = reservation{entity: entity, placementID: placementID}
	}
}

// Release returns every cell held under the placement ID, for any team.
func (r *Reservations) Release(placementID int) {
	for _, held := range r.byTeam {
		for c, res := range held {
			if res.placementID == placementID {
				delete(held, c)
			}
		}
	}
}

// Holder returns the entity holding a cell for the team, or false.
func (r *Reservations) Holder(c Cell, team string) (int64, bool) {
	res, ok := r.teamCells(team)[c]
	if !ok {
		return 0, false
	}
	return res.entity, true
}

// HeldBy returns the cells reserved under one placement, sorted by (Z, X)
// for deterministic iteration.
func (r *Reservations) HeldBy(placementID int) []Cell {
	var out []Cell
	for _, held := range r.byTeam {
		for c, res := range held {
			if res.placementID == placementID {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		return out[i].X < out[j].X
	})
	return out
}
