package sim

import (
	"math"

	"battleforge/internal/sim/spatial"
)

// TerrainType describes one tile-map entry.
type TerrainType struct {
	Name      string `json:"name"`
	Walkable  bool   `json:"walkable"`
	Buildable bool   `json:"buildable"`
}

// Level is the static battlefield description: the terrain tile map, the
// placement grid dimensions over it, and the squad starting locations.
//
// Two grids coexist. The coarse placement grid validates deployment; the
// finer terrain grid drives pathfinding. One placement cell spans half a
// terrain cell per axis, so placement -> terrain is floor(cell/2).
type Level struct {
	Name              string        `json:"name"`
	TileMap           [][]int       `json:"tileMap"`
	TerrainTypes      []TerrainType `json:"terrainTypes"`
	StartingLocations []GridPos     `json:"startingLocations"`

	PlacementCols     int     `json:"placementCols"`
	PlacementRows     int     `json:"placementRows"`
	PlacementCellSize float64 `json:"placementCellSize"`
	BaseHeight        float64 `json:"baseHeight"`
}

// DefaultLevel returns a flat 16x16 arena with uniform walkable, buildable
// grass, used by tests and as the fallback when no level is configured.
func DefaultLevel() *Level {
	const cols, rows = 16, 16
	tiles := make([][]int, rows/2)
	for z := range tiles {
		tiles[z] = make([]int, cols/2)
	}
	return &Level{
		Name:    "flatland",
		TileMap: tiles,
		TerrainTypes: []TerrainType{
			{Name: "grass", Walkable: true, Buildable: true},
			{Name: "water", Walkable: false, Buildable: false},
			{Name: "rock", Walkable: true, Buildable: false},
		},
		StartingLocations: []GridPos{{X: 2, Z: 8}, {X: 13, Z: 8}},
		PlacementCols:     cols,
		PlacementRows:     rows,
		PlacementCellSize: 25,
		BaseHeight:        0,
	}
}

// TerrainCols returns the terrain grid width.
func (l *Level) TerrainCols() int {
	if len(l.TileMap) == 0 {
		return 0
	}
	return len(l.TileMap[0])
}

// TerrainRows returns the terrain grid height.
func (l *Level) TerrainRows() int {
	return len(l.TileMap)
}

// TerrainCellSize is twice the placement cell size.
func (l *Level) TerrainCellSize() float64 {
	return l.PlacementCellSize * 2
}

// HalfWidth returns the arena half-extent on the X axis.
func (l *Level) HalfWidth() float64 {
	return float64(l.PlacementCols) * l.PlacementCellSize / 2
}

// HalfHeight returns the arena half-extent on the Z axis.
func (l *Level) HalfHeight() float64 {
	return float64(l.PlacementRows) * l.PlacementCellSize / 2
}

// TerrainTypeAtGrid returns the terrain type id at a terrain cell.
func (l *Level) TerrainTypeAtGrid(tx, tz int) (int, bool) {
	if tz < 0 || tz >= len(l.TileMap) {
		return 0, false
	}
	if tx < 0 || tx >= len(l.TileMap[tz]) {
		return 0, false
	}
	return l.TileMap[tz][tx], true
}

// TileType resolves a terrain type id to its attributes.
func (l *Level) TileType(id int) (TerrainType, bool) {
	if id < 0 || id >= len(l.TerrainTypes) {
		return TerrainType{}, false
	}
	return l.TerrainTypes[id], true
}

// TerrainAt implements spatial.TerrainSource over terrain cells.
func (l *Level) TerrainAt(tx, tz int) (walkable, buildable, ok bool) {
	id, ok := l.TerrainTypeAtGrid(tx, tz)
	if !ok {
		return false, false, false
	}
	tt, ok := l.TileType(id)
	if !ok {
		return false, false, false
	}
	return tt.Walkable, tt.Buildable, true
}

// HeightAt returns the terrain height at a world position. Flat levels
// answer BaseHeight everywhere inside the arena.
func (l *Level) HeightAt(x, z float64) (float64, bool) {
	if math.Abs(x) > l.HalfWidth() || math.Abs(z) > l.HalfHeight() {
		return 0, false
	}
	return l.BaseHeight, true
}

// IsGridPositionWalkable reports whether a placement cell sits on walkable
// terrain.
func (l *Level) IsGridPositionWalkable(cell GridPos) bool {
	tc := spatial.PlacementToTerrain(spatial.Cell{X: cell.X, Z: cell.Z})
	walkable, _, ok := l.TerrainAt(tc.X, tc.Z)
	return ok && walkable
}

// WorldToPlacementGrid converts world coordinates to a placement cell.
func (l *Level) WorldToPlacementGrid(x, z float64) GridPos {
	return GridPos{
		X: int(math.Floor((x + l.HalfWidth()) / l.PlacementCellSize)),
		Z: int(math.Floor((z + l.HalfHeight()) / l.PlacementCellSize)),
	}
}

// PlacementGridToWorld converts a placement cell to the world position of
// its center.
func (l *Level) PlacementGridToWorld(cell GridPos) (x, z float64) {
	x = -l.HalfWidth() + (float64(cell.X)+0.5)*l.PlacementCellSize
	z = -l.HalfHeight() + (float64(cell.Z)+0.5)*l.PlacementCellSize
	return x, z
}

// NavGrid builds the walkable bitmap for pathfinding from the tile map.
func (l *Level) NavGrid() *spatial.NavGrid {
	return spatial.NewNavGrid(
		l.TerrainCols(), l.TerrainRows(),
		l.TerrainCellSize(),
		-l.HalfWidth(), -l.HalfHeight(),
		l,
	)
}
