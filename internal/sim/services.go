package sim

// Renderer is the visual side-effect sink. Every call is fire-and-forget:
// no return value is ever read back into the simulation, so a suppressed
// renderer cannot change state or break lockstep.
type Renderer interface {
	CreateParticleEffect(x, y, z float64, effectType string, opts map[string]any)
	CreateLayeredEffect(spec map[string]any)
	PlayEffect(name string, pos Vec3)
	PlayScreenShake(intensity, duration float64)
	PlayScreenFlash(color string, duration float64)
}

// NopRenderer discards every effect. The server runs with it; clients
// plug in a real renderer.
type NopRenderer struct{}

func (NopRenderer) CreateParticleEffect(x, y, z float64, effectType string, opts map[string]any) {}
func (NopRenderer) CreateLayeredEffect(spec map[string]any)                                     {}
func (NopRenderer) PlayEffect(name string, pos Vec3)                                            {}
func (NopRenderer) PlayScreenShake(intensity, duration float64)                                 {}
func (NopRenderer) PlayScreenFlash(color string, duration float64)                              {}

// Terrain is the surface the movement pass and placement validation read.
// The Level type implements it; embedders may substitute their own.
type Terrain interface {
	HeightAt(x, z float64) (float64, bool)
	TerrainTypeAtGrid(tx, tz int) (int, bool)
	TileType(id int) (TerrainType, bool)
	IsGridPositionWalkable(cell GridPos) bool
	WorldToPlacementGrid(x, z float64) GridPos
	PlacementGridToWorld(cell GridPos) (x, z float64)
}
