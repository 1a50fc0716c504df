package sim

import (
	"github.com/cespare/xxhash/v2"
)

// RNG is the single deterministic random source for a battle.
// Both peers seed it identically (combine(hash(roomId), round)) and every
// draw inside the simulation routes through it, so replays and lockstep
// clients agree without exchanging random values.
//
// The generator is splitmix64: tiny state, full 64-bit period per stream,
// and trivially splittable for subsystems that need an independent stream.
type RNG struct {
	state uint64
}

// NewRNG creates a generator from a 64-bit seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{state: seed}
}

// BattleSeed derives the per-battle seed from a room identifier and the
// round number. The room hash anchors the stream to the match; the round
// index keeps successive battles in the same room decorrelated.
func BattleSeed(roomID string, round int) uint64 {
	return Combine(xxhash.Sum64String(roomID), uint64(round))
}

// Combine mixes two 64-bit values into one seed.
func Combine(a, b uint64) uint64 {
	x := a ^ (b + 0x9e3779b97f4a7c15 + (a << 6) + (a >> 2))
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	return x
}

// Uint64 advances the stream and returns the next raw value.
func (r *RNG) Uint64() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Intn returns a value in [0, n). n must be > 0.
func (r *RNG) Intn(n int) int {
	if n <= 0 {
		panic("sim: Intn with non-positive n")
	}
	return int(r.Uint64() % uint64(n))
}

// Range returns a value in [min, max).
func (r *RNG) Range(min, max float64) float64 {
	return min + r.Float64()*(max-min)
}

// Split forks an independent stream. The parent advances once so sibling
// splits never collide.
func (r *RNG) Split() *RNG {
	return &RNG{state: Combine(r.Uint64(), 0x5851f42d4c957f2d)}
}

// Seed returns the current internal state for snapshotting.
func (r *RNG) Seed() uint64 {
	return r.state
}

// Reseed overwrites the internal state, used when restoring a snapshot.
func (r *RNG) Reseed(state uint64) {
	r.state = state
}
