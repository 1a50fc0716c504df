package sim

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// desyncHistorySize bounds how many tick hashes are kept for peer
// comparison.
const desyncHistorySize = 256

// TickHash is one entry of the divergence record.
type TickHash struct {
	Tick int64  `json:"tick"`
	Hash uint64 `json:"hash"`
}

// DesyncReport describes the first detected divergence.
type DesyncReport struct {
	Tick         int64    `json:"tick"`
	LocalHash    uint64   `json:"localHash"`
	RemoteHash   uint64   `json:"remoteHash"`
	Entity       EntityID `json:"entity"`
	EntityKnown  bool     `json:"entityKnown"`
}

// DesyncDetector hashes the public simulation state each battle tick.
// Peers exchange hashes periodically; the first mismatching tick is the
// divergence point, and per-entity hashes narrow it to the entity.
type DesyncDetector struct {
	engine  *Engine
	enabled bool
	history []TickHash

	mismatches int
}

// NewDesyncDetector creates a detector bound to the engine.
func NewDesyncDetector(e *Engine) *DesyncDetector {
	return &DesyncDetector{engine: e}
}

// SetEnabled gates per-tick hashing; on outside of battles it is wasted
// work.
func (d *DesyncDetector) SetEnabled(v bool) {
	d.enabled = v
	if !v {
		d.history = nil
	}
}

// Enabled reports the gate.
func (d *DesyncDetector) Enabled() bool { return d.enabled }

// Mismatches returns the count of divergences seen this session.
func (d *DesyncDetector) Mismatches() int { return d.mismatches }

// RecordTick hashes the current state and appends to the ring.
func (d *DesyncDetector) RecordTick() {
	if !d.enabled {
		return
	}
	d.history = append(d.history, TickHash{Tick: d.engine.TickCount(), Hash: d.HashState()})
	if len(d.history) > desyncHistorySize {
		d.history = d.history[len(d.history)-desyncHistorySize:]
	}
}

// History returns the recorded tick hashes, oldest first.
func (d *DesyncDetector) History() []TickHash {
	return d.history
}

// HashState computes the canonical hash: a deterministic traversal of
// every entity's public components with all floats rounded to 6 decimals
// before entering the digest.
func (d *DesyncDetector) HashState() uint64 {
	h := xxhash.New()
	for _, id := range d.engine.store.LiveEntities() {
		d.writeEntity(h, id)
	}
	return h.Sum64()
}

// HashEntity hashes a single entity, used to attribute a divergence.
func (d *DesyncDetector) HashEntity(id EntityID) uint64 {
	h := xxhash.New()
	d.writeEntity(h, id)
	return h.Sum64()
}

func (d *DesyncDetector) writeEntity(h *xxhash.Digest, id EntityID) {
	s := d.engine.store
	writeInt(h, int64(id))

	if t, ok := s.GetComponent(id, CompTransform).(*Transform); ok {
		writeFloat(h, t.Position.X)
		writeFloat(h, t.Position.Y)
		writeFloat(h, t.Position.Z)
		writeFloat(h, t.RotationY)
	}
	if v, ok := s.GetComponent(id, CompVelocity).(*Velocity); ok {
		writeFloat(h, v.VX)
		writeFloat(h, v.VY)
		writeFloat(h, v.VZ)
	}
	if hp, ok := s.GetComponent(id, CompHealth).(*Health); ok {
		writeFloat(h, hp.Current)
		writeFloat(h, hp.Max)
	}
	if ai, ok := s.GetComponent(id, CompAIState).(*AIState); ok {
		writeInt(h, int64(ai.CurrentActionCollection))
		writeInt(h, int64(ai.CurrentAction))
	}
	if team, ok := s.GetComponent(id, CompTeam).(*Team); ok {
		h.WriteString(string(team.ID))
	}
	if ds, ok := s.GetComponent(id, CompDeathState).(*DeathState); ok {
		writeInt(h, int64(ds.State))
	}
	if ps, ok := s.GetComponent(id, CompPlayerStats).(*PlayerStats); ok {
		writeInt(h, int64(ps.Gold))
	}
}

func writeFloat(h *xxhash.Digest, v float64) {
	h.WriteString(strconv.FormatFloat(Round6(v), 'f', 6, 64))
	h.WriteString("|")
}

func writeInt(h *xxhash.Digest, v int64) {
	h.WriteString(strconv.FormatInt(v, 10))
	h.WriteString("|")
}

// Compare checks a peer's hash for a tick against local history. A
// mismatch produces a report naming the tick and both hashes; Entity and
// EntityKnown are left unset here, since attribution needs the peer's
// per-entity hashes (see AttributeDivergence).
func (d *DesyncDetector) Compare(tick int64, remoteHash uint64) *DesyncReport {
	for _, entry := range d.history {
		if entry.Tick != tick {
			continue
		}
		if entry.Hash == remoteHash {
			return nil
		}
		d.mismatches++
		report := &DesyncReport{
			Tick:       tick,
			LocalHash:  entry.Hash,
			RemoteHash: remoteHash,
		}
		d.engine.log.Error().
			Int64("tick", tick).
			Str("local", fmt.Sprintf("%016x", entry.Hash)).
			Str("remote", fmt.Sprintf("%016x", remoteHash)).
			Msg("desync detected")
		return report
	}
	return nil
}

// AttributeDivergence compares per-entity hashes from the peer against
// local state and returns the lowest-ID diverging entity. Run at the
// mismatched tick, before either peer advances.
func (d *DesyncDetector) AttributeDivergence(remote map[EntityID]uint64) (EntityID, bool) {
	for _, id := range d.engine.store.LiveEntities() {
		if h, ok := remote[id]; !ok || h != d.HashEntity(id) {
			return id, true
		}
	}
	return NoEntity, false
}

// EntityHashes dumps per-entity hashes for divergence attribution.
func (d *DesyncDetector) EntityHashes() map[EntityID]uint64 {
	out := make(map[EntityID]uint64)
	for _, id := range d.engine.store.LiveEntities() {
		out[id] = d.HashEntity(id)
	}
	return out
}
