package sim

import (
	"sort"

	"github.com/rs/zerolog"
)

// ActionID identifies a scheduled action for cancellation.
type ActionID int64

// scheduledAction is a deferred callback keyed by simulation time.
type scheduledAction struct {
	id          ActionID
	executeTime float64
	seq         uint64
	owner       EntityID
	fn          func()
	cancelled   bool
}

// ActionScheduler fires callbacks at future simulated times. Callbacks
// run at tick boundaries only, never inline during another component's
// work, and always read simulation time rather than wall clock.
//
// Ordering: due actions fire in ascending executeTime; ties break by
// insertion order. One failing callback never prevents the rest of the
// tick's actions from firing.
type ActionScheduler struct {
	pending []*scheduledAction
	nextID  ActionID
	seq     uint64
	log     zerolog.Logger
}

// NewActionScheduler creates an empty scheduler.
func NewActionScheduler(log zerolog.Logger) *ActionScheduler {
	return &ActionScheduler{log: log}
}

// Schedule registers fn to fire once now+delay is reached. owner may be
// NoEntity for actions not tied to an entity's lifetime.
func (s *ActionScheduler) Schedule(fn func(), delaySeconds float64, now float64, owner EntityID) ActionID {
	s.nextID++
	s.seq++
	s.pending = append(s.pending, &scheduledAction{
		id:          s.nextID,
		executeTime: now + delaySeconds,
		seq:         s.seq,
		owner:       owner,
		fn:          fn,
	})
	return s.nextID
}

// Cancel removes a pending action. Returns false when the action already
// fired, was already cancelled, or never existed.
func (s *ActionScheduler) Cancel(id ActionID) bool {
	for _, a := range s.pending {
		if a.id == id && !a.cancelled {
			a.cancelled = true
			return true
		}
	}
	return false
}

// EntityDestroyed cancels every pending action owned by the entity.
func (s *ActionScheduler) EntityDestroyed(id EntityID) {
	for _, a := range s.pending {
		if a.owner == id {
			a.cancelled = true
		}
	}
}

// PendingCount returns the number of live pending actions.
func (s *ActionScheduler) PendingCount() int {
	n := 0
	for _, a := range s.pending {
		if !a.cancelled {
			n++
		}
	}
	return n
}

// RunDue fires every action with executeTime <= now. A callback may
// schedule further actions; those only fire on a later tick even when
// immediately due, which keeps the per-tick pass bounded.
func (s *ActionScheduler) RunDue(now float64) {
	if len(s.pending) == 0 {
		return
	}

	due := make([]*scheduledAction, 0, 8)
	remaining := s.pending[:0]
	for _, a := range s.pending {
		if a.cancelled {
			continue
		}
		if a.executeTime <= now {
			due = append(due, a)
		} else {
			remaining = append(remaining, a)
		}
	}
	s.pending = remaining

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].executeTime != due[j].executeTime {
			return due[i].executeTime < due[j].executeTime
		}
		return due[i].seq < due[j].seq
	})

	for _, a := range due {
		s.run(a)
	}
}

// run isolates one callback; a panic is recorded and the tick continues.
func (s *ActionScheduler) run(a *scheduledAction) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Int64("action", int64(a.id)).
				Int64("owner", int64(a.owner)).
				Interface("panic", r).
				Msg("scheduled action panicked, skipping")
		}
	}()
	a.fn()
}

// Reset drops all pending actions, used at phase transitions.
func (s *ActionScheduler) Reset() {
	s.pending = nil
}
