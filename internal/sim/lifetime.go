package sim

// LifetimeOptions tunes a lifetime component.
type LifetimeOptions struct {
	FadeOut bool
}

// AddLifetime attaches a lifetime so the entity auto-destroys once
// now >= start+duration. A duration of zero destroys the entity on the
// next tick. Returns the entity for chaining at spawn sites.
func (e *Engine) AddLifetime(id EntityID, durationSeconds float64, opts LifetimeOptions) EntityID {
	if !e.store.Exists(id) {
		return id
	}
	e.store.AddComponent(id, CompLifetime, &Lifetime{
		StartTime: e.now,
		Duration:  durationSeconds,
		FadeOut:   opts.FadeOut,
	})
	return id
}

// ExtendLifetime pushes the expiry out by extraSeconds.
func (e *Engine) ExtendLifetime(id EntityID, extraSeconds float64) {
	lt, ok := e.store.GetComponent(id, CompLifetime).(*Lifetime)
	if !ok {
		return
	}
	lt.Duration += extraSeconds
}

// ReduceLifetime pulls the expiry in, clamped so the remaining duration
// never goes negative.
func (e *Engine) ReduceLifetime(id EntityID, seconds float64) {
	lt, ok := e.store.GetComponent(id, CompLifetime).(*Lifetime)
	if !ok {
		return
	}
	lt.Duration -= seconds
	if lt.Duration < 0 {
		lt.Duration = 0
	}
}

// MakeEntityPermanent removes the lifetime component entirely.
func (e *Engine) MakeEntityPermanent(id EntityID) {
	e.store.RemoveComponent(id, CompLifetime)
}

// OnDestroy registers a callback that runs just before the entity is
// destroyed, whether by lifetime expiry or explicit destruction.
func (e *Engine) OnDestroy(id EntityID, fn func()) {
	e.destroyCallbacks[id] = append(e.destroyCallbacks[id], fn)
}

// expireLifetimes destroys every entity whose lifetime has elapsed.
// Runs as its own pass after combat, ascending-ID like every pass.
func (e *Engine) expireLifetimes() {
	ids := e.store.EntitiesWith(CompLifetime)
	expired := make([]EntityID, 0, len(ids))
	for _, id := range ids {
		lt := e.store.GetComponent(id, CompLifetime).(*Lifetime)
		if e.now >= lt.StartTime+lt.Duration {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		e.DestroyEntity(id)
	}
}
