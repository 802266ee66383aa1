package domain

// Snapshot is a point-in-time copy of every series' derived value, keyed by
// series name. A Snapshot is owned by its receiver and never aliases store state.
type Snapshot map[string]float64

// SeriesStore is the single source of truth for series state.
// Every method is an atomic unit with respect to every other method.
type SeriesStore interface {
	Register(name string, seed float64)
	Snapshot() Snapshot
	Advance(delta float64)
}

// SnapshotSource is the read side of SeriesStore.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Advancer is the write side used by tick loops.
type Advancer interface {
	Advance(delta float64)
}
