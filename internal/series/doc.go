// Package series implements the in-memory series store.
//
// Only raw values are stored. Derived values (sin of raw) are computed while the
// store lock is held during Snapshot, so raw and derived can never disagree and a
// name present in one view is always present in the other.
package series
