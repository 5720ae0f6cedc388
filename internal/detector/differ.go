package detector

import "sync"

// Differ holds the last observed Snapshot.
type Differ struct {
	mu       sync.Mutex
	snapshot []Reference
	seeded   bool
}

func NewDiffer() *Differ {
	return &Differ{}
}

// NeedsUpdate stores refs as the new Snapshot and reports whether they differ
// from the previous one by length or at any position. The first observation
// only seeds and reports false.
func (d *Differ) NeedsUpdate(refs []Reference) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, seeded := d.snapshot, d.seeded
	d.snapshot = append([]Reference(nil), refs...)
	d.seeded = true

	if !seeded {
		return false
	}
	if len(prev) != len(refs) {
		return true
	}
	for i := range prev {
		if prev[i] != refs[i] {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the held references and whether a check has seeded them.
func (d *Differ) Snapshot() ([]Reference, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Reference(nil), d.snapshot...), d.seeded
}

// Reset discards the Snapshot so the next check seeds again.
func (d *Differ) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = nil
	d.seeded = false
}
