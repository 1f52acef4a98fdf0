package scan

import "sync"

// maxFingerprints bounds the processed set. Past the bound the oldest
// fingerprint is evicted first.
const maxFingerprints = 1000

// Data is the in-memory set of processed activity-event fingerprints.
// It carries across event scans what the engine has already ingested,
// is seeded from the store at startup and cleared when a full scan
// starts.
type Data struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewData creates the set pre-populated with seed fingerprints,
// typically the ones persisted by earlier runs
func NewData(seed []string) *Data {
	d := &Data{seen: make(map[string]struct{})}
	for _, fp := range seed {
		d.AddIfAbsent(fp)
	}
	return d
}

// Contains reports whether the fingerprint was already processed
func (d *Data) Contains(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[fp]
	return ok
}

// AddIfAbsent records a fingerprint and reports whether it was newly
// added. The oldest fingerprint is evicted once the bound is reached.
func (d *Data) AddIfAbsent(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[fp]; ok {
		return false
	}
	d.seen[fp] = struct{}{}
	d.order = append(d.order, fp)
	if len(d.order) > maxFingerprints {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return true
}

// Clear empties the set. A starting full scan calls this: the scan
// itself will re-mirror everything the dropped events pointed at.
func (d *Data) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
	d.order = nil
}

// Size returns the number of fingerprints held
func (d *Data) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
