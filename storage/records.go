package storage

import (
	"drive-deals-scraper/models"
)

// recordFile is an id-keyed, insertion-ordered set of listings backed by a
// JSON array file. It is the shared core of ListingStore and DealStore.
type recordFile struct {
	path   string
	exists bool
	items  []models.EnrichedListing
	ids    map[string]struct{}
	dups   int
}

func loadRecordFile(path string) (recordFile, error) {
	rf := recordFile{path: path, ids: make(map[string]struct{})}

	var items []models.EnrichedListing
	found, err := readJSONFile(path, &items)
	if err != nil {
		return rf, err
	}
	rf.exists = found

	// a hand-edited file may repeat an id; the first occurrence wins
	for _, it := range items {
		if !rf.add(it) {
			rf.dups++
		}
	}
	return rf, nil
}

func (r *recordFile) add(l models.EnrichedListing) bool {
	if _, dup := r.ids[l.ID]; dup {
		return false
	}
	r.ids[l.ID] = struct{}{}
	r.items = append(r.items, l)
	return true
}

// Path returns the backing file path.
func (r *recordFile) Path() string { return r.path }

// Exists reports whether the backing file was present at load time.
func (r *recordFile) Exists() bool { return r.exists }

// Contains reports whether id is stored.
func (r *recordFile) Contains(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// Duplicates returns how many repeated ids were dropped at load time.
func (r *recordFile) Duplicates() int { return r.dups }

// Len returns the number of stored records.
func (r *recordFile) Len() int { return len(r.items) }

// Items returns a copy of the records in insertion order.
func (r *recordFile) Items() []models.EnrichedListing {
	out := make([]models.EnrichedListing, len(r.items))
	copy(out, r.items)
	return out
}

// Replace swaps the whole record set, keeping the first of any repeated id.
// Only the liveness pass rewrites a store this way.
func (r *recordFile) Replace(items []models.EnrichedListing) {
	r.items = nil
	r.ids = make(map[string]struct{}, len(items))
	for _, it := range items {
		r.add(it)
	}
}

// Save atomically rewrites the backing file.
func (r *recordFile) Save() error {
	items := r.items
	if items == nil {
		items = []models.EnrichedListing{}
	}
	if err := writeJSONFileAtomic(r.path, items); err != nil {
		return err
	}
	r.exists = true
	r.dups = 0
	return nil
}
