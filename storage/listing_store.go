package storage

import "drive-deals-scraper/models"

// ListingStore owns every enriched listing ever accepted. It is the dedup
// authority: an id already present is skipped before classification and is
// never overwritten.
type ListingStore struct {
	recordFile
}

// LoadListingStore reads path. A missing file yields an empty store; a
// corrupt one yields ErrCorruptStore.
func LoadListingStore(path string) (*ListingStore, error) {
	rf, err := loadRecordFile(path)
	if err != nil {
		return nil, err
	}
	return &ListingStore{recordFile: rf}, nil
}

// Add stores l unless its id is already known.
func (s *ListingStore) Add(l models.EnrichedListing) bool {
	return s.add(l)
}

// Merge adds every listing of batch whose id is not yet stored and returns
// how many were added. Existing entries are never replaced.
func (s *ListingStore) Merge(batch []models.EnrichedListing) (added int) {
	for _, l := range batch {
		if s.add(l) {
			added++
		}
	}
	return added
}
