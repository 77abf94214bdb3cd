package storage

import "drive-deals-scraper/models"

// DealStore accumulates listings that were flagged as deals. Deals are
// append-only; only the liveness pass removes them.
type DealStore struct {
	recordFile
}

// LoadDealStore reads path with the same missing/corrupt semantics as
// LoadListingStore.
func LoadDealStore(path string) (*DealStore, error) {
	rf, err := loadRecordFile(path)
	if err != nil {
		return nil, err
	}
	return &DealStore{recordFile: rf}, nil
}

// Record appends d and returns true, or returns false if its id is
// already recorded.
func (s *DealStore) Record(d models.Deal) (inserted bool) {
	return s.add(d)
}

// CountByVariant returns the number of deals per drive type.
func (s *DealStore) CountByVariant() map[models.Variant]int {
	out := make(map[models.Variant]int, 2)
	for _, d := range s.items {
		out[models.VariantOf(d.IsSSD)]++
	}
	return out
}
