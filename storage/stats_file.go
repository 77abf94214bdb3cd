package storage

import "drive-deals-scraper/models"

// LoadStatsHistory reads the rolling stats file. A missing file yields an
// empty history.
func LoadStatsHistory(path string) (models.StatsHistory, error) {
	var h models.StatsHistory
	if _, err := readJSONFile(path, &h); err != nil {
		return models.StatsHistory{}, err
	}
	if h.History == nil {
		h.History = []models.StatsSnapshot{}
	}
	return h, nil
}

// SaveStatsHistory atomically rewrites the stats file.
func SaveStatsHistory(path string, h models.StatsHistory) error {
	if h.History == nil {
		h.History = []models.StatsSnapshot{}
	}
	return writeJSONFileAtomic(path, h)
}
