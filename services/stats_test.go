package services

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drive-deals-scraper/models"
)

func sampleListings() []models.EnrichedListing {
	return []models.EnrichedListing{
		{ID: "1", PricePerTB: fptr(100), DriveType: models.VariantHDD},
		{ID: "2", PricePerTB: fptr(150), DriveType: models.VariantHDD},
		{ID: "3", PricePerTB: fptr(500), IsSSD: true, DriveType: models.VariantSSD},
		{ID: "4", PricePerTB: nil, DriveType: models.VariantHDD},
		{ID: "5", PricePerTB: fptr(133.33), DriveType: models.VariantHDD},
	}
}

func TestAggregate(t *testing.T) {
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.Local)
	s := Aggregate(sampleListings(), "run-1", now)

	assert.Equal(t, "2026-10-19T06:00:00", s.Date)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 5, s.TotalListings, "listings without a metric still count")
	assert.Equal(t, 220.83, s.AvgPricePerTB) // (100+150+500+133.33)/4
	assert.Equal(t, 127.78, s.AvgPriceHDD)   // (100+150+133.33)/3
	assert.Equal(t, 500.0, s.AvgPriceSSD)
}

func TestAggregateEmptyPartitionsAreZero(t *testing.T) {
	s := Aggregate(nil, "", time.Now())
	assert.Equal(t, models.StatsSnapshot{Date: s.Date}, s)

	hddOnly := Aggregate([]models.EnrichedListing{{PricePerTB: fptr(120)}}, "", time.Now())
	assert.Equal(t, 0.0, hddOnly.AvgPriceSSD)
	assert.Equal(t, 120.0, hddOnly.AvgPriceHDD)
}

func TestStatsHistoryBoundedAt30(t *testing.T) {
	var h models.StatsHistory
	for i := 0; i < 35; i++ {
		h.Append(models.StatsSnapshot{Date: fmt.Sprintf("d%02d", i), TotalListings: i}, 30)
	}

	require.Len(t, h.History, 30)
	assert.Equal(t, 5, h.History[0].TotalListings, "oldest five evicted")
	assert.Equal(t, 34, h.History[29].TotalListings)
}

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintRunSummary(&buf, &RunResult{
		RunID:          "abc",
		NewListings:    3,
		TotalDeals:     4,
		NewDeals:       1,
		DealsByVariant: map[models.Variant]int{models.VariantHDD: 3, models.VariantSSD: 1},
		Snapshot:       models.StatsSnapshot{AvgPricePerTB: 210.5},
	}, Thresholds{HDD: 150, SSD: 600})

	out := buf.String()
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "HDD (≤150 SEK/TB) : 3")
	assert.Contains(t, out, "SSD (≤600 SEK/TB) : 1")
	assert.Contains(t, out, "210.50")
}

func TestPrintPruneSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintPruneSummary(&buf, []*PruneReport{
		{Path: "data/listings.json", Checked: 3, Kept: 1, Removed: []RemovedItem{{ID: "B", Title: "Disk B", Reason: "http 404"}}},
		{Path: "data/deals.json", Err: fmt.Errorf("corrupt")},
	})

	out := buf.String()
	assert.Contains(t, out, "data/listings.json")
	assert.Contains(t, out, "http 404")
	assert.Contains(t, out, "skipped: corrupt")
}
