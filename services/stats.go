package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"drive-deals-scraper/models"
)

// Aggregate computes the run snapshot over the whole listing store. Listings
// without a price per TB count towards the total but not the averages; an
// empty partition averages to 0.
func Aggregate(listings []models.EnrichedListing, runID string, now time.Time) models.StatsSnapshot {
	var all, hdd, ssd mean
	for _, l := range listings {
		if l.PricePerTB == nil {
			continue
		}
		all.add(*l.PricePerTB)
		if l.IsSSD {
			ssd.add(*l.PricePerTB)
		} else {
			hdd.add(*l.PricePerTB)
		}
	}

	return models.StatsSnapshot{
		Date:          now.Format(dateLayout),
		RunID:         runID,
		AvgPricePerTB: round2(all.value()),
		AvgPriceHDD:   round2(hdd.value()),
		AvgPriceSSD:   round2(ssd.value()),
		TotalListings: len(listings),
	}
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// PrintRunSummary writes the end-of-run report.
func PrintRunSummary(w io.Writer, r *RunResult, t Thresholds) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  💾 DRIVE DEALS RUN %s\033[0m\n", r.RunID)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Listings\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Candidates with shipping : \033[1m%d\033[0m\n", r.Candidates)
	fmt.Fprintf(w, "  Already processed        : \033[1m%d\033[0m\n", r.AlreadyKnown)
	fmt.Fprintf(w, "  Classified               : \033[1m%d\033[0m (%d degraded)\n", r.Classified, r.Degraded)
	fmt.Fprintf(w, "  New drives stored        : \033[1;32m%d\033[0m\n", r.NewListings)
	fmt.Fprintf(w, "  Total in store           : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Deals\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total deals : \033[1m%d\033[0m (\033[1;31m%d new\033[0m)\n", r.TotalDeals, r.NewDeals)
	fmt.Fprintf(w, "  HDD (≤%g SEK/TB) : %d\n", t.HDD, r.DealsByVariant[models.VariantHDD])
	fmt.Fprintf(w, "  SSD (≤%g SEK/TB) : %d\n", t.SSD, r.DealsByVariant[models.VariantSSD])
	fmt.Fprintln(w)

	s := r.Snapshot
	fmt.Fprintf(w, "\033[1;33m  Average price per TB\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  All : \033[1;32m%.2f\033[0m SEK\n", s.AvgPricePerTB)
	fmt.Fprintf(w, "  HDD : \033[1;32m%.2f\033[0m SEK\n", s.AvgPriceHDD)
	fmt.Fprintf(w, "  SSD : \033[1;32m%.2f\033[0m SEK\n", s.AvgPriceSSD)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// PrintPruneSummary writes one block per pruned file.
func PrintPruneSummary(w io.Writer, reports []*PruneReport) {
	thin := strings.Repeat("─", 54)
	for _, rep := range reports {
		fmt.Fprintf(w, "\n\033[1;33m  %s\033[0m\n", rep.Path)
		fmt.Fprintf(w, "  %s\n", thin)
		if rep.Err != nil {
			fmt.Fprintf(w, "  \033[1;31mskipped: %v\033[0m\n", rep.Err)
			continue
		}
		fmt.Fprintf(w, "  Checked   : %d\n", rep.Checked)
		fmt.Fprintf(w, "  Removed   : \033[1;31m%d\033[0m\n", len(rep.Removed))
		fmt.Fprintf(w, "  Remaining : \033[1;32m%d\033[0m\n", rep.Kept)
		for _, it := range rep.Removed {
			fmt.Fprintf(w, "    - %-40s %s\n", truncate(it.Title, 38), it.Reason)
		}
	}
	fmt.Fprintln(w)
}
