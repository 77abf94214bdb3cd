package models

import "time"

// Variant is the drive type a listing is tracked under.
type Variant string

const (
	VariantHDD Variant = "HDD"
	VariantSSD Variant = "SSD"
)

// VariantOf maps the classifier's solid-state flag to a Variant.
func VariantOf(isSSD bool) Variant {
	if isSSD {
		return VariantSSD
	}
	return VariantHDD
}

// Confidence is the classifier's self-reported certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RawCandidate holds a listing exactly as the marketplace search returned it.
// It lives for one run and is never written to disk.
type RawCandidate struct {
	ID           string
	Heading      string
	Body         string
	Price        float64
	Flags        []string
	Labels       []string
	Timestamp    int64 // ms since epoch, 0 if unknown
	Location     string
	CanonicalURL string
}

// PublishedAt returns the listing timestamp, or now when the marketplace
// did not report one.
func (c RawCandidate) PublishedAt(now time.Time) time.Time {
	if c.Timestamp > 0 {
		return time.UnixMilli(c.Timestamp)
	}
	return now
}

// ClassificationResult is the structured attribute record extracted from a
// candidate's free text. Nil pointers mean the classifier could not tell.
type ClassificationResult struct {
	IsRelevantItem bool
	CapacityTB     *float64
	PriceSEK       *float64
	IsVariantB     bool // solid-state
	Confidence     Confidence
}

// EnrichedListing is the persisted record of a classified drive listing.
// Field order is the on-disk order.
type EnrichedListing struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	PriceSEK   float64    `json:"price_sek"`
	CapacityTB float64    `json:"capacity_tb"`
	PricePerTB *float64   `json:"price_per_tb"`
	IsSSD      bool       `json:"is_ssd"`
	DriveType  Variant    `json:"drive_type"`
	URL        string     `json:"url"`
	Location   string     `json:"location"`
	Date       string     `json:"date"`
	Confidence Confidence `json:"confidence"`
}

// Deal is a listing that passed the deal threshold when it was first seen.
type Deal = EnrichedListing

// StatsSnapshot is one run's aggregate over the listing store.
type StatsSnapshot struct {
	Date          string  `json:"date"`
	RunID         string  `json:"run_id,omitempty"`
	AvgPricePerTB float64 `json:"avg_price_per_tb"`
	AvgPriceHDD   float64 `json:"avg_price_hdd"`
	AvgPriceSSD   float64 `json:"avg_price_ssd"`
	TotalListings int     `json:"total_listings"`
}

// StatsHistory is the rolling, oldest-first sequence of snapshots.
type StatsHistory struct {
	History []StatsSnapshot `json:"history"`
}

// Append adds s and evicts the oldest entries beyond limit.
func (h *StatsHistory) Append(s StatsSnapshot, limit int) {
	h.History = append(h.History, s)
	if limit > 0 && len(h.History) > limit {
		h.History = append([]StatsSnapshot(nil), h.History[len(h.History)-limit:]...)
	}
}

// Outcome tags how a Classification was produced.
type Outcome string

const (
	OutcomeClassified Outcome = "classified"
	OutcomeDegraded   Outcome = "degraded"
)

// Classification is a ClassificationResult tagged with how trustworthy it
// is. A degraded classification always carries DegradedResult and the
// reason the real one could not be obtained.
type Classification struct {
	Outcome Outcome
	Result  ClassificationResult
	Reason  error
}

// DegradedResult is the conservative answer used when classification
// fails: not a drive, low confidence.
func DegradedResult() ClassificationResult {
	return ClassificationResult{IsRelevantItem: false, Confidence: ConfidenceLow}
}
