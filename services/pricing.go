package services

import (
	"math"

	"drive-deals-scraper/models"
)

// PricePerTB returns price/capacity rounded to two decimals, or nil when
// capacity is not positive.
func PricePerTB(price, capacity float64) *float64 {
	if capacity <= 0 {
		return nil
	}
	v := round2(price / capacity)
	return &v
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Thresholds is the deal rule table. Prices are SEK per TB.
type Thresholds struct {
	HDD           float64
	SSD           float64
	MinCapacityTB float64
}

// Evaluator applies Thresholds to enriched listings.
type Evaluator struct {
	t Thresholds
}

func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{t: t}
}

// Admit reports whether a drive of this capacity is tracked at all.
func (e *Evaluator) Admit(capacityTB float64) bool {
	return capacityTB >= e.t.MinCapacityTB
}

// Threshold returns the price-per-TB ceiling for a variant.
func (e *Evaluator) Threshold(v models.Variant) float64 {
	if v == models.VariantSSD {
		return e.t.SSD
	}
	return e.t.HDD
}

// IsDeal is true when the listing's price per TB is at or under its
// variant's threshold.
func (e *Evaluator) IsDeal(l models.EnrichedListing) bool {
	if l.PricePerTB == nil {
		return false
	}
	return *l.PricePerTB <= e.Threshold(l.DriveType)
}
