package services

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"drive-deals-scraper/models"
	"drive-deals-scraper/scraper/blocket"
	"drive-deals-scraper/utils"
)

// dateLayout matches the timestamps already present in existing data files.
const dateLayout = "2006-01-02T15:04:05"

// SkipReason explains why a classified candidate did not become a listing.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipNotRelevant     SkipReason = "not_a_drive"
	SkipMissingCapacity SkipReason = "missing_capacity"
	SkipMissingPrice    SkipReason = "missing_price"
	SkipTooSmall        SkipReason = "too_small"
)

// Cleaner turns a candidate and its classification into a validated
// EnrichedListing.
type Cleaner struct {
	eval   *Evaluator
	logger *utils.Logger
	now    func() time.Time
}

// NewCleaner creates a Cleaner that applies eval's capacity floor.
func NewCleaner(eval *Evaluator, logger *utils.Logger) *Cleaner {
	return &Cleaner{eval: eval, logger: logger, now: time.Now}
}

// Build returns the listing for c, or the reason it is not tracked.
// The classifier's price wins; the asking price is the fallback when the
// classifier could not read one.
func (c *Cleaner) Build(cand models.RawCandidate, r models.ClassificationResult) (models.EnrichedListing, SkipReason) {
	if !r.IsRelevantItem {
		return models.EnrichedListing{}, SkipNotRelevant
	}
	if r.CapacityTB == nil || *r.CapacityTB <= 0 {
		return models.EnrichedListing{}, SkipMissingCapacity
	}

	price := 0.0
	switch {
	case r.PriceSEK != nil && *r.PriceSEK > 0:
		price = *r.PriceSEK
	case cand.Price > 0:
		c.logger.Debug("[cleaner] %s: no price from classifier, using asking price %.0f", cand.ID, cand.Price)
		price = cand.Price
	default:
		return models.EnrichedListing{}, SkipMissingPrice
	}

	capacity := *r.CapacityTB
	if !c.eval.Admit(capacity) {
		return models.EnrichedListing{}, SkipTooSmall
	}

	conf := r.Confidence
	if conf == "" {
		conf = models.ConfidenceLow
	}

	return models.EnrichedListing{
		ID:         cand.ID,
		Title:      normaliseText(cand.Heading),
		PriceSEK:   price,
		CapacityTB: capacity,
		PricePerTB: PricePerTB(price, capacity),
		IsSSD:      r.IsVariantB,
		DriveType:  models.VariantOf(r.IsVariantB),
		URL:        blocket.ItemURL(cand.ID),
		Location:   normaliseText(cand.Location),
		Date:       cand.PublishedAt(c.now()).Format(dateLayout),
		Confidence: conf,
	}, SkipNone
}

// Describe renders a one-line summary such as "4TB HDD @ 150.00 SEK/TB".
func Describe(l models.EnrichedListing) string {
	ppt := "n/a"
	if l.PricePerTB != nil {
		ppt = fmt.Sprintf("%.2f", *l.PricePerTB)
	}
	return fmt.Sprintf("%gTB %s @ %s SEK/TB", l.CapacityTB, l.DriveType, ppt)
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
