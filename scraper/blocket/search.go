package blocket

import (
	"context"
	"strings"
	"time"

	"drive-deals-scraper/models"
	"drive-deals-scraper/utils"
)

const (
	shippingFlag  = "shipping_exists"
	shippingLabel = "fiks_ferdig"
)

// Searcher collects shippable, de-duplicated candidates across search terms.
type Searcher struct {
	source   Source
	category string
	pacer    *utils.Pacer
	logger   *utils.Logger
	metrics  *utils.RunMetrics
}

// NewSearcher wires a Searcher. Page fetches are spaced pageDelay apart.
// metrics may be nil.
func NewSearcher(source Source, category string, pageDelay time.Duration, logger *utils.Logger, metrics *utils.RunMetrics) *Searcher {
	return &Searcher{
		source:   source,
		category: category,
		pacer:    utils.NewPacer(pageDelay),
		logger:   logger,
		metrics:  metrics,
	}
}

// Collect searches every term, up to maxPages pages each, and returns the
// unique candidates that offer shipping, in first-seen order. A failing page
// ends that term only; what was already fetched is kept.
func (s *Searcher) Collect(ctx context.Context, terms []string, maxPages int) []models.RawCandidate {
	if maxPages < 1 {
		maxPages = 1
	}
	seen := utils.NewIDSet()
	var out []models.RawCandidate

	for _, term := range terms {
		if ctx.Err() != nil {
			break
		}
		s.logger.Info("[blocket] Searching for %q", term)
		docs := s.fetchTerm(ctx, term, maxPages)

		for _, c := range docs {
			if c.ID == "" {
				continue
			}
			if seen.Contains(c.ID) {
				continue
			}
			if !HasShipping(c) {
				s.logger.Debug("[blocket] Skipping %q (%s): no shipping", truncate(c.Heading, 50), c.CanonicalURL)
				s.skip("no_shipping")
				continue
			}
			seen.Add(c.ID)
			out = append(out, c)
		}
	}

	if s.metrics != nil {
		s.metrics.Candidates.Add(float64(len(out)))
	}
	s.logger.Info("[blocket] Found %d unique listings with shipping", len(out))
	return out
}

func (s *Searcher) fetchTerm(ctx context.Context, term string, maxPages int) []models.RawCandidate {
	first, err := s.fetchPage(ctx, term, 1)
	if err != nil {
		s.logger.Error("[blocket] %v", err)
		return nil
	}
	s.logger.Info("[blocket] %d results across %d pages, fetching up to %d",
		first.MatchCount, first.LastPage, maxPages)

	docs := first.Docs
	last := min(maxPages, first.LastPage)
	for page := 2; page <= last; page++ {
		p, err := s.fetchPage(ctx, term, page)
		if err != nil {
			s.logger.Error("[blocket] %v; keeping %d results from earlier pages", err, len(docs))
			break
		}
		docs = append(docs, p.Docs...)
	}
	return docs
}

func (s *Searcher) fetchPage(ctx context.Context, term string, page int) (SearchPage, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return SearchPage{}, err
	}
	s.logger.Debug("[blocket] Fetching %q page %d", term, page)
	return s.source.Search(ctx, term, s.category, page)
}

func (s *Searcher) skip(reason string) {
	if s.metrics != nil {
		s.metrics.Skipped.WithLabelValues(reason).Inc()
	}
}

// HasShipping reports whether the seller offers shipping, either through the
// shipping flag or a "fiks ferdig" label.
func HasShipping(c models.RawCandidate) bool {
	for _, f := range c.Flags {
		if f == shippingFlag {
			return true
		}
	}
	for _, l := range c.Labels {
		if strings.Contains(l, shippingLabel) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
