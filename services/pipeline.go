package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"drive-deals-scraper/models"
	"drive-deals-scraper/storage"
	"drive-deals-scraper/utils"
)

// CandidateSource yields this run's unique, shippable candidates.
type CandidateSource interface {
	Collect(ctx context.Context, terms []string, maxPages int) []models.RawCandidate
}

// ListingClassifier extracts drive attributes from a candidate.
type ListingClassifier interface {
	Classify(ctx context.Context, c models.RawCandidate) models.Classification
}

// PipelineConfig carries the paths and knobs of a scrape run.
type PipelineConfig struct {
	Terms            []string
	MaxPages         int
	ListingsPath     string
	DealsPath        string
	StatsPath        string
	StatsHistorySize int
	DealsCSVPath     string
	MetricsTextfile  string
}

// RunResult is what one scrape run did.
type RunResult struct {
	RunID          string
	Candidates     int
	AlreadyKnown   int
	Classified     int
	Degraded       int
	NewListings    int
	NewDeals       int
	TotalListings  int
	TotalDeals     int
	DealsByVariant map[models.Variant]int
	Snapshot       models.StatsSnapshot
}

// Pipeline runs search, classification, deal evaluation and persistence
// once, sequentially.
type Pipeline struct {
	cfg        PipelineConfig
	source     CandidateSource
	classifier ListingClassifier
	cleaner    *Cleaner
	eval       *Evaluator
	mirror     storage.ListingMirror
	metrics    *utils.RunMetrics
	logger     *utils.Logger
	now        func() time.Time
	newRunID   func() string
}

// NewPipeline wires a Pipeline. mirror and metrics may be nil.
func NewPipeline(cfg PipelineConfig, source CandidateSource, classifier ListingClassifier,
	eval *Evaluator, mirror storage.ListingMirror, metrics *utils.RunMetrics, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		cleaner:    NewCleaner(eval, logger),
		eval:       eval,
		mirror:     mirror,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
}

// Run executes one scrape. Store files are loaded before any network call;
// a corrupt store aborts the run without touching any file.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{RunID: p.newRunID()}
	log := p.logger.With("run_id", res.RunID)

	listings, err := storage.LoadListingStore(p.cfg.ListingsPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	deals, err := storage.LoadDealStore(p.cfg.DealsPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	history, err := storage.LoadStatsHistory(p.cfg.StatsPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	log.Info("[pipeline] Loaded %d previously processed listings and %d deals", listings.Len(), deals.Len())

	candidates := p.source.Collect(ctx, p.cfg.Terms, p.cfg.MaxPages)
	res.Candidates = len(candidates)

	var added []models.EnrichedListing
	for i, c := range candidates {
		if ctx.Err() != nil {
			log.Warn("[pipeline] Interrupted after %d/%d candidates, saving progress", i, len(candidates))
			break
		}
		prefix := fmt.Sprintf("[%d/%d]", i+1, len(candidates))

		if listings.Contains(c.ID) {
			res.AlreadyKnown++
			p.skip("already_processed")
			log.Debug("%s Skipping (already processed): %s", prefix, truncate(c.Heading, 60))
			continue
		}

		log.Info("%s Processing: %s", prefix, c.Heading)
		cls := p.classifier.Classify(ctx, c)
		res.Classified++
		p.classified(cls.Outcome)
		if cls.Outcome == models.OutcomeDegraded {
			res.Degraded++
			log.Warn("%s Classification degraded: %v", prefix, cls.Reason)
		}

		l, reason := p.cleaner.Build(c, cls.Result)
		if reason != SkipNone {
			p.skip(string(reason))
			log.Info("%s Skipped: %s", prefix, reason)
			continue
		}

		listings.Add(l)
		added = append(added, l)
		res.NewListings++
		log.Info("%s %s", prefix, Describe(l))

		if p.eval.IsDeal(l) {
			if deals.Record(l) {
				res.NewDeals++
				log.Info("%s NEW DEAL!", prefix)
			} else {
				log.Info("%s DEAL (already saved)", prefix)
			}
		}
	}

	if err := listings.Save(); err != nil {
		return nil, fmt.Errorf("pipeline: save listings: %w", err)
	}
	if err := deals.Save(); err != nil {
		return nil, fmt.Errorf("pipeline: save deals: %w", err)
	}

	all := listings.Items()
	res.Snapshot = Aggregate(all, res.RunID, p.now())
	history.Append(res.Snapshot, p.cfg.StatsHistorySize)
	if err := storage.SaveStatsHistory(p.cfg.StatsPath, history); err != nil {
		return nil, fmt.Errorf("pipeline: save stats: %w", err)
	}

	res.TotalListings = len(all)
	res.TotalDeals = deals.Len()
	res.DealsByVariant = deals.CountByVariant()

	p.publish(ctx, log, added, deals)

	if p.metrics != nil {
		p.metrics.NewListings.Add(float64(res.NewListings))
		p.metrics.NewDeals.Add(float64(res.NewDeals))
		if err := p.metrics.WriteTextfile(p.cfg.MetricsTextfile, p.now()); err != nil {
			log.Error("[pipeline] %v", err)
		}
	}

	log.Info("[pipeline] Processed %d new drives; %d total deals (%d new)", res.NewListings, res.TotalDeals, res.NewDeals)
	return res, ctx.Err()
}

// publish feeds the optional secondary outputs. Failures are logged; the
// JSON stores are already saved at this point.
func (p *Pipeline) publish(ctx context.Context, log *utils.Logger, added []models.EnrichedListing, deals *storage.DealStore) {
	if p.mirror != nil && len(added) > 0 {
		if err := p.mirror.Write(ctx, added, deals.Contains); err != nil {
			log.Error("[pipeline] SQL mirror: %v", err)
		} else {
			log.Info("[pipeline] Mirrored %d listings to SQL", len(added))
		}
	}

	if p.cfg.DealsCSVPath != "" {
		if err := storage.ExportDeals(p.cfg.DealsCSVPath, deals.Items()); err != nil {
			log.Error("[pipeline] %v", err)
		} else {
			log.Info("[pipeline] Exported %d deals to %s", deals.Len(), p.cfg.DealsCSVPath)
		}
	}
}

func (p *Pipeline) skip(reason string) {
	if p.metrics != nil {
		p.metrics.Skipped.WithLabelValues(reason).Inc()
	}
}

func (p *Pipeline) classified(o models.Outcome) {
	if p.metrics != nil {
		p.metrics.Classified.WithLabelValues(string(o)).Inc()
	}
}
