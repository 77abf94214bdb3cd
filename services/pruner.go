package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"drive-deals-scraper/models"
	"drive-deals-scraper/storage"
	"drive-deals-scraper/utils"
)

// RemovedItem is one record evicted by the liveness pass.
type RemovedItem struct {
	ID     string
	Title  string
	URL    string
	Reason string
}

// PruneReport summarises one liveness pass over a store file.
type PruneReport struct {
	Path    string
	Missing bool
	Checked int
	Kept    int
	Removed []RemovedItem
	Changed bool
	Err     error
}

// RemovedIDs lists the ids of every removed item.
func (r *PruneReport) RemovedIDs() []string {
	ids := make([]string, 0, len(r.Removed))
	for _, it := range r.Removed {
		ids = append(ids, it.ID)
	}
	return ids
}

// PrunerOptions tunes a Pruner.
type PrunerOptions struct {
	// Delay is the minimum spacing between probes.
	Delay time.Duration
	// KeepUnreachable retains items whose probe could not complete instead
	// of evicting them.
	KeepUnreachable bool
}

// Pruner removes listings whose marketplace page no longer resolves.
type Pruner struct {
	prober  Prober
	opts    PrunerOptions
	pacer   *utils.Pacer
	logger  *utils.Logger
	metrics *utils.RunMetrics
}

// NewPruner wires a Pruner. metrics may be nil.
func NewPruner(prober Prober, opts PrunerOptions, logger *utils.Logger, metrics *utils.RunMetrics) *Pruner {
	return &Pruner{
		prober:  prober,
		opts:    opts,
		pacer:   utils.NewPacer(opts.Delay),
		logger:  logger,
		metrics: metrics,
	}
}

// PruneFile probes every item of store in order and keeps the live ones.
// The file is rewritten only when something was removed. Cancelling ctx
// stops the pass and leaves the file untouched.
func (p *Pruner) PruneFile(ctx context.Context, store storage.RecordStore) (*PruneReport, error) {
	rep := &PruneReport{Path: store.Path()}
	if !store.Exists() {
		p.logger.Warn("[prune] %s does not exist, nothing to check", store.Path())
		rep.Missing = true
		return rep, nil
	}

	items := store.Items()
	p.logger.Info("[prune] Checking %d items in %s", len(items), store.Path())
	if d := store.Duplicates(); d > 0 {
		p.logger.Warn("[prune] %s: dropping %d repeated ids", store.Path(), d)
		rep.Changed = true
	}

	kept := make([]models.EnrichedListing, 0, len(items))
	for i, it := range items {
		if it.URL == "" {
			rep.Removed = append(rep.Removed, removed(it, "missing url"))
			continue
		}

		if err := p.pacer.Wait(ctx); err != nil {
			return rep, fmt.Errorf("prune %s: %w", store.Path(), err)
		}
		res := p.prober.Probe(ctx, it.URL)
		if ctx.Err() != nil {
			return rep, fmt.Errorf("prune %s: %w", store.Path(), ctx.Err())
		}
		rep.Checked++
		p.observe(res.State)

		switch {
		case res.State == ProbeLive:
			p.logger.Debug("[prune] [%d/%d] live: %s", i+1, len(items), truncate(it.Title, 40))
			kept = append(kept, it)
		case res.State == ProbeUnreachable && p.opts.KeepUnreachable:
			p.logger.Warn("[prune] [%d/%d] unreachable, keeping: %s (%v)", i+1, len(items), it.URL, res.Err)
			kept = append(kept, it)
		default:
			reason := describeProbe(res)
			p.logger.Info("[prune] REMOVED: %s (%s) %s", it.Title, it.URL, reason)
			rep.Removed = append(rep.Removed, removed(it, reason))
		}
	}

	rep.Kept = len(kept)
	if len(rep.Removed) > 0 {
		rep.Changed = true
	}
	p.logger.Info("[prune] Finished %s. Removed %d items. Remaining: %d", store.Path(), len(rep.Removed), rep.Kept)

	if !rep.Changed {
		p.logger.Info("[prune] No changes for %s", store.Path())
		return rep, nil
	}

	store.Replace(kept)
	if err := store.Save(); err != nil {
		return rep, fmt.Errorf("prune %s: %w", store.Path(), err)
	}
	p.logger.Info("[prune] Updated %s", store.Path())
	return rep, nil
}

func (p *Pruner) observe(s ProbeState) {
	if p.metrics != nil {
		p.metrics.ProbeResults.WithLabelValues(string(s)).Inc()
	}
}

func removed(it models.EnrichedListing, reason string) RemovedItem {
	return RemovedItem{ID: it.ID, Title: it.Title, URL: it.URL, Reason: reason}
}

func describeProbe(r ProbeResult) string {
	if r.State == ProbeUnreachable {
		return fmt.Sprintf("unreachable: %v", r.Err)
	}
	return fmt.Sprintf("http %d", r.Status)
}

// PruneStores runs the pass over the listing file and then the deal file.
// A file that cannot be loaded or saved is reported and skipped; the other
// one is still processed. Removed ids are propagated to mirror when set.
func (p *Pruner) PruneStores(ctx context.Context, listingsPath, dealsPath string, mirror storage.ListingMirror) ([]*PruneReport, error) {
	var errs []error

	listings, err := storage.LoadListingStore(listingsPath)
	lrep := p.pruneLoaded(ctx, listingsPath, listings, err)
	if lrep.Err != nil {
		errs = append(errs, lrep.Err)
	} else if mirror != nil && len(lrep.Removed) > 0 {
		if err := mirror.DeleteListings(ctx, lrep.RemovedIDs()); err != nil {
			p.logger.Error("[prune] SQL mirror: %v", err)
		}
	}
	if p.metrics != nil {
		p.metrics.Removed.WithLabelValues("listings").Add(float64(len(lrep.Removed)))
	}

	deals, err := storage.LoadDealStore(dealsPath)
	drep := p.pruneLoaded(ctx, dealsPath, deals, err)
	if drep.Err != nil {
		errs = append(errs, drep.Err)
	} else if mirror != nil && len(drep.Removed) > 0 {
		if err := mirror.ClearDeals(ctx, drep.RemovedIDs()); err != nil {
			p.logger.Error("[prune] SQL mirror: %v", err)
		}
	}
	if p.metrics != nil {
		p.metrics.Removed.WithLabelValues("deals").Add(float64(len(drep.Removed)))
	}

	return []*PruneReport{lrep, drep}, errors.Join(errs...)
}

func (p *Pruner) pruneLoaded(ctx context.Context, path string, store storage.RecordStore, loadErr error) *PruneReport {
	if loadErr != nil {
		p.logger.Error("[prune] Skipping %s: %v", path, loadErr)
		return &PruneReport{Path: path, Err: loadErr}
	}
	rep, err := p.PruneFile(ctx, store)
	if err != nil {
		p.logger.Error("[prune] %v", err)
		rep.Err = err
	}
	return rep
}
