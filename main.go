package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"drive-deals-scraper/config"
	"drive-deals-scraper/scraper/blocket"
	"drive-deals-scraper/services"
	"drive-deals-scraper/storage"
	"drive-deals-scraper/utils"
)

var rootCmd = &cobra.Command{
	Use:           "drive-deals",
	Short:         "Track secondhand storage drive deals on Blocket",
	Long:          "drive-deals searches Blocket for hard drives, classifies each new listing with Gemini,\nrecords price per TB and flags deals. Configuration comes from the environment,\n.env and an optional config.yml.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Search, classify and record new listings and deals",
	Args:  cobra.NoArgs,
	RunE:  runScrape,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove listings and deals whose page no longer resolves",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(pruneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what both commands set up before doing any work.
type env struct {
	cfg    *config.Config
	logger *utils.Logger
	lock   *storage.RunLock
	mirror storage.ListingMirror
}

func setup(ctx context.Context, job string) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat).With("job", job)

	lock, err := storage.AcquireRunLock(cfg.LockPath())
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger, lock: lock}
	if cfg.PostgresDSN != "" {
		pg, err := storage.NewPostgresWriter(ctx, cfg.PostgresDSN)
		if err != nil {
			// the mirror is optional; the JSON stores are the record
			logger.Error("SQL mirror disabled: %v", err)
		} else {
			e.mirror = pg
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.mirror != nil {
		_ = e.mirror.Close()
	}
	if err := e.lock.Release(); err != nil {
		e.logger.Warn("release lock: %v", err)
	}
	e.logger.Sync()
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	e, err := setup(ctx, "scrape")
	if err != nil {
		return err
	}
	defer e.close()
	cfg, logger := e.cfg, e.logger

	if cfg.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is not set")
	}

	logger.Info("=== Drive deals scrape starting ===")
	logger.Info("Config: terms %v | pages/term: %d | thresholds HDD %.0f / SSD %.0f SEK/TB | min %.1fTB",
		cfg.SearchTerms, cfg.MaxPagesPerTerm, cfg.ThresholdHDD, cfg.ThresholdSSD, cfg.MinCapacityTB)

	metrics := utils.NewRunMetrics("scrape")
	searcher := blocket.NewSearcher(
		blocket.NewClient(cfg.MarketplaceBaseURL, cfg.HTTPTimeout()),
		cfg.MarketplaceCategory, cfg.PageDelay(), logger, metrics)

	gemini := services.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey, cfg.HTTPTimeout())
	classifier, err := services.NewClassifier(gemini, cfg.ClassifyDelay(), cfg.ClassifyMaxAttempts, logger)
	if err != nil {
		return err
	}

	thresholds := services.Thresholds{HDD: cfg.ThresholdHDD, SSD: cfg.ThresholdSSD, MinCapacityTB: cfg.MinCapacityTB}
	pipeline := services.NewPipeline(services.PipelineConfig{
		Terms:            cfg.SearchTerms,
		MaxPages:         cfg.MaxPagesPerTerm,
		ListingsPath:     cfg.ListingsPath(),
		DealsPath:        cfg.DealsPath(),
		StatsPath:        cfg.StatsPath(),
		StatsHistorySize: cfg.StatsHistorySize,
		DealsCSVPath:     cfg.DealsCSVPath,
		MetricsTextfile:  cfg.MetricsTextfile,
	}, searcher, classifier, services.NewEvaluator(thresholds), e.mirror, metrics, logger)

	start := time.Now()
	res, err := pipeline.Run(ctx)
	if res != nil {
		services.PrintRunSummary(cmd.OutOrStdout(), res, thresholds)
	}
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	logger.Info("Done in %s. Data in %s", time.Since(start).Round(time.Second), cfg.DataDir)
	return nil
}

func runPrune(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	e, err := setup(ctx, "prune")
	if err != nil {
		return err
	}
	defer e.close()
	cfg, logger := e.cfg, e.logger

	var prober services.Prober
	switch cfg.ProbeMode {
	case config.ProbeModeBrowser:
		bp, err := services.NewBrowserProber(cfg.ChromeBin, cfg.ProbeTimeout(), logger)
		if err != nil {
			return err
		}
		defer bp.Close()
		prober = bp
	default:
		prober = services.NewHTTPProber(cfg.ProbeTimeout())
	}

	logger.Info("=== Liveness check starting (%s probes) ===", cfg.ProbeMode)
	metrics := utils.NewRunMetrics("prune")
	pruner := services.NewPruner(prober, services.PrunerOptions{
		Delay:           cfg.ProbeDelay(),
		KeepUnreachable: cfg.PruneKeepUnreachable,
	}, logger, metrics)

	reports, err := pruner.PruneStores(ctx, cfg.ListingsPath(), cfg.DealsPath(), e.mirror)
	services.PrintPruneSummary(cmd.OutOrStdout(), reports)

	if werr := metrics.WriteTextfile(cfg.MetricsTextfile, time.Now()); werr != nil {
		logger.Error("%v", werr)
	}
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	return nil
}
