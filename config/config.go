package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from defaults,
// then an optional YAML file, then environment variables.
type Config struct {
	GeminiAPIKey  string `yaml:"-"`
	GeminiModel   string `yaml:"gemini_model"`
	GeminiBaseURL string `yaml:"gemini_base_url"`

	MarketplaceBaseURL  string   `yaml:"marketplace_base_url"`
	MarketplaceCategory string   `yaml:"marketplace_category"`
	SearchTerms         []string `yaml:"search_terms"`
	MaxPagesPerTerm     int      `yaml:"max_pages_per_term"`

	ThresholdHDD  float64 `yaml:"threshold_hdd"`
	ThresholdSSD  float64 `yaml:"threshold_ssd"`
	MinCapacityTB float64 `yaml:"min_capacity_tb"`

	DataDir          string `yaml:"data_dir"`
	StatsHistorySize int    `yaml:"stats_history_size"`

	PageDelayMs          int    `yaml:"page_delay_ms"`
	ClassifyDelayMs      int    `yaml:"classify_delay_ms"`
	ClassifyMaxAttempts  int    `yaml:"classify_max_attempts"`
	HTTPTimeoutMs        int    `yaml:"http_timeout_ms"`
	ProbeDelayMs         int    `yaml:"probe_delay_ms"`
	ProbeTimeoutMs       int    `yaml:"probe_timeout_ms"`
	ProbeMode            string `yaml:"probe_mode"`
	PruneKeepUnreachable bool   `yaml:"prune_keep_unreachable"`
	ChromeBin            string `yaml:"chrome_bin"`

	PostgresDSN     string `yaml:"-"`
	DealsCSVPath    string `yaml:"deals_csv_path"`
	MetricsTextfile string `yaml:"metrics_textfile"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// CategoryComputers is Blocket's "Datorer" sub-category.
const CategoryComputers = "1.93.3907"

const (
	ProbeModeHTTP    = "http"
	ProbeModeBrowser = "browser"
)

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		GeminiModel:         "gemini-2.5-flash-lite",
		GeminiBaseURL:       "https://generativelanguage.googleapis.com",
		MarketplaceBaseURL:  "https://www.blocket.se",
		MarketplaceCategory: CategoryComputers,
		SearchTerms:         []string{"hårddisk"},
		MaxPagesPerTerm:     3,
		ThresholdHDD:        150,
		ThresholdSSD:        600,
		MinCapacityTB:       1.0,
		DataDir:             "data",
		StatsHistorySize:    30,
		PageDelayMs:         300,
		ClassifyDelayMs:     500,
		ClassifyMaxAttempts: 2,
		HTTPTimeoutMs:       20000,
		ProbeDelayMs:        200,
		ProbeTimeoutMs:      10000,
		ProbeMode:           ProbeModeHTTP,
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Load reads the .env file and the optional YAML file and returns a
// validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := Defaults()

	path := getEnv("CONFIG_FILE", "config.yml")
	if err := overlayFile(&cfg, path); err != nil {
		return nil, err
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overlayFile merges YAML settings from path into cfg. A missing file is
// not an error.
func overlayFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.GeminiBaseURL = getEnv("GEMINI_BASE_URL", cfg.GeminiBaseURL)

	cfg.MarketplaceBaseURL = getEnv("MARKETPLACE_BASE_URL", cfg.MarketplaceBaseURL)
	cfg.MarketplaceCategory = getEnv("MARKETPLACE_CATEGORY", cfg.MarketplaceCategory)
	cfg.SearchTerms = getEnvList("SEARCH_TERMS", cfg.SearchTerms)
	cfg.MaxPagesPerTerm = getEnvInt("MAX_PAGES_PER_TERM", cfg.MaxPagesPerTerm)

	cfg.ThresholdHDD = getEnvFloat("THRESHOLD_HDD", cfg.ThresholdHDD)
	cfg.ThresholdSSD = getEnvFloat("THRESHOLD_SSD", cfg.ThresholdSSD)
	cfg.MinCapacityTB = getEnvFloat("MIN_CAPACITY_TB", cfg.MinCapacityTB)

	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.StatsHistorySize = getEnvInt("STATS_HISTORY_SIZE", cfg.StatsHistorySize)

	cfg.PageDelayMs = getEnvInt("PAGE_DELAY_MS", cfg.PageDelayMs)
	cfg.ClassifyDelayMs = getEnvInt("CLASSIFY_DELAY_MS", cfg.ClassifyDelayMs)
	cfg.ClassifyMaxAttempts = getEnvInt("CLASSIFY_MAX_ATTEMPTS", cfg.ClassifyMaxAttempts)
	cfg.HTTPTimeoutMs = getEnvInt("HTTP_TIMEOUT_MS", cfg.HTTPTimeoutMs)
	cfg.ProbeDelayMs = getEnvInt("PROBE_DELAY_MS", cfg.ProbeDelayMs)
	cfg.ProbeTimeoutMs = getEnvInt("PROBE_TIMEOUT_MS", cfg.ProbeTimeoutMs)
	cfg.ProbeMode = strings.ToLower(getEnv("PROBE_MODE", cfg.ProbeMode))
	cfg.PruneKeepUnreachable = getEnvBool("PRUNE_KEEP_UNREACHABLE", cfg.PruneKeepUnreachable)
	cfg.ChromeBin = getEnv("CHROME_BIN", cfg.ChromeBin)

	cfg.PostgresDSN = getEnv("PG_DSN", cfg.PostgresDSN)
	cfg.DealsCSVPath = getEnv("DEALS_CSV_PATH", cfg.DealsCSVPath)
	cfg.MetricsTextfile = getEnv("METRICS_TEXTFILE", cfg.MetricsTextfile)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if len(c.SearchTerms) == 0 {
		errs = append(errs, "search_terms must have at least 1 term")
	}
	if c.MaxPagesPerTerm < 1 {
		errs = append(errs, "max_pages_per_term must be >= 1")
	}
	if c.ThresholdHDD <= 0 || c.ThresholdSSD <= 0 {
		errs = append(errs, "threshold_hdd and threshold_ssd must be > 0")
	}
	if c.MinCapacityTB < 0 {
		errs = append(errs, "min_capacity_tb must be >= 0")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, "data_dir is required")
	}
	if c.StatsHistorySize < 1 {
		errs = append(errs, "stats_history_size must be >= 1")
	}
	if c.PageDelayMs < 0 || c.ClassifyDelayMs < 0 || c.ProbeDelayMs < 0 {
		errs = append(errs, "delays must be >= 0")
	}
	if c.HTTPTimeoutMs <= 0 || c.ProbeTimeoutMs <= 0 {
		errs = append(errs, "timeouts must be > 0")
	}
	if c.ProbeMode != ProbeModeHTTP && c.ProbeMode != ProbeModeBrowser {
		errs = append(errs, fmt.Sprintf("probe_mode must be %q or %q, got %q", ProbeModeHTTP, ProbeModeBrowser, c.ProbeMode))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}

func (c *Config) ListingsPath() string { return filepath.Join(c.DataDir, "listings.json") }
func (c *Config) DealsPath() string    { return filepath.Join(c.DataDir, "deals.json") }
func (c *Config) StatsPath() string    { return filepath.Join(c.DataDir, "stats.json") }
func (c *Config) LockPath() string     { return filepath.Join(c.DataDir, ".drive-deals.lock") }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c *Config) PageDelay() time.Duration     { return ms(c.PageDelayMs) }
func (c *Config) ClassifyDelay() time.Duration { return ms(c.ClassifyDelayMs) }
func (c *Config) HTTPTimeout() time.Duration   { return ms(c.HTTPTimeoutMs) }
func (c *Config) ProbeDelay() time.Duration    { return ms(c.ProbeDelayMs) }
func (c *Config) ProbeTimeout() time.Duration  { return ms(c.ProbeTimeoutMs) }

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
