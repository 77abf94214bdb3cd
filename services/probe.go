package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"drive-deals-scraper/utils"
)

// ProbeState is the outcome of checking one listing URL.
type ProbeState string

const (
	ProbeLive        ProbeState = "live"
	ProbeDead        ProbeState = "dead"
	ProbeUnreachable ProbeState = "unreachable"
)

// ProbeResult holds the final HTTP status (0 when none was received) and,
// for unreachable URLs, the transport error.
type ProbeResult struct {
	State  ProbeState
	Status int
	Err    error
}

func resultFor(status int) ProbeResult {
	if status == http.StatusOK {
		return ProbeResult{State: ProbeLive, Status: status}
	}
	return ProbeResult{State: ProbeDead, Status: status}
}

// Prober decides whether a listing URL still resolves.
type Prober interface {
	Probe(ctx context.Context, url string) ProbeResult
}

// HTTPProber checks URLs with HEAD, falling back to GET for servers that
// answer 405. Redirects are followed; only a final 200 counts as live.
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) ProbeResult {
	status, err := p.do(ctx, http.MethodHead, url)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = p.do(ctx, http.MethodGet, url)
	}
	if err != nil {
		return ProbeResult{State: ProbeUnreachable, Err: err}
	}
	return resultFor(status)
}

func (p *HTTPProber) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// BrowserProber loads each URL in headless Chrome and uses the status of
// the main document response. Use it when the marketplace rejects plain
// HTTP clients.
type BrowserProber struct {
	timeout     time.Duration
	logger      *utils.Logger
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

// NewBrowserProber starts a headless browser. chromeBin may be empty, in
// which case common install locations are searched. Close must be called.
func NewBrowserProber(chromeBin string, timeout time.Duration, logger *utils.Logger) (*BrowserProber, error) {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[probe] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(browserUserAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Start the browser now so a missing binary fails the command up front.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("probe: start browser: %w", err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BrowserProber{
		timeout:     timeout,
		logger:      logger,
		browserCtx:  browserCtx,
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelTab,
	}, nil
}

func (b *BrowserProber) Probe(ctx context.Context, url string) ProbeResult {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// RunResponse tracks the main frame's navigation only; iframe
	// documents do not affect the result.
	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	return documentResult(resp, err)
}

// documentResult maps a main-document navigation outcome to a ProbeResult.
func documentResult(resp *network.Response, err error) ProbeResult {
	if resp == nil {
		if err == nil {
			err = errors.New("no document response")
		}
		return ProbeResult{State: ProbeUnreachable, Err: err}
	}
	return resultFor(int(resp.Status))
}

// Close shuts the browser down.
func (b *BrowserProber) Close() {
	b.cancelTab()
	b.cancelAlloc()
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
