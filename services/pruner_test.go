package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drive-deals-scraper/models"
	"drive-deals-scraper/storage"
	"drive-deals-scraper/utils"
)

// probeServer serves /live (200), /gone (404), /slow (hangs), /nohead
// (405 on HEAD, 200 on GET) and /moved (redirect to /live).
func probeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/nohead", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/live", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProber(t *testing.T) {
	srv := probeServer(t)
	p := NewHTTPProber(100 * time.Millisecond)
	ctx := context.Background()

	tests := []struct {
		path   string
		state  ProbeState
		status int
	}{
		{"/live", ProbeLive, 200},
		{"/gone", ProbeDead, 404},
		{"/nohead", ProbeLive, 200},
		{"/moved", ProbeLive, 200},
		{"/slow", ProbeUnreachable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := p.Probe(ctx, srv.URL+tt.path)
			assert.Equal(t, tt.state, res.State)
			assert.Equal(t, tt.status, res.Status)
			if tt.state == ProbeUnreachable {
				assert.Error(t, res.Err)
			}
		})
	}
}

func TestDocumentResultUsesMainFrameResponse(t *testing.T) {
	assert.Equal(t, ProbeResult{State: ProbeLive, Status: 200}, documentResult(&network.Response{Status: 200}, nil))
	assert.Equal(t, ProbeResult{State: ProbeDead, Status: 404}, documentResult(&network.Response{Status: 404}, nil))

	// A failed navigation still reports the main frame's status when one arrived.
	assert.Equal(t, ProbeDead, documentResult(&network.Response{Status: 410}, errors.New("net::ERR_ABORTED")).State)

	res := documentResult(nil, errors.New("net::ERR_NAME_NOT_RESOLVED"))
	assert.Equal(t, ProbeUnreachable, res.State)
	assert.EqualError(t, res.Err, "net::ERR_NAME_NOT_RESOLVED")

	res = documentResult(nil, nil)
	assert.Equal(t, ProbeUnreachable, res.State)
	assert.Error(t, res.Err)
}

type recordingProber struct {
	results map[string]ProbeResult
	calls   []string
}

func (r *recordingProber) Probe(_ context.Context, url string) ProbeResult {
	r.calls = append(r.calls, url)
	return r.results[url]
}

func writeStore(t *testing.T, path string, items ...models.EnrichedListing) {
	t.Helper()
	s, err := storage.LoadListingStore(path)
	require.NoError(t, err)
	s.Merge(items)
	require.NoError(t, s.Save())
}

func item(id, url string) models.EnrichedListing {
	return models.EnrichedListing{ID: id, Title: "Disk " + id, URL: url, DriveType: models.VariantHDD, PricePerTB: fptr(100)}
}

func TestPruneFileKeepsOnlyLive(t *testing.T) {
	srv := probeServer(t)
	path := filepath.Join(t.TempDir(), "listings.json")
	a, b, c := item("A", srv.URL+"/live"), item("B", srv.URL+"/gone"), item("C", srv.URL+"/slow")
	writeStore(t, path, a, b, c)

	store, err := storage.LoadListingStore(path)
	require.NoError(t, err)
	metrics := utils.NewRunMetrics("prune")
	p := NewPruner(NewHTTPProber(50*time.Millisecond), PrunerOptions{}, newTestLogger(t), metrics)

	rep, err := p.PruneFile(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Checked)
	assert.Equal(t, 1, rep.Kept)
	assert.Equal(t, []string{"B", "C"}, rep.RemovedIDs())
	assert.Equal(t, "http 404", rep.Removed[0].Reason)
	assert.Contains(t, rep.Removed[1].Reason, "unreachable")

	reloaded, err := storage.LoadListingStore(path)
	require.NoError(t, err)
	assert.Equal(t, []models.EnrichedListing{a}, reloaded.Items())
}

func TestPruneFileKeepUnreachablePolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.json")
	writeStore(t, path, item("A", "u/a"), item("B", "u/b"), item("C", "u/c"))

	prober := &recordingProber{results: map[string]ProbeResult{
		"u/a": {State: ProbeLive, Status: 200},
		"u/b": {State: ProbeDead, Status: 410},
		"u/c": {State: ProbeUnreachable, Err: errors.New("timeout")},
	}}
	store, err := storage.LoadDealStore(path)
	require.NoError(t, err)

	p := NewPruner(prober, PrunerOptions{KeepUnreachable: true}, newTestLogger(t), nil)
	rep, err := p.PruneFile(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, rep.RemovedIDs())
	assert.Equal(t, 2, rep.Kept)
	assert.Equal(t, []string{"A", "C"}, ids(store.Items()))
}

func TestPruneFileDropsMissingURLWithoutProbing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	writeStore(t, path, item("A", ""), item("B", "u/b"))

	prober := &recordingProber{results: map[string]ProbeResult{"u/b": {State: ProbeLive, Status: 200}}}
	store, err := storage.LoadListingStore(path)
	require.NoError(t, err)

	rep, err := NewPruner(prober, PrunerOptions{}, newTestLogger(t), nil).PruneFile(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, []string{"u/b"}, prober.calls)
	require.Len(t, rep.Removed, 1)
	assert.Equal(t, "missing url", rep.Removed[0].Reason)
	assert.Equal(t, 1, rep.Checked)
}

func TestPruneFileUnchangedIsNotRewritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	writeStore(t, path, item("A", "u/a"))
	before, err := os.Stat(path)
	require.NoError(t, err)
	past := before.ModTime().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	prober := &recordingProber{results: map[string]ProbeResult{"u/a": {State: ProbeLive, Status: 200}}}
	store, err := storage.LoadListingStore(path)
	require.NoError(t, err)

	rep, err := NewPruner(prober, PrunerOptions{}, newTestLogger(t), nil).PruneFile(context.Background(), store)
	require.NoError(t, err)
	assert.False(t, rep.Changed)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, after.ModTime().Equal(past), "file must not be rewritten")
}

func TestPruneFileRewritesWhenDuplicatesDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"A","url":"u/a"},{"id":"A","url":"u/a"}]`), 0o644))

	prober := &recordingProber{results: map[string]ProbeResult{"u/a": {State: ProbeLive, Status: 200}}}
	store, err := storage.LoadDealStore(path)
	require.NoError(t, err)

	rep, err := NewPruner(prober, PrunerOptions{}, newTestLogger(t), nil).PruneFile(context.Background(), store)
	require.NoError(t, err)
	assert.True(t, rep.Changed)
	assert.Empty(t, rep.Removed)

	reloaded, err := storage.LoadDealStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Duplicates())
	assert.Equal(t, 1, reloaded.Len())
}

func TestPruneFileMissingStore(t *testing.T) {
	store, err := storage.LoadListingStore(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	rep, err := NewPruner(&recordingProber{}, PrunerOptions{}, newTestLogger(t), nil).PruneFile(context.Background(), store)
	require.NoError(t, err)
	assert.True(t, rep.Missing)
	_, statErr := os.Stat(store.Path())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "a missing store is not created")
}

func TestPruneFileCancelledLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	writeStore(t, path, item("A", "u/a"), item("B", "u/b"))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	prober := &cancellingProber{cancel: cancel}
	store, err := storage.LoadListingStore(path)
	require.NoError(t, err)

	_, err = NewPruner(prober, PrunerOptions{}, newTestLogger(t), nil).PruneFile(ctx, store)
	assert.ErrorIs(t, err, context.Canceled)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

type cancellingProber struct{ cancel context.CancelFunc }

func (c *cancellingProber) Probe(context.Context, string) ProbeResult {
	c.cancel()
	return ProbeResult{State: ProbeUnreachable, Err: context.Canceled}
}

// fakeMirror records the ids it was asked to delete or unflag.
type fakeMirror struct {
	written []string
	deleted []string
	cleared []string
}

func (f *fakeMirror) Write(_ context.Context, ls []models.EnrichedListing, _ func(string) bool) error {
	f.written = append(f.written, ids(ls)...)
	return nil
}
func (f *fakeMirror) DeleteListings(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}
func (f *fakeMirror) ClearDeals(_ context.Context, ids []string) error {
	f.cleared = append(f.cleared, ids...)
	return nil
}
func (f *fakeMirror) Close() error { return nil }

func TestPruneStoresCorruptFileDoesNotStopTheOther(t *testing.T) {
	dir := t.TempDir()
	listingsPath := filepath.Join(dir, "listings.json")
	dealsPath := filepath.Join(dir, "deals.json")
	require.NoError(t, os.WriteFile(listingsPath, []byte(`[{"id":`), 0o644))
	writeStore(t, dealsPath, item("A", "u/a"), item("B", "u/b"))

	prober := &recordingProber{results: map[string]ProbeResult{
		"u/a": {State: ProbeLive, Status: 200},
		"u/b": {State: ProbeDead, Status: 404},
	}}
	mirror := &fakeMirror{}
	p := NewPruner(prober, PrunerOptions{}, newTestLogger(t), utils.NewRunMetrics("prune"))

	reports, err := p.PruneStores(context.Background(), listingsPath, dealsPath, mirror)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrCorruptStore)

	require.Len(t, reports, 2)
	assert.Error(t, reports[0].Err)
	assert.NoError(t, reports[1].Err)
	assert.Equal(t, []string{"B"}, reports[1].RemovedIDs())
	assert.Empty(t, mirror.deleted)
	assert.Equal(t, []string{"B"}, mirror.cleared)

	garbage, readErr := os.ReadFile(listingsPath)
	require.NoError(t, readErr)
	assert.Equal(t, `[{"id":`, string(garbage), "corrupt file is left for manual repair")
}

func TestPruneStoresPropagatesListingRemovals(t *testing.T) {
	dir := t.TempDir()
	listingsPath := filepath.Join(dir, "listings.json")
	writeStore(t, listingsPath, item("A", "u/a"), item("B", "u/b"))

	prober := &recordingProber{results: map[string]ProbeResult{
		"u/a": {State: ProbeDead, Status: 404},
		"u/b": {State: ProbeLive, Status: 200},
	}}
	mirror := &fakeMirror{}
	reports, err := NewPruner(prober, PrunerOptions{}, newTestLogger(t), nil).
		PruneStores(context.Background(), listingsPath, filepath.Join(dir, "deals.json"), mirror)
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, mirror.deleted)
	assert.True(t, reports[1].Missing)
}

func ids(ls []models.EnrichedListing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}
