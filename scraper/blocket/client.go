package blocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"drive-deals-scraper/models"
)

const (
	searchPath = "/recommerce/forsale/search/api/search/SEARCH_ID_BAP_COMMON"
	itemPath   = "/recommerce/forsale/item/"
	userAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SearchPage is one page of marketplace search results.
type SearchPage struct {
	Docs       []models.RawCandidate
	LastPage   int
	MatchCount int
}

// Source runs a keyword search against the marketplace.
type Source interface {
	Search(ctx context.Context, query, category string, page int) (SearchPage, error)
}

// Client talks to the marketplace's JSON search endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL (scheme and host, e.g.
// https://www.blocket.se). Requests time out after timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ItemURL is the public page of a listing.
func ItemURL(id string) string {
	return "https://www.blocket.se" + itemPath + id
}

// Search fetches one page of results for query.
func (c *Client) Search(ctx context.Context, query, category string, page int) (SearchPage, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", strconv.Itoa(page))
	if category != "" {
		q.Set("sub_category", category)
	}

	body, err := c.doGET(ctx, c.baseURL+searchPath+"?"+q.Encode())
	if err != nil {
		return SearchPage{}, fmt.Errorf("blocket: search %q page %d: %w", query, page, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SearchPage{}, fmt.Errorf("blocket: decode search %q page %d: %w", query, page, err)
	}
	return resp.toPage(), nil
}

func (c *Client) doGET(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

type searchResponse struct {
	Docs     []searchDoc `json:"docs"`
	Metadata struct {
		Paging struct {
			Last int `json:"last"`
		} `json:"paging"`
		ResultSize struct {
			MatchCount int `json:"match_count"`
		} `json:"result_size"`
	} `json:"metadata"`
}

type searchDoc struct {
	ID    models.ID `json:"id"`
	Head  string    `json:"heading"`
	Body  string    `json:"body"`
	Price *struct {
		Amount float64 `json:"amount"`
	} `json:"price"`
	Flags        []string          `json:"flags"`
	Labels       []json.RawMessage `json:"labels"`
	Timestamp    int64             `json:"timestamp"`
	Location     string            `json:"location"`
	CanonicalURL string            `json:"canonical_url"`
}

func (r searchResponse) toPage() SearchPage {
	last := r.Metadata.Paging.Last
	if last < 1 {
		last = 1
	}
	page := SearchPage{
		Docs:       make([]models.RawCandidate, 0, len(r.Docs)),
		LastPage:   last,
		MatchCount: r.Metadata.ResultSize.MatchCount,
	}
	for _, d := range r.Docs {
		page.Docs = append(page.Docs, d.toCandidate())
	}
	return page
}

func (d searchDoc) toCandidate() models.RawCandidate {
	c := models.RawCandidate{
		ID:           string(d.ID),
		Heading:      strings.TrimSpace(d.Head),
		Body:         d.Body,
		Flags:        d.Flags,
		Timestamp:    d.Timestamp,
		Location:     strings.TrimSpace(d.Location),
		CanonicalURL: strings.TrimSpace(d.CanonicalURL),
	}
	if d.Price != nil {
		c.Price = d.Price.Amount
	}
	for _, raw := range d.Labels {
		c.Labels = append(c.Labels, labelText(raw))
	}
	return c
}

// labelText flattens a label, which is either a bare string or an object
// such as {"id":"fiks_ferdig","text":"Fiks ferdig"}, to searchable text.
func labelText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
