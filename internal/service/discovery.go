package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	searchTimeout  = 20 * time.Second
	pageDelayMin   = 2 * time.Second
	pageDelayRange = 2 * time.Second
)

var profileTitleSeparators = []string{" - ", " – ", " | "}

// DiscoveredProfile is one person found on a public profile page.
type DiscoveredProfile struct {
	FirstName  string
	LastName   string
	ProfileURL string
	Headline   string
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Discoverer finds people associated with a company by querying a
// self-hosted metasearch instance for public profile pages.
type Discoverer struct {
	baseURL    string
	httpClient HTTPClient
	sleep      func(ctx context.Context, d time.Duration)
}

// DiscovererOption configures optional dependencies.
type DiscovererOption func(*Discoverer)

// WithDiscoveryHTTPClient overrides the default HTTP client.
func WithDiscoveryHTTPClient(client HTTPClient) DiscovererOption {
	return func(d *Discoverer) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithDiscoverySleep overrides the inter-page delay, mainly for tests.
func WithDiscoverySleep(sleep func(ctx context.Context, d time.Duration)) DiscovererOption {
	return func(d *Discoverer) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// NewDiscoverer builds a discoverer for the given metasearch base URL.
func NewDiscoverer(baseURL string, opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: searchTimeout},
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover fetches one result page for the company. A failed or malformed
// page yields zero profiles rather than an error so one bad page never sinks
// a whole company.
func (d *Discoverer) Discover(ctx context.Context, companyName string, page int) []DiscoveredProfile {
	query := fmt.Sprintf("site:linkedin.com/in %q", companyName)
	target := fmt.Sprintf("%s/search?q=%s&format=json&pageno=%d", d.baseURL, url.QueryEscape(query), page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil
	}
	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}

	var profiles []DiscoveredProfile
	for _, result := range parsed.Results {
		if !strings.Contains(result.URL, "linkedin.com/in") {
			continue
		}
		first, last := splitProfileTitle(result.Title)
		if first == "" {
			continue
		}
		profiles = append(profiles, DiscoveredProfile{
			FirstName:  first,
			LastName:   last,
			ProfileURL: result.URL,
			Headline:   strings.TrimSpace(result.Content),
		})
	}
	return profiles
}

// DiscoverAll paginates until it has collected limit profiles, hits an empty
// page, or exhausts maxPages. Duplicate profile URLs across pages are
// dropped. A randomized delay between pages keeps the request rate polite.
func (d *Discoverer) DiscoverAll(ctx context.Context, companyName string, limit, maxPages int) []DiscoveredProfile {
	if limit <= 0 || maxPages <= 0 {
		return nil
	}

	seen := make(map[string]bool)
	var profiles []DiscoveredProfile
	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			d.sleep(ctx, pageDelayMin+time.Duration(rand.Int63n(int64(pageDelayRange))))
			if ctx.Err() != nil {
				break
			}
		}

		found := d.Discover(ctx, companyName, page)
		if len(found) == 0 {
			break
		}
		for _, p := range found {
			if seen[p.ProfileURL] {
				continue
			}
			seen[p.ProfileURL] = true
			profiles = append(profiles, p)
			if len(profiles) >= limit {
				return profiles
			}
		}
	}
	return profiles
}

// splitProfileTitle pulls "First Last" out of titles shaped like
// "Jane Doe - Product Lead | LinkedIn".
func splitProfileTitle(title string) (first, last string) {
	name := title
	for _, sep := range profileTitleSeparators {
		if idx := strings.Index(name, sep); idx >= 0 {
			name = name[:idx]
		}
	}
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) == 0 {
		return "", ""
	}
	first = parts[0]
	if len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
