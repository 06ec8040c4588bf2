package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxgate/voxgate/internal/capability"
)

const defaultSearchResults = 3

// Search queries a SearxNG instance and summarizes the top hits into a
// speakable answer.
type Search struct {
	instanceURL string
	maxResults  int
	client      *http.Client
}

// SearchOption is a functional option for configuring Search.
type SearchOption func(*Search)

// WithSearchHTTPClient overrides the HTTP client, mainly for tests.
func WithSearchHTTPClient(c *http.Client) SearchOption {
	return func(s *Search) { s.client = c }
}

// WithMaxResults bounds how many results flow into the reply. Default 3.
func WithMaxResults(n int) SearchOption {
	return func(s *Search) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// NewSearch creates a client for the SearxNG instance at instanceURL.
func NewSearch(instanceURL string, opts ...SearchOption) *Search {
	s := &Search{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		maxResults:  defaultSearchResults,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type searxResponse struct {
	Results []searxResult `json:"results"`
}

type searxResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// Query runs a search and returns a short spoken summary.
func (s *Search) Query(ctx context.Context, query string) (string, error) {
	u := fmt.Sprintf("%s/search?q=%s&format=json", s.instanceURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("skills: build search request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("skills: search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("skills: search instance returned %d", resp.StatusCode)
	}

	var parsed searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("skills: decode search response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "I couldn't find anything about that.", nil
	}

	n := min(s.maxResults, len(parsed.Results))
	parts := make([]string, 0, n)
	for _, r := range parsed.Results[:n] {
		snippet := strings.TrimSpace(r.Content)
		if snippet == "" {
			snippet = strings.TrimSpace(r.Title)
		}
		if snippet != "" {
			parts = append(parts, snippet)
		}
	}
	if len(parts) == 0 {
		return "I couldn't find anything about that.", nil
	}
	return strings.Join(parts, " "), nil
}

// Descriptors returns the search capability set.
func (s *Search) Descriptors() []*capability.Descriptor {
	return []*capability.Descriptor{
		{
			Name:        "search.web",
			Aliases:     []string{"web_search"},
			Description: "Search the web and summarize the top results.",
			Params: []capability.Param{
				{Name: "query", Type: capability.TypeString, Description: "What to search for.", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return s.Query(ctx, args["query"].(string))
			},
		},
	}
}
