package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nugget/verity/internal/httpkit"
)

// SearXNG implements the Provider interface for a SearXNG instance.
type SearXNG struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearXNG creates a SearXNG provider. The baseURL should be the root
// URL of the SearXNG instance (e.g., "http://localhost:8888").
func NewSearXNG(baseURL string, client *http.Client) *SearXNG {
	if client == nil {
		client = httpkit.NewClient()
	}
	return &SearXNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

func (s *SearXNG) Name() string { return "searxng" }

// searxngResponse is the JSON response from SearXNG's /search endpoint.
type searxngResponse struct {
	Results []searxngResult `json:"results"`
	// Answers is a list of strings on older instances and a list of
	// {"answer": ...} objects on newer ones.
	Answers   []json.RawMessage `json:"answers"`
	Infoboxes []struct {
		Content string `json:"content"`
	} `json:"infoboxes"`
}

type searxngResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (s *SearXNG) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
	}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	count := opts.Count
	if count == 0 {
		count = 5
	}

	reqURL := fmt.Sprintf("%s/search?%s", s.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("searxng: HTTP %d: %s", resp.StatusCode, body)
	}

	var sr searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("searxng: decode response: %w", err)
	}

	out := &Response{Results: make([]Result, 0, count)}
	for _, raw := range sr.Answers {
		if a := decodeAnswer(raw); a != "" {
			out.Answer = CleanText(a)
			break
		}
	}
	for _, ib := range sr.Infoboxes {
		if ib.Content != "" {
			out.KnowledgeDescription = CleanText(ib.Content)
			break
		}
	}
	for i, r := range sr.Results {
		if i >= count {
			break
		}
		out.Results = append(out.Results, Result{
			Title:   CleanText(r.Title),
			URL:     r.URL,
			Snippet: CleanText(r.Content),
		})
	}
	return out, nil
}

func decodeAnswer(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Answer
	}
	return ""
}
