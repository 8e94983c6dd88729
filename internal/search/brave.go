package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nugget/verity/internal/httpkit"
)

const defaultBraveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave implements the Provider interface for the Brave Search API.
type Brave struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewBrave creates a Brave Search provider.
func NewBrave(apiKey string, client *http.Client) *Brave {
	if client == nil {
		client = httpkit.NewClient()
	}
	return &Brave{
		apiKey:     apiKey,
		endpoint:   defaultBraveEndpoint,
		httpClient: client,
	}
}

func (b *Brave) Name() string { return "brave" }

// braveResponse is the JSON response from Brave's web search API.
type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
	Infobox struct {
		Results []struct {
			Description string `json:"description"`
			LongDesc    string `json:"long_desc"`
		} `json:"results"`
	} `json:"infobox"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

func (b *Brave) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	count := opts.Count
	if count == 0 {
		count = 5
	}

	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(count)},
	}
	if opts.Language != "" {
		params.Set("search_lang", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("brave: HTTP %d: %s", resp.StatusCode, body)
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	out := &Response{Results: make([]Result, 0, len(br.Web.Results))}
	if len(br.Infobox.Results) > 0 {
		ib := br.Infobox.Results[0]
		desc := ib.LongDesc
		if desc == "" {
			desc = ib.Description
		}
		out.KnowledgeDescription = CleanText(desc)
	}
	for _, r := range br.Web.Results {
		out.Results = append(out.Results, Result{
			Title:   CleanText(r.Title),
			URL:     r.URL,
			Snippet: CleanText(r.Description),
		})
	}
	return out, nil
}
