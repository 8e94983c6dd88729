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

const (
	defaultSerpAPIEndpoint = "https://serpapi.com/search"
	defaultSerpAPIEngine   = "google"
	defaultSerpAPICount    = 3
)

// SerpAPI implements the Provider interface for serpapi.com. It is the
// only backend that returns answer boxes and knowledge panels.
type SerpAPI struct {
	apiKey     string
	endpoint   string
	engine     string
	httpClient *http.Client
}

// NewSerpAPI creates a SerpAPI provider. Empty endpoint and engine
// select the public endpoint and Google.
func NewSerpAPI(apiKey, endpoint, engine string, client *http.Client) *SerpAPI {
	if endpoint == "" {
		endpoint = defaultSerpAPIEndpoint
	}
	if engine == "" {
		engine = defaultSerpAPIEngine
	}
	if client == nil {
		client = httpkit.NewClient()
	}
	return &SerpAPI{
		apiKey:     apiKey,
		endpoint:   endpoint,
		engine:     engine,
		httpClient: client,
	}
}

func (s *SerpAPI) Name() string { return "serpapi" }

type serpAPIResponse struct {
	Error     string `json:"error"`
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answer_box"`
	KnowledgeGraph *struct {
		Description string `json:"description"`
	} `json:"knowledge_graph"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *SerpAPI) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	count := opts.Count
	if count == 0 {
		count = defaultSerpAPICount
	}
	params := url.Values{
		"q":       {query},
		"api_key": {s.apiKey},
		"engine":  {s.engine},
		"num":     {strconv.Itoa(count)},
	}
	if opts.Language != "" {
		params.Set("hl", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("serpapi: HTTP %d: %s", resp.StatusCode, body)
	}

	var sr serpAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("serpapi: decode response: %w", err)
	}
	if sr.Error != "" {
		// SerpAPI reports "no results" in the error field with a 200.
		if sr.Error == "Google hasn't returned any results for this query." {
			return &Response{}, nil
		}
		return nil, fmt.Errorf("serpapi: %s", sr.Error)
	}

	out := &Response{}
	if sr.AnswerBox != nil {
		out.Answer = CleanText(sr.AnswerBox.Answer)
		out.AnswerSnippet = CleanText(sr.AnswerBox.Snippet)
	}
	if sr.KnowledgeGraph != nil {
		out.KnowledgeDescription = CleanText(sr.KnowledgeGraph.Description)
	}
	for _, r := range sr.OrganicResults {
		out.Results = append(out.Results, Result{
			Title:   CleanText(r.Title),
			URL:     r.Link,
			Snippet: CleanText(r.Snippet),
		})
	}
	return out, nil
}
