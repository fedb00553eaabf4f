package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SearchToolName is the name the model boundary uses to request a web search.
const SearchToolName = "web_search"

// SearchArgs is the typed argument record for web_search, decoded and
// validated at the executor boundary.
type SearchArgs struct {
	Query string `json:"query"`
}

// SearchResult is one normalized search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SearchClient calls an external web search API.
type SearchClient struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// SearchClientConfig holds search client configuration
type SearchClientConfig struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Timeout    time.Duration
}

// NewSearchClient creates a search client. The API key is required; its
// absence is a construction-time failure, before any run starts.
func NewSearchClient(cfg SearchClientConfig) (*SearchClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("search API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.tavily.com/search"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &SearchClient{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query against the search API and normalizes the hits.
func (c *SearchClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: c.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	return results, nil
}

// SearchTool wraps the client as an executor Definition.
func SearchTool(client *SearchClient) Definition {
	return Definition{
		Name:        SearchToolName,
		Description: "Search the web for a query string and return ranked results with title, URL and snippet.",
		InputSchema: map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query",
					"minLength":   1,
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var decoded SearchArgs
			if err := decodeArgs(args, &decoded); err != nil {
				return nil, err
			}
			return client.Search(ctx, decoded.Query)
		},
	}
}

// decodeArgs converts the validated argument bag into a typed record.
func decodeArgs(args map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return nil
}
