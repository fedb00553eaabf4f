package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// FetchToolName is the name the model boundary uses to request a page fetch.
const FetchToolName = "web_fetch"

// TruncationMarker is appended when extracted text exceeds the character limit.
const TruncationMarker = "... [truncated]"

const maxFetchBody = 5 * 1024 * 1024 // 5MB

// FetchArgs is the typed argument record for web_fetch.
type FetchArgs struct {
	URL string `json:"url"`
}

// FetchResult is the normalized outcome of fetching and extracting a page.
type FetchResult struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
	Truncated bool   `json:"truncated"`
}

// FetchClient fetches a URL and extracts readable text.
type FetchClient struct {
	maxChars   int
	httpClient *http.Client
}

// FetchClientConfig holds fetch client configuration
type FetchClientConfig struct {
	MaxChars int
	Timeout  time.Duration
}

// NewFetchClient creates a fetch client.
func NewFetchClient(cfg FetchClientConfig) *FetchClient {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 8000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &FetchClient{
		maxChars: cfg.MaxChars,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// Fetch downloads a page and extracts its title plus readable plain text.
// Extraction is best-effort: script and style blocks are stripped, remaining
// markup removed, whitespace collapsed and the text truncated to the limit.
func (c *FetchClient) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("URL must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "scout/0.1")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch returned status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	title, text, err := extractReadableText(string(body))
	if err != nil {
		// Unparseable markup falls back to a whitespace-collapsed raw body.
		text = collapseWhitespace(string(body))
	}

	truncated := false
	if len(text) > c.maxChars {
		// Back up to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := c.maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + TruncationMarker
		truncated = true
	}

	return &FetchResult{
		URL:       resp.Request.URL.String(),
		Title:     title,
		Text:      text,
		WordCount: len(strings.Fields(text)),
		Truncated: truncated,
	}, nil
}

// extractReadableText strips script/style/noscript blocks and remaining tags,
// returning the document title and collapsed body text.
func extractReadableText(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		text = collapseWhitespace(doc.Text())
	} else {
		text = collapseWhitespace(body.Text())
	}

	return title, text, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FetchTool wraps the client as an executor Definition.
func FetchTool(client *FetchClient) Definition {
	return Definition{
		Name:        FetchToolName,
		Description: "Fetch a URL and extract its title and readable plain text.",
		InputSchema: map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "The URL to fetch",
					"minLength":   1,
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var decoded FetchArgs
			if err := decodeArgs(args, &decoded); err != nil {
				return nil, err
			}
			return client.Fetch(ctx, decoded.URL)
		},
	}
}
