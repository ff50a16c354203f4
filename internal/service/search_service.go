package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Searcher answers a free-text query with a short text snippet.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// DuckDuckGoSearcher queries the DuckDuckGo Instant Answer API. No API key
// required, which keeps merchant enrichment usable out of the box.
type DuckDuckGoSearcher struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

func NewDuckDuckGoSearcher(timeout time.Duration, logger *zap.Logger) *DuckDuckGoSearcher {
	return &DuckDuckGoSearcher{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.duckduckgo.com/",
		logger:     logger,
	}
}

func (s *DuckDuckGoSearcher) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search failed with status %d", resp.StatusCode)
	}

	var result struct {
		AbstractText  string `json:"AbstractText"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			Text string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	if text := strings.TrimSpace(result.AbstractText); text != "" {
		return text, nil
	}
	for _, topic := range result.RelatedTopics {
		if text := strings.TrimSpace(topic.Text); text != "" {
			return text, nil
		}
	}

	return "", fmt.Errorf("no results for query %q", query)
}
