package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	EngineTavily     = "tavily"
	EngineDuckDuckGo = "duckduckgo"

	tavilyEndpoint     = "https://api.tavily.com/search"
	duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

	searchMaxResults = 5
	snippetMaxRunes  = 300
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// SearchResult is one web search hit
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// WebSearchTool searches the web through Tavily or DuckDuckGo
type WebSearchTool struct {
	Engine   string
	APIKey   string
	Timeout  time.Duration
	Endpoint string // overrides the engine's default URL
	client   *http.Client
}

// NewWebSearchTool creates the web_search tool. A zero timeout means 10s.
func NewWebSearchTool(engine, apiKey string, timeout time.Duration) *WebSearchTool {
	if engine == "" {
		engine = EngineTavily
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebSearchTool{
		Engine:  engine,
		APIKey:  apiKey,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *WebSearchTool) Describe() Descriptor {
	return Descriptor{
		Name:        "web_search",
		Description: "Search the web for current information on any topic.",
		Params: []Param{
			{Name: "query", Type: "string", Description: "The search query", Required: true},
		},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	query := stringArg(args, "query")

	var (
		results []SearchResult
		err     error
	)
	switch t.Engine {
	case EngineDuckDuckGo:
		results, err = t.searchDuckDuckGo(ctx, query)
	default:
		if t.APIKey == "" {
			return Result{Success: false, Output: "Web search API key not configured."}, nil
		}
		results, err = t.searchTavily(ctx, query)
	}
	if err != nil {
		return Result{Success: false, Output: fmt.Sprintf("Search failed: %v", err)}, nil
	}

	if len(results) == 0 {
		return Result{Success: true, Output: "No results found."}, nil
	}
	return Result{Success: true, Output: formatResults(results)}, nil
}

func formatResults(results []SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("**%s**\n%s\n%s", r.Title, r.URL, truncateRunes(r.Content, snippetMaxRunes)))
	}
	return strings.Join(parts, "\n\n")
}

func (t *WebSearchTool) httpClient() *http.Client {
	if t.client == nil {
		t.client = &http.Client{Timeout: t.Timeout}
	}
	return t.client
}

func (t *WebSearchTool) searchTavily(ctx context.Context, query string) ([]SearchResult, error) {
	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}

	body, err := json.Marshal(map[string]any{
		"api_key":     t.APIKey,
		"query":       query,
		"max_results": searchMaxResults,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var data struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return data.Results, nil
}

func (t *WebSearchTool) searchDuckDuckGo(ctx context.Context, query string) ([]SearchResult, error) {
	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := t.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	var results []SearchResult
	doc.Find(".result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		title := cleanWhitespace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     resolveDuckDuckGoLink(href),
			Content: cleanWhitespace(s.Find(".result__snippet").First().Text()),
		})
		return len(results) < searchMaxResults
	})
	return results, nil
}

// resolveDuckDuckGoLink unwraps the /l/?uddg= redirect used on result links.
func resolveDuckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
