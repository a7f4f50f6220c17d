package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	"titan/internal/logging"
	"titan/internal/types"
)

// searchResult is one parsed web search hit.
type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// browserPool lazily launches one shared headless browser for page reads.
type browserPool struct {
	mu      sync.Mutex
	browser *rod.Browser
}

func (p *browserPool) get() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}
	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	p.browser = b
	return b, nil
}

// Close shuts the shared browser down if one was launched.
func (p *browserPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		p.browser.Close()
		p.browser = nil
	}
}

// RegisterWebTools adds web_search (DuckDuckGo HTML, no API key) and
// web_page_read (headless browser render, text extraction). Returns a
// cleanup function for the shared browser.
func RegisterWebTools(r *Registry) (cleanup func()) {
	pool := &browserPool{}

	r.MustRegister(&Tool{
		Name:        "web_search",
		Description: "Search the web and return result titles, URLs, and snippets.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "The search query"},
				"max_results": map[string]any{"type": "integer", "description": "Maximum results to return (default 8)"},
			},
			"required": []string{"query"},
		},
		General: true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			max := 8
			if v, ok := args["max_results"].(float64); ok && v > 0 {
				max = int(v)
			}
			if max > 25 {
				max = 25
			}

			results, err := searchDuckDuckGo(ctx, query, max)
			if err != nil {
				return nil, fmt.Errorf("search failed: %w", err)
			}
			logging.Tools("web_search: query=%q results=%d", query, len(results))
			return map[string]any{"query": query, "results": results, "count": len(results)}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "web_page_read",
		Description: "Load a web page in a headless browser and return its readable text.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "The page URL to read"},
			},
			"required": []string{"url"},
		},
		ContentTool: true,
		General:     true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			pageURL, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			u, err := url.Parse(pageURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return nil, fmt.Errorf("invalid url: %s", pageURL)
			}

			text, err := readPage(ctx, pool, pageURL)
			if err != nil {
				return nil, err
			}
			return map[string]any{"url": pageURL, "text": text}, nil
		},
	})

	return pool.Close
}

// readPage renders the page and extracts its visible text.
func readPage(ctx context.Context, pool *browserPool, pageURL string) (string, error) {
	browser, err := pool.get()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page did not finish loading: %w", err)
	}

	content, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return extractText(content), nil
}

// searchDuckDuckGo queries the DuckDuckGo HTML interface.
func searchDuckDuckGo(ctx context.Context, query string, maxResults int) ([]searchResult, error) {
	searchURL := fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(query))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from search endpoint", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return parseSearchResults(string(body), maxResults)
}

// parseSearchResults extracts results from the DuckDuckGo HTML markup.
func parseSearchResults(htmlContent string, maxResults int) ([]searchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search HTML: %w", err)
	}

	var results []searchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "results_links") {
			r := extractSearchResult(n)
			if r.URL != "" && r.Title != "" {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func extractSearchResult(n *html.Node) searchResult {
	var r searchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				r.URL = cleanResultURL(attrValue(n, "href"))
				r.Title = textContent(n)
			case hasClass(n, "result__snippet"):
				r.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r
}

// cleanResultURL unwraps DuckDuckGo redirect links.
func cleanResultURL(raw string) string {
	const prefix = "//duckduckgo.com/l/?uddg="
	if !strings.HasPrefix(raw, prefix) {
		return raw
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(raw, prefix))
	if err != nil {
		return raw
	}
	if idx := strings.Index(decoded, "&"); idx > 0 {
		decoded = decoded[:idx]
	}
	return decoded
}

func hasClass(n *html.Node, class string) bool {
	return strings.Contains(attrValue(n, "class"), class)
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// skipElements never contribute readable text.
var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true,
	"nav": true, "footer": true, "iframe": true, "svg": true,
}

// extractText pulls the readable text out of a full HTML document.
func extractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
