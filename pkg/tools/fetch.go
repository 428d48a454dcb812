package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultFetchMaxLength = 5000

var errAddressNotAllowed = errors.New("address not allowed")

// sharedNet is the carrier-grade NAT range, which IsPrivate does not cover
var sharedNet = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// FetchURLTool fetches a page and reduces it to readable text
type FetchURLTool struct {
	client *http.Client
}

// NewFetchURLTool creates the fetch_url tool. Its client only dials
// public addresses, so redirects and rebinding hostnames cannot reach
// loopback, private or link-local hosts.
func NewFetchURLTool() *FetchURLTool {
	return &FetchURLTool{client: newPublicClient(10 * time.Second)}
}

func newPublicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
		Control:   publicOnly,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would be dialed instead of the target and bypass the check
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

// publicOnly runs after DNS resolution with the concrete address being dialed
func publicOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", errAddressNotAllowed, host)
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		sharedNet.Contains(ip))
}

func (t *FetchURLTool) Describe() Descriptor {
	return Descriptor{
		Name:        "fetch_url",
		Description: "Fetch and extract text content from a URL",
		Params: []Param{
			{Name: "url", Type: "string", Description: "HTTP or HTTPS URL to fetch", Required: true},
			{Name: "max_length", Type: "integer", Description: "Maximum characters to return (default: 5000)"},
		},
	}
}

func (t *FetchURLTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	urlStr := stringArg(args, "url")
	if urlStr == "" {
		return Result{Success: false, Output: "No URL provided."}, nil
	}

	u, err := url.Parse(urlStr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Result{Success: false, Output: "Only absolute HTTP/HTTPS URLs are supported."}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	client := t.client
	if client == nil {
		client = newPublicClient(10 * time.Second)
	}
	resp, err := client.Do(req)
	if errors.Is(err, errAddressNotAllowed) {
		return Result{Success: false, Output: "Fetch failed: URL resolves to a private or local address, which is not allowed."}, nil
	}
	if err != nil {
		return Result{Success: false, Output: fmt.Sprintf("Fetch failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Success: false, Output: fmt.Sprintf("Fetch failed: HTTP %d", resp.StatusCode)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024)) // Max 10MB
	if err != nil {
		return Result{Success: false, Output: fmt.Sprintf("Fetch failed: %v", err)}, nil
	}

	var title, text string
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		title, text = extractPage(string(body))
	} else {
		text = string(body)
	}
	text = cleanWhitespace(text)

	maxLen := intArg(args, "max_length", defaultFetchMaxLength)
	if maxLen <= 0 {
		maxLen = defaultFetchMaxLength
	}
	if r := []rune(text); len(r) > maxLen {
		text = string(r[:maxLen]) + "\n\n... [content truncated]"
	}

	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "**%s**\n", cleanWhitespace(title))
	}
	b.WriteString(urlStr)
	b.WriteString("\n\n")
	b.WriteString(text)

	return Result{Success: true, Output: b.String()}, nil
}

// extractPage returns the title and the main readable text of an HTML page.
func extractPage(htmlStr string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return "", stripHTMLTags(htmlStr)
	}

	title := doc.Find("title").First().Text()

	doc.Find("script, style, nav, header, footer, aside, noscript").Remove()

	// Prefer a dedicated content region when it carries real text
	for _, selector := range []string{"main", "article", "[role='main']", ".content", "#content"} {
		if content := doc.Find(selector).First().Text(); len(strings.TrimSpace(content)) > 100 {
			return title, content
		}
	}
	return title, doc.Find("body").Text()
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// stripHTMLTags is a fallback regex-based HTML stripper
func stripHTMLTags(html string) string {
	html = scriptStyleRe.ReplaceAllString(html, "")
	return tagRe.ReplaceAllString(html, " ")
}

// cleanWhitespace normalizes whitespace
func cleanWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
