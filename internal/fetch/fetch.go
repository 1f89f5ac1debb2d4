// Package fetch downloads a web page and reduces it to readable text
// for the model: scripts, styles, navigation and other boilerplate are
// dropped.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/quillhq/quill-agent/internal/httpkit"
)

const (
	// DefaultTimeout bounds the whole page download.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBytes caps the response body (4 MB).
	DefaultMaxBytes int64 = 4 * 1024 * 1024

	// DefaultMaxChars caps the extracted text fed to the model.
	DefaultMaxChars = 40000
)

// Page holds the fetched and extracted content of one URL.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
	Truncated  bool   `json:"truncated,omitempty"`
	StatusCode int    `json:"status_code"`
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// New creates a Fetcher with default limits.
func New() *Fetcher {
	return &Fetcher{
		client:   httpkit.NewClient(httpkit.WithTimeout(DefaultTimeout)),
		maxBytes: DefaultMaxBytes,
	}
}

// Fetch downloads rawURL and returns its readable text, truncated to
// maxChars (0 uses DefaultMaxChars). Bare hostnames are assumed to be
// https.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read response: %w", err)
	}

	page := &Page{URL: rawURL, StatusCode: resp.StatusCode}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		page.Title, page.Text = extract(string(body))
	case strings.Contains(contentType, "text/"), utf8.Valid(body):
		page.Text = string(body)
	default:
		page.Text = fmt.Sprintf("Binary content (%s), %d bytes", contentType, len(body))
		return page, nil
	}

	if len(page.Text) > maxChars {
		page.Text = truncateRunes(page.Text, maxChars)
		page.Truncated = true
	}
	return page, nil
}

// truncateRunes cuts s after maxChars runes without splitting a
// multi-byte character.
func truncateRunes(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
