// Package fetcher retrieves source pages over HTTP with browser-like
// headers and a shared request rate limit.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	// DefaultUserAgent mimics a desktop Chrome browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultTimeout   = 10 * time.Second
	DefaultMaxBytes  = 10 * 1024 * 1024

	challengeScan = 64 * 1024
)

var (
	// ErrFetch wraps every failure to obtain a usable document.
	ErrFetch = errors.New("fetch failed")
	// ErrChallenge marks an anti-bot interstitial served instead of the page.
	ErrChallenge = errors.New("bot challenge page")
)

var challengePhrases = []string{
	"verifying you are human",
	"verify you are human",
	"checking your browser",
	"why have i been blocked?",
	"cloudflare ray id",
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: HTTP %d for %s", e.Code, e.URL)
}

func (e *StatusError) Unwrap() error {
	return ErrFetch
}

// Response is a fetched document.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// Options configures a Fetcher. Zero values fall back to the defaults.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	MaxBytes          int64
}

// Fetcher performs rate-limited GET requests.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBytes  int64
}

// New creates a Fetcher. A non-positive RequestsPerSecond disables limiting.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Fetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(limit, opts.Burst),
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
	}
}

// Fetch retrieves url. Status and challenge failures still return the
// Response so callers can report what the source sent.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9,es;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp, f.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: read body of %s: %v", ErrFetch, url, err)
	}
	out := &Response{URL: url, Status: resp.StatusCode, Body: body}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{URL: url, Code: resp.StatusCode}
	}
	if len(body) == 0 {
		return out, fmt.Errorf("%w: empty body from %s", ErrFetch, url)
	}
	if looksLikeChallenge(body) {
		return out, fmt.Errorf("%w: %w at %s", ErrFetch, ErrChallenge, url)
	}
	return out, nil
}

func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(resp.Body)
	}
	// Decode to UTF-8 from the declared charset, or the one sniffed from
	// the document when none is declared.
	cr, err := charset.NewReader(io.LimitReader(r, limit), resp.Header.Get("Content-Type"))
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return io.ReadAll(cr)
}

func looksLikeChallenge(body []byte) bool {
	head := body
	if len(head) > challengeScan {
		head = head[:challengeScan]
	}
	lower := strings.ToLower(string(head))
	for _, p := range challengePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

var previewPolicy = bluemonday.StrictPolicy()

// Preview returns up to n runes of the visible text of body, for
// diagnostics when a document cannot be parsed.
func Preview(body []byte, n int) string {
	if len(body) > challengeScan {
		body = body[:challengeScan]
	}
	text := html.UnescapeString(previewPolicy.Sanitize(string(body)))
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > n {
		return string(r[:n])
	}
	return text
}
