// Package sefaria is a client for the Sefaria text and calendar APIs.
//
// Fetched texts pass through two cache layers before the network: an
// in-memory LRU of decoded chapter data and an optional persistent
// store of compressed response bodies. Outbound requests are throttled.
package sefaria

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	corecache "github.com/FocuswithJustin/ParashaDeck/core/cache"
	"github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/ir"
	"github.com/FocuswithJustin/ParashaDeck/core/mapping"
	"github.com/FocuswithJustin/ParashaDeck/internal/cache"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
	"github.com/FocuswithJustin/ParashaDeck/internal/textstore"
)

// DefaultBaseURL is the public Sefaria host.
const DefaultBaseURL = "https://www.sefaria.org"

// maxBodySize caps a single API response.
const maxBodySize = 16 << 20

// Config configures a Client. Zero values select defaults.
type Config struct {
	BaseURL      string
	VersionTitle string
	Diaspora     bool
	Timeout      time.Duration

	// RequestsPerSecond throttles outbound requests; <= 0 disables it.
	RequestsPerSecond float64
	Burst             int

	HTTPClient *http.Client

	// TextCache holds decoded responses in memory; nil disables it.
	TextCache *corecache.TextCache

	// Store persists raw response bodies; nil disables it.
	Store *textstore.Store

	// CalendarTTL bounds how long calendar lookups are reused.
	CalendarTTL time.Duration
}

// Client talks to the Sefaria API.
type Client struct {
	baseURL      string
	versionTitle string
	diaspora     bool
	timeout      time.Duration
	http         *http.Client
	limiter      *rate.Limiter
	texts        *corecache.TextCache
	store        *textstore.Store
	calendar     *cache.TTLCache[string, *CalendarEntry]
	now          func() time.Time
}

var _ mapping.Fetcher = (*Client)(nil)

// New creates a Client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		versionTitle: cfg.VersionTitle,
		diaspora:     cfg.Diaspora,
		timeout:      cfg.Timeout,
		http:         cfg.HTTPClient,
		texts:        cfg.TextCache,
		store:        cfg.Store,
		now:          time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.http == nil {
		c.http = &http.Client{}
	}

	limit, burst := rate.Inf, cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(limit, burst)

	ttl := cfg.CalendarTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.calendar = cache.New[string, *CalendarEntry](ttl)
	return c
}

// Fetch retrieves the source and target text of expr ("C1:V1-C2:V2")
// within book. It implements mapping.Fetcher.
func (c *Client) Fetch(ctx context.Context, book, expr string) (*ir.RawChapterData, error) {
	e, err := ir.ParseExpression(expr)
	if err != nil {
		return nil, err
	}
	if !e.Grammar.ChapterQualified() {
		return nil, errors.NewValidation("expr", fmt.Sprintf("%q is not chapter-qualified", expr))
	}

	reqURL := c.textURL(book, upstreamRef(e.Spec))
	start := time.Now()

	if c.texts != nil {
		if raw, ok := c.texts.Get(reqURL); ok {
			logging.UpstreamFetch(ctx, book, expr, "memory", time.Since(start), nil)
			return raw, nil
		}
	}

	if c.store != nil {
		body, ok, err := c.store.Get(ctx, reqURL)
		if err != nil {
			logging.WarnContext(ctx, "response cache read failed", "url", reqURL, "error", err)
		}
		if ok {
			if raw, err := decodeText(reqURL, body); err == nil {
				c.remember(reqURL, raw)
				logging.UpstreamFetch(ctx, book, expr, "store", time.Since(start), nil)
				return raw, nil
			}
		}
	}

	body, err := c.get(ctx, reqURL)
	if err != nil {
		logging.UpstreamFetch(ctx, book, expr, "network", time.Since(start), err)
		return nil, err
	}
	raw, err := decodeText(reqURL, body)
	logging.UpstreamFetch(ctx, book, expr, "network", time.Since(start), err, "blocks", raw.BlockCount())
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if err := c.store.Put(ctx, reqURL, body); err != nil {
			logging.WarnContext(ctx, "response cache write failed", "url", reqURL, "error", err)
		}
	}
	c.remember(reqURL, raw)
	return raw, nil
}

func (c *Client) remember(key string, raw *ir.RawChapterData) {
	if c.texts != nil {
		c.texts.Put(key, raw)
	}
}

// textURL builds /api/texts/{book ref}?context=0&commentary=0[&vtitle=...].
func (c *Client) textURL(book, ref string) string {
	q := url.Values{}
	q.Set("context", "0")
	q.Set("commentary", "0")
	if c.versionTitle != "" {
		q.Set("vtitle", c.versionTitle)
	}
	return c.baseURL + "/api/texts/" + url.PathEscape(book+" "+ref) + "?" + q.Encode()
}

// upstreamRef renders spec for the API. An open-ended span asks for whole
// chapters; the verse window is applied after mapping.
func upstreamRef(spec ir.RangeSpec) string {
	if spec.EndVerse >= ir.SentinelMax {
		if spec.SameChapter() {
			return fmt.Sprintf("%d", spec.StartChapter)
		}
		return fmt.Sprintf("%d-%d", spec.StartChapter, spec.EndChapter)
	}
	return spec.Short()
}

// get performs a throttled GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &errors.UpstreamError{URL: reqURL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ParashaDeck")
	if id := logging.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errors.UpstreamError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &errors.UpstreamError{URL: reqURL, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errors.UpstreamError{URL: reqURL, StatusCode: resp.StatusCode, Message: errorField(body)}
	}
	return body, nil
}

// errorField extracts {"error": "..."} from a response body, if present.
func errorField(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		return e.Error
	}
	return ""
}
