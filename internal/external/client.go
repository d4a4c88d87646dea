// Package external is the client for the remote analysis service that
// handles statistical-language cells (R and friends). The service receives a
// language tag and the cell source and answers with definitions, uses and
// file I/O.
//
// The client fails soft: when the service is unconfigured, unreachable,
// slow or returns something unusable, Analyze logs a warning, counts the
// failure and returns an empty result. It never returns an error.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/jward/cellscope/internal/extract"
	"github.com/jward/cellscope/internal/symset"
)

// EnvURL names the environment variable holding the default base URL.
const EnvURL = "CELLSCOPE_CONTAINERIZER_URL"

// DefaultTimeout bounds one call to the service.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

type analyzeReq struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type analyzeResp struct {
	Defs   []string `json:"defs"`
	Uses   []string `json:"uses"`
	Writes []string `json:"writes"`
	Reads  []string `json:"reads"`
}

// Client posts cell source to <base URL>/analyze.
type Client struct {
	baseURL  string
	timeout  time.Duration
	http     *http.Client
	logger   *slog.Logger
	limiter  *rate.Limiter
	meters   metric.MeterProvider
	failures metric.Int64Counter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the base URL taken from the environment.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the per-call timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used for failure warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimit allows at most perSecond calls per second, with no burst.
// Non-positive values are ignored.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithMeterProvider sets the provider for the failure counter. The default
// is the global otel provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) {
		if mp != nil {
			c.meters = mp
		}
	}
}

// New returns a Client. The base URL defaults to $CELLSCOPE_CONTAINERIZER_URL;
// an empty base URL makes every call return an empty result.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(os.Getenv(EnvURL), "/"),
		timeout: DefaultTimeout,
		http:    &http.Client{},
		logger:  slog.Default(),
		meters:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}
	counter, err := c.meters.Meter("github.com/jward/cellscope/internal/external").Int64Counter(
		"cellscope.external.failures",
		metric.WithDescription("Delegated cell analyses that fell back to empty results."),
	)
	if err == nil {
		c.failures = counter
	}
	return c
}

// BaseURL returns the configured base URL, without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Enabled reports whether a base URL is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// Analyze sends one cell to the service. It is called at most once per
// delegated cell and never retries.
func (c *Client) Analyze(ctx context.Context, language, source string) extract.Result {
	if !c.Enabled() {
		c.logger.Debug("external analyzer not configured",
			slog.String("language", language),
		)
		return extract.NewResult()
	}

	res, err := c.analyze(ctx, language, source)
	if err != nil {
		c.logger.Warn("external analyzer failed, using empty result",
			slog.String("language", language),
			slog.String("url", c.baseURL),
			slog.String("error", err.Error()),
		)
		if c.failures != nil {
			c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
		}
		return extract.NewResult()
	}
	return res
}

func (c *Client) analyze(ctx context.Context, language, source string) (extract.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return extract.Result{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(analyzeReq{Language: language, Code: source})
	if err != nil {
		return extract.Result{}, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(reqBody))
	if err != nil {
		return extract.Result{}, fmt.Errorf("create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return extract.Result{}, fmt.Errorf("analyze HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return extract.Result{}, fmt.Errorf("read analyze response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return extract.Result{}, fmt.Errorf("analyze service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out analyzeResp
	if err := json.Unmarshal(body, &out); err != nil {
		return extract.Result{}, fmt.Errorf("parse analyze response: %w", err)
	}

	res := extract.NewResult()
	res.Definitions = symset.New(nonEmpty(out.Defs)...)
	res.Uses = symset.New(nonEmpty(out.Uses)...)
	res.Writes = symset.New(nonEmpty(out.Writes)...).Map(filepath.Clean)
	res.Reads = symset.New(nonEmpty(out.Reads)...).Map(filepath.Clean)
	res.Normalize()
	return res, nil
}

func nonEmpty(items []string) []string {
	out := items[:0:0]
	for _, it := range items {
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}
