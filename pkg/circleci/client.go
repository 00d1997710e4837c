// Package circleci implements a client for the CircleCI API v2
// insights and workflow endpoints, with paginated listing, bounded
// retry and optional request logging.
//
// See https://circleci.com/docs/api/v2/index.html
package circleci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ethpandaops/workflowoor/pkg/config"
)

var (
	// ErrRequest indicates a non-retriable client error (4xx other
	// than 429) or an undecodable response body.
	ErrRequest = errors.New("circleci request error")

	// ErrUnavailable indicates a transient failure that survived the
	// full retry budget. The wrapped message carries the last HTTP
	// status and body.
	ErrUnavailable = errors.New("circleci api unavailable")
)

// LogDetail selects the granularity of the request side log.
type LogDetail string

const (
	LogDetailRequest      LogDetail = "request"
	LogDetailStatusCode   LogDetail = "status_code"
	LogDetailResponseBody LogDetail = "response_body"
)

// errorBodyLimit caps how much of a response body is carried in error
// messages.
const errorBodyLimit = 512

// Client is an authenticated CircleCI API v2 client. Retry and pacing
// policy is per-client so clients with different policies can coexist.
type Client struct {
	log     logrus.FieldLogger
	cfg     *config.CircleCIConfig
	http    *http.Client
	limiter *rate.Limiter
	baseURL string

	maxTries        uint
	initialInterval time.Duration
	maxInterval     time.Duration
	requestTimeout  time.Duration

	reqLogMu   sync.Mutex
	reqLog     io.Writer
	logDetails map[LogDetail]struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithRequestLog appends the selected request/response details to w.
// Logging never alters control flow or return values.
func WithRequestLog(w io.Writer, details ...LogDetail) Option {
	return func(c *Client) {
		c.reqLog = w
		c.logDetails = make(map[LogDetail]struct{}, len(details))

		for _, d := range details {
			c.logDetails[d] = struct{}{}
		}

		if len(details) == 0 {
			c.logDetails[LogDetailRequest] = struct{}{}
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a client from the given configuration. The config must
// have passed Validate.
func New(log logrus.FieldLogger, cfg *config.CircleCIConfig, opts ...Option) *Client {
	baseURL := strings.TrimSuffix(cfg.Server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	initial, _ := time.ParseDuration(cfg.Retry.InitialInterval)
	maxIv, _ := time.ParseDuration(cfg.Retry.MaxInterval)
	timeout, _ := time.ParseDuration(cfg.Retry.RequestTimeout)

	c := &Client{
		log:             log.WithField("component", "circleci"),
		cfg:             cfg,
		http:            &http.Client{Timeout: timeout},
		baseURL:         baseURL,
		maxTries:        uint(cfg.Retry.MaxAttempts),
		initialInterval: initial,
		maxInterval:     maxIv,
		requestTimeout:  timeout,
	}

	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ProjectSlug returns the configured project slug.
func (c *Client) ProjectSlug() string {
	return c.cfg.ProjectSlug
}

// getJSON performs an authenticated GET against apiPath, retrying
// transient failures, and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, apiPath string, params url.Values, out any) error {
	u := c.baseURL + "/" + apiPath
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	operation := func() ([]byte, error) {
		return c.doRequest(ctx, u)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initialInterval
	expo.MaxInterval = c.maxInterval

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		if errors.Is(err, ErrRequest) || errors.Is(err, context.Canceled) {
			return err
		}

		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrRequest, err)
	}

	return nil
}

// doRequest performs a single HTTP attempt. The returned error kind
// drives the retry loop: plain errors are retried, Permanent errors
// abort, RetryAfter errors override the next backoff delay with the
// server's rate-limit signal.
func (c *Client) doRequest(ctx context.Context, u string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
	}

	c.logRequest(u)

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Circle-Token", c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logResponse(resp.StatusCode, body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if seconds, ok := retryAfterSeconds(resp); ok {
			return nil, backoff.RetryAfter(seconds)
		}

		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body))
	default:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s",
			ErrRequest, resp.StatusCode, truncateBody(body)))
	}
}

// retryAfterSeconds extracts a rate-limit delay from the response,
// either as delay-seconds or as an HTTP date.
func retryAfterSeconds(resp *http.Response) (int, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		return seconds, true
	}

	if at, err := http.ParseTime(v); err == nil {
		seconds := int(time.Until(at).Seconds())
		if seconds < 0 {
			seconds = 0
		}

		return seconds, true
	}

	return 0, false
}

// truncateBody limits a response body for inclusion in an error.
func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorBodyLimit {
		return s[:errorBodyLimit] + "..."
	}

	return s
}

func (c *Client) logRequest(u string) {
	if c.reqLog == nil {
		return
	}

	if _, ok := c.logDetails[LogDetailRequest]; !ok {
		return
	}

	c.reqLogMu.Lock()
	defer c.reqLogMu.Unlock()

	fmt.Fprintln(c.reqLog, u)
}

func (c *Client) logResponse(status int, body []byte) {
	if c.reqLog == nil {
		return
	}

	c.reqLogMu.Lock()
	defer c.reqLogMu.Unlock()

	if _, ok := c.logDetails[LogDetailStatusCode]; ok {
		fmt.Fprintln(c.reqLog, status)
	}

	if _, ok := c.logDetails[LogDetailResponseBody]; ok {
		fmt.Fprintln(c.reqLog, string(body))
	}
}
