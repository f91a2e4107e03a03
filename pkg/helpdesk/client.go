package helpdesk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultMaxBackoff = 30 * time.Second
)

// Doer abstracts the raw HTTP transport beneath the gateway.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	BaseURL     string
	APIKey      string
	WorkspaceID int64

	// Rolling-window rate limit for outgoing calls.
	RateLimitRequests int64
	RateLimitPeriod   time.Duration
	RateLimitMaxWait  time.Duration
	// Poll interval while blocked on the local bucket. Tests shrink this.
	RateLimitPollInterval time.Duration

	MaxRetries int
	MaxBackoff time.Duration

	HTTPClient Doer
	Logger     *logrus.Logger
	Audit      *AuditLog
}

// Client is the rate-limited API gateway: it wraps the platform's JSON
// endpoints behind typed operations, serializes calls through a token
// bucket, classifies failures and retries RATE_LIMITED/TRANSIENT ones with
// exponential backoff up to a bounded attempt count.
type Client struct {
	baseURL       *url.URL
	authorization string
	workspaceID   int64
	http          Doer
	limiter       *callLimiter
	audit         *AuditLog
	log           *logrus.Entry
	maxRetries    int
	maxBackoff    time.Duration
}

func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid base URL: %q", opts.BaseURL)
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("API key is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Audit == nil {
		opts.Audit = NewAuditLog()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Client{
		baseURL:       u,
		authorization: basicAuth(opts.APIKey),
		workspaceID:   opts.WorkspaceID,
		http:          opts.HTTPClient,
		limiter:       newCallLimiter(opts.RateLimitRequests, opts.RateLimitPeriod, opts.RateLimitMaxWait, opts.RateLimitPollInterval),
		audit:         opts.Audit,
		log:           opts.Logger.WithField("component", "helpdesk"),
		maxRetries:    maxRetries,
		maxBackoff:    maxBackoff,
	}, nil
}

// Audit exposes the side-channel call log shared with the executor.
func (c *Client) Audit() *AuditLog {
	return c.audit
}

// The platform authenticates with the API key as basic-auth user and a
// literal "X" password.
func basicAuth(apiKey string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(strings.TrimSpace(apiKey)+":X"))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload map[string]any, out any) error {
	if err := c.limiter.wait(ctx); err != nil {
		return err
	}
	c.audit.Record(method, path, payload, false)

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "marshal request payload")
		}
		body = b
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var lastErr *Error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			retriesTotal.Inc()
			delay := retryDelay(lastErr, attempt, c.maxBackoff)
			c.log.WithFields(logrus.Fields{
				"method":  method,
				"path":    path,
				"attempt": attempt,
				"delay":   delay.String(),
				"kind":    lastErr.Kind,
			}).Warn("retrying helpdesk call")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		apiErr := c.doOnce(ctx, method, u.String(), body, payload != nil, out)
		if apiErr == nil {
			requestsTotal.WithLabelValues(method, "ok").Inc()
			return nil
		}
		requestsTotal.WithLabelValues(method, string(apiErr.Kind)).Inc()
		if !apiErr.Retryable() {
			return apiErr
		}
		lastErr = apiErr
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, body []byte, hasBody bool, out any) *Error {
	var reader io.Reader
	if hasBody {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return transportError(err)
	}
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := classifyStatus(resp.StatusCode, strings.TrimSpace(string(respBody)))
		if apiErr.Kind == ErrRateLimited {
			apiErr.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: ErrUnknown, StatusCode: resp.StatusCode, Body: "malformed response body", cause: err}
	}
	return nil
}

// retryDelay picks the server-provided Retry-After for 429s when present,
// otherwise exponential backoff capped at maxBackoff.
func retryDelay(apiErr *Error, attempt int, maxBackoff time.Duration) time.Duration {
	if apiErr != nil && apiErr.retryAfter > 0 {
		if apiErr.retryAfter > maxBackoff {
			return maxBackoff
		}
		return apiErr.retryAfter
	}
	return backoff(attempt, maxBackoff)
}

// 1s * 2^(attempts-1)
func backoff(attempts int, maxBackoff time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	seconds := math.Pow(2, float64(attempts-1))
	d := time.Duration(seconds * float64(time.Second))
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
