// Package subgraph queries the launchpad GraphQL indexer and normalizes
// rows into domain types.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"launchpad-terminal/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout         = 15 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 500 * time.Millisecond
	DefaultMaxDelay        = 5 * time.Second
	DefaultMetadataWorkers = 12
	DefaultIPFSGateway     = "https://ipfs.io/ipfs/"
	DefaultPageSize        = 1000

	// DefaultGraduationMarketCap is the native market cap at which the
	// bonding curve completes.
	DefaultGraduationMarketCap = 69_000
	// DefaultGraduatingFraction of the graduation cap marks a token as graduating.
	DefaultGraduatingFraction = 0.8
)

// GraphQLError is one entry of a response's errors array.
type GraphQLError struct {
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

// SubgraphError reports a non-2xx response or GraphQL-level errors.
// It is never retried.
type SubgraphError struct {
	Operation  string
	StatusCode int
	Errors     []GraphQLError
	Body       string
}

func (e *SubgraphError) Error() string {
	if len(e.Errors) > 0 {
		msgs := make([]string, len(e.Errors))
		for i, ge := range e.Errors {
			msgs[i] = ge.Message
		}
		return fmt.Sprintf("subgraph %s: %s", e.Operation, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("subgraph %s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Client is a GraphQL client for the launchpad subgraph.
type Client struct {
	endpoint   string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration

	gateway            string
	workers            int
	pageLimit          int
	graduationCap      float64
	graduatingFraction float64

	pool    *ants.Pool
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets the http.Client used for GraphQL and metadata requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithRetry sets retry attempts and the initial delay.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// WithMetadataWorkers bounds concurrent metadata fetches.
func WithMetadataWorkers(n int) Option {
	return func(c *Client) { c.workers = n }
}

// WithPageSize sets the batch size of paginated queries.
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageLimit = n }
}

// WithIPFSGateway sets the gateway prefix used for ipfs:// and bare CID URIs.
func WithIPFSGateway(gateway string) Option {
	return func(c *Client) { c.gateway = gateway }
}

// WithGraduation sets the graduation market cap and the fraction of it
// above which a token counts as graduating.
func WithGraduation(marketCap, fraction float64) Option {
	return func(c *Client) {
		c.graduationCap = marketCap
		c.graduatingFraction = fraction
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client. Close releases its worker pool.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint:           endpoint,
		client:             &http.Client{Timeout: DefaultTimeout},
		maxRetries:         DefaultMaxRetries,
		retryDelay:         DefaultRetryDelay,
		maxDelay:           DefaultMaxDelay,
		gateway:            DefaultIPFSGateway,
		workers:            DefaultMetadataWorkers,
		graduationCap:      DefaultGraduationMarketCap,
		graduatingFraction: DefaultGraduatingFraction,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers <= 0 {
		c.workers = DefaultMetadataWorkers
	}

	pool, err := ants.NewPool(c.workers)
	if err != nil {
		return nil, fmt.Errorf("create metadata pool: %w", err)
	}
	c.pool = pool
	return c, nil
}

func (c *Client) pageSize() int {
	if c.pageLimit <= 0 {
		return DefaultPageSize
	}
	return c.pageLimit
}

// Close releases the metadata worker pool.
func (c *Client) Close() {
	c.pool.Release()
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// query posts a GraphQL document and decodes data into out. Transport
// errors and HTTP 429 are retried with backoff; every other failure is
// returned as is.
func (c *Client) query(ctx context.Context, operation, document string, vars map[string]interface{}, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordSubgraphRequest(operation, time.Since(start).Seconds(), err)
	}()

	body, err := json.Marshal(graphqlRequest{Query: document, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			c.logger.Debug("subgraph request failed, retrying",
				zap.String("operation", operation), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &SubgraphError{Operation: operation, StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &SubgraphError{Operation: operation, StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		var gqlResp graphqlResponse
		if err := json.Unmarshal(respBody, &gqlResp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if len(gqlResp.Errors) > 0 {
			return &SubgraphError{Operation: operation, StatusCode: resp.StatusCode, Errors: gqlResp.Errors}
		}
		if out != nil && len(gqlResp.Data) > 0 {
			if err := json.Unmarshal(gqlResp.Data, out); err != nil {
				return fmt.Errorf("unmarshal data: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// IsSubgraphError reports whether err is or wraps a *SubgraphError.
func IsSubgraphError(err error) bool {
	var se *SubgraphError
	return errors.As(err, &se)
}
