// Package price quotes SOL in USD for display.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"tokenscope/internal/observability"
)

// Default configuration values.
const (
	DefaultURL              = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
	DefaultTimeout          = 10 * time.Second
	DefaultFailureThreshold = 3
	DefaultOpenTimeout      = 60 * time.Second

	asset    = "solana"
	currency = "usd"
)

// ErrNoQuote is returned when the response carries no SOL/USD price.
var ErrNoQuote = errors.New("no quote in response")

// Client fetches the SOL/USD price from a CoinGecko-compatible endpoint.
// Repeated failures open a circuit breaker and further calls fail fast.
type Client struct {
	url              string
	httpClient       *http.Client
	logger           *zap.Logger
	failureThreshold uint32
	openTimeout      time.Duration
	breaker          *gobreaker.CircuitBreaker
}

// Option configures Client.
type Option func(*Client)

// WithURL sets the price endpoint.
func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBreaker sets how many consecutive failures open the breaker and
// how long it stays open.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(c *Client) {
		c.failureThreshold = failures
		c.openTimeout = openFor
	}
}

// NewClient creates a price client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		url:              DefaultURL,
		httpClient:       &http.Client{Timeout: DefaultTimeout},
		logger:           zap.NewNop(),
		failureThreshold: DefaultFailureThreshold,
		openTimeout:      DefaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "price-oracle",
		MaxRequests: 1,
		Timeout:     c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.failureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Info("price circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// USD returns the current SOL price in USD.
func (c *Client) USD(ctx context.Context) (decimal.Decimal, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		observability.RecordPriceError()
		return decimal.Zero, fmt.Errorf("sol price: %w", err)
	}
	return result.(decimal.Decimal), nil
}

type simplePriceResponse map[string]map[string]decimal.Decimal

func (c *Client) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return decimal.Zero, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body simplePriceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode response: %w", err)
	}

	quote, ok := body[asset][currency]
	if !ok || !quote.IsPositive() {
		return decimal.Zero, ErrNoQuote
	}
	return quote, nil
}

// USDValue formats amount SOL at price as a two-decimal USD string.
func USDValue(amount, price decimal.Decimal) string {
	return amount.Mul(price).StringFixed(2)
}
