package courtyard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"card-trader-go/internal/config"
	"card-trader-go/internal/market"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	listingsPath     = "/api/marketplace/listings"
	priceHistoryPath = "/api/cards/%s/price-history"
	sortPriceAsc     = "price_asc"
	maxRetries       = 3
)

// APIError is a non-retryable HTTP failure from the marketplace.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client is a client for the Courtyard marketplace API.
// It implements market.MarketDataProvider.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff time.Duration
}

// ensure Client implements the interface
var _ market.MarketDataProvider = (*Client)(nil)

// NewClient creates a new marketplace client.
func NewClient(cfg *config.Courtyard, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		logger:  logger.Named("courtyard"),
		limiter: limiter,
		backoff: time.Second,
	}
}

type listingsResponse struct {
	Listings []market.Listing `json:"listings"`
}

// ListListings fetches the cheapest listings in a category.
func (c *Client) ListListings(ctx context.Context, category string, limit int) ([]market.Listing, error) {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"category": category,
			"limit":    strconv.Itoa(limit),
			"sort":     sortPriceAsc,
		}).
		SetResult(&listingsResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, listingsPath, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s listings: %w", category, err)
	}

	result := resp.Result().(*listingsResponse)
	return result.Listings, nil
}

// GetPriceStats fetches recent price statistics for a card. Cards the
// marketplace knows nothing about yield market.ErrDataUnavailable.
func (c *Client) GetPriceStats(ctx context.Context, cardID string) (*market.PriceStats, error) {
	req := c.client.R().
		SetContext(ctx).
		SetResult(&market.PriceStats{})

	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf(priceHistoryPath, url.PathEscape(cardID)), req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("no price history for %s: %w", cardID, market.ErrDataUnavailable)
		}
		return nil, fmt.Errorf("failed to get price history for %s: %w", cardID, err)
	}

	stats := resp.Result().(*market.PriceStats)
	if stats.CardID == "" {
		stats.CardID = cardID
	}
	return stats, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, path string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+path))
		resp, err = req.Execute(method, path)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
			err = &APIError{StatusCode: statusCode, Body: resp.String()}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry || i == maxRetries-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, err
}
