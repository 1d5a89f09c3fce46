package shopware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const tokenExpiryMargin = 30 * time.Second

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	userAgent    string
	limiter      *rate.Limiter
	retry        RetryConfig

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type Option func(*Client)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	StatusCodes map[int]struct{}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithRateLimit(limit rate.Limit) Option {
	return func(c *Client) {
		if limit > 0 {
			c.limiter = rate.NewLimiter(limit, 1)
		}
	}
}

func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

func NewClient(baseURL, clientID, clientSecret string, opts ...Option) *Client {
	client := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   http.DefaultClient,
		userAgent:    "partnermap-shopware-client/0.1",
		limiter:      rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			StatusCodes: map[int]struct{}{
				http.StatusTooManyRequests:     {},
				http.StatusInternalServerError: {},
				http.StatusBadGateway:          {},
				http.StatusServiceUnavailable:  {},
				http.StatusGatewayTimeout:      {},
			},
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// SearchCustomers fetches one page of customer entities. The listing
// custom field is not filtered here on purpose; the inclusion gate is
// the normalizer's job so it stays in one testable place.
func (c *Client) SearchCustomers(ctx context.Context, page, limit int) (*CustomerSearchResponse, error) {
	if c == nil {
		return nil, errors.New("shopware: client is nil")
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	body := map[string]any{
		"page":             page,
		"limit":            limit,
		"total-count-mode": 1,
		"associations": map[string]any{
			"defaultBillingAddress": map[string]any{
				"associations": map[string]any{"country": map[string]any{}},
			},
		},
	}
	var out CustomerSearchResponse
	if err := c.searchWithRetry(ctx, "/api/search/customer", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecentOrderCounts returns per-customer order counts since the cutoff
// in a single terms aggregation call, keyed by customer id.
func (c *Client) RecentOrderCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	if c == nil {
		return nil, errors.New("shopware: client is nil")
	}
	body := map[string]any{
		"limit":            1,
		"total-count-mode": 0,
		"filter": []map[string]any{
			{
				"type":       "range",
				"field":      "orderDate",
				"parameters": map[string]any{"gte": since.Format("2006-01-02")},
			},
		},
		"aggregations": []map[string]any{
			{
				"name":  "recent-orders",
				"type":  "terms",
				"field": "orderCustomer.customerId",
			},
		},
	}
	var out OrderAggregationResponse
	if err := c.searchWithRetry(ctx, "/api/search/order", body, &out); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, bucket := range out.Aggregations["recent-orders"].Buckets {
		counts[bucket.Key] = bucket.Count
	}
	return counts, nil
}

func (c *Client) searchWithRetry(ctx context.Context, path string, body any, out any) error {
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		statusCode, respBody, err := c.doSearch(ctx, path, payload)
		if err == nil && statusCode == http.StatusOK {
			return json.Unmarshal(respBody, out)
		}
		if statusCode == http.StatusUnauthorized {
			// Token expired server-side; force a refresh on the next attempt.
			c.mu.Lock()
			c.accessToken = ""
			c.mu.Unlock()
		}

		lastErr = err
		if !c.shouldRetry(statusCode, err) || attempt == maxAttempts {
			if err != nil {
				return err
			}
			return decodeAPIError(statusCode, respBody)
		}
		if err := sleepWithContext(ctx, c.retryDelay(attempt)); err != nil {
			return err
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return errors.New("shopware: request failed")
}

func (c *Client) doSearch(ctx context.Context, path string, payload []byte) (int, []byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return 0, nil, err
	}
	if err := c.wait(ctx); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if strings.TrimSpace(c.userAgent) != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// token returns a cached integration token, fetching a fresh one via
// the client-credentials grant when missing or close to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return c.accessToken, nil
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp.StatusCode, respBody)
	}

	var token tokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", errors.New("shopware: token response without access_token")
	}
	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) shouldRetry(statusCode int, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return true
	}
	if statusCode == http.StatusUnauthorized {
		return true
	}
	_, ok := c.retry.StatusCodes[statusCode]
	return ok
}

func (c *Client) retryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return c.retry.BaseDelay
	}
	delay := c.retry.BaseDelay << (attempt - 1)
	if delay > c.retry.MaxDelay {
		delay = c.retry.MaxDelay
	}
	if delay <= 0 {
		return 200 * time.Millisecond
	}
	return delay
}

func decodeAPIError(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Errors) > 0 {
		return &APIError{
			StatusCode: statusCode,
			Code:       apiErr.Errors[0].Code,
			Detail:     apiErr.Errors[0].Detail,
		}
	}
	return fmt.Errorf("shopware: http status %d", statusCode)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
