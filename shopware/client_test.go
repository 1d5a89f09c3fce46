package shopware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/time/rate"
)

type fakeShop struct {
	customers   []Customer
	pageSize    int
	tokenCalls  atomic.Int64
	searchCalls atomic.Int64
	failFirst   atomic.Int64 // N search requests answered with 429 before succeeding
	alwaysFail  bool
}

func (f *fakeShop) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["grant_type"] != "client_credentials" || body["client_id"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   600,
		})
	})
	mux.HandleFunc("/api/search/customer", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":[{"code":"9","detail":"invalid token"}]}`))
			return
		}
		if f.alwaysFail || f.failFirst.Load() > 0 {
			f.failFirst.Add(-1)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var body struct {
			Page  int `json:"page"`
			Limit int `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		start := (body.Page - 1) * body.Limit
		end := start + body.Limit
		if start > len(f.customers) {
			start = len(f.customers)
		}
		if end > len(f.customers) {
			end = len(f.customers)
		}
		_ = json.NewEncoder(w).Encode(CustomerSearchResponse{
			Total: len(f.customers),
			Data:  f.customers[start:end],
		})
	})
	mux.HandleFunc("/api/search/order", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(OrderAggregationResponse{
			Aggregations: map[string]TermsAggregation{
				"recent-orders": {Buckets: []TermsBucket{{Key: "c-1", Count: 6}}},
			},
		})
	})
	return mux
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		StatusCodes: map[int]struct{}{429: {}, 500: {}, 502: {}, 503: {}, 504: {}},
	}
}

func makeCustomers(n int) []Customer {
	out := make([]Customer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Customer{ID: fmt.Sprintf("c-%d", i+1)})
	}
	return out
}

func TestCustomerPagesWalksFullResultSet(t *testing.T) {
	shop := &fakeShop{customers: makeCustomers(25)}
	server := httptest.NewServer(shop.handler())
	defer server.Close()

	client := NewClient(server.URL, "id", "secret",
		WithRateLimit(rate.Inf),
		WithRetryConfig(fastRetry()),
	)

	var seen []string
	var pages int
	err := client.CustomerPages(context.Background(), 10, func(resp *CustomerSearchResponse) error {
		pages++
		for _, customer := range resp.Data {
			seen = append(seen, customer.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 25)
	assert.Equal(t, "c-1", seen[0])
	assert.Equal(t, "c-25", seen[24])
	assert.EqualValues(t, 1, shop.tokenCalls.Load(), "token is fetched once and reused")
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	shop := &fakeShop{customers: makeCustomers(2)}
	shop.failFirst.Store(2)
	server := httptest.NewServer(shop.handler())
	defer server.Close()

	client := NewClient(server.URL, "id", "secret",
		WithRateLimit(rate.Inf),
		WithRetryConfig(fastRetry()),
	)

	resp, err := client.SearchCustomers(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	assert.EqualValues(t, 3, shop.searchCalls.Load())
}

func TestSearchFailsAfterRetryCeiling(t *testing.T) {
	shop := &fakeShop{customers: makeCustomers(2), alwaysFail: true}
	server := httptest.NewServer(shop.handler())
	defer server.Close()

	client := NewClient(server.URL, "id", "secret",
		WithRateLimit(rate.Inf),
		WithRetryConfig(fastRetry()),
	)

	_, err := client.SearchCustomers(context.Background(), 1, 10)
	require.Error(t, err)
	assert.EqualValues(t, 3, shop.searchCalls.Load(), "ceiling of three attempts")
}

func TestRecentOrderCounts(t *testing.T) {
	shop := &fakeShop{}
	server := httptest.NewServer(shop.handler())
	defer server.Close()

	client := NewClient(server.URL, "id", "secret", WithRateLimit(rate.Inf))

	counts, err := client.RecentOrderCounts(context.Background(), time.Now().AddDate(0, -10, 0))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c-1": 6}, counts)
}

func TestCustomFieldsDecoding(t *testing.T) {
	var customer Customer
	payload := []byte(`{
		"id": "c-1",
		"customFields": {
			"partner_listing": true,
			"partner_plz": "10115",
			"partner_hufschuhe": "true",
			"partner_sort": 3
		}
	}`)
	require.NoError(t, json.Unmarshal(payload, &customer))

	assert.True(t, customer.CustomFields.Bool("partner_listing"))
	assert.Equal(t, "10115", customer.CustomFields.String("partner_plz"))
	assert.False(t, customer.CustomFields.Bool("partner_hufschuhe"), "string true is not boolean true")
	assert.False(t, customer.CustomFields.Bool("partner_sort"))
	assert.Equal(t, "", customer.CustomFields.String("partner_sort"))
	assert.False(t, customer.CustomFields.Bool("missing"))
}
