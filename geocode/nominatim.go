package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim is the free OSM geocoder. Its usage policy allows one
// request per second, enforced through the limiter regardless of how
// many resolver workers call in.
type Nominatim struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

type NominatimOption func(*Nominatim)

func WithBaseURL(baseURL string) NominatimOption {
	return func(n *Nominatim) {
		if strings.TrimSpace(baseURL) != "" {
			n.baseURL = baseURL
		}
	}
}

func WithHTTPClient(client *http.Client) NominatimOption {
	return func(n *Nominatim) {
		if client != nil {
			n.httpClient = client
		}
	}
}

func WithUserAgent(userAgent string) NominatimOption {
	return func(n *Nominatim) {
		n.userAgent = userAgent
	}
}

func WithRateLimit(limit rate.Limit) NominatimOption {
	return func(n *Nominatim) {
		if limit > 0 {
			n.limiter = rate.NewLimiter(limit, 1)
		}
	}
}

func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:    DefaultNominatimURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  "partnermap-geocoder/0.1",
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{Found: false}, nil
	}
	if n == nil {
		return Result{}, errors.New("geocode: nominatim is nil")
	}
	if n.httpClient == nil {
		n.httpClient = http.DefaultClient
	}

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	endpoint := strings.TrimRight(n.baseURL, "/") + "/search"
	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(n.userAgent) != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("geocode: status %d", resp.StatusCode)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{Found: false}, nil
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Result{}, err
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Result{}, err
	}
	return Result{Lat: lat, Lng: lng, Found: true}, nil
}
