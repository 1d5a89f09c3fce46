package shopware

import (
	"encoding/json"
	"fmt"
)

// Customer is the Admin API customer entity, reduced to the fields the
// pipeline reads. Partner-specific attributes live in CustomFields and
// are interpreted downstream by the normalizer, not here.
type Customer struct {
	ID                    string          `json:"id"`
	Active                bool            `json:"active"`
	CompanyName           string          `json:"company"`
	FirstName             string          `json:"firstName"`
	LastName              string          `json:"lastName"`
	Email                 string          `json:"email"`
	OrderCount            int             `json:"orderCount"`
	DefaultBillingAddress *BillingAddress `json:"defaultBillingAddress"`
	CustomFields          CustomFields    `json:"customFields"`
}

type BillingAddress struct {
	Zipcode     string  `json:"zipcode"`
	City        string  `json:"city"`
	PhoneNumber string  `json:"phoneNumber"`
	Country     Country `json:"country"`
}

type Country struct {
	ISO string `json:"iso"`
}

// CustomFields tolerates the loose typing of Shopware custom fields:
// values may arrive as bool, string or number depending on how the
// field was edited in the admin UI.
type CustomFields map[string]json.RawMessage

// Bool reports whether the field is present and a JSON boolean true.
// Any other value, including "true" as a string, counts as false.
func (f CustomFields) Bool(key string) bool {
	raw, ok := f[key]
	return ok && string(raw) == "true"
}

// String returns the field as a string, or "" when absent or not a
// JSON string.
func (f CustomFields) String(key string) string {
	raw, ok := f[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

type CustomerSearchResponse struct {
	Total int        `json:"total"`
	Data  []Customer `json:"data"`
}

type OrderAggregationResponse struct {
	Aggregations map[string]TermsAggregation `json:"aggregations"`
}

type TermsAggregation struct {
	Buckets []TermsBucket `json:"buckets"`
}

type TermsBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type apiErrorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Status string `json:"status"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e == nil {
		return "shopware: api error"
	}
	if e.Detail != "" {
		return "shopware: " + e.Detail
	}
	return fmt.Sprintf("shopware: http status %d", e.StatusCode)
}
