package model

import (
	"encoding/json"
	"time"
)

// RawCustomer is an as-fetched source payload, kept only for the daily
// archive so data-quality questions can be answered after the fact.
type RawCustomer struct {
	Source     string
	CustomerID string
	FetchedAt  time.Time
	Payload    json.RawMessage
}
