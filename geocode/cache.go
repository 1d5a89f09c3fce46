package geocode

import (
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
)

// Entry is one row of the persistent address table. Unresolved entries
// are kept as negative cache hits so hopeless addresses are not thrown
// at the provider on every run.
type Entry struct {
	Query      string    `json:"query"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Status     Status    `json:"status"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Key builds the normalized cache key for an address. Case and
// whitespace differences between runs must not produce distinct keys.
func Key(postalCode, city, country string) string {
	parts := []string{normalizePart(postalCode), normalizePart(city), normalizePart(country)}
	return strings.Join(parts, "|")
}

func normalizePart(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// Table is the in-memory working copy of the cache for one run. It is
// bulk-loaded from the store before resolution starts and written back
// after; concurrent resolver workers merge results through Put under a
// single lock.
type Table struct {
	mu      sync.Mutex
	entries map[string]Entry
	dirty   map[string]struct{}
}

func NewTable(entries map[string]Entry) *Table {
	if entries == nil {
		entries = map[string]Entry{}
	}
	return &Table{
		entries: entries,
		dirty:   map[string]struct{}{},
	}
}

func (t *Table) Get(key string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key]
	return entry, ok
}

func (t *Table) Put(key string, entry Entry) {
	if t == nil || key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = entry
	t.dirty[key] = struct{}{}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// DirtyEntries returns the entries written during this run, for the
// incremental upsert back into the store.
func (t *Table) DirtyEntries() map[string]Entry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Entry, len(t.dirty))
	for key := range t.dirty {
		out[key] = t.entries[key]
	}
	return out
}
