package geocode

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// Store is the durable keyed table behind the cache, one key per
// normalized address. Entries are only ever written or refreshed,
// never deleted, so the table stays monotonic across runs.
type Store struct {
	db *pebble.DB
}

func OpenStore(dir string) (*Store, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("geocode: open store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadAll reads the whole table into memory. The cache is small (one
// row per distinct partner address) and the run needs most of it.
func (s *Store) LoadAll() (map[string]Entry, error) {
	out := map[string]Entry{}
	if s == nil || s.db == nil {
		return out, nil
	}
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: iterate store: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var entry Entry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("geocode: decode entry %q: %w", iter.Key(), err)
		}
		out[string(iter.Key())] = entry
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("geocode: iterate store: %w", err)
	}
	return out, nil
}

// Upsert writes the given entries in one synced batch.
func (s *Store) Upsert(entries map[string]Entry) error {
	if s == nil || s.db == nil || len(entries) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for key, entry := range entries {
		value, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("geocode: encode entry %q: %w", key, err)
		}
		if err := batch.Set([]byte(key), value, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("geocode: commit batch: %w", err)
	}
	return nil
}
