package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"partnermap/model"
)

type Meta struct {
	RunAt        time.Time `json:"run_at"`
	Source       string    `json:"source"`
	PartnerCount int       `json:"partner_count"`
}

type Output struct {
	Meta     Meta            `json:"meta"`
	Partners []model.Partner `json:"partners"`
}

// Decision is the publish signal for the external commit step. The
// comparison is semantic: meta carries a fresh timestamp every run and
// must not count as a change.
type Decision struct {
	Changed bool     `json:"changed"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Updated []string `json:"updated,omitempty"`
}

// Sort orders partners by identifier so the artifact is deterministic
// and diff-friendly, independent of resolution order.
func Sort(partners []model.Partner) {
	sort.Slice(partners, func(i, j int) bool {
		return partners[i].ID < partners[j].ID
	})
}

// Write serializes the partner list to path via a temp file and rename,
// so a crashed run never leaves a torn artifact behind.
func Write(path string, meta Meta, partners []model.Partner) error {
	meta.PartnerCount = len(partners)
	payload, err := json.MarshalIndent(Output{Meta: meta, Partners: partners}, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode: %w", err)
	}
	return writeAtomic(path, append(payload, '\n'))
}

// LoadPrevious reads the partner list of the prior revision. A missing
// file is not an error; it means everything counts as added.
func LoadPrevious(path string) ([]model.Partner, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out Output
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("artifact: decode previous revision: %w", err)
	}
	return out.Partners, nil
}

// Compare diffs two partner sets by identifier and visible fields.
func Compare(previous, current []model.Partner) (Decision, error) {
	prevByID := map[string]model.Partner{}
	for _, partner := range previous {
		prevByID[partner.ID] = partner
	}
	currByID := map[string]model.Partner{}
	for _, partner := range current {
		currByID[partner.ID] = partner
	}

	var decision Decision
	for id, partner := range currByID {
		prev, ok := prevByID[id]
		if !ok {
			decision.Added = append(decision.Added, id)
			continue
		}
		same, err := equalPartners(prev, partner)
		if err != nil {
			return Decision{}, err
		}
		if !same {
			decision.Updated = append(decision.Updated, id)
		}
	}
	for id := range prevByID {
		if _, ok := currByID[id]; !ok {
			decision.Removed = append(decision.Removed, id)
		}
	}

	sort.Strings(decision.Added)
	sort.Strings(decision.Removed)
	sort.Strings(decision.Updated)
	decision.Changed = len(decision.Added)+len(decision.Removed)+len(decision.Updated) > 0
	return decision, nil
}

// WriteDecision persists the publish signal next to the artifact.
func WriteDecision(path string, decision Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("artifact: encode decision: %w", err)
	}
	return writeAtomic(path, append(payload, '\n'))
}

// Hash fingerprints the canonical partner list, for run bookkeeping.
func Hash(partners []model.Partner) (string, error) {
	sorted := append([]model.Partner(nil), partners...)
	Sort(sorted)
	payload, err := json.Marshal(sorted)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func equalPartners(a, b model.Partner) (bool, error) {
	left, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return string(left) == string(right), nil
}

func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
