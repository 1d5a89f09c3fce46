package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partnermap/model"
)

func samplePartners() []model.Partner {
	return []model.Partner{
		{
			ID:           "shopware:a",
			Name:         "Smith & Co",
			PostalCode:   "10115",
			City:         "Berlin",
			Country:      "DE",
			Services:     []model.Service{model.ServiceHoofShoeing},
			Contact:      model.Contact{Email: "smith@example.com"},
			Location:     &model.Coordinates{Lat: 52.52, Lng: 13.40},
			Badge:        model.BadgeTopPartner,
			BadgeTooltip: "Sehr aktiver Partner mit vielen Bestellungen in den letzten Monaten.",
		},
		{
			ID:           "shopware:b",
			Name:         "Huber Hufpflege",
			Badge:        model.BadgeNewPartner,
			BadgeTooltip: "Neu dabei: dieser Partner hat noch keine Bestellungen abgeschlossen.",
			NoLocation:   true,
		},
	}
}

func TestWriteAndLoadPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partners.json")
	partners := samplePartners()

	require.NoError(t, Write(path, Meta{RunAt: time.Now(), Source: "shopware"}, partners))

	loaded, err := LoadPrevious(path)
	require.NoError(t, err)
	assert.Equal(t, partners, loaded)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestLoadPreviousMissingFile(t *testing.T) {
	loaded, err := LoadPrevious(filepath.Join(t.TempDir(), "partners.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestCompareIgnoresVolatileMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partners.json")
	partners := samplePartners()

	require.NoError(t, Write(path, Meta{RunAt: time.Date(2026, 8, 30, 4, 30, 0, 0, time.UTC), Source: "shopware"}, partners))

	// Second run, identical data, different run timestamp.
	previous, err := LoadPrevious(path)
	require.NoError(t, err)
	decision, err := Compare(previous, samplePartners())
	require.NoError(t, err)
	assert.False(t, decision.Changed, "identical partner sets must report no change")
	assert.Empty(t, decision.Added)
	assert.Empty(t, decision.Removed)
	assert.Empty(t, decision.Updated)
}

func TestCompareSummarizesChanges(t *testing.T) {
	previous := samplePartners()
	current := samplePartners()

	// Update a, remove b, add c.
	current[0].City = "Potsdam"
	current = current[:1]
	current = append(current, model.Partner{ID: "shopware:c", Name: "Neu"})

	decision, err := Compare(previous, current)
	require.NoError(t, err)
	assert.True(t, decision.Changed)
	assert.Equal(t, []string{"shopware:c"}, decision.Added)
	assert.Equal(t, []string{"shopware:b"}, decision.Removed)
	assert.Equal(t, []string{"shopware:a"}, decision.Updated)
}

func TestSortStableByID(t *testing.T) {
	partners := []model.Partner{{ID: "shopware:b"}, {ID: "shopware:a"}, {ID: "shopware:c"}}
	Sort(partners)
	assert.Equal(t, "shopware:a", partners[0].ID)
	assert.Equal(t, "shopware:b", partners[1].ID)
	assert.Equal(t, "shopware:c", partners[2].ID)
}

func TestHashIndependentOfOrder(t *testing.T) {
	partners := samplePartners()
	reversed := []model.Partner{partners[1], partners[0]}

	left, err := Hash(partners)
	require.NoError(t, err)
	right, err := Hash(reversed)
	require.NoError(t, err)
	assert.Equal(t, left, right)
}

// The serialized artifact must never leak order counts or order dates;
// they exist only as classifier inputs.
func TestArtifactCarriesNoOrderData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partners.json")
	require.NoError(t, Write(path, Meta{RunAt: time.Now(), Source: "shopware"}, samplePartners()))

	payload, err := os.ReadFile(path)
	require.NoError(t, err)

	var out Output
	require.NoError(t, json.Unmarshal(payload, &out))
	for _, partner := range out.Partners {
		raw, err := json.Marshal(partner)
		require.NoError(t, err)
		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		for key := range fields {
			assert.NotContains(t, strings.ToLower(key), "order", "partner field %q leaks order data", key)
		}
	}
	assert.NotContains(t, strings.ToLower(string(payload)), `"order`)
}

func TestWriteDecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publish_decision.json")
	require.NoError(t, WriteDecision(path, Decision{Changed: true, Added: []string{"shopware:c"}}))

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	var decision Decision
	require.NoError(t, json.Unmarshal(payload, &decision))
	assert.True(t, decision.Changed)
	assert.Equal(t, []string{"shopware:c"}, decision.Added)
}
