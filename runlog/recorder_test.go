package runlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, dir string) []RunRecord {
	t.Helper()
	names, err := filepath.Glob(filepath.Join(dir, "run-*.json"))
	require.NoError(t, err)
	out := make([]RunRecord, 0, len(names))
	for _, name := range names {
		payload, err := os.ReadFile(name)
		require.NoError(t, err)
		var record RunRecord
		require.NoError(t, json.Unmarshal(payload, &record))
		out = append(out, record)
	}
	return out
}

func TestStartAndFinish(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)

	record, err := recorder.Start(time.Date(2026, 8, 31, 4, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, StatusStarted, record.Status)

	metrics := map[string]int64{"partners": 42, "geocode_failed": 1}
	require.NoError(t, recorder.Finish(record, metrics, nil))

	records := readRecords(t, dir)
	require.Len(t, records, 1)
	assert.Equal(t, StatusCompleted, records[0].Status)
	assert.EqualValues(t, 42, records[0].Metrics["partners"])
	assert.Empty(t, records[0].Error)
}

func TestFinishKeepsError(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)

	record, err := recorder.Start(time.Now())
	require.NoError(t, err)
	require.NoError(t, recorder.Finish(record, nil, errors.New("source fetch failed")))

	records := readRecords(t, dir)
	require.Len(t, records, 1)
	assert.Equal(t, StatusFailed, records[0].Status)
	assert.Equal(t, "source fetch failed", records[0].Error)
}

func TestRecorderRequiresDirectory(t *testing.T) {
	recorder := NewRecorder("")
	_, err := recorder.Start(time.Now())
	assert.Error(t, err)
}
