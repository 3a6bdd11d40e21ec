package recorder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRecorder_RoundTrip(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.RecordFetch(&FetchEvent{
		Asset: "btc", Metrics: []string{"SplyCur"}, Source: "coinmetrics",
		Outcome: OutcomeOK, Attempts: 1, Rows: 2861, Artifact: "btc_total_supply.csv",
	}))
	require.NoError(t, r.RecordFetch(&FetchEvent{
		Asset: "btc", Metrics: []string{"AdrActCnt"}, Source: "coinmetrics",
		Outcome: OutcomeSoftFailure, Reason: "retries_exhausted", Attempts: 3, Error: "status 500",
	}))
	require.NoError(t, r.RecordFetch(&FetchEvent{
		Asset: "eth", Metrics: []string{"SplyCur"}, Outcome: OutcomeOK, Attempts: 1,
	}))

	counts, err := r.FetchOutcomes("btc")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{OutcomeOK: 1, OutcomeSoftFailure: 1}, counts)

	last, err := r.LastMerge("btc")
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, r.RecordMerge(&MergeEvent{
		Asset: "btc", PriceFile: "bitcoin_dataset.csv", OutputFile: "btc_full_dataset.csv",
		Tables: 1, Failed: 1, PriceRows: 2860, Rows: 2862,
	}))
	last, err = r.LastMerge("btc")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "btc_full_dataset.csv", last.OutputFile)
	assert.Equal(t, 2862, last.Rows)
	assert.Equal(t, 1, last.Failed)
}

func TestSQLiteRecorder_BadPath(t *testing.T) {
	_, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "missing", "dir", "runs.db"))
	assert.Error(t, err)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordFetch(&FetchEvent{}))
	assert.NoError(t, r.RecordMerge(&MergeEvent{}))
	assert.NoError(t, r.Close())
}
