package collector

import (
	"context"
	"errors"
	"testing"

	"CryptoAnalysis/internal/model"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supplyTable() *model.Table {
	t := model.NewTable([]model.Date{model.MustDate("2021-01-01")})
	c := model.NewTextColumn("SplyCur", 1)
	c.Text[0] = null.StringFrom("18587431.25")
	if err := t.AddColumn(c); err != nil {
		panic(err)
	}
	return t
}

func testWindow() Window {
	return Window{Start: model.MustDate("2018-01-01"), End: model.MustDate("2025-10-31"), Frequency: "1d"}
}

func TestCollect_KeepsSoftFailures(t *testing.T) {
	mock := &MockFetcher{
		Tables: map[string]*model.Table{MockKey("btc", "SplyCur"): supplyTable()},
		Errors: map[string]error{
			MockKey("btc", "AdrActCnt"): &FetchError{Asset: "btc", Reason: ReasonMalformedResponse, Err: errors.New("no data")},
		},
	}
	col := NewCollector(mock, testWindow())

	results, err := col.Collect(context.Background(), "btc", []MetricGroup{
		{Metrics: []string{"SplyCur"}, File: "btc_total_supply.csv"},
		{Metrics: []string{"AdrActCnt"}, File: "btc_active_addresses.csv"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.ErrorIs(t, results[1].Err, ErrMalformedResponse)

	tables := Tables(results)
	require.Len(t, tables, 1)
	assert.Equal(t, "btc_total_supply.csv", tables[0].Request.Destination)

	require.Len(t, mock.Calls, 2)
	assert.Equal(t, "1d", mock.Calls[1].Frequency)
	assert.Equal(t, "2018-01-01", mock.Calls[1].Start.String())
}

func TestCollect_StopsOnHardError(t *testing.T) {
	mock := &MockFetcher{
		Errors: map[string]error{MockKey("eth", "SplyCur"): errors.New("disk full")},
	}
	col := NewCollector(mock, testWindow())

	_, err := col.Collect(context.Background(), "eth", []MetricGroup{
		{Metrics: []string{"SplyCur"}, File: "eth_total_supply.csv"},
		{Metrics: []string{"AdrActCnt"}, File: "eth_active_addresses.csv"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, mock.Calls, 1)
}

func TestCollector_RequestCopiesMetrics(t *testing.T) {
	col := NewCollector(&MockFetcher{}, testWindow())
	group := MetricGroup{Metrics: []string{"SplyCur"}, File: "x.csv"}
	req := col.Request("btc", group)
	group.Metrics[0] = "changed"
	assert.Equal(t, []string{"SplyCur"}, req.Metrics)
}

func TestFetchError_Message(t *testing.T) {
	err := &FetchError{Asset: "btc", Metrics: []string{"SplyCur"}, Reason: ReasonRetriesExhausted, Attempts: 3, Err: errors.New("status 500")}
	assert.Equal(t, "fetch btc [SplyCur]: retries_exhausted after 3 attempt(s): status 500", err.Error())
}
