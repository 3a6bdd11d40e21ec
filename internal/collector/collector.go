package collector

import (
	"context"
	"fmt"
	"sync"

	"CryptoAnalysis/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MetricGroup is a set of metrics fetched together into one artifact.
type MetricGroup struct {
	Metrics []string
	File    string
}

// Window is the date range and sampling frequency shared by every request.
type Window struct {
	Start     model.Date
	End       model.Date
	Frequency string
}

// Result is the outcome of one metric group. Exactly one of Table and Err
// is set.
type Result struct {
	Request model.TimeSeriesRequest
	Table   *model.TimeSeriesTable
	Err     error
}

// OK reports whether the fetch produced a table.
func (r Result) OK() bool { return r.Err == nil && r.Table != nil }

// Collector runs the metric groups of an asset through a Fetcher.
type Collector struct {
	Fetcher Fetcher
	Window  Window
	logger  zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, window Window) *Collector {
	return &Collector{
		Fetcher: fetcher,
		Window:  window,
		logger:  log.With().Str("component", "collector").Str("source", fetcher.Name()).Logger(),
	}
}

// Request builds the request for one metric group of asset.
func (c *Collector) Request(asset string, group MetricGroup) model.TimeSeriesRequest {
	return model.TimeSeriesRequest{
		Asset:       asset,
		Metrics:     append([]string(nil), group.Metrics...),
		Start:       c.Window.Start,
		End:         c.Window.End,
		Frequency:   c.Window.Frequency,
		Destination: group.File,
	}
}

// Collect fetches every group of asset in order, one request at a time.
// Soft failures are logged and kept in the returned results; any other error
// stops the collection and is returned.
func (c *Collector) Collect(ctx context.Context, asset string, groups []MetricGroup) ([]Result, error) {
	results := make([]Result, 0, len(groups))
	for _, g := range groups {
		req := c.Request(asset, g)
		table, err := c.Fetcher.Fetch(ctx, req)
		if err != nil {
			if !IsSoftFailure(err) {
				return results, fmt.Errorf("fetch %s %v: %w", asset, g.Metrics, err)
			}
			c.logger.Warn().Err(err).Str("asset", asset).Strs("metrics", g.Metrics).Msg("continuing without metric group")
			results = append(results, Result{Request: req, Err: err})
			continue
		}
		results = append(results, Result{Request: req, Table: table})
	}
	return results, nil
}

// Tables returns the tables of the successful results, in order.
func Tables(results []Result) []*model.TimeSeriesTable {
	var out []*model.TimeSeriesTable
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Table)
		}
	}
	return out
}

// MockFetcher returns canned tables or errors keyed by asset and first
// metric. Unknown keys fail as exhausted retries.
type MockFetcher struct {
	Tables map[string]*model.Table
	Errors map[string]error

	mu    sync.Mutex
	Calls []model.TimeSeriesRequest
}

// MockKey builds the lookup key used by MockFetcher.
func MockKey(asset, metric string) string { return asset + "/" + metric }

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Fetch(_ context.Context, req model.TimeSeriesRequest) (*model.TimeSeriesTable, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	key := MockKey(req.Asset, req.Metrics[0])
	if err, ok := m.Errors[key]; ok {
		return nil, err
	}
	t, ok := m.Tables[key]
	if !ok {
		return nil, &FetchError{
			Asset:    req.Asset,
			Metrics:  req.Metrics,
			Reason:   ReasonRetriesExhausted,
			Attempts: 1,
			Err:      fmt.Errorf("no canned table for %s", key),
		}
	}
	return &model.TimeSeriesTable{Request: req, Table: t}, nil
}
