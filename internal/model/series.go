package model

import (
	"errors"
	"fmt"
)

// Price artifact columns, in file order after the date.
const (
	ColClose  = "Close"
	ColHigh   = "High"
	ColLow    = "Low"
	ColOpen   = "Open"
	ColVolume = "Volume"
)

// Derived columns appended by the merger.
const (
	ColMarketCap = "MarketCap"
	ColReturn    = "Return"
	// ColReturns is the return column of the price-only returns dataset.
	ColReturns = "Returns"
)

// PriceColumns is the fixed layout of a local price artifact.
var PriceColumns = []string{DateColumn, ColClose, ColHigh, ColLow, ColOpen, ColVolume}

// TimeSeriesRequest describes one metrics fetch. Treat it as immutable.
type TimeSeriesRequest struct {
	Asset       string
	Metrics     []string
	Start       Date
	End         Date
	Frequency   string
	Destination string
}

// Validate checks the request invariants that can be checked locally. The
// asset identifier is left to the remote service.
func (r TimeSeriesRequest) Validate() error {
	if r.Asset == "" {
		return errors.New("asset is required")
	}
	if len(r.Metrics) == 0 {
		return errors.New("at least one metric is required")
	}
	seen := make(map[string]bool, len(r.Metrics))
	for _, m := range r.Metrics {
		if m == "" {
			return errors.New("empty metric name")
		}
		if seen[m] {
			return fmt.Errorf("duplicate metric %q", m)
		}
		seen[m] = true
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("start %s is after end %s", r.Start, r.End)
	}
	if r.Frequency == "" {
		return errors.New("frequency is required")
	}
	return nil
}

func (r TimeSeriesRequest) String() string {
	return fmt.Sprintf("%s %v [%s..%s] %s", r.Asset, r.Metrics, r.Start, r.End, r.Frequency)
}

// TimeSeriesTable is the result of a successful fetch: one row per date and
// one column per field returned by the remote service.
type TimeSeriesTable struct {
	Request TimeSeriesRequest
	*Table
}

// PriceTable is a local price history loaded with the PriceColumns layout.
type PriceTable struct {
	Path string
	*Table
}

// MergedAssetTable is the outer join of a PriceTable with fetched tables,
// extended with MarketCap and Return.
type MergedAssetTable struct {
	Asset string
	*Table
}

// ReturnsTable is a PriceTable in date order with a Returns column.
type ReturnsTable struct {
	Asset string
	*Table
}
