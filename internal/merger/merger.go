package merger

import (
	"fmt"

	"CryptoAnalysis/internal/calculator"
	"CryptoAnalysis/internal/dataset"
	"CryptoAnalysis/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSkipRows     = 3
	DefaultSupplyColumn = "SplyCur"
)

// Options configures a Merger.
type Options struct {
	// SkipRows leading lines of the price artifact are discarded.
	SkipRows int
	// SupplyColumn is multiplied with Close to get MarketCap.
	SupplyColumn string
	// Precision is the number of decimals written for numeric cells.
	Precision int
}

// Merger joins local price history with fetched metric tables.
type Merger struct {
	opts   Options
	logger zerolog.Logger
}

// DefaultOptions skips 3 lines, uses SplyCur as supply and writes 8 decimals.
func DefaultOptions() Options {
	return Options{SkipRows: DefaultSkipRows, SupplyColumn: DefaultSupplyColumn, Precision: dataset.DefaultPrecision}
}

// New creates a Merger. An empty supply column or a non-positive precision
// takes the default.
func New(opts Options) *Merger {
	if opts.SkipRows < 0 {
		opts.SkipRows = 0
	}
	if opts.SupplyColumn == "" {
		opts.SupplyColumn = DefaultSupplyColumn
	}
	if opts.Precision <= 0 {
		opts.Precision = dataset.DefaultPrecision
	}
	return &Merger{opts: opts, logger: log.With().Str("component", "merger").Logger()}
}

// Options returns the effective options.
func (m *Merger) Options() Options { return m.opts }

// LoadPrices reads a price artifact with the fixed PriceColumns layout. A
// missing or malformed file is an error.
func (m *Merger) LoadPrices(path string) (*model.PriceTable, error) {
	t, err := dataset.ReadCSV(path, dataset.ReadOptions{SkipRows: m.opts.SkipRows, Names: model.PriceColumns})
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	return &model.PriceTable{Path: path, Table: t}, nil
}

// Merge loads the price artifact and combines it with tables.
func (m *Merger) Merge(asset, pricePath string, tables []*model.TimeSeriesTable) (*model.MergedAssetTable, error) {
	prices, err := m.LoadPrices(pricePath)
	if err != nil {
		return nil, err
	}
	return m.Combine(asset, prices, tables)
}

// Combine outer-joins prices with every table in order on the date key,
// coerces the price and supply columns to numbers and appends MarketCap and
// Return. The inputs are not modified.
func (m *Merger) Combine(asset string, prices *model.PriceTable, tables []*model.TimeSeriesTable) (*model.MergedAssetTable, error) {
	parts := make([]*model.Table, len(tables))
	for i, t := range tables {
		parts[i] = t.Table
	}
	joined, err := dataset.JoinAll(prices.Table, parts...)
	if err != nil {
		return nil, err
	}

	numeric := []string{model.ColClose, model.ColHigh, model.ColLow, model.ColOpen, model.ColVolume, m.opts.SupplyColumn}
	if skipped := dataset.ToNumeric(joined, numeric...); len(skipped) > 0 {
		m.logger.Warn().Str("asset", asset).Strs("columns", skipped).Msg("columns absent from merged table")
	}

	closes := joined.Column(model.ColClose)
	if closes == nil {
		return nil, fmt.Errorf("merged table has no %s column", model.ColClose)
	}

	mcap := model.NewNumericColumn(model.ColMarketCap, joined.Len())
	if supply := joined.Column(m.opts.SupplyColumn); supply != nil {
		if mcap.Num, err = calculator.MarketCap(closes.Num, supply.Num); err != nil {
			return nil, err
		}
	}
	if err := joined.AddColumn(mcap); err != nil {
		return nil, err
	}

	ret := model.NewNumericColumn(model.ColReturn, joined.Len())
	ret.Num = calculator.PctChange(closes.Num)
	if err := joined.AddColumn(ret); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("asset", asset).
		Int("price_rows", prices.Len()).
		Int("tables", len(tables)).
		Int("rows", joined.Len()).
		Msg("merged")
	return &model.MergedAssetTable{Asset: asset, Table: joined}, nil
}

// Returns sorts prices by date, coerces the price columns to numbers and
// appends Returns, the change of Close from the previous row. prices is not
// modified.
func (m *Merger) Returns(asset string, prices *model.PriceTable) (*model.ReturnsTable, error) {
	t := dataset.SortByDate(prices.Table)
	dataset.ToNumeric(t, model.ColClose, model.ColHigh, model.ColLow, model.ColOpen, model.ColVolume)

	closes := t.Column(model.ColClose)
	if closes == nil {
		return nil, fmt.Errorf("price table has no %s column", model.ColClose)
	}
	ret := model.NewNumericColumn(model.ColReturns, t.Len())
	ret.Num = calculator.PctChange(closes.Num)
	if err := t.AddColumn(ret); err != nil {
		return nil, err
	}
	return &model.ReturnsTable{Asset: asset, Table: t}, nil
}

// Save writes merged to path.
func (m *Merger) Save(path string, merged *model.MergedAssetTable) error {
	return m.save(merged.Asset, path, merged.Table)
}

// SaveReturns writes r to path.
func (m *Merger) SaveReturns(path string, r *model.ReturnsTable) error {
	return m.save(r.Asset, path, r.Table)
}

func (m *Merger) save(asset, path string, t *model.Table) error {
	if err := dataset.WriteCSV(path, t, m.opts.Precision); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	m.logger.Info().Str("asset", asset).Str("path", path).Msg("saved")
	return nil
}
