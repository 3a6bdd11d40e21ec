package merger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"CryptoAnalysis/internal/dataset"
	"CryptoAnalysis/internal/model"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const btcPrices = `Price,Close,High,Low,Open,Volume
Ticker,BTC-USD,BTC-USD,BTC-USD,BTC-USD,BTC-USD
Date,,,,,
2021-01-01,100,101,99,100,1000
2021-01-02,110,111,109,110,1000
2021-01-03,99,100,98,99,1000
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func fetched(metric string, rows map[string]string, order ...string) *model.TimeSeriesTable {
	dates := make([]model.Date, len(order))
	asset := model.NewTextColumn("asset", len(order))
	values := model.NewTextColumn(metric, len(order))
	for i, d := range order {
		dates[i] = model.MustDate(d)
		asset.Text[i] = null.StringFrom("btc")
		if v := rows[d]; v != "" {
			values.Text[i] = null.StringFrom(v)
		}
	}
	t := model.NewTable(dates)
	if err := t.AddColumn(asset); err != nil {
		panic(err)
	}
	if err := t.AddColumn(values); err != nil {
		panic(err)
	}
	return &model.TimeSeriesTable{
		Request: model.TimeSeriesRequest{Asset: "btc", Metrics: []string{metric}},
		Table:   t,
	}
}

func TestMerge_EndToEnd(t *testing.T) {
	pricePath := writeFile(t, "bitcoin_dataset.csv", btcPrices)
	supply := fetched("SplyCur", map[string]string{
		"2021-01-03": "19000000",
		"2021-01-04": "19000900",
	}, "2021-01-03", "2021-01-04")

	m := New(DefaultOptions())
	merged, err := m.Merge("btc", pricePath, []*model.TimeSeriesTable{supply})
	require.NoError(t, err)

	require.Equal(t, 4, merged.Len())
	assert.Equal(t, "btc", merged.Asset)
	assert.Equal(t,
		[]string{"Close", "High", "Low", "Open", "Volume", "asset", "SplyCur", "MarketCap", "Return"},
		merged.ColumnNames())

	mcap := merged.Column(model.ColMarketCap)
	for i, d := range merged.Dates {
		hasBoth := !merged.Column("Close").IsMissing(i) && !merged.Column("SplyCur").IsMissing(i)
		assert.Equal(t, hasBoth, !mcap.IsMissing(i), d.String())
	}
	row := merged.RowIndex(model.MustDate("2021-01-03"))
	require.GreaterOrEqual(t, row, 0)
	assert.InDelta(t, 99*19000000.0, mcap.Num[row].Float64, 1e-3)

	ret := merged.Column(model.ColReturn)
	assert.False(t, ret.Num[0].Valid)
	assert.InDelta(t, 0.10, ret.Num[1].Float64, 1e-12)
	assert.InDelta(t, -0.10, ret.Num[2].Float64, 1e-12)
	assert.False(t, ret.Num[3].Valid, "no close on the supply-only date")

	assert.Equal(t, model.KindText, supply.Column("SplyCur").Kind, "fetched table is not modified")
}

func TestMerge_MarketCapValue(t *testing.T) {
	prices := "h\nh\nh\n2023-05-01,50000,0,0,0,0\n2023-05-02,,0,0,0,0\n"
	pricePath := writeFile(t, "prices.csv", prices)
	supply := fetched("SplyCur", map[string]string{"2023-05-01": "19000000", "2023-05-02": "19000100"}, "2023-05-01", "2023-05-02")

	merged, err := New(DefaultOptions()).Merge("btc", pricePath, []*model.TimeSeriesTable{supply})
	require.NoError(t, err)

	mcap := merged.Column(model.ColMarketCap)
	require.True(t, mcap.Num[0].Valid)
	assert.InDelta(t, 9.5e11, mcap.Num[0].Float64, 1e-3)
	assert.False(t, mcap.Num[1].Valid, "missing close gives missing market cap")
}

func TestMerge_ChainedTablesSuffixOverlaps(t *testing.T) {
	pricePath := writeFile(t, "bitcoin_dataset.csv", btcPrices)
	supply := fetched("SplyCur", map[string]string{"2021-01-01": "1"}, "2021-01-01")
	active := fetched("AdrActCnt", map[string]string{"2021-01-05": "900000"}, "2021-01-05")

	merged, err := New(DefaultOptions()).Merge("btc", pricePath, []*model.TimeSeriesTable{supply, active})
	require.NoError(t, err)

	assert.Equal(t, 4, merged.Len())
	assert.Equal(t,
		[]string{"Close", "High", "Low", "Open", "Volume", "asset_x", "SplyCur", "asset_y", "AdrActCnt", "MarketCap", "Return"},
		merged.ColumnNames())
	assert.Equal(t, model.KindText, merged.Column("AdrActCnt").Kind, "only price and supply columns are coerced")
}

func TestMerge_WithoutSupplyTable(t *testing.T) {
	pricePath := writeFile(t, "bitcoin_dataset.csv", btcPrices)
	m := New(DefaultOptions())

	prices, err := m.LoadPrices(pricePath)
	require.NoError(t, err)
	merged, err := m.Combine("btc", prices, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, merged.Len())
	mcap := merged.Column(model.ColMarketCap)
	for i := 0; i < merged.Len(); i++ {
		assert.True(t, mcap.IsMissing(i))
	}
	assert.Equal(t, model.KindText, prices.Column("Close").Kind, "price table is not modified")
}

func TestMerge_PriceFileErrorsAreFatal(t *testing.T) {
	m := New(DefaultOptions())

	_, err := m.Merge("btc", filepath.Join(t.TempDir(), "missing.csv"), nil)
	assert.Error(t, err)

	bad := writeFile(t, "bad.csv", "h\nh\nh\nnot-a-date,1,2,3,4,5\n")
	_, err = m.Merge("btc", bad, nil)
	assert.Error(t, err)
}

func TestMerge_NewestFirstPricesWithoutTables(t *testing.T) {
	pricePath := writeFile(t, "prices.csv", "h\nh\nh\n2021-01-03,99,0,0,0,0\n2021-01-02,110,0,0,0,0\n2021-01-01,100,0,0,0,0\n")
	merged, err := New(DefaultOptions()).Merge("btc", pricePath, nil)
	require.NoError(t, err)

	require.Equal(t, 3, merged.Len())
	assert.Equal(t, "2021-01-01", merged.Dates[0].String())
	assert.Equal(t, "2021-01-03", merged.Dates[2].String())

	ret := merged.Column(model.ColReturn)
	assert.False(t, ret.Num[0].Valid)
	assert.InDelta(t, 0.10, ret.Num[1].Float64, 1e-12)
	assert.InDelta(t, -0.10, ret.Num[2].Float64, 1e-12)
}

func TestMerge_EmptyPriceFileIsFatal(t *testing.T) {
	m := New(DefaultOptions())
	for name, content := range map[string]string{
		"empty":        "",
		"headers only": "Price,Close\nTicker,BTC\nDate,,\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Merge("btc", writeFile(t, "prices.csv", content), nil)
			assert.ErrorIs(t, err, dataset.ErrNoRows)
		})
	}
}

func TestReturns_PriceOnlyDataset(t *testing.T) {
	pricePath := writeFile(t, "bitcoin_dataset.csv", "h\nh\nh\n2021-01-02,110,111,109,110,1000\n2021-01-01,100,101,99,100,1000\n2021-01-03,99,100,98,99,n/a\n")
	m := New(DefaultOptions())
	prices, err := m.LoadPrices(pricePath)
	require.NoError(t, err)

	r, err := m.Returns("btc", prices)
	require.NoError(t, err)
	assert.Equal(t, []string{"Close", "High", "Low", "Open", "Volume", "Returns"}, r.ColumnNames())
	assert.Equal(t, model.KindText, prices.Column("Close").Kind, "price table is not modified")

	out := filepath.Join(t.TempDir(), "bitcoin_dataset_with_returns.csv")
	require.NoError(t, m.SaveReturns(out, r))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t,
		"Date,Close,High,Low,Open,Volume,Returns\n"+
			"2021-01-01,100.00000000,101.00000000,99.00000000,100.00000000,1000.00000000,\n"+
			"2021-01-02,110.00000000,111.00000000,109.00000000,110.00000000,1000.00000000,0.10000000\n"+
			"2021-01-03,99.00000000,100.00000000,98.00000000,99.00000000,,-0.10000000\n",
		string(data))
}

func TestMerge_NonNumericPricesBecomeMissing(t *testing.T) {
	pricePath := writeFile(t, "prices.csv", "h\nh\nh\n2021-01-01,abc,1,1,1,1\n2021-01-02,10,1,1,1,1\n")
	merged, err := New(DefaultOptions()).Merge("btc", pricePath, nil)
	require.NoError(t, err)

	c := merged.Column("Close")
	assert.Equal(t, model.KindNumeric, c.Kind)
	assert.False(t, c.Num[0].Valid)
	assert.False(t, merged.Column("Return").Num[1].Valid)
}

func TestSave_WritesFixedPrecision(t *testing.T) {
	pricePath := writeFile(t, "bitcoin_dataset.csv", btcPrices)
	supply := fetched("SplyCur", map[string]string{"2021-01-03": "19000000"}, "2021-01-03")

	m := New(DefaultOptions())
	merged, err := m.Merge("btc", pricePath, []*model.TimeSeriesTable{supply})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "btc_full_dataset.csv")
	require.NoError(t, m.Save(out, merged))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Date,Close,High,Low,Open,Volume,asset,SplyCur,MarketCap,Return", lines[0])
	assert.Equal(t, "2021-01-01,100.00000000,101.00000000,99.00000000,100.00000000,1000.00000000,,,,", lines[1])
	assert.Equal(t, "2021-01-03,99.00000000,100.00000000,98.00000000,99.00000000,1000.00000000,btc,19000000.00000000,1881000000.00000000,-0.10000000", lines[3])
}

func TestNew_Defaults(t *testing.T) {
	m := New(Options{SkipRows: -1})
	assert.Equal(t, Options{SkipRows: 0, SupplyColumn: "SplyCur", Precision: 8}, m.Options())
}
