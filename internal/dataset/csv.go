package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"CryptoAnalysis/internal/model"

	"github.com/guregu/null/v6"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of decimals written for numeric cells.
const DefaultPrecision = 8

// ErrNoRows is returned when a fixed-layout artifact has no data rows left
// after the skipped lines.
var ErrNoRows = errors.New("no data rows")

// exactExponent is low enough for NewFromFloatWithExponent to keep every
// binary digit of a float64.
const exactExponent = -1074

// ReadOptions controls how a delimited artifact is loaded.
type ReadOptions struct {
	// SkipRows leading lines are discarded before parsing.
	SkipRows int
	// Names is the column layout, starting with the date column. When empty
	// the first row after the skipped lines is used as the header.
	Names []string
}

// ReadCSV loads a delimited file into a table of text columns. Any row that
// cannot be keyed by a date, or that has more fields than the layout, is an
// error; short rows are padded with missing cells. With a fixed layout, a
// file with nothing after the skipped lines fails with ErrNoRows.
func ReadCSV(path string, opts ReadOptions) (*model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Decode(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Decode is ReadCSV over an arbitrary reader.
func Decode(r io.Reader, opts ReadOptions) (*model.Table, error) {
	br := bufio.NewReader(r)
	for i := 0; i < opts.SkipRows; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("skip line %d: %w", i+1, err)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	names := opts.Names
	if len(names) == 0 {
		header, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		names = header
	}
	dateIdx := lo.IndexOf(lo.Map(names, func(n string, _ int) string { return strings.TrimSpace(n) }), model.DateColumn)
	if dateIdx < 0 {
		return nil, fmt.Errorf("layout %v has no %s column", names, model.DateColumn)
	}

	var (
		dates []model.Date
		cells = make([][]null.String, len(names))
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(rec) > len(names) {
			return nil, fmt.Errorf("line %d: %d fields, layout has %d", line+opts.SkipRows, len(rec), len(names))
		}
		if dateIdx >= len(rec) {
			return nil, fmt.Errorf("line %d: missing date", line+opts.SkipRows)
		}
		d, err := model.NormalizeDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+opts.SkipRows, err)
		}
		dates = append(dates, d)
		for j := range names {
			if j == dateIdx {
				continue
			}
			cell := null.String{}
			if j < len(rec) && rec[j] != "" {
				cell = null.StringFrom(rec[j])
			}
			cells[j] = append(cells[j], cell)
		}
	}

	if len(dates) == 0 && len(opts.Names) > 0 {
		return nil, ErrNoRows
	}

	t := model.NewTable(dates)
	for j, name := range names {
		if j == dateIdx {
			continue
		}
		col := &model.Column{Name: name, Kind: model.KindText, Text: cells[j]}
		if col.Text == nil {
			col.Text = make([]null.String, len(dates))
		}
		if err := t.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// WriteCSV writes t to path with a header row. The file is created or
// truncated and written in one pass.
func WriteCSV(path string, t *model.Table, precision int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, t, precision); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes t as CSV. Dates are rendered YYYY-MM-DD, numeric cells with
// precision fixed decimals, text verbatim and missing cells empty.
func Encode(w io.Writer, t *model.Table, precision int) error {
	cw := csv.NewWriter(w)
	header := append([]string{model.DateColumn}, t.ColumnNames()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for i, d := range t.Dates {
		rec[0] = d.String()
		for j, c := range t.Columns {
			rec[j+1] = formatCell(c, i, precision)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(c *model.Column, i, precision int) string {
	if c.IsMissing(i) {
		return ""
	}
	if c.Kind == model.KindText {
		return c.Text[i].String
	}
	return FormatFloat(c.Num[i].Float64, precision)
}

// FormatFloat renders v with a fixed number of decimals, rounding the exact
// binary value half to even like printf's %.*f.
func FormatFloat(v float64, precision int) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := decimal.NewFromFloatWithExponent(v, exactExponent).StringFixedBank(int32(precision))
	if math.Signbit(v) && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s
}
