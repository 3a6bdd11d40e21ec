package model

import (
	"fmt"

	"github.com/guregu/null/v6"
)

// DateColumn is the name of the key column in every persisted table.
const DateColumn = "Date"

// Kind tells how a column stores its cells.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
)

// Column is a named column of a Table. Exactly one of Text or Num is used,
// depending on Kind. Missing cells are null.
type Column struct {
	Name string
	Kind Kind
	Text []null.String
	Num  []null.Float
}

// NewTextColumn creates an all-missing text column of length n.
func NewTextColumn(name string, n int) *Column {
	return &Column{Name: name, Kind: KindText, Text: make([]null.String, n)}
}

// NewNumericColumn creates an all-missing numeric column of length n.
func NewNumericColumn(name string, n int) *Column {
	return &Column{Name: name, Kind: KindNumeric, Num: make([]null.Float, n)}
}

func (c *Column) Len() int {
	if c.Kind == KindNumeric {
		return len(c.Num)
	}
	return len(c.Text)
}

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == KindNumeric {
		return !c.Num[i].Valid
	}
	return !c.Text[i].Valid
}

// Table is a date-keyed, column-oriented table. Row i is Dates[i] together
// with cell i of every column.
type Table struct {
	Dates   []Date
	Columns []*Column
}

// NewTable creates an empty table with the given dates.
func NewTable(dates []Date) *Table {
	return &Table{Dates: dates}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Dates) }

// Column returns the column named name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// HasColumn reports whether a column named name exists.
func (t *Table) HasColumn(name string) bool { return t.Column(name) != nil }

// ColumnNames returns the non-key column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AddColumn appends c. It fails if the name is taken or the length differs
// from the table's row count; existing columns are never overwritten.
func (t *Table) AddColumn(c *Column) error {
	if c.Name == DateColumn || t.HasColumn(c.Name) {
		return fmt.Errorf("column %q already exists", c.Name)
	}
	if c.Len() != t.Len() {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.Len())
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// DateSet returns the distinct dates of the table.
func (t *Table) DateSet() map[Date]struct{} {
	set := make(map[Date]struct{}, len(t.Dates))
	for _, d := range t.Dates {
		set[d] = struct{}{}
	}
	return set
}

// RowIndex returns the index of the first row keyed by d, or -1.
func (t *Table) RowIndex(d Date) int {
	for i, rd := range t.Dates {
		if rd == d {
			return i
		}
	}
	return -1
}
