package dataset

import (
	"fmt"
	"sort"

	"CryptoAnalysis/internal/model"

	"github.com/samber/lo"
)

// Suffixes applied to non-key columns present on both sides of a join.
const (
	LeftSuffix  = "_x"
	RightSuffix = "_y"
)

// OuterJoin combines left and right on the date key. The result holds every
// date of either side in ascending order; cells of the side lacking a date
// are missing. A date repeated on both sides yields every pairing of its
// rows. Neither input is modified.
func OuterJoin(left, right *model.Table) (*model.Table, error) {
	lrows := groupRows(left)
	rrows := groupRows(right)

	keys := lo.Uniq(append(append([]model.Date(nil), left.Dates...), right.Dates...))
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	absent := []int{-1}
	var (
		dates []model.Date
		lidx  []int
		ridx  []int
	)
	for _, d := range keys {
		ls, ok := lrows[d]
		if !ok {
			ls = absent
		}
		rs, ok := rrows[d]
		if !ok {
			rs = absent
		}
		for _, l := range ls {
			for _, r := range rs {
				dates = append(dates, d)
				lidx = append(lidx, l)
				ridx = append(ridx, r)
			}
		}
	}

	overlap := make(map[string]bool)
	for _, c := range left.Columns {
		if right.HasColumn(c.Name) {
			overlap[c.Name] = true
		}
	}

	out := model.NewTable(dates)
	for _, c := range left.Columns {
		name := c.Name
		if overlap[name] {
			name += LeftSuffix
		}
		if err := out.AddColumn(gather(c, name, lidx)); err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
	}
	for _, c := range right.Columns {
		name := c.Name
		if overlap[name] {
			name += RightSuffix
		}
		if err := out.AddColumn(gather(c, name, ridx)); err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
	}
	return out, nil
}

// JoinAll folds OuterJoin over tables from left to right. The result is in
// ascending date order even when tables is empty, and never shares columns
// with base.
func JoinAll(base *model.Table, tables ...*model.Table) (*model.Table, error) {
	if len(tables) == 0 {
		return SortByDate(base), nil
	}
	acc := base
	for _, t := range tables {
		next, err := OuterJoin(acc, t)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// SortByDate returns a copy of t with rows in ascending date order. Rows
// sharing a date keep their relative order.
func SortByDate(t *model.Table) *model.Table {
	idx := lo.Range(t.Len())
	sort.SliceStable(idx, func(a, b int) bool { return t.Dates[idx[a]].Before(t.Dates[idx[b]]) })

	out := model.NewTable(lo.Map(idx, func(i, _ int) model.Date { return t.Dates[i] }))
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, gather(c, c.Name, idx))
	}
	return out
}

func groupRows(t *model.Table) map[model.Date][]int {
	return lo.GroupBy(lo.Range(t.Len()), func(i int) model.Date { return t.Dates[i] })
}

// gather builds a column named name whose row k is c's row idx[k], or
// missing when idx[k] is -1.
func gather(c *model.Column, name string, idx []int) *model.Column {
	if c.Kind == model.KindNumeric {
		out := model.NewNumericColumn(name, len(idx))
		for k, i := range idx {
			if i >= 0 {
				out.Num[k] = c.Num[i]
			}
		}
		return out
	}
	out := model.NewTextColumn(name, len(idx))
	for k, i := range idx {
		if i >= 0 {
			out.Text[k] = c.Text[i]
		}
	}
	return out
}
