package store

import (
	"fmt"
	"strings"

	"github.com/jonathan/credit-applier/internal/types"
)

// Columns maps the record fields to header labels of the source sheet.
type Columns struct {
	Name   string
	ByKind map[types.Kind]string
}

// DefaultColumns returns the header labels used by the source spreadsheet.
func DefaultColumns() Columns {
	cols := Columns{
		Name:   types.NameColumn,
		ByKind: make(map[types.Kind]string),
	}
	for _, c := range types.Categories() {
		cols.ByKind[c.Kind] = c.Column
	}
	return cols
}

// WithOverrides returns a copy with labels replaced by the non-empty entries of overrides.
// Keys are "full_name" or a category kind.
func (c Columns) WithOverrides(overrides map[string]string) Columns {
	out := Columns{Name: c.Name, ByKind: make(map[types.Kind]string, len(c.ByKind))}
	for k, v := range c.ByKind {
		out.ByKind[k] = v
	}
	for key, label := range overrides {
		if strings.TrimSpace(label) == "" {
			continue
		}
		if key == "full_name" {
			out.Name = label
			continue
		}
		if _, ok := out.ByKind[types.Kind(key)]; ok {
			out.ByKind[types.Kind(key)] = label
		}
	}
	return out
}

// layout is the header of a loaded sheet resolved against Columns.
type layout struct {
	header  []string
	width   int
	height  int
	nameIdx int
	kindIdx map[types.Kind]int
}

func sameLabel(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func resolveLayout(header []string, cols Columns) (*layout, error) {
	l := &layout{
		header:  header,
		width:   len(header),
		nameIdx: -1,
		kindIdx: make(map[types.Kind]int),
	}

	find := func(label string) (int, error) {
		idx := -1
		for i, h := range header {
			if sameLabel(h, label) {
				if idx >= 0 {
					return -1, fmt.Errorf("duplicate column %q", label)
				}
				idx = i
			}
		}
		if idx < 0 {
			return -1, fmt.Errorf("missing column %q", label)
		}
		return idx, nil
	}

	var err error
	if l.nameIdx, err = find(cols.Name); err != nil {
		return nil, err
	}
	for _, c := range types.Categories() {
		idx, err := find(cols.ByKind[c.Kind])
		if err != nil {
			return nil, err
		}
		l.kindIdx[c.Kind] = idx
	}
	return l, nil
}

// owned reports whether column i is read and written by the applier.
func (l *layout) owned(i int) bool {
	if i == l.nameIdx {
		return true
	}
	for _, idx := range l.kindIdx {
		if idx == i {
			return true
		}
	}
	return false
}

// decodeTable turns a header and raw rows into typed records.
func decodeTable(source string, header []string, rows [][]string, cols Columns) (*layout, []*types.Record, error) {
	if len(header) == 0 {
		return nil, nil, &UnavailableError{Op: "load", Message: fmt.Sprintf("%s has no header row", source)}
	}

	l, err := resolveLayout(header, cols)
	if err != nil {
		return nil, nil, &UnavailableError{Op: "load", Message: "unexpected sheet layout", Cause: err}
	}

	if len(rows) == 0 {
		return nil, nil, &EmptyDataError{Source: source}
	}

	l.height = len(rows)
	records := make([]*types.Record, 0, len(rows))
	for i, row := range rows {
		if len(row) > l.width {
			l.width = len(row)
		}
		cell := func(idx int) string {
			if idx < len(row) {
				return row[idx]
			}
			return ""
		}

		rec := &types.Record{
			Row:      i + 2,
			FullName: strings.TrimSpace(cell(l.nameIdx)),
		}
		for kind, idx := range l.kindIdx {
			*rec.Field(kind) = types.Value(cell(idx))
		}
		for j, v := range row {
			if !l.owned(j) && v != "" {
				if rec.Extra == nil {
					rec.Extra = make(map[int]string)
				}
				rec.Extra[j] = v
			}
		}
		records = append(records, rec)
	}

	return l, records, nil
}

// encodeTable renders records back into a full grid, header included.
func encodeTable(l *layout, records []*types.Record) [][]string {
	grid := make([][]string, 0, len(records)+1)

	header := make([]string, l.width)
	copy(header, l.header)
	grid = append(grid, header)

	for _, rec := range records {
		row := make([]string, l.width)
		for j, v := range rec.Extra {
			if j < l.width {
				row[j] = v
			}
		}
		row[l.nameIdx] = rec.FullName
		for kind, idx := range l.kindIdx {
			row[idx] = rec.Field(kind).String()
		}
		grid = append(grid, row)
	}

	// Rows dropped by the caller are blanked so the write still covers the loaded range.
	for i := len(records); i < l.height; i++ {
		grid = append(grid, make([]string, l.width))
	}

	return grid
}
