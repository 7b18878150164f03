// Package rowstore accumulates per-field packet values into rows keyed by
// instrument and bar timestamp.
//
// A Store is owned by a single session and is not safe for concurrent use.
package rowstore

import (
	"sort"
	"strings"
)

// row holds the slot values for one (instrument, timestamp).
type row struct {
	values []string
	set    []bool
	filled int
}

func (r *row) complete() bool { return r.filled == len(r.values) }

// instrumentRows is one instrument's timestamp → row scope.
type instrumentRows struct {
	rows map[int64]*row
}

// Store holds rows for any number of instruments. Every row has the same
// width, fixed at construction from the session's field schema.
type Store struct {
	width       int
	instruments map[string]*instrumentRows
}

// New creates a Store whose rows expect width slots each.
func New(width int) *Store {
	return &Store{
		width:       width,
		instruments: make(map[string]*instrumentRows),
	}
}

// Width returns the expected slot count per row.
func (s *Store) Width() int { return s.width }

// Record writes value into slot of the row for (instrument, ts), creating
// the row if needed. It returns true only on the write that fills the last
// missing slot; overwrites and writes to a complete row return false.
// Slots outside [0, Width) are ignored.
func (s *Store) Record(instrument string, ts int64, slot int, value string) bool {
	if slot < 0 || slot >= s.width {
		return false
	}

	ir, ok := s.instruments[instrument]
	if !ok {
		ir = &instrumentRows{rows: make(map[int64]*row, 256)}
		s.instruments[instrument] = ir
	}

	r, ok := ir.rows[ts]
	if !ok {
		r = &row{
			values: make([]string, s.width),
			set:    make([]bool, s.width),
		}
		ir.rows[ts] = r
	}

	r.values[slot] = value
	if r.set[slot] {
		return false
	}
	r.set[slot] = true
	r.filled++
	return r.complete()
}

// SortedTimestamps returns every timestamp recorded for instrument in
// ascending order, complete or not. The slice is freshly allocated.
func (s *Store) SortedTimestamps(instrument string) []int64 {
	ir, ok := s.instruments[instrument]
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(ir.rows))
	for ts := range ir.rows {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RowText renders the row as comma-joined slot values in schema order.
// Missing slots, and rows that were never recorded, render as empty fields.
func (s *Store) RowText(instrument string, ts int64) string {
	if s.width == 0 {
		return ""
	}
	var values []string
	if ir, ok := s.instruments[instrument]; ok {
		if r, ok := ir.rows[ts]; ok {
			values = r.values
		}
	}
	if values == nil {
		return strings.Repeat(",", s.width-1)
	}
	return strings.Join(values, ",")
}

// Complete reports whether every slot of the row has been written.
func (s *Store) Complete(instrument string, ts int64) bool {
	ir, ok := s.instruments[instrument]
	if !ok {
		return false
	}
	r, ok := ir.rows[ts]
	return ok && r.complete()
}

// Instruments returns the recorded instrument keys in ascending order.
func (s *Store) Instruments() []string {
	out := make([]string, 0, len(s.instruments))
	for k := range s.instruments {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of rows held for instrument.
func (s *Store) Len(instrument string) int {
	if ir, ok := s.instruments[instrument]; ok {
		return len(ir.rows)
	}
	return 0
}
