package indicator

import (
	"fmt"
	"strconv"
	"strings"
)

// barArgOffset is the index of the first field value in a BAR packet:
// args are [timestamp, instrument, field values...].
const barArgOffset = 2

// FieldRequest is one registered data request, e.g. "SMA(10)[3]": the
// 10-period moving average for the last three bars.
type FieldRequest struct {
	Spec  string // registration string sent to the platform
	Name  string // spec without the "[k]" suffix
	Width int    // number of consecutive values the field occupies
}

// ParseFieldRequest parses "NAME" or "NAME[k]".
func ParseFieldRequest(spec string) (FieldRequest, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return FieldRequest{}, fmt.Errorf("empty field request")
	}

	ix := strings.IndexByte(spec, '[')
	if ix == -1 {
		return FieldRequest{Spec: spec, Name: spec, Width: 1}, nil
	}

	name := strings.TrimSpace(spec[:ix])
	if name == "" {
		return FieldRequest{}, fmt.Errorf("field request %q: missing name", spec)
	}
	end := strings.IndexByte(spec[ix:], ']')
	if end == -1 || ix+end != len(spec)-1 {
		return FieldRequest{}, fmt.Errorf("field request %q: unterminated width", spec)
	}
	width, err := strconv.Atoi(strings.TrimSpace(spec[ix+1 : ix+end]))
	if err != nil {
		return FieldRequest{}, fmt.Errorf("field request %q: width: %w", spec, err)
	}
	if width <= 0 {
		return FieldRequest{}, fmt.Errorf("field request %q: width must be positive", spec)
	}
	return FieldRequest{Spec: spec, Name: name, Width: width}, nil
}

// Schema is the ordered list of field requests a session registers. Both the
// packet parser and the exporter read offsets and column names from it.
type Schema struct {
	fields  []FieldRequest
	offsets []int // argument index of each field's first value
	width   int
}

// NewSchema parses specs in registration order.
func NewSchema(specs ...string) (*Schema, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("schema: no field requests")
	}
	s := &Schema{
		fields:  make([]FieldRequest, 0, len(specs)),
		offsets: make([]int, 0, len(specs)),
	}
	for _, spec := range specs {
		fr, err := ParseFieldRequest(spec)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		s.fields = append(s.fields, fr)
		s.offsets = append(s.offsets, barArgOffset+s.width)
		s.width += fr.Width
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error; for static registrations.
func MustSchema(specs ...string) *Schema {
	s, err := NewSchema(specs...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the field requests.
func (s *Schema) Fields() []FieldRequest {
	out := make([]FieldRequest, len(s.fields))
	copy(out, s.fields)
	return out
}

// Specs returns the registration strings in order.
func (s *Schema) Specs() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Spec
	}
	return out
}

// Widths returns the slot count of each field, parallel to Fields.
func (s *Schema) Widths() []int {
	out := make([]int, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Width
	}
	return out
}

// Width is the total number of value slots in a row.
func (s *Schema) Width() int { return s.width }

// PacketLen is the exact argument count of a BAR packet for this schema.
func (s *Schema) PacketLen() int { return barArgOffset + s.width }

// Offset returns the BAR argument index of field i's first value.
func (s *Schema) Offset(i int) int { return s.offsets[i] }

// Lookup finds a field by name (or full spec) and returns its index.
func (s *Schema) Lookup(name string) (int, bool) {
	for i, f := range s.fields {
		if f.Name == name || f.Spec == name {
			return i, true
		}
	}
	return -1, false
}

// Columns returns the export header: "WHEN", then one name per slot.
// Multi-slot fields expand to name-b0 .. name-b(k-1).
func (s *Schema) Columns() []string {
	cols := make([]string, 0, 1+s.width)
	cols = append(cols, "WHEN")
	for _, f := range s.fields {
		if f.Width <= 1 {
			cols = append(cols, f.Name)
			continue
		}
		for i := 0; i < f.Width; i++ {
			cols = append(cols, f.Name+"-b"+strconv.Itoa(i))
		}
	}
	return cols
}
