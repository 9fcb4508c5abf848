// Package catalog describes fixed-schema table metadata: columns, their
// on-record layout, and the index definitions built over them.
package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ColumnType is one of the three fixed-width column types the engine supports.
// Variable-length and nullable columns are out of scope.
type ColumnType int

const (
	INT32 ColumnType = iota
	FLOAT32
	FixedString
)

func (t ColumnType) String() string {
	switch t {
	case INT32:
		return "INT32"
	case FLOAT32:
		return "FLOAT32"
	case FixedString:
		return "FIXED_STRING"
	default:
		return "UNKNOWN"
	}
}

// Column describes one fixed-width field of a table's record layout.
type Column struct {
	Name   string
	Type   ColumnType
	Offset int // byte offset within the record
	Length int // byte length of this column's encoding
}

// Table is an ordered set of columns plus the index definitions over them.
// RecordSize is precomputed so every record in the heap file is fixed-size.
type Table struct {
	Name       string
	Columns    []Column
	RecordSize int
	Indexes    []*IndexDef
}

// NewTable lays out columns back-to-back in declaration order and computes
// each column's offset and the table's fixed record size.
func NewTable(name string, cols []Column) *Table {
	t := &Table{Name: name}
	offset := 0
	for _, c := range cols {
		c.Offset = offset
		offset += c.Length
		t.Columns = append(t.Columns, c)
	}
	t.RecordSize = offset
	return t
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IndexDef names an ordered subset of a table's columns. The index key is
// those columns' values concatenated, in definition order, into a single
// fixed-length byte slice.
type IndexDef struct {
	Name    string
	Table   *Table
	Columns []Column
	KeyLen  int
}

// NewIndexDef builds an index over the named columns, in the given order.
func NewIndexDef(name string, table *Table, columnNames []string) (*IndexDef, error) {
	idx := &IndexDef{Name: name, Table: table}
	for _, cn := range columnNames {
		c, ok := table.Column(cn)
		if !ok {
			return nil, fmt.Errorf("catalog: column %q not found on table %q", cn, table.Name)
		}
		idx.Columns = append(idx.Columns, c)
		idx.KeyLen += c.Length
	}
	return idx, nil
}

// IsSingleColumnInt reports whether this index is over exactly one INT32
// column — the only shape for which the engine takes gap locks (spec §4.3,
// §9 "Gap locks keyed on INT only").
func (idx *IndexDef) IsSingleColumnInt() bool {
	return len(idx.Columns) == 1 && idx.Columns[0].Type == INT32
}

// EncodeKey concatenates the index's columns out of a full record buffer
// into the index's fixed-length binary key, in definition order.
func (idx *IndexDef) EncodeKey(record []byte) ([]byte, error) {
	key := make([]byte, 0, idx.KeyLen)
	for _, c := range idx.Columns {
		if c.Offset+c.Length > len(record) {
			return nil, fmt.Errorf("catalog: record too short for column %q", c.Name)
		}
		key = append(key, record[c.Offset:c.Offset+c.Length]...)
	}
	return key, nil
}

// CompareKeys orders two encoded keys column-by-column using each column's
// type-specific ordering: INT32 as signed, FLOAT32 as IEEE-754 ordering
// (NaN is undefined), FIXED_STRING lexicographically by byte.
func (idx *IndexDef) CompareKeys(a, b []byte) int {
	pos := 0
	for _, c := range idx.Columns {
		av := a[pos : pos+c.Length]
		bv := b[pos : pos+c.Length]
		pos += c.Length
		if cmp := compareColumnValue(c.Type, av, bv); cmp != 0 {
			return cmp
		}
	}
	return 0
}

// CompareValue orders two encoded values of the same column type, using the
// same per-type rules as CompareKeys (INT32 signed, FLOAT32 by decoded
// value, FIXED_STRING lexicographic). Exported for executors evaluating
// scan predicates column-by-column (spec §4.2/§4.4).
func CompareValue(t ColumnType, a, b []byte) int {
	return compareColumnValue(t, a, b)
}

func compareColumnValue(t ColumnType, a, b []byte) int {
	switch t {
	case INT32:
		av := int32(binary.BigEndian.Uint32(a))
		bv := int32(binary.BigEndian.Uint32(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case FLOAT32:
		// IEEE-754 bit patterns compare in the right order for non-negative
		// floats once the sign bit is flipped appropriately; we instead
		// compare the decoded floats directly, which matches ordinary
		// float ordering for all but NaN (left undefined per spec §4.2).
		av := math.Float32frombits(binary.BigEndian.Uint32(a))
		bv := math.Float32frombits(binary.BigEndian.Uint32(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case FixedString:
		return bytes.Compare(a, b)
	default:
		panic(fmt.Sprintf("catalog: unexpected column type %v", t))
	}
}

// EncodeInt32 encodes an INT32 column value in the engine's fixed big-endian
// layout. Comparison is done on the decoded value (see compareColumnValue),
// so no bias is needed to make raw byte comparison agree with signed order.
func EncodeInt32(v int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}

// DecodeInt32 decodes a big-endian INT32 column value.
func DecodeInt32(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf))
}

// EncodeFloat32 encodes a FLOAT32 column value.
func EncodeFloat32(v float32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// DecodeFloat32 decodes a FLOAT32 column value.
func DecodeFloat32(buf []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(buf))
}

// EncodeFixedString encodes a string into a fixed-width, zero-padded field.
// It truncates values that are too long.
func EncodeFixedString(v string, length int) []byte {
	buf := make([]byte, length)
	n := copy(buf, v)
	_ = n
	return buf
}

// DecodeFixedString trims trailing zero padding from a fixed-width field.
func DecodeFixedString(buf []byte) string {
	return string(bytes.TrimRight(buf, "\x00"))
}
