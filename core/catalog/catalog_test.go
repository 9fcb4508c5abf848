package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTable_ComputesOffsetsAndRecordSize(t *testing.T) {
	tbl := NewTable("accounts", []Column{
		{Name: "id", Type: INT32, Length: 4},
		{Name: "name", Type: FixedString, Length: 16},
		{Name: "balance", Type: FLOAT32, Length: 4},
	})
	require.Equal(t, 24, tbl.RecordSize)
	require.Equal(t, 0, tbl.Columns[0].Offset)
	require.Equal(t, 4, tbl.Columns[1].Offset)
	require.Equal(t, 20, tbl.Columns[2].Offset)

	col, ok := tbl.Column("name")
	require.True(t, ok)
	require.Equal(t, 16, col.Length)

	_, ok = tbl.Column("missing")
	require.False(t, ok)
}

func TestNewIndexDef_UnknownColumnErrors(t *testing.T) {
	tbl := NewTable("t", []Column{{Name: "id", Type: INT32, Length: 4}})
	_, err := NewIndexDef("t.bad_idx", tbl, []string{"nope"})
	require.Error(t, err)
}

func TestIsSingleColumnInt(t *testing.T) {
	tbl := NewTable("t", []Column{
		{Name: "id", Type: INT32, Length: 4},
		{Name: "name", Type: FixedString, Length: 8},
	})
	single, err := NewIndexDef("t.id_idx", tbl, []string{"id"})
	require.NoError(t, err)
	require.True(t, single.IsSingleColumnInt())

	composite, err := NewIndexDef("t.composite_idx", tbl, []string{"id", "name"})
	require.NoError(t, err)
	require.False(t, composite.IsSingleColumnInt())

	stringOnly, err := NewIndexDef("t.name_idx", tbl, []string{"name"})
	require.NoError(t, err)
	require.False(t, stringOnly.IsSingleColumnInt())
}

func TestEncodeKey_ConcatenatesColumnsInDefinitionOrder(t *testing.T) {
	tbl := NewTable("t", []Column{
		{Name: "id", Type: INT32, Length: 4},
		{Name: "v", Type: INT32, Length: 4},
	})
	idx, err := NewIndexDef("t.v_id_idx", tbl, []string{"v", "id"})
	require.NoError(t, err)

	record := append(EncodeInt32(1), EncodeInt32(42)...)
	key, err := idx.EncodeKey(record)
	require.NoError(t, err)
	require.Equal(t, append(EncodeInt32(42), EncodeInt32(1)...), key)
}

func TestCompareKeys_OrdersByTypeSemantics(t *testing.T) {
	tbl := NewTable("t", []Column{{Name: "id", Type: INT32, Length: 4}})
	idx, err := NewIndexDef("t.id_idx", tbl, []string{"id"})
	require.NoError(t, err)

	require.Negative(t, idx.CompareKeys(EncodeInt32(-1), EncodeInt32(1)))
	require.Positive(t, idx.CompareKeys(EncodeInt32(5), EncodeInt32(2)))
	require.Zero(t, idx.CompareKeys(EncodeInt32(3), EncodeInt32(3)))
}

func TestCompareValue_FloatAndFixedString(t *testing.T) {
	require.Negative(t, CompareValue(FLOAT32, EncodeFloat32(1.5), EncodeFloat32(2.5)))
	require.Zero(t, CompareValue(FLOAT32, EncodeFloat32(1.5), EncodeFloat32(1.5)))

	a := EncodeFixedString("abc", 8)
	b := EncodeFixedString("abd", 8)
	require.Negative(t, CompareValue(FixedString, a, b))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	require.Equal(t, int32(-7), DecodeInt32(EncodeInt32(-7)))
	require.Equal(t, float32(3.25), DecodeFloat32(EncodeFloat32(3.25)))
	require.Equal(t, "hi", DecodeFixedString(EncodeFixedString("hi", 8)))
}
