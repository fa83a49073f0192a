package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

func TestReadCSV(t *testing.T) {
	input := "\ufeffid, headline ,custom_offer,offerType\n" +
		"A1,Big Sale,20% off,\n" +
		"\n" +
		"A2,\"Quoted, with comma\",,BOGO\n" +
		"A3,short\n" +
		"A4,long,x,y,extra\n"

	tbl, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "headline", "custom_offer", "offerType"}, tbl.Fields)
	require.Equal(t, 4, tbl.Len())

	assert.Equal(t, Row{"id": "A1", "headline": "Big Sale", "custom_offer": "20% off", "offerType": ""}, tbl.Rows[0])
	assert.Equal(t, "Quoted, with comma", tbl.Rows[1]["headline"])

	_, ok := tbl.Rows[2]["custom_offer"]
	assert.False(t, ok, "missing cells are absent")
	assert.Len(t, tbl.Rows[3], 4, "extra cells are dropped")
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoHeader)

	tbl, err := ReadCSV(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, []string{"a", "b"}, tbl.Fields)
}

func TestReadCSV_DuplicateHeaders(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("a,a,,b\n1,2,3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Fields)
	assert.Equal(t, Row{"a": "1", "b": "4"}, tbl.Rows[0])
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	in := "id,headline\nA1,\"x, y\"\nA2,\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, in, buf.String())
}

func TestRow_InTier(t *testing.T) {
	cases := []struct {
		row    Row
		t1, t2 bool
	}{
		{Row{"id": "1", "custom_offer": "x"}, true, false},
		{Row{"id": "2", "offerType": "y"}, false, true},
		{Row{"id": "3", "custom_offer": "  ", "offerType": "z"}, false, true},
		{Row{"id": "4"}, false, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.t1, tc.row.InTier(api.TierT1), tc.row["id"])
		assert.Equal(t, tc.t2, tc.row.InTier(api.TierT2), tc.row["id"])
		assert.True(t, tc.row.InTier(""), "unset tier admits %s", tc.row["id"])
	}
}

func TestTable_Append(t *testing.T) {
	tbl := NewTable("id", "id")
	tbl.Append(Row{"z": "1", "a": "2", "id": "3"})
	tbl.Append(Row{"b": "1"}, "b")
	assert.Equal(t, []string{"id", "a", "z", "b"}, tbl.Fields)
	assert.True(t, tbl.HasField("z"))
	assert.False(t, tbl.HasField("q"))
}
