package indicator

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v         float64
		precision int
		want      string
	}{
		{17.5, 10, "17.5"},
		{-3, 10, "-3"},
		{1.0 / 3, 4, "0.3333"},
		{2.0 / 3, 4, "0.6667"},
		{0.12345678901234, 10, "0.123456789"},
		{12.5, 0, "13"},
		{math.NaN(), 10, "0"},
		{math.Inf(1), 10, "0"},
		{math.Inf(-1), 10, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.v, tt.precision), "FormatValue(%v, %d)", tt.v, tt.precision)
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("1.25")
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)

	_, err = ParseValue("abc")
	assert.ErrorIs(t, err, ErrMalformedPacket)
	assert.ErrorIs(t, err, strconv.ErrSyntax)

	_, err = ParseValue("")
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestIndReply(t *testing.T) {
	got := IndReply("17.5")
	assert.Equal(t, []string{"?", "?", "?", "17.5", "?", "?", "?", "?"}, got)
}
