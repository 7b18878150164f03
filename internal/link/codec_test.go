package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePacket(t *testing.T) {
	got := EncodePacket("BAR", []string{"1000", "EURUSD", "2"})
	assert.Equal(t, `"BAR","1000","EURUSD","2"`, string(got))

	got = EncodePacket("GOODBYE", nil)
	assert.Equal(t, `"GOODBYE"`, string(got))

	got = EncodePacket("ERROR", []string{`bad "x", y`})
	assert.Equal(t, `"ERROR","bad ""x"", y"`, string(got))
}

func TestDecodePacket(t *testing.T) {
	p, err := DecodePacket([]byte(`"BAR","1000","EURUSD","2","0","1"`))
	require.NoError(t, err)
	assert.Equal(t, "BAR", p.Command)
	assert.Equal(t, []string{"1000", "EURUSD", "2", "0", "1"}, p.Args)

	p, err = DecodePacket([]byte("hello,MT4,MyInd\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", p.Command)
	assert.Equal(t, []string{"MT4", "MyInd"}, p.Args)

	p, err = DecodePacket([]byte(`"IND","?","?","?","",""`))
	require.NoError(t, err)
	assert.Equal(t, []string{"?", "?", "?", "", ""}, p.Args)
}

func TestDecodePacket_RoundTripsQuotes(t *testing.T) {
	args := []string{`a "quoted" word`, "with,comma", ""}
	p, err := DecodePacket(EncodePacket("WARNING", args))
	require.NoError(t, err)
	assert.Equal(t, "WARNING", p.Command)
	assert.Equal(t, args, p.Args)
}

func TestDecodePacket_Errors(t *testing.T) {
	_, err := DecodePacket(nil)
	assert.ErrorIs(t, err, ErrEmptyPacket)

	_, err = DecodePacket([]byte("   "))
	assert.ErrorIs(t, err, ErrEmptyPacket)

	_, err = DecodePacket([]byte(`"",1`))
	assert.ErrorIs(t, err, ErrEmptyPacket)

	_, err = DecodePacket([]byte("BAR,1\nBAR,2"))
	assert.Error(t, err)
}
