package indicator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"indlink/internal/model"
)

// DefaultPrecision is the maximum number of fraction digits in a reply.
const DefaultPrecision = 10

// FormatValue renders v with at most precision fraction digits and no
// trailing zeros. NaN and infinities render as "0".
func FormatValue(v float64, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return decimal.NewFromFloat(v).Round(int32(precision)).String()
}

// ParseValue parses a numeric field value sent by the platform.
func ParseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: value %q: %w", ErrMalformedPacket, s, err)
	}
	return v, nil
}

// IndReply builds the IND packet arguments with bar1 set and every other
// slot holding the no-value marker.
func IndReply(bar1 string) []string {
	args := make([]string, model.IndReplySlots)
	for i := range args {
		args[i] = model.NoValue
	}
	args[3] = bar1
	return args
}
