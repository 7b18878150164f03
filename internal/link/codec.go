// Package link carries indicator packets between the charting platform and
// indicator sessions over a websocket. Each text message holds one packet:
// a CSV line whose first field is the command, every field double-quoted.
package link

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"indlink/internal/model"
)

// ErrEmptyPacket is returned for a message with no command.
var ErrEmptyPacket = errors.New("link: empty packet")

// EncodePacket renders command and args as one quoted CSV line without a
// trailing newline: "BAR","1000","EURUSD","1.1".
func EncodePacket(command string, args []string) []byte {
	n := len(command) + 2
	for _, a := range args {
		n += len(a) + 3
	}
	buf := make([]byte, 0, n)
	buf = appendQuoted(buf, command)
	for _, a := range args {
		buf = append(buf, ',')
		buf = appendQuoted(buf, a)
	}
	return buf
}

func appendQuoted(buf []byte, s string) []byte {
	buf = append(buf, '"')
	if strings.IndexByte(s, '"') == -1 {
		buf = append(buf, s...)
	} else {
		buf = append(buf, strings.ReplaceAll(s, `"`, `""`)...)
	}
	return append(buf, '"')
}

// DecodePacket parses one CSV line. Quoting is optional on input; the
// command is upper-cased.
func DecodePacket(msg []byte) (*model.Packet, error) {
	line := strings.TrimRight(string(msg), "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyPacket
	}

	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("link: decode packet: %w", err)
	}
	if _, err := r.Read(); err == nil {
		return nil, fmt.Errorf("link: decode packet: more than one line")
	}

	cmd := strings.ToUpper(strings.TrimSpace(fields[0]))
	if cmd == "" {
		return nil, ErrEmptyPacket
	}
	return &model.Packet{Command: cmd, Args: fields[1:]}, nil
}
