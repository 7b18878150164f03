package model

// Packet commands exchanged with the charting platform.
const (
	PacketHello   = "HELLO"
	PacketGoodbye = "GOODBYE"
	PacketSignals = "SIGNALS"
	PacketBar     = "BAR"
	PacketInd     = "IND"
	PacketError   = "ERROR"
	PacketWarning = "WARNING"
)

// NoValue fills indicator reply slots that carry no data.
const NoValue = "?"

// IndReplySlots is the fixed argument count of an IND packet:
// line1, line2, line3, bar1, bar2, bar3, arrow1, arrow2.
const IndReplySlots = 8

// Packet is one decoded protocol line: a command and its positional args.
type Packet struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Arg returns the i-th argument, or "" if absent.
func (p *Packet) Arg(i int) string {
	if i < 0 || i >= len(p.Args) {
		return ""
	}
	return p.Args[i]
}

// Hello is the client's opening handshake.
type Hello struct {
	RemoteType    string `json:"remote_type"`
	IndicatorName string `json:"indicator_name"`
	Code          string `json:"-"` // one-time password, if the server requires one
}

// ParseHello extracts the handshake fields from a HELLO packet.
func ParseHello(p *Packet) Hello {
	return Hello{
		RemoteType:    p.Arg(0),
		IndicatorName: p.Arg(1),
		Code:          p.Arg(2),
	}
}

// Args renders the handshake back into HELLO packet arguments.
func (h Hello) Args() []string {
	args := []string{h.RemoteType, h.IndicatorName}
	if h.Code != "" {
		args = append(args, h.Code)
	}
	return args
}
