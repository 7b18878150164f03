// Package indicator implements the session logic of a remote indicator: it
// registers the data fields it needs, then either collects every bar into a
// dataset for later export or runs a regression model on each bar and
// replies with a prediction.
//
// The mode is fixed when a Session is built. Collecting sessions own a
// rowstore.Store; predicting sessions own the model and the two
// normalization fields. Packets for one session must be delivered
// sequentially.
package indicator

import "errors"

var (
	// ErrMalformedPacket is returned when a bar packet does not match the schema.
	ErrMalformedPacket = errors.New("indicator: malformed packet")

	// ErrTerminated is returned for packets or terminations after termination.
	ErrTerminated = errors.New("indicator: session terminated")

	// ErrExport wraps every I/O failure while writing a collected dataset.
	ErrExport = errors.New("indicator: export failed")

	// ErrBadRolloverName is returned when the export directory holds a file that
	// looks like a rollover file but has a non-numeric sequence.
	ErrBadRolloverName = errors.New("indicator: bad rollover file name")
)

// Mode is the fixed behavior of a session.
type Mode int

const (
	ModeCollecting Mode = iota
	ModePredicting
)

func (m Mode) String() string {
	switch m {
	case ModeCollecting:
		return "collecting"
	case ModePredicting:
		return "predicting"
	default:
		return "unknown"
	}
}
