package model

import (
	"encoding/json"
	"time"
)

// Prediction is one model output produced in reply to a bar.
type Prediction struct {
	SessionID  string    `json:"session_id"`
	Instrument string    `json:"instrument"`
	When       int64     `json:"when"`     // bar timestamp as sent by the platform
	Features   []float64 `json:"features"` // normalized model input
	Raw        float64   `json:"raw"`      // model output before denormalization
	Value      float64   `json:"value"`    // denormalized, in pips
	Text       string    `json:"text"`     // formatted value sent in bar1
	At         time.Time `json:"at"`
}

// JSON returns the JSON-encoded prediction (ignoring errors for hot-path usage).
func (p *Prediction) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// ExportRecord describes one collected dataset written to disk.
type ExportRecord struct {
	SessionID  string    `json:"session_id"`
	Instrument string    `json:"instrument"`
	Path       string    `json:"path"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	WrittenAt  time.Time `json:"written_at"`
}
