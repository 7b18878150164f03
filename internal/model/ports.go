package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the indicator session from the transport and
// from optional sinks (Redis, SQLite). Each implementation satisfies one.

// PacketWriter sends a packet back to the platform on the session's link.
type PacketWriter interface {
	// WritePacket writes a single packet synchronously.
	WritePacket(command string, args []string) error
}

// PacketWriterFunc adapts a function to PacketWriter.
type PacketWriterFunc func(command string, args []string) error

// WritePacket calls f(command, args).
func (f PacketWriterFunc) WritePacket(command string, args []string) error {
	return f(command, args)
}

// PredictionSink receives every prediction a session emits.
type PredictionSink interface {
	// Publish hands off a prediction. Implementations must not block the
	// packet-handling turn for long and must not fail it.
	Publish(ctx context.Context, p Prediction)
}

// ExportJournal catalogs collected dataset files.
type ExportJournal interface {
	// RecordExport persists metadata for one written file.
	RecordExport(rec ExportRecord) error

	// RecentExports returns up to limit records, newest first.
	RecentExports(limit int) ([]ExportRecord, error)

	// Close releases underlying resources.
	Close() error
}
