package indicator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"indlink/internal/metrics"
	"indlink/internal/model"
	"indlink/internal/regression"
)

// bar is a parsed BAR packet.
type bar struct {
	when       int64
	instrument string
	args       []string // full packet args; field values start at barArgOffset
	received   time.Time
}

// behavior is the mode-specific half of a session, chosen once in NewSession.
type behavior interface {
	mode() Mode
	onBar(ctx context.Context, b bar) error
	terminate(ctx context.Context) ([]string, error)
}

// Option configures a Session.
type Option func(*options)

type options struct {
	id      string
	dir     string
	model   regression.Regressor
	predict PredictConfig
	writer  model.PacketWriter
	sink    model.PredictionSink
	journal model.ExportJournal
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// WithID sets the session ID used in logs, predictions and export records.
func WithID(id string) Option { return func(o *options) { o.id = id } }

// WithExportDir sets where a collecting session writes its datasets.
func WithExportDir(dir string) Option { return func(o *options) { o.dir = dir } }

// WithModel makes the session a predicting session.
func WithModel(m regression.Regressor, cfg PredictConfig) Option {
	return func(o *options) {
		o.model = m
		o.predict = cfg
	}
}

// WithWriter sets the reply channel back to the platform.
func WithWriter(w model.PacketWriter) Option { return func(o *options) { o.writer = w } }

// WithPredictionSink receives a copy of every prediction.
func WithPredictionSink(s model.PredictionSink) Option { return func(o *options) { o.sink = s } }

// WithExportJournal records every written dataset file.
func WithExportJournal(j model.ExportJournal) Option { return func(o *options) { o.journal = j } }

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// Session is one remote indicator instance bound to a platform connection.
// It is not safe for concurrent use: NotifyPacket and NotifyTermination must
// be called from a single goroutine.
type Session struct {
	id         string
	schema     *Schema
	behavior   behavior
	log        zerolog.Logger
	metrics    *metrics.Metrics
	packets    int
	startedAt  time.Time
	terminated bool
}

// NewSession builds a session for schema. With WithModel it predicts,
// otherwise it collects into WithExportDir (default ".").
func NewSession(schema *Schema, opts ...Option) (*Session, error) {
	if schema == nil {
		return nil, fmt.Errorf("indicator: nil schema")
	}
	o := options{
		dir: ".",
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		id:        o.id,
		schema:    schema,
		log:       o.log,
		metrics:   o.metrics,
		startedAt: time.Now(),
	}

	if o.model != nil {
		p, err := newPredictor(schema, o)
		if err != nil {
			return nil, err
		}
		s.behavior = p
	} else {
		s.behavior = newCollector(schema, o)
	}

	s.log.Info().
		Str("mode", s.Mode().String()).
		Strs("fields", schema.Specs()).
		Int("width", schema.Width()).
		Msg("indicator session created")
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Mode reports whether the session collects or predicts.
func (s *Session) Mode() Mode { return s.behavior.mode() }

// Blocking reports whether the platform must wait for a reply to each bar.
func (s *Session) Blocking() bool { return s.Mode() == ModePredicting }

// Schema returns the session's field schema.
func (s *Session) Schema() *Schema { return s.schema }

// Requested returns the field registration strings in order.
func (s *Session) Requested() []string { return s.schema.Specs() }

// Packets returns the number of bars accepted so far.
func (s *Session) Packets() int { return s.packets }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// RowsDownloaded returns the number of rows fully recorded. Always zero for
// predicting sessions.
func (s *Session) RowsDownloaded() int {
	if c, ok := s.behavior.(*collector); ok {
		return c.rowsDownloaded
	}
	return 0
}

// Terminated reports whether NotifyTermination has run.
func (s *Session) Terminated() bool { return s.terminated }

// NotifyPacket handles one BAR packet's args: [timestamp, instrument, values...].
// A packet that does not match the schema is rejected whole with
// ErrMalformedPacket.
func (s *Session) NotifyPacket(ctx context.Context, args []string) error {
	if s.terminated {
		return ErrTerminated
	}
	b, err := s.parseBar(args)
	if err != nil {
		return err
	}
	if err := s.behavior.onBar(ctx, b); err != nil {
		return err
	}
	s.packets++
	return nil
}

// NotifyTermination ends the session. Collecting sessions export their rows
// and return the written paths; predicting sessions write nothing. It runs at
// most once; later calls return ErrTerminated.
func (s *Session) NotifyTermination(ctx context.Context) ([]string, error) {
	if s.terminated {
		return nil, ErrTerminated
	}
	s.terminated = true

	paths, err := s.behavior.terminate(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("indicator session termination failed")
		return paths, err
	}
	s.log.Info().
		Int("packets", s.packets).
		Int("rows_downloaded", s.RowsDownloaded()).
		Strs("files", paths).
		Msg("indicator session terminated")
	return paths, nil
}

func (s *Session) parseBar(args []string) (bar, error) {
	if len(args) != s.schema.PacketLen() {
		return bar{}, fmt.Errorf("%w: got %d args, want %d", ErrMalformedPacket, len(args), s.schema.PacketLen())
	}
	when, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil {
		return bar{}, fmt.Errorf("%w: timestamp %q: %w", ErrMalformedPacket, args[0], err)
	}
	if strings.TrimSpace(args[1]) == "" {
		return bar{}, fmt.Errorf("%w: empty instrument", ErrMalformedPacket)
	}
	// Values are written unquoted into the export rows.
	for i, v := range args[barArgOffset:] {
		if strings.ContainsAny(v, ",\"\r\n") {
			return bar{}, fmt.Errorf("%w: value %d %q contains a delimiter", ErrMalformedPacket, i, v)
		}
	}
	return bar{
		when:       when,
		instrument: strings.ToLower(args[1]),
		args:       args,
		received:   time.Now(),
	}, nil
}
