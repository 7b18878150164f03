package indicator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"indlink/internal/metrics"
	"indlink/internal/model"
	"indlink/internal/rowstore"
)

// collector records every bar and exports the rows on termination.
type collector struct {
	sessionID      string
	schema         *Schema
	store          *rowstore.Store
	dir            string
	journal        model.ExportJournal
	log            zerolog.Logger
	metrics        *metrics.Metrics
	rowsDownloaded int
}

func newCollector(schema *Schema, o options) *collector {
	return &collector{
		sessionID: o.id,
		schema:    schema,
		store:     rowstore.New(schema.Width()),
		dir:       o.dir,
		journal:   o.journal,
		log:       o.log,
		metrics:   o.metrics,
	}
}

func (c *collector) mode() Mode { return ModeCollecting }

func (c *collector) onBar(_ context.Context, b bar) error {
	for slot := 0; slot < c.schema.Width(); slot++ {
		if c.store.Record(b.instrument, b.when, slot, b.args[barArgOffset+slot]) {
			c.rowsDownloaded++
			c.metrics.RowCompleted()
		}
	}
	return nil
}

// terminate writes one rollover file per instrument in ascending key order.
// A session that saw no bars still writes a header-only file.
func (c *collector) terminate(_ context.Context) ([]string, error) {
	instruments := c.store.Instruments()
	if len(instruments) == 0 {
		res, err := Export(c.dir, c.schema, nil, "")
		if err != nil {
			c.metrics.ExportFailed()
			return nil, fmt.Errorf("export empty dataset: %w", err)
		}
		c.metrics.Exported(0)
		c.log.Info().Str("path", res.Path).Msg("empty dataset written")
		c.record("", res)
		return []string{res.Path}, nil
	}

	var paths []string
	for _, inst := range instruments {
		res, err := Export(c.dir, c.schema, c.store, inst)
		if err != nil {
			c.metrics.ExportFailed()
			return paths, fmt.Errorf("export %q: %w", inst, err)
		}
		paths = append(paths, res.Path)
		c.metrics.Exported(res.Rows)
		c.log.Info().
			Str("instrument", inst).
			Str("path", res.Path).
			Int("rows", res.Rows).
			Msg("collected dataset written")

		c.record(inst, res)
	}
	return paths, nil
}

// record catalogs a written file. Journal failures only warn: the file exists.
func (c *collector) record(inst string, res ExportResult) {
	if c.journal == nil {
		return
	}
	rec := model.ExportRecord{
		SessionID:  c.sessionID,
		Instrument: inst,
		Path:       res.Path,
		Rows:       res.Rows,
		Columns:    res.Columns,
		WrittenAt:  time.Now().UTC(),
	}
	if err := c.journal.RecordExport(rec); err != nil {
		c.log.Warn().Err(err).Str("path", res.Path).Msg("export journal write failed")
	}
}
