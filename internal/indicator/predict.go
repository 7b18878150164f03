package indicator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"indlink/internal/metrics"
	"indlink/internal/model"
	"indlink/internal/normalize"
	"indlink/internal/regression"
)

// PredictConfig holds the constants a predicting session needs.
type PredictConfig struct {
	FeatureWidth int     // number of fast/slow pairs fed to the model
	PipSize      float64 // price units per pip
	DiffRange    float64 // fast-slow difference range, in pips, mapped to [-1, 1]
	PipRange     float64 // model output [-1, 1] mapped back to this range, in pips
	Precision    int     // max fraction digits in the reply
	FastField    string
	SlowField    string
}

// DefaultPredictConfig returns the settings the bundled models were trained with.
func DefaultPredictConfig() PredictConfig {
	return PredictConfig{
		FeatureWidth: 3,
		PipSize:      0.0001,
		DiffRange:    50,
		PipRange:     35,
		Precision:    DefaultPrecision,
		FastField:    "SMA(10)",
		SlowField:    "SMA(25)",
	}
}

// predictor runs the model on every bar and replies with an IND packet.
type predictor struct {
	sessionID string
	model     regression.Regressor
	cfg       PredictConfig
	diff      normalize.Field
	outcome   normalize.Field
	fastAt    int // BAR arg index of the first fast value
	slowAt    int
	writer    model.PacketWriter
	sink      model.PredictionSink
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

func newPredictor(schema *Schema, o options) (*predictor, error) {
	cfg := o.predict
	if o.writer == nil {
		return nil, fmt.Errorf("indicator: predicting session needs a packet writer")
	}
	if cfg.FeatureWidth <= 0 {
		return nil, fmt.Errorf("indicator: feature width must be positive, got %d", cfg.FeatureWidth)
	}
	if cfg.PipSize <= 0 {
		return nil, fmt.Errorf("indicator: pip size must be positive, got %v", cfg.PipSize)
	}
	if cfg.Precision < 0 {
		return nil, fmt.Errorf("indicator: precision must not be negative, got %d", cfg.Precision)
	}
	if n := o.model.InputCount(); n > 0 && n != cfg.FeatureWidth {
		return nil, fmt.Errorf("indicator: model takes %d inputs, feature width is %d", n, cfg.FeatureWidth)
	}

	diff := normalize.Symmetric(cfg.DiffRange)
	if err := diff.Validate(); err != nil {
		return nil, fmt.Errorf("indicator: diff range: %w", err)
	}
	outcome := normalize.Symmetric(cfg.PipRange)
	if err := outcome.Validate(); err != nil {
		return nil, fmt.Errorf("indicator: pip range: %w", err)
	}

	fastAt, err := seriesOffset(schema, cfg.FastField, cfg.FeatureWidth)
	if err != nil {
		return nil, err
	}
	slowAt, err := seriesOffset(schema, cfg.SlowField, cfg.FeatureWidth)
	if err != nil {
		return nil, err
	}

	return &predictor{
		sessionID: o.id,
		model:     o.model,
		cfg:       cfg,
		diff:      diff,
		outcome:   outcome,
		fastAt:    fastAt,
		slowAt:    slowAt,
		writer:    o.writer,
		sink:      o.sink,
		log:       o.log,
		metrics:   o.metrics,
	}, nil
}

func seriesOffset(schema *Schema, name string, width int) (int, error) {
	i, ok := schema.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("indicator: series %q not in schema %v", name, schema.Specs())
	}
	if w := schema.Fields()[i].Width; w < width {
		return 0, fmt.Errorf("indicator: series %q has %d values, need %d", name, w, width)
	}
	return schema.Offset(i), nil
}

func (p *predictor) mode() Mode { return ModePredicting }

func (p *predictor) features(args []string) ([]float64, error) {
	out := make([]float64, p.cfg.FeatureWidth)
	for i := range out {
		fast, err := ParseValue(args[p.fastAt+i])
		if err != nil {
			return nil, err
		}
		slow, err := ParseValue(args[p.slowAt+i])
		if err != nil {
			return nil, err
		}
		v, err := p.diff.Normalize((fast - slow) / p.cfg.PipSize)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *predictor) onBar(ctx context.Context, b bar) error {
	in, err := p.features(b.args)
	if err != nil {
		return err
	}

	out, err := p.model.Compute(ctx, in)
	if err != nil {
		p.metrics.PredictionFailed()
		return fmt.Errorf("model: %w", err)
	}
	if len(out) == 0 {
		p.metrics.PredictionFailed()
		return fmt.Errorf("model: empty output")
	}

	value, err := p.outcome.Denormalize(out[0])
	if err != nil {
		p.metrics.PredictionFailed()
		return err
	}
	text := FormatValue(value, p.cfg.Precision)

	if err := p.writer.WritePacket(model.PacketInd, IndReply(text)); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	p.metrics.Predicted(b.received)

	p.log.Debug().
		Str("instrument", b.instrument).
		Int64("when", b.when).
		Floats64("features", in).
		Float64("raw", out[0]).
		Str("prediction", text).
		Msg("prediction sent")

	if p.sink != nil {
		p.sink.Publish(ctx, model.Prediction{
			SessionID:  p.sessionID,
			Instrument: b.instrument,
			When:       b.when,
			Features:   in,
			Raw:        out[0],
			Value:      value,
			Text:       text,
			At:         time.Now().UTC(),
		})
	}
	return nil
}

func (p *predictor) terminate(context.Context) ([]string, error) { return nil, nil }
