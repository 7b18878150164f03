// Package redis fans predictions out to Redis: a PUBLISH for live
// subscribers and a SET of the latest value per instrument. Writes go
// through a circuit breaker; while it is open, predictions are buffered and
// replayed once Redis recovers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"indlink/internal/metrics"
	"indlink/internal/model"
	"indlink/internal/ringbuf"
)

const (
	defaultLatestTTL    = 30 * time.Minute
	defaultWriteTimeout = 250 * time.Millisecond
	defaultMaxBuffered  = 10000
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	LatestTTL    time.Duration // TTL of pred:latest:<instrument>
	WriteTimeout time.Duration // bound on one pipeline round trip
	MaxBuffered  int           // predictions kept while the breaker is open
	MaxFailures  int
	ResetTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.LatestTTL <= 0 {
		c.LatestTTL = defaultLatestTTL
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = defaultMaxBuffered
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 10 * time.Second
	}
}

// ChannelKey is the PubSub channel predictions for instrument are published on.
func ChannelKey(instrument string) string { return "pred:" + instrument }

// LatestKey holds the most recent prediction for instrument.
func LatestKey(instrument string) string { return "pred:latest:" + instrument }

// Publisher implements model.PredictionSink on Redis.
type Publisher struct {
	client  *goredis.Client
	cfg     Config
	cb      *CircuitBreaker
	log     zerolog.Logger
	metrics *metrics.Metrics

	// write sends one prediction; swapped in tests.
	write func(ctx context.Context, p model.Prediction) error

	mu     sync.Mutex
	buffer *ringbuf.Ring[model.Prediction]
}

var _ model.PredictionSink = (*Publisher)(nil)

// New connects to Redis, pings it and returns a Publisher.
func New(cfg Config, log zerolog.Logger, m *metrics.Metrics) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := newPublisher(client, cfg, log, m)
	p.log.Info().Str("addr", cfg.Addr).Msg("redis publisher connected")
	return p, nil
}

func newPublisher(client *goredis.Client, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Publisher {
	cfg.applyDefaults()
	p := &Publisher{
		client:  client,
		cfg:     cfg,
		cb:      NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		log:     log.With().Str("component", "redis").Logger(),
		metrics: m,
		buffer:  ringbuf.New[model.Prediction](cfg.MaxBuffered),
	}
	p.write = p.pipelined
	p.cb.OnStateChange = func(from, to State) {
		p.metrics.BreakerState(int(to))
		p.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("redis circuit breaker")
		if to == StateClosed {
			go p.flush()
		}
	}
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Publish sends one prediction. Failures are logged and counted, never
// returned: a slow or absent Redis must not hold up the reply to the platform.
func (p *Publisher) Publish(ctx context.Context, pred model.Prediction) {
	err := p.cb.Execute(func() error {
		wctx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
		defer cancel()
		return p.write(wctx, pred)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		p.bufferPrediction(pred)
	default:
		p.metrics.PublishFailed()
		p.log.Warn().Err(err).Str("instrument", pred.Instrument).Msg("prediction publish failed")
	}
}

// pipelined writes SET latest + PUBLISH in one round trip.
func (p *Publisher) pipelined(ctx context.Context, pred model.Prediction) error {
	data := pred.JSON()
	pipe := p.client.Pipeline()
	pipe.Set(ctx, LatestKey(pred.Instrument), data, p.cfg.LatestTTL)
	pipe.Publish(ctx, ChannelKey(pred.Instrument), data)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Publisher) bufferPrediction(pred model.Prediction) {
	p.mu.Lock()
	evicted := p.buffer.PushEvict(pred)
	p.mu.Unlock()
	if evicted {
		p.log.Debug().Str("instrument", pred.Instrument).Msg("prediction buffer full, oldest dropped")
	}
}

// flush replays buffered predictions in arrival order.
func (p *Publisher) flush() {
	p.mu.Lock()
	pending := p.buffer.Drain()
	p.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	failed := 0
	for _, pred := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		if err := p.write(ctx, pred); err != nil {
			failed++
		}
		cancel()
	}
	if failed > 0 {
		p.metrics.PublishFailed()
	}
	p.log.Info().Int("flushed", len(pending)-failed).Int("failed", failed).Msg("buffered predictions replayed")
}

// Pending returns the number of buffered predictions.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.Len()
}

// Dropped returns how many buffered predictions were discarded for space.
func (p *Publisher) Dropped() uint64 {
	return p.buffer.Overflow()
}

// Latest reads the most recent prediction for instrument. It returns
// (nil, nil) when none is stored.
func (p *Publisher) Latest(ctx context.Context, instrument string) (*model.Prediction, error) {
	data, err := p.client.Get(ctx, LatestKey(instrument)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", LatestKey(instrument), err)
	}
	var pred model.Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		return nil, fmt.Errorf("decode %s: %w", LatestKey(instrument), err)
	}
	return &pred, nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
