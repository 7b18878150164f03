// Package indserver wires configuration into a running indicator endpoint:
// the websocket link, the admin API and the optional Redis and SQLite sinks.
package indserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"indlink/config"
	"indlink/internal/api"
	"indlink/internal/indicator"
	"indlink/internal/link"
	"indlink/internal/logger"
	"indlink/internal/metrics"
	"indlink/internal/model"
	"indlink/internal/regression"
	redisstore "indlink/internal/store/redis"
	sqlitestore "indlink/internal/store/sqlite"
)

// Service is the top-level orchestrator. It owns every long-lived
// dependency and manages their lifecycle.
type Service struct {
	cfg    *config.Config
	log    zerolog.Logger
	schema *indicator.Schema

	reg       *prometheus.Registry
	prom      *metrics.Metrics
	health    *metrics.HealthStatus
	model     regression.Regressor
	publisher *redisstore.Publisher
	journal   *sqlitestore.Journal

	link      *link.Server
	linkHTTP  *http.Server
	linkAddr  net.Addr
	ready     chan struct{}
	admin     *echo.Echo
	adminAddr string
}

// New builds a Service. Redis and SQLite failures are fatal only when they
// are configured.
func New(cfg *config.Config, log zerolog.Logger) (*Service, error) {
	schema, err := cfg.Schema()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	svc := &Service{
		cfg:       cfg,
		log:       log,
		schema:    schema,
		reg:       reg,
		prom:      metrics.New(reg),
		health:    metrics.NewHealthStatus(),
		adminAddr: cfg.AdminAddr,
		ready:     make(chan struct{}),
	}

	if svc.model, err = loadModel(cfg); err != nil {
		return nil, err
	}
	svc.health.SetModelLoaded(svc.model != nil)

	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return nil, fmt.Errorf("export dir: %w", err)
	}

	if cfg.RedisAddr != "" {
		svc.publisher, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, log, svc.prom)
		if err != nil {
			return nil, err
		}
	}

	if cfg.JournalPath != "" {
		svc.journal, err = sqlitestore.Open(sqlitestore.Config{DBPath: cfg.JournalPath}, log)
		if err != nil {
			svc.closeStores()
			return nil, err
		}
	}

	svc.link = link.NewServer(svc.newSession,
		link.WithTOTPSecret(cfg.LinkTOTPSecret),
		link.WithHelloTimeout(cfg.HelloTimeout),
		link.WithServerMetrics(svc.prom),
		link.WithHealth(svc.health),
		link.WithServerLogger(log.With().Str("component", "link").Logger()),
	)

	deps := api.Deps{
		Registry: svc.link.Registry(),
		Health:   svc.health,
		Gatherer: reg,
		Log:      log.With().Str("component", "api").Logger(),
	}
	if svc.journal != nil {
		deps.Journal = svc.journal
	}
	if svc.publisher != nil {
		deps.Predictions = svc.publisher
	}
	svc.admin = api.NewRouter(deps)

	return svc, nil
}

func loadModel(cfg *config.Config) (regression.Regressor, error) {
	switch {
	case cfg.ModelPath != "":
		m, err := regression.LoadLinear(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("load model: %w", err)
		}
		return m, nil
	case cfg.ModelURL != "":
		return regression.NewHTTPModel(cfg.ModelURL,
			regression.WithTimeout(cfg.ModelTimeout),
			regression.WithShape(cfg.FeatureWidth, 1),
		), nil
	default:
		return nil, nil
	}
}

// newSession is the link.SessionFactory: one indicator session per accepted HELLO.
func (svc *Service) newSession(ctx context.Context, id string, hello model.Hello, w model.PacketWriter) (*indicator.Session, error) {
	log := logger.Ctx(ctx, svc.log).With().
		Str("indicator", hello.IndicatorName).
		Str("remote_type", hello.RemoteType).
		Logger()

	opts := []indicator.Option{
		indicator.WithID(id),
		indicator.WithLogger(log),
		indicator.WithMetrics(svc.prom),
		indicator.WithExportDir(svc.cfg.ExportDir),
	}
	if svc.journal != nil {
		opts = append(opts, indicator.WithExportJournal(svc.journal))
	}
	if svc.model != nil {
		opts = append(opts,
			indicator.WithModel(svc.model, svc.cfg.PredictConfig()),
			indicator.WithWriter(w),
		)
		if svc.publisher != nil {
			opts = append(opts, indicator.WithPredictionSink(svc.publisher))
		}
	}
	return indicator.NewSession(svc.schema, opts...)
}

// Handler returns the link endpoint mux, for embedding and tests.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(svc.cfg.LinkPath, svc.link)
	return mux
}

// Ready is closed once the link listener is bound.
func (svc *Service) Ready() <-chan struct{} { return svc.ready }

// LinkAddr returns the bound link address. Valid after Ready.
func (svc *Service) LinkAddr() net.Addr { return svc.linkAddr }

// Run serves the link and admin API until ctx is cancelled, then shuts
// both down, terminates open sessions and closes the stores.
func (svc *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", svc.cfg.LinkAddr)
	if err != nil {
		svc.closeStores()
		return fmt.Errorf("link listen: %w", err)
	}
	svc.linkAddr = ln.Addr()
	close(svc.ready)

	var rdb *goredis.Client
	if svc.publisher != nil {
		rdb = svc.publisher.Client()
	}
	var db *sql.DB
	if svc.journal != nil {
		db = svc.journal.DB()
	}
	svc.health.StartLivenessChecker(ctx, rdb, db, 10*time.Second)

	svc.linkHTTP = &http.Server{
		Addr:              svc.cfg.LinkAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		svc.log.Info().Str("addr", ln.Addr().String()).Str("path", svc.cfg.LinkPath).Msg("link listening")
		svc.health.SetLinkListening(true)
		if err := svc.linkHTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("link server: %w", err)
		}
	}()
	go func() {
		svc.log.Info().Str("addr", svc.adminAddr).Msg("admin API listening (/healthz, /metrics, /api/v1)")
		if err := svc.admin.Start(svc.adminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	svc.log.Info().
		Str("mode", svc.mode()).
		Strs("fields", svc.schema.Specs()).
		Str("export_dir", svc.cfg.ExportDir).
		Bool("redis", svc.publisher != nil).
		Bool("journal", svc.journal != nil).
		Msg("indicator endpoint running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	svc.shutdown()
	return runErr
}

func (svc *Service) mode() string {
	if svc.model != nil {
		return indicator.ModePredicting.String()
	}
	return indicator.ModeCollecting.String()
}

// shutdown stops accepting connections, closes open link sessions and
// waits for their exports, then closes the stores they write to.
func (svc *Service) shutdown() {
	svc.log.Info().Msg("shutdown signal received")
	svc.health.SetLinkListening(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if svc.linkHTTP != nil {
		if err := svc.linkHTTP.Shutdown(ctx); err != nil {
			svc.log.Warn().Err(err).Msg("link server shutdown")
		}
	}
	if err := svc.link.Shutdown(ctx); err != nil {
		svc.log.Warn().Err(err).Msg("link sessions did not terminate in time")
	}
	if err := svc.admin.Shutdown(ctx); err != nil {
		svc.log.Warn().Err(err).Msg("admin server shutdown")
	}

	svc.closeStores()
	svc.log.Info().Msg("shutdown complete")
}

func (svc *Service) closeStores() {
	if svc.journal != nil {
		svc.journal.Close()
	}
	if svc.publisher != nil {
		svc.publisher.Close()
	}
}
