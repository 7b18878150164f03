package link

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"indlink/internal/indicator"
	"indlink/internal/logger"
	"indlink/internal/metrics"
	"indlink/internal/model"
)

// ErrHandshake is returned when a client does not open with a valid HELLO.
var ErrHandshake = errors.New("link: handshake failed")

// SessionFactory builds the indicator session for an accepted HELLO. w is the
// reply channel bound to the connection.
type SessionFactory func(ctx context.Context, id string, hello model.Hello, w model.PacketWriter) (*indicator.Session, error)

// Server accepts platform connections and drives one indicator session per
// connection.
type Server struct {
	factory      SessionFactory
	upgrader     websocket.Upgrader
	secret       string
	helloTimeout time.Duration
	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
	registry     *Registry
	metrics      *metrics.Metrics
	health       *metrics.HealthStatus
	log          zerolog.Logger

	mu       sync.Mutex
	conns    map[*packetConn]struct{}
	closing  bool
	handlers sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTOTPSecret requires a valid one-time password in HELLO.
func WithTOTPSecret(secret string) ServerOption {
	return func(s *Server) { s.secret = strings.TrimSpace(secret) }
}

// WithHelloTimeout bounds the wait for the opening HELLO.
func WithHelloTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.helloTimeout = d }
}

// WithKeepalive sets the ping interval and the read deadline extended by each pong.
func WithKeepalive(pingInterval, pongWait time.Duration) ServerOption {
	return func(s *Server) {
		s.pingInterval = pingInterval
		s.pongWait = pongWait
	}
}

// WithRegistry publishes live sessions into r.
func WithRegistry(r *Registry) ServerOption { return func(s *Server) { s.registry = r } }

// WithServerMetrics records link metrics.
func WithServerMetrics(m *metrics.Metrics) ServerOption { return func(s *Server) { s.metrics = m } }

// WithHealth reports packet activity to h.
func WithHealth(h *metrics.HealthStatus) ServerOption { return func(s *Server) { s.health = h } }

// WithServerLogger sets the server logger.
func WithServerLogger(l zerolog.Logger) ServerOption { return func(s *Server) { s.log = l } }

// NewServer creates a link server.
func NewServer(factory SessionFactory, opts ...ServerOption) *Server {
	s := &Server{
		factory: factory,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		helloTimeout: 10 * time.Second,
		pingInterval: defaultPingInterval,
		pongWait:     defaultPongWait,
		writeWait:    defaultWriteWait,
		registry:     NewRegistry(),
		log:          zerolog.Nop(),
		conns:        make(map[*packetConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the live-session registry.
func (s *Server) Registry() *Registry { return s.registry }

// ServeHTTP upgrades the request and serves the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "link shutting down", http.StatusServiceUnavailable)
		return
	}
	s.handlers.Add(1)
	s.mu.Unlock()
	defer s.handlers.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("link upgrade failed")
		return
	}
	conn := newPacketConn(ws, s.writeWait)
	if !s.track(conn) {
		conn.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(conn)

	s.metrics.ConnectionOpened()
	s.serve(r.Context(), conn, r.RemoteAddr)
}

func (s *Server) track(c *packetConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *packetConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Shutdown refuses new connections, closes every open one and waits until
// each session has terminated (collecting sessions export on the way out)
// or ctx is done. Hijacked websockets are invisible to http.Server.Shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	open := make([]*packetConn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("link: shutdown: %w", ctx.Err())
	}
}

func (s *Server) serve(ctx context.Context, conn *packetConn, remote string) {
	conn.ws.SetReadLimit(maxPacketSize)

	hello, err := s.handshake(conn)
	if err != nil {
		s.metrics.HandshakeFailed()
		s.log.Warn().Err(err).Str("remote", remote).Msg("link handshake rejected")
		conn.WritePacket(model.PacketError, []string{err.Error()})
		conn.close(websocket.ClosePolicyViolation, "handshake failed")
		return
	}

	id := logger.GenerateSessionID(remote, time.Now())
	ctx = logger.WithSessionID(ctx, id)
	log := logger.Ctx(ctx, s.log).With().
		Str("remote", remote).
		Str("indicator", hello.IndicatorName).
		Logger()

	sess, err := s.factory(ctx, id, hello, conn)
	if err != nil {
		log.Error().Err(err).Msg("session setup failed")
		conn.WritePacket(model.PacketError, []string{"session setup failed: " + err.Error()})
		conn.close(websocket.CloseInternalServerErr, "session setup failed")
		return
	}

	blocking := "0"
	if sess.Blocking() {
		blocking = "1"
	}
	if err := conn.WritePacket(model.PacketSignals, append([]string{blocking}, sess.Requested()...)); err != nil {
		log.Warn().Err(err).Msg("SIGNALS write failed")
		s.terminate(ctx, sess, log)
		conn.close(websocket.CloseNormalClosure, "")
		return
	}

	s.registry.Add(SessionInfo{
		ID:            id,
		Remote:        remote,
		RemoteType:    hello.RemoteType,
		IndicatorName: hello.IndicatorName,
		Mode:          sess.Mode().String(),
		Fields:        sess.Requested(),
		ConnectedAt:   sess.StartedAt(),
	})
	s.metrics.SessionOpened()
	log.Info().Str("mode", sess.Mode().String()).Msg("session opened")

	stop := make(chan struct{})
	go conn.keepalive(s.pingInterval, stop)

	reason := s.loop(ctx, conn, sess, log)
	close(stop)

	s.terminate(ctx, sess, log)
	s.metrics.SessionClosed()
	s.registry.Remove(id)
	conn.close(websocket.CloseNormalClosure, "")
	log.Info().Str("reason", reason).Int("packets", sess.Packets()).Msg("session closed")
}

func (s *Server) handshake(conn *packetConn) (model.Hello, error) {
	conn.ws.SetReadDeadline(time.Now().Add(s.helloTimeout))
	p, err := conn.readPacket()
	if err != nil {
		return model.Hello{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	s.metrics.Packet(p.Command)
	if p.Command != model.PacketHello {
		return model.Hello{}, fmt.Errorf("%w: expected %s, got %s", ErrHandshake, model.PacketHello, p.Command)
	}
	hello := model.ParseHello(p)
	if s.secret != "" && !totp.Validate(hello.Code, s.secret) {
		return model.Hello{}, fmt.Errorf("%w: invalid one-time password", ErrHandshake)
	}
	return hello, nil
}

// loop reads packets until GOODBYE or disconnect and returns why it stopped.
func (s *Server) loop(ctx context.Context, conn *packetConn, sess *indicator.Session, log zerolog.Logger) string {
	conn.ws.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(s.pongWait))
		return nil
	})

	for {
		p, err := conn.readPacket()
		if err != nil {
			var de *decodeError
			if errors.As(err, &de) {
				s.metrics.PacketRejected("decode")
				if werr := conn.WritePacket(model.PacketError, []string{de.Error()}); werr != nil {
					return "write failed"
				}
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "closed by peer"
			}
			log.Debug().Err(err).Msg("link read ended")
			return "disconnected"
		}
		conn.ws.SetReadDeadline(time.Now().Add(s.pongWait))
		s.metrics.Packet(p.Command)

		switch p.Command {
		case model.PacketBar:
			now := time.Now()
			if err := sess.NotifyPacket(ctx, p.Args); err != nil {
				reason := "session"
				if errors.Is(err, indicator.ErrMalformedPacket) {
					reason = "malformed"
				}
				s.metrics.PacketRejected(reason)
				log.Warn().Err(err).Strs("args", p.Args).Msg("bar rejected")
				if werr := conn.WritePacket(model.PacketError, []string{err.Error()}); werr != nil {
					return "write failed"
				}
				continue
			}
			if s.health != nil {
				s.health.SetLastPacketTime(now)
			}
			s.registry.Touch(sess.ID(), sess.Packets(), sess.RowsDownloaded(), now)

		case model.PacketGoodbye:
			return "goodbye"

		default:
			s.metrics.PacketRejected("unsupported")
			if werr := conn.WritePacket(model.PacketWarning, []string{"unsupported command " + p.Command}); werr != nil {
				return "write failed"
			}
		}
	}
}

func (s *Server) terminate(ctx context.Context, sess *indicator.Session, log zerolog.Logger) {
	// The request context is gone once the peer disconnects; the export
	// must still run to completion.
	paths, err := sess.NotifyTermination(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, indicator.ErrTerminated) {
		log.Error().Err(err).Strs("files", paths).Msg("session termination failed")
	}
}
