package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/PratikDhanave/form-relay-service/internal/apperr"
	"github.com/PratikDhanave/form-relay-service/internal/formcodec"
	"github.com/PratikDhanave/form-relay-service/internal/metrics"
	"github.com/PratikDhanave/form-relay-service/internal/models"
)

// DefaultBufferSize bounds the single read done per connection.
const DefaultBufferSize = 1024

// Accept retry delays, as in net/http.Server.Serve.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Appender persists one decoded submission.
type Appender interface {
	Append(ctx context.Context, rec models.Record) (string, error)
}

// ServerConfig tunes the relay listener.
type ServerConfig struct {
	// BufferSize is the maximum number of bytes read from a connection.
	// Anything the peer sends past it is dropped.
	BufferSize int
	// ReadTimeout bounds the wait for the peer's bytes. Zero means no deadline.
	ReadTimeout time.Duration
}

// Server is the internal TCP listener feeding the append log.
//
// Connections are handled strictly one after another:
// accept, one bounded read, decode + append, close.
type Server struct {
	store Appender
	cfg   ServerConfig
	log   zerolog.Logger
}

// NewServer returns a relay server writing into store.
func NewServer(store Appender, cfg ServerConfig, log zerolog.Logger) *Server {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &Server{store: store, cfg: cfg, log: log}
}

// Listen binds the relay address.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

// Serve runs the accept loop until ctx is cancelled or ln is closed.
// Cancelling ctx closes ln; a connection being processed is allowed to finish.
// Other accept errors (EMFILE and friends) are retried with a capped backoff,
// so Serve only ever returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer ln.Close()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("relay listening")
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info().Msg("relay stopped")
				return nil
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0
		// in-flight work must not be cut short by shutdown
		s.handle(context.WithoutCancel(ctx), conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("connection accepted")

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	buf := make([]byte, s.cfg.BufferSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			log.Warn().Err(err).Msg("relay read failed")
			metrics.RelayConnectionsTotal.WithLabelValues("read_error").Inc()
			return
		}
		// readiness probes connect and close without sending anything
		log.Debug().Msg("empty connection")
		metrics.RelayConnectionsTotal.WithLabelValues("empty").Inc()
		return
	}
	log.Debug().Int("bytes", n).Msg("relay received")

	key, err := s.process(ctx, buf[:n])
	if err != nil {
		log.Error().Err(err).Str("kind", apperr.Kind(err)).Msg("submission dropped")
		metrics.RelayConnectionsTotal.WithLabelValues(apperr.Kind(err)).Inc()
		return
	}
	log.Info().Str("key", key).Msg("submission stored")
	metrics.RelayConnectionsTotal.WithLabelValues("ok").Inc()
}

func (s *Server) process(ctx context.Context, body []byte) (string, error) {
	rec, err := formcodec.Decode(body)
	if err != nil {
		return "", err
	}
	return s.store.Append(ctx, rec)
}
