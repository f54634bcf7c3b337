package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/PratikDhanave/form-relay-service/internal/apperr"
	"github.com/PratikDhanave/form-relay-service/internal/metrics"
	"github.com/PratikDhanave/form-relay-service/internal/models"
)

// TimestampLayout renders append log keys: local wall clock with microseconds.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// AppendLog is the single JSON document holding every accepted submission.
//
// Append is a read-whole/merge/write-whole cycle. The mutex makes sure two
// cycles never interleave, so concurrent callers cannot lose updates.
type AppendLog struct {
	path   string
	now    func() time.Time
	mirror Mirror
	log    zerolog.Logger

	mu sync.Mutex
}

// Mirror receives a copy of every entry after it was written to the file.
// Mirror failures are logged and never undo the file append.
type Mirror interface {
	InsertSubmission(ctx context.Context, e models.Entry) error
}

// Option configures an AppendLog.
type Option func(*AppendLog)

// WithClock overrides the clock used for entry keys.
func WithClock(now func() time.Time) Option {
	return func(s *AppendLog) { s.now = now }
}

// WithMirror copies appended entries to m.
func WithMirror(m Mirror) Option {
	return func(s *AppendLog) { s.mirror = m }
}

// WithLogger sets the logger used for mirror failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *AppendLog) { s.log = l }
}

// NewAppendLog returns a store backed by the JSON file at path.
// Call Init before the first Append.
func NewAppendLog(path string, opts ...Option) *AppendLog {
	s := &AppendLog{
		path: path,
		now:  time.Now,
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the backing file path.
func (s *AppendLog) Path() string {
	return s.path
}

// Init creates the parent directory and an empty JSON object if the file is missing.
// An existing file is left untouched.
func (s *AppendLog) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %v: %w", s.path, err, apperr.ErrIOFailure)
	}
	return s.write(models.Document{})
}

// Append stores rec under a fresh timestamp key and rewrites the whole file.
// An entry with an identical key is overwritten.
// Errors wrap apperr.ErrIOFailure; the document on disk is then unchanged.
func (s *AppendLog) Append(ctx context.Context, rec models.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		metrics.AppendsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	key := s.now().Format(TimestampLayout)
	doc[key] = rec

	if err := s.write(doc); err != nil {
		metrics.AppendsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.AppendsTotal.WithLabelValues("ok").Inc()

	if s.mirror != nil {
		if err := s.mirror.InsertSubmission(ctx, models.Entry{Key: key, Record: rec}); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("mirror insert failed")
			s.checkMirror(ctx)
		}
	}
	return key, nil
}

// checkMirror logs whether a mirror that supports Ping is reachable.
func (s *AppendLog) checkMirror(ctx context.Context) {
	p, ok := s.mirror.(interface {
		Ping(ctx context.Context) error
	})
	if !ok {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		s.log.Warn().Err(err).Msg("mirror unreachable")
		return
	}
	s.log.Info().Msg("mirror reachable, insert error was not a connectivity problem")
}

// Snapshot returns the current document. A missing file reads as empty.
func (s *AppendLog) Snapshot(ctx context.Context) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *AppendLog) read() (models.Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", s.path, err, apperr.ErrIOFailure)
	}

	doc := models.Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", s.path, err, apperr.ErrIOFailure)
	}
	if doc == nil {
		// the file held a JSON null
		doc = models.Document{}
	}
	return doc, nil
}

func (s *AppendLog) write(doc models.Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %v: %w", err, apperr.ErrIOFailure)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %v: %w", filepath.Dir(s.path), err, apperr.ErrIOFailure)
	}
	if err := renameio.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %v: %w", s.path, err, apperr.ErrIOFailure)
	}
	return nil
}
