package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/form-relay-service/internal/apperr"
	"github.com/PratikDhanave/form-relay-service/internal/models"
)

// tickingClock returns a clock that advances one microsecond per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Microsecond)
		return t
	}
}

func newTestLog(t *testing.T, opts ...Option) *AppendLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storage", "data.json")
	s := NewAppendLog(path, append([]Option{WithClock(tickingClock())}, opts...)...)
	require.NoError(t, s.Init())
	return s
}

func TestInit_CreatesEmptyObject(t *testing.T) {
	s := newTestLog(t)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(data))
}

func TestInit_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"k":{"a":"b"}}`), 0o644))

	s := NewAppendLog(path)
	require.NoError(t, s.Init())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"k":{"a":"b"}}`, string(data))
}

func TestAppend_AddsExactlyOneEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestLog(t)

	before, err := s.Snapshot(ctx)
	require.NoError(t, err)

	rec := models.Record{"name": "Ada", "city": "London"}
	key, err := s.Append(ctx, rec)
	require.NoError(t, err)

	after, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before)+1)
	require.Equal(t, rec, after[key])
	require.Equal(t, "2024-05-01T12:00:00.000001", key)
}

func TestAppend_IdenticalBodyTwiceGivesTwoEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestLog(t)

	rec := models.Record{"name": "Ada"}
	k1, err := s.Append(ctx, rec)
	require.NoError(t, err)
	k2, err := s.Append(ctx, rec)
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)

	doc, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, doc, 2)
}

func TestAppend_TimestampCollisionOverwrites(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	s := newTestLog(t, WithClock(func() time.Time { return fixed }))

	_, err := s.Append(ctx, models.Record{"n": "1"})
	require.NoError(t, err)
	_, err = s.Append(ctx, models.Record{"n": "2"})
	require.NoError(t, err)

	doc, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, doc, 1)
	require.Equal(t, models.Record{"n": "2"}, doc["2024-05-01T12:00:00.000000"])
}

func TestAppend_RecreatesDeletedFile(t *testing.T) {
	ctx := context.Background()
	s := newTestLog(t)

	_, err := s.Append(ctx, models.Record{"a": "1"})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Dir(s.Path())))

	_, err = s.Append(ctx, models.Record{"b": "2"})
	require.NoError(t, err)

	doc, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, doc, 1)
}

func TestAppend_CorruptFileIsIOFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestLog(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	_, err := s.Append(ctx, models.Record{"a": "1"})
	require.ErrorIs(t, err, apperr.ErrIOFailure)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.Equal(t, "{not json", string(data))
}

func TestAppend_WritesIndentedUnescapedJSON(t *testing.T) {
	ctx := context.Background()
	s := newTestLog(t)

	_, err := s.Append(ctx, models.Record{"name": "Ада <b>"})
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, "Ада <b>")
	require.True(t, strings.HasPrefix(text, "{\n    \""), text)
}

func TestAppend_ConcurrentCallersDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestLog(t)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, models.Record{"i": "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, doc, n)
}

func TestAppend_CancelledContext(t *testing.T) {
	s := newTestLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Append(ctx, models.Record{"a": "1"})
	require.ErrorIs(t, err, context.Canceled)
}

type recordingMirror struct {
	entries []models.Entry
	err     error
}

func (m *recordingMirror) InsertSubmission(_ context.Context, e models.Entry) error {
	m.entries = append(m.entries, e)
	return m.err
}

func TestAppend_CopiesToMirror(t *testing.T) {
	ctx := context.Background()
	m := &recordingMirror{}
	s := newTestLog(t, WithMirror(m))

	key, err := s.Append(ctx, models.Record{"a": "1"})
	require.NoError(t, err)
	require.Equal(t, []models.Entry{{Key: key, Record: models.Record{"a": "1"}}}, m.entries)
}

func TestAppend_MirrorFailureKeepsFileEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestLog(t, WithMirror(&recordingMirror{err: errors.New("db down")}))

	key, err := s.Append(ctx, models.Record{"a": "1"})
	require.NoError(t, err)

	doc, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, doc, key)
}

type pingingMirror struct {
	recordingMirror
	pings int
}

func (m *pingingMirror) Ping(context.Context) error {
	m.pings++
	return errors.New("still down")
}

func TestAppend_MirrorFailureChecksConnectivity(t *testing.T) {
	ctx := context.Background()
	m := &pingingMirror{recordingMirror: recordingMirror{err: errors.New("db down")}}
	s := newTestLog(t, WithMirror(m))

	_, err := s.Append(ctx, models.Record{"a": "1"})
	require.NoError(t, err)
	require.Equal(t, 1, m.pings)

	m.err = nil
	_, err = s.Append(ctx, models.Record{"b": "2"})
	require.NoError(t, err)
	require.Equal(t, 1, m.pings)
}
