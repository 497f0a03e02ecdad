package objectstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestFS_PutGet(t *testing.T) {
	s := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "summaryfiles", "filtered/validFiles.csv", []byte("v1")))
	data, err := s.Get(ctx, "summaryfiles", "filtered/validFiles.csv")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, s.Put(ctx, "summaryfiles", "filtered/validFiles.csv", []byte("v2")))
	data, err = s.Get(ctx, "summaryfiles", "filtered/validFiles.csv")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestFS_GetMissing(t *testing.T) {
	s := newTestFS(t)

	_, err := s.Get(context.Background(), "summaryfiles", "nope.csv")
	require.ErrorIs(t, err, domain.ErrObjectNotFound)
}

func TestFS_PutLeavesNoTempFiles(t *testing.T) {
	s := newTestFS(t)
	require.NoError(t, s.Put(context.Background(), "b", "k.csv", []byte("data")))

	entries, err := os.ReadDir(filepath.Join(s.root, "b"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k.csv", entries[0].Name())
}

func TestFS_ConcurrentPutsAreWholeObjects(t *testing.T) {
	s := newTestFS(t)
	ctx := context.Background()
	a := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := a
			if i%2 == 0 {
				data = b
			}
			assert.NoError(t, s.Put(ctx, "b", "k.csv", data))
		}()
	}
	wg.Wait()

	data, err := s.Get(ctx, "b", "k.csv")
	require.NoError(t, err)
	assert.True(t, string(data) == string(a) || string(data) == string(b))
}

func TestFS_CopyDeleteList(t *testing.T) {
	s := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "out", "analysis/temp/part-1.csv", []byte("p1")))
	require.NoError(t, s.Put(ctx, "out", "analysis/temp/_SUCCESS", nil))
	require.NoError(t, s.Put(ctx, "out", "analysis/other.csv", []byte("x")))

	keys, err := s.List(ctx, "out", "analysis/temp/")
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis/temp/_SUCCESS", "analysis/temp/part-1.csv"}, keys)

	require.NoError(t, s.Copy(ctx, "out", "analysis/temp/part-1.csv", "analysis/final.csv"))
	data, err := s.Get(ctx, "out", "analysis/final.csv")
	require.NoError(t, err)
	assert.Equal(t, "p1", string(data))

	require.NoError(t, s.Delete(ctx, "out", "analysis/temp/part-1.csv"))
	require.NoError(t, s.Delete(ctx, "out", "analysis/temp/part-1.csv"), "deleting twice is fine")

	keys, err = s.List(ctx, "out", "analysis/temp/")
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis/temp/_SUCCESS"}, keys)
}

func TestFS_ListMissingBucket(t *testing.T) {
	s := newTestFS(t)

	keys, err := s.List(context.Background(), "empty", "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFS_CopyMissingSource(t *testing.T) {
	s := newTestFS(t)

	err := s.Copy(context.Background(), "b", "missing.csv", "dst.csv")
	require.ErrorIs(t, err, domain.ErrObjectNotFound)
}

func TestFS_RejectsEscapingPaths(t *testing.T) {
	s := newTestFS(t)
	ctx := context.Background()

	assert.Error(t, s.Put(ctx, "b", "../../etc/passwd", []byte("x")))
	assert.Error(t, s.Put(ctx, "../b", "k", []byte("x")))
	assert.Error(t, s.Put(ctx, "", "k", []byte("x")))
	_, err := s.Get(ctx, "b", "../other/k")
	assert.Error(t, err)
}

type recordingEmitter struct {
	events []domain.ObjectEvent
	err    error
}

func (e *recordingEmitter) Emit(_ context.Context, ev domain.ObjectEvent) error {
	e.events = append(e.events, ev)
	return e.err
}

func TestNotifying_EmitsOnWrites(t *testing.T) {
	em := &recordingEmitter{}
	s := NewNotifying(newTestFS(t), em)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "out", "analysis/temp/part.csv", []byte("p")))
	require.NoError(t, s.Copy(ctx, "out", "analysis/temp/part.csv", "analysis/final.csv"))
	require.NoError(t, s.Delete(ctx, "out", "analysis/temp/part.csv"))
	_, err := s.Get(ctx, "out", "analysis/final.csv")
	require.NoError(t, err)

	assert.Equal(t, []domain.ObjectEvent{
		{Bucket: "out", Key: "analysis/temp/part.csv"},
		{Bucket: "out", Key: "analysis/final.csv"},
	}, em.events)
}

func TestNotifying_EmitFailure(t *testing.T) {
	em := &recordingEmitter{err: errors.New("broker down")}
	s := NewNotifying(newTestFS(t), em)

	err := s.Put(context.Background(), "out", "k.csv", []byte("p"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	data, getErr := s.Get(context.Background(), "out", "k.csv")
	require.NoError(t, getErr, "the object is written even when the event is not")
	assert.Equal(t, "p", string(data))
}

func TestNotifying_NoEventOnFailedWrite(t *testing.T) {
	em := &recordingEmitter{}
	s := NewNotifying(newTestFS(t), em)

	require.Error(t, s.Copy(context.Background(), "out", "missing.csv", "dst.csv"))
	assert.Empty(t, em.events)
}
