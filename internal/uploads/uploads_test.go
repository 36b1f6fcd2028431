package uploads

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/screener-go/internal/api"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUploader records uploads and fails names listed in fail.
type fakeUploader struct {
	mu     gosync.Mutex
	names  []string
	bodies map[string]string
	fail   map[string]bool
	delay  time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{bodies: make(map[string]string), fail: make(map[string]bool)}
}

func (f *fakeUploader) Upload(ctx context.Context, name string, content io.Reader) (*api.UploadResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(name)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail[base] {
		return nil, errors.New("server rejected " + base)
	}

	f.names = append(f.names, base)
	f.bodies[base] = string(data)

	return &api.UploadResult{File: base, BlobName: "guest/" + base}, nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.names...)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestBatch_UploadsEveryFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "alice.pdf", "alice"),
		writeFile(t, dir, "bob.docx", "bob"),
		writeFile(t, dir, "carol.txt", "carol"),
	}

	up := newFakeUploader()
	report := Batch(context.Background(), up, paths, 2, testLogger(t))

	require.NoError(t, report.Err())
	assert.Equal(t, 3, report.Uploaded)
	assert.Equal(t, 0, report.Failed)
	assert.ElementsMatch(t, []string{"alice.pdf", "bob.docx", "carol.txt"}, up.uploaded())
	assert.Equal(t, "bob", up.bodies["bob.docx"])

	for i, res := range report.Results {
		assert.Equal(t, paths[i], res.Path, "results keep input order")
		assert.Equal(t, "guest/"+filepath.Base(paths[i]), res.BlobName)
	}
}

func TestBatch_FailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "good.pdf", "x"),
		writeFile(t, dir, "bad.pdf", "x"),
		filepath.Join(dir, "missing.pdf"),
		writeFile(t, dir, "also-good.pdf", "x"),
	}

	up := newFakeUploader()
	up.fail["bad.pdf"] = true

	report := Batch(context.Background(), up, paths, 1, testLogger(t))

	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, 2, report.Failed)
	assert.ElementsMatch(t, []string{"good.pdf", "also-good.pdf"}, up.uploaded())

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.pdf")
	assert.Contains(t, err.Error(), "missing.pdf")
	assert.ErrorIs(t, report.Results[2].Err, os.ErrNotExist)
}

func TestBatch_RespectsWorkerLimit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var paths []string
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf"} {
		paths = append(paths, writeFile(t, dir, name, name))
	}

	up := newFakeUploader()
	up.delay = 20 * time.Millisecond

	report := Batch(context.Background(), up, paths, 2, testLogger(t))

	require.NoError(t, report.Err())
	assert.Equal(t, 6, report.Uploaded)
	assert.LessOrEqual(t, up.maxInFlight.Load(), int32(2))
}

func TestBatch_NonPositiveWorkersUsesDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := []string{writeFile(t, dir, "a.pdf", "a")}

	report := Batch(context.Background(), newFakeUploader(), paths, 0, testLogger(t))
	assert.Equal(t, 1, report.Uploaded)
}

func TestBatch_Empty(t *testing.T) {
	t.Parallel()

	report := Batch(context.Background(), newFakeUploader(), nil, 4, testLogger(t))

	require.NoError(t, report.Err())
	assert.Zero(t, report.Uploaded)
	assert.Empty(t, report.Results)
}
