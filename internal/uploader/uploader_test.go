package uploader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablodl/internal/storage"
)

type fakeClient struct {
	mu      sync.Mutex
	uploads []string
	failOn  map[string]bool
}

func (c *fakeClient) Name() string { return "fake" }

func (c *fakeClient) Authenticate(_ context.Context) error { return nil }

func (c *fakeClient) Upload(_ context.Context, r io.Reader, name string, _ int64) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failOn[name] {
		return "", errors.New("backend rejected upload")
	}

	c.uploads = append(c.uploads, name)

	return "ref-" + name, nil
}

func (c *fakeClient) uploaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.uploads...)
}

type memLedger struct {
	mu      sync.Mutex
	records map[string]storage.UploadRecord
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[string]storage.UploadRecord)}
}

func (l *memLedger) FindByIdentity(_ context.Context, identity string) (storage.UploadRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[identity]
	if !ok {
		return storage.UploadRecord{}, storage.ErrNotFound
	}

	return rec, nil
}

func (l *memLedger) RecordUpload(_ context.Context, rec storage.UploadRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[rec.Identity] = rec

	return nil
}

func (l *memLedger) Uploads(_ context.Context) ([]storage.UploadRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := make([]storage.UploadRecord, 0, len(l.records))
	for _, rec := range l.records {
		records = append(records, rec)
	}

	return records, nil
}

type harness struct {
	dir    string
	client *fakeClient
	ledger *memLedger
	up     *Uploader
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		dir:    t.TempDir(),
		client: &fakeClient{failOn: make(map[string]bool)},
		ledger: newMemLedger(),
	}
	h.up = New(h.client, h.ledger, nil, 2, 0)

	return h
}

func (h *harness) writeVideo(t *testing.T, name, content string, modTime time.Time) string {
	t.Helper()

	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))

	return path
}

// seedRecord marks the given content as already uploaded.
func (h *harness) seedRecord(t *testing.T, path string) {
	t.Helper()

	identity, err := FileIdentity(path)
	require.NoError(t, err)

	require.NoError(t, h.ledger.RecordUpload(context.Background(), storage.UploadRecord{
		Identity:   identity,
		FileName:   filepath.Base(path),
		Provider:   "fake",
		UploadedAt: time.Now().UTC(),
	}))
}

func TestUploadIfNeededUploadsAndRecords(t *testing.T) {
	h := newHarness(t)
	path := h.writeVideo(t, "show.mp4", "recording bytes", time.Now())

	outcome, err := h.up.UploadIfNeeded(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUploaded, outcome)
	assert.Equal(t, []string{"show.mp4"}, h.client.uploaded())

	identity, err := FileIdentity(path)
	require.NoError(t, err)

	rec, err := h.ledger.FindByIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, "show.mp4", rec.FileName)
	assert.EqualValues(t, len("recording bytes"), rec.FileSize)
	assert.Equal(t, "fake", rec.Provider)
	assert.Equal(t, "ref-show.mp4", rec.RemoteRef)
	assert.False(t, rec.UploadedAt.IsZero())
}

func TestUploadIfNeededSkipsDuplicateContent(t *testing.T) {
	h := newHarness(t)
	original := h.writeVideo(t, "show.mp4", "same bytes", time.Now())

	_, err := h.up.UploadIfNeeded(context.Background(), original, Options{})
	require.NoError(t, err)

	// Same content under a different name dedups on identity.
	renamed := h.writeVideo(t, "renamed.mp4", "same bytes", time.Now())

	outcome, err := h.up.UploadIfNeeded(context.Background(), renamed, Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedDuplicate, outcome)
	assert.Equal(t, []string{"show.mp4"}, h.client.uploaded())
}

func TestUploadIfNeededRetriesAfterFailure(t *testing.T) {
	h := newHarness(t)
	path := h.writeVideo(t, "show.mp4", "recording bytes", time.Now())
	h.client.failOn["show.mp4"] = true

	outcome, err := h.up.UploadIfNeeded(context.Background(), path, Options{})
	assert.Equal(t, OutcomeFailed, outcome)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "show.mp4", uploadErr.FileName)
	assert.Equal(t, "fake", uploadErr.Provider)

	// Nothing recorded, so the next run uploads.
	identity, err := FileIdentity(path)
	require.NoError(t, err)

	_, err = h.ledger.FindByIdentity(context.Background(), identity)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	h.client.failOn = map[string]bool{}

	outcome, err = h.up.UploadIfNeeded(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUploaded, outcome)
}

func TestUploadIfNeededDryRun(t *testing.T) {
	h := newHarness(t)
	path := h.writeVideo(t, "show.mp4", "recording bytes", time.Now())

	outcome, err := h.up.UploadIfNeeded(context.Background(), path, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUploaded, outcome)
	assert.Empty(t, h.client.uploaded())

	uploads, err := h.ledger.Uploads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, uploads)
}

func TestUploadIfNeededEmptyFile(t *testing.T) {
	h := newHarness(t)
	path := h.writeVideo(t, "empty.mp4", "", time.Now())

	outcome, err := h.up.UploadIfNeeded(context.Background(), path, Options{})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorContains(t, err, "empty")
}

func TestUploadIfNeededMissingFile(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.up.UploadIfNeeded(context.Background(), filepath.Join(h.dir, "nope.mp4"), Options{})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Error(t, err)
}

func TestUploadDir(t *testing.T) {
	h := newHarness(t)
	now := time.Now()

	h.writeVideo(t, "a.mp4", "content a", now)
	recorded := h.writeVideo(t, "b.mkv", "content b", now)
	h.seedRecord(t, recorded)
	h.writeVideo(t, "c.mov", "content c", now)
	h.client.failOn["c.mov"] = true
	h.writeVideo(t, "notes.txt", "not a video", now)
	h.writeVideo(t, "empty.mp4", "", now)

	summary, err := h.up.UploadDir(context.Background(), h.dir, Options{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.mp4"}, summary.Uploaded)
	assert.ElementsMatch(t, []string{"b.mkv"}, summary.Skipped)
	assert.ElementsMatch(t, []string{"c.mov"}, summary.Failed)
	assert.Equal(t, []string{"a.mp4"}, h.client.uploaded())
}

func TestUploadDirMissingDirectory(t *testing.T) {
	h := newHarness(t)

	_, err := h.up.UploadDir(context.Background(), filepath.Join(h.dir, "nope"), Options{})
	assert.ErrorContains(t, err, "failed to read directory")
}

func TestUploadNewestPicksNewest(t *testing.T) {
	h := newHarness(t)
	now := time.Now()

	h.writeVideo(t, "old.mp4", "old content", now.Add(-2*time.Hour))
	h.writeVideo(t, "new.mp4", "new content", now)

	summary, err := h.up.UploadNewest(context.Background(), h.dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"new.mp4"}, summary.Uploaded)
	assert.Empty(t, summary.Skipped)
	assert.Equal(t, []string{"new.mp4"}, h.client.uploaded())
}

func TestUploadNewestIgnoresOlderUnrecorded(t *testing.T) {
	h := newHarness(t)
	now := time.Now()

	h.writeVideo(t, "old.mp4", "old content", now.Add(-2*time.Hour))
	newest := h.writeVideo(t, "new.mp4", "new content", now)
	h.seedRecord(t, newest)

	summary, err := h.up.UploadNewest(context.Background(), h.dir, Options{})
	require.NoError(t, err)

	// The newest file is already uploaded; older files are not considered.
	assert.Empty(t, summary.Uploaded)
	assert.Equal(t, []string{"new.mp4"}, summary.Skipped)
	assert.Empty(t, h.client.uploaded())
}

func TestUploadNewestEmptyDirectory(t *testing.T) {
	h := newHarness(t)

	summary, err := h.up.UploadNewest(context.Background(), h.dir, Options{})
	require.NoError(t, err)
	assert.Empty(t, summary.Uploaded)
	assert.Empty(t, summary.Skipped)
	assert.Empty(t, summary.Failed)
}

func TestFileIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	identity, err := FileIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", identity)

	_, err = FileIdentity(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}
