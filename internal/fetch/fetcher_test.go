package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablodl/internal/catalog"
	"tablodl/internal/ffmpeg"
)

type fakeDevice struct {
	manifest      string
	manifestErr   error
	manifestCalls int
	deleted       []string
	deleteErr     error
}

func (d *fakeDevice) Manifest(_ context.Context, _ string) (string, error) {
	d.manifestCalls++

	if d.manifestErr != nil {
		return "", d.manifestErr
	}

	return d.manifest, nil
}

func (d *fakeDevice) Delete(_ context.Context, id string) error {
	if d.deleteErr != nil {
		return d.deleteErr
	}

	d.deleted = append(d.deleted, id)

	return nil
}

type fakeTranscoder struct {
	size        int64
	err         error
	gotManifest string
	gotTitle    string
}

func (t *fakeTranscoder) Remux(_ context.Context, manifestPath, outputPath, title string) error {
	body, _ := os.ReadFile(manifestPath)
	t.gotManifest = string(body)
	t.gotTitle = title

	if t.err != nil {
		return t.err
	}

	return os.WriteFile(outputPath, make([]byte, t.size), 0o644)
}

// fakeProber returns queued durations in call order, repeating the last
// one once the queue drains.
type fakeProber struct {
	queue []float64
	err   error
}

func (p *fakeProber) Probe(_ context.Context, _ string) (ffmpeg.ProbeResult, error) {
	if p.err != nil {
		return ffmpeg.ProbeResult{}, p.err
	}

	seconds := p.queue[0]
	if len(p.queue) > 1 {
		p.queue = p.queue[1:]
	}

	return ffmpeg.ProbeResult{Format: ffmpeg.Format{Duration: fmt.Sprintf("%f", seconds)}}, nil
}

type stateChange struct {
	id     string
	status catalog.Status
	path   string
}

type fakeRepo struct {
	changes []stateChange
}

func (r *fakeRepo) SetDownloadState(_ context.Context, _, id string, status catalog.Status, localPath string, _ time.Time) error {
	r.changes = append(r.changes, stateChange{id: id, status: status, path: localPath})

	return nil
}

func (r *fakeRepo) last() stateChange {
	if len(r.changes) == 0 {
		return stateChange{}
	}

	return r.changes[len(r.changes)-1]
}

func testEntry() catalog.Entry {
	return catalog.Entry{
		Recording: catalog.Recording{
			ID:           "/recordings/series/episodes/1",
			DeviceID:     "tablo-1",
			Category:     catalog.CategorySeries,
			ShowTitle:    "The Show",
			EpisodeTitle: "Pilot",
			Season:       1,
			Episode:      2,
			Duration:     1800,
			State:        catalog.StateFinished,
		},
	}
}

type harness struct {
	dir        string
	device     *fakeDevice
	transcoder *fakeTranscoder
	prober     *fakeProber
	repo       *fakeRepo
	fetcher    *Fetcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		dir:        t.TempDir(),
		device:     &fakeDevice{manifest: "#EXTM3U\nhttp://10.0.0.2:8885/stream/seg0.ts\n"},
		transcoder: &fakeTranscoder{size: 2 * MinFileSize},
		prober:     &fakeProber{queue: []float64{1800}},
		repo:       &fakeRepo{},
	}
	h.fetcher = New(h.device, h.transcoder, h.prober, h.repo, h.dir, true, 0, 0)

	return h
}

func (h *harness) targetPath() string {
	return filepath.Join(h.dir, "The_Show_-_Pilot_-_S01E02.mp4")
}

func (h *harness) writeExisting(t *testing.T, size int64) {
	t.Helper()
	require.NoError(t, os.WriteFile(h.targetPath(), make([]byte, size), 0o644))
}

func TestFetchSuccess(t *testing.T) {
	h := newHarness(t)

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{})
	require.NoError(t, err)

	assert.Equal(t, h.targetPath(), result.Path)
	assert.Equal(t, "The Show - Pilot", result.Title)
	assert.False(t, result.Skipped)
	assert.InDelta(t, 1800, result.Seconds, 0.001)

	info, err := os.Stat(h.targetPath())
	require.NoError(t, err)
	assert.EqualValues(t, 2*MinFileSize, info.Size())

	_, err = os.Stat(h.targetPath() + partialSuffix)
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, h.device.manifest, h.transcoder.gotManifest)
	assert.Equal(t, "The Show - Pilot", h.transcoder.gotTitle)

	require.Len(t, h.repo.changes, 2)
	assert.Equal(t, catalog.StatusDownloading, h.repo.changes[0].status)
	assert.Equal(t, catalog.StatusComplete, h.repo.changes[1].status)
	assert.Equal(t, h.targetPath(), h.repo.changes[1].path)
}

func TestFetchSkipsExistingValid(t *testing.T) {
	h := newHarness(t)
	h.writeExisting(t, 2*MinFileSize)

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{})
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Zero(t, h.device.manifestCalls)
	assert.Equal(t, catalog.StatusComplete, h.repo.last().status)
	assert.Equal(t, h.targetPath(), h.repo.last().path)
}

func TestFetchRedownloadsCorruptExisting(t *testing.T) {
	h := newHarness(t)
	// Below the minimum size, so the existing file counts as corrupt.
	h.writeExisting(t, 64)

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{})
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 1, h.device.manifestCalls)

	info, err := os.Stat(h.targetPath())
	require.NoError(t, err)
	assert.EqualValues(t, 2*MinFileSize, info.Size())
}

func TestFetchRemovesIncompleteExisting(t *testing.T) {
	h := newHarness(t)
	h.writeExisting(t, 2*MinFileSize)
	// Existing file probes at a third of the expected duration, the fresh
	// download at the full one.
	h.prober.queue = []float64{600, 1800}

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{})
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 1, h.device.manifestCalls)
}

func TestFetchKeepsDeviatingExisting(t *testing.T) {
	h := newHarness(t)
	h.writeExisting(t, 2*MinFileSize)
	// 16% off: might be a different airing, keep it.
	h.prober.queue = []float64{1500}

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{})
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Zero(t, h.device.manifestCalls)
}

func TestFetchOverwrite(t *testing.T) {
	h := newHarness(t)
	h.writeExisting(t, 3*MinFileSize)

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{Overwrite: true})
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 1, h.device.manifestCalls)

	info, err := os.Stat(h.targetPath())
	require.NoError(t, err)
	assert.EqualValues(t, 2*MinFileSize, info.Size())
}

func TestFetchTranscodeFailure(t *testing.T) {
	h := newHarness(t)
	h.transcoder.err = &ffmpeg.TranscodeError{ExitCode: 1, Output: "segment fetch failed"}

	_, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{})
	require.Error(t, err)

	var transcodeErr *ffmpeg.TranscodeError
	assert.ErrorAs(t, err, &transcodeErr)

	_, statErr := os.Stat(h.targetPath())
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, catalog.StatusFailed, h.repo.last().status)
}

func TestFetchValidationFailureRemovesPartial(t *testing.T) {
	h := newHarness(t)
	h.prober.queue = []float64{500}

	_, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{})
	require.Error(t, err)

	var invalid *InvalidFileError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "deviation")

	_, statErr := os.Stat(h.targetPath())
	assert.True(t, os.IsNotExist(statErr))

	_, statErr = os.Stat(h.targetPath() + partialSuffix)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, catalog.StatusFailed, h.repo.last().status)
}

func TestFetchDeleteOriginal(t *testing.T) {
	h := newHarness(t)

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{DeleteOriginal: true})
	require.NoError(t, err)

	assert.True(t, result.Removed)
	assert.Equal(t, []string{"/recordings/series/episodes/1"}, h.device.deleted)
}

func TestFetchDeleteOriginalFailureKeepsSuccess(t *testing.T) {
	h := newHarness(t)
	h.device.deleteErr = errors.New("device busy")

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{DeleteOriginal: true})
	require.NoError(t, err)

	assert.False(t, result.Removed)

	_, statErr := os.Stat(h.targetPath())
	assert.NoError(t, statErr)
}

func TestFetchDryRun(t *testing.T) {
	h := newHarness(t)

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{DryRun: true})
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Zero(t, h.device.manifestCalls)
	assert.Empty(t, h.repo.changes)

	_, statErr := os.Stat(h.targetPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchDryRunExisting(t *testing.T) {
	h := newHarness(t)
	h.writeExisting(t, 2*MinFileSize)

	result, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Empty(t, h.repo.changes)
}

func TestFetchManifestError(t *testing.T) {
	h := newHarness(t)
	h.device.manifestErr = errors.New("watch rejected")

	_, err := h.fetcher.Fetch(context.Background(), testEntry(), Options{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to resolve playlist manifest")
	assert.Equal(t, catalog.StatusFailed, h.repo.last().status)
}

func TestFetchUnnamableRecording(t *testing.T) {
	h := newHarness(t)

	entry := testEntry()
	entry.Category = "unknown"

	_, err := h.fetcher.Fetch(context.Background(), entry, Options{})
	assert.ErrorContains(t, err, "cannot derive a file name")
}
