package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBinary writes an executable shell script standing in for ffmpeg or
// ffprobe.
func stubBinary(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stub.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))

	return path
}

func TestRemuxArgv(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	binary := stubBinary(t, fmt.Sprintf("printf '%%s\\n' \"$@\" > %q\n", argsFile))

	runner := NewRunner(binary, "")
	require.NoError(t, runner.Remux(context.Background(), "/tmp/in.m3u", "/tmp/out.mp4.partial", "The Show - Pilot"))

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)

	want := []string{
		"-hide_banner", "-loglevel", "warning",
		"-protocol_whitelist", "file,http,https,tcp,tls,crypto",
		"-i", "/tmp/in.m3u",
		"-c", "copy",
		"-metadata", "title=The Show - Pilot",
		"-f", "mp4",
		"/tmp/out.mp4.partial",
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(string(raw)), "\n"))
}

func TestRemuxFailure(t *testing.T) {
	binary := stubBinary(t, "echo 'segment 4 failed' >&2\nexit 3\n")

	runner := NewRunner(binary, "")
	err := runner.Remux(context.Background(), "in.m3u", "out.mp4", "title")
	require.Error(t, err)

	var transcodeErr *TranscodeError
	require.ErrorAs(t, err, &transcodeErr)
	assert.Equal(t, 3, transcodeErr.ExitCode)
	assert.Contains(t, transcodeErr.Output, "segment 4 failed")
	assert.Contains(t, transcodeErr.Error(), "code 3")
}

func TestRemuxCancelled(t *testing.T) {
	binary := stubBinary(t, "sleep 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(binary, "")
	err := runner.Remux(ctx, "in.m3u", "out.mp4", "title")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProbe(t *testing.T) {
	binary := stubBinary(t, `cat <<'EOF'
{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2}
  ],
  "format": {"filename": "out.mp4", "nb_streams": 2, "duration": "1824.500000", "size": "734003200"}
}
EOF
`)

	runner := NewRunner("", binary)
	result, err := runner.Probe(context.Background(), "out.mp4")
	require.NoError(t, err)

	assert.InDelta(t, 1824.5, result.DurationSeconds(), 0.001)
	assert.Equal(t, 1, result.VideoStreamCount())
	assert.Len(t, result.Streams, 2)
}

func TestProbeBadOutput(t *testing.T) {
	binary := stubBinary(t, "echo 'not json'\n")

	runner := NewRunner("", binary)
	_, err := runner.Probe(context.Background(), "broken.mp4")
	assert.ErrorContains(t, err, "failed to parse ffprobe output")
}

func TestProbeExecFailure(t *testing.T) {
	binary := stubBinary(t, "exit 1\n")

	runner := NewRunner("", binary)
	_, err := runner.Probe(context.Background(), "missing.mp4")
	assert.ErrorContains(t, err, "failed to probe")
}

func TestOutputTail(t *testing.T) {
	assert.Equal(t, "short", outputTail([]byte("  short \n")))

	long := strings.Repeat("x", errOutputLimit+100)
	assert.Len(t, outputTail([]byte(long)), errOutputLimit)
}

func TestDurationSecondsUnavailable(t *testing.T) {
	assert.Zero(t, ProbeResult{}.DurationSeconds())
	assert.Zero(t, ProbeResult{Format: Format{Duration: "n/a"}}.DurationSeconds())
}
