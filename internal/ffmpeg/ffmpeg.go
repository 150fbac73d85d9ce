// Package ffmpeg wraps the ffmpeg and ffprobe binaries. Recordings stream
// as HLS segments; ffmpeg stitches them into a single MP4 without
// re-encoding, and ffprobe reads the result back for validation.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const (
	DefaultBinary      = "ffmpeg"
	DefaultProbeBinary = "ffprobe"

	// errOutputLimit caps how much process output a TranscodeError carries.
	errOutputLimit = 4 * 1024
)

// TranscodeError reports a failed ffmpeg run with the exit code and the
// tail of its diagnostic output.
type TranscodeError struct {
	ExitCode int    // Process exit code, -1 when the process never ran
	Output   string // Tail of combined stdout/stderr
	Err      error  // Underlying error, if any
}

func (e *TranscodeError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, e.Output)
	}

	return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Runner invokes the configured ffmpeg and ffprobe binaries.
type Runner struct {
	binary      string
	probeBinary string
}

func NewRunner(binary, probeBinary string) *Runner {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}

	if strings.TrimSpace(probeBinary) == "" {
		probeBinary = DefaultProbeBinary
	}

	return &Runner{binary: binary, probeBinary: probeBinary}
}

// Remux copies the streams referenced by the manifest into a single output
// container, stamping the title tag. Stream copy only; the device already
// serves H.264/AAC and re-encoding would waste hours.
func (r *Runner) Remux(ctx context.Context, manifestPath, outputPath, title string) error {
	// -f mp4 is required because the output lands on a .partial path first
	// and ffmpeg cannot infer the container from that extension.
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-protocol_whitelist", "file,http,https,tcp,tls,crypto",
		"-i", manifestPath,
		"-c", "copy",
		"-metadata", "title=" + title,
		"-f", "mp4",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}

		return &TranscodeError{
			ExitCode: exitCode(err),
			Output:   outputTail(output.Bytes()),
			Err:      err,
		}
	}

	return nil
}

func exitCode(err error) int {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}

	return -1
}

// outputTail keeps the end of the process output, where ffmpeg puts the
// actual failure reason.
func outputTail(output []byte) string {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) > errOutputLimit {
		trimmed = trimmed[len(trimmed)-errOutputLimit:]
	}

	return string(trimmed)
}
