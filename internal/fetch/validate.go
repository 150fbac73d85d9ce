package fetch

import (
	"context"
	"fmt"
	"os"
)

const (
	// MinFileSize is the smallest output accepted as a real recording.
	MinFileSize = 1024 * 1024

	// DurationTolerance is the acceptable deviation between the probed and
	// the device-reported duration.
	DurationTolerance = 0.10

	// IncompleteDeviation is the point past which an existing file is
	// clearly a truncated download rather than a different airing.
	IncompleteDeviation = 0.50
)

// InvalidFileError reports a download that finished but failed validation.
type InvalidFileError struct {
	Path   string
	Reason string
}

func (e *InvalidFileError) Error() string {
	return fmt.Sprintf("invalid media file %s: %s", e.Path, e.Reason)
}

// Validation is the outcome of checking one media file.
type Validation struct {
	OK        bool    // structurally sound: present, big enough, probe-able
	Reason    string
	Seconds   float64 // probed duration
	Deviation float64 // fraction off the expected duration, -1 when unknown
}

// WithinTolerance reports whether the probed duration is close enough to
// the expected one. Unknown expected durations always pass.
func (v Validation) WithinTolerance() bool {
	return v.Deviation < 0 || v.Deviation <= DurationTolerance
}

// Incomplete reports a deviation large enough to call the file truncated.
func (v Validation) Incomplete() bool {
	return v.Deviation > IncompleteDeviation
}

// Validate checks a materialized media file: it must exist, clear the
// minimum size, and yield a duration from ffprobe. When expected is > 0
// the deviation from it is computed for the caller's tolerance policy.
func Validate(ctx context.Context, prober Prober, path string, expected float64, minSize int64) Validation {
	v := Validation{Deviation: -1}

	info, err := os.Stat(path)
	if err != nil {
		v.Reason = "file does not exist"

		return v
	}

	if info.Size() < minSize {
		v.Reason = fmt.Sprintf("file too small (%d bytes, minimum %d)", info.Size(), minSize)

		return v
	}

	result, err := prober.Probe(ctx, path)
	if err != nil {
		v.Reason = "cannot determine video duration (possibly corrupted)"

		return v
	}

	seconds := result.DurationSeconds()
	if seconds <= 0 {
		v.Reason = "cannot determine video duration (possibly corrupted)"

		return v
	}

	v.OK = true
	v.Seconds = seconds

	if expected > 0 {
		deviation := seconds - expected
		if deviation < 0 {
			deviation = -deviation
		}

		v.Deviation = deviation / expected
		v.Reason = fmt.Sprintf("duration %.1fs actual vs %.1fs expected (%.1f%% deviation)", seconds, expected, v.Deviation*100)
	} else {
		v.Reason = fmt.Sprintf("duration %.1fs", seconds)
	}

	return v
}
