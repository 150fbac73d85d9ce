// Package deps reports the availability of the external binaries tablodl
// shells out to. The doctor command prints the result.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"tablodl/internal/ffmpeg"
)

// Requirement describes an external binary the tool relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of one requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements returns the binaries a working install needs, honouring
// configured overrides for the ffmpeg and ffprobe commands.
func Requirements(ffmpegBin, ffprobeBin string) []Requirement {
	if ffmpegBin == "" {
		ffmpegBin = ffmpeg.DefaultBinary
	}

	if ffprobeBin == "" {
		ffprobeBin = ffmpeg.DefaultProbeBinary
	}

	return []Requirement{
		{Name: "ffmpeg", Command: ffmpegBin, Description: "remuxes device HLS streams into local MP4 files"},
		{Name: "ffprobe", Command: ffprobeBin, Description: "validates downloaded files (size, duration)"},
	}
}

// CheckBinaries evaluates the requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))

	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}

		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}

		results = append(results, status)
	}

	return results
}

// Missing filters statuses down to the required binaries that are absent.
func Missing(statuses []Status) []Status {
	var missing []Status

	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}

	return missing
}
