package catalog

import (
	"time"
)

// Recording categories as reported in the device identifier path
// (/recordings/<category>/...).
const (
	CategorySeries = "series"
	CategoryMovies = "movies"
	CategorySports = "sports"
)

// Device recording states. A recording whose state is not StateFinished is
// still changing on the device and gets its metadata refreshed on sync.
const (
	StateFinished  = "finished"
	StateRecording = "recording"
	StateFailed    = "failed"
)

// Status is the local download status of a catalog entry.
type Status string

const (
	StatusNone        Status = "none"
	StatusDownloading Status = "downloading"
	StatusComplete    Status = "complete"
	StatusFailed      Status = "failed"
)

// Recording is one media item as reported by a device. ID is the device's
// path-like identifier and never changes; every other field may be updated
// in place by a later metadata fetch.
type Recording struct {
	ID       string
	DeviceID string
	DeviceIP string
	Category string

	ShowTitle    string
	EpisodeTitle string
	Season       int
	Episode      int
	AirDate      time.Time
	AirYear      int
	Description  string

	Duration  int
	State     string
	Clean     bool
	Protected bool
}

// Finished reports whether the device considers the recording terminal.
func (r Recording) Finished() bool {
	return r.State == StateFinished || r.State == StateFailed
}

// Entry wraps a Recording with local bookkeeping. Entries are created on
// first sync observation and only ever marked stale, never deleted.
type Entry struct {
	Recording

	FirstSeenAt    time.Time
	LastSyncedAt   time.Time
	Stale          bool
	DownloadStatus Status
	LocalPath      string
	DownloadedAt   time.Time
}

// Downloadable reports whether the entry is a candidate for retrieval:
// still reported by its device and not already materialized locally.
func (e Entry) Downloadable() bool {
	return !e.Stale && e.DownloadStatus != StatusComplete
}
