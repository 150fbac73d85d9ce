package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)

	return t
}

func TestTitleAndFileName(t *testing.T) {
	tests := []struct {
		name         string
		rec          Recording
		wantTitle    string
		wantFilename string
	}{
		{
			name: "series with episode info",
			rec: Recording{
				Category:     CategorySeries,
				ShowTitle:    "The Great Show",
				EpisodeTitle: "Pilot",
				Season:       1,
				Episode:      2,
			},
			wantTitle:    "The Great Show - Pilot",
			wantFilename: "The_Great_Show_-_Pilot_-_S01E02.mp4",
		},
		{
			name: "series episode number without season",
			rec: Recording{
				Category:  CategorySeries,
				ShowTitle: "News",
				Episode:   7,
			},
			wantTitle:    "News - S00E07",
			wantFilename: "News_-_S00E07.mp4",
		},
		{
			name: "series without episode info falls back to air date",
			rec: Recording{
				Category:  CategorySeries,
				ShowTitle: "Late News",
				AirDate:   date("2024-03-01"),
			},
			wantTitle:    "Late News",
			wantFilename: "Late_News_2024-03-01.mp4",
		},
		{
			name: "movie with year",
			rec: Recording{
				Category:  CategoryMovies,
				ShowTitle: "Heat",
				AirYear:   1995,
			},
			wantTitle:    "Heat",
			wantFilename: "Heat_(1995).mp4",
		},
		{
			name: "movie without year",
			rec: Recording{
				Category:  CategoryMovies,
				ShowTitle: "Heat",
			},
			wantTitle:    "Heat",
			wantFilename: "Heat.mp4",
		},
		{
			name: "sports event",
			rec: Recording{
				Category:     CategorySports,
				ShowTitle:    "College Football",
				EpisodeTitle: "Army vs Navy",
				AirDate:      date("2023-12-09"),
			},
			wantTitle:    "College Football - Army vs Navy - 2023-12-09",
			wantFilename: "College_Football_-_Army_vs_Navy_-_2023-12-09.mp4",
		},
		{
			name: "missing show title",
			rec: Recording{
				Category: CategorySeries,
				Season:   1,
				Episode:  1,
			},
			wantTitle:    "UNKNOWN - S01E01",
			wantFilename: "UNKNOWN_-_S01E01.mp4",
		},
		{
			name: "unsafe characters removed",
			rec: Recording{
				Category:     CategorySeries,
				ShowTitle:    "Watch: This?",
				EpisodeTitle: "A/B Test",
				Season:       2,
				Episode:      3,
			},
			wantTitle:    "Watch: This? - A/B Test",
			wantFilename: "Watch_This_-_A-B_Test_-_S02E03.mp4",
		},
		{
			name:         "unknown category",
			rec:          Recording{Category: "unknown", ShowTitle: "X"},
			wantTitle:    "",
			wantFilename: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, filename := TitleAndFileName(tt.rec)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantFilename, filename)
		})
	}
}

func TestDownloadable(t *testing.T) {
	assert.True(t, Entry{DownloadStatus: StatusNone}.Downloadable())
	assert.True(t, Entry{DownloadStatus: StatusFailed}.Downloadable())
	assert.False(t, Entry{DownloadStatus: StatusComplete}.Downloadable())
	assert.False(t, Entry{Stale: true, DownloadStatus: StatusNone}.Downloadable())
}
