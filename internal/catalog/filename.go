package catalog

import (
	"fmt"
	"strings"
)

// fileNameReplacer strips characters that are unsafe on common filesystems.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// TitleAndFileName derives the embedded media title and the output filename
// for a recording. The filename is fully determined by metadata, so repeated
// retrievals of the same recording land on the same file:
//
//	series: Show_-_Episode_-_S01E02.mp4 (air date when neither episode
//	        title nor season is known)
//	movies: Show_(2021).mp4
//	sports: Show_-_Event_-_2024-03-01.mp4
//
// The title keeps its spaces; the filename has them replaced with
// underscores. An empty title signals an unknown category.
func TitleAndFileName(r Recording) (title, filename string) {
	show := r.ShowTitle
	if show == "" {
		show = "UNKNOWN"
	}

	title = show
	base := show

	switch r.Category {
	case CategoryMovies:
		if r.AirYear > 0 {
			base += fmt.Sprintf(" (%d)", r.AirYear)
		}
	case CategorySeries:
		if r.EpisodeTitle != "" {
			base += "_-_" + r.EpisodeTitle
			title += " - " + r.EpisodeTitle
		}

		var season, number string
		if r.Season > 0 {
			season = fmt.Sprintf("%02d", r.Season)
		}

		if r.Episode > 0 {
			number = fmt.Sprintf("%02d", r.Episode)
			if season == "" {
				season = "00"
			}
		}

		if season != "" {
			base += fmt.Sprintf("_-_S%sE%s", season, number)
			if r.EpisodeTitle == "" {
				title += fmt.Sprintf(" - S%sE%s", season, number)
			}
		}

		if r.EpisodeTitle == "" && season == "" && !r.AirDate.IsZero() {
			base += " " + r.AirDate.Format("2006-01-02")
		}
	case CategorySports:
		if r.EpisodeTitle != "" {
			base += "_-_" + r.EpisodeTitle
			title += " - " + r.EpisodeTitle
		}

		if !r.AirDate.IsZero() {
			date := r.AirDate.Format("2006-01-02")
			base += "_-_" + date
			title += " - " + date
		}
	default:
		return "", ""
	}

	filename = fileNameReplacer.Replace(strings.ReplaceAll(base, " ", "_")) + ".mp4"

	return title, filename
}
