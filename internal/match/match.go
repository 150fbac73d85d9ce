// Package match resolves a free-text show query against the catalog. The
// matching itself is pure string work; entries go in, one episode comes
// out.
package match

import (
	"errors"
	"fmt"
	"strings"

	"tablodl/internal/catalog"
)

// DefaultMinSimilarity accepts a show title when roughly half of the
// weighted tokens overlap with the query.
const DefaultMinSimilarity = 0.5

// ErrNoMatch is the normal "nothing to do" outcome: no show title cleared
// the threshold, or every matching episode is already downloaded.
var ErrNoMatch = errors.New("no matching recording")

// ErrEmptyQuery rejects a blank query before any matching happens.
var ErrEmptyQuery = errors.New("query must not be empty")

// AmbiguousError reports two or more distinct shows tying at the best
// score. The caller disambiguates; the resolver never guesses between
// different shows.
type AmbiguousError struct {
	Query  string
	Titles []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("query %q matches multiple shows equally well: %s", e.Query, strings.Join(e.Titles, ", "))
}

// Options tune one resolution pass. The zero value gives the defaults.
type Options struct {
	// MinSimilarity overrides DefaultMinSimilarity when > 0. A title is
	// accepted when its score exceeds the threshold or the query is a
	// token-wise prefix of the title.
	MinSimilarity float64
	// IncludeDownloaded also considers entries already complete locally.
	IncludeDownloaded bool
	// Season and Episode narrow candidates when > 0.
	Season  int
	Episode int
}

func (o Options) threshold() float64 {
	if o.MinSimilarity > 0 {
		return o.MinSimilarity
	}

	return DefaultMinSimilarity
}

// Resolve picks the single best episode for the query: best-scoring show
// first, then latest air date, then greatest identifier. Stale entries
// never participate.
func Resolve(entries []catalog.Entry, query string, opts Options) (catalog.Entry, error) {
	if strings.TrimSpace(query) == "" {
		return catalog.Entry{}, ErrEmptyQuery
	}

	queryTokens := Tokens(query)
	if len(queryTokens) == 0 {
		return catalog.Entry{}, ErrEmptyQuery
	}

	queryFP := newFingerprint(queryTokens)
	threshold := opts.threshold()

	var (
		best      []catalog.Entry
		bestScore float64
	)

	for _, e := range entries {
		if !candidate(e, opts) {
			continue
		}

		titleTokens := Tokens(e.ShowTitle)
		score := cosine(queryFP, newFingerprint(titleTokens))

		if score <= threshold && !tokenPrefix(queryTokens, titleTokens) {
			continue
		}

		switch {
		case score > bestScore:
			bestScore = score
			best = best[:0]
			best = append(best, e)
		case score == bestScore:
			best = append(best, e)
		}
	}

	if len(best) == 0 {
		return catalog.Entry{}, ErrNoMatch
	}

	if titles := distinctTitles(best); len(titles) > 1 {
		return catalog.Entry{}, &AmbiguousError{Query: query, Titles: titles}
	}

	return pickEpisode(best), nil
}

func candidate(e catalog.Entry, opts Options) bool {
	if e.Stale {
		return false
	}

	if !opts.IncludeDownloaded && e.DownloadStatus == catalog.StatusComplete {
		return false
	}

	if opts.Season > 0 && e.Season != opts.Season {
		return false
	}

	if opts.Episode > 0 && e.Episode != opts.Episode {
		return false
	}

	return true
}

func distinctTitles(entries []catalog.Entry) []string {
	seen := make(map[string]string, 1)

	for _, e := range entries {
		norm := Normalize(e.ShowTitle)
		if _, ok := seen[norm]; !ok {
			seen[norm] = e.ShowTitle
		}
	}

	titles := make([]string, 0, len(seen))
	for _, title := range seen {
		titles = append(titles, title)
	}

	return titles
}

// pickEpisode applies the recency tie-break within one show: latest air
// date wins, equal dates fall back to the greatest identifier so the
// outcome never depends on catalog order.
func pickEpisode(entries []catalog.Entry) catalog.Entry {
	chosen := entries[0]

	for _, e := range entries[1:] {
		switch {
		case e.AirDate.After(chosen.AirDate):
			chosen = e
		case e.AirDate.Equal(chosen.AirDate) && e.Recording.ID > chosen.Recording.ID:
			chosen = e
		}
	}

	return chosen
}
