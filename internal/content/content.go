// Package content fetches the daily and weekly horoscope text for a subject.
//
// A Fetcher never fails: any load or extraction error degrades to the static
// Fallback for that subject, so the daily text is always present downstream.
package content

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Subject is a lower-case sign identifier, also the last URL path segment (e.g. "cancer").
type Subject string

// Source tells whether a Result was scraped or came from the static table.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Result holds the extracted text for one subject. An empty string means absent.
type Result struct {
	Subject Subject
	Title   string
	Daily   string
	Weekly  string
	Source  Source
}

// Selectors used on the remote page.
const (
	DailySelector  = ".horoscopo-hoy .txt p"
	WeeklySelector = ".horoscopo-semanal .txt p"
	TitleSelector  = ".horoscopo-header h1.title"
)

// ErrElementMissing is returned when the awaited element never shows up.
var ErrElementMissing = errors.New("content: element not found")

// Loader retrieves the rendered HTML of url once waitSelector is present.
type Loader interface {
	Load(ctx context.Context, url, waitSelector string) (string, error)
}

// Subjects converts configured names, preserving order.
func Subjects(names []string) []Subject {
	out := make([]Subject, 0, len(names))
	for _, n := range names {
		out = append(out, Subject(n))
	}
	return out
}
