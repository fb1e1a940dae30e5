// Package parse adapts RSS/Atom and JSON Feed documents into one neutral
// in-memory shape.
package parse

import (
	"errors"
	"time"

	"feedsync/internal/model"
)

// ErrFormatUnrecognized reports content that matches neither supported
// dialect. It aborts the current retrieval only; persisted state is never
// touched by a failed parse.
var ErrFormatUnrecognized = errors.New("feed format unrecognized")

// Feed is the format-neutral result of parsing one feed document.
type Feed struct {
	Title       string
	Link        string
	Description string
	Language    string
	ImageURL    string
	UpdatedRaw  string
	Updated     *time.Time
	Items       []Item
}

// Item is one entry of a Feed, in document order.
type Item struct {
	NativeID     string
	Title        string
	Link         string
	ExternalLink string
	Description  string
	Content      string
	PublishedRaw string
	Published    *time.Time
	Author       string
	ImageURL     string
}

// Parse dispatches on the detector's classification.
func Parse(raw string, format model.FormatType) (*Feed, error) {
	switch format {
	case model.FormatRss:
		return parseSyndication(raw)
	case model.FormatJson:
		return parseJSONFeed(raw)
	default:
		return nil, ErrFormatUnrecognized
	}
}

func firstTime(candidates ...*time.Time) *time.Time {
	for _, candidate := range candidates {
		if candidate != nil {
			return candidate
		}
	}

	return nil
}
