// Package model defines the canonical records produced by feed ingestion.
package model

import "time"

// FormatType classifies the dialect a feed source was retrieved in.
type FormatType int

const (
	FormatUnknown FormatType = iota
	FormatRss
	FormatJson
)

func (f FormatType) String() string {
	switch f {
	case FormatRss:
		return "rss"
	case FormatJson:
		return "json"
	default:
		return "unknown"
	}
}

// FeedSource is one subscribed feed, keyed by its URI. ID is assigned by the
// store on first insert; zero means not yet persisted.
type FeedSource struct {
	ID             int64
	URI            string
	Name           string
	Description    string
	Language       string
	LastUpdatedAt  time.Time
	LastUpdatedRaw string
	Link           string
	ImageBlob      []byte
	FormatType     FormatType
	FolderID       int64
	Entries        []FeedEntry
}

// FeedEntry is one article within a source, keyed by the source-native
// external id. IsRead and IsFavorite belong to the user: ingestion never
// writes them once the entry exists.
type FeedEntry struct {
	ID           int64
	SourceID     int64
	ExternalID   string
	Title        string
	Link         string
	ExternalLink string
	Description  string
	Content      string
	PublishedAt  time.Time
	Author       string
	ImageURL     string
	IsRead       bool
	IsFavorite   bool
}

// Folder is an optional grouping for sources, unique by name.
type Folder struct {
	ID   int64
	Name string
}
