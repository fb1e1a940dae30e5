// Package ingest drives retrieval, normalization, icon resolution, and
// persistence of feed sources.
package ingest

import (
	"context"
	"log/slog"

	"feedsync/internal/detect"
	"feedsync/internal/fetch"
	"feedsync/internal/icon"
	"feedsync/internal/model"
	"feedsync/internal/normalize"
	"feedsync/internal/parse"
	"feedsync/internal/store"
)

// Service owns the single-feed ingestion pipeline and the refresh loop.
// Callers must not run two ingestions of the same URI concurrently; the
// store is single-logical-writer per natural key.
type Service struct {
	store  *store.Store
	client *fetch.Client
	icons  *icon.Resolver
}

func NewService(st *store.Store, client *fetch.Client, icons *icon.Resolver) *Service {
	return &Service{store: st, client: client, icons: icons}
}

// RetrieveFeed fetches rawURI, classifies and parses it, resolves an icon,
// and persists the result. The returned source has its entries attached, the
// already-known ones included. Transport and format failures propagate;
// nothing already persisted is touched by a failed call.
func (s *Service) RetrieveFeed(ctx context.Context, rawURI string) (*model.FeedSource, error) {
	uri, err := fetch.NormalizeURL(rawURI)
	if err != nil {
		return nil, err
	}

	body, err := s.client.GetText(ctx, uri)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindSourceByURI(ctx, uri)
	if err != nil {
		return nil, err
	}

	hint := model.FormatUnknown
	if existing != nil {
		hint = existing.FormatType
	}

	format := detect.Detect(body, hint)
	if format == model.FormatUnknown {
		return nil, parse.ErrFormatUnrecognized
	}

	parsed, err := parse.Parse(body, format)
	if err != nil {
		return nil, err
	}

	source := normalize.Source(parsed, existing, uri, format)

	firstItemLink := ""
	if len(parsed.Items) > 0 {
		firstItemLink = parsed.Items[0].Link
	}
	source.ImageBlob = s.icons.Resolve(ctx, &source, parsed.ImageURL, firstItemLink)

	if err := s.store.UpsertSource(ctx, &source); err != nil {
		return nil, err
	}

	newEntries := 0

	for _, item := range parsed.Items {
		entry := normalize.Entry(item, &source)

		known, lookupErr := s.store.FindEntryByExternalID(ctx, entry.ExternalID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if known != nil {
			source.Entries = append(source.Entries, *known)
			continue
		}

		if insertErr := s.store.InsertEntry(ctx, &entry); insertErr != nil {
			return nil, insertErr
		}

		newEntries++
		source.Entries = append(source.Entries, entry)
	}

	slog.Info("retrieve feed",
		"uri", uri,
		"format", format.String(),
		"items", len(parsed.Items),
		"new_items", newEntries,
	)

	return &source, nil
}

// ProgressFunc receives one report per processed source. err is non-nil when
// that source's retrieval failed and was skipped.
type ProgressFunc func(done, total int, last *model.FeedSource, err error)

// RefreshAll re-ingests every persisted source sequentially. A failing
// source is skipped, reported through progress, and never halts the loop.
func (s *Service) RefreshAll(ctx context.Context, progress ProgressFunc) error {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return err
	}

	total := len(sources)

	for i := range sources {
		source := &sources[i]

		refreshed, retrieveErr := s.RetrieveFeed(ctx, source.URI)
		if retrieveErr != nil {
			slog.Error("refresh source failed", "uri", source.URI, "err", retrieveErr)
			if progress != nil {
				progress(i+1, total, source, retrieveErr)
			}
			continue
		}

		if progress != nil {
			progress(i+1, total, refreshed, nil)
		}
	}

	slog.Info("refresh all complete", "total", total)

	return nil
}
