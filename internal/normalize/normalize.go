// Package normalize maps parsed feeds onto the canonical records.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"strings"

	"feedsync/internal/model"
	"feedsync/internal/parse"
)

// Source builds the canonical record for one feed. When existing is non-nil
// (the refresh path) its surrogate id, folder, and image blob carry over and
// every content field is overwritten in place; otherwise a fresh record with
// id zero is produced for the store to assign an identity to.
func Source(parsed *parse.Feed, existing *model.FeedSource, uri string, format model.FormatType) model.FeedSource {
	var source model.FeedSource
	if existing != nil {
		source.ID = existing.ID
		source.FolderID = existing.FolderID
		source.ImageBlob = existing.ImageBlob
	}

	source.URI = uri
	source.FormatType = format
	source.Name = firstTrimmed(parsed.Title, uri)
	source.Description = html.UnescapeString(parsed.Description)
	source.Language = parsed.Language
	source.Link = parsed.Link
	source.LastUpdatedRaw = parsed.UpdatedRaw
	if parsed.Updated != nil {
		source.LastUpdatedAt = *parsed.Updated
	}

	return source
}

// Entry builds the canonical record for one item of owner. The owner must
// already be persisted so the entry can reference its surrogate id.
func Entry(item parse.Item, owner *model.FeedSource) model.FeedEntry {
	content := html.UnescapeString(item.Content)
	description := html.UnescapeString(item.Description)

	thumbnail := strings.TrimSpace(item.ImageURL)
	if thumbnail == "" {
		thumbnail = FirstImageSrc(content)
	}
	if thumbnail == "" {
		thumbnail = FirstImageSrc(description)
	}

	entry := model.FeedEntry{
		SourceID:     owner.ID,
		ExternalID:   ExternalID(owner.URI, item),
		Title:        firstTrimmed(item.Title, item.Link, "(untitled)"),
		Link:         item.Link,
		ExternalLink: item.ExternalLink,
		Description:  description,
		Content:      content,
		Author:       item.Author,
		ImageURL:     thumbnail,
	}
	if item.Published != nil {
		entry.PublishedAt = item.Published.UTC()
	}

	return entry
}

// ExternalID is the entry's natural key. The native id is used verbatim when
// present. Feeds that omit it fall back to the item link, and as a last
// resort to a digest scoped by the owning source URI so key collisions cannot
// cross sources.
func ExternalID(sourceURI string, item parse.Item) string {
	if id := strings.TrimSpace(item.NativeID); id != "" {
		return id
	}

	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}

	sum := sha256.Sum256([]byte(strings.Join([]string{
		sourceURI,
		item.Link,
		item.Title,
		item.PublishedRaw,
	}, "\n")))

	return hex.EncodeToString(sum[:])
}

func firstTrimmed(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}

	return ""
}
