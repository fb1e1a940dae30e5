package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const jsonFeedVersionPrefix = "https://jsonfeed.org/version/"

type jsonFeedDocument struct {
	Version     string         `json:"version"`
	Title       string         `json:"title"`
	HomePageURL string         `json:"home_page_url"`
	Description string         `json:"description"`
	Language    string         `json:"language"`
	Icon        string         `json:"icon"`
	Favicon     string         `json:"favicon"`
	Items       []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	ID            flexString       `json:"id"`
	URL           string           `json:"url"`
	ExternalURL   string           `json:"external_url"`
	Title         string           `json:"title"`
	ContentHTML   string           `json:"content_html"`
	ContentText   string           `json:"content_text"`
	Summary       string           `json:"summary"`
	Image         string           `json:"image"`
	DatePublished string           `json:"date_published"`
	Author        *jsonFeedAuthor  `json:"author"`
	Authors       []jsonFeedAuthor `json:"authors"`
}

type jsonFeedAuthor struct {
	Name string `json:"name"`
}

// flexString tolerates feeds that emit numeric item ids.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*s = ""
		return nil
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("decode item id: %w", err)
		}
		*s = flexString(text)
		return nil
	}

	*s = flexString(trimmed)
	return nil
}

func parseJSONFeed(raw string) (*Feed, error) {
	var doc jsonFeedDocument

	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnrecognized, err)
	}

	if !strings.HasPrefix(strings.TrimSpace(doc.Version), jsonFeedVersionPrefix) {
		return nil, fmt.Errorf("%w: missing JSON Feed version", ErrFormatUnrecognized)
	}

	feed := &Feed{
		Title:       strings.TrimSpace(doc.Title),
		Link:        strings.TrimSpace(doc.HomePageURL),
		Description: strings.TrimSpace(doc.Description),
		Language:    strings.TrimSpace(doc.Language),
		ImageURL:    firstNonEmpty(doc.Icon, doc.Favicon),
	}

	for _, item := range doc.Items {
		feed.Items = append(feed.Items, adaptJSONFeedItem(item))
	}

	return feed, nil
}

func adaptJSONFeedItem(item jsonFeedItem) Item {
	adapted := Item{
		NativeID:     strings.TrimSpace(string(item.ID)),
		Title:        strings.TrimSpace(item.Title),
		Link:         strings.TrimSpace(item.URL),
		ExternalLink: strings.TrimSpace(item.ExternalURL),
		Description:  item.Summary,
		Content:      firstNonEmpty(item.ContentHTML, item.ContentText),
		PublishedRaw: strings.TrimSpace(item.DatePublished),
		Author:       joinJSONFeedAuthors(item),
		ImageURL:     strings.TrimSpace(item.Image),
	}

	if adapted.PublishedRaw != "" {
		published, err := time.Parse(time.RFC3339, adapted.PublishedRaw)
		if err == nil {
			adapted.Published = &published
		}
	}

	return adapted
}

// joinJSONFeedAuthors joins authors[] names in document order; the legacy
// singular author field is used only when the list is absent.
func joinJSONFeedAuthors(item jsonFeedItem) string {
	var names []string

	for _, author := range item.Authors {
		name := strings.TrimSpace(author.Name)
		if name != "" {
			names = append(names, name)
		}
	}

	if len(names) == 0 && item.Author != nil {
		return strings.TrimSpace(item.Author.Name)
	}

	return strings.Join(names, ", ")
}
