package parse

import (
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// parseSyndication handles RSS and Atom through gofeed and adapts the result.
func parseSyndication(raw string) (*Feed, error) {
	parsed, err := gofeed.NewParser().ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnrecognized, err)
	}

	feed := &Feed{
		Title:       strings.TrimSpace(parsed.Title),
		Link:        strings.TrimSpace(parsed.Link),
		Description: strings.TrimSpace(parsed.Description),
		Language:    strings.TrimSpace(parsed.Language),
		UpdatedRaw:  firstNonEmpty(parsed.Updated, parsed.Published),
		Updated:     firstTime(parsed.UpdatedParsed, parsed.PublishedParsed),
	}
	if parsed.Image != nil {
		feed.ImageURL = strings.TrimSpace(parsed.Image.URL)
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		feed.Items = append(feed.Items, adaptSyndicationItem(item))
	}

	return feed, nil
}

func adaptSyndicationItem(item *gofeed.Item) Item {
	author := joinPersons(item.Authors)
	if author == "" && item.Author != nil {
		author = strings.TrimSpace(item.Author.Name)
	}

	imageURL := ""
	if item.Image != nil {
		imageURL = strings.TrimSpace(item.Image.URL)
	}

	return Item{
		NativeID:     strings.TrimSpace(item.GUID),
		Title:        strings.TrimSpace(item.Title),
		Link:         strings.TrimSpace(item.Link),
		Description:  item.Description,
		Content:      item.Content,
		PublishedRaw: firstNonEmpty(item.Published, item.Updated),
		Published:    firstTime(item.PublishedParsed, item.UpdatedParsed),
		Author:       author,
		ImageURL:     imageURL,
	}
}

func joinPersons(persons []*gofeed.Person) string {
	var names []string

	for _, person := range persons {
		if person == nil {
			continue
		}
		name := strings.TrimSpace(person.Name)
		if name == "" {
			name = strings.TrimSpace(person.Email)
		}
		if name != "" {
			names = append(names, name)
		}
	}

	return strings.Join(names, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}

	return ""
}
