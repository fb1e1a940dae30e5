// Package opml parses OPML subscription lists and reconciles their outline
// trees against the store.
package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

const (
	opmlRootName = "opml"
	opmlVersion  = "2.0"
	xmlIndent    = "  "
)

// Document is a parsed OPML file.
type Document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr,omitempty"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

type Head struct {
	Title string `xml:"title,omitempty"`
}

type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is one node of the subscription hierarchy. Nodes carrying a feed
// URL attribute are feeds; the rest act as folders.
type Outline struct {
	Text      string    `xml:"text,attr,omitempty"`
	Title     string    `xml:"title,attr,omitempty"`
	Type      string    `xml:"type,attr,omitempty"`
	XMLURL    string    `xml:"xmlUrl,attr,omitempty"`
	XMLURLAlt string    `xml:"xmlurl,attr,omitempty"`
	URL       string    `xml:"url,attr,omitempty"`
	Outlines  []Outline `xml:"outline,omitempty"`
}

// Subscription describes one feed for OPML export.
type Subscription struct {
	Title  string
	URL    string
	Folder string
}

var errInvalidRoot = errors.New("invalid OPML: expected root <opml>")

// Parse decodes OPML data from r.
func Parse(r io.Reader) (*Document, error) {
	var doc Document

	err := xml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("invalid OPML: %w", err)
	}

	if !strings.EqualFold(doc.XMLName.Local, opmlRootName) {
		return nil, errInvalidRoot
	}

	return &doc, nil
}

// Write encodes subscriptions as an OPML document, grouping entries that
// share a folder name under one folder outline.
func Write(writer io.Writer, title string, subscriptions []Subscription) error {
	doc := Document{
		XMLName: xml.Name{Space: "", Local: opmlRootName},
		Version: opmlVersion,
		Head:    Head{Title: strings.TrimSpace(title)},
		Body:    Body{Outlines: buildOutlines(subscriptions)},
	}

	_, err := io.WriteString(writer, xml.Header)
	if err != nil {
		return fmt.Errorf("write XML header: %w", err)
	}

	encoder := xml.NewEncoder(writer)

	defer func() {
		if closeErr := encoder.Close(); closeErr != nil {
			slog.Warn("close OPML encoder", "err", closeErr)
		}
	}()

	encoder.Indent("", xmlIndent)

	err = encoder.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode OPML: %w", err)
	}

	flushErr := encoder.Flush()
	if flushErr != nil {
		return fmt.Errorf("flush OPML encoder: %w", flushErr)
	}

	return nil
}

func buildOutlines(subscriptions []Subscription) []Outline {
	var outlines []Outline

	folders := make(map[string]*Outline)
	var folderNames []string

	for _, subscription := range subscriptions {
		feedURL := strings.TrimSpace(subscription.URL)
		if feedURL == "" {
			continue
		}

		feedTitle := strings.TrimSpace(subscription.Title)
		if feedTitle == "" {
			feedTitle = feedURL
		}

		feedOutline := Outline{
			Text:   feedTitle,
			Title:  feedTitle,
			Type:   "rss",
			XMLURL: feedURL,
		}

		folderName := strings.TrimSpace(subscription.Folder)
		if folderName == "" {
			outlines = append(outlines, feedOutline)
			continue
		}

		folder, ok := folders[folderName]
		if !ok {
			folder = &Outline{Text: folderName, Title: folderName}
			folders[folderName] = folder
			folderNames = append(folderNames, folderName)
		}
		folder.Outlines = append(folder.Outlines, feedOutline)
	}

	sort.Strings(folderNames)
	for _, name := range folderNames {
		outlines = append(outlines, *folders[name])
	}

	return outlines
}

func firstTrimmedValue(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}

	return ""
}
