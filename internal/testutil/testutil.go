// Package testutil provides transport-level HTTP fakes and store helpers for
// tests.
package testutil

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"feedsync/internal/store"
)

// Remote fakes every outbound HTTP call for the duration of one test by
// swapping http.DefaultTransport. URLs without a configured response fail
// with a transport error, which is how tests exercise fetch failures.
type Remote struct {
	mu        sync.RWMutex
	responses map[string]Response
}

// Response is one canned HTTP response. A zero Status means 200.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func NewRemote(t *testing.T, responses map[string]Response) *Remote {
	t.Helper()

	remote := &Remote{responses: make(map[string]Response, len(responses))}
	for url, resp := range responses {
		remote.responses[url] = resp
	}

	prevTransport := http.DefaultTransport
	http.DefaultTransport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		remote.mu.RLock()
		defer remote.mu.RUnlock()

		resp, ok := remote.responses[req.URL.String()]
		if !ok {
			return nil, fmt.Errorf("no fake response for %s", req.URL.String())
		}

		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		contentType := resp.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		return &http.Response{
			StatusCode: status,
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			Header:     http.Header{"Content-Type": []string{contentType}},
			Body:       io.NopCloser(strings.NewReader(string(resp.Body))),
			Request:    req,
		}, nil
	})
	t.Cleanup(func() { http.DefaultTransport = prevTransport })

	return remote
}

// Set replaces the canned response for url.
func (r *Remote) Set(url string, resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[url] = resp
}

// Remove makes url fail with a transport error again.
func (r *Remote) Remove(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.responses, url)
}

// RSSItem is one item of a generated RSS payload.
type RSSItem struct {
	Title       string
	Link        string
	GUID        string
	PubDate     string
	Description string
	Content     string
}

// RSSXML builds a minimal RSS 2.0 document.
func RSSXML(title string, items []RSSItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/"><channel>`)
	b.WriteString(fmt.Sprintf("<title>%s</title>", title))
	b.WriteString("<link>http://example.com</link>")
	b.WriteString("<description>Test feed</description>")
	for _, item := range items {
		b.WriteString("<item>")
		b.WriteString(fmt.Sprintf("<title>%s</title>", item.Title))
		if item.Link != "" {
			b.WriteString(fmt.Sprintf("<link>%s</link>", item.Link))
		}
		if item.GUID != "" {
			b.WriteString(fmt.Sprintf("<guid>%s</guid>", item.GUID))
		}
		if item.PubDate != "" {
			b.WriteString(fmt.Sprintf("<pubDate>%s</pubDate>", item.PubDate))
		}
		b.WriteString(fmt.Sprintf("<description><![CDATA[%s]]></description>", item.Description))
		if item.Content != "" {
			b.WriteString(fmt.Sprintf("<content:encoded><![CDATA[%s]]></content:encoded>", item.Content))
		}
		b.WriteString("</item>")
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

// JSONItem is one item of a generated JSON Feed payload.
type JSONItem struct {
	ID          string
	URL         string
	ExternalURL string
	Title       string
	ContentHTML string
	Authors     []string
}

// JSONFeed builds a minimal JSON Feed 1.1 document.
func JSONFeed(title string, items []JSONItem) string {
	var b strings.Builder
	b.WriteString(`{"version":"https://jsonfeed.org/version/1.1",`)
	b.WriteString(fmt.Sprintf("%q:%q,", "title", title))
	b.WriteString(`"items":[`)
	for i, item := range items {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("{")
		b.WriteString(fmt.Sprintf("%q:%q,", "id", item.ID))
		b.WriteString(fmt.Sprintf("%q:%q,", "url", item.URL))
		if item.ExternalURL != "" {
			b.WriteString(fmt.Sprintf("%q:%q,", "external_url", item.ExternalURL))
		}
		if item.ContentHTML != "" {
			b.WriteString(fmt.Sprintf("%q:%q,", "content_html", item.ContentHTML))
		}
		if len(item.Authors) > 0 {
			b.WriteString(`"authors":[`)
			for j, name := range item.Authors {
				if j > 0 {
					b.WriteString(",")
				}
				b.WriteString(fmt.Sprintf(`{"name":%q}`, name))
			}
			b.WriteString("],")
		}
		b.WriteString(fmt.Sprintf("%q:%q", "title", item.Title))
		b.WriteString("}")
	}
	b.WriteString("]}")
	return b.String()
}

// PNGBytes returns a blob with a valid PNG signature followed by marker, so
// tests can tell resolved icons apart.
func PNGBytes(marker string) []byte {
	return append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte(marker)...)
}

// OpenTestDB opens an initialized sqlite database in a temp dir.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := store.Init(db); err != nil {
		_ = db.Close()
		t.Fatalf("store.Init: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// OpenTestStore opens an initialized store in a temp dir.
func OpenTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(OpenTestDB(t))
}
