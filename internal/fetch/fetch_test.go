package fetch

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"feedsync/internal/testutil"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "example.com/feed.xml", want: "https://example.com/feed.xml"},
		{raw: "  http://example.com/feed  ", want: "http://example.com/feed"},
		{raw: "https://example.com/a?b=c", want: "https://example.com/a?b=c"},
		{raw: "", wantErr: true},
		{raw: "   ", wantErr: true},
		{raw: "https://", wantErr: true},
		{raw: "://no-scheme", wantErr: true},
	}

	for _, tc := range cases {
		got, err := NormalizeURL(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizeURL(%q): expected error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeURL(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestGetTextSetsUserAgentAndReadsBody(t *testing.T) {
	testutil.NewRemote(t, map[string]testutil.Response{
		"https://example.com/feed.xml": {
			ContentType: "application/xml",
			Body:        []byte("<rss/>"),
		},
	})

	client := NewClient(0, "feedsync-test/1")

	body, err := client.GetText(context.Background(), "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if body != "<rss/>" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestGetBytesRejectsErrorStatus(t *testing.T) {
	testutil.NewRemote(t, map[string]testutil.Response{
		"https://example.com/missing": {
			Status: http.StatusNotFound,
			Body:   []byte("not here"),
		},
	})

	client := NewClient(0, "")

	_, err := client.GetBytes(context.Background(), "https://example.com/missing")
	if err == nil || !strings.Contains(err.Error(), "unexpected status 404") {
		t.Fatalf("expected 404 status error, got %v", err)
	}
}

func TestGetBytesReportsTransportFailure(t *testing.T) {
	testutil.NewRemote(t, nil)

	client := NewClient(0, "")

	if _, err := client.GetBytes(context.Background(), "https://unreachable.example/"); err == nil {
		t.Fatalf("expected transport error")
	}
}
