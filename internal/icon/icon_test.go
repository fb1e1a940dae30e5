package icon

import (
	"bytes"
	"context"
	"testing"

	"feedsync/internal/fetch"
	"feedsync/internal/model"
	"feedsync/internal/testutil"
)

func newTestResolver() *Resolver {
	return NewResolver(fetch.NewClient(0, ""))
}

func TestValidImageSignatures(t *testing.T) {
	valid := map[string][]byte{
		"bmp":     {0x42, 0x4D, 0x00},
		"gif87":   []byte("GIF87a trailer"),
		"gif89":   []byte("GIF89a trailer"),
		"ico":     {0x00, 0x00, 0x01, 0x00, 0x01},
		"jpeg":    {0xFF, 0xD8, 0xFF, 0xE0},
		"png":     testutil.PNGBytes("x"),
		"tiff-le": {0x49, 0x49, 0x2A, 0x00, 0x08},
		"tiff-be": {0x4D, 0x4D, 0x00, 0x2A, 0x08},
	}
	for name, blob := range valid {
		if !ValidImage(blob) {
			t.Fatalf("expected %s blob to validate", name)
		}
	}

	invalid := map[string][]byte{
		"empty": nil,
		"html":  []byte("<html><body>404</body></html>"),
		"text":  []byte("not an image"),
		"short": {0x89},
	}
	for name, blob := range invalid {
		if ValidImage(blob) {
			t.Fatalf("expected %s blob to be rejected", name)
		}
	}
}

func TestResolveSkipsWhenBlobAlreadyValid(t *testing.T) {
	testutil.NewRemote(t, nil)

	blob := testutil.PNGBytes("existing")
	source := &model.FeedSource{URI: "https://feeds.example/rss", ImageBlob: blob}

	got := newTestResolver().Resolve(context.Background(), source, "https://cdn.example/logo.png", "")
	if !bytes.Equal(got, blob) {
		t.Fatalf("expected existing blob returned untouched")
	}
}

func TestResolveUsesDeclaredImage(t *testing.T) {
	want := testutil.PNGBytes("declared")
	testutil.NewRemote(t, map[string]testutil.Response{
		"https://cdn.example/logo.png": {Body: want, ContentType: "image/png"},
	})

	source := &model.FeedSource{URI: "https://feeds.example/rss"}

	got := newTestResolver().Resolve(context.Background(), source, "https://cdn.example/logo.png", "")
	if !bytes.Equal(got, want) {
		t.Fatalf("expected declared image bytes, got %d bytes", len(got))
	}
}

func TestResolveFallsBackToHostFavicon(t *testing.T) {
	want := testutil.PNGBytes("favicon")
	testutil.NewRemote(t, map[string]testutil.Response{
		"https://feeds.example/favicon.ico": {Body: want},
	})

	source := &model.FeedSource{URI: "https://feeds.example/rss"}

	got := newTestResolver().Resolve(context.Background(), source, "https://cdn.example/missing.png", "")
	if !bytes.Equal(got, want) {
		t.Fatalf("expected host favicon bytes")
	}
}

func TestResolveFallsBackToItemHostFavicon(t *testing.T) {
	want := testutil.PNGBytes("item-favicon")
	testutil.NewRemote(t, map[string]testutil.Response{
		"https://content.example/favicon.ico": {Body: want},
	})

	source := &model.FeedSource{URI: "https://feeds.example/rss"}

	got := newTestResolver().Resolve(context.Background(), source, "", "https://content.example/posts/1")
	if !bytes.Equal(got, want) {
		t.Fatalf("expected item host favicon bytes")
	}
}

func TestResolveScansRootPageIconLink(t *testing.T) {
	want := testutil.PNGBytes("page-icon")
	page := `<html><head>
<link rel="stylesheet" href="/style.css">
<link rel="shortcut icon" href="/assets/icon.png">
</head><body></body></html>`

	testutil.NewRemote(t, map[string]testutil.Response{
		"https://feeds.example/":                {Body: []byte(page), ContentType: "text/html"},
		"https://feeds.example/assets/icon.png": {Body: want, ContentType: "image/png"},
	})

	source := &model.FeedSource{URI: "https://feeds.example/rss"}

	got := newTestResolver().Resolve(context.Background(), source, "", "")
	if !bytes.Equal(got, want) {
		t.Fatalf("expected page icon bytes")
	}
}

func TestResolveTotalityWhenEverythingFails(t *testing.T) {
	testutil.NewRemote(t, map[string]testutil.Response{
		"https://feeds.example/favicon.ico":   {Status: 404, Body: []byte("gone")},
		"https://feeds.example/":              {Body: []byte("<html><head></head></html>")},
		"https://content.example/favicon.ico": {Body: []byte("an html error page")},
	})

	source := &model.FeedSource{URI: "https://feeds.example/rss"}

	got := newTestResolver().Resolve(
		context.Background(),
		source,
		"https://cdn.example/unreachable.png",
		"https://content.example/posts/1",
	)

	if len(got) == 0 {
		t.Fatalf("expected placeholder bytes, got empty result")
	}
	if !ValidImage(got) {
		t.Fatalf("expected placeholder to pass signature validation")
	}
	if !bytes.Equal(got, Placeholder()) {
		t.Fatalf("expected placeholder bytes")
	}
}
