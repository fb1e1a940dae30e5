package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"feedsync/internal/model"
)

func TestUpsertSourceKeepsSurrogateID(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first := model.FeedSource{URI: "https://example.com/feed", Name: "First Title"}
	if err := st.UpsertSource(ctx, &first); err != nil {
		t.Fatalf("UpsertSource initial: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("expected assigned id after insert")
	}

	second := model.FeedSource{URI: "https://example.com/feed", Name: "Second Title"}
	if err := st.UpsertSource(ctx, &second); err != nil {
		t.Fatalf("UpsertSource update: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected id %d preserved, got %d", first.ID, second.ID)
	}

	found, err := st.FindSourceByURI(ctx, "https://example.com/feed")
	if err != nil {
		t.Fatalf("FindSourceByURI: %v", err)
	}
	if found == nil || found.Name != "Second Title" {
		t.Fatalf("expected content overwritten, got %+v", found)
	}

	sources, err := st.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
}

func TestInsertSourceRejectsAssignedID(t *testing.T) {
	st := openTestStore(t)

	err := st.InsertSource(context.Background(), &model.FeedSource{ID: 5, URI: "https://example.com/feed"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestInsertEntryRejectsUnpersistedOwner(t *testing.T) {
	st := openTestStore(t)

	err := st.InsertEntry(context.Background(), &model.FeedEntry{ExternalID: "a", Title: "x"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero source id, got %v", err)
	}

	err = st.InsertEntry(context.Background(), &model.FeedEntry{ID: 2, SourceID: 1, ExternalID: "a", Title: "x"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for assigned id, got %v", err)
	}
}

func TestInsertEntryConflictSurfaces(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	source := insertTestSource(t, st, "https://example.com/feed")

	first := model.FeedEntry{SourceID: source.ID, ExternalID: "a", Title: "First"}
	if err := st.InsertEntry(ctx, &first); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	dup := model.FeedEntry{SourceID: source.ID, ExternalID: "a", Title: "Duplicate"}
	err := st.InsertEntry(ctx, &dup)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpsertEntryPreservesUserFlags(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	source := insertTestSource(t, st, "https://example.com/feed")

	entry := model.FeedEntry{SourceID: source.ID, ExternalID: "a", Title: "Original"}
	if err := st.InsertEntry(ctx, &entry); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if err := st.SetEntryRead(ctx, entry.ID, true); err != nil {
		t.Fatalf("SetEntryRead: %v", err)
	}
	if err := st.SetEntryFavorite(ctx, entry.ID, true); err != nil {
		t.Fatalf("SetEntryFavorite: %v", err)
	}

	update := model.FeedEntry{SourceID: source.ID, ExternalID: "a", Title: "Rewritten"}
	if err := st.UpsertEntry(ctx, &update); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if update.ID != entry.ID {
		t.Fatalf("expected id %d preserved, got %d", entry.ID, update.ID)
	}

	found, err := st.FindEntryByExternalID(ctx, "a")
	if err != nil {
		t.Fatalf("FindEntryByExternalID: %v", err)
	}
	if found.Title != "Rewritten" {
		t.Fatalf("expected content overwritten, got %q", found.Title)
	}
	if !found.IsRead || !found.IsFavorite {
		t.Fatalf("expected user flags preserved, got read=%v favorite=%v", found.IsRead, found.IsFavorite)
	}
}

func TestFindMissingKeysYieldNil(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	source, err := st.FindSourceByURI(ctx, "https://nowhere.example/feed")
	if err != nil || source != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", source, err)
	}

	entry, err := st.FindEntryByExternalID(ctx, "missing")
	if err != nil || entry != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", entry, err)
	}

	folder, err := st.FindFolderByName(ctx, "missing")
	if err != nil || folder != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", folder, err)
	}
}

func TestMutationsNotifySubscribers(t *testing.T) {
	var events []Event

	st := openTestStore(t)
	st.Subscribe(func(event Event) { events = append(events, event) })
	ctx := context.Background()

	source := model.FeedSource{URI: "https://example.com/feed", Name: "Feed"}
	if err := st.InsertSource(ctx, &source); err != nil {
		t.Fatalf("InsertSource: %v", err)
	}

	entry := model.FeedEntry{SourceID: source.ID, ExternalID: "a", Title: "Entry"}
	if err := st.InsertEntry(ctx, &entry); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	if err := st.UpdateSourceImage(ctx, source.ID, []byte{0x42, 0x4D, 0x01}); err != nil {
		t.Fatalf("UpdateSourceImage: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Op != OpAdded || events[0].Kind != KindSource {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Op != OpAdded || events[1].Kind != KindEntry || events[1].SourceIDs[0] != source.ID {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if events[2].Op != OpUpdated || events[2].Kind != KindSource {
		t.Fatalf("unexpected third event: %+v", events[2])
	}
}

func TestCreateSourcesBatchSharesFolders(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	folder := &model.Folder{Name: "Tech"}
	candidates := []SourceCandidate{
		{Source: model.FeedSource{URI: "https://one.example/feed", Name: "One"}, Folder: folder},
		{Source: model.FeedSource{URI: "https://two.example/feed", Name: "Two"}, Folder: folder},
		{Source: model.FeedSource{URI: "https://three.example/feed", Name: "Three"}},
	}

	var events []Event
	st.Subscribe(func(event Event) { events = append(events, event) })

	if err := st.CreateSources(ctx, candidates); err != nil {
		t.Fatalf("CreateSources: %v", err)
	}

	if folder.ID == 0 {
		t.Fatalf("expected folder id assigned")
	}
	if candidates[0].Source.FolderID != folder.ID || candidates[1].Source.FolderID != folder.ID {
		t.Fatalf("expected both candidates in folder %d", folder.ID)
	}
	if candidates[2].Source.FolderID != 0 {
		t.Fatalf("expected third candidate without folder, got %d", candidates[2].Source.FolderID)
	}

	folders, err := st.ListFolders(ctx)
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(folders) != 1 {
		t.Fatalf("expected 1 folder, got %d", len(folders))
	}

	if len(events) != 1 || len(events[0].SourceIDs) != 3 {
		t.Fatalf("expected one batch event with 3 sources, got %+v", events)
	}
}

func TestListEntriesOrdersByPublishedDesc(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	source := insertTestSource(t, st, "https://example.com/feed")

	older := model.FeedEntry{
		SourceID:    source.ID,
		ExternalID:  "old",
		Title:       "Older",
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := model.FeedEntry{
		SourceID:    source.ID,
		ExternalID:  "new",
		Title:       "Newer",
		PublishedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := st.InsertEntry(ctx, &older); err != nil {
		t.Fatalf("InsertEntry older: %v", err)
	}
	if err := st.InsertEntry(ctx, &newer); err != nil {
		t.Fatalf("InsertEntry newer: %v", err)
	}

	entries, err := st.ListEntries(ctx, source.ID)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ExternalID != "new" || entries[1].ExternalID != "old" {
		t.Fatalf("unexpected order: %q then %q", entries[0].ExternalID, entries[1].ExternalID)
	}
}

func insertTestSource(t *testing.T, st *Store, uri string) *model.FeedSource {
	t.Helper()

	source := model.FeedSource{URI: uri, Name: uri}
	if err := st.InsertSource(context.Background(), &source); err != nil {
		t.Fatalf("InsertSource %s: %v", uri, err)
	}

	return &source
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	return New(openTestDB(t))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := Init(db); err != nil {
		_ = db.Close()
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}
