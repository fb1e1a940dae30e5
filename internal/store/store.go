// Package store provides SQLite-backed keyed persistence for feed sources,
// entries, and folders, with natural-key dedup and change notifications.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Register the sqlite database/sql driver.

	"feedsync/internal/model"
)

var (
	// ErrInvalidArgument reports an Insert* call with an already-assigned
	// surrogate id, or an entry without a persisted owner.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict reports a natural-key uniqueness violation that reached
	// the database. Callers follow lookup-before-insert discipline, so this
	// indicates a caller bug, not a recoverable condition.
	ErrConflict = errors.New("natural key conflict")
)

// Open is part of the store package API.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite behaves best with a single connection for this workload.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL;")
	if err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return db, nil
}

// Init is part of the store package API.
func Init(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS folders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uri TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT,
	language TEXT,
	last_updated_at DATETIME,
	last_updated_raw TEXT,
	link TEXT,
	image_blob BLOB,
	format_type INTEGER NOT NULL DEFAULT 0,
	folder_id INTEGER REFERENCES folders(id),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id INTEGER NOT NULL,
	external_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	link TEXT,
	external_link TEXT,
	description TEXT,
	content TEXT,
	published_at DATETIME,
	author TEXT,
	image_url TEXT,
	is_read INTEGER NOT NULL DEFAULT 0,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);
`

	_, err := db.ExecContext(context.Background(), schema)
	if err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	return nil
}

// Store wraps the database with change-notification fan-out. Subscribers can
// be injected at construction or registered later with Subscribe.
type Store struct {
	db       *sql.DB
	notifier notifier
}

func New(db *sql.DB, subscribers ...Subscriber) *Store {
	s := &Store{db: db}
	for _, fn := range subscribers {
		s.notifier.subscribe(fn)
	}

	return s
}

// Subscribe registers fn for every subsequent successful mutation.
func (s *Store) Subscribe(fn Subscriber) {
	s.notifier.subscribe(fn)
}

const sourceColumns = `id, uri, name, description, language, last_updated_at,
	last_updated_raw, link, image_blob, format_type, folder_id`

const entryColumns = `id, source_id, external_id, title, link, external_link,
	description, content, published_at, author, image_url, is_read, is_favorite`

// FindSourceByURI is part of the store package API. A missing row yields
// (nil, nil).
func (s *Store) FindSourceByURI(ctx context.Context, uri string) (*model.FeedSource, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sourceColumns+" FROM sources WHERE uri = ?", uri)

	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find source by uri %s: %w", uri, err)
	}

	return source, nil
}

// FindEntryByExternalID is part of the store package API. A missing row
// yields (nil, nil).
func (s *Store) FindEntryByExternalID(ctx context.Context, externalID string) (*model.FeedEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE external_id = ?", externalID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entry by external id %s: %w", externalID, err)
	}

	return entry, nil
}

// FindFolderByName is part of the store package API. A missing row yields
// (nil, nil).
func (s *Store) FindFolderByName(ctx context.Context, name string) (*model.Folder, error) {
	var folder model.Folder

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name FROM folders WHERE name = ?", name).Scan(&folder.ID, &folder.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find folder by name %s: %w", name, err)
	}

	return &folder, nil
}

// InsertSource is part of the store package API. The source must not carry a
// surrogate id yet; on success its ID is assigned and an added event fires.
func (s *Store) InsertSource(ctx context.Context, source *model.FeedSource) error {
	if source.ID != 0 {
		return fmt.Errorf("%w: source already has id %d", ErrInvalidArgument, source.ID)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO sources (uri, name, description, language, last_updated_at,
	last_updated_raw, link, image_blob, format_type, folder_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		source.URI,
		source.Name,
		source.Description,
		source.Language,
		nullTime(source.LastUpdatedAt),
		source.LastUpdatedRaw,
		source.Link,
		source.ImageBlob,
		int(source.FormatType),
		nullInt64(source.FolderID),
		time.Now().UTC(),
	)
	if err != nil {
		return wrapMutationErr("insert source", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted source id: %w", err)
	}
	source.ID = id

	s.notifier.notify(Event{Op: OpAdded, Kind: KindSource, SourceIDs: []int64{id}})

	return nil
}

// UpsertSource is part of the store package API. It overwrites content fields
// of the row matching source.URI, preserving the surrogate id, or inserts a
// new row when the natural key is absent.
func (s *Store) UpsertSource(ctx context.Context, source *model.FeedSource) error {
	existing, err := s.FindSourceByURI(ctx, source.URI)
	if err != nil {
		return err
	}

	if existing == nil {
		source.ID = 0
		return s.InsertSource(ctx, source)
	}

	source.ID = existing.ID

	_, err = s.db.ExecContext(ctx, `
UPDATE sources
SET name = ?, description = ?, language = ?, last_updated_at = ?,
	last_updated_raw = ?, link = ?, image_blob = ?, format_type = ?, folder_id = ?
WHERE id = ?
	`,
		source.Name,
		source.Description,
		source.Language,
		nullTime(source.LastUpdatedAt),
		source.LastUpdatedRaw,
		source.Link,
		source.ImageBlob,
		int(source.FormatType),
		nullInt64(source.FolderID),
		source.ID,
	)
	if err != nil {
		return wrapMutationErr("upsert source", err)
	}

	s.notifier.notify(Event{Op: OpUpdated, Kind: KindSource, SourceIDs: []int64{source.ID}})

	return nil
}

// InsertEntry is part of the store package API. The entry must not carry a
// surrogate id and must reference a persisted source.
func (s *Store) InsertEntry(ctx context.Context, entry *model.FeedEntry) error {
	if entry.ID != 0 {
		return fmt.Errorf("%w: entry already has id %d", ErrInvalidArgument, entry.ID)
	}
	if entry.SourceID <= 0 {
		return fmt.Errorf("%w: entry source id %d is not persisted", ErrInvalidArgument, entry.SourceID)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO entries (source_id, external_id, title, link, external_link,
	description, content, published_at, author, image_url, is_read, is_favorite, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.SourceID,
		entry.ExternalID,
		entry.Title,
		entry.Link,
		entry.ExternalLink,
		entry.Description,
		entry.Content,
		nullTime(entry.PublishedAt),
		entry.Author,
		entry.ImageURL,
		entry.IsRead,
		entry.IsFavorite,
		time.Now().UTC(),
	)
	if err != nil {
		return wrapMutationErr("insert entry", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted entry id: %w", err)
	}
	entry.ID = id

	s.notifier.notify(Event{Op: OpAdded, Kind: KindEntry, SourceIDs: []int64{entry.SourceID}})

	return nil
}

// UpsertEntry is part of the store package API. It overwrites content fields
// of the row matching entry.ExternalID, preserving the surrogate id and the
// user flags, or inserts when absent.
func (s *Store) UpsertEntry(ctx context.Context, entry *model.FeedEntry) error {
	existing, err := s.FindEntryByExternalID(ctx, entry.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		entry.ID = 0
		return s.InsertEntry(ctx, entry)
	}

	entry.ID = existing.ID
	entry.IsRead = existing.IsRead
	entry.IsFavorite = existing.IsFavorite

	_, err = s.db.ExecContext(ctx, `
UPDATE entries
SET source_id = ?, title = ?, link = ?, external_link = ?, description = ?,
	content = ?, published_at = ?, author = ?, image_url = ?
WHERE id = ?
	`,
		entry.SourceID,
		entry.Title,
		entry.Link,
		entry.ExternalLink,
		entry.Description,
		entry.Content,
		nullTime(entry.PublishedAt),
		entry.Author,
		entry.ImageURL,
		entry.ID,
	)
	if err != nil {
		return wrapMutationErr("upsert entry", err)
	}

	s.notifier.notify(Event{Op: OpUpdated, Kind: KindEntry, SourceIDs: []int64{entry.SourceID}})

	return nil
}

// InsertFolder is part of the store package API.
func (s *Store) InsertFolder(ctx context.Context, folder *model.Folder) error {
	if folder.ID != 0 {
		return fmt.Errorf("%w: folder already has id %d", ErrInvalidArgument, folder.ID)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO folders (name) VALUES (?)", folder.Name)
	if err != nil {
		return wrapMutationErr("insert folder", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted folder id: %w", err)
	}
	folder.ID = id

	return nil
}

// UpdateSourceImage is part of the store package API.
func (s *Store) UpdateSourceImage(ctx context.Context, sourceID int64, blob []byte) error {
	if sourceID <= 0 {
		return fmt.Errorf("%w: source id %d is not persisted", ErrInvalidArgument, sourceID)
	}
	if len(blob) == 0 {
		return fmt.Errorf("%w: empty image blob", ErrInvalidArgument)
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE sources SET image_blob = ? WHERE id = ?", blob, sourceID)
	if err != nil {
		return fmt.Errorf("update source image: %w", err)
	}

	s.notifier.notify(Event{Op: OpUpdated, Kind: KindSource, SourceIDs: []int64{sourceID}})

	return nil
}

// SetEntryRead is part of the store package API.
func (s *Store) SetEntryRead(ctx context.Context, entryID int64, read bool) error {
	return s.setEntryFlag(ctx, entryID, "is_read", read)
}

// SetEntryFavorite is part of the store package API.
func (s *Store) SetEntryFavorite(ctx context.Context, entryID int64, favorite bool) error {
	return s.setEntryFlag(ctx, entryID, "is_favorite", favorite)
}

func (s *Store) setEntryFlag(ctx context.Context, entryID int64, column string, value bool) error {
	var sourceID int64

	err := s.db.QueryRowContext(ctx,
		"SELECT source_id FROM entries WHERE id = ?", entryID).Scan(&sourceID)
	if err != nil {
		return fmt.Errorf("lookup entry %d: %w", entryID, err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE entries SET "+column+" = ? WHERE id = ?", value, entryID)
	if err != nil {
		return fmt.Errorf("set entry %s: %w", column, err)
	}

	s.notifier.notify(Event{Op: OpUpdated, Kind: KindEntry, SourceIDs: []int64{sourceID}})

	return nil
}

// SourceCandidate pairs a not-yet-persisted source with its optional folder.
// Candidates sharing a new folder must share the same *model.Folder value so
// the batch creates it once.
type SourceCandidate struct {
	Source model.FeedSource
	Folder *model.Folder
}

// CreateSources inserts all candidates (and any new folders) in a single
// transaction, assigns surrogate ids in place, and emits one added event
// covering every inserted source.
func (s *Store) CreateSources(ctx context.Context, candidates []SourceCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	for i := range candidates {
		if candidates[i].Source.ID != 0 {
			return fmt.Errorf("%w: candidate %s already has id %d",
				ErrInvalidArgument, candidates[i].Source.URI, candidates[i].Source.ID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create sources transaction: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			rollbackTx(tx)
		}
	}()

	now := time.Now().UTC()
	inserted := make([]int64, 0, len(candidates))

	for i := range candidates {
		candidate := &candidates[i]

		if candidate.Folder != nil && candidate.Folder.ID == 0 {
			res, folderErr := tx.ExecContext(ctx,
				"INSERT INTO folders (name) VALUES (?)", candidate.Folder.Name)
			if folderErr != nil {
				return wrapMutationErr("insert batch folder", folderErr)
			}
			folderID, idErr := res.LastInsertId()
			if idErr != nil {
				return fmt.Errorf("read inserted folder id: %w", idErr)
			}
			candidate.Folder.ID = folderID
		}

		if candidate.Folder != nil {
			candidate.Source.FolderID = candidate.Folder.ID
		}

		res, sourceErr := tx.ExecContext(ctx, `
INSERT INTO sources (uri, name, description, language, last_updated_at,
	last_updated_raw, link, image_blob, format_type, folder_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			candidate.Source.URI,
			candidate.Source.Name,
			candidate.Source.Description,
			candidate.Source.Language,
			nullTime(candidate.Source.LastUpdatedAt),
			candidate.Source.LastUpdatedRaw,
			candidate.Source.Link,
			candidate.Source.ImageBlob,
			int(candidate.Source.FormatType),
			nullInt64(candidate.Source.FolderID),
			now,
		)
		if sourceErr != nil {
			return wrapMutationErr("insert batch source", sourceErr)
		}

		id, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("read inserted source id: %w", idErr)
		}
		candidate.Source.ID = id
		inserted = append(inserted, id)
	}

	commitErr := tx.Commit()
	if commitErr != nil {
		return fmt.Errorf("commit create sources transaction: %w", commitErr)
	}

	committed = true

	s.notifier.notify(Event{Op: OpAdded, Kind: KindSource, SourceIDs: inserted})

	return nil
}

// ListSources is part of the store package API.
func (s *Store) ListSources(ctx context.Context) ([]model.FeedSource, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sourceColumns+" FROM sources ORDER BY name COLLATE NOCASE, id ASC")
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}

	defer closeRows(rows)

	var sources []model.FeedSource

	for rows.Next() {
		source, scanErr := scanSource(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan source row: %w", scanErr)
		}

		sources = append(sources, *source)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate source rows: %w", rowsErr)
	}

	return sources, nil
}

// ListEntries is part of the store package API.
func (s *Store) ListEntries(ctx context.Context, sourceID int64) ([]model.FeedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+` FROM entries
WHERE source_id = ?
ORDER BY COALESCE(published_at, created_at) DESC, id DESC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query entries for source %d: %w", sourceID, err)
	}

	defer closeRows(rows)

	var entries []model.FeedEntry

	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan entry row: %w", scanErr)
		}

		entries = append(entries, *entry)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate entry rows for source %d: %w", sourceID, rowsErr)
	}

	return entries, nil
}

// ListFolders is part of the store package API.
func (s *Store) ListFolders(ctx context.Context) ([]model.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name FROM folders ORDER BY name COLLATE NOCASE, id ASC")
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}

	defer closeRows(rows)

	var folders []model.Folder

	for rows.Next() {
		var folder model.Folder

		scanErr := rows.Scan(&folder.ID, &folder.Name)
		if scanErr != nil {
			return nil, fmt.Errorf("scan folder row: %w", scanErr)
		}

		folders = append(folders, folder)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate folder rows: %w", rowsErr)
	}

	return folders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*model.FeedSource, error) {
	var (
		source         model.FeedSource
		description    sql.NullString
		language       sql.NullString
		lastUpdatedAt  sql.NullTime
		lastUpdatedRaw sql.NullString
		link           sql.NullString
		formatType     int64
		folderID       sql.NullInt64
	)

	err := row.Scan(
		&source.ID,
		&source.URI,
		&source.Name,
		&description,
		&language,
		&lastUpdatedAt,
		&lastUpdatedRaw,
		&link,
		&source.ImageBlob,
		&formatType,
		&folderID,
	)
	if err != nil {
		return nil, err
	}

	source.Description = description.String
	source.Language = language.String
	source.LastUpdatedAt = lastUpdatedAt.Time
	source.LastUpdatedRaw = lastUpdatedRaw.String
	source.Link = link.String
	source.FormatType = model.FormatType(formatType)
	source.FolderID = folderID.Int64

	return &source, nil
}

func scanEntry(row rowScanner) (*model.FeedEntry, error) {
	var (
		entry        model.FeedEntry
		link         sql.NullString
		externalLink sql.NullString
		description  sql.NullString
		content      sql.NullString
		publishedAt  sql.NullTime
		author       sql.NullString
		imageURL     sql.NullString
	)

	err := row.Scan(
		&entry.ID,
		&entry.SourceID,
		&entry.ExternalID,
		&entry.Title,
		&link,
		&externalLink,
		&description,
		&content,
		&publishedAt,
		&author,
		&imageURL,
		&entry.IsRead,
		&entry.IsFavorite,
	)
	if err != nil {
		return nil, err
	}

	entry.Link = link.String
	entry.ExternalLink = externalLink.String
	entry.Description = description.String
	entry.Content = content.String
	entry.PublishedAt = publishedAt.Time
	entry.Author = author.String
	entry.ImageURL = imageURL.String

	return &entry, nil
}

func wrapMutationErr(op string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func closeRows(rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		slog.Warn("rows close failed", "err", err)
	}
}

func rollbackTx(tx *sql.Tx) {
	err := tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Warn("tx rollback failed", "err", err)
	}
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}

	return value.UTC()
}

func nullInt64(value int64) any {
	if value <= 0 {
		return nil
	}

	return value
}
