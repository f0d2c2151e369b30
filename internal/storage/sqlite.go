package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/parser"
)

const createPagesTable = `
CREATE TABLE IF NOT EXISTS pages (
	url TEXT PRIMARY KEY,
	title TEXT,
	text TEXT,
	links TEXT,
	description TEXT,
	keywords TEXT,
	images TEXT,
	headings TEXT,
	tables TEXT,
	lists TEXT,
	status_code INTEGER,
	content_type TEXT,
	crawled_at TEXT,
	error TEXT
)`

const upsertPage = `
INSERT INTO pages (url, title, text, links, description, keywords, images, headings, tables, lists, status_code, content_type, crawled_at, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
	title=excluded.title, text=excluded.text, links=excluded.links,
	description=excluded.description, keywords=excluded.keywords,
	images=excluded.images, headings=excluded.headings, tables=excluded.tables,
	lists=excluded.lists, status_code=excluded.status_code,
	content_type=excluded.content_type, crawled_at=excluded.crawled_at,
	error=excluded.error
`

// SQLiteSink upserts into a single `pages` table keyed by url, so a URL
// re-crawled within the same output file replaces its prior record
// instead of duplicating it.
type SQLiteSink struct {
	db           *sql.DB
	metadataSink metadata.MetadataSink
	path         string
}

func newSQLiteSink(path string, metadataSink metadata.MetadataSink) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      path,
		}
	}
	if _, err := db.Exec(createPagesTable); err != nil {
		db.Close()
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
	}
	return &SQLiteSink{db: db, metadataSink: metadataSink, path: path}, nil
}

func (s *SQLiteSink) Save(ctx context.Context, rec parser.PageRecord) error {
	_, err := s.db.ExecContext(ctx, upsertPage,
		rec.URL, rec.Title, rec.Text, jsonCell(rec.Links),
		rec.Metadata.Description, jsonCell(rec.Metadata.Keywords),
		jsonCell(rec.Images), jsonCell(rec.Headings), jsonCell(rec.Tables), jsonCell(rec.Lists),
		rec.StatusCode, rec.ContentType, rec.CrawledAt.Format(time.RFC3339), rec.Error,
	)
	if err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseWriteFailure,
			Path:      s.path,
		}
		if s.metadataSink != nil {
			s.metadataSink.RecordError(time.Now(), "storage", "SQLiteSink.Save", mapStorageErrorToMetadataCause(storageErr), err.Error(), []metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, rec.URL),
				metadata.NewAttr(metadata.AttrWritePath, s.path),
			})
		}
		return storageErr
	}

	recordArtifact(s.metadataSink, s.path, rec)
	return nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
