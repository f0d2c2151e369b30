package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/parser"
)

/*
Responsibilities
- Persist PageRecords, one per fetched page
- Pick a concrete back-end from an output path's extension
- Stay append-only and internally buffered so the orchestrator never
  blocks on disk/database I/O beyond what the back-end itself buffers

Back-ends are expected to be idempotent on Close: calling Close twice,
or calling it after a failed Save, must not corrupt already-written
records.
*/

// Sink is the storage boundary the orchestrator depends on. Every
// back-end is append-only: Save never overwrites a previously saved
// record except where the back-end's own semantics call for an upsert
// (SQLite, keyed by URL).
type Sink interface {
	Save(ctx context.Context, rec parser.PageRecord) error
	Close() error
}

// NewSink selects a back-end by the output path's extension:
// .jsonl → line-delimited JSON, .csv → CSV, .db/.sqlite/.sqlite3 →
// SQLite. Any other extension is a configuration error, not a runtime
// one, so NewSink returns an error rather than falling back silently.
func NewSink(outputPath string, metadataSink metadata.MetadataSink) (Sink, error) {
	ext := strings.ToLower(strings.TrimPrefix(fileExt(outputPath), "."))
	switch ext {
	case "jsonl":
		return newJSONLSink(outputPath, metadataSink)
	case "csv":
		return newCSVSink(outputPath, metadataSink)
	case "db", "sqlite", "sqlite3":
		return newSQLiteSink(outputPath, metadataSink)
	default:
		return nil, &StorageError{
			Message:   fmt.Sprintf("unrecognized output extension %q", ext),
			Retryable: false,
			Cause:     ErrCauseUnknownExt,
			Path:      outputPath,
		}
	}
}

func fileExt(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

func recordArtifact(sink metadata.MetadataSink, path string, rec parser.PageRecord) {
	if sink == nil {
		return
	}
	sink.RecordArtifact(metadata.ArtifactPage, path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, rec.URL),
	})
}
