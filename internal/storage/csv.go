package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/parser"
)

var csvHeader = []string{
	"url", "title", "text", "links", "description", "keywords",
	"images", "headings", "tables", "lists", "status_code",
	"content_type", "crawled_at", "error",
}

// CSVSink writes one row per PageRecord, RFC-4180 escaped via
// encoding/csv. Nested lists/objects (links, images, headings, tables,
// lists) are JSON-encoded into their cell, since CSV has no native
// nested representation.
type CSVSink struct {
	mu           sync.Mutex
	file         *os.File
	writer       *csv.Writer
	headerDone   bool
	metadataSink metadata.MetadataSink
	path         string
}

func newCSVSink(path string, metadataSink metadata.MetadataSink) (*CSVSink, error) {
	_, statErr := os.Stat(path)
	alreadyExists := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
	}
	return &CSVSink{
		file:         f,
		writer:       csv.NewWriter(f),
		headerDone:   alreadyExists,
		metadataSink: metadataSink,
		path:         path,
	}, nil
}

func (s *CSVSink) Save(ctx context.Context, rec parser.PageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.headerDone {
		if err := s.writer.Write(csvHeader); err != nil {
			return s.wrapWriteErr(err, rec)
		}
		s.headerDone = true
	}

	row := []string{
		rec.URL,
		rec.Title,
		rec.Text,
		jsonCell(rec.Links),
		rec.Metadata.Description,
		jsonCell(rec.Metadata.Keywords),
		jsonCell(rec.Images),
		jsonCell(rec.Headings),
		jsonCell(rec.Tables),
		jsonCell(rec.Lists),
		strconv.Itoa(rec.StatusCode),
		rec.ContentType,
		rec.CrawledAt.Format(time.RFC3339),
		rec.Error,
	}

	if err := s.writer.Write(row); err != nil {
		return s.wrapWriteErr(err, rec)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return s.wrapWriteErr(err, rec)
	}

	recordArtifact(s.metadataSink, s.path, rec)
	return nil
}

func (s *CSVSink) wrapWriteErr(err error, rec parser.PageRecord) error {
	storageErr := &StorageError{
		Message:   err.Error(),
		Retryable: true,
		Cause:     ErrCauseWriteFailure,
		Path:      s.path,
	}
	if s.metadataSink != nil {
		s.metadataSink.RecordError(time.Now(), "storage", "CSVSink.Save", mapStorageErrorToMetadataCause(storageErr), err.Error(), []metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, rec.URL),
			metadata.NewAttr(metadata.AttrWritePath, s.path),
		})
	}
	return storageErr
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	return s.file.Close()
}

func jsonCell(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
