package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/parser"
)

// JSONLSink appends one JSON object per line, UTF-8, written through a
// buffered writer that Save flushes before it returns, so every saved
// record has been handed to the file.
type JSONLSink struct {
	mu           sync.Mutex
	file         *os.File
	writer       *bufio.Writer
	encoder      *json.Encoder
	metadataSink metadata.MetadataSink
	path         string
}

func newJSONLSink(path string, metadataSink metadata.MetadataSink) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
	}
	w := bufio.NewWriter(f)
	return &JSONLSink{
		file:         f,
		writer:       w,
		encoder:      json.NewEncoder(w),
		metadataSink: metadataSink,
		path:         path,
	}, nil
}

func (s *JSONLSink) Save(ctx context.Context, rec parser.PageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(rec); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseEncodeFailed,
			Path:      s.path,
		}
		s.recordError(storageErr, rec)
		return storageErr
	}
	if err := s.writer.Flush(); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseWriteFailure,
			Path:      s.path,
		}
		s.recordError(storageErr, rec)
		return storageErr
	}

	recordArtifact(s.metadataSink, s.path, rec)
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

func (s *JSONLSink) recordError(err *StorageError, rec parser.PageRecord) {
	if s.metadataSink == nil {
		return
	}
	s.metadataSink.RecordError(time.Now(), "storage", "JSONLSink.Save", mapStorageErrorToMetadataCause(err), err.Error(), []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, rec.URL),
		metadata.NewAttr(metadata.AttrWritePath, err.Path),
	})
}
