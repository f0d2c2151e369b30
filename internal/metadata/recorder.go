package metadata

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

/*
Metadata Collected
- Fetch URLs, durations, content types and retry counts
- HTTP status codes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// Recorder is the default MetadataSink: every event is one logfmt record
// written to an underlying io.Writer, guarded by a single mutex so
// concurrent crawl workers can share one instance without interleaving
// partial lines.
type Recorder struct {
	mu  sync.Mutex
	enc *logfmt.Encoder
}

// NewRecorder builds a Recorder writing logfmt records to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: logfmt.NewEncoder(w)}
}

// NewStderrRecorder is the convenience constructor most callers want.
func NewStderrRecorder() *Recorder {
	return NewRecorder(os.Stderr)
}

func (r *Recorder) emit(kv ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i+1 < len(kv); i += 2 {
		if err := r.enc.EncodeKeyval(kv[i], kv[i+1]); err != nil {
			return
		}
	}
	r.enc.EndRecord()
}

func (r *Recorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.emit(
		"event", "fetch",
		"url", fetchURL,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"content_type", contentType,
		"retries", retryCount,
		"depth", crawlDepth,
	)
}

func (r *Recorder) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
	r.emit(
		"event", "asset_fetch",
		"url", fetchURL,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"retries", retryCount,
	)
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute) {
	kv := []interface{}{
		"event", "error",
		"package", packageName,
		"action", action,
		"cause", cause,
		"error", errorString,
		"observed_at", observedAt.Format(time.RFC3339),
	}
	for _, attr := range attrs {
		kv = append(kv, string(attr.Key), attr.Value)
	}
	r.emit(kv...)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	kv := []interface{}{
		"event", "artifact",
		"kind", kind.String(),
		"path", path,
	}
	for _, attr := range attrs {
		kv = append(kv, string(attr.Key), attr.Value)
	}
	r.emit(kv...)
}

func (r *Recorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.emit(
		"event", "crawl_summary",
		"pages", totalPages,
		"errors", totalErrors,
		"assets", totalAssets,
		"duration_ms", duration.Milliseconds(),
	)
}
