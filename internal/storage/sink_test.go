package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/parser"
	"github.com/corvidae/webcrawler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spySink struct {
	metadata.NoopSink
	artifacts int
	errors    int
}

func (s *spySink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
	s.artifacts++
}

func (s *spySink) RecordError(observedAt time.Time, packageName, action string, cause metadata.ErrorCause, errorString string, attrs []metadata.Attribute) {
	s.errors++
}

func sampleRecord(url string) parser.PageRecord {
	return parser.PageRecord{
		URL:         url,
		Title:       "Title",
		Text:        "Body text",
		Links:       []string{"https://example.com/a"},
		StatusCode:  200,
		ContentType: "text/html",
		CrawledAt:   time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewSink_SelectsBackendByExtension(t *testing.T) {
	dir := t.TempDir()
	spy := &spySink{}

	tests := []struct {
		name string
		path string
	}{
		{"jsonl", filepath.Join(dir, "out.jsonl")},
		{"csv", filepath.Join(dir, "out.csv")},
		{"sqlite", filepath.Join(dir, "out.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := storage.NewSink(tt.path, spy)
			require.NoError(t, err)
			defer sink.Close()

			require.NoError(t, sink.Save(context.Background(), sampleRecord("https://example.com/"+tt.name)))
		})
	}
}

func TestNewSink_UnknownExtension(t *testing.T) {
	_, err := storage.NewSink("output.txt", &spySink{})
	require.Error(t, err)
}

func TestJSONLSink_AppendsOneRecordPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	spy := &spySink{}

	sink, err := storage.NewSink(path, spy)
	require.NoError(t, err)

	require.NoError(t, sink.Save(context.Background(), sampleRecord("https://example.com/1")))
	require.NoError(t, sink.Save(context.Background(), sampleRecord("https://example.com/2")))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	assert.Len(t, lines, 2)
	assert.Equal(t, 2, spy.artifacts)
}

func TestCSVSink_WritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	spy := &spySink{}

	sink, err := storage.NewSink(path, spy)
	require.NoError(t, err)
	require.NoError(t, sink.Save(context.Background(), sampleRecord("https://example.com/1")))
	require.NoError(t, sink.Close())

	sink2, err := storage.NewSink(path, spy)
	require.NoError(t, err)
	require.NoError(t, sink2.Save(context.Background(), sampleRecord("https://example.com/2")))
	require.NoError(t, sink2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	assert.Len(t, lines, 3) // header + 2 rows
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
