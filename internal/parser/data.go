package parser

import "time"

/*
Responsibilities
- Parse a fetched HTML body into a PageRecord
- Resolve relative links/images/assets against the page's base URL
- Separate visible text from chrome (nav, footer, script, style)

Parse never returns a Go error: a body that cannot be made sense of
yields a PageRecord with Error set instead, per the crawler's rule that
parser failures are outcomes, not exceptions.
*/

// PageMetadata holds the subset of <meta> tags the crawler records.
type PageMetadata struct {
	Description string
	Keywords    []string
}

// Image is one <img> reference, with Src resolved against the page's
// base URL.
type Image struct {
	Src string
	Alt string
}

// Table is one <table> flattened to rows of cell text, in document
// order; header (<th>) and data (<td>) rows are not distinguished.
type Table struct {
	Rows [][]string
}

// List is one <ul> or <ol>, item text in document order.
type List struct {
	Ordered bool
	Items   []string
}

// PageRecord is the parser's output and storage's input: one per
// fetched page, emitted exactly once.
type PageRecord struct {
	URL         string
	Title       string
	Text        string
	Links       []string
	Metadata    PageMetadata
	Images      []Image
	Headings    []string
	Tables      []Table
	Lists       []List
	StatusCode  int
	ContentType string
	CrawledAt   time.Time

	// Error is set instead of the fields above when the body could not
	// be parsed as HTML at all. A non-empty Error means the URL
	// contributes no links and storage still receives the record.
	Error string
}
