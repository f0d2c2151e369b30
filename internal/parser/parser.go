package parser

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// chromeTags are removed from the text-extraction pass but left in place
// for link/image/table/list extraction, which read the full document.
var chromeTags = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
}

// Parse extracts a PageRecord from a fetched HTML body. base resolves
// relative hrefs/srcs; statusCode and contentType are carried through
// from the fetch response since PageRecord is the single record storage
// consumes for a URL.
func Parse(body []byte, base url.URL, statusCode int, contentType string, crawledAt time.Time) PageRecord {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return PageRecord{
			URL:         base.String(),
			StatusCode:  statusCode,
			ContentType: contentType,
			CrawledAt:   crawledAt,
			Error:       "not parseable as HTML: " + err.Error(),
		}
	}

	rec := PageRecord{
		URL:         base.String(),
		StatusCode:  statusCode,
		ContentType: contentType,
		CrawledAt:   crawledAt,
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Metadata:    extractMetadata(doc),
		Links:       extractLinks(doc, base),
		Images:      extractImages(doc, base),
		Headings:    extractHeadings(doc),
		Tables:      extractTables(doc),
		Lists:       extractLists(doc),
		Text:        extractText(doc),
	}

	if rec.Title == "" && rec.Text == "" && len(rec.Links) == 0 {
		rec.Error = "no extractable title, text, or links"
	}

	return rec
}

func extractMetadata(doc *goquery.Document) PageMetadata {
	var md PageMetadata
	md.Description, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	if kw, ok := doc.Find(`meta[name="keywords"]`).First().Attr("content"); ok {
		for _, k := range strings.Split(kw, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				md.Keywords = append(md.Keywords, k)
			}
		}
	}
	return md
}

func extractLinks(doc *goquery.Document, base url.URL) []string {
	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved, ok := resolve(base, href)
		if !ok || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})
	return links
}

func extractImages(doc *goquery.Document, base url.URL) []Image {
	var images []Image
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			return
		}
		resolved, ok := resolve(base, src)
		if !ok {
			return
		}
		alt, _ := s.Attr("alt")
		images = append(images, Image{Src: resolved, Alt: alt})
	})
	return images
}

func extractHeadings(doc *goquery.Document) []string {
	var headings []string
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			headings = append(headings, text)
		}
	})
	return headings
}

func extractTables(doc *goquery.Document) []Table {
	var tables []Table
	doc.Find("table").Each(func(_ int, tableSel *goquery.Selection) {
		var t Table
		tableSel.Find("tr").Each(func(_ int, rowSel *goquery.Selection) {
			var row []string
			rowSel.Find("th, td").Each(func(_ int, cellSel *goquery.Selection) {
				row = append(row, strings.TrimSpace(cellSel.Text()))
			})
			if len(row) > 0 {
				t.Rows = append(t.Rows, row)
			}
		})
		tables = append(tables, t)
	})
	return tables
}

func extractLists(doc *goquery.Document) []List {
	var lists []List
	doc.Find("ul, ol").Each(func(_ int, listSel *goquery.Selection) {
		// Nested lists are skipped: they are not recorded as lists of
		// their own, and item text below excludes child elements, so
		// their items do not appear in Lists.
		if isNestedList(listSel) {
			return
		}
		l := List{Ordered: goquery.NodeName(listSel) == "ol"}
		listSel.ChildrenFiltered("li").Each(func(_ int, itemSel *goquery.Selection) {
			text := strings.TrimSpace(itemSel.Clone().Children().Remove().End().Text())
			if text != "" {
				l.Items = append(l.Items, text)
			}
		})
		lists = append(lists, l)
	})
	return lists
}

func isNestedList(s *goquery.Selection) bool {
	found := false
	s.ParentsFiltered("ul, ol").Each(func(_ int, _ *goquery.Selection) {
		found = true
	})
	return found
}

// extractText returns visible body text with script/style/nav/footer
// nodes excluded, collapsed to single spaces between block runs.
func extractText(doc *goquery.Document) string {
	clone := doc.Clone()
	for tag := range chromeTags {
		clone.Find(tag).Remove()
	}
	text := clone.Find("body").Text()
	if text == "" {
		text = clone.Text()
	}
	return strings.Join(strings.Fields(text), " ")
}

func resolve(base url.URL, ref string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}
