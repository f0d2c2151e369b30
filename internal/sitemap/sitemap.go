// Package sitemap enumerates the URLs a site's sitemap(s) advertise.
// The crawl does not call Discover: the frontier is seeded from the
// configured seed URLs only.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// urlset is the XML shape of a plain sitemap file.
type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// sitemapIndex is the XML shape of a sitemap-of-sitemaps file.
type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Discover fetches the sitemap at base (typically <origin>/sitemap.xml)
// and returns every page URL it advertises. A sitemapindex is recursed
// into, fetching each listed sitemap in turn; a visitedSitemaps set
// guards against a sitemap (directly or transitively) listing itself.
//
// A fetch or parse failure on a child sitemap listed in an index does not
// abort discovery of the others — it is swallowed, since sitemap discovery
// is best-effort. A failure of the sitemap at base itself is returned as
// the error.
func Discover(ctx context.Context, client *http.Client, base url.URL) ([]url.URL, error) {
	visited := make(map[string]struct{})
	var out []url.URL
	if err := discover(ctx, client, base.String(), visited, &out); err != nil {
		return out, err
	}
	return out, nil
}

func discover(ctx context.Context, client *http.Client, sitemapURL string, visited map[string]struct{}, out *[]url.URL) error {
	if _, seen := visited[sitemapURL]; seen {
		return nil
	}
	visited[sitemapURL] = struct{}{}

	body, err := fetchBody(ctx, client, sitemapURL)
	if err != nil {
		return fmt.Errorf("fetch sitemap %s: %w", sitemapURL, err)
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		for _, entry := range index.Sitemaps {
			if entry.Loc == "" {
				continue
			}
			// Best-effort: one bad child sitemap doesn't stop the rest.
			_ = discover(ctx, client, entry.Loc, visited, out)
		}
		return nil
	}

	var set urlset
	if err := xml.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}
	for _, entry := range set.URLs {
		if entry.Loc == "" {
			continue
		}
		parsed, err := url.Parse(entry.Loc)
		if err != nil {
			continue
		}
		*out = append(*out, *parsed)
	}
	return nil
}

func fetchBody(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
