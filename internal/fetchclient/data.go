package fetchclient

import (
	"net/url"
	"time"
)

// HTTP boundary

type FetchParam struct {
	fetchUrl  url.URL
	userAgent string
}

func NewFetchParam(fetchUrl url.URL, userAgent string) FetchParam {
	return FetchParam{
		fetchUrl:  fetchUrl,
		userAgent: userAgent,
	}
}

type FetchResult struct {
	url         url.URL
	body        []byte
	statusCode  int
	contentType string
	headers     map[string]string
	fetchedAt   time.Time
}

func (f *FetchResult) URL() url.URL {
	return f.url
}

func (f *FetchResult) Body() []byte {
	return f.body
}

func (f *FetchResult) StatusCode() int {
	return f.statusCode
}

func (f *FetchResult) ContentType() string {
	return f.contentType
}

func (f *FetchResult) Headers() map[string]string {
	return f.headers
}

func (f *FetchResult) FetchedAt() time.Time {
	return f.fetchedAt
}

// NewFetchResultForTest constructs a FetchResult for test packages that
// cannot reach its unexported fields directly.
func NewFetchResultForTest(
	fetchUrl url.URL,
	body []byte,
	statusCode int,
	contentType string,
	headers map[string]string,
	fetchedAt time.Time,
) FetchResult {
	return FetchResult{
		url:         fetchUrl,
		body:        body,
		statusCode:  statusCode,
		contentType: contentType,
		headers:     headers,
		fetchedAt:   fetchedAt,
	}
}
