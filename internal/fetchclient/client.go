package fetchclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corvidae/webcrawler/internal/metadata"
	"github.com/corvidae/webcrawler/internal/taxonomy"
	"github.com/corvidae/webcrawler/internal/timeoutpolicy"
	"github.com/corvidae/webcrawler/pkg/failure"
	"github.com/corvidae/webcrawler/pkg/retry"
	"github.com/corvidae/webcrawler/pkg/timeutil"
)

/*
Responsibilities

- Perform HTTP requests with attempt-indexed connect/read/total timeouts
- Apply headers, follow redirects within net/http's default policy
- Classify every outcome into taxonomy.Kind
- Retry Transient and Network failures through pkg/retry.WithAttempt

Fetch never parses content; it only returns bytes and metadata. Only
HTML (and XHTML) responses are accepted — anything else is a Permanent
FetchError, since retrying would repeat the same content-type.
*/

type Client struct {
	metadataSink metadata.MetadataSink
	verifyTLS    bool
	policy       timeoutpolicy.Policy
}

// NewClient returns a Client recording fetch/error events to sink.
// verifyTLS false disables certificate verification (spec's
// `verify_tls` config key) — never the default, only set explicitly.
func NewClient(sink metadata.MetadataSink, policy timeoutpolicy.Policy, verifyTLS bool) Client {
	return Client{metadataSink: sink, verifyTLS: verifyTLS, policy: policy}
}

// Fetch retries performFetch under retryParam, growing the attempt's
// connect/read/total timeout bounds per c.policy, and records one
// RecordFetch event summarizing the whole retry sequence.
func (c *Client) Fetch(ctx context.Context, crawlDepth int, param FetchParam, retryParam retry.RetryParam) (FetchResult, failure.ClassifiedError) {
	start := time.Now()

	result := retry.WithAttempt(ctx, timeutil.RealSleeper{}, retryParam, func(attempt int) (FetchResult, failure.ClassifiedError) {
		return c.performFetch(ctx, param, c.policy.ForAttempt(attempt))
	})

	duration := time.Since(start)

	var statusCode int
	var contentType string
	if result.IsSuccess() {
		res := result.Value()
		statusCode = res.StatusCode()
		contentType = res.ContentType()
	}

	if c.metadataSink != nil {
		c.metadataSink.RecordFetch(param.fetchUrl.String(), statusCode, duration, contentType, result.Attempts(), crawlDepth)
	}

	if result.IsFailure() {
		c.recordError(param.fetchUrl, result.Err())
		return FetchResult{}, result.Err()
	}
	return result.Value(), nil
}

func (c *Client) recordError(fetchURL url.URL, err failure.ClassifiedError) {
	if c.metadataSink == nil {
		return
	}
	var fetchErr *FetchError
	cause := metadata.CauseUnknown
	if errors.As(err, &fetchErr) {
		cause = mapFetchErrorToMetadataCause(fetchErr)
	}
	c.metadataSink.RecordError(time.Now(), "fetchclient", "Client.Fetch", cause, err.Error(), []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, fetchURL.String()),
	})
}

func (c *Client) performFetch(ctx context.Context, param FetchParam, bounds timeoutpolicy.Bounds) (FetchResult, failure.ClassifiedError) {
	ctx, cancel := context.WithTimeout(ctx, bounds.Total)
	defer cancel()

	httpClient := c.clientFor(bounds)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, param.fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{Message: err.Error(), Kind: taxonomy.Permanent}
	}
	for key, value := range requestHeaders(param.userAgent) {
		req.Header.Set(key, value)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FetchResult{}, &FetchError{Message: "total timeout exceeded", Kind: taxonomy.Transient}
		}
		return FetchResult{}, &FetchError{Message: err.Error(), Kind: taxonomy.ClassifyTransportErr(err)}
	}
	defer resp.Body.Close()

	if kind := classifyStatus(resp.StatusCode); kind != taxonomy.Other {
		return FetchResult{}, &FetchError{
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Kind:    kind,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContent(contentType) {
		return FetchResult{}, &FetchError{
			Message: fmt.Sprintf("non-HTML content type: %s", contentType),
			Kind:    taxonomy.Permanent,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, &FetchError{Message: err.Error(), Kind: taxonomy.Network}
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	return FetchResult{
		url:         param.fetchUrl,
		body:        body,
		statusCode:  resp.StatusCode,
		contentType: contentType,
		headers:     headers,
		fetchedAt:   time.Now(),
	}, nil
}

// classifyStatus returns the Kind a non-2xx status maps to, or
// taxonomy.Other for 2xx (meaning "proceed, check content-type next").
func classifyStatus(code int) taxonomy.Kind {
	if code >= 200 && code < 300 {
		return taxonomy.Other
	}
	if code >= 300 && code < 400 {
		return taxonomy.Permanent // redirect limit exceeded; net/http already followed what it could
	}
	return taxonomy.ClassifyHTTPStatus(code)
}

func (c *Client) clientFor(bounds timeoutpolicy.Bounds) *http.Client {
	dialer := &net.Dialer{Timeout: bounds.Connect}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		ResponseHeaderTimeout: bounds.Read,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !c.verifyTLS},
	}
	return &http.Client{
		Timeout:   bounds.Total,
		Transport: transport,
	}
}

func isHTMLContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"Connection":      "keep-alive",
	}
}
