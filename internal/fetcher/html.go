package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fetchward/crawlkit/internal/metadata"
	"github.com/fetchward/crawlkit/pkg/failure"
	"github.com/fetchward/crawlkit/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests
- Apply headers and timeouts
- Handle redirects safely
- Classify responses

Fetch Semantics

- Only successful HTML responses are processed
- Non-HTML content is discarded
- Redirect chains are bounded
- All responses are logged with metadata

The fetcher never parses content; it only returns bytes and metadata.
*/

type HtmlFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
}

func NewHtmlFetcher(
	metadataSink metadata.MetadataSink,
) HtmlFetcher {
	return HtmlFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{},
	}
}

// Init swaps in a caller-supplied HTTP client (e.g. one with a custom
// transport or timeout) and records a default user agent. FetchParam
// still carries its own user agent per call; callers that never call
// Init get the zero-value client NewHtmlFetcher already installs.
func (h *HtmlFetcher) Init(httpClient *http.Client, userAgent string) {
	if httpClient != nil {
		h.httpClient = httpClient
	}
	h.userAgent = userAgent
}

func (h *HtmlFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HtmlFetcher.Fetch"
	startTime := time.Now()

	result, err := h.fetchWithRetry(ctx, fetchParam, retryParam)

	duration := time.Since(startTime)

	// Record the fetch event with actual data
	var statusCode int
	var contentType string
	var retryCount int

	if err != nil {
		// Extract retry count from error if it's a RetryError
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			retryCount = retryParam.MaxAttempts
		}
	} else {
		statusCode = result.Code()
		contentType = h.extractContentType(result.Headers())
	}

	h.metadataSink.RecordFetch(
		fetchParam.fetchUrl.String(),
		statusCode,
		duration,
		contentType,
		retryCount,
		crawlDepth,
	)

	if err != nil {
		// Use errors.Is to decide between FetchError or RetryError
		if errors.Is(err, &retry.RetryError{}) {
			// It's a RetryError
			h.recordRetryError(callerMethod, fetchParam.fetchUrl, err)
		} else {
			// It's a FetchError
			h.recordFetchError(callerMethod, fetchParam.fetchUrl, err)
		}

		return FetchResult{}, err
	}

	return result, nil
}

func (h *HtmlFetcher) extractContentType(headers map[string]string) string {
	if ct, ok := headers["Content-Type"]; ok {
		return ct
	}
	return ""
}

func (h *HtmlFetcher) recordFetchError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		// record fetch error event
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			mapFetchErrorToMetadataCause(fetchError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HtmlFetcher) recordRetryError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var retryError *retry.RetryError
	if errors.As(err, &retryError) {
		// record retry error event
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			metadata.CauseRetryFailure,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrMessage, retryError.Error()),
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HtmlFetcher) fetchWithRetry(ctx context.Context, fetchParam FetchParam, retryParam retry.RetryParam) (FetchResult, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchParam)
	}

	result, retryErr := retry.Retry(retryParam, fetchTask)

	if retryErr != nil {
		// Handle error - decide what to return based on error type
		// Check if it's a FetchError (returned by the task) or RetryError (from retry.Retry)
		var fetchErr *FetchError
		if errors.As(retryErr, &fetchErr) {
			// The underlying error is a FetchError, return it directly
			return FetchResult{}, fetchErr
		}

		// It's a RetryError, return it as-is
		return FetchResult{}, retryErr
	}

	return result, nil
}

func (h *HtmlFetcher) performFetch(ctx context.Context, fetchParam FetchParam) (FetchResult, failure.ClassifiedError) {
	fetchUrl := fetchParam.fetchUrl

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	// Apply browser-like headers
	headers := requestHeaders(fetchParam.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Conditional GET validators, per §4.4's fetcher contract.
	if fetchParam.ifNoneMatch != "" {
		req.Header.Set("If-None-Match", fetchParam.ifNoneMatch)
	}
	if fetchParam.ifModifiedSince != "" {
		req.Header.Set("If-Modified-Since", fetchParam.ifModifiedSince)
	}

	client := h.redirectBoundClient(fetchParam)

	resp, err := client.Do(req)
	if err != nil {
		if redirectErr, ok := asRedirectPolicyError(err); ok {
			return FetchResult{}, redirectErr
		}
		// Network/transport errors (DNS, connect, TLS, read timeout) are
		// retryable.
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	// A conditional GET's 304 is a successful no-change visit, not an
	// error -- surfaced via FetchResult.NotModified() so the caller can
	// run the revisit policy without re-parsing a body.
	if resp.StatusCode == http.StatusNotModified {
		return FetchResult{
			url: fetchUrl,
			meta: ResponseMeta{
				statusCode:      resp.StatusCode,
				responseHeaders: flattenHeaders(resp.Header),
			},
		}, nil
	}

	// Handle HTTP status codes
	switch {
	case resp.StatusCode >= 500:
		// Server errors (5xx) are retryable
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("server error: %d", resp.StatusCode),
			Retryable: true,
			Cause:     ErrCauseRequest5xx,
		}

	case resp.StatusCode == 429:
		// Too Many Requests is retryable
		return FetchResult{}, &FetchError{
			Message:   "rate limited (429)",
			Retryable: true,
			Cause:     ErrCauseRequestTooMany,
		}

	case resp.StatusCode == 408:
		// Request Timeout is retryable
		return FetchResult{}, &FetchError{
			Message:   "request timeout (408)",
			Retryable: true,
			Cause:     ErrCauseRequestTimeout,
		}

	case resp.StatusCode == 403:
		// Forbidden is not retryable
		return FetchResult{}, &FetchError{
			Message:   "access forbidden (403)",
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Other client errors are not retryable
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("client error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		// Redirects are followed by the http.Client's CheckRedirect; if
		// we get here, the client gave up on the redirect chain and
		// returned the last hop verbatim (e.g. a 3xx with no Location).
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("redirect error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRedirectLimitExceeded,
		}
	}

	// Check Content-Type against the accepted set ("text/html" is
	// always implied regardless of configuration).
	contentType := resp.Header.Get("Content-Type")
	if !isAcceptedContent(contentType, fetchParam.acceptedContentTypes) {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("unsupported content type: %s", contentType),
			Retryable: false,
			Cause:     ErrCauseContentTypeInvalid,
		}
	}

	// Read response body, capped at maxBodyBytes+1 so an oversize body
	// is detected without buffering an unbounded stream into memory.
	reader := io.Reader(resp.Body)
	if fetchParam.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, fetchParam.maxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}
	if fetchParam.maxBodyBytes > 0 && int64(len(body)) > fetchParam.maxBodyBytes {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("body exceeds max size of %d bytes", fetchParam.maxBodyBytes),
			Retryable: false,
			Cause:     ErrCauseBodyTooLarge,
		}
	}

	// Create FetchResult. resp.Request.URL reflects the final URL after
	// any redirects were followed.
	finalURL := fetchUrl
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = *resp.Request.URL
	}
	result := FetchResult{
		url:  finalURL,
		body: body,
		meta: ResponseMeta{
			statusCode:          resp.StatusCode,
			transferredSizeByte: uint64(len(body)),
			responseHeaders:     flattenHeaders(resp.Header),
		},
	}

	return result, nil
}

// redirectBoundClient returns an http.Client sharing h's transport but
// with a CheckRedirect policy enforcing fetchParam's redirect cap and
// host allowlist. A fresh client per request is cheap: it reuses the
// same underlying Transport/connection pool, only the redirect
// callback closure differs per call.
func (h *HtmlFetcher) redirectBoundClient(fetchParam FetchParam) *http.Client {
	if fetchParam.maxRedirects <= 0 && len(fetchParam.allowedHosts) == 0 {
		return h.httpClient
	}

	client := *h.httpClient
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if fetchParam.maxRedirects > 0 && len(via) > fetchParam.maxRedirects {
			return &redirectPolicyError{
				cause:   ErrCauseRedirectLimitExceeded,
				message: fmt.Sprintf("redirect chain exceeded %d hops", fetchParam.maxRedirects),
			}
		}
		if len(fetchParam.allowedHosts) > 0 {
			if _, ok := fetchParam.allowedHosts[req.URL.Host]; !ok {
				return &redirectPolicyError{
					cause:   ErrCauseRedirectOffAllowlist,
					message: fmt.Sprintf("redirect to %s is off the host allowlist", req.URL.Host),
				}
			}
		}
		return nil
	}
	return &client
}

// redirectPolicyError is returned from http.Client.CheckRedirect to
// abort a redirect chain; http.Client wraps it in a *url.Error, which
// asRedirectPolicyError unwraps back into a classified FetchError.
type redirectPolicyError struct {
	cause   FetchErrorCause
	message string
}

func (e *redirectPolicyError) Error() string { return e.message }

func asRedirectPolicyError(err error) (*FetchError, bool) {
	var policyErr *redirectPolicyError
	if !errors.As(err, &policyErr) {
		return nil, false
	}
	return &FetchError{Message: policyErr.message, Retryable: false, Cause: policyErr.cause}, true
}

func flattenHeaders(h http.Header) map[string]string {
	responseHeaders := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}
	return responseHeaders
}

// isAcceptedContent reports whether contentType matches the configured
// accepted set. "text/html"/"application/xhtml" are always accepted so
// existing HTML-only configurations keep working unmodified.
func isAcceptedContent(contentType string, accepted []string) bool {
	lowered := strings.ToLower(contentType)
	if strings.Contains(lowered, "text/html") || strings.Contains(lowered, "application/xhtml") {
		return true
	}
	for _, t := range accepted {
		if t == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
