package fetcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests over a SOCKS5 proxy so that hostname resolution
  (including .onion addresses) happens remotely, never on the local host
- Apply headers and a per-request deadline
- Classify responses
- Rotate proxy identity on request via the control channel

Fetch Semantics

- Only successful HTML responses are processed
- Non-HTML content is discarded
- Response bodies are capped; oversized bodies are truncated, never buffered
  without bound
- All responses are logged with metadata

The fetcher never parses content; it only returns bytes and metadata.
*/

const defaultMaxBodyBytes = 8 << 20 // 8 MiB

type SocksFetcher struct {
	metadataSink    metadata.MetadataSink
	httpClient      *http.Client
	socksEndpoint   string
	controlEndpoint string
	controlPassword string
	maxBodyBytes    int64
}

func NewSocksFetcher(
	metadataSink metadata.MetadataSink,
	socksEndpoint string,
	controlEndpoint string,
	controlPassword string,
) (SocksFetcher, error) {
	dialer, err := proxy.SOCKS5("tcp", socksEndpoint, nil, proxy.Direct)
	if err != nil {
		return SocksFetcher{}, fmt.Errorf("build socks5 dialer: %w", err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return SocksFetcher{}, fmt.Errorf("socks5 dialer does not support context dialing")
	}

	transport := &http.Transport{
		DialContext:           contextDialer.DialContext,
		DisableKeepAlives:     false,
		MaxIdleConnsPerHost:   4,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return SocksFetcher{
		metadataSink:    metadataSink,
		httpClient:      &http.Client{Transport: transport},
		socksEndpoint:   socksEndpoint,
		controlEndpoint: controlEndpoint,
		controlPassword: controlPassword,
		maxBodyBytes:    defaultMaxBodyBytes,
	}, nil
}

func (h *SocksFetcher) Init(httpClient *http.Client) {
	h.httpClient = httpClient
}

// RotateIdentity sends a NEWNYM signal on the control channel and waits for
// the "250 OK" acknowledgement after each command. Failures are recorded but
// never returned as a reason to stop crawling — callers that check the error
// do so only to decide whether to log a warning.
func (h *SocksFetcher) RotateIdentity(ctx context.Context) error {
	if h.controlEndpoint == "" {
		return nil
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", h.controlEndpoint)
	if err != nil {
		h.recordControlError("RotateIdentity", err)
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	reader := bufio.NewReader(conn)

	auth := "AUTHENTICATE"
	if h.controlPassword != "" {
		auth = fmt.Sprintf("AUTHENTICATE %q", h.controlPassword)
	}
	if _, err := fmt.Fprintf(conn, "%s\r\n", auth); err != nil {
		h.recordControlError("RotateIdentity", err)
		return err
	}
	if err := readControlAck(reader); err != nil {
		h.recordControlError("RotateIdentity", err)
		return err
	}

	if _, err := fmt.Fprint(conn, "SIGNAL NEWNYM\r\n"); err != nil {
		h.recordControlError("RotateIdentity", err)
		return err
	}
	if err := readControlAck(reader); err != nil {
		h.recordControlError("RotateIdentity", err)
		return err
	}

	return nil
}

// readControlAck reads a single control-port response line and treats
// anything not prefixed with "250" as a failure.
func readControlAck(reader *bufio.Reader) error {
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read control ack: %w", err)
	}
	if !strings.HasPrefix(line, "250") {
		return fmt.Errorf("control port rejected command: %s", strings.TrimSpace(line))
	}
	return nil
}

func (h *SocksFetcher) recordControlError(action string, err error) {
	h.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		action,
		metadata.CauseNetworkFailure,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrHost, h.controlEndpoint),
		},
	)
}

func (h *SocksFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "SocksFetcher.Fetch"
	startTime := time.Now()

	result, attempts, err := h.fetchWithRetry(ctx, fetchParam.fetchUrl, fetchParam.userAgent, retryParam)

	duration := time.Since(startTime)

	var statusCode int
	var contentType string
	retryCount := attempts

	if err == nil {
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
		if errors.Is(err, &retry.RetryError{}) {
			h.recordRetryError(callerMethod, fetchParam.fetchUrl, err)
		} else {
			h.recordFetchError(callerMethod, fetchParam.fetchUrl, err)
		}

		return FetchResult{}, err
	}

	return result, nil
}

func (h *SocksFetcher) extractContentType(headers map[string]string) string {
	if ct, ok := headers["Content-Type"]; ok {
		return ct
	}
	return ""
}

func (h *SocksFetcher) recordFetchError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
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

func (h *SocksFetcher) recordRetryError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var retryError *retry.RetryError
	if errors.As(err, &retryError) {
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

func (h *SocksFetcher) fetchWithRetry(ctx context.Context, fetchUrl url.URL, userAgent string, retryParam retry.RetryParam) (FetchResult, int, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchUrl, userAgent)
	}

	res := retry.Retry(retryParam, fetchTask)

	if retryErr := res.Err(); retryErr != nil {
		var fetchErr *FetchError
		if errors.As(retryErr, &fetchErr) {
			return FetchResult{}, res.Attempts(), fetchErr
		}

		return FetchResult{}, res.Attempts(), retryErr
	}

	return res.Value(), res.Attempts(), nil
}

func (h *SocksFetcher) performFetch(ctx context.Context, fetchUrl url.URL, userAgent string) (FetchResult, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	headers := requestHeaders(userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return FetchResult{}, &FetchError{
				Message:   fmt.Sprintf("request timed out: %v", err),
				Retryable: true,
				Cause:     ErrCauseTimeout,
			}
		}
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("server error: %d", resp.StatusCode),
			Retryable: true,
			Cause:     ErrCauseRequest5xx,
		}

	case resp.StatusCode == 429:
		return FetchResult{}, &FetchError{
			Message:   "rate limited (429)",
			Retryable: true,
			Cause:     ErrCauseRequestTooMany,
		}

	case resp.StatusCode == 403:
		return FetchResult{}, &FetchError{
			Message:   "access forbidden (403)",
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("client error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("redirect error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRedirectLimitExceeded,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContent(contentType) {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("non-HTML content type: %s", contentType),
			Retryable: false,
			Cause:     ErrCauseContentTypeInvalid,
		}
	}

	maxBody := h.maxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}

	responseHeaders := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	result := FetchResult{
		url:       fetchUrl,
		body:      body,
		fetchedAt: time.Now(),
		meta: ResponseMeta{
			statusCode:      resp.StatusCode,
			responseHeaders: responseHeaders,
		},
	}

	return result, nil
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
		"Connection":      "keep-alive",
	}
}
