package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"crawl-scheduler/pkg/models"
	"crawl-scheduler/pkg/utils"
)

// PageClient performs single-attempt page fetches against the live web.
// Retry policy is owned by the retry coordinator, not this client: each call
// here is exactly one HTTP request, with non-2xx statuses mapped onto the
// sentinel error taxonomy so callers can classify them.
type PageClient struct {
	client    *http.Client
	userAgent string
	log       *logrus.Entry
}

// NewPageClient creates a PageClient using the shared HTTP client.
func NewPageClient(client *http.Client, userAgent string, log *logrus.Entry) *PageClient {
	return &PageClient{
		client:    client,
		userAgent: userAgent,
		log:       log,
	}
}

// PerformFetch issues one GET for the URL and returns the rendered payload.
// Status mapping:
//   - 2xx            -> FetchResult with body
//   - 429            -> utils.ErrRateLimited (retryable)
//   - 5xx            -> utils.ErrServerHTTPError (retryable)
//   - other 4xx      -> utils.ErrClientHTTPError (fatal)
//   - anything else  -> utils.ErrOtherHTTPError (fatal)
func (pc *PageClient) PerformFetch(ctx context.Context, targetURL string) (*models.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", pc.userAgent)

	resp, err := pc.client.Do(req)
	if err != nil {
		// Network-level failure (DNS, TCP, TLS, timeout); classification happens upstream
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	statusCode := resp.StatusCode
	resLog := pc.log.WithFields(logrus.Fields{"url": targetURL, "status_code": statusCode})

	switch {
	case statusCode >= 200 && statusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, readErr)
		}
		resLog.Debug("Successfully fetched")
		return &models.FetchResult{StatusCode: statusCode, Payload: body}, nil

	case statusCode == http.StatusTooManyRequests:
		resLog.Warn("Received 429 Too Many Requests")
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrRateLimited, statusCode, resp.Status)

	case statusCode >= 500:
		resLog.Warn("Server error")
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)

	case statusCode >= 400 && statusCode < 500:
		resLog.Warn("Client error (4xx), not retryable")
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

	default:
		// Other non-2xx statuses (e.g., 3xx if redirects were disabled)
		resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
	}
}

// RobotsClient fetches raw robots.txt documents for the policy cache.
type RobotsClient struct {
	client    *http.Client
	userAgent string
}

// NewRobotsClient creates a RobotsClient using the shared HTTP client.
func NewRobotsClient(client *http.Client, userAgent string) *RobotsClient {
	return &RobotsClient{client: client, userAgent: userAgent}
}

// Fetch retrieves a robots.txt document, returning the HTTP status and raw
// body. The caller owns interpretation (404 => allow-all, etc.); only
// transport failures are surfaced as errors.
func (rc *RobotsClient) Fetch(ctx context.Context, robotsURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, err)
	}
	return resp.StatusCode, body, nil
}
