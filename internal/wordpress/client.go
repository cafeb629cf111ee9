package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

// TransportError is a retryable network or server-side failure.
type TransportError struct {
	Op     string
	URL    string
	Status int // 0 when the request never got a response
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError means the site does not serve the requested content type.
// Fatal for that type only, not for the run.
type NotFoundError struct {
	ContentType ContentType
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("content type %q not available on this site", e.ContentType)
}

// ItemPage is one page of raw records from a collection endpoint.
// Items stay undecoded so one malformed record cannot poison the page.
type ItemPage struct {
	Items      []json.RawMessage
	TotalPages int
	HasMore    bool
}

// Client talks to a WordPress site's REST API (/wp-json/wp/v2).
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	maxRetries int
}

// NewClient creates a client for the given site, e.g. "https://example.com".
func NewClient(domain string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: trimSlash(domain) + "/wp-json",
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent:  "wp-archive/1.0",
		maxRetries: 3,
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// do performs one GET with bounded retries on transport failures.
// 5xx responses and connection errors retry with exponential backoff;
// anything else is returned to the caller immediately.
func (c *Client) do(ctx context.Context, op, rawURL string) (*http.Response, error) {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return nil, &TransportError{Op: op, URL: rawURL, Err: ctx.Err()}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &TransportError{Op: op, URL: rawURL, Err: err}
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &TransportError{Op: op, URL: rawURL, Status: resp.StatusCode}
			continue
		}

		return resp, nil
	}
	return nil, lastErr
}

// FetchPage retrieves one page of a collection. after limits results to items
// modified on or after the given time; pass nil for no filter.
func (c *Client) FetchPage(ctx context.Context, ct ContentType, page, perPage int, after *time.Time) (*ItemPage, error) {
	if !ct.Valid() {
		return nil, &NotFoundError{ContentType: ct}
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if after != nil {
		q.Set("modified_after", after.Format(time.RFC3339))
	}
	rawURL := fmt.Sprintf("%s/wp/v2/%s?%s", c.baseURL, ct, q.Encode())

	resp, err := c.do(ctx, "fetch page", rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{ContentType: ct}
	case resp.StatusCode == http.StatusBadRequest:
		// WordPress answers 400 rest_*_invalid_page_number when paging past
		// the end of a collection.
		return &ItemPage{HasMore: false}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, &TransportError{Op: "fetch page", URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read page", URL: rawURL, Err: err}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("unmarshal %s page %d: %w", ct, page, err)
	}

	result := &ItemPage{Items: items}
	if tp := resp.Header.Get("X-WP-TotalPages"); tp != "" {
		if n, err := strconv.Atoi(tp); err == nil {
			result.TotalPages = n
			result.HasMore = page < n
		}
	} else {
		// No pagination header; assume more pages while full pages keep coming.
		result.HasMore = len(items) == perPage
	}
	return result, nil
}

// FetchItem retrieves a single record by id, used for on-demand resolution of
// categories and tags referenced by a post but not yet archived.
func (c *Client) FetchItem(ctx context.Context, ct ContentType, id int64) (json.RawMessage, error) {
	if !ct.Valid() {
		return nil, &NotFoundError{ContentType: ct}
	}
	rawURL := fmt.Sprintf("%s/wp/v2/%s/%d", c.baseURL, ct, id)

	resp, err := c.do(ctx, "fetch item", rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{ContentType: ct}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "fetch item", URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read item", URL: rawURL, Err: err}
	}
	return json.RawMessage(body), nil
}

// Verify probes the REST root and checks the wp/v2 namespace is served.
func (c *Client) Verify(ctx context.Context) error {
	rawURL := c.baseURL + "/"

	resp, err := c.do(ctx, "verify", rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: "verify", URL: rawURL, Status: resp.StatusCode}
	}

	var root struct {
		Namespaces []string `json:"namespaces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		return fmt.Errorf("not a WordPress site: %w", err)
	}
	for _, ns := range root.Namespaces {
		if ns == "wp/v2" {
			return nil
		}
	}
	return errors.New("not a WordPress site: wp/v2 namespace missing")
}
