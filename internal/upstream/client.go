// Package upstream is the HTTP client for the external support-ticket API:
// paginated listing, single-ticket lookup, and the deleted-ids feed.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultBodyLimit = int64(4 << 20) // 4 MiB
)

// TicketPayload is one ticket as returned by the upstream API.
type TicketPayload struct {
	ExternalID string    `json:"external_id"`
	Source     string    `json:"source"`
	CustomerID string    `json:"customer_id"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Page is one page of the paginated ticket listing.
type Page struct {
	Tickets    []TicketPayload `json:"tickets"`
	NextPage   *int            `json:"next_page"`
	TotalCount int             `json:"total_count"`
}

// RetryableError wraps a transient upstream failure (5xx, transport error)
// that the orchestrator's backoff policy should retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// RateLimitedError is returned when upstream responds 429; RetryAfter is
// the duration the caller must wait before retrying the same page.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("upstream rate limited, retry after %s", e.RetryAfter)
}

// Client is the upstream support-ticket API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client. When httpClient is nil a default with a 10s
// per-request timeout is used.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ListTickets fetches one page of tickets for a tenant.
func (c *Client) ListTickets(ctx context.Context, tenantID string, page, pageSize int, includeDeleted bool) (Page, error) {
	u, err := url.Parse(c.baseURL + "/external/support-tickets")
	if err != nil {
		return Page{}, fmt.Errorf("upstream: parse list url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("include_deleted", strconv.FormatBool(includeDeleted))
	u.RawQuery = q.Encode()

	var result Page
	if err := c.doJSON(ctx, tenantID, u.String(), &result); err != nil {
		return Page{}, err
	}
	return result, nil
}

// GetTicket fetches a single ticket by external id. ok is false on 404.
func (c *Client) GetTicket(ctx context.Context, tenantID, externalID string) (TicketPayload, bool, error) {
	u := fmt.Sprintf("%s/external/support-tickets/%s", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return TicketPayload{}, false, fmt.Errorf("upstream: build get-ticket request: %w", err)
	}
	setTenantHeader(req, tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return TicketPayload{}, false, &RetryableError{Err: fmt.Errorf("upstream: get ticket %s: %w", externalID, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return TicketPayload{}, false, nil
	}
	if err := statusError(resp); err != nil {
		return TicketPayload{}, false, err
	}

	var payload TicketPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, defaultBodyLimit)).Decode(&payload); err != nil {
		return TicketPayload{}, false, fmt.Errorf("upstream: decode ticket %s: %w", externalID, err)
	}
	return payload, true, nil
}

// DeletedIDsResponse is the body of the deleted-tickets feed.
type DeletedIDsResponse struct {
	DeletedIDs []string `json:"deleted_ids"`
}

// DeletedTicketIDs returns the deleted-id set for a tenant from the
// deleted-tickets feed. Deletion detection does not call it; the
// orchestrator builds its id set from the paged ticket listing.
func (c *Client) DeletedTicketIDs(ctx context.Context, tenantID string) ([]string, error) {
	var result DeletedIDsResponse
	if err := c.doJSON(ctx, tenantID, c.baseURL+"/external/deleted-tickets", &result); err != nil {
		return nil, err
	}
	return result.DeletedIDs, nil
}

func (c *Client) doJSON(ctx context.Context, tenantID, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	setTenantHeader(req, tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &RetryableError{Err: fmt.Errorf("upstream: request %s: %w", rawURL, err)}
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, defaultBodyLimit)).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode response from %s: %w", rawURL, err)
	}
	return nil
}

func setTenantHeader(req *http.Request, tenantID string) {
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("Accept", "application/json")
}

func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode >= 500 {
		return &RetryableError{Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 1 * time.Second
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 1 * time.Second
}
