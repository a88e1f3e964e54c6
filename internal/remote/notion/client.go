// Package notion implements remote.Client on a Notion database through the
// public REST API.
//
// Each template is one page of the database. Page properties map to record
// fields as follows:
//
//	Name            title         name
//	Version         rich_text     version
//	Description     rich_text     description
//	Template        rich_text     template
//	Tags            multi_select  tags
//	Origin Name     rich_text     origin_framework.name
//	Origin Source   rich_text     origin_framework.source
//	Origin Concept  rich_text     origin_framework.concept
//	Kategorie       select        category part of name
//
// Only properties the database actually has are written; its schema is read
// once per client. Databases that keep the template in "System Prompt" and
// "User Template" properties instead of "Template" are read and written in
// that layout, with the template joined as <system>...</system><user>...</user>.
// Their pages may carry a display title; such a page is named
// fit/<kategorie>/<slug>@<version>.
//
// Archived and trashed pages are invisible to the client.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fitlab/promptsync/internal/remote"
	"github.com/fitlab/promptsync/internal/syncerr"
)

const (
	// DefaultBaseURL is the Notion API endpoint.
	DefaultBaseURL = "https://api.notion.com"

	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"

	// MaxPageSize is the largest page_size the query endpoint accepts.
	MaxPageSize = 100

	DefaultRequestsPerSecond = 3
	DefaultTimeout           = 30 * time.Second

	maxResponseBytes = 16 << 20
)

// Options configures a Client.
type Options struct {
	APIKey     string
	DatabaseID string

	// BaseURL overrides DefaultBaseURL, mainly for tests.
	BaseURL string
	// PageSize is the number of pages per query, 1..MaxPageSize. Zero means MaxPageSize.
	PageSize int
	// RequestsPerSecond paces outgoing requests. Zero means DefaultRequestsPerSecond.
	RequestsPerSecond float64
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	HTTPClient *http.Client
}

// Client talks to one Notion database.
type Client struct {
	baseURL    string
	apiKey     string
	databaseID string
	pageSize   int
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu     sync.Mutex
	layout layout // nil until fetched
}

var _ remote.Client = (*Client)(nil)

// New creates a client. If logger is nil, slog.Default is used.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("notion: API key is required")
	}
	if opts.DatabaseID == "" {
		return nil, errors.New("notion: database ID is required")
	}
	if opts.PageSize < 0 || opts.PageSize > MaxPageSize {
		return nil, fmt.Errorf("notion: page size must be between 1 and %d, got %d", MaxPageSize, opts.PageSize)
	}
	if opts.PageSize == 0 {
		opts.PageSize = MaxPageSize
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		databaseID: opts.DatabaseID,
		pageSize:   opts.PageSize,
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		logger:     logger.With("backend", "notion"),
	}, nil
}

// ListAll queries the database page by page, oldest pages first.
func (c *Client) ListAll(ctx context.Context) iter.Seq2[remote.Record, error] {
	return func(yield func(remote.Record, error) bool) {
		cursor := ""
		for batch := 1; ; batch++ {
			resp, err := c.query(ctx, queryRequest{
				PageSize:    c.pageSize,
				StartCursor: cursor,
				Sorts:       oldestFirst,
			})
			if err != nil {
				yield(remote.Record{}, err)
				return
			}
			c.logger.Debug("queried database", "batch", batch, "pages", len(resp.Results), "has_more", resp.HasMore)

			for _, p := range resp.Results {
				if p.hidden() {
					continue
				}
				if !yield(p.record(), nil) {
					return
				}
			}

			if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
				return
			}
			cursor = *resp.NextCursor
		}
	}
}

// FindByName returns the oldest live page whose title equals name.
func (c *Client) FindByName(ctx context.Context, name string) (remote.Record, bool, error) {
	p, found, err := c.findPage(ctx, name)
	if err != nil || !found {
		return remote.Record{}, found, err
	}
	return p.record(), true, nil
}

func (c *Client) findPage(ctx context.Context, name string) (page, bool, error) {
	resp, err := c.query(ctx, queryRequest{
		PageSize: c.pageSize,
		Filter: &queryFilter{
			Property: propName,
			Title:    &textFilter{Equals: name},
		},
		Sorts: oldestFirst,
	})
	if err != nil {
		return page{}, false, err
	}
	for _, p := range resp.Results {
		if !p.hidden() {
			return p, true, nil
		}
	}
	return page{}, false, nil
}

// Upsert updates the page titled name in place or creates it.
func (c *Client) Upsert(ctx context.Context, name string, fields remote.Fields) (remote.Record, error) {
	props, err := propertiesOf(name, fields)
	if err != nil {
		return remote.Record{}, err
	}
	db, err := c.databaseLayout(ctx)
	if err != nil {
		return remote.Record{}, err
	}
	if props, err = db.fit(name, props); err != nil {
		return remote.Record{}, err
	}

	existing, found, err := c.findPage(ctx, name)
	if err != nil {
		return remote.Record{}, err
	}

	var p page
	if found {
		err = c.do(ctx, "update page", http.MethodPatch, "/v1/pages/"+existing.ID,
			map[string]any{"properties": props}, &p)
	} else {
		err = c.do(ctx, "create page", http.MethodPost, "/v1/pages",
			map[string]any{
				"parent":     map[string]string{"database_id": c.databaseID},
				"properties": props,
			}, &p)
	}
	if err != nil {
		return remote.Record{}, err
	}

	c.logger.Debug("upserted page", "id", p.ID, "name", name, "created", !found)
	return p.record(), nil
}

// databaseLayout returns the property types of the database, fetched once
// per client.
func (c *Client) databaseLayout(ctx context.Context) (layout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layout != nil {
		return c.layout, nil
	}

	var db database
	if err := c.do(ctx, "retrieve database", http.MethodGet, "/v1/databases/"+c.databaseID, nil, &db); err != nil {
		return nil, err
	}
	l := make(layout, len(db.Properties))
	for name, prop := range db.Properties {
		l[name] = prop.Type
	}
	c.layout = l
	c.logger.Debug("read database schema", "properties", len(l), "role_split", l.roleSplit())
	return l, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) query(ctx context.Context, req queryRequest) (*queryResponse, error) {
	var resp queryResponse
	if err := c.do(ctx, "query database", http.MethodPost, "/v1/databases/"+c.databaseID+"/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends one paced request and decodes the JSON response into out.
//
// Network failures, rate limiting, conflicts and server errors come back as
// *syncerr.TransportError; any other non-2xx status is a *syncerr.RejectedError.
func (c *Client) do(ctx context.Context, op, method, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &syncerr.TransportError{Op: op, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &syncerr.TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &syncerr.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("notion request", "op", op, "method", method, "status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode >= 300 {
		return statusError(op, resp, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &syncerr.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func statusError(op string, resp *http.Response, body []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode >= 500:
		msg := apiErr.Message
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			msg += " (retry after " + retryAfter + "s)"
		}
		if apiErr.Code != "" {
			msg = apiErr.Code + ": " + msg
		}
		return &syncerr.TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	default:
		return &syncerr.RejectedError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
		}
	}
}
