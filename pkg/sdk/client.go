// Package sdk is a Go client for the invites HTTP API.
package sdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	headerAPIKey   = "X-Api-Key"
	defaultTimeout = 30 * time.Second
)

// Invite mirrors the server's invite record. CreatedAt and RedeemedAt are
// epoch milliseconds.
type Invite struct {
	Code       string  `json:"code"`
	CreatedAt  int64   `json:"createdAt"`
	RedeemedBy *string `json:"redeemedBy"`
	RedeemedAt *int64  `json:"redeemedAt"`
}

// ListParams selects a page. Nil fields use the server defaults
// (limit 20, newest first).
type ListParams struct {
	Limit   *int
	Reverse *bool
	Cursor  string
}

type ListResult struct {
	Items  []Invite `json:"items"`
	Cursor string   `json:"cursor"`
}

// CreateParams describes a new invite. Code wins over Size and Alphabet.
type CreateParams struct {
	Code     *string
	Size     *int
	Alphabet string
}

type IndexStats struct {
	Primary  int `json:"primary"`
	Index    int `json:"index"`
	Missing  int `json:"missing"`
	Orphaned int `json:"orphaned"`
}

type reindexResponse struct {
	Message string `json:"message"`
}

type Client struct {
	rest *resty.Client
}

type options struct {
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	userAgent  string
}

type Option func(*options)

// WithAPIKey sends key in the X-Api-Key header on every request.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := options{timeout: defaultTimeout, userAgent: "invites-sdk-go"}
	for _, opt := range opts {
		opt(&o)
	}

	var rest *resty.Client
	if o.httpClient != nil {
		rest = resty.NewWithClient(o.httpClient)
	} else {
		rest = resty.New()
	}
	rest.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", o.userAgent)
	if o.apiKey != "" {
		rest.SetHeader(headerAPIKey, o.apiKey)
	}
	return &Client{rest: rest}
}

func (c *Client) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := url.Values{}
	if params.Limit != nil {
		query.Set("limit", strconv.Itoa(*params.Limit))
	}
	if params.Reverse != nil {
		query.Set("reverse", strconv.FormatBool(*params.Reverse))
	}
	if params.Cursor != "" {
		query.Set("cursor", params.Cursor)
	}

	var out ListResult
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetResult(&out).
		Get("/v1/invites")
	if err != nil {
		return nil, fmt.Errorf("sdk.List: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError("list invites", resp.StatusCode(), resp.Status(), resp.Body())
	}
	if out.Items == nil {
		out.Items = []Invite{}
	}
	return &out, nil
}

func (c *Client) Create(ctx context.Context, params CreateParams) (*Invite, error) {
	body := map[string]any{}
	if params.Code != nil {
		body["code"] = *params.Code
	}

	req := c.rest.R().SetContext(ctx).SetBody(body)
	if params.Size != nil {
		req.SetQueryParam("size", strconv.Itoa(*params.Size))
	}
	if params.Alphabet != "" {
		req.SetQueryParam("alphabet", params.Alphabet)
	}

	var out Invite
	resp, err := req.SetResult(&out).Post("/v1/invites")
	if err != nil {
		return nil, fmt.Errorf("sdk.Create: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError("create invite", resp.StatusCode(), resp.Status(), resp.Body())
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, code string) (*Invite, error) {
	var out Invite
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("code", code).
		SetResult(&out).
		Get("/v1/invites/{code}")
	if err != nil {
		return nil, fmt.Errorf("sdk.Get: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError("get invite", resp.StatusCode(), resp.Status(), resp.Body())
	}
	return &out, nil
}

// Delete removes one invite. Deleting an unknown code succeeds.
func (c *Client) Delete(ctx context.Context, code string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("code", code).
		SetDoNotParseResponse(true).
		Delete("/v1/invites/{code}")
	if err != nil {
		return fmt.Errorf("sdk.Delete: %w", err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	if resp.IsError() {
		body, _ := io.ReadAll(raw)
		return newAPIError("delete invite", resp.StatusCode(), resp.Status(), body)
	}
	if resp.StatusCode() != http.StatusNoContent {
		_, _ = io.Copy(io.Discard, raw)
	}
	return nil
}

func (c *Client) DeleteMany(ctx context.Context, codes []string) error {
	if codes == nil {
		codes = []string{}
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{"codes": codes}).
		Delete("/v1/invites")
	if err != nil {
		return fmt.Errorf("sdk.DeleteMany: %w", err)
	}
	if resp.IsError() {
		return newAPIError("delete invites", resp.StatusCode(), resp.Status(), resp.Body())
	}
	return nil
}

func (c *Client) DeleteAll(ctx context.Context) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("all", "true").
		Delete("/v1/invites")
	if err != nil {
		return fmt.Errorf("sdk.DeleteAll: %w", err)
	}
	if resp.IsError() {
		return newAPIError("delete all invites", resp.StatusCode(), resp.Status(), resp.Body())
	}
	return nil
}

// Reindex rebuilds the creation-time index and returns the server's summary.
func (c *Client) Reindex(ctx context.Context) (string, error) {
	var out reindexResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		Post("/v1/reindex")
	if err != nil {
		return "", fmt.Errorf("sdk.Reindex: %w", err)
	}
	if resp.IsError() {
		return "", newAPIError("reindex invites", resp.StatusCode(), resp.Status(), resp.Body())
	}
	return out.Message, nil
}

func (c *Client) IndexStats(ctx context.Context) (*IndexStats, error) {
	var out IndexStats
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/reindex")
	if err != nil {
		return nil, fmt.Errorf("sdk.IndexStats: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError("read index stats", resp.StatusCode(), resp.Status(), resp.Body())
	}
	return &out, nil
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
