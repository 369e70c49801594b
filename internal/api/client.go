package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/playtime/internal/storage"
	"github.com/goodtune/playtime/internal/usage"
)

// Client reads usage from a running server's API. Its methods mirror
// usage.Stats so commands can use either.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, such as
// http://127.0.0.1:8080. A nil httpClient uses a client with a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: u, httpClient: httpClient}, nil
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.baseURL.String()
}

// Ping checks that the server is answering.
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("server at %s reported status %q", c.URL(), out.Status)
	}
	return nil
}

// Record returns the usage record for label or storage.ErrNotFound.
func (c *Client) Record(ctx context.Context, label string) (*storage.UsageRecord, error) {
	var out struct {
		Label          string           `json:"label"`
		OverallMinutes int64            `json:"overall_minutes"`
		PerUserMinutes map[string]int64 `json:"per_user_minutes"`
	}
	if err := c.get(ctx, "/api/records/"+url.PathEscape(label), nil, &out); err != nil {
		return nil, err
	}
	record := storage.NewUsageRecord(out.Label)
	record.OverallMinutes = out.OverallMinutes
	for key, minutes := range out.PerUserMinutes {
		record.PerUserMinutes[key] = minutes
	}
	return &record, nil
}

// UserMinutes returns the minutes subject has accumulated on label.
func (c *Client) UserMinutes(ctx context.Context, label string, subject uint64) (int64, bool, error) {
	record, err := c.Record(ctx, label)
	if err != nil {
		return 0, false, err
	}
	minutes, ok := record.UserMinutes(subject)
	return minutes, ok, nil
}

// Leaderboard ranks subjects on label. n <= 0 asks for as many as the server
// returns in one response.
func (c *Client) Leaderboard(ctx context.Context, label string, n int) ([]usage.LeaderboardEntry, error) {
	if n <= 0 {
		n = maxLeaderboardSize
	}
	var out struct {
		Entries []usage.LeaderboardEntry `json:"entries"`
	}
	query := url.Values{"limit": {strconv.Itoa(n)}}
	if err := c.get(ctx, "/api/records/"+url.PathEscape(label)+"/leaderboard", query, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// History returns log entries matching filter, most recent first. The server
// caps a single response, so a zero limit returns at most that many entries.
func (c *Client) History(ctx context.Context, filter storage.LogFilter) ([]storage.LogEntry, error) {
	query := url.Values{}
	if filter.SubjectID != 0 {
		query.Set("subject", strconv.FormatUint(filter.SubjectID, 10))
	}
	if filter.Label != "" {
		query.Set("label", filter.Label)
	}
	if filter.Since != nil {
		query.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = maxHistoryLimit
	}
	query.Set("limit", strconv.Itoa(limit))

	var out struct {
		Entries []storage.LogEntry `json:"entries"`
	}
	if err := c.get(ctx, "/api/log", query, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// SearchLabels returns recorded labels containing query.
func (c *Client) SearchLabels(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = maxLabelMatches
	}
	var out struct {
		Labels []string `json:"labels"`
	}
	values := url.Values{"limit": {strconv.Itoa(limit)}}
	if query != "" {
		values.Set("q", query)
	}
	if err := c.get(ctx, "/api/labels", values, &out); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

// get issues a GET and decodes a JSON body into out. A 404 maps to
// storage.ErrNotFound.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, apiErr.Message)
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
