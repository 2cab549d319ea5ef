package aressdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"ares/internal/domain"
)

// Client is a minimal ARES mission API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/api/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Mission = domain.Mission

// MissionPage is one page of a store listing.
type MissionPage struct {
	Items []Mission `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
}

// HistoryItem is one dated history entry.
type HistoryItem struct {
	Datetime string `json:"datetime"`
	domain.HistoryEntry
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports whether err is a stale-write rejection.
func IsConflict(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusConflict
}

// IsNotFound reports whether err is a missing mission or resource.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// ListMissions returns one page of the create or update store.
func (c *Client) ListMissions(ctx context.Context, loc domain.Location, keyword string, page, size int) (MissionPage, error) {
	q := url.Values{}
	q.Set("type", string(loc))
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}
	var resp MissionPage
	err := c.do(ctx, http.MethodGet, "missions?"+q.Encode(), nil, &resp)
	return resp, err
}

// GetMission fetches a mission. An empty loc searches both stores.
func (c *Client) GetMission(ctx context.Context, loc domain.Location, name string) (Mission, error) {
	endpoint := "missions/" + url.PathEscape(name)
	if loc != "" {
		endpoint += "?type=" + url.QueryEscape(string(loc))
	}
	var resp Mission
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateMission submits a new mission.
func (c *Client) CreateMission(ctx context.Context, m Mission) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", m, &resp)
	return resp, err
}

// RecreateMission resubmits a create-store mission.
func (c *Client) RecreateMission(ctx context.Context, origin string, m Mission) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPut, "missions/"+url.PathEscape(origin), m, &resp)
	return resp, err
}

// UpdateMission moves a mission one step. payload must carry the status and
// revision it was read at.
func (c *Client) UpdateMission(ctx context.Context, loc domain.Location, order domain.Order, payload Mission) (Mission, error) {
	q := url.Values{}
	q.Set("type", string(loc))
	q.Set("order", string(order))
	var resp Mission
	endpoint := fmt.Sprintf("missions/%s/transitions?%s", url.PathEscape(payload.ScriptName), q.Encode())
	err := c.do(ctx, http.MethodPost, endpoint, payload, &resp)
	return resp, err
}

// Advance re-reads the mission and applies edit before each attempt, so a
// concurrent writer only costs a retry.
func (c *Client) Advance(ctx context.Context, loc domain.Location, name string, order domain.Order, edit func(*Mission), maxTries uint) (Mission, error) {
	if maxTries == 0 {
		maxTries = 3
	}
	return backoff.Retry(ctx, func() (Mission, error) {
		current, err := c.GetMission(ctx, loc, name)
		if err != nil {
			return Mission{}, backoff.Permanent(err)
		}
		payload := Mission{ScriptName: current.ScriptName, Status: current.Status, Revision: current.Revision, Author: current.Author}
		if edit != nil {
			edit(&payload)
		}
		m, err := c.UpdateMission(ctx, loc, order, payload)
		if err != nil && !IsConflict(err) {
			return Mission{}, backoff.Permanent(err)
		}
		return m, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxTries))
}

// Reschedule moves a mission's schedule dates.
func (c *Client) Reschedule(ctx context.Context, loc domain.Location, name, submitter, comment string, s domain.Schedules) (Mission, error) {
	body := map[string]any{
		"submitter": submitter,
		"comment":   comment,
		"schedules": s,
	}
	var resp Mission
	endpoint := fmt.Sprintf("missions/%s/schedules?type=%s", url.PathEscape(name), url.QueryEscape(string(loc)))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// RotateTesters replaces a mission's testers.
func (c *Client) RotateTesters(ctx context.Context, loc domain.Location, name, submitter, comment, testers string) (Mission, error) {
	body := map[string]any{
		"submitter": submitter,
		"comment":   comment,
		"te_name":   testers,
	}
	var resp Mission
	endpoint := fmt.Sprintf("missions/%s/testers?type=%s", url.PathEscape(name), url.QueryEscape(string(loc)))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// DeleteMission removes or rolls back a mission.
func (c *Client) DeleteMission(ctx context.Context, loc domain.Location, name string, force bool) (Mission, error) {
	q := url.Values{}
	q.Set("type", string(loc))
	if force {
		q.Set("force", "true")
	}
	var resp Mission
	err := c.do(ctx, http.MethodDelete, "missions/"+url.PathEscape(name)+"?"+q.Encode(), nil, &resp)
	return resp, err
}

// History returns a mission's history, newest first.
func (c *Client) History(ctx context.Context, name string) ([]HistoryItem, error) {
	var resp struct {
		Items []HistoryItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "missions/"+url.PathEscape(name)+"/history", nil, &resp)
	return resp.Items, err
}

// NameAvailable reports whether no mission uses name yet.
func (c *Client) NameAvailable(ctx context.Context, name string) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, http.MethodGet, "names/"+url.PathEscape(name), nil, &resp)
	return resp.Available, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
