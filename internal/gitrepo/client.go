// Package gitrepo talks to the GitLab project that hosts each script.
package gitrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrNotFound reports a missing project, tag or file.
var ErrNotFound = errors.New("gitrepo: not found")

// Repository is what the release flow needs from source control.
type Repository interface {
	DeleteTag(ctx context.Context, project, tag string) error
	CreateTag(ctx context.Context, project, tag, message string) error
	Readme(ctx context.Context, project string) (string, error)
}

// Client is a minimal GitLab REST v4 client.
type Client struct {
	BaseURL    string
	Group      string
	Token      string
	Ref        string
	HTTPClient *http.Client
	MaxTries   uint
}

type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gitlab %s %s: %d %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

func (c Client) projectPath(project string) string {
	full := project
	if c.Group != "" {
		full = c.Group + "/" + project
	}
	return "/api/v4/projects/" + url.PathEscape(full)
}

func (c Client) ref() string {
	if c.Ref == "" {
		return "master"
	}
	return c.Ref
}

// DeleteTag removes tag. A tag that does not exist is not an error.
func (c Client) DeleteTag(ctx context.Context, project, tag string) error {
	_, err := c.do(ctx, http.MethodDelete, c.projectPath(project)+"/repository/tags/"+url.PathEscape(tag), nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c Client) CreateTag(ctx context.Context, project, tag, message string) error {
	body, err := json.Marshal(map[string]string{"tag_name": tag, "ref": c.ref(), "message": message})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, c.projectPath(project)+"/repository/tags", body)
	return err
}

// Readme returns the raw README.md of project at the configured ref.
func (c Client) Readme(ctx context.Context, project string) (string, error) {
	return c.FileContent(ctx, project, "README.md")
}

func (c Client) FileContent(ctx context.Context, project, path string) (string, error) {
	p := c.projectPath(project) + "/repository/files/" + url.PathEscape(path) + "/raw?ref=" + url.QueryEscape(c.ref())
	data, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	tries := c.MaxTries
	if tries == 0 {
		tries = 3
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	op := func() ([]byte, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.Token != "" {
			req.Header.Set("PRIVATE-TOKEN", c.Token)
		}
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(fmt.Errorf("%s %s: %w", method, path, ErrNotFound))
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
		case resp.StatusCode >= 400:
			return nil, backoff.Permanent(&StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)})
		}
		return data, nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}

// Disabled stands in when no repository is configured.
type Disabled struct{}

func (Disabled) DeleteTag(context.Context, string, string) error { return nil }

func (Disabled) CreateTag(context.Context, string, string, string) error { return nil }

func (Disabled) Readme(context.Context, string) (string, error) { return "", nil }
