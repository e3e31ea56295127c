// Package content fetches the remote documents shown next to the frames:
// package metadata from the PyPI JSON API and org-mode READMEs from GitHub.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pithecene-io/framehub/adapter"
	"github.com/pithecene-io/framehub/iox"
	"github.com/pithecene-io/framehub/log"
)

// Defaults.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultRetries     = 2
	DefaultPyPIBaseURL = "https://pypi.org"
)

// maxBodySize caps any single response read into memory.
const maxBodySize = 8 << 20

// Config configures a Client.
type Config struct {
	// PyPIBaseURL overrides the PyPI host, mainly for tests and mirrors.
	PyPIBaseURL string
	// Timeout is the per-request timeout (default 15s).
	Timeout time.Duration
	// Retries is the number of retries on transient failures (default 2).
	// A negative value disables retries.
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
	Logger  *log.Logger
}

// Client fetches remote content over HTTP.
type Client struct {
	config Config
	http   *http.Client
	logger *log.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.PyPIBaseURL == "" {
		cfg.PyPIBaseURL = DefaultPyPIBaseURL
	}
	cfg.PyPIBaseURL = strings.TrimRight(cfg.PyPIBaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log.OrNop(cfg.Logger),
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

// ErrEmptyPackage is returned when FetchPyPI is called without a name.
var ErrEmptyPackage = errors.New("package name is required")

// FetchPyPI fetches the JSON API document for pkg.
func (c *Client) FetchPyPI(ctx context.Context, pkg string) (*PyPIResponse, error) {
	if strings.TrimSpace(pkg) == "" {
		return nil, ErrEmptyPackage
	}
	u := fmt.Sprintf("%s/pypi/%s/json", c.config.PyPIBaseURL, url.PathEscape(pkg))

	body, err := c.get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}

	var resp PyPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode PyPI response for %s: %w", pkg, err)
	}
	return &resp, nil
}

// FetchPackage fetches and formats package metadata.
func (c *Client) FetchPackage(ctx context.Context, pkg string) (*PackageInfo, error) {
	resp, err := c.FetchPyPI(ctx, pkg)
	if err != nil {
		return nil, err
	}
	return FormatPyPI(resp), nil
}

// FetchGitHub fetches the raw text behind a github.com blob URL.
// Other URLs are fetched as given.
func (c *Client) FetchGitHub(ctx context.Context, githubURL string) (string, error) {
	body, err := c.get(ctx, RawURL(githubURL), "text/plain")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchOrg fetches an org-mode document and returns its formatted sections.
func (c *Client) FetchOrg(ctx context.Context, githubURL string) ([]Section, error) {
	text, err := c.FetchGitHub(ctx, githubURL)
	if err != nil {
		return nil, err
	}
	return FormatOrg(ParseOrg(text)), nil
}

// RawURL rewrites https://github.com/owner/repo/blob/branch/path into
// https://raw.githubusercontent.com/owner/repo/branch/path.
func RawURL(githubURL string) string {
	u, err := url.Parse(githubURL)
	if err != nil || u.Host != "github.com" {
		return githubURL
	}
	u.Host = "raw.githubusercontent.com"
	u.Path = strings.Replace(u.Path, "/blob/", "/", 1)
	return u.String()
}

func (c *Client) get(ctx context.Context, u, accept string) ([]byte, error) {
	var body []byte
	err := adapter.Retry(ctx, c.config.Retries, c.config.Backoff, func(ctx context.Context) error {
		b, err := c.doGet(ctx, u, accept)
		if err != nil {
			c.logger.Debug("content fetch attempt failed", map[string]any{
				"url":   u,
				"error": err.Error(),
			})
			return err
		}
		body = b
		return nil
	}, isClientError)
	if err != nil {
		c.logger.Warn("content fetch failed", map[string]any{
			"url":   u,
			"error": err.Error(),
		})
		return nil, err
	}
	return body, nil
}

func (c *Client) doGet(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: u, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := iox.ReadAllLimit(resp.Body, maxBodySize)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func isClientError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500
}
