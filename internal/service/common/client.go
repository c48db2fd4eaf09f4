//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client wraps an HTTP client with the helpers the updater needs.
type Client struct {
	// httpClient performs the requests.
	httpClient *http.Client
	// userAgent is sent with every request.
	userAgent string
	// downloadTimeout replaces the request timeout for Download.
	downloadTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

const (
	// DefaultTimeout bounds a whole request, body included.
	DefaultTimeout = 30 * time.Second

	// DefaultDownloadTimeout bounds a package download, body included.
	DefaultDownloadTimeout = 30 * time.Minute

	// DefaultUserAgent identifies the updater to the update server.
	DefaultUserAgent = "app-updater"

	// downloadFilePermissions is the mode of downloaded files.
	downloadFilePermissions = 0o644
)

var (
	// ErrBadHTTPStatus is returned when the server answers with anything but 200.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// errURLRequired is returned when an empty address is requested.
	errURLRequired = errors.New("url must be provided")
)

// WithTimeout sets the timeout of every request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithDownloadTimeout sets the timeout of a Download, which usually transfers far more than other requests.
func WithDownloadTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.downloadTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// NewClient creates a client with a bounded timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: DefaultTimeout},
		userAgent:       DefaultUserAgent,
		downloadTimeout: DefaultDownloadTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get performs a GET request and fails on any status other than 200.
// The caller owns the response body when the error is nil.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.get(ctx, c.httpClient, rawURL)
}

func (c *Client) get(ctx context.Context, httpClient *http.Client, rawURL string) (*http.Response, error) {
	if rawURL == "" {
		return nil, errURLRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.userAgent)

	response, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", rawURL, response.Status, ErrBadHTTPStatus)
	}

	return response, nil
}

// GetJSON fetches rawURL and decodes the JSON body into target.
func (c *Client) GetJSON(ctx context.Context, rawURL string, target any) error {
	response, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}

	return nil
}

// Download stores the body of rawURL at destination and flushes it to disk.
// A partially written file is removed on failure.
// The transfer is bounded by the download timeout instead of the request timeout.
func (c *Client) Download(ctx context.Context, rawURL, destination string) (int64, error) {
	downloadClient := *c.httpClient
	downloadClient.Timeout = c.downloadTimeout

	response, err := c.get(ctx, &downloadClient, rawURL)
	if err != nil {
		return 0, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	destination = filepath.Clean(destination)

	file, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, downloadFilePermissions)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(file, response.Body)
	if err == nil {
		err = file.Sync()
	}

	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(destination)

		return 0, fmt.Errorf("download %s: %w", rawURL, err)
	}

	return written, nil
}
