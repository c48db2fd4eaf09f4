//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNewClient_Options verifies that options are applied and zero values ignored.
func TestNewClient_Options(t *testing.T) {
	t.Parallel()

	c := NewClient()
	require.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	require.Equal(t, DefaultDownloadTimeout, c.downloadTimeout)
	require.Equal(t, DefaultUserAgent, c.userAgent)

	c = NewClient(WithTimeout(time.Second), WithUserAgent("tester"), WithTimeout(0), WithDownloadTimeout(0))
	require.Equal(t, time.Second, c.httpClient.Timeout)
	require.Equal(t, DefaultDownloadTimeout, c.downloadTimeout)
	require.Equal(t, "tester", c.userAgent)

	custom := &http.Client{}
	c = NewClient(WithHTTPClient(custom), WithHTTPClient(nil))
	require.Same(t, custom, c.httpClient)
}

// TestGetJSON decodes a served document and sends the user agent.
func TestGetJSON(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))

		_, _ = w.Write([]byte(`{"name":"value"}`))
	}))
	defer ts.Close()

	var doc struct {
		Name string `json:"name"`
	}

	require.NoError(t, NewClient().GetJSON(context.Background(), ts.URL, &doc))
	require.Equal(t, "value", doc.Name)
}

// TestGet_BadStatus maps non-200 answers to ErrBadHTTPStatus.
func TestGet_BadStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := NewClient().Get(context.Background(), ts.URL)
	require.ErrorIs(t, err, ErrBadHTTPStatus)

	_, err = NewClient().Get(context.Background(), "")
	require.ErrorIs(t, err, errURLRequired)
}

// TestGetJSON_Malformed reports decoding failures.
func TestGetJSON_Malformed(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":`))
	}))
	defer ts.Close()

	var doc map[string]any

	require.Error(t, NewClient().GetJSON(context.Background(), ts.URL, &doc))
}

// TestDownload writes the body to disk and cleans up after failures.
func TestDownload(t *testing.T) {
	t.Parallel()

	body := []byte("archive-bytes")
	mux := http.NewServeMux()
	mux.HandleFunc("/pkg.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	dir := t.TempDir()
	destination := filepath.Join(dir, "update.zip")

	written, err := NewClient().Download(context.Background(), ts.URL+"/pkg.zip", destination)
	require.NoError(t, err)
	require.EqualValues(t, len(body), written)

	contents, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, body, contents)

	// Missing resource leaves no file behind.
	missing := filepath.Join(dir, "missing.zip")

	_, err = NewClient().Download(context.Background(), ts.URL+"/missing.zip", missing)
	require.ErrorIs(t, err, ErrBadHTTPStatus)

	_, err = os.Stat(missing)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestGet_Timeout makes sure a hanging server does not block forever.
func TestGet_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))

	defer ts.Close()
	defer close(release)

	_, err := NewClient(WithTimeout(50*time.Millisecond)).Get(context.Background(), ts.URL)
	require.Error(t, err)
}

// TestDownload_OutlivesRequestTimeout lets a slow transfer finish past the request timeout.
func TestDownload_OutlivesRequestTimeout(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher, _ := w.(http.Flusher)

		for range 4 {
			_, _ = w.Write([]byte("chunk"))
			if flusher != nil {
				flusher.Flush()
			}

			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer ts.Close()

	client := NewClient(WithTimeout(50*time.Millisecond), WithDownloadTimeout(10*time.Second))
	destination := filepath.Join(t.TempDir(), "update.zip")

	written, err := client.Download(context.Background(), ts.URL, destination)
	require.NoError(t, err)
	require.EqualValues(t, len("chunk")*4, written)

	// The download bound still applies.
	cutShort := filepath.Join(t.TempDir(), "update.zip")

	_, err = NewClient(WithDownloadTimeout(50*time.Millisecond)).Download(context.Background(), ts.URL, cutShort)
	require.Error(t, err)
	require.NoFileExists(t, cutShort)
}
