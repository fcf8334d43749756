package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/avrelia/anv/internal/domain"
)

const (
	UserAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0 Safari/537.36"
	AcceptImages = "image/avif,image/webp,image/*,*/*;q=0.8"
)

// Fetcher downloads a single remote item to a local file. The primary
// path is a managed HTTP client that handles redirects by hand so custom
// Referer/Origin headers survive the hop; the fallback path shells out to
// an external downloader with the same header set.
type Fetcher struct {
	client *http.Client

	// FallbackTool is the external downloader binary (curl-compatible
	// flags). Tests point this at a stub.
	FallbackTool string
}

func New(fallbackTool string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 60 * time.Second,
			// Redirects are re-issued manually in fetchHTTP; the default
			// policy drops custom headers when the Location host changes,
			// which breaks hosts that check Referer on the asset domain.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		FallbackTool: fallbackTool,
	}
}

// Fetch writes item to dest, trying the HTTP client first and the
// external tool second. On success exactly one complete file exists at
// dest; on failure nothing is left behind.
func (f *Fetcher) Fetch(ctx context.Context, item domain.RemoteItem, dest string) error {
	primaryErr := f.fetchHTTP(ctx, item, dest)
	if primaryErr == nil {
		return nil
	}

	if fbErr := f.FetchFallback(ctx, item, dest); fbErr != nil {
		return fmt.Errorf("download failed for %s: %w", item.URL, errors.Join(primaryErr, fbErr))
	}
	return nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, item domain.RemoteItem, dest string) error {
	resp, err := f.send(ctx, item.URL, item.Headers)
	if err != nil {
		return err
	}

	// One manual redirect hop, replaying the full header set.
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return fmt.Errorf("redirect from %s with no Location header", item.URL)
		}
		resp, err = f.send(ctx, location, item.Headers)
		if err != nil {
			return fmt.Errorf("request failed after redirect to %s: %w", location, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.StatusError{Code: resp.StatusCode}
	}

	return writeAtomic(dest, resp.Body)
}

func (f *Fetcher) send(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", AcceptImages)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed for %s: %w", url, err)
	}
	return resp, nil
}

// FetchFallback runs the external downloader directly. The background
// cache worker and the proxy's lazy fill use this path on its own, since
// they outlive the caller that owns the HTTP client.
func (f *Fetcher) FetchFallback(ctx context.Context, item domain.RemoteItem, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".anv-dl-*")
	if err != nil {
		return fmt.Errorf("failed to create temp download file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	args := []string{
		"--fail",
		"--location",
		"--silent",
		"--show-error",
		"--location-trusted",
		"--user-agent", UserAgent,
		"--header", "Accept: " + AcceptImages,
	}
	for k, v := range item.Headers {
		args = append(args, "--header", k+": "+v)
	}
	args = append(args, "--output", tmpPath, item.URL)

	cmd := exec.CommandContext(ctx, f.FallbackTool, args...)
	if err := cmd.Run(); err != nil {
		os.Remove(tmpPath)

		// Exit 22 is the tool's --fail signal for a 4xx response; the
		// hosts we deal with only produce it when the CDN blocks the
		// client, so classify it like a 403.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 22 {
			return fmt.Errorf("%s rejected by server: %w", f.FallbackTool, domain.ErrForbidden)
		}
		return fmt.Errorf("%s failed for %s: %w", f.FallbackTool, item.URL, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize download %s: %w", dest, err)
	}
	return nil
}

// writeAtomic streams body to a temp file and renames it into place, so
// a file that exists at dest is always a complete download.
func writeAtomic(dest string, body io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".anv-dl-*")
	if err != nil {
		return fmt.Errorf("failed to create temp download file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write download %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize download %s: %w", dest, err)
	}
	return nil
}
