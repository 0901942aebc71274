package download

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/MimeLyc/video-sub-translator/pkg/file"
	"github.com/MimeLyc/video-sub-translator/pkg/retry"
)

const DefaultTimeout = 30 * time.Minute

// HTTPDownloader streams a direct media URL to disk.
type HTTPDownloader struct {
	client *http.Client
	retry  retry.Policy
}

func NewHTTPDownloader(timeout time.Duration, policy retry.Policy) *HTTPDownloader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPDownloader{
		client: &http.Client{Timeout: timeout},
		retry:  policy,
	}
}

// WithClient swaps the HTTP client, for tests.
func (d *HTTPDownloader) WithClient(client *http.Client) *HTTPDownloader {
	d.client = client
	return d
}

func (d *HTTPDownloader) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return "", err
	}

	name := file.SanitizeName(path.Base(u.Path))
	var dest string
	err = d.retry.Do(ctx, "download", func(ctx context.Context) error {
		var err error
		dest, err = d.fetch(ctx, u.String(), destDir, name)
		return err
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (d *HTTPDownloader) fetch(ctx context.Context, rawURL, destDir, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", retry.NewStatusError(resp, body)
	}

	if filepath.Ext(name) == "" {
		name += extensionFor(resp.Header.Get("Content-Type"))
	}
	dest := filepath.Join(destDir, name)

	tmp, err := os.CreateTemp(destDir, ".download-*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if n == 0 {
		return "", fmt.Errorf("downloaded file %s is empty", name)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return dest, nil
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".mp4"
	}
	switch mediaType {
	case "video/x-matroska":
		return ".mkv"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "video/x-msvideo":
		return ".avi"
	default:
		return ".mp4"
	}
}
