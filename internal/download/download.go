// Package download fetches remote videos into a job workspace.
package download

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/MimeLyc/video-sub-translator/pkg/file"
)

// Downloader fetches rawURL into destDir and returns the local file path.
// Implementations must stop when ctx is cancelled.
type Downloader interface {
	Download(ctx context.Context, rawURL, destDir string) (string, error)
}

// ParseURL accepts absolute http(s) URLs only.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}
	return u, nil
}

// IsDirectMedia reports whether the URL path ends in a known video extension.
func IsDirectMedia(u *url.URL) bool {
	ext := strings.ToLower(path.Ext(u.Path))
	return slices.Contains(file.VideoExts, ext)
}

// Auto sends direct media links to Direct and everything else (video
// pages) to Site.
type Auto struct {
	Direct Downloader
	Site   Downloader
}

func (a *Auto) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return "", err
	}
	if IsDirectMedia(u) || a.Site == nil {
		return a.Direct.Download(ctx, rawURL, destDir)
	}
	return a.Site.Download(ctx, rawURL, destDir)
}
