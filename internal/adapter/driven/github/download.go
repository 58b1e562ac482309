package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// downloadChunkSize is the copy buffer used while streaming an asset to disk.
const downloadChunkSize = 8192

// DownloadAsset streams a release asset to destPath. The asset is identified
// by its API URL (…/repos/{owner}/{repo}/releases/assets/{id}). Data is
// written to destPath+".part" and renamed into place only when complete and
// non-empty, so a failed attempt never leaves a truncated artifact behind.
func (c *Client) DownloadAsset(ctx context.Context, assetURL, destPath string) error {
	owner, repo, id, err := parseAssetURL(assetURL)
	if err != nil {
		return err
	}

	return c.withRetry(ctx, "download "+filepath.Base(destPath), func() error {
		return c.downloadOnce(ctx, owner, repo, id, destPath)
	})
}

func (c *Client) downloadOnce(ctx context.Context, owner, repo string, id int64, destPath string) error {
	rc, redirectURL, err := c.gh.Repositories.DownloadReleaseAsset(ctx, owner, repo, id, c.download)
	if err != nil {
		return err
	}
	if rc == nil {
		return fmt.Errorf("asset %d redirected to %s without content", id, redirectURL)
	}
	defer rc.Close()

	partPath := destPath + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", partPath, err)
	}

	n, copyErr := io.CopyBuffer(f, rc, make([]byte, downloadChunkSize))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("write %s: %w", partPath, err)
	}

	if n == 0 {
		_ = os.Remove(partPath)
		return fmt.Errorf("asset %d is empty", id)
	}

	if err := os.Rename(partPath, destPath); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("finalize %s: %w", destPath, err)
	}

	slog.Debug("asset downloaded",
		"file", filepath.Base(destPath),
		"size", humanize.Bytes(uint64(n)),
	)

	return nil
}

// parseAssetURL extracts owner, repo and asset id from a release asset API URL.
// GitHub Enterprise URLs carry an /api/v3 prefix, so the path is scanned for
// the repos segment rather than matched from the root.
func parseAssetURL(assetURL string) (string, string, int64, error) {
	u, err := url.Parse(assetURL)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: asset url %q: %w", driven.ErrMalformedRelease, assetURL, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg != "repos" || len(segments) != i+6 {
			continue
		}
		if segments[i+3] != "releases" || segments[i+4] != "assets" {
			break
		}
		id, err := strconv.ParseInt(segments[i+5], 10, 64)
		if err != nil {
			break
		}
		return segments[i+1], segments[i+2], id, nil
	}

	return "", "", 0, fmt.Errorf("%w: %q is not a release asset url", driven.ErrMalformedRelease, assetURL)
}
