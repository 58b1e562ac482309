package driven

import (
	"context"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
)

// ReleaseSource defines the driven port for the remote release API.
// Every method retries transient failures internally and returns an error
// wrapping ErrNetwork once the attempts are exhausted.
type ReleaseSource interface {
	FetchLatestRelease(ctx context.Context, repoFullName string) (model.RawRelease, error)
	// FetchReleaseByTag returns ErrReleaseNotFound when no release carries the tag.
	FetchReleaseByTag(ctx context.Context, repoFullName, tag string) (model.RawRelease, error)
	// DownloadAsset streams the asset behind assetURL to destPath. On success
	// destPath exists and is non-empty.
	DownloadAsset(ctx context.Context, assetURL, destPath string) error
}
