package driven

import (
	"context"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
)

// PublishTarget defines the driven port for the app-distribution repository
// that releases are merged into.
type PublishTarget interface {
	// Merge creates or updates the package metadata and moves the artifact into
	// the repository directory. Failures wrap ErrMerge; an artifact that already
	// exists under the same name wraps ErrVersionCollision.
	Merge(ctx context.Context, req model.MergeRequest) error

	// HasIdenticalArtifact reports whether the repository already holds a file
	// with the artifact's name and identical content.
	HasIdenticalArtifact(ctx context.Context, artifactPath string) (bool, error)

	// ReadChangelog returns the stored changelog text for a package version.
	// Returns "", nil when no changelog exists.
	ReadChangelog(ctx context.Context, packageID string, versionCode int64) (string, error)
}

// IndexBuilder regenerates the distribution index from the merged metadata.
// Failures wrap ErrBuild.
type IndexBuilder interface {
	Rebuild(ctx context.Context) error
}

// SnapshotRotator replaces the served snapshot with the freshly built tree,
// archiving the previous one. Failures wrap ErrRotation.
type SnapshotRotator interface {
	Rotate(ctx context.Context) error
}
