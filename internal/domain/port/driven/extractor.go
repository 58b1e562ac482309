package driven

import (
	"context"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
)

// MetadataExtractor reads identity fields from a downloaded artifact without
// modifying it. Failures wrap ErrCorruptArtifact.
type MetadataExtractor interface {
	Extract(ctx context.Context, artifactPath string) (model.ArtifactMetadata, error)
}
