// Package apk reads identity fields from Android application packages.
package apk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shogo82148/androidbinary/apk"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetadataExtractor = (*Extractor)(nil)

// Extractor decodes the binary AndroidManifest.xml of an APK. The archive is
// opened read-only and closed before Extract returns, so the caller may move
// or delete the file afterwards.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the package id, version name, version code and application
// label of the APK at artifactPath. A missing label falls back to the package id.
func (e *Extractor) Extract(ctx context.Context, artifactPath string) (model.ArtifactMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.ArtifactMetadata{}, err
	}

	pkg, err := openAPK(artifactPath)
	if err != nil {
		return model.ArtifactMetadata{}, fmt.Errorf("%w: open %s: %w", driven.ErrCorruptArtifact, artifactPath, err)
	}
	defer pkg.Close()

	manifest := pkg.Manifest()

	versionName, err := manifest.VersionName.String()
	if err != nil {
		return model.ArtifactMetadata{}, fmt.Errorf("%w: %s: versionName: %w", driven.ErrCorruptArtifact, artifactPath, err)
	}

	versionCode, err := manifest.VersionCode.Int32()
	if err != nil {
		return model.ArtifactMetadata{}, fmt.Errorf("%w: %s: versionCode: %w", driven.ErrCorruptArtifact, artifactPath, err)
	}

	packageID := strings.TrimSpace(pkg.PackageName())
	if packageID == "" {
		return model.ArtifactMetadata{}, fmt.Errorf("%w: %s: manifest has no package name", driven.ErrCorruptArtifact, artifactPath)
	}

	label, err := pkg.Label(nil)
	if err != nil || strings.TrimSpace(label) == "" {
		slog.Debug("apk has no application label, using package id", "file", artifactPath, "package", packageID)
		label = packageID
	}

	return model.ArtifactMetadata{
		PackageID:   packageID,
		VersionName: strings.TrimSpace(versionName),
		VersionCode: int64(versionCode),
		DisplayName: strings.TrimSpace(label),
	}, nil
}

// openAPK converts decoder panics on hostile input into errors.
func openAPK(path string) (pkg *apk.Apk, err error) {
	defer func() {
		if r := recover(); r != nil {
			pkg, err = nil, fmt.Errorf("decode manifest: %v", r)
		}
	}()
	return apk.OpenFile(path)
}
