package application

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
)

// NormalizeArtifactName returns fileName unchanged when it already carries the
// version name, otherwise "<base>-v<versionName>.<versionCode>.apk".
func NormalizeArtifactName(fileName string, meta model.ArtifactMetadata) string {
	if strings.Contains(fileName, meta.VersionName) {
		return fileName
	}
	base := strings.TrimSuffix(fileName, ".apk")
	return fmt.Sprintf("%s-v%s.%d.apk", base, meta.VersionName, meta.VersionCode)
}

// RenameArtifact renames the file at path to its normalized name and returns
// the new path.
func RenameArtifact(path string, meta model.ArtifactMetadata) (string, error) {
	name := NormalizeArtifactName(filepath.Base(path), meta)
	if name == filepath.Base(path) {
		return path, nil
	}

	newPath := filepath.Join(filepath.Dir(path), name)
	if err := os.Rename(path, newPath); err != nil {
		return "", fmt.Errorf("rename artifact to %s: %w", name, err)
	}
	return newPath, nil
}
