package apk_test

import (
	"archive/zip"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driven/apk"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// fixtureAPK copies testdata/helloworld.apk into a temp dir so tests can
// delete it afterwards.
func fixtureAPK(t *testing.T) string {
	t.Helper()

	src, err := os.Open(filepath.Join("testdata", "helloworld.apk"))
	require.NoError(t, err)
	defer src.Close()

	path := filepath.Join(t.TempDir(), "app-release.apk")
	dst, err := os.Create(path)
	require.NoError(t, err)
	_, err = io.Copy(dst, src)
	require.NoError(t, err)
	require.NoError(t, dst.Close())

	return path
}

// withEmptyResourceTable rewrites the APK at path with a resources.arsc that
// holds no packages, so resource references in the manifest cannot resolve.
func withEmptyResourceTable(t *testing.T, path string) string {
	t.Helper()

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := filepath.Join(t.TempDir(), "unlabeled.apk")
	f, err := os.Create(out)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for _, entry := range zr.File {
		if entry.Name == "resources.arsc" {
			continue
		}
		require.NoError(t, zw.Copy(entry))
	}

	// ResTable_header: type RES_TABLE_TYPE, header size 12, chunk size 12, 0 packages.
	w, err := zw.Create("resources.arsc")
	require.NoError(t, err)
	require.NoError(t, binary.Write(w, binary.LittleEndian, []uint16{0x0002, 12}))
	require.NoError(t, binary.Write(w, binary.LittleEndian, []uint32{12, 0}))

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return out
}

func TestExtract_ReadsManifestIdentity(t *testing.T) {
	path := fixtureAPK(t)

	meta, err := apk.NewExtractor().Extract(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, model.ArtifactMetadata{
		PackageID:   "com.example.helloworld",
		VersionName: "1.0",
		VersionCode: 1,
		DisplayName: "HelloWorld",
	}, meta)

	// The archive must be released so the caller can move or delete it.
	require.NoError(t, os.Remove(path))
}

func TestExtract_UnresolvableLabelFallsBackToPackageID(t *testing.T) {
	path := withEmptyResourceTable(t, fixtureAPK(t))

	meta, err := apk.NewExtractor().Extract(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "com.example.helloworld", meta.PackageID)
	assert.Equal(t, "1.0", meta.VersionName)
	assert.Equal(t, int64(1), meta.VersionCode)
	assert.Equal(t, "com.example.helloworld", meta.DisplayName)
	require.NoError(t, os.Remove(path))
}

func TestExtract_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.apk")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an apk"), 0o644))

	_, err := apk.NewExtractor().Extract(context.Background(), path)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrCorruptArtifact)

	// The archive must be released so the caller can clean up.
	require.NoError(t, os.Remove(path))
}

func TestExtract_ZipWithoutManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.apk")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("classes.dex")
	require.NoError(t, err)
	_, err = w.Write([]byte("dex\n035"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = apk.NewExtractor().Extract(context.Background(), path)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrCorruptArtifact)
	require.NoError(t, os.Remove(path))
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := apk.NewExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "nope.apk"))

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrCorruptArtifact)
}

func TestExtract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := apk.NewExtractor().Extract(ctx, "irrelevant.apk")

	assert.ErrorIs(t, err, context.Canceled)
}
