package fdroid_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/adapter/driven/fdroid"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

type fixture struct {
	buildDir    string
	downloadDir string
	shotsDir    string
	target      *fdroid.Target
}

func setupTarget(t *testing.T) fixture {
	t.Helper()

	root := t.TempDir()
	f := fixture{
		buildDir:    filepath.Join(root, "build"),
		downloadDir: filepath.Join(root, "downloads"),
		shotsDir:    filepath.Join(root, "data"),
	}
	for _, dir := range []string{
		filepath.Join(f.buildDir, "repo"),
		filepath.Join(f.buildDir, "metadata"),
		f.downloadDir,
		f.shotsDir,
	} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	require.NoError(t, os.WriteFile(filepath.Join(f.shotsDir, "screen1.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.shotsDir, "screen2.JPG"), []byte("jpg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.shotsDir, "notes.txt"), []byte("txt"), 0o644))

	f.target = fdroid.NewTarget(fdroid.Options{
		BuildDir:      f.buildDir,
		ScreenshotDir: f.shotsDir,
		AuthorName:    "Brady",
		Category:      "TestAppCenter",
		License:       "proprietary",
	})
	return f
}

func (f fixture) artifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.downloadDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f fixture) descriptor(t *testing.T, pkg string) model.PackageDescriptor {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.buildDir, "metadata", pkg+".yml"))
	require.NoError(t, err)
	var d model.PackageDescriptor
	require.NoError(t, yaml.Unmarshal(data, &d))
	return d
}

func mergeRequest(path string, versionCode int64) model.MergeRequest {
	return model.MergeRequest{
		ArtifactPath: path,
		Metadata: model.ArtifactMetadata{
			PackageID:   "com.example.app",
			VersionName: "1.2.0",
			VersionCode: versionCode,
			DisplayName: "Example",
		},
		SourceURL: "https://github.com/owner/repo/",
		Changelog: "- Fixed bug A\n- Added feature B",
	}
}

func TestMerge_NewPackage(t *testing.T) {
	f := setupTarget(t)
	src := f.artifact(t, "app-v1.2.0.42.apk", "apk-bytes")

	err := f.target.Merge(context.Background(), mergeRequest(src, 42))
	require.NoError(t, err)

	assert.NoFileExists(t, src)
	moved, err := os.ReadFile(filepath.Join(f.buildDir, "repo", "app-v1.2.0.42.apk"))
	require.NoError(t, err)
	assert.Equal(t, "apk-bytes", string(moved))

	changelog, err := os.ReadFile(filepath.Join(f.buildDir, "metadata", "com.example.app", "en-US", "changelog", "42.txt"))
	require.NoError(t, err)
	assert.Equal(t, "- Fixed bug A\n- Added feature B\n", string(changelog))

	shots := filepath.Join(f.buildDir, "metadata", "com.example.app", "en-US", "phoneScreenshots")
	assert.FileExists(t, filepath.Join(shots, "screen1.png"))
	assert.FileExists(t, filepath.Join(shots, "screen2.JPG"))
	assert.NoFileExists(t, filepath.Join(shots, "notes.txt"))

	d := f.descriptor(t, "com.example.app")
	assert.Equal(t, model.PackageDescriptor{
		AuthorName:         "Brady",
		Categories:         []string{"TestAppCenter"},
		CurrentVersionCode: 42,
		Name:               "Example",
		SourceCode:         "https://github.com/owner/repo/",
		Summary:            "Example (com.example.app).",
		Description:        "Development release of Example.",
		License:            "proprietary",
	}, d)
}

func TestMerge_VersionCodeIsMonotonic(t *testing.T) {
	f := setupTarget(t)
	ctx := context.Background()

	require.NoError(t, f.target.Merge(ctx, mergeRequest(f.artifact(t, "app-42.apk", "a"), 42)))
	require.NoError(t, f.target.Merge(ctx, mergeRequest(f.artifact(t, "app-50.apk", "b"), 50)))
	assert.Equal(t, int64(50), f.descriptor(t, "com.example.app").CurrentVersionCode)

	require.NoError(t, f.target.Merge(ctx, mergeRequest(f.artifact(t, "app-45.apk", "c"), 45)))
	assert.Equal(t, int64(50), f.descriptor(t, "com.example.app").CurrentVersionCode, "older build must not lower the version code")
	assert.FileExists(t, filepath.Join(f.buildDir, "repo", "app-45.apk"))
}

func TestMerge_PreservesCuratedDescriptorLines(t *testing.T) {
	f := setupTarget(t)
	path := filepath.Join(f.buildDir, "metadata", "com.example.app.yml")
	curated := "AuthorName: 'Someone Else'\r\n" +
		"Categories:\r\n- Tools\r\n" +
		"CurrentVersionCode: 10\r\n" +
		"Name: Curated\r\n" +
		"# keep this comment\r\n" +
		"Description: |\r\n  Hand written.\r\n"
	require.NoError(t, os.WriteFile(path, []byte(curated), 0o644))

	require.NoError(t, f.target.Merge(context.Background(), mergeRequest(f.artifact(t, "app.apk", "x"), 11)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "AuthorName: 'Someone Else'\r\n" +
		"Categories:\r\n- Tools\r\n" +
		"CurrentVersionCode: 11\r\n" +
		"Name: Curated\r\n" +
		"# keep this comment\r\n" +
		"Description: |\r\n  Hand written.\r\n"
	assert.Equal(t, want, string(got))
}

func TestMerge_CollisionOnRepeatedMove(t *testing.T) {
	f := setupTarget(t)
	ctx := context.Background()

	require.NoError(t, f.target.Merge(ctx, mergeRequest(f.artifact(t, "app.apk", "first"), 42)))

	second := f.artifact(t, "app.apk", "second")
	err := f.target.Merge(ctx, mergeRequest(second, 42))

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrVersionCollision)
	assert.ErrorIs(t, err, driven.ErrMerge)
	assert.FileExists(t, second, "incoming artifact stays in place on collision")

	kept, err := os.ReadFile(filepath.Join(f.buildDir, "repo", "app.apk"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(kept))
	assert.Equal(t, int64(42), f.descriptor(t, "com.example.app").CurrentVersionCode)
}

func TestMerge_ChangelogWrittenOnce(t *testing.T) {
	f := setupTarget(t)
	ctx := context.Background()

	req := mergeRequest(f.artifact(t, "a.apk", "a"), 42)
	require.NoError(t, f.target.Merge(ctx, req))

	req = mergeRequest(f.artifact(t, "b.apk", "b"), 42)
	req.Changelog = "- rewritten"
	require.NoError(t, f.target.Merge(ctx, req))

	text, err := f.target.ReadChangelog(ctx, "com.example.app", 42)
	require.NoError(t, err)
	assert.Equal(t, "- Fixed bug A\n- Added feature B", text)
}

func TestMerge_ExistingScreenshotsNotReseeded(t *testing.T) {
	f := setupTarget(t)
	shots := filepath.Join(f.buildDir, "metadata", "com.example.app", "en-US", "phoneScreenshots")
	require.NoError(t, os.MkdirAll(shots, 0o755))

	require.NoError(t, f.target.Merge(context.Background(), mergeRequest(f.artifact(t, "a.apk", "a"), 1)))

	entries, err := os.ReadDir(shots)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMerge_InvalidPackageID(t *testing.T) {
	f := setupTarget(t)
	req := mergeRequest(f.artifact(t, "a.apk", "a"), 1)
	req.Metadata.PackageID = "../escape"

	err := f.target.Merge(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrMerge)
	assert.ErrorIs(t, err, driven.ErrInvalidPackageID)
	assert.NoFileExists(t, filepath.Join(f.buildDir, "escape.yml"))
}

func TestMerge_MissingArtifact(t *testing.T) {
	f := setupTarget(t)

	err := f.target.Merge(context.Background(), mergeRequest(filepath.Join(f.downloadDir, "gone.apk"), 1))

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrMerge)
	assert.NotErrorIs(t, err, driven.ErrVersionCollision)
}

func TestHasIdenticalArtifact(t *testing.T) {
	f := setupTarget(t)
	ctx := context.Background()
	require.NoError(t, f.target.Merge(ctx, mergeRequest(f.artifact(t, "app.apk", "same"), 1)))

	tests := []struct {
		name    string
		file    string
		content string
		want    bool
	}{
		{name: "identical", file: "app.apk", content: "same", want: true},
		{name: "same size different bytes", file: "app.apk", content: "diff", want: false},
		{name: "different size", file: "app.apk", content: "longer", want: false},
		{name: "not in repo", file: "other.apk", content: "same", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := f.artifact(t, tc.file, tc.content)
			got, err := f.target.HasIdenticalArtifact(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReadChangelog_Missing(t *testing.T) {
	f := setupTarget(t)

	text, err := f.target.ReadChangelog(context.Background(), "com.example.app", 99)

	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestReadChangelog_RejectsTraversal(t *testing.T) {
	f := setupTarget(t)

	_, err := f.target.ReadChangelog(context.Background(), "../../etc", 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrInvalidPackageID)
}
