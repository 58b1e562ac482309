// Package fdroid merges artifacts into an F-Droid build tree and regenerates
// its index.
package fdroid

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PublishTarget = (*Target)(nil)

const versionCodeKey = "CurrentVersionCode:"

var packageIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// Options configures a Target.
type Options struct {
	// BuildDir holds the repo/ and metadata/ directories.
	BuildDir string
	// ScreenshotDir supplies the *.jpg and *.png files copied into a new
	// package's phoneScreenshots directory.
	ScreenshotDir string

	AuthorName string
	Category   string
	License    string
}

// Target implements driven.PublishTarget on an F-Droid build tree laid out as
//
//	metadata/<pkg>.yml
//	metadata/<pkg>/en-US/changelog/<versionCode>.txt
//	metadata/<pkg>/en-US/phoneScreenshots/
//	repo/<artifact>.apk
type Target struct {
	opts Options

	// mu serializes descriptor read-modify-write per package.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTarget creates a Target rooted at opts.BuildDir.
func NewTarget(opts Options) *Target {
	return &Target{opts: opts, locks: make(map[string]*sync.Mutex)}
}

func (t *Target) repoDir() string     { return filepath.Join(t.opts.BuildDir, "repo") }
func (t *Target) metadataDir() string { return filepath.Join(t.opts.BuildDir, "metadata") }

func (t *Target) changelogPath(packageID string, versionCode int64) string {
	return filepath.Join(t.metadataDir(), packageID, "en-US", "changelog", strconv.FormatInt(versionCode, 10)+".txt")
}

func (t *Target) packageLock(packageID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[packageID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[packageID] = l
	}
	return l
}

// Merge creates or updates the package metadata and then moves the artifact
// into repo/. Every step is idempotent except the final move, which refuses
// to overwrite an existing artifact.
func (t *Target) Merge(ctx context.Context, req model.MergeRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pkg := req.Metadata.PackageID
	if !packageIDPattern.MatchString(pkg) {
		return fmt.Errorf("%w: %w %q", driven.ErrMerge, driven.ErrInvalidPackageID, pkg)
	}

	lock := t.packageLock(pkg)
	lock.Lock()
	defer lock.Unlock()

	if err := t.ensurePackageDirs(pkg); err != nil {
		return fmt.Errorf("%w: %s: %w", driven.ErrMerge, pkg, err)
	}

	if err := t.writeChangelog(pkg, req.Metadata.VersionCode, req.Changelog); err != nil {
		return fmt.Errorf("%w: %s changelog: %w", driven.ErrMerge, pkg, err)
	}

	if err := t.upsertDescriptor(req); err != nil {
		return fmt.Errorf("%w: %s descriptor: %w", driven.ErrMerge, pkg, err)
	}

	dest := filepath.Join(t.repoDir(), filepath.Base(req.ArtifactPath))
	if err := moveNoReplace(req.ArtifactPath, dest); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %w: %s", driven.ErrMerge, driven.ErrVersionCollision, dest)
		}
		return fmt.Errorf("%w: move %s: %w", driven.ErrMerge, filepath.Base(req.ArtifactPath), err)
	}

	slog.Info("artifact merged",
		"package", pkg,
		"version_code", req.Metadata.VersionCode,
		"artifact", filepath.Base(dest),
	)

	return nil
}

// ensurePackageDirs creates the per-package directories. phoneScreenshots is
// seeded with sample images only when it is created.
func (t *Target) ensurePackageDirs(pkg string) error {
	enUS := filepath.Join(t.metadataDir(), pkg, "en-US")
	if err := os.MkdirAll(filepath.Join(enUS, "changelog"), 0o755); err != nil {
		return err
	}

	screenshots := filepath.Join(enUS, "phoneScreenshots")
	if _, err := os.Stat(screenshots); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(screenshots, 0o755); err != nil {
		return err
	}

	return t.seedScreenshots(screenshots)
}

func (t *Target) seedScreenshots(dst string) error {
	if t.opts.ScreenshotDir == "" {
		return nil
	}

	entries, err := os.ReadDir(t.opts.ScreenshotDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".jpg" && ext != ".png") {
			continue
		}
		target := filepath.Join(dst, e.Name())
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := copyFile(filepath.Join(t.opts.ScreenshotDir, e.Name()), target); err != nil {
			return fmt.Errorf("seed screenshot %s: %w", e.Name(), err)
		}
	}

	return nil
}

// writeChangelog stores the release notes once per version code.
func (t *Target) writeChangelog(pkg string, versionCode int64, text string) error {
	path := t.changelogPath(pkg, versionCode)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return atomic.WriteFile(path, strings.NewReader(text+"\n"))
}

func (t *Target) upsertDescriptor(req model.MergeRequest) error {
	meta := req.Metadata
	path := filepath.Join(t.metadataDir(), meta.PackageID+".yml")

	existing, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t.createDescriptor(path, req)
	}
	if err != nil {
		return err
	}

	var current model.PackageDescriptor
	if err := yaml.Unmarshal(existing, &current); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	if meta.VersionCode <= current.CurrentVersionCode {
		slog.Debug("descriptor already at or past version",
			"package", meta.PackageID,
			"current", current.CurrentVersionCode,
			"incoming", meta.VersionCode,
		)
		return nil
	}

	patched := patchVersionCode(existing, meta.VersionCode)
	if err := atomic.WriteFile(path, bytes.NewReader(patched)); err != nil {
		return err
	}

	slog.Info("descriptor updated",
		"package", meta.PackageID,
		"from", current.CurrentVersionCode,
		"to", meta.VersionCode,
	)
	return nil
}

func (t *Target) createDescriptor(path string, req model.MergeRequest) error {
	meta := req.Metadata
	name := meta.DisplayName
	if name == "" {
		name = meta.PackageID
	}

	desc := model.PackageDescriptor{
		AuthorName:         t.opts.AuthorName,
		Categories:         []string{t.opts.Category},
		CurrentVersionCode: meta.VersionCode,
		Name:               name,
		SourceCode:         req.SourceURL,
		Summary:            fmt.Sprintf("%s (%s).", name, meta.PackageID),
		Description:        fmt.Sprintf("Development release of %s.", name),
		License:            t.opts.License,
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(desc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return err
	}

	slog.Info("descriptor created", "package", meta.PackageID, "version_code", meta.VersionCode)
	return nil
}

// patchVersionCode rewrites the top-level CurrentVersionCode line and leaves
// every other byte untouched. The key is appended when absent.
func patchVersionCode(doc []byte, versionCode int64) []byte {
	replacement := versionCodeKey + " " + strconv.FormatInt(versionCode, 10)

	lines := bytes.SplitAfter(doc, []byte("\n"))
	found := false
	for i, line := range lines {
		if !bytes.HasPrefix(line, []byte(versionCodeKey)) {
			continue
		}
		ending := line[len(bytes.TrimRight(line, "\r\n")):]
		lines[i] = append([]byte(replacement), ending...)
		found = true
	}

	out := bytes.Join(lines, nil)
	if !found {
		if len(out) > 0 && !bytes.HasSuffix(out, []byte("\n")) {
			out = append(out, '\n')
		}
		out = append(out, replacement+"\n"...)
	}
	return out
}

// HasIdenticalArtifact reports whether repo/ holds a file named like
// artifactPath with the same content.
func (t *Target) HasIdenticalArtifact(ctx context.Context, artifactPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	existing := filepath.Join(t.repoDir(), filepath.Base(artifactPath))

	a, err := os.Stat(existing)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b, err := os.Stat(artifactPath)
	if err != nil {
		return false, err
	}
	if a.Size() != b.Size() {
		return false, nil
	}

	sumA, err := fileDigest(existing)
	if err != nil {
		return false, err
	}
	sumB, err := fileDigest(artifactPath)
	if err != nil {
		return false, err
	}

	return bytes.Equal(sumA, sumB), nil
}

// ReadChangelog returns the stored notes for a package version, or "" when
// none were written.
func (t *Target) ReadChangelog(ctx context.Context, packageID string, versionCode int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !packageIDPattern.MatchString(packageID) {
		return "", fmt.Errorf("%w %q", driven.ErrInvalidPackageID, packageID)
	}

	data, err := os.ReadFile(t.changelogPath(packageID, versionCode))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read changelog %s/%d: %w", packageID, versionCode, err)
	}

	return strings.TrimRight(string(data), "\n"), nil
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
