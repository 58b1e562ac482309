// Package snapshot replaces the served repository tree with the freshly
// built one and keeps a zip archive of every tree it replaces.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotRotator = (*Rotator)(nil)

const (
	stagingPrefix = ".staging-"
	asidePrefix   = ".previous-"
	backupLayout  = "20060102_150405"
)

// Options configures a Rotator.
type Options struct {
	// SourceDir is the built repository tree to publish.
	SourceDir string
	// ServeDir is the tree clients read. Staging and moved-aside trees are
	// created next to it so every swap is a same-filesystem rename.
	ServeDir string
	// BackupDir receives repo_<timestamp>.zip archives.
	BackupDir string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Rotator implements driven.SnapshotRotator with copy, archive, rename-swap
// and delete-old steps. ServeDir is replaced by a single rename, so readers
// see either the previous or the new tree.
type Rotator struct {
	opts Options
}

// NewRotator creates a Rotator.
func NewRotator(opts Options) *Rotator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Rotator{opts: opts}
}

// Rotate publishes SourceDir as ServeDir. The tree being replaced is archived
// first; a failed archive leaves ServeDir untouched.
func (r *Rotator) Rotate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parent := filepath.Dir(r.opts.ServeDir)
	base := filepath.Base(r.opts.ServeDir)

	staging := filepath.Join(parent, base+stagingPrefix+uuid.NewString())
	if err := copyTree(r.opts.SourceDir, staging); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("%w: stage %s: %w", driven.ErrRotation, r.opts.SourceDir, err)
	}

	if err := os.MkdirAll(r.opts.ServeDir, 0o755); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("%w: %w", driven.ErrRotation, err)
	}

	archive, err := r.archive()
	if err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("%w: archive %s: %w", driven.ErrRotation, r.opts.ServeDir, err)
	}

	aside := filepath.Join(parent, base+asidePrefix+uuid.NewString())
	if err := os.Rename(r.opts.ServeDir, aside); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("%w: move served tree aside: %w", driven.ErrRotation, err)
	}

	if err := os.Rename(staging, r.opts.ServeDir); err != nil {
		if rerr := os.Rename(aside, r.opts.ServeDir); rerr != nil {
			slog.Error("failed to restore served tree", "path", aside, "error", rerr)
		}
		_ = os.RemoveAll(staging)
		return fmt.Errorf("%w: swap in new tree: %w", driven.ErrRotation, err)
	}

	if err := os.RemoveAll(aside); err != nil {
		slog.Warn("failed to remove previous served tree", "path", aside, "error", err)
	}

	slog.Info("snapshot rotated", "serve_dir", r.opts.ServeDir, "backup", filepath.Base(archive))
	return nil
}

// archive zips ServeDir into BackupDir under a name no other archive uses.
func (r *Rotator) archive() (string, error) {
	if err := os.MkdirAll(r.opts.BackupDir, 0o755); err != nil {
		return "", err
	}

	tmp := filepath.Join(r.opts.BackupDir, ".tmp-"+uuid.NewString()+".zip")
	if err := writeZip(r.opts.ServeDir, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	stamp := r.opts.Now().Format(backupLayout)
	for i := 0; ; i++ {
		name := "repo_" + stamp + ".zip"
		if i > 0 {
			name = fmt.Sprintf("repo_%s_%d.zip", stamp, i)
		}
		dest := filepath.Join(r.opts.BackupDir, name)

		// Link refuses to replace an existing archive.
		err := os.Link(tmp, dest)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			_ = os.Remove(tmp)
			return "", err
		}
		_ = os.Remove(tmp)

		if info, err := os.Stat(dest); err == nil {
			slog.Debug("backup written", "file", name, "size", humanize.Bytes(uint64(info.Size())))
		}
		return dest, nil
	}
}

// Recover repairs the layout after an interrupted rotation. A missing ServeDir
// is restored from the most recent moved-aside tree; leftover staging and
// moved-aside trees are removed.
func (r *Rotator) Recover(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parent := filepath.Dir(r.opts.ServeDir)
	base := filepath.Base(r.opts.ServeDir)

	entries, err := os.ReadDir(parent)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: scan %s: %w", driven.ErrRotation, parent, err)
	}

	var staging, aside []os.DirEntry
	for _, e := range entries {
		switch {
		case !e.IsDir():
		case strings.HasPrefix(e.Name(), base+stagingPrefix):
			staging = append(staging, e)
		case strings.HasPrefix(e.Name(), base+asidePrefix):
			aside = append(aside, e)
		}
	}

	if _, err := os.Stat(r.opts.ServeDir); errors.Is(err, fs.ErrNotExist) && len(aside) > 0 {
		newest := newestEntry(aside)
		from := filepath.Join(parent, newest.Name())
		if err := os.Rename(from, r.opts.ServeDir); err != nil {
			return fmt.Errorf("%w: restore %s: %w", driven.ErrRotation, from, err)
		}
		slog.Warn("restored served tree from interrupted rotation", "from", newest.Name())
	}

	for _, e := range append(staging, aside...) {
		path := filepath.Join(parent, e.Name())
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("%w: remove %s: %w", driven.ErrRotation, path, err)
		}
		slog.Info("removed leftover rotation tree", "path", e.Name())
	}

	return nil
}

func newestEntry(entries []os.DirEntry) os.DirEntry {
	newest := entries[0]
	var newestTime time.Time
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestTime) {
			newest, newestTime = e, info.ModTime()
		}
	}
	return newest
}
