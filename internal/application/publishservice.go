// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// cycleRequest asks the service loop to run a cycle. An empty repo means every
// configured repository; an empty tag means the latest release.
type cycleRequest struct {
	repo string
	tag  string
	done chan cycleResponse
}

type cycleResponse struct {
	result model.CycleResult
	err    error
}

type repoStatus int

const (
	repoSkipped repoStatus = iota
	repoPublished
	repoFailed
)

type repoOutcome struct {
	status repoStatus
	err    error
}

// Options tunes a PublishService.
type Options struct {
	// DownloadDir receives artifacts before they are merged.
	DownloadDir string
	// Interval between scheduled cycles.
	Interval time.Duration
	// Workers bounds how many repositories are processed concurrently.
	// 1 processes them strictly in list order.
	Workers int
}

// PublishService orchestrates periodic release polling, artifact ingestion,
// publication, and the index rebuild that follows.
type PublishService struct {
	source    driven.ReleaseSource
	extractor driven.MetadataExtractor
	ledger    driven.LedgerStore
	target    driven.PublishTarget
	builder   driven.IndexBuilder
	rotator   driven.SnapshotRotator
	repos     driven.RepoListSource

	downloadDir string
	interval    time.Duration
	workers     int

	requestCh chan cycleRequest

	ledgerMu sync.Mutex
	pkgLocks *keyedMutex

	// needsRebuild survives a failed rebuild or rotation so the next cycle
	// retries it even when nothing new was published. Owned by the loop.
	needsRebuild bool

	statusMu sync.RWMutex
	last     model.CycleResult
	hasLast  bool
}

// NewPublishService creates a new PublishService with all required dependencies.
func NewPublishService(
	source driven.ReleaseSource,
	extractor driven.MetadataExtractor,
	ledger driven.LedgerStore,
	target driven.PublishTarget,
	builder driven.IndexBuilder,
	rotator driven.SnapshotRotator,
	repos driven.RepoListSource,
	opts Options,
) *PublishService {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	return &PublishService{
		source:      source,
		extractor:   extractor,
		ledger:      ledger,
		target:      target,
		builder:     builder,
		rotator:     rotator,
		repos:       repos,
		downloadDir: opts.DownloadDir,
		interval:    opts.Interval,
		workers:     workers,
		requestCh:   make(chan cycleRequest),
		pkgLocks:    newKeyedMutex(),
	}
}

// Start begins the publish loop. It runs an immediate cycle, then one per
// interval. Manual requests are served by the same goroutine, so cycles never
// overlap. Start blocks until the context is canceled.
func (s *PublishService) Start(ctx context.Context) {
	if _, err := s.runCycle(ctx, "", ""); err != nil {
		slog.Error("initial publish cycle failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("publish service stopped")
			return
		case <-ticker.C:
			if _, err := s.runCycle(ctx, "", ""); err != nil {
				slog.Error("publish cycle failed", "error", err)
			}
		case req := <-s.requestCh:
			result, err := s.runCycle(ctx, req.repo, req.tag)
			req.done <- cycleResponse{result: result, err: err}
		}
	}
}

// RunCycle triggers a full cycle outside the schedule and blocks until it
// completes or the context is canceled.
func (s *PublishService) RunCycle(ctx context.Context) (model.CycleResult, error) {
	return s.request(ctx, "", "")
}

// RefreshRepo processes the latest release of one repository now. The
// repository does not need to be in the configured list.
func (s *PublishService) RefreshRepo(ctx context.Context, repoFullName string) (model.CycleResult, error) {
	return s.request(ctx, repoFullName, "")
}

// PublishTag processes the release of repoFullName tagged tag. The dev-release
// filter and ledger dedupe still apply.
func (s *PublishService) PublishTag(ctx context.Context, repoFullName, tag string) (model.CycleResult, error) {
	slog.Info("manual publish requested", "repo", repoFullName, "tag", tag)
	return s.request(ctx, repoFullName, tag)
}

// LastCycle returns the most recent cycle result. ok is false until the first
// cycle has finished.
func (s *PublishService) LastCycle() (result model.CycleResult, ok bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.last, s.hasLast
}

func (s *PublishService) request(ctx context.Context, repo, tag string) (model.CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return model.CycleResult{}, err
	}

	done := make(chan cycleResponse, 1)
	req := cycleRequest{repo: repo, tag: tag, done: done}

	select {
	case s.requestCh <- req:
	case <-ctx.Done():
		return model.CycleResult{}, ctx.Err()
	}

	select {
	case resp := <-done:
		return resp.result, resp.err
	case <-ctx.Done():
		return model.CycleResult{}, ctx.Err()
	}
}

// runCycle processes the requested repositories and, when anything was
// published, rebuilds the index once and rotates the served snapshot.
// For a single-repository request the repository's own error is returned.
func (s *PublishService) runCycle(ctx context.Context, repo, tag string) (model.CycleResult, error) {
	result := model.CycleResult{StartedAt: time.Now()}

	targets := []string{repo}
	if repo == "" {
		repos, err := s.repos.List(ctx)
		if err != nil {
			return result, fmt.Errorf("read repository list: %w", err)
		}
		targets = repos
	}
	result.Repos = len(targets)

	outcomes := make([]repoOutcome, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, r := range targets {
		g.Go(func() error {
			if gctx.Err() != nil {
				outcomes[i] = repoOutcome{status: repoFailed, err: gctx.Err()}
				return nil
			}
			outcomes[i] = s.processRepo(gctx, r, tag)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o.status {
		case repoPublished:
			result.Published++
		case repoFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if result.Changed() || s.needsRebuild {
		s.rebuildAndRotate(ctx, &result)
	}

	result.FinishedAt = time.Now()
	s.statusMu.Lock()
	s.last, s.hasLast = result, true
	s.statusMu.Unlock()

	slog.Info("publish cycle complete",
		"repos", result.Repos,
		"published", result.Published,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"rebuilt", result.Rebuilt,
		"rotated", result.Rotated,
		"duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
	)

	if repo != "" && len(outcomes) == 1 {
		return result, outcomes[0].err
	}
	return result, nil
}

func (s *PublishService) rebuildAndRotate(ctx context.Context, result *model.CycleResult) {
	s.needsRebuild = true

	if err := s.builder.Rebuild(ctx); err != nil {
		slog.Error("index rebuild failed", "error", err)
		return
	}
	result.Rebuilt = true

	if err := s.rotator.Rotate(ctx); err != nil {
		slog.Error("snapshot rotation failed", "error", err)
		return
	}
	result.Rotated = true
	s.needsRebuild = false
}

// processRepo runs the ingestion pipeline for one repository. Errors are
// logged here and reported in the outcome; they never stop the cycle.
func (s *PublishService) processRepo(ctx context.Context, repo, tag string) repoOutcome {
	var (
		raw model.RawRelease
		err error
	)
	if tag == "" {
		raw, err = s.source.FetchLatestRelease(ctx, repo)
	} else {
		raw, err = s.source.FetchReleaseByTag(ctx, repo, tag)
	}
	if err != nil {
		slog.Error("release fetch failed", "repo", repo, "tag", tag, "error", err)
		return repoOutcome{status: repoFailed, err: err}
	}

	info, err := ParseRelease(repo, raw)
	if err != nil {
		slog.Warn("release skipped", "repo", repo, "reason", "malformed", "error", err)
		return repoOutcome{status: repoFailed, err: err}
	}

	if !IsDevRelease(info.ReleaseName) {
		slog.Debug("release skipped", "repo", repo, "release", info.ReleaseName, "reason", "not a dev release")
		return repoOutcome{status: repoSkipped}
	}

	exists, err := s.ledger.Exists(ctx, repo, info.ReleaseName)
	if err != nil {
		slog.Error("ledger lookup failed", "repo", repo, "release", info.ReleaseName, "error", err)
		return repoOutcome{status: repoFailed, err: err}
	}
	if exists {
		slog.Debug("release skipped", "repo", repo, "release", info.ReleaseName, "reason", "already published")
		return repoOutcome{status: repoSkipped}
	}

	return s.publish(ctx, info)
}

func (s *PublishService) publish(ctx context.Context, info model.ReleaseInfo) repoOutcome {
	log := slog.With("repo", info.SourceRepo, "release", info.ReleaseName)

	fail := func(msg, path string, err error) repoOutcome {
		if path != "" {
			if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				log.Warn("failed to remove incoming artifact", "path", path, "error", rerr)
			}
		}
		log.Error(msg, "error", err)
		return repoOutcome{status: repoFailed, err: err}
	}

	// Each release downloads into its own directory so repositories shipping
	// the same asset name never share a file.
	workDir, err := os.MkdirTemp(s.downloadDir, "release-*")
	if err != nil {
		return fail("create download directory", "", err)
	}
	defer func() {
		if rerr := os.RemoveAll(workDir); rerr != nil {
			log.Warn("failed to remove download directory", "path", workDir, "error", rerr)
		}
	}()

	dest := filepath.Join(workDir, filepath.Base(info.ArtifactFileName))
	if err := s.source.DownloadAsset(ctx, info.ArtifactDownloadURL, dest); err != nil {
		return fail("artifact download failed", dest, err)
	}
	if _, err := os.Stat(dest); err != nil {
		return fail("downloaded artifact missing", "", err)
	}

	meta, err := s.extractor.Extract(ctx, dest)
	if err != nil {
		return fail("artifact metadata extraction failed", dest, err)
	}

	path, err := RenameArtifact(dest, meta)
	if err != nil {
		return fail("artifact rename failed", dest, err)
	}

	unlock := s.pkgLocks.Lock(meta.PackageID)
	defer unlock()

	err = s.target.Merge(ctx, model.MergeRequest{
		ArtifactPath: path,
		Metadata:     meta,
		SourceURL:    info.ReleaseBrowserURL,
		Changelog:    info.Changelog,
	})
	if errors.Is(err, driven.ErrVersionCollision) {
		identical, herr := s.target.HasIdenticalArtifact(ctx, path)
		if herr != nil || !identical {
			return fail("artifact collides with a different published build", path, err)
		}
		// An earlier run merged this exact artifact but stopped before
		// recording it.
		log.Warn("artifact already merged, recording release", "package", meta.PackageID)
		if rerr := os.Remove(path); rerr != nil {
			log.Warn("failed to remove incoming artifact", "path", path, "error", rerr)
		}
		err = nil
	}
	if err != nil {
		return fail("merge failed", path, err)
	}

	s.ledgerMu.Lock()
	entry, err := s.ledger.Record(ctx, model.LedgerEntry{
		Repo:        info.SourceRepo,
		Release:     info.ReleaseName,
		PackageName: meta.PackageID,
		Version:     meta.VersionName,
		VersionCode: meta.VersionCode,
	})
	s.ledgerMu.Unlock()
	if errors.Is(err, driven.ErrReleaseAlreadyRecorded) {
		log.Debug("release skipped", "reason", "recorded concurrently")
		return repoOutcome{status: repoSkipped}
	}
	if err != nil {
		return fail("ledger record failed", "", err)
	}

	log.Info("release published",
		"package", entry.PackageName,
		"version", entry.Version,
		"version_code", entry.VersionCode,
		"published_at", info.PublishedDate,
		"date", entry.Date.Format(time.DateTime),
	)

	return repoOutcome{status: repoPublished}
}
