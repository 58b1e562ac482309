package application_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/application"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockSource struct {
	mu        sync.Mutex
	fetched   []string
	downloads []string

	latest   func(ctx context.Context, repo string) (model.RawRelease, error)
	byTag    func(ctx context.Context, repo, tag string) (model.RawRelease, error)
	download func(ctx context.Context, assetURL, destPath string) error
}

func (m *mockSource) FetchLatestRelease(ctx context.Context, repo string) (model.RawRelease, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, repo)
	m.mu.Unlock()
	return m.latest(ctx, repo)
}

func (m *mockSource) FetchReleaseByTag(ctx context.Context, repo, tag string) (model.RawRelease, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, repo+"@"+tag)
	m.mu.Unlock()
	return m.byTag(ctx, repo, tag)
}

func (m *mockSource) DownloadAsset(ctx context.Context, assetURL, destPath string) error {
	m.mu.Lock()
	m.downloads = append(m.downloads, assetURL)
	m.mu.Unlock()
	if m.download != nil {
		return m.download(ctx, assetURL, destPath)
	}
	return os.WriteFile(destPath, []byte("apk from "+assetURL), 0o644)
}

func (m *mockSource) fetchCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

func (m *mockSource) downloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.downloads)
}

type mockExtractor struct {
	extract func(ctx context.Context, path string) (model.ArtifactMetadata, error)
}

func (m *mockExtractor) Extract(ctx context.Context, path string) (model.ArtifactMetadata, error) {
	return m.extract(ctx, path)
}

// memLedger is an in-memory LedgerStore.
type memLedger struct {
	mu      sync.Mutex
	entries []model.LedgerEntry
}

func (l *memLedger) Exists(_ context.Context, repo, release string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Repo == repo && e.Release == release {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) Record(_ context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Repo == entry.Repo && e.Release == entry.Release {
			return model.LedgerEntry{}, driven.ErrReleaseAlreadyRecorded
		}
	}
	entry.ID = int64(len(l.entries) + 1)
	if entry.Date.IsZero() {
		entry.Date = time.Now()
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *memLedger) ListAll(_ context.Context) ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.LedgerEntry(nil), l.entries...), nil
}

func (l *memLedger) ListByPackage(_ context.Context, pkg string) ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range l.entries {
		if e.PackageName == pkg {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) Delete(_ context.Context, id int64) error {
	return driven.ErrLedgerEntryNotFound
}

func (l *memLedger) all() []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.LedgerEntry(nil), l.entries...)
}

type mockTarget struct {
	mu       sync.Mutex
	requests []model.MergeRequest

	merge     func(ctx context.Context, req model.MergeRequest) error
	identical func(ctx context.Context, path string) (bool, error)
}

func (m *mockTarget) Merge(ctx context.Context, req model.MergeRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.merge != nil {
		return m.merge(ctx, req)
	}
	return os.Remove(req.ArtifactPath)
}

func (m *mockTarget) HasIdenticalArtifact(ctx context.Context, path string) (bool, error) {
	if m.identical != nil {
		return m.identical(ctx, path)
	}
	return false, nil
}

func (m *mockTarget) ReadChangelog(_ context.Context, _ string, _ int64) (string, error) {
	return "", nil
}

func (m *mockTarget) merged() []model.MergeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.MergeRequest(nil), m.requests...)
}

type countingStep struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (c *countingStep) next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

func (c *countingStep) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type mockBuilder struct{ countingStep }

func (m *mockBuilder) Rebuild(_ context.Context) error { return m.next() }

type mockRotator struct{ countingStep }

func (m *mockRotator) Rotate(_ context.Context) error { return m.next() }

type mockRepoList struct {
	mu    sync.Mutex
	repos []string
	err   error
}

func (m *mockRepoList) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.repos...), m.err
}

func (m *mockRepoList) set(repos []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos, m.err = repos, err
}

// --- Harness ---

type harness struct {
	source      *mockSource
	extractor   *mockExtractor
	ledger      *memLedger
	target      *mockTarget
	builder     *mockBuilder
	rotator     *mockRotator
	repos       *mockRepoList
	downloadDir string
	svc         *application.PublishService
}

func devRelease(name string) model.RawRelease {
	return model.RawRelease{
		Name:        name,
		TagName:     "v1.1.0",
		PublishedAt: "2026-01-02T12:00:00Z",
		HTMLURL:     "https://github.com/owner/app/releases/tag/v1.1.0",
		Body:        "Intro text.\n* Fixed bug A\n* Added feature B\nMore prose.",
		Assets: []model.RawAsset{
			{ID: 1, Name: "app-1.0.apk", URL: "https://api.github.com/repos/owner/app/releases/assets/1"},
		},
	}
}

func defaultMeta() model.ArtifactMetadata {
	return model.ArtifactMetadata{
		PackageID:   "com.example.app",
		VersionName: "1.1.0",
		VersionCode: 5,
		DisplayName: "Example",
	}
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()

	h := &harness{
		source: &mockSource{
			latest: func(_ context.Context, _ string) (model.RawRelease, error) {
				return devRelease("app-1.1.0-dev"), nil
			},
			byTag: func(_ context.Context, _, _ string) (model.RawRelease, error) {
				return model.RawRelease{}, driven.ErrReleaseNotFound
			},
		},
		extractor: &mockExtractor{
			extract: func(_ context.Context, _ string) (model.ArtifactMetadata, error) {
				return defaultMeta(), nil
			},
		},
		ledger:      &memLedger{},
		target:      &mockTarget{},
		builder:     &mockBuilder{},
		rotator:     &mockRotator{},
		repos:       &mockRepoList{},
		downloadDir: t.TempDir(),
	}

	h.svc = application.NewPublishService(
		h.source, h.extractor, h.ledger, h.target, h.builder, h.rotator, h.repos,
		application.Options{DownloadDir: h.downloadDir, Interval: time.Hour, Workers: workers},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// The repository list is empty until a test sets it, so this returns once
	// the initial cycle has run without side effects.
	_, err := h.svc.RunCycle(context.Background())
	require.NoError(t, err)

	return h
}

func (h *harness) downloads(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.downloadDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var errBoom = errors.New("boom")
