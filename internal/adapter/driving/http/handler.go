// Package httphandler serves the operator API of the publish service.
package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// Publisher is the subset of the publish service the API drives.
type Publisher interface {
	RunCycle(ctx context.Context) (model.CycleResult, error)
	RefreshRepo(ctx context.Context, repoFullName string) (model.CycleResult, error)
	PublishTag(ctx context.Context, repoFullName, tag string) (model.CycleResult, error)
	LastCycle() (model.CycleResult, bool)
}

// ChangelogReader reads stored changelogs from the publish target.
type ChangelogReader interface {
	ReadChangelog(ctx context.Context, packageID string, versionCode int64) (string, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	ledger     driven.LedgerStore
	changelogs ChangelogReader
	publisher  Publisher
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	ledger driven.LedgerStore,
	changelogs ChangelogReader,
	publisher Publisher,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ledger:     ledger,
		changelogs: changelogs,
		publisher:  publisher,
		logger:     logger,
	}
}

// NewRouter creates an http.Handler with all routes registered. Operations
// that change state are accepted from the loopback interface only.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(logger))
	// Recovery innermost so panics are caught before logging.
	r.Use(recoveryMiddleware(logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/status", h.Status)
		r.Get("/releases", h.ListReleases)
		r.Get("/packages/{packageID}/releases", h.ListPackageReleases)
		r.Get("/packages/{packageID}/changelog/{versionCode}", h.GetChangelog)

		r.Group(func(r chi.Router) {
			r.Use(localOnly)
			r.Delete("/releases/{id}", h.DeleteRelease)
			r.Post("/poll", h.Poll)
			r.Post("/repos/{owner}/{repo}/poll", h.PollRepo)
			r.Post("/repos/{owner}/{repo}/releases/{tag}/publish", h.PublishTag)
		})
	})

	return r
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Status returns the result of the most recent publish cycle.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	last, ok := h.publisher.LastCycle()
	if !ok {
		writeJSON(w, http.StatusOK, StatusResponse{HasRun: false})
		return
	}

	cycle := toCycleResponse(last)
	writeJSON(w, http.StatusOK, StatusResponse{HasRun: true, LastCycle: &cycle})
}

// ListReleases returns every published release in ledger order.
func (h *Handler) ListReleases(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list releases", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toLedgerResponses(entries))
}

// ListPackageReleases returns the published releases of one package.
func (h *Handler) ListPackageReleases(w http.ResponseWriter, r *http.Request) {
	packageID := chi.URLParam(r, "packageID")

	entries, err := h.ledger.ListByPackage(r.Context(), packageID)
	if err != nil {
		h.logger.Error("failed to list package releases", "package", packageID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toLedgerResponses(entries))
}

// DeleteRelease removes a ledger entry so the release is published again on
// the next cycle.
func (h *Handler) DeleteRelease(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid release id")
		return
	}

	if err := h.ledger.Delete(r.Context(), id); err != nil {
		if errors.Is(err, driven.ErrLedgerEntryNotFound) {
			writeError(w, http.StatusNotFound, "release not found")
			return
		}
		h.logger.Error("failed to delete release", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("ledger entry deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// GetChangelog returns the stored changelog of a package version as text and
// sanitized HTML.
func (h *Handler) GetChangelog(w http.ResponseWriter, r *http.Request) {
	packageID := chi.URLParam(r, "packageID")
	versionCode, err := strconv.ParseInt(chi.URLParam(r, "versionCode"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version code")
		return
	}

	text, err := h.changelogs.ReadChangelog(r.Context(), packageID, versionCode)
	if err != nil {
		if errors.Is(err, driven.ErrInvalidPackageID) {
			writeError(w, http.StatusBadRequest, "invalid package id")
			return
		}
		h.logger.Error("failed to read changelog", "package", packageID, "version_code", versionCode, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if text == "" {
		writeError(w, http.StatusNotFound, "changelog not found")
		return
	}

	writeJSON(w, http.StatusOK, ChangelogResponse{
		PackageID:   packageID,
		VersionCode: versionCode,
		Text:        text,
		HTML:        renderChangelog(text),
	})
}

// Poll runs a full publish cycle now.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	result, err := h.publisher.RunCycle(r.Context())
	h.writeTrigger(w, "", result, err)
}

// PollRepo processes the latest release of one repository now.
func (h *Handler) PollRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := repoParam(w, r)
	if !ok {
		return
	}

	result, err := h.publisher.RefreshRepo(r.Context(), repo)
	h.writeTrigger(w, repo, result, err)
}

// PublishTag processes the release of a repository carrying the given tag.
func (h *Handler) PublishTag(w http.ResponseWriter, r *http.Request) {
	repo, ok := repoParam(w, r)
	if !ok {
		return
	}

	tag := chi.URLParam(r, "tag")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "missing tag")
		return
	}

	result, err := h.publisher.PublishTag(r.Context(), repo, tag)
	h.writeTrigger(w, repo, result, err)
}

func (h *Handler) writeTrigger(w http.ResponseWriter, repo string, result model.CycleResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, TriggerResponse{Cycle: toCycleResponse(result)})
		return
	}

	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("manual publish failed", "repo", repo, "error", err)
	}
	writeJSON(w, status, TriggerResponse{Cycle: toCycleResponse(result), Error: err.Error()})
}

// statusForError maps pipeline sentinels to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, driven.ErrReleaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, driven.ErrVersionCollision):
		return http.StatusConflict
	case errors.Is(err, driven.ErrMalformedRelease), errors.Is(err, driven.ErrCorruptArtifact):
		return http.StatusUnprocessableEntity
	case errors.Is(err, driven.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func repoParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	if !isValidRepoName(fullName) {
		writeError(w, http.StatusBadRequest, "invalid repository name: expected owner/repo format")
		return "", false
	}
	return fullName, true
}

// isValidRepoName validates that name is in owner/repo format where each part
// contains only alphanumeric characters, hyphens, dots, or underscores.
func isValidRepoName(name string) bool {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) != 2 {
		return false
	}

	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return false
		}
		for _, ch := range part {
			if !isValidRepoChar(ch) {
				return false
			}
		}
	}

	return true
}

// isValidRepoChar returns true if the rune is allowed in a repository owner or name.
func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
