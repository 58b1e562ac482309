package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// LedgerEntryResponse is the JSON representation of a published release.
type LedgerEntryResponse struct {
	ID          int64  `json:"id"`
	Repo        string `json:"repo"`
	Release     string `json:"release"`
	PackageName string `json:"package_name"`
	Version     string `json:"version"`
	VersionCode int64  `json:"version_code"`
	Date        string `json:"date"`
}

// CycleResponse is the JSON representation of a publish cycle.
type CycleResponse struct {
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Repos      int    `json:"repos"`
	Published  int    `json:"published"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Rebuilt    bool   `json:"rebuilt"`
	Rotated    bool   `json:"rotated"`
}

// StatusResponse reports the most recent cycle, if any has completed.
type StatusResponse struct {
	HasRun    bool           `json:"has_run"`
	LastCycle *CycleResponse `json:"last_cycle,omitempty"`
}

// TriggerResponse is returned by the manual poll and publish endpoints.
// Error is set when the requested repository could not be processed.
type TriggerResponse struct {
	Cycle CycleResponse `json:"cycle"`
	Error string        `json:"error,omitempty"`
}

// ChangelogResponse carries the stored changelog of one package version.
type ChangelogResponse struct {
	PackageID   string `json:"package_id"`
	VersionCode int64  `json:"version_code"`
	Text        string `json:"text"`
	HTML        string `json:"html"`
}

func toLedgerEntryResponse(e model.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:          e.ID,
		Repo:        e.Repo,
		Release:     e.Release,
		PackageName: e.PackageName,
		Version:     e.Version,
		VersionCode: e.VersionCode,
		Date:        e.Date.Format(time.DateTime),
	}
}

func toLedgerResponses(entries []model.LedgerEntry) []LedgerEntryResponse {
	resp := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toLedgerEntryResponse(e))
	}
	return resp
}

func toCycleResponse(c model.CycleResult) CycleResponse {
	resp := CycleResponse{
		StartedAt: c.StartedAt.UTC().Format(time.RFC3339),
		Repos:     c.Repos,
		Published: c.Published,
		Skipped:   c.Skipped,
		Failed:    c.Failed,
		Rebuilt:   c.Rebuilt,
		Rotated:   c.Rotated,
	}
	if !c.FinishedAt.IsZero() {
		resp.FinishedAt = c.FinishedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
