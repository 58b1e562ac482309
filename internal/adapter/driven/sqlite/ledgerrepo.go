package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LedgerStore = (*LedgerRepo)(nil)

// ledgerDateFormat is the layout of the date column.
const ledgerDateFormat = "2006-01-02 15:04:05"

// LedgerRepo is the SQLite implementation of the LedgerStore port interface.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new LedgerRepo backed by the given DB.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// Exists reports whether a release of repo has already been recorded.
func (r *LedgerRepo) Exists(ctx context.Context, repo, release string) (bool, error) {
	const query = `SELECT COUNT(*) FROM installed_versions WHERE repo = ? AND release = ?`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, repo, release).Scan(&count); err != nil {
		return false, fmt.Errorf("check release %s %q: %w", repo, release, err)
	}

	return count > 0, nil
}

// Record appends an entry and returns it with its assigned ID. A zero Date is
// replaced by the current local time.
func (r *LedgerRepo) Record(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	const query = `INSERT INTO installed_versions (repo, release, packageName, version, versionCode, date)
		VALUES (?, ?, ?, ?, ?, ?)`

	if entry.Date.IsZero() {
		entry.Date = time.Now()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		entry.Repo,
		entry.Release,
		entry.PackageName,
		entry.Version,
		entry.VersionCode,
		entry.Date.Format(ledgerDateFormat),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.LedgerEntry{}, fmt.Errorf("record release %s %q: %w", entry.Repo, entry.Release, driven.ErrReleaseAlreadyRecorded)
		}
		return model.LedgerEntry{}, fmt.Errorf("record release %s %q: %w", entry.Repo, entry.Release, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("read inserted id: %w", err)
	}
	entry.ID = id
	entry.Date = entry.Date.Truncate(time.Second)

	return entry, nil
}

// ListAll returns every ledger entry in insertion order.
func (r *LedgerRepo) ListAll(ctx context.Context) ([]model.LedgerEntry, error) {
	const query = `SELECT id, repo, release, packageName, version, versionCode, date
		FROM installed_versions ORDER BY id`

	return r.list(ctx, query)
}

// ListByPackage returns the entries published for one package in insertion order.
func (r *LedgerRepo) ListByPackage(ctx context.Context, packageName string) ([]model.LedgerEntry, error) {
	const query = `SELECT id, repo, release, packageName, version, versionCode, date
		FROM installed_versions WHERE packageName = ? ORDER BY id`

	return r.list(ctx, query, packageName)
}

// Delete removes one entry by ID. It exists for operators who need a release
// to be published again; the pipeline itself never deletes.
func (r *LedgerRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM installed_versions WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete ledger entry %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete ledger entry %d: %w", id, driven.ErrLedgerEntryNotFound)
	}

	return nil
}

func (r *LedgerRepo) list(ctx context.Context, query string, args ...any) ([]model.LedgerEntry, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return entries, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(s scanner) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	var date string

	err := s.Scan(&entry.ID, &entry.Repo, &entry.Release, &entry.PackageName, &entry.Version, &entry.VersionCode, &date)
	if err != nil {
		return nil, err
	}

	entry.Date, err = parseTime(date)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}

	return &entry, nil
}

// parseTime tries multiple SQLite datetime formats. Ledger dates carry no
// zone and are read back as local time.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		ledgerDateFormat,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.ParseInLocation(format, s, time.Local); err == nil {
			return t, nil
		}
	}

	for _, format := range []string{time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
