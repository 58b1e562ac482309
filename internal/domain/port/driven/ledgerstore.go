package driven

import (
	"context"
	"errors"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
)

// Sentinel errors returned by LedgerStore implementations.
var (
	// ErrReleaseAlreadyRecorded indicates an entry with the same repo and release exists.
	ErrReleaseAlreadyRecorded = errors.New("release already recorded")

	// ErrLedgerEntryNotFound indicates the requested ledger entry does not exist.
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")
)

// LedgerStore defines the driven port for the published-release ledger.
// Record returns ErrReleaseAlreadyRecorded on a duplicate (repo, release).
// Delete returns ErrLedgerEntryNotFound if no entry has the id.
type LedgerStore interface {
	Exists(ctx context.Context, repo, release string) (bool, error)
	Record(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error)
	ListAll(ctx context.Context) ([]model.LedgerEntry, error)
	ListByPackage(ctx context.Context, packageName string) ([]model.LedgerEntry, error)
	Delete(ctx context.Context, id int64) error
}
