package model

import "time"

// LedgerEntry records one release that has been published. Entries are
// append-only and unique on (Repo, Release).
type LedgerEntry struct {
	ID          int64
	Repo        string
	Release     string
	PackageName string
	Version     string
	VersionCode int64
	Date        time.Time
}
