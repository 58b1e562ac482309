package model

import "time"

// CycleResult summarizes one pass over the configured repositories.
type CycleResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Repos      int
	Published  int
	Skipped    int
	Failed     int
	Rebuilt    bool
	Rotated    bool
}

// Changed reports whether the cycle published anything and therefore needs
// an index rebuild.
func (r CycleResult) Changed() bool {
	return r.Published > 0
}
