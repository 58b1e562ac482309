package driven

import "context"

// RepoListSource supplies the repository identifiers (owner/name) to poll.
// It is consulted at the start of every cycle.
type RepoListSource interface {
	List(ctx context.Context) ([]string, error)
}
