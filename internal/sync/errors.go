package sync

import "fmt"

// PartialSyncError means some events failed during reconciliation while the
// rest were applied. The run is marked error but remains safely repeatable.
type PartialSyncError struct {
	Failed int
	Total  int
	First  error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("%d of %d events failed, first error: %v", e.Failed, e.Total, e.First)
}

func (e *PartialSyncError) Unwrap() error { return e.First }
