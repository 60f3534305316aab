package engine

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// ErrMultitaskReject is returned when an active run exists and the
// requested strategy is "reject" (or is the implicit default).
type ErrMultitaskReject struct {
	ActiveRunID string
}

func (e *ErrMultitaskReject) Error() string {
	return fmt.Sprintf("thread has an active run %s", e.ActiveRunID)
}

// ResolveMultitask inspects the thread's current active run (if any) against
// strategy and either clears the way for a new run or returns
// ErrMultitaskReject. "enqueue" never rejects; the caller is responsible for
// actually queuing the new run behind the active one.
func ResolveMultitask(ctx context.Context, runs store.Runs, threadID string, strategy store.MultitaskStrategy) error {
	active, err := runs.GetActiveRun(ctx, threadID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	switch strategy {
	case store.MultitaskInterrupt:
		_, err := runs.UpdateStatus(ctx, active.RunID, store.RunStatusInterrupted)
		return err
	case store.MultitaskRollback:
		_, err := runs.UpdateStatus(ctx, active.RunID, store.RunStatusError)
		return err
	case store.MultitaskEnqueue:
		return nil
	case store.MultitaskReject, "":
		return &ErrMultitaskReject{ActiveRunID: active.RunID}
	default:
		return &ErrMultitaskReject{ActiveRunID: active.RunID}
	}
}
