package engine

import (
	"context"

	"github.com/codeready-toolchain/agentrt/pkg/store"
)

// storeCheckpointer implements Checkpointer on top of pkg/store's thread
// state snapshots. It is the graphs' only route to
// Threads().GetState/AddStateSnapshot — graphs never touch the store
// directly, preserving the external-collaborator boundary.
type storeCheckpointer struct {
	threads store.Threads
}

// NewStoreCheckpointer returns a Checkpointer backed by threads.
func NewStoreCheckpointer(threads store.Threads) Checkpointer {
	return &storeCheckpointer{threads: threads}
}

func (c *storeCheckpointer) Load(ctx context.Context, threadID string) (store.JSONMap, error) {
	snap, err := c.threads.GetState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return snap.Values, nil
}

func (c *storeCheckpointer) Save(ctx context.Context, threadID string, values store.JSONMap) error {
	_, err := c.threads.AddStateSnapshot(ctx, threadID, store.JSONMap{"values": values})
	return err
}
