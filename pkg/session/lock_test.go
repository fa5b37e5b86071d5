package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/genie/pkg/adapters/memory"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nil, memory.NewStore())
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("conv-%d", i)
		_ = mgr.WithLock(ctx, id, func(context.Context) error { return nil })
		_ = mgr.tryWithLock(ctx, id, func(context.Context) error { return nil })
		_ = mgr.Delete(ctx, id)
	}

	lockCount := len(mgr.locks)
	t.Logf("Conversations: %d, Locks Leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
