package synclock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeExternal struct {
	mu sync.Mutex
}

func (f *fakeExternal) TryLock() bool { return f.mu.TryLock() }
func (f *fakeExternal) Unlock()       { f.mu.Unlock() }

func TestCoordinator_UnownedUsesInternalMutex(t *testing.T) {
	ext := &fakeExternal{}
	c := New(ext)
	tok, err := c.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, tokenInternal, tok)
	c.Release(tok)
}

func TestCoordinator_OwnedSpinsOnExternal(t *testing.T) {
	ext := &fakeExternal{}
	c := New(ext)
	c.SetOwned()
	tok, err := c.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, tokenExternal, tok)
	c.Release(tok)
}

func TestCoordinator_AcquireFailsWhenExternalHeldAndContextCancelled(t *testing.T) {
	ext := &fakeExternal{}
	require.True(t, ext.TryLock())
	c := New(ext)
	c.SetOwned()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Acquire(ctx)
	require.Error(t, err)
}

func TestCoordinator_UnsetOwnedMidSpinFallsBackToInternal(t *testing.T) {
	ext := &fakeExternal{}
	require.True(t, ext.TryLock())
	c := New(ext)
	c.SetOwned()

	go func() {
		time.Sleep(15 * time.Millisecond)
		c.UnsetOwned()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tok, err := c.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, tokenInternal, tok)
	c.Release(tok)
}
