package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireRelease(t *testing.T) {
	t.Parallel()

	l := NewMemoryLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "conv_1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "conv_1")
	assert.ErrorIs(t, err, ErrConversationBusy)

	// A different conversation is unaffected.
	release2, err := l.Acquire(ctx, "conv_2")
	require.NoError(t, err)
	release2()

	release()

	release, err = l.Acquire(ctx, "conv_1")
	require.NoError(t, err)
	release()
}

func TestMemoryLocker_Concurrent(t *testing.T) {
	t.Parallel()

	l := NewMemoryLocker()
	ctx := context.Background()

	const workers = 32
	var acquired, rejected atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "conv_1")
			if err != nil {
				assert.ErrorIs(t, err, ErrConversationBusy)
				rejected.Add(1)
				return
			}
			acquired.Add(1)
			release()
		}()
	}
	wg.Wait()

	// At least one winner, and every loser saw the busy error.
	assert.GreaterOrEqual(t, acquired.Load(), int32(1))
	assert.Equal(t, int32(workers), acquired.Load()+rejected.Load())
}
