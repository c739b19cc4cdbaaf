package pool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.bryk.io/hive/internal/pool"
)

func TestPoolExecutesSubmittedTasks(t *testing.T) {
	p := pool.New(4, 16)
	defer p.Stop()

	var count int64
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			atomic.AddInt64(&count, 1)
		}))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&count) == n
	}, time.Second, time.Millisecond)
}

func TestPoolSubmitAfterStopFails(t *testing.T) {
	p := pool.New(2, 4)
	p.Stop()
	err := p.Submit(func(ctx context.Context) {})
	require.Error(t, err)
}
