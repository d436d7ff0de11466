package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeInstance struct {
	id     int
	closed bool
}

func (f *fakeInstance) Close() error {
	f.closed = true
	return nil
}

func TestInstancePool_AcquireRelease(t *testing.T) {
	n := 0
	pool, err := NewInstancePool(2, func() (*fakeInstance, error) {
		n++
		return &fakeInstance{id: n}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, pool.Size())

	ctx := context.Background()
	a, err := pool.Acquire(ctx)
	require.NoError(t, err)
	b, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.NotEqual(t, a.id, b.id)

	// 池已空，超时返回
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(timeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(a)
	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, a.id, c.id)
}

func TestInstancePool_SerializesAccess(t *testing.T) {
	pool, err := NewInstancePool(1, func() (*fakeInstance, error) { return &fakeInstance{}, nil })
	require.NoError(t, err)

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.With(context.Background(), func(*fakeInstance) error {
				cur := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&maxActive)
					if cur <= old || atomic.CompareAndSwapInt32(&maxActive, old, cur) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxActive)
}

func TestInstancePool_CreateFailureClosesCreated(t *testing.T) {
	var created []*fakeInstance
	_, err := NewInstancePool(3, func() (*fakeInstance, error) {
		if len(created) == 2 {
			return nil, errors.New("model missing")
		}
		f := &fakeInstance{}
		created = append(created, f)
		return f, nil
	})
	require.Error(t, err)
	for _, f := range created {
		require.True(t, f.closed)
	}
}
