package starlark

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func noPrint(string) {}

func TestThreadPool_RecyclesFinishedThreads(t *testing.T) {
	pool := newThreadPool(2)
	var seen []*starlark.Thread
	record := func(th *starlark.Thread) (starlark.Value, error) {
		seen = append(seen, th)
		return starlark.None, nil
	}

	_, err := pool.run(context.Background(), "/app/a.txt", noPrint, record)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.idleCount())
	assert.Empty(t, seen[0].Name, "recycled threads forget their module")

	_, err = pool.run(context.Background(), "/app/b.txt", noPrint, record)
	require.NoError(t, err)
	assert.Same(t, seen[0], seen[1])
	assert.EqualValues(t, 1, pool.created.Load())
}

func TestThreadPool_NamesThreadAfterModule(t *testing.T) {
	pool := newThreadPool(0)
	var printed []string
	_, err := pool.run(context.Background(), "/app/a.txt", func(msg string) { printed = append(printed, msg) },
		func(th *starlark.Thread) (starlark.Value, error) {
			assert.Equal(t, "/app/a.txt", th.Name)
			th.Print(th, "hello")
			return starlark.None, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, printed)
}

func TestThreadPool_DropsCancelledThread(t *testing.T) {
	pool := newThreadPool(0)
	ctx, cancel := context.WithCancel(context.Background())

	var cancelled *starlark.Thread
	_, err := pool.run(ctx, "/app/slow.txt", noPrint, func(th *starlark.Thread) (starlark.Value, error) {
		cancelled = th
		cancel()
		<-ctx.Done()
		return nil, errors.New("interrupted")
	})
	require.Error(t, err)
	assert.Zero(t, pool.idleCount(), "cancelled threads are never recycled")

	_, err = pool.run(context.Background(), "/app/next.txt", noPrint, func(th *starlark.Thread) (starlark.Value, error) {
		assert.NotSame(t, cancelled, th)
		return starlark.None, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, pool.created.Load())
}

func TestThreadPool_BoundsIdleThreads(t *testing.T) {
	pool := newThreadPool(3)
	release := make(chan struct{})
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.run(context.Background(), "/app/x.txt", noPrint, func(*starlark.Thread) (starlark.Value, error) {
				<-release
				return starlark.None, nil
			})
		}()
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, pool.idleCount(), 3)
	assert.Equal(t, defaultIdleThreads, newThreadPool(0).maxIdle)
}
