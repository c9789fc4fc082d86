package pod_test

import (
	"testing"

	"github.com/Awk34/river-pod/pod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// two reads without an intervening invalidation return the same cached value
func TestReadCachesValue(t *testing.T) {
	callCount := 0
	config := pod.New("config", func(*pod.Ref) (string, error) {
		callCount++
		return "production", nil
	})

	c := pod.NewContainer()
	defer c.Dispose()

	v1, err := pod.Read(c, config)
	require.NoError(t, err)
	v2, err := pod.Read(c, config)
	require.NoError(t, err)

	assert.Equal(t, "production", v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, callCount)
}

// declaring a definition performs no computation
func TestDeclarationIsLazy(t *testing.T) {
	callCount := 0
	pod.New("never-read", func(*pod.Ref) (int, error) {
		callCount++
		return 1, nil
	})
	assert.Equal(t, 0, callCount)
}

// counter defaults to 0, mutating to 1 notifies a prior listener exactly once
func TestStateUpdateNotifiesListener(t *testing.T) {
	counter := pod.NewState("counter", 0)

	c := pod.NewContainer()
	defer c.Dispose()

	v, err := pod.Read(c, counter)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	var seen []int
	stop := pod.Listen(c, counter, func(v int, err error) {
		require.NoError(t, err)
		seen = append(seen, v)
	})
	defer stop()

	require.NoError(t, pod.Update(c, counter, 1))
	assert.Equal(t, []int{1}, seen)
}

// writing an equal value commits nothing
func TestUpdateEqualValueIsSilent(t *testing.T) {
	counter := pod.NewState("counter", 5)

	c := pod.NewContainer()
	defer c.Dispose()

	notifications := 0
	stop := pod.Listen(c, counter, func(int, error) { notifications++ })
	defer stop()

	require.NoError(t, pod.Update(c, counter, 5))
	assert.Equal(t, 0, notifications)

	require.NoError(t, pod.UpdateFn(c, counter, func(v int) int { return v }))
	assert.Equal(t, 0, notifications)

	require.NoError(t, pod.UpdateFn(c, counter, func(v int) int { return v + 1 }))
	assert.Equal(t, 1, notifications)
}

// definitions are identity-keyed, containers are fully isolated
func TestContainerIsolation(t *testing.T) {
	counter := pod.NewState("counter", 0)

	c1 := pod.NewContainer()
	defer c1.Dispose()
	c2 := pod.NewContainer()
	defer c2.Dispose()

	require.NoError(t, pod.Update(c1, counter, 42))

	v1, err := pod.Read(c1, counter)
	require.NoError(t, err)
	v2, err := pod.Read(c2, counter)
	require.NoError(t, err)

	assert.Equal(t, 42, v1)
	assert.Equal(t, 0, v2)
}

// two definitions with identical factories stay distinct
func TestDefinitionIdentity(t *testing.T) {
	factory := func(*pod.Ref) (int, error) { return 7, nil }
	a := pod.New("a", factory)
	b := pod.New("b", factory)

	c := pod.NewContainer()
	defer c.Dispose()

	_, err := pod.Read(c, a)
	require.NoError(t, err)
	_, err = pod.Read(c, b)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Stats().Nodes)
}

// a failing factory caches the error and invalidation retries it
func TestComputationErrorCachedAndRetried(t *testing.T) {
	attempts := 0
	flaky := pod.New("flaky", func(*pod.Ref) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, assert.AnError
		}
		return 10, nil
	})

	c := pod.NewContainer()
	defer c.Dispose()

	_, err := pod.Read(c, flaky)
	assert.ErrorIs(t, err, assert.AnError)

	// the error is cached, not retried per read
	_, err = pod.Read(c, flaky)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, attempts)

	pod.Invalidate(c, flaky)
	v, err := pod.Read(c, flaky)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, attempts)
}

func TestDisposeTearsDownEverything(t *testing.T) {
	var order []string
	first := pod.New("first", func(ref *pod.Ref) (int, error) {
		ref.OnDispose(func() { order = append(order, "first") })
		return 1, nil
	})
	second := pod.New("second", func(ref *pod.Ref) (int, error) {
		ref.OnDispose(func() { order = append(order, "second") })
		return 2, nil
	})

	c := pod.NewContainer()
	_, err := pod.Read(c, first)
	require.NoError(t, err)
	_, err = pod.Read(c, second)
	require.NoError(t, err)

	c.Dispose()

	// reverse creation order
	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, 0, c.Stats().Nodes)

	// second dispose is a no-op
	c.Dispose()
	assert.Equal(t, []string{"second", "first"}, order)

	// operations on a disposed container are usage errors
	_, err = pod.Read(c, first)
	assert.True(t, pod.IsUsageError(err))
	assert.ErrorIs(t, err, pod.ErrContainerDisposed)
	assert.ErrorIs(t, pod.Invalidate(c, first), pod.ErrContainerDisposed)
}

// onDispose callbacks run in reverse registration order, and again on recompute
func TestOnDisposeOrdering(t *testing.T) {
	var order []string
	res := pod.New("resource", func(ref *pod.Ref) (int, error) {
		ref.OnDispose(func() { order = append(order, "a") })
		ref.OnDispose(func() { order = append(order, "b") })
		return 1, nil
	})

	c := pod.NewContainer()
	_, err := pod.Read(c, res)
	require.NoError(t, err)
	assert.Empty(t, order)

	// recomputation winds down the previous value's resources first
	pod.Invalidate(c, res)
	_, err = pod.Read(c, res)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, order)

	c.Dispose()
	assert.Equal(t, []string{"b", "a", "b", "a"}, order)
}

// batched updates coalesce delivery until the batch unwinds
func TestBatchCoalescesNotifications(t *testing.T) {
	a := pod.NewState("a", 1)
	b := pod.NewState("b", 1)
	sum := pod.New("sum", func(ref *pod.Ref) (int, error) {
		av, err := pod.Watch(ref, a)
		if err != nil {
			return 0, err
		}
		bv, err := pod.Watch(ref, b)
		if err != nil {
			return 0, err
		}
		return av + bv, nil
	})

	c := pod.NewContainer()
	defer c.Dispose()

	var seen []int
	stop := pod.Listen(c, sum, func(v int, err error) {
		require.NoError(t, err)
		seen = append(seen, v)
	})
	defer stop()

	c.Batch(func() {
		require.NoError(t, pod.Update(c, a, 2))
		require.NoError(t, pod.Update(c, b, 2))
		assert.Empty(t, seen, "nothing delivered mid-batch")
	})

	// one recomputation against both new values, one notification
	assert.Equal(t, []int{4}, seen)
}
