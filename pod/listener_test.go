package pod_test

import (
	"testing"

	"github.com/Awk34/river-pod/pod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listeners fire once per committed change, in registration order
func TestListenerOrderAndExactness(t *testing.T) {
	counter := pod.NewState("counter", 0)

	ct := pod.NewContainer()
	defer ct.Dispose()

	var order []string
	stopA := pod.Listen(ct, counter, func(v int, err error) {
		order = append(order, "a")
	})
	defer stopA()
	stopB := pod.Listen(ct, counter, func(v int, err error) {
		order = append(order, "b")
	})
	defer stopB()

	require.NoError(t, pod.Update(ct, counter, 1))
	assert.Equal(t, []string{"a", "b"}, order)

	require.NoError(t, pod.Update(ct, counter, 2))
	assert.Equal(t, []string{"a", "b", "a", "b"}, order)
}

// FireImmediately delivers the current value to the new listener only
func TestFireImmediately(t *testing.T) {
	counter := pod.NewState("counter", 41)

	ct := pod.NewContainer()
	defer ct.Dispose()

	var silent, eager []int
	stopSilent := pod.Listen(ct, counter, func(v int, err error) {
		silent = append(silent, v)
	})
	defer stopSilent()
	stopEager := pod.Listen(ct, counter, func(v int, err error) {
		eager = append(eager, v)
	}, pod.FireImmediately())
	defer stopEager()

	assert.Empty(t, silent)
	assert.Equal(t, []int{41}, eager)

	require.NoError(t, pod.Update(ct, counter, 42))
	assert.Equal(t, []int{42}, silent)
	assert.Equal(t, []int{41, 42}, eager)
}

// stopping a listener is idempotent and ends delivery
func TestStopIsIdempotent(t *testing.T) {
	counter := pod.NewState("counter", 0)

	ct := pod.NewContainer()
	defer ct.Dispose()

	var got []int
	stop := pod.Listen(ct, counter, func(v int, err error) {
		got = append(got, v)
	})

	require.NoError(t, pod.Update(ct, counter, 1))
	stop()
	stop()
	require.NoError(t, pod.Update(ct, counter, 2))
	assert.Equal(t, []int{1}, got)
}

// listeners observe factory errors as well as values
func TestListenerReceivesErrors(t *testing.T) {
	mode := pod.NewState("mode", 0)
	risky := pod.New("risky", func(ref *pod.Ref) (int, error) {
		m, err := pod.Watch(ref, mode)
		if err != nil {
			return 0, err
		}
		if m < 0 {
			return 0, assert.AnError
		}
		return m * 10, nil
	})

	ct := pod.NewContainer()
	defer ct.Dispose()

	type event struct {
		v   int
		err error
	}
	var events []event
	stop := pod.Listen(ct, risky, func(v int, err error) {
		events = append(events, event{v, err})
	})
	defer stop()

	require.NoError(t, pod.Update(ct, mode, 2))
	require.NoError(t, pod.Update(ct, mode, -1))
	require.NoError(t, pod.Update(ct, mode, 3))

	require.Len(t, events, 3)
	assert.Equal(t, event{20, nil}, events[0])
	assert.ErrorIs(t, events[1].err, assert.AnError)
	assert.Equal(t, event{30, nil}, events[2])
}

// a listener on a derived node drives eager recomputation
func TestListenerOnDerivedNode(t *testing.T) {
	base := pod.NewState("base", 1)
	doubled := pod.New("doubled", func(ref *pod.Ref) (int, error) {
		v, err := pod.Watch(ref, base)
		return v * 2, err
	})

	ct := pod.NewContainer()
	defer ct.Dispose()

	var got []int
	stop := pod.Listen(ct, doubled, func(v int, err error) {
		got = append(got, v)
	})
	defer stop()

	require.NoError(t, pod.Update(ct, base, 2))
	require.NoError(t, pod.Update(ct, base, 3))
	assert.Equal(t, []int{4, 6}, got)
}

// callbacks may re-enter the container
func TestListenerReentrancy(t *testing.T) {
	trigger := pod.NewState("trigger", 0)
	echo := pod.NewState("echo", 0)

	ct := pod.NewContainer()
	defer ct.Dispose()

	var echoed []int
	stopEcho := pod.Listen(ct, echo, func(v int, err error) {
		echoed = append(echoed, v)
	})
	defer stopEcho()

	stop := pod.Listen(ct, trigger, func(v int, err error) {
		_ = pod.Update(ct, echo, v*100)
	})
	defer stop()

	require.NoError(t, pod.Update(ct, trigger, 1))
	require.NoError(t, pod.Update(ct, trigger, 2))
	assert.Equal(t, []int{100, 200}, echoed)
}
