package pod_test

import (
	"fmt"
	"testing"

	"github.com/Awk34/river-pod/pod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// each argument gets its own independent node
func TestFamilyNodesPerArgument(t *testing.T) {
	runs := map[int]int{}
	user := pod.NewFamily("user", func(ref *pod.Ref, id int) (string, error) {
		runs[id]++
		return fmt.Sprintf("user-%d", id), nil
	})

	ct := pod.NewContainer()
	defer ct.Dispose()

	v1, err := pod.Read(ct, user.With(1))
	require.NoError(t, err)
	assert.Equal(t, "user-1", v1)

	v2, err := pod.Read(ct, user.With(2))
	require.NoError(t, err)
	assert.Equal(t, "user-2", v2)

	// same argument hits the same node, no recompute
	_, err = pod.Read(ct, user.With(1))
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 1, 2: 1}, runs)
}

// invalidating one member leaves its siblings cached
func TestFamilyInvalidationIsPerMember(t *testing.T) {
	runs := map[string]int{}
	doc := pod.NewFamily("doc", func(ref *pod.Ref, path string) (int, error) {
		runs[path]++
		return len(path), nil
	})

	ct := pod.NewContainer()
	defer ct.Dispose()

	_, err := pod.Read(ct, doc.With("a.txt"))
	require.NoError(t, err)
	_, err = pod.Read(ct, doc.With("b.txt"))
	require.NoError(t, err)

	pod.Invalidate(ct, doc.With("a.txt"))
	_, err = pod.Read(ct, doc.With("a.txt"))
	require.NoError(t, err)
	_, err = pod.Read(ct, doc.With("b.txt"))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a.txt": 2, "b.txt": 1}, runs)
}

// family members participate in the graph like any other node
func TestFamilyMemberAsDependency(t *testing.T) {
	size := pod.NewState("size", 2)
	square := pod.NewFamily("square", func(ref *pod.Ref, n int) (int, error) {
		base, err := pod.Watch(ref, size)
		if err != nil {
			return 0, err
		}
		return base * n, nil
	})
	total := pod.New("total", func(ref *pod.Ref) (int, error) {
		a, err := pod.Watch(ref, square.With(3))
		if err != nil {
			return 0, err
		}
		b, err := pod.Watch(ref, square.With(4))
		if err != nil {
			return 0, err
		}
		return a + b, nil
	})

	ct := pod.NewContainer()
	defer ct.Dispose()

	v, err := pod.Read(ct, total)
	require.NoError(t, err)
	assert.Equal(t, 14, v)

	require.NoError(t, pod.Update(ct, size, 3))
	v, err = pod.Read(ct, total)
	require.NoError(t, err)
	assert.Equal(t, 21, v)
}
