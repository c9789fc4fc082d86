package pod

import (
	mapset "github.com/deckarep/golang-set/v2"
)

type nodeState uint8

const (
	stateUninitialized nodeState = iota
	stateComputing
	stateReady
	stateFailed
	stateDestroyed
)

func (s nodeState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateComputing:
		return "computing"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// nodeColor is the staleness coloring: clean means the cached value is
// valid, check means an upstream might have changed, dirty means it did.
type nodeColor uint8

const (
	colorClean nodeColor = iota
	colorCheck
	colorDirty
)

// depSet is an edge set; nodes are deduplicated however many times a factory
// re-reads the same dependency.
type depSet = mapset.Set[*node]

func newDepSet() depSet {
	return mapset.NewSet[*node]()
}

// nodeKey identifies one node in a container: resolved definition identity
// plus the family argument, nil for non-family definitions.
type nodeKey struct {
	def uint64
	arg any
}

// node is one instantiated unit of state for a (definition, argument) pair.
type node struct {
	key  nodeKey
	def  anyDef
	arg  any
	seq  uint64 // creation order, container dispose runs in reverse
	gen  uint64 // bumped per recomputation, stale async completions compare against it
	name string

	state nodeState
	color nodeColor
	value any
	err   error

	deps       depSet // nodes read via Watch during the last computation
	dependents depSet // inverse edges
	listeners  []*listener
	disposers  []func() // run LIFO on teardown and before recomputation

	autoDispose   bool
	queuedDispose bool
}

func newNode(key nodeKey, def anyDef, seq uint64) *node {
	return &node{
		key:         key,
		def:         def,
		arg:         key.arg,
		seq:         seq,
		name:        def.Name(),
		state:       stateUninitialized,
		color:       colorDirty,
		deps:        newDepSet(),
		dependents:  newDepSet(),
		autoDispose: def.flags().autoDispose,
	}
}

func (n *node) destroyed() bool {
	return n.state == stateDestroyed
}

// refCount is the auto-dispose accounting: active listeners plus dependents.
func (n *node) refCount() int {
	live := 0
	for _, l := range n.listeners {
		if l.active.Load() {
			live++
		}
	}
	return live + n.dependents.Cardinality()
}

func (n *node) activeListeners() []*listener {
	var out []*listener
	for _, l := range n.listeners {
		if l.active.Load() {
			out = append(out, l)
		}
	}
	return out
}

// takeDisposers returns the dispose callbacks in reverse registration order
// and clears the list.
func (n *node) takeDisposers() []func() {
	if len(n.disposers) == 0 {
		return nil
	}
	out := make([]func(), 0, len(n.disposers))
	for i := len(n.disposers) - 1; i >= 0; i-- {
		out = append(out, n.disposers[i])
	}
	n.disposers = nil
	return out
}

// valueAs extracts a node's cached value for typed callers. A failed node
// yields the zero value and its error.
func valueAs[T any](n *node) (T, error) {
	var zero T
	if n.err != nil {
		return zero, n.err
	}
	if n.value == nil {
		return zero, nil
	}
	return n.value.(T), nil
}
