// Package pod is a reactive dependency-graph runtime: definitions declare
// how to produce values, containers instantiate them lazily as nodes, and
// dependency edges discovered during computation drive incremental
// recomputation and change notification.
package pod

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Container owns the node table and the override table. It is the unit of
// isolation: independent containers share nothing, so tests get a fresh one
// instead of resetting globals. All graph mutations are serialized behind a
// single mutex; listener and dispose callbacks run outside it so they may
// reenter the container.
type Container struct {
	mu        sync.Mutex
	nodes     map[nodeKey]*node
	overrides map[uint64]anyDef
	seq       uint64
	depth     int // work-unit nesting, notifications drain when it unwinds to zero
	disposed  bool

	noteQueue    []queuedNote
	disposeQueue []*node
	disposeDelay time.Duration
	logger       hclog.Logger

	// Delivery runs outside mu so callbacks may reenter the container, but
	// batches must reach listeners in commit order even when an async
	// completion races the operation that superseded it. Batches are
	// enqueued while mu is still held and drained by a single goroutine.
	deliverMu     sync.Mutex
	deliveryQueue []workBatch
	delivering    bool
}

// ContainerOption configures a container at construction.
type ContainerOption func(*Container)

// WithLogger installs a logger; node lifecycle is reported at trace level.
func WithLogger(l hclog.Logger) ContainerOption {
	return func(c *Container) {
		c.logger = l
	}
}

// WithDisposeDelay replaces the default end-of-work-unit auto-dispose flush
// with a grace timer. Zero restores the default.
func WithDisposeDelay(d time.Duration) ContainerOption {
	return func(c *Container) {
		c.disposeDelay = d
	}
}

// Override redirects every lookup of original to replacement before any node
// is created; original's factory never executes in this container. Both
// sides must be plain definitions, not family instances.
func Override[T any](original, replacement Provider[T]) ContainerOption {
	return func(c *Container) {
		if original.argument() != nil || replacement.argument() != nil {
			panic(usageErr("override", original.definition().Name(),
				fmt.Errorf("family instances cannot be overridden, override the family definition")))
		}
		c.overrides[original.definition().ID()] = replacement.definition()
	}
}

// OverrideValue redirects original to a definition returning a constant.
func OverrideValue[T any](original Provider[T], value T) ContainerOption {
	name := original.definition().Name() + ".override"
	repl := New(name, func(*Ref) (T, error) { return value, nil })
	return func(c *Container) {
		c.overrides[original.definition().ID()] = repl
	}
}

// OverrideFamily redirects a whole family; every argument resolves against
// the replacement's factory.
func OverrideFamily[T any, A comparable](original, replacement *FamilyDefinition[T, A]) ContainerOption {
	return func(c *Container) {
		c.overrides[original.ID()] = replacement
	}
}

// NewContainer builds a container. Override chains are validated here; a
// chain that revisits a definition panics with a UsageError.
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{
		nodes:     make(map[nodeKey]*node),
		overrides: make(map[uint64]anyDef),
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for id := range c.overrides {
		seen := map[uint64]bool{id: true}
		cur := id
		for {
			next, ok := c.overrides[cur]
			if !ok {
				break
			}
			if seen[next.ID()] {
				panic(usageErr("override", next.Name(), fmt.Errorf("override chain forms a cycle")))
			}
			seen[next.ID()] = true
			cur = next.ID()
		}
	}
	return c
}

// resolve applies the override table, following chains.
func (c *Container) resolve(d anyDef) anyDef {
	for {
		next, ok := c.overrides[d.ID()]
		if !ok {
			return d
		}
		d = next
	}
}

// nodeFor looks up or lazily creates the node for a provider.
func (c *Container) nodeFor(p anyProvider) *node {
	def := c.resolve(p.definition())
	key := nodeKey{def: def.ID(), arg: p.argument()}
	if n, ok := c.nodes[key]; ok {
		return n
	}
	c.seq++
	n := newNode(key, def, c.seq)
	c.nodes[key] = n
	c.logger.Trace("node created", "definition", n.name, "arg", n.arg)
	return n
}

// queuedNote is one committed change awaiting delivery; the listener set is
// snapshotted at commit time so notification counts stay exact.
type queuedNote struct {
	targets []*listener
	value   any
	err     error
}

type workBatch struct {
	notes     []queuedNote
	disposers []func()
}

// perform runs fn as one work unit under the container lock, then delivers
// whatever the unit committed after the lock is released.
func (c *Container) perform(op string, fn func() error) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return usageErr(op, "", ErrContainerDisposed)
	}
	c.depth++
	err := fn()
	c.enqueueDelivery(c.unwind())
	c.mu.Unlock()
	c.drainDeliveries()
	return err
}

// unwind closes one nesting level. When the outermost level unwinds it
// settles listener-bearing stale nodes, flushes the auto-dispose queue and
// hands the queued notifications to the caller.
func (c *Container) unwind() workBatch {
	c.depth--
	if c.depth > 0 {
		return workBatch{}
	}
	c.settle()
	var b workBatch
	b.notes = c.noteQueue
	c.noteQueue = nil
	if c.disposeDelay == 0 {
		b.disposers = c.flushDisposeQueue()
	} else {
		c.scheduleDelayedDisposals()
	}
	return b
}

// settle re-validates every stale node that something is listening to, in
// creation order, so listeners observe the new state before the mutating
// call returns. Recomputation can stale further nodes, hence the loop.
func (c *Container) settle() {
	for {
		var stale []*node
		for _, n := range c.nodes {
			if !n.destroyed() && n.color != colorClean && len(n.activeListeners()) > 0 {
				stale = append(stale, n)
			}
		}
		if len(stale) == 0 {
			return
		}
		sort.Slice(stale, func(i, j int) bool { return stale[i].seq < stale[j].seq })
		for _, n := range stale {
			c.refresh(n)
		}
	}
}

// enqueueDelivery is called with mu held so the queue order matches commit
// order.
func (c *Container) enqueueDelivery(b workBatch) {
	if len(b.notes) == 0 && len(b.disposers) == 0 {
		return
	}
	c.deliverMu.Lock()
	c.deliveryQueue = append(c.deliveryQueue, b)
	c.deliverMu.Unlock()
}

// drainDeliveries runs queued callbacks without holding mu. Only one
// goroutine drains at a time; reentrant calls from inside a callback enqueue
// and return, the outer drain picks their batches up in order.
func (c *Container) drainDeliveries() {
	c.deliverMu.Lock()
	if c.delivering {
		c.deliverMu.Unlock()
		return
	}
	c.delivering = true
	for len(c.deliveryQueue) > 0 {
		b := c.deliveryQueue[0]
		c.deliveryQueue = c.deliveryQueue[1:]
		c.deliverMu.Unlock()

		for _, note := range b.notes {
			for _, l := range note.targets {
				if l.active.Load() {
					l.notify(note.value, note.err)
				}
			}
		}
		for _, fn := range b.disposers {
			fn()
		}

		c.deliverMu.Lock()
	}
	c.delivering = false
	c.deliverMu.Unlock()
}

// Batch coalesces notifications and auto-dispose flushes across several
// operations: nothing is delivered until fn returns.
func (c *Container) Batch(fn func()) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		fn()
		return
	}
	c.depth++
	c.mu.Unlock()

	fn()

	c.mu.Lock()
	c.enqueueDelivery(c.unwind())
	c.mu.Unlock()
	c.drainDeliveries()
}

// Dispose tears the container down: every node is destroyed in reverse
// creation order and its dispose callbacks run. Disposing twice is a no-op.
func (c *Container) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	all := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })
	var disposers []func()
	for _, n := range all {
		disposers = append(disposers, c.destroyNode(n)...)
	}
	c.noteQueue = nil
	c.disposeQueue = nil
	c.enqueueDelivery(workBatch{disposers: disposers})
	c.mu.Unlock()
	c.drainDeliveries()
}

// Stats reports container occupancy, mostly for tests and benchmarks.
type Stats struct {
	Nodes int
}

func (c *Container) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Nodes: len(c.nodes)}
}

// Read returns the provider's current value, creating and computing its node
// on demand. No reactive edge is established.
func Read[T any](c *Container, p Provider[T]) (T, error) {
	var v T
	var verr error
	err := c.perform("read", func() error {
		n := c.nodeFor(p)
		c.refresh(n)
		v, verr = valueAs[T](n)
		c.checkAutoDispose(n)
		return nil
	})
	if err != nil {
		return v, err
	}
	return v, verr
}

// Update writes a new value into a state definition's node and propagates to
// dependents and listeners. Writing an equal value commits nothing.
func Update[T any](c *Container, d *StateDefinition[T], value T) error {
	return c.perform("update", func() error {
		n := c.nodeFor(d)
		c.refresh(n)
		c.write(n, value)
		c.checkAutoDispose(n)
		return nil
	})
}

// UpdateFn writes the result of fn applied to the current value.
func UpdateFn[T any](c *Container, d *StateDefinition[T], fn func(T) T) error {
	return c.perform("update", func() error {
		n := c.nodeFor(d)
		c.refresh(n)
		cur, _ := valueAs[T](n)
		c.write(n, fn(cur))
		c.checkAutoDispose(n)
		return nil
	})
}

// Invalidate forces recomputation of the provider's node: the node is marked
// dirty and dependents are staled. Nodes with listeners recompute before the
// call returns; pure intermediate nodes recompute on next access.
func Invalidate[T any](c *Container, p Provider[T]) error {
	return c.perform("invalidate", func() error {
		def := c.resolve(p.definition())
		key := nodeKey{def: def.ID(), arg: p.argument()}
		n, ok := c.nodes[key]
		if !ok || n.destroyed() {
			return nil
		}
		n.color = colorDirty
		c.markStale(n)
		c.checkAutoDispose(n)
		return nil
	})
}
