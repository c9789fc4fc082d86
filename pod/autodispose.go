package pod

import "time"

// checkAutoDispose enqueues an auto-dispose node whose reference count just
// reached zero. Disposal is deferred to the end of the current work unit (or
// the configured grace timer) so a transient zero-crossing, such as a
// dependent being rebuilt within the same batch, does not tear the node
// down.
func (c *Container) checkAutoDispose(n *node) {
	if !n.autoDispose || n.destroyed() || n.queuedDispose {
		return
	}
	if n.refCount() > 0 {
		return
	}
	n.queuedDispose = true
	c.disposeQueue = append(c.disposeQueue, n)
}

// flushDisposeQueue commits pending disposals. Each candidate is re-checked:
// a node that picked up a listener or dependent since it was queued stays
// alive. Destroying a node can zero out its own dependencies, so the queue
// drains in rounds.
func (c *Container) flushDisposeQueue() []func() {
	var out []func()
	for len(c.disposeQueue) > 0 {
		queue := c.disposeQueue
		c.disposeQueue = nil
		for _, n := range queue {
			n.queuedDispose = false
			if n.destroyed() || n.refCount() > 0 {
				continue
			}
			out = append(out, c.destroyNode(n)...)
		}
	}
	return out
}

// scheduleDelayedDisposals arms a grace timer per queued node instead of
// disposing at unwind. The timer re-checks liveness, so re-referencing the
// node before it fires cancels the disposal.
func (c *Container) scheduleDelayedDisposals() {
	if len(c.disposeQueue) == 0 {
		return
	}
	queue := c.disposeQueue
	c.disposeQueue = nil
	for _, n := range queue {
		n.queuedDispose = false
		node := n
		time.AfterFunc(c.disposeDelay, func() {
			c.mu.Lock()
			if c.disposed || node.destroyed() || node.refCount() > 0 {
				c.mu.Unlock()
				return
			}
			c.enqueueDelivery(workBatch{disposers: c.destroyNode(node)})
			c.mu.Unlock()
			c.drainDeliveries()
		})
	}
}

// destroyNode removes the node from the table and severs every edge before
// returning its dispose callbacks, already in reverse registration order.
// Bumping the generation strands any in-flight async completion.
func (c *Container) destroyNode(n *node) []func() {
	if n.destroyed() {
		return nil
	}
	n.state = stateDestroyed
	n.color = colorClean
	n.gen++
	delete(c.nodes, n.key)

	for _, dep := range n.deps.ToSlice() {
		dep.dependents.Remove(n)
		c.checkAutoDispose(dep)
	}
	for _, d := range n.dependents.ToSlice() {
		d.deps.Remove(n)
	}
	n.deps.Clear()
	n.dependents.Clear()
	for _, l := range n.listeners {
		l.active.Store(false)
	}
	n.listeners = nil

	c.logger.Trace("node destroyed", "definition", n.name, "arg", n.arg)
	return n.takeDisposers()
}
