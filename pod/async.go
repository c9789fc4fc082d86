package pod

// commitAsync lands an async factory's result back on the container
// sequence. The commit is dropped silently when the generation it was
// computed for has been superseded by an invalidation or disposal: the value
// belongs to a computation that no longer exists.
func (c *Container) commitAsync(n *node, gen uint64, result any) {
	c.mu.Lock()
	if c.disposed || n.destroyed() || n.gen != gen {
		c.logger.Trace("stale async completion discarded", "definition", n.name, "generation", gen)
		c.mu.Unlock()
		return
	}
	c.depth++
	prevValue, prevErr := n.value, n.err
	c.commitValue(n, result, nil, true, prevValue, prevErr)
	c.enqueueDelivery(c.unwind())
	c.mu.Unlock()
	c.drainDeliveries()
}
