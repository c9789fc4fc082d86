package pod

import (
	"reflect"
)

// refresh brings a node's cached value up to date. A check-colored node
// first refreshes its dependencies; if one of them commits a change it marks
// this node dirty and only then does the factory re-run. This is what keeps
// reads glitch-free: by the time a node recomputes, every upstream value it
// will see is already current.
func (c *Container) refresh(n *node) {
	if n.destroyed() || n.state == stateComputing {
		return
	}
	if n.state == stateUninitialized {
		c.recompute(n)
		return
	}
	if n.color == colorClean {
		return
	}
	if n.color == colorCheck {
		for _, dep := range n.deps.ToSlice() {
			c.refresh(dep)
			if n.color == colorDirty {
				break
			}
		}
	}
	if n.color == colorDirty {
		c.recompute(n)
	}
	n.color = colorClean
}

// recompute runs the factory inside a fresh computation context. The prior
// dependency edge set is cleared first and rebuilt by the Watch calls the
// factory makes; afterwards the old set is diffed and this node is dropped
// from the dependent set of anything it no longer reads.
func (c *Container) recompute(n *node) {
	n.gen++
	gen := n.gen
	prevValue, prevErr := n.value, n.err
	hadValue := n.state == stateReady || n.state == stateFailed
	n.state = stateComputing
	n.color = colorClean

	// Resources tied to the superseded value wind down before the new run.
	// These callbacks execute on the container sequence and must not call
	// back into the container.
	for _, fn := range n.takeDisposers() {
		fn()
	}

	oldDeps := n.deps
	n.deps = newDepSet()

	c.logger.Trace("recompute", "definition", n.name, "arg", n.arg, "generation", gen)

	if ar, ok := n.def.(asyncRunner); ok {
		ref := &Ref{c: c, node: n, gen: gen, async: true}
		c.commitValue(n, ar.pending(), nil, hadValue, prevValue, prevErr)
		c.diffDeps(n, oldDeps)
		go func() {
			c.commitAsync(n, gen, ar.runAsync(ref, n.arg))
		}()
		return
	}

	ref := &Ref{c: c, node: n, gen: gen}
	v, err := n.def.(syncRunner).run(ref, n.arg)
	ref.revoked = true

	c.diffDeps(n, oldDeps)
	c.commitValue(n, v, err, hadValue, prevValue, prevErr)
}

func (c *Container) diffDeps(n *node, oldDeps depSet) {
	for _, od := range oldDeps.ToSlice() {
		if !n.deps.Contains(od) {
			od.dependents.Remove(n)
			c.checkAutoDispose(od)
		}
	}
}

// commitValue installs the computation result. A changed value queues one
// notification per active listener and stales the dependents; an equal value
// commits nothing observable. Every failed computation counts as a change.
func (c *Container) commitValue(n *node, v any, err error, hadValue bool, prevValue any, prevErr error) {
	if err != nil {
		n.state = stateFailed
	} else {
		n.state = stateReady
	}
	n.value = v
	n.err = err

	changed := !hadValue || err != nil || prevErr != nil || !reflect.DeepEqual(prevValue, v)
	if !changed {
		return
	}
	if targets := n.activeListeners(); len(targets) > 0 {
		c.noteQueue = append(c.noteQueue, queuedNote{targets: targets, value: v, err: err})
	}
	c.markStale(n)
}

// write replaces a state node's value directly, bypassing its factory.
func (c *Container) write(n *node, v any) {
	if n.state == stateReady && n.err == nil && reflect.DeepEqual(n.value, v) {
		return
	}
	n.gen++
	prevValue, prevErr := n.value, n.err
	hadValue := n.state == stateReady || n.state == stateFailed
	c.commitValue(n, v, nil, hadValue, prevValue, prevErr)
}

// markStale colors direct dependents dirty and everything beyond them check.
// A check node decides at read time whether anything actually changed.
func (c *Container) markStale(n *node) {
	type mark struct {
		n     *node
		color nodeColor
	}
	stack := make([]mark, 0, 8)
	for _, d := range n.dependents.ToSlice() {
		stack = append(stack, mark{d, colorDirty})
	}
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if m.n.destroyed() || m.n.color >= m.color {
			continue
		}
		m.n.color = m.color
		for _, d := range m.n.dependents.ToSlice() {
			stack = append(stack, mark{d, colorCheck})
		}
	}
}

// watchNode resolves, refreshes and links a dependency edge from a computing
// node. Watching a node that is currently computing means the factory call
// stack reached back into itself: a dependency cycle, fatal for this node.
func (c *Container) watchNode(from *node, p anyProvider) (*node, error) {
	target := c.nodeFor(p)
	if target.state == stateComputing {
		return nil, usageErr("watch", target.name, ErrCycle)
	}
	c.refresh(target)
	from.deps.Add(target)
	target.dependents.Add(from)
	return target, nil
}
