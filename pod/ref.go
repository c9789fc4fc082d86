package pod

// Ref is the capability object handed to a factory for the duration of one
// computation. Synchronous factories may use it only until they return; a
// call against a stale Ref is a usage error. Refs issued to async factories
// stay usable until the node's generation is superseded or the node is
// destroyed.
type Ref struct {
	c       *Container
	node    *node
	gen     uint64
	async   bool
	revoked bool
}

// Alive reports whether the computation this Ref was issued for is still the
// node's current generation. Async factories should check it before
// producing side effects tied to the node's continued existence.
func (r *Ref) Alive() bool {
	if !r.async {
		return !r.revoked
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return !r.c.disposed && !r.node.destroyed() && r.node.gen == r.gen
}

// OnDispose registers a teardown callback for whatever the computation
// produced. Callbacks run in reverse registration order when the node is
// destroyed, and before the factory re-runs on recomputation; they must not
// call back into the container.
func (r *Ref) OnDispose(fn func()) {
	if !r.async {
		if r.revoked {
			panic(usageErr("onDispose", r.node.name, ErrRefRevoked))
		}
		r.node.disposers = append(r.node.disposers, fn)
		return
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.disposed || r.node.destroyed() || r.node.gen != r.gen {
		return // the value this teardown belongs to will never be committed
	}
	r.node.disposers = append(r.node.disposers, fn)
}

// Logger returns the container's logger for use inside factories.
func (r *Ref) Logger() interface{ Trace(msg string, args ...interface{}) } {
	return r.c.logger
}

// Watch reads p and records a reactive edge: when p's node commits a new
// value, the watching node is staled and recomputes. May only be called
// during the computation the Ref belongs to.
func Watch[T any](r *Ref, p Provider[T]) (T, error) {
	var zero T
	if r.async {
		var v T
		var verr error
		err := r.c.perform("watch", func() error {
			if r.node.destroyed() || r.node.gen != r.gen {
				return usageErr("watch", p.definition().Name(), ErrRefRevoked)
			}
			target, werr := r.c.watchNode(r.node, p)
			if werr != nil {
				verr = werr
				return nil
			}
			v, verr = valueAs[T](target)
			return nil
		})
		if err != nil {
			return zero, err
		}
		return v, verr
	}

	if r.revoked {
		return zero, usageErr("watch", p.definition().Name(), ErrRefRevoked)
	}
	target, err := r.c.watchNode(r.node, p)
	if err != nil {
		return zero, err
	}
	return valueAs[T](target)
}

// ReadOnce reads p without creating an edge: later changes to p do not
// recompute the calling node.
func ReadOnce[T any](r *Ref, p Provider[T]) (T, error) {
	var zero T
	if r.async {
		var v T
		var verr error
		err := r.c.perform("read", func() error {
			if r.node.destroyed() || r.node.gen != r.gen {
				return usageErr("read", p.definition().Name(), ErrRefRevoked)
			}
			target := r.c.nodeFor(p)
			if target.state == stateComputing {
				verr = usageErr("read", target.name, ErrCycle)
				return nil
			}
			r.c.refresh(target)
			v, verr = valueAs[T](target)
			r.c.checkAutoDispose(target)
			return nil
		})
		if err != nil {
			return zero, err
		}
		return v, verr
	}

	if r.revoked {
		return zero, usageErr("read", p.definition().Name(), ErrRefRevoked)
	}
	target := r.c.nodeFor(p)
	if target.state == stateComputing {
		return zero, usageErr("read", target.name, ErrCycle)
	}
	r.c.refresh(target)
	v, verr := valueAs[T](target)
	r.c.checkAutoDispose(target)
	return v, verr
}
