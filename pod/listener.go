package pod

import "sync/atomic"

// listener is one external subscription. The active flag is checked both at
// commit time (snapshot) and at delivery, so a listener stopped between the
// two never fires; it is atomic because delivery runs outside the container
// lock.
type listener struct {
	fn     func(value any, err error)
	active atomic.Bool
}

func (l *listener) notify(v any, err error) {
	l.fn(v, err)
}

type listenConfig struct {
	fireImmediately bool
}

// ListenOption configures a subscription.
type ListenOption func(*listenConfig)

// FireImmediately delivers one synchronous notification with the current
// value at registration time, counted separately from change notifications.
func FireImmediately() ListenOption {
	return func(cfg *listenConfig) {
		cfg.fireImmediately = true
	}
}

// Listen subscribes fn to every committed value change of p's node, in
// registration order, without creating a graph dependency. The node is
// created and computed on demand so the subscription has a current value to
// diff against. The returned stop function is idempotent.
func Listen[T any](c *Container, p Provider[T], fn func(value T, err error), opts ...ListenOption) (stop func()) {
	var cfg listenConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &listener{
		fn: func(v any, err error) {
			var tv T
			if v != nil {
				tv = v.(T)
			}
			fn(tv, err)
		},
	}
	l.active.Store(true)

	var n *node
	err := c.perform("listen", func() error {
		n = c.nodeFor(p)
		c.refresh(n)
		n.listeners = append(n.listeners, l)
		if cfg.fireImmediately {
			c.noteQueue = append(c.noteQueue, queuedNote{targets: []*listener{l}, value: n.value, err: n.err})
		}
		return nil
	})
	if err != nil {
		l.active.Store(false)
		return func() {}
	}

	return func() {
		_ = c.perform("unlisten", func() error {
			if !l.active.Load() {
				return nil
			}
			l.active.Store(false)
			for i, e := range n.listeners {
				if e == l {
					n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
					break
				}
			}
			c.checkAutoDispose(n)
			return nil
		})
	}
}
