package pod

import (
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

var defCounter atomic.Uint64

// newDefID mints the identity token for one declaration site. The token is
// an xxhash of the name salted with a process-wide counter, so two
// definitions sharing a name remain distinct.
func newDefID(name string) uint64 {
	n := defCounter.Add(1)
	return xxhash.Sum64String(fmt.Sprintf("%s#%d", name, n))
}

type defFlags struct {
	autoDispose bool
}

// Option is a declaration-time modifier for a definition.
type Option func(*defFlags)

// AutoDispose tags a definition so its nodes are destroyed once they have no
// listeners and no dependents left.
func AutoDispose() Option {
	return func(f *defFlags) {
		f.autoDispose = true
	}
}

type defBase struct {
	defID   uint64
	defName string
	defOpts defFlags
}

func (d *defBase) ID() uint64      { return d.defID }
func (d *defBase) Name() string    { return d.defName }
func (d *defBase) flags() defFlags { return d.defOpts }

// anyDef is the type-erased view of a definition used for node keying,
// override resolution and logging.
type anyDef interface {
	ID() uint64
	Name() string
	flags() defFlags
}

// syncRunner produces a value synchronously. arg is the family argument, nil
// for non-family definitions.
type syncRunner interface {
	run(ref *Ref, arg any) (any, error)
}

// asyncRunner is implemented by async definitions: pending is the value
// published while the factory runs, runAsync executes off the container
// sequence and returns the value to commit.
type asyncRunner interface {
	pending() any
	runAsync(ref *Ref, arg any) any
}

// anyProvider is something a container can resolve to a node: a definition
// or a family instance.
type anyProvider interface {
	definition() anyDef
	argument() any
}

// Provider is the typed handle passed to Read, Watch, Listen and Invalidate.
// The value method only pins T for type inference; it is never called.
type Provider[T any] interface {
	anyProvider
	value(T)
}

// Definition describes how to produce a value of type T. Declaring one
// performs no computation; identity is by declaration, never by comparing
// factories.
type Definition[T any] struct {
	defBase
	factory func(ref *Ref) (T, error)
}

// New declares a definition backed by factory.
func New[T any](name string, factory func(ref *Ref) (T, error), opts ...Option) *Definition[T] {
	d := &Definition[T]{
		defBase: defBase{defID: newDefID(name), defName: name},
		factory: factory,
	}
	for _, opt := range opts {
		opt(&d.defOpts)
	}
	return d
}

func (d *Definition[T]) definition() anyDef { return d }
func (d *Definition[T]) argument() any      { return nil }
func (d *Definition[T]) value(T)            {}

func (d *Definition[T]) run(ref *Ref, _ any) (any, error) {
	return d.factory(ref)
}

// StateDefinition is a writable source definition: its factory yields the
// initial value and Update replaces it afterwards.
type StateDefinition[T any] struct {
	Definition[T]
}

// NewState declares a writable definition holding initial until updated.
func NewState[T any](name string, initial T, opts ...Option) *StateDefinition[T] {
	s := &StateDefinition[T]{
		Definition[T]{
			defBase: defBase{defID: newDefID(name), defName: name},
			factory: func(*Ref) (T, error) { return initial, nil },
		},
	}
	for _, opt := range opts {
		opt(&s.defOpts)
	}
	return s
}

// FamilyDefinition spawns one independent node per argument value. Arguments
// are compared by value equality and become part of the node key.
type FamilyDefinition[T any, A comparable] struct {
	defBase
	factory func(ref *Ref, arg A) (T, error)
}

// NewFamily declares a parameterized definition.
func NewFamily[T any, A comparable](name string, factory func(ref *Ref, arg A) (T, error), opts ...Option) *FamilyDefinition[T, A] {
	d := &FamilyDefinition[T, A]{
		defBase: defBase{defID: newDefID(name), defName: name},
		factory: factory,
	}
	for _, opt := range opts {
		opt(&d.defOpts)
	}
	return d
}

func (d *FamilyDefinition[T, A]) run(ref *Ref, arg any) (any, error) {
	return d.factory(ref, arg.(A))
}

// With binds an argument, yielding the handle for that family member.
func (d *FamilyDefinition[T, A]) With(arg A) Provider[T] {
	return familyInstance[T]{def: d, arg: arg}
}

type familyInstance[T any] struct {
	def anyDef
	arg any
}

func (f familyInstance[T]) definition() anyDef { return f.def }
func (f familyInstance[T]) argument() any      { return f.arg }
func (f familyInstance[T]) value(T)            {}

// AsyncState is the phase of an asynchronous computation.
type AsyncState uint8

const (
	AsyncPending AsyncState = iota
	AsyncReady
	AsyncFailed
)

func (s AsyncState) String() string {
	switch s {
	case AsyncPending:
		return "pending"
	case AsyncReady:
		return "ready"
	case AsyncFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AsyncValue is the cached value of an async definition's node. It holds
// Pending while the factory runs, then Ready or Failed.
type AsyncValue[T any] struct {
	State AsyncState
	Value T
	Err   error
}

// AsyncDefinition produces its value off the container sequence. Reading one
// yields an AsyncValue that starts Pending; completion is committed back on
// the container sequence, and completions whose generation was superseded by
// an invalidation or disposal are discarded.
type AsyncDefinition[T any] struct {
	defBase
	factory func(ref *Ref) (T, error)
}

// NewAsync declares an asynchronous definition.
func NewAsync[T any](name string, factory func(ref *Ref) (T, error), opts ...Option) *AsyncDefinition[T] {
	d := &AsyncDefinition[T]{
		defBase: defBase{defID: newDefID(name), defName: name},
		factory: factory,
	}
	for _, opt := range opts {
		opt(&d.defOpts)
	}
	return d
}

func (d *AsyncDefinition[T]) definition() anyDef  { return d }
func (d *AsyncDefinition[T]) argument() any       { return nil }
func (d *AsyncDefinition[T]) value(AsyncValue[T]) {}

func (d *AsyncDefinition[T]) pending() any {
	return AsyncValue[T]{State: AsyncPending}
}

func (d *AsyncDefinition[T]) runAsync(ref *Ref, _ any) any {
	v, err := d.factory(ref)
	if err != nil {
		return AsyncValue[T]{State: AsyncFailed, Err: err}
	}
	return AsyncValue[T]{State: AsyncReady, Value: v}
}
