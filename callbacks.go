package grant

import "context"

// Hook names one point in the lifecycle callback registry, in execution
// order.
type Hook string

const (
	HookAfterInitialize Hook = "after_initialize"
	HookAfterFind       Hook = "after_find"

	HookBeforeValidation Hook = "before_validation"
	HookAfterValidation  Hook = "after_validation"

	HookBeforeSave Hook = "before_save"
	HookAroundSave Hook = "around_save"
	HookAfterSave  Hook = "after_save"

	HookBeforeCreate Hook = "before_create"
	HookAroundCreate Hook = "around_create"
	HookAfterCreate  Hook = "after_create"

	HookBeforeUpdate Hook = "before_update"
	HookAroundUpdate Hook = "around_update"
	HookAfterUpdate  Hook = "after_update"

	HookBeforeDestroy Hook = "before_destroy"
	HookAroundDestroy Hook = "around_destroy"
	HookAfterDestroy  Hook = "after_destroy"

	HookAfterTouch Hook = "after_touch"

	HookAfterCommit         Hook = "after_commit"
	HookAfterRollback       Hook = "after_rollback"
	HookAfterCreateCommit   Hook = "after_create_commit"
	HookAfterUpdateCommit   Hook = "after_update_commit"
	HookAfterDestroyCommit  Hook = "after_destroy_commit"
)

// BeforeCallback runs before an operation and may halt it by returning an
// error; the record is not persisted and the triggering Save/Create/etc.
// call returns that error.
type BeforeCallback func(ctx context.Context, record any) error

// AfterCallback runs once an operation has completed successfully.
type AfterCallback func(ctx context.Context, record any) error

// AroundCallback wraps an operation: it must call next to let the operation
// (and any callback nested inside it) proceed. Not calling next halts the
// chain: op and the after_* callbacks are skipped, and Run returns whatever
// the around callback returned.
type AroundCallback func(ctx context.Context, record any, next func() error) error

// Condition gates whether a callback runs at all (an if:/unless: guard).
type Condition func(ctx context.Context, record any) bool

type registeredCallback[F any] struct {
	fn        F
	condition Condition
	negate    bool // true for an `unless:` condition
}

func (r registeredCallback[F]) applies(ctx context.Context, record any) bool {
	if r.condition == nil {
		return true
	}
	ok := r.condition(ctx, record)
	if r.negate {
		return !ok
	}
	return ok
}

// Callbacks is one model's callback registry: an ordered list per hook,
// mirroring a register-then-run style but keyed by the full Hook
// vocabulary above.
type Callbacks struct {
	before map[Hook][]registeredCallback[BeforeCallback]
	around map[Hook][]registeredCallback[AroundCallback]
	after  map[Hook][]registeredCallback[AfterCallback]
}

// NewCallbacks returns an empty callback registry.
func NewCallbacks() *Callbacks {
	return &Callbacks{
		before: make(map[Hook][]registeredCallback[BeforeCallback]),
		around: make(map[Hook][]registeredCallback[AroundCallback]),
		after:  make(map[Hook][]registeredCallback[AfterCallback]),
	}
}

// Before registers fn to run before hook, optionally gated by cond (nil for
// unconditional, a true-valued If-style cond otherwise). Use BeforeUnless
// for unless:.
func (c *Callbacks) Before(hook Hook, fn BeforeCallback, cond Condition) {
	c.before[hook] = append(c.before[hook], registeredCallback[BeforeCallback]{fn: fn, condition: cond})
}

// BeforeUnless registers fn to run before hook unless cond reports true.
func (c *Callbacks) BeforeUnless(hook Hook, fn BeforeCallback, cond Condition) {
	c.before[hook] = append(c.before[hook], registeredCallback[BeforeCallback]{fn: fn, condition: cond, negate: true})
}

// Around registers fn to wrap hook. First-registered is outermost.
func (c *Callbacks) Around(hook Hook, fn AroundCallback, cond Condition) {
	c.around[hook] = append(c.around[hook], registeredCallback[AroundCallback]{fn: fn, condition: cond})
}

// After registers fn to run after hook completes successfully.
func (c *Callbacks) After(hook Hook, fn AfterCallback, cond Condition) {
	c.after[hook] = append(c.after[hook], registeredCallback[AfterCallback]{fn: fn, condition: cond})
}

// Run executes every before_* callback for hook (any error halts and is
// returned), then op wrapped in every around_* callback (folded so the
// first-registered around callback is outermost), then every after_*
// callback. A before_* error or an around_* callback that doesn't call
// next short-circuits op and the after_* callbacks.
func (c *Callbacks) Run(ctx context.Context, hook Hook, record any, op func() error) error {
	for _, cb := range c.before[hook] {
		if !cb.applies(ctx, record) {
			continue
		}
		if err := cb.fn(ctx, record); err != nil {
			return err
		}
	}

	opRan := false
	wrapped := func() error {
		opRan = true
		return op()
	}
	arounds := c.around[hook]
	for i := len(arounds) - 1; i >= 0; i-- {
		cb := arounds[i]
		next := wrapped
		wrapped = func() error {
			if !cb.applies(ctx, record) {
				return next()
			}
			return cb.fn(ctx, record, next)
		}
	}

	if err := wrapped(); err != nil {
		return err
	}
	if !opRan {
		return nil
	}

	for _, cb := range c.after[hook] {
		if !cb.applies(ctx, record) {
			continue
		}
		if err := cb.fn(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// CommitQueue accumulates after_commit/after_rollback callbacks during a
// transaction and flushes them once the outermost transaction resolves —
// after_commit callbacks run only on commit, after_rollback only on
// rollback.
type CommitQueue struct {
	onCommit   []AfterCallback
	onRollback []AfterCallback
}

// QueueCommit adds fn to run after the enclosing transaction commits.
func (q *CommitQueue) QueueCommit(fn AfterCallback) {
	q.onCommit = append(q.onCommit, fn)
}

// QueueRollback adds fn to run after the enclosing transaction rolls back.
func (q *CommitQueue) QueueRollback(fn AfterCallback) {
	q.onRollback = append(q.onRollback, fn)
}

// FlushCommit runs every queued after_commit callback in registration order
// and discards the queue (including any queued after_rollback callbacks,
// which never run once the transaction has committed).
func (q *CommitQueue) FlushCommit(ctx context.Context, record any) error {
	callbacks := q.onCommit
	q.onCommit = nil
	q.onRollback = nil
	for _, fn := range callbacks {
		if err := fn(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// FlushRollback runs every queued after_rollback callback and discards the
// queue.
func (q *CommitQueue) FlushRollback(ctx context.Context, record any) error {
	callbacks := q.onRollback
	q.onCommit = nil
	q.onRollback = nil
	for _, fn := range callbacks {
		if err := fn(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
