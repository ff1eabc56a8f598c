// Package workflow implements the workflow engine of spec.md §4.H: a
// workflow binds a user function to a description (name, interval,
// onStartup/onShutdown tags, one of the four mutually exclusive execution
// modes) and the engine enforces that mode's concurrency contract with a
// counting semaphore. Grounded on the teacher's internal/service/workflow
// package: Engine/RunResult naming, context/slog-first operations, and
// internal/service/workflow/scheduler.go's hardloop-based cron runner,
// generalized from "run a DAG graph on a trigger" to "run a bound Go
// function under one of four pool disciplines".
package workflow

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/rakunlabs/aasmw/internal/apperr"
)

// Mode is the execution mode detected at definition time from a
// Description, per spec.md §4.H's table.
type Mode int

const (
	// ModeDefault allows one concurrent call; a second call while the first
	// is in flight is rejected with ErrAlreadyRunning.
	ModeDefault Mode = iota
	// ModeBlocking allows up to PoolSize concurrent calls; calls beyond
	// that are rejected, never queued.
	ModeBlocking
	// ModeQueueing allows up to PoolSize in flight; callers beyond that
	// block (FIFO, via the semaphore channel) until a slot frees.
	ModeQueueing
	// ModeInterval re-runs the body every Interval on the schedule that
	// Engine.Start sets up, until Engine.Shutdown; only one run is ever in
	// flight. Interrupt cancels the run in flight and does not stop the
	// schedule.
	ModeInterval
)

// Description is the static definition of a workflow, per spec.md §4.H.
type Description struct {
	Name       string
	Interval   string // parsed with str2duration; empty means not interval mode
	OnStartup  bool
	OnShutdown bool
	Blocking   bool
	Queueing   bool
	PoolSize   int // 0 defaults to 1
}

func (d Description) mode() Mode {
	switch {
	case d.Interval != "":
		return ModeInterval
	case d.Queueing:
		return ModeQueueing
	case d.Blocking:
		return ModeBlocking
	default:
		return ModeDefault
	}
}

func (d Description) poolSize() int {
	if d.PoolSize <= 0 {
		return 1
	}
	return d.PoolSize
}

// Func is the user body bound to a workflow. It receives the injected,
// type-checked arguments and returns a result or an error; a panic inside
// Func is recovered and surfaced as apperr.ErrWorkflow.
type Func func(ctx context.Context, args []any) (any, error)

// Description-derived read-only view handed out by Describe, per
// spec.md §4.H's describe() operation.
type WorkflowDescription struct {
	Name     string
	Running  bool
	Interval string
	Mode     Mode
}

// run tracks one active or interval-scheduled execution.
type run struct {
	id     string
	cancel context.CancelFunc
}

// Workflow is one registered function plus its pool/interval state.
type Workflow struct {
	desc Description
	fn   Func

	// defaults are pre-bound argument values supplied at definition time
	// (spec.md §4.H "type-checked argument injection"); remaining
	// parameters are filled from the caller-supplied args slice.
	defaults []any
	argTypes []reflect.Type

	sem chan struct{} // capacity poolSize; used by blocking/queueing/default(=1)

	mu     sync.Mutex
	active map[string]*run
}

func newWorkflow(desc Description, fn Func, defaults []any, argTypes []reflect.Type) *Workflow {
	return &Workflow{
		desc:     desc,
		fn:       fn,
		defaults: defaults,
		argTypes: argTypes,
		sem:      make(chan struct{}, desc.poolSize()),
		active:   make(map[string]*run),
	}
}

func (w *Workflow) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active) > 0
}

// Describe returns the workflow's current state, per spec.md §4.H.
func (w *Workflow) Describe() WorkflowDescription {
	return WorkflowDescription{
		Name:     w.desc.Name,
		Running:  w.isRunning(),
		Interval: w.desc.Interval,
		Mode:     w.desc.mode(),
	}
}

func (w *Workflow) register(cancel context.CancelFunc) string {
	id := "run_" + strings.ToLower(ulid.Make().String())
	w.mu.Lock()
	w.active[id] = &run{id: id, cancel: cancel}
	w.mu.Unlock()
	return id
}

func (w *Workflow) unregister(id string) {
	w.mu.Lock()
	delete(w.active, id)
	w.mu.Unlock()
}

// Interrupt cancels every active run of w. Fails with apperr.ErrNotRunning
// if none are active.
func (w *Workflow) Interrupt() error {
	w.mu.Lock()
	if len(w.active) == 0 {
		w.mu.Unlock()
		return fmt.Errorf("workflow %q: interrupt: %w", w.desc.Name, apperr.ErrNotRunning)
	}
	runs := make([]*run, 0, len(w.active))
	for _, r := range w.active {
		runs = append(runs, r)
	}
	w.mu.Unlock()

	for _, r := range runs {
		r.cancel()
	}
	return nil
}

// Execute runs the workflow synchronously, enforcing the mode's pool
// discipline, and returns the body's result.
func (w *Workflow) Execute(ctx context.Context, args []any) (any, error) {
	full, err := w.bindArgs(args)
	if err != nil {
		return nil, err
	}

	switch w.desc.mode() {
	case ModeDefault:
		return w.runExclusive(ctx, full)
	case ModeBlocking:
		return w.runPooled(ctx, full, false)
	case ModeQueueing:
		return w.runPooled(ctx, full, true)
	case ModeInterval:
		// A direct Execute of an interval workflow behaves like one
		// exclusive ad-hoc run; the recurring schedule is separate
		// (Engine.Start sets it up).
		return w.runExclusive(ctx, full)
	default:
		return nil, fmt.Errorf("workflow %q: unknown execution mode: %w", w.desc.Name, apperr.ErrWorkflow)
	}
}

// runExclusive implements the "default" mode: exactly one concurrent call.
func (w *Workflow) runExclusive(ctx context.Context, args []any) (any, error) {
	select {
	case w.sem <- struct{}{}:
	default:
		return nil, fmt.Errorf("workflow %q: %w", w.desc.Name, apperr.ErrAlreadyRunning)
	}
	defer func() { <-w.sem }()

	return w.invoke(ctx, args)
}

// runPooled implements blocking/queueing mode: poolSize concurrent slots.
// When queue is true, a caller beyond the pool blocks (FIFO, via the
// channel's own ordering) instead of being rejected.
func (w *Workflow) runPooled(ctx context.Context, args []any, queue bool) (any, error) {
	if queue {
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		select {
		case w.sem <- struct{}{}:
		default:
			return nil, fmt.Errorf("workflow %q: %w", w.desc.Name, apperr.ErrAlreadyRunning)
		}
	}
	defer func() { <-w.sem }()

	return w.invoke(ctx, args)
}

// invoke registers a cancellable run, recovers a panicking body into
// apperr.ErrWorkflow, and unregisters on return.
func (w *Workflow) invoke(ctx context.Context, args []any) (result any, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	id := w.register(cancel)
	defer func() {
		cancel()
		w.unregister(id)
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow %q: run %s: %v: %w", w.desc.Name, id, r, apperr.ErrWorkflow)
		}
	}()

	result, err = w.fn(runCtx, args)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("workflow %q: run %s: %w", w.desc.Name, id, apperr.ErrCancelled)
		}
		return nil, fmt.Errorf("workflow %q: run %s: %v: %w", w.desc.Name, id, err, apperr.ErrWorkflow)
	}
	return result, nil
}

// bindArgs merges pre-bound defaults with caller-supplied args and
// type-checks each against the declared function signature, per spec.md
// §4.H's "type-checked argument injection".
func (w *Workflow) bindArgs(args []any) ([]any, error) {
	full := make([]any, 0, len(w.defaults)+len(args))
	full = append(full, w.defaults...)
	full = append(full, args...)

	if len(w.argTypes) > 0 {
		if len(full) != len(w.argTypes) {
			return nil, fmt.Errorf("workflow %q: expected %d arguments, got %d: %w", w.desc.Name, len(w.argTypes), len(full), apperr.ErrMapping)
		}
		for i, v := range full {
			if v == nil {
				continue
			}
			vt := reflect.TypeOf(v)
			if !vt.AssignableTo(w.argTypes[i]) {
				return nil, fmt.Errorf("workflow %q: argument %d: type %s not assignable to %s: %w", w.desc.Name, i, vt, w.argTypes[i], apperr.ErrMapping)
			}
		}
	}
	return full, nil
}

// intervalDuration parses Description.Interval via str2duration, which
// accepts both Go duration syntax and human-friendly forms ("1h", "90s").
func (w *Workflow) intervalDuration() (time.Duration, error) {
	return str2duration.ParseDuration(w.desc.Interval)
}
