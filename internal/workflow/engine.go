package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/worldline-go/hardloop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/telemetry"
)

// Engine owns every registered workflow, starts onStartup workflows and
// interval schedules, and awaits onShutdown workflows plus interrupts
// everything still in flight on Shutdown, per spec.md §4.H/§4.K.
type Engine struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
	cron      cronRunner // hardloop.NewCron's return type is unexported, mirroring the teacher's scheduler.go cronRunner interface
	cronStop  context.CancelFunc
	ctx       context.Context
	counters  *telemetry.Counters
}

// SetCounters attaches the ambient telemetry counters (SPEC_FULL.md §9):
// every completed Execute/ExecuteBackground run increments
// aasmw.workflow.executions, labeled by workflow name and outcome.
// Optional — a nil counters set is a no-op.
func (e *Engine) SetCounters(c *telemetry.Counters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters = c
}

func (e *Engine) recordExecution(ctx context.Context, name string, err error) {
	e.mu.RLock()
	c := e.counters
	e.mu.RUnlock()
	if c == nil || c.WorkflowExecutions == nil {
		return
	}
	c.WorkflowExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", name),
		attribute.Bool("ok", err == nil),
	))
}

// cronRunner is satisfied by hardloop's *cronJob, mirroring the teacher's
// internal/service/workflow/scheduler.go cronRunner interface.
type cronRunner interface {
	Start(ctx context.Context) error
	Stop()
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{workflows: make(map[string]*Workflow)}
}

// Define registers fn under desc, pre-binding defaults. It records no
// argument types, so bindArgs does not type-check the args of a workflow
// defined this way; DefineTyped derives them from a function's signature.
func (e *Engine) Define(desc Description, fn Func, defaults ...any) (*Workflow, error) {
	if desc.Name == "" {
		return nil, fmt.Errorf("workflow: define: name is required: %w", apperr.ErrMapping)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.workflows[desc.Name]; exists {
		return nil, fmt.Errorf("workflow: define %q: already registered: %w", desc.Name, apperr.ErrMapping)
	}

	w := newWorkflow(desc, fn, defaults, nil)
	e.workflows[desc.Name] = w
	return w, nil
}

// DefineTyped is the reflective counterpart of Define: it accepts a plain
// Go function (any signature whose first parameter is context.Context)
// and synthesizes a Func that type-checks and splices args onto it,
// matching spec.md §4.H's "parameter types are read from the function's
// declared signature" contract.
func (e *Engine) DefineTyped(desc Description, fn any, defaults ...any) (*Workflow, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("workflow: define %q: fn is not a function: %w", desc.Name, apperr.ErrMapping)
	}
	if ft.NumIn() == 0 || ft.In(0).String() != "context.Context" {
		return nil, fmt.Errorf("workflow: define %q: fn's first parameter must be context.Context: %w", desc.Name, apperr.ErrMapping)
	}

	argTypes := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		argTypes = append(argTypes, ft.In(i))
	}

	wrapped := func(ctx context.Context, args []any) (any, error) {
		in := make([]reflect.Value, 0, len(args)+1)
		in = append(in, reflect.ValueOf(ctx))
		for i, a := range args {
			if a == nil {
				in = append(in, reflect.Zero(argTypes[i]))
				continue
			}
			in = append(in, reflect.ValueOf(a))
		}
		out := fv.Call(in)
		return splitResults(out)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.workflows[desc.Name]; exists {
		return nil, fmt.Errorf("workflow: define %q: already registered: %w", desc.Name, apperr.ErrMapping)
	}
	w := newWorkflow(desc, wrapped, defaults, argTypes)
	e.workflows[desc.Name] = w
	return w, nil
}

// splitResults adapts a reflect.Call result of shape (T, error) or (error)
// or () into the (any, error) pair Func expects.
func splitResults(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		var err error
		if e, ok := last.Interface().(error); ok {
			err = e
		}
		if len(out) == 2 {
			return out[0].Interface(), err
		}
		vals := make([]any, len(out)-1)
		for i := range vals {
			vals[i] = out[i].Interface()
		}
		return vals, err
	}
}

// Get looks up a registered workflow by name.
func (e *Engine) Get(name string) (*Workflow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workflows[name]
	return w, ok
}

// Describe returns every registered workflow's current state, used by the
// REST facade's enumeration endpoints.
func (e *Engine) Describe() []WorkflowDescription {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]WorkflowDescription, 0, len(e.workflows))
	for _, w := range e.workflows {
		out = append(out, w.Describe())
	}
	return out
}

// Execute runs name synchronously and returns its result.
func (e *Engine) Execute(ctx context.Context, name string, args []any) (any, error) {
	w, ok := e.Get(name)
	if !ok {
		return nil, fmt.Errorf("workflow: execute %q: %w", name, apperr.ErrKeyNotFound)
	}
	result, err := w.Execute(ctx, args)
	e.recordExecution(ctx, name, err)
	return result, err
}

// ExecuteBackground launches name's run in a detached goroutine and
// returns immediately with an acknowledgement message, per spec.md §4.H's
// execute_background operation.
func (e *Engine) ExecuteBackground(ctx context.Context, name string, args []any) (string, error) {
	w, ok := e.Get(name)
	if !ok {
		return "", fmt.Errorf("workflow: execute_background %q: %w", name, apperr.ErrKeyNotFound)
	}

	go func() {
		_, err := w.Execute(ctx, args)
		e.recordExecution(ctx, name, err)
		if err != nil {
			slog.Error("workflow: background run failed", "workflow", name, "error", err)
		}
	}()

	return fmt.Sprintf("workflow %q started", name), nil
}

// Interrupt cancels every active run of name.
func (e *Engine) Interrupt(name string) error {
	w, ok := e.Get(name)
	if !ok {
		return fmt.Errorf("workflow: interrupt %q: %w", name, apperr.ErrKeyNotFound)
	}
	return w.Interrupt()
}

// Start launches every onStartup-tagged workflow in the background and
// builds the hardloop cron runner driving every interval-mode workflow,
// mirroring the teacher's Scheduler.Start/reload in
// internal/service/workflow/scheduler.go (minus its cluster leader-lock
// concern, which is out of scope per SPEC_FULL.md's Non-goals).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.ctx = ctx
	workflows := make([]*Workflow, 0, len(e.workflows))
	for _, w := range e.workflows {
		workflows = append(workflows, w)
	}
	e.mu.Unlock()

	crons := make([]hardloop.Cron, 0)
	for _, w := range workflows {
		if w.desc.OnStartup {
			go func(w *Workflow) {
				_, err := w.Execute(ctx, nil)
				e.recordExecution(ctx, w.desc.Name, err)
				if err != nil {
					slog.Error("workflow: onStartup run failed", "workflow", w.desc.Name, "error", err)
				}
			}(w)
		}

		if w.desc.mode() == ModeInterval {
			dur, err := w.intervalDuration()
			if err != nil {
				return fmt.Errorf("workflow: start %q: parse interval %q: %w", w.desc.Name, w.desc.Interval, err)
			}
			crons = append(crons, hardloop.Cron{
				Name:  w.desc.Name,
				Specs: []string{fmt.Sprintf("@every %s", dur)},
				Func:  e.makeIntervalFunc(w),
			})
		}
	}

	if len(crons) == 0 {
		return nil
	}

	cronJob, err := hardloop.NewCron(crons...)
	if err != nil {
		return fmt.Errorf("workflow: start: create cron runner: %w", err)
	}

	cronCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cron = cronJob
	e.cronStop = cancel
	e.mu.Unlock()

	return cronJob.Start(cronCtx)
}

// makeIntervalFunc returns the closure hardloop calls on each tick: it
// runs w's body, enforcing the same exclusive-run discipline Execute uses,
// and logs rather than aborts the cron loop on failure (matching the
// teacher's makeCronFunc, which never stops the scheduler on a single
// run's error).
func (e *Engine) makeIntervalFunc(w *Workflow) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := w.Execute(ctx, nil)
		e.recordExecution(ctx, w.desc.Name, err)
		if err != nil {
			slog.Error("workflow: interval run failed", "workflow", w.desc.Name, "error", err)
		}
		return nil
	}
}

// Shutdown awaits every onShutdown-tagged workflow and interrupts every
// still-active run, per spec.md §4.K's shutdown contract.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	if e.cronStop != nil {
		e.cronStop()
	}
	if e.cron != nil {
		e.cron.Stop()
	}
	workflows := make([]*Workflow, 0, len(e.workflows))
	for _, w := range e.workflows {
		workflows = append(workflows, w)
	}
	e.mu.Unlock()

	for _, w := range workflows {
		if w.desc.OnShutdown {
			_, err := w.Execute(ctx, nil)
			e.recordExecution(ctx, w.desc.Name, err)
			if err != nil {
				slog.Error("workflow: onShutdown run failed", "workflow", w.desc.Name, "error", err)
			}
		}
	}
	for _, w := range workflows {
		if w.isRunning() {
			if err := w.Interrupt(); err != nil {
				slog.Warn("workflow: shutdown interrupt failed", "workflow", w.desc.Name, "error", err)
			}
		}
	}
}
