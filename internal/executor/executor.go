// Package executor runs registered operations with timing capture, a circuit
// breaker around the invocation path, and capped, staggered batch execution.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/threadline-dev/threadline/internal/memory"
	"github.com/threadline-dev/threadline/internal/registry"
	"github.com/threadline-dev/threadline/internal/schema"
	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// ErrUnavailable indicates the breaker is open and the invocation path is
// temporarily refusing work.
var ErrUnavailable = errors.New("tool execution temporarily unavailable")

// Result captures one completed invocation, success or not.
type Result struct {
	ToolName  string
	StartedAt time.Time
	Duration  time.Duration
	Output    map[string]interface{}
	Err       error
}

// Succeeded reports whether the invocation produced a usable output.
func (r *Result) Succeeded() bool { return r.Err == nil }

// Executor wraps operation invocation. A single breaker guards the whole
// invocation path: repeated infrastructure failures open it, and while open
// every call is refused with ErrUnavailable. Business failures (validation,
// not-found, duplicates) never trip it.
type Executor struct {
	registry *registry.Registry
	breaker  *gobreaker.CircuitBreaker
	logger   *log.Logger

	// batch admission
	batchLimit int
	stagger    *rate.Limiter
}

// Option configures an Executor.
type Option func(*Executor)

// WithBatchLimit caps concurrent operations within one batch.
func WithBatchLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.batchLimit = n
		}
	}
}

// WithStagger sets the admission rate for batch items, smoothing write bursts
// against the store.
func WithStagger(perSecond float64, burst int) Option {
	return func(e *Executor) {
		if perSecond > 0 {
			e.stagger = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// New creates an Executor over the given registry.
func New(reg *registry.Registry, logger *log.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = log.Default()
	}

	e := &Executor{
		registry:   reg,
		logger:     logger,
		batchLimit: 4,
		stagger:    rate.NewLimiter(rate.Limit(20), 5),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tool-executor",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("executor: breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Business failures are normal outcomes, not breaker signals.
			return err == nil || isBusinessError(err)
		},
	})

	return e
}

// Execute runs one operation with the enriched request context, capturing
// timing and outcome. The returned Result is always non-nil; Result.Err holds
// a business failure, while a non-nil second return means the invocation path
// itself refused or broke.
func (e *Executor) Execute(ctx context.Context, rc *types.RequestContext, op registry.Operation) (*Result, error) {
	res := &Result{ToolName: rc.FullToolName, StartedAt: time.Now()}

	out, err := e.breaker.Execute(func() (interface{}, error) {
		return op.Execute(ctx, rc.Params)
	})
	res.Duration = time.Since(res.StartedAt)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		e.logger.Printf("executor: %s refused, breaker open (%.0fms)", rc.FullToolName, res.Duration.Seconds()*1000)
		return res, fmt.Errorf("%w: %s", ErrUnavailable, rc.FullToolName)
	case err != nil:
		res.Err = err
		e.logger.Printf("executor: %s failed after %.0fms: %v", rc.FullToolName, res.Duration.Seconds()*1000, err)
		return res, nil
	}

	if m, ok := out.(map[string]interface{}); ok {
		res.Output = m
	}
	e.logger.Printf("executor: %s ok (%.0fms)", rc.FullToolName, res.Duration.Seconds()*1000)
	return res, nil
}

// BatchItem names one operation of a batch with its own parameter bag.
type BatchItem struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// ExecuteBatch runs the items with bounded concurrency and staggered
// admission. Items fail independently: one failure never aborts the rest.
// Results are returned in item order.
func (e *Executor) ExecuteBatch(ctx context.Context, rc *types.RequestContext, items []BatchItem) ([]*Result, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: batch requires at least one item", storage.ErrInvalidInput)
	}

	sem := semaphore.NewWeighted(int64(e.batchLimit))
	results := make([]*Result, len(items))

	for i, item := range items {
		if err := e.stagger.Wait(ctx); err != nil {
			return nil, fmt.Errorf("batch admission: %w", err)
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("batch acquire: %w", err)
		}

		go func(i int, item BatchItem) {
			defer sem.Release(1)
			results[i] = e.executeItem(ctx, rc, item)
		}(i, item)
	}

	// Draining the full weight waits for every in-flight item.
	if err := sem.Acquire(ctx, int64(e.batchLimit)); err != nil {
		return nil, fmt.Errorf("batch drain: %w", err)
	}
	sem.Release(int64(e.batchLimit))

	return results, nil
}

// executeItem resolves and runs a single batch item, folding resolution and
// refusal errors into the item's own Result.
func (e *Executor) executeItem(ctx context.Context, parent *types.RequestContext, item BatchItem) *Result {
	res := &Result{ToolName: item.Tool, StartedAt: time.Now()}

	agent, mode, ok := registry.SplitToolName(item.Tool)
	if !ok {
		res.Err = fmt.Errorf("invalid tool name %q: expected <agent>_<mode>", item.Tool)
		res.Duration = time.Since(res.StartedAt)
		return res
	}
	desc, err := e.registry.GetMode(agent, mode)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(res.StartedAt)
		return res
	}

	params := make(map[string]interface{}, len(item.Params)+2)
	for k, v := range item.Params {
		params[k] = v
	}
	// Batch items inherit the parent call's continuity unless they override it.
	if _, ok := params["sessionId"]; !ok && parent.SessionID != "" {
		params["sessionId"] = parent.SessionID
	}
	if _, ok := params["workspaceId"]; !ok && parent.Workspace != nil {
		params["workspaceId"] = parent.Workspace.WorkspaceID
	}

	itemCtx := &types.RequestContext{
		AgentName:    agent,
		Mode:         mode,
		Params:       params,
		SessionID:    parent.SessionID,
		SessionInfo:  parent.SessionInfo,
		Workspace:    parent.Workspace,
		FullToolName: item.Tool,
	}

	out, err := e.Execute(ctx, itemCtx, desc.Op)
	if err != nil {
		out.Err = err
	}
	return out
}

// isBusinessError reports whether err is a normal domain outcome rather than
// an infrastructure fault.
func isBusinessError(err error) bool {
	if errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, storage.ErrDuplicateName) ||
		errors.Is(err, storage.ErrInvalidInput) {
		return true
	}

	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var de *memory.DuplicateNameError
	if errors.As(err, &de) {
		return true
	}
	var ce *memory.CreateStateError
	if errors.As(err, &ce) {
		// A rollback is a handled domain outcome; everything up to persisting
		// is caller error. Only raw persist failures indicate infrastructure.
		return ce.Phase != types.PhasePersisting
	}
	return false
}
