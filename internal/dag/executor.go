package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
)

// Observer is notified of every node state change. It is called from worker
// goroutines and must be safe for concurrent use.
type Observer func(id string, state State, err error)

// Option configures an Executor.
type Option func(*Executor)

// WithObserver registers a state change observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithScope sets the scope released when the run ends.
func WithScope(s *Scope) Option {
	return func(e *Executor) { e.scope = s }
}

// run is the per-execution state of a node.
type run struct {
	id         string
	task       Task
	deps       []*run
	dependents []*run
	depCount   atomic.Int32
	state      atomic.Int32
	err        error
	once       sync.Once
}

// Executor runs the tasks in a graph concurrently.
type Executor struct {
	runs       map[string]*run
	order      []string
	numWorkers int
	observer   Observer
	scope      *Scope
	wg         sync.WaitGroup

	mu        sync.Mutex
	rootCause error
	failedAt  string
}

// NewExecutor snapshots the graph and prepares a run of it.
func NewExecutor(g *Graph, numWorkers int, opts ...Option) *Executor {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	e := &Executor{
		runs:       make(map[string]*run),
		numWorkers: numWorkers,
		scope:      NewScope(),
	}
	for _, opt := range opts {
		opt(e)
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()
	e.order = sortedIDs(g.nodes)
	for _, id := range e.order {
		e.runs[id] = &run{id: id, task: g.nodes[id].task}
	}
	for _, id := range e.order {
		n, r := g.nodes[id], e.runs[id]
		for _, depID := range sortedIDs(n.deps) {
			r.deps = append(r.deps, e.runs[depID])
		}
		for _, depID := range sortedIDs(n.dependents) {
			r.dependents = append(r.dependents, e.runs[depID])
		}
		r.depCount.Store(int32(len(n.deps)))
	}
	return e
}

// States returns a snapshot of every node's state.
func (e *Executor) States() map[string]State {
	out := make(map[string]State, len(e.runs))
	for id, r := range e.runs {
		out[id] = State(r.state.Load())
	}
	return out
}

func (e *Executor) setState(r *run, s State, err error) {
	r.state.Store(int32(s))
	if e.observer != nil {
		e.observer(r.id, s, err)
	}
}

// Run executes the entire graph concurrently and returns an error if any node
// fails. It respects the cancellation signal from the provided context. The
// scope is released when Run returns, whatever the outcome.
func (e *Executor) Run(ctx context.Context) (err error) {
	logger := ctxlog.FromContext(ctx)
	defer func() {
		if releaseErr := e.scope.ReleaseAll(context.WithoutCancel(ctx)); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
	}()

	if len(e.runs) == 0 {
		return nil
	}

	readyChan := make(chan *run, len(e.runs))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootNodeCount := 0
	for _, id := range e.order {
		if r := e.runs[id]; r.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", id)
			readyChan <- r
			rootNodeCount++
		}
	}
	if rootNodeCount == 0 {
		return errors.New("graph has no root node")
	}

	e.wg.Add(len(e.runs))
	logger.Debug("Starting worker pool.", "workers", e.numWorkers, "nodes", len(e.runs))
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)
	logger.Debug("All nodes completed.")

	if e.rootCause != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(e.failedNodes(), ", "), e.rootCause)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("execution cancelled: %w", ctxErr)
	}
	return nil
}

// failedNodes lists the nodes whose own task failed.
func (e *Executor) failedNodes() []string {
	var ids []string
	for _, id := range e.order {
		r := e.runs[id]
		if State(r.state.Load()) == Failed && !errors.Is(r.err, context.Canceled) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// recordFailure keeps the first failure that was not caused by cancellation.
func (e *Executor) recordFailure(id string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rootCause == nil {
		e.rootCause = err
		e.failedAt = id
	}
}

// skip marks a node that will never run and decrements the WaitGroup once.
func (e *Executor) skip(ctx context.Context, r *run, cause error) {
	r.once.Do(func() {
		ctxlog.FromContext(ctx).Warn("Skipping node.", "nodeID", r.id, "reason", cause)
		r.err = fmt.Errorf("%w: %w", ErrSkipped, cause)
		e.setState(r, Skipped, r.err)
		e.wg.Done()
		e.skipDependents(ctx, r, cause)
	})
}

// skipDependents recursively marks all downstream nodes as skipped.
func (e *Executor) skipDependents(ctx context.Context, r *run, cause error) {
	for _, dependent := range r.dependents {
		e.skip(ctx, dependent, cause)
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *run, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)

	for r := range readyChan {
		nodeLogger := logger.With("workerID", workerID, "nodeID", r.id)

		if ctx.Err() != nil {
			e.skip(ctx, r, ctx.Err())
			continue
		}

		var err error
		r.once.Do(func() {
			e.setState(r, Running, nil)
			nodeLogger.Info("▶️ Starting node")
			start := time.Now()
			if r.task != nil {
				err = r.task(ctxlog.With(ctx, "node", r.id))
			}
			if err != nil {
				nodeLogger.Error("Node execution failed.", "error", err)
				r.err = err
				e.recordFailure(r.id, err)
				e.setState(r, Failed, err)
				cancel()
				e.skipDependents(ctx, r, fmt.Errorf("upstream failure of '%s'", r.id))
				e.wg.Done()
				return
			}
			nodeLogger.Info("✅ Finished node", "duration", time.Since(start).Round(time.Millisecond))
			e.setState(r, Done, nil)
			for _, dependent := range r.dependents {
				if dependent.depCount.Add(-1) == 0 {
					readyChan <- dependent
				}
			}
			e.wg.Done()
		})
	}
}
