// Package pipeline runs repository processing in the background: acquire
// the checkout, build its index, register it, and publish every step to
// the state tracker.
//
// Runs are single-flight. Start either claims the tracker and returns a
// run id, or fails with *BusyError without touching state. A run that is
// superseded by Reset or a newer run is cancelled, stops publishing and
// discards its result. A new run does not touch the workspace until the
// run it superseded has returned.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/acquire"
	"github.com/fyrsmithlabs/codematrix/internal/index"
	"github.com/fyrsmithlabs/codematrix/internal/logging"
	"github.com/fyrsmithlabs/codematrix/internal/remote"
	"github.com/fyrsmithlabs/codematrix/internal/repository"
	"github.com/fyrsmithlabs/codematrix/internal/state"
)

func tracer() trace.Tracer { return otel.Tracer("codematrix.pipeline") }

// Progress checkpoints published while a run advances.
const (
	ProgressCloning   = 0.1
	ProgressIndexing  = 0.4
	ProgressEmbedding = 0.7
	ProgressReady     = 1.0
)

// ReadyMessage is published when a run completes.
const ReadyMessage = "Repository successfully indexed and ready to be queried."

// errSuperseded stops a run whose ownership was taken away.
var errSuperseded = errors.New("run superseded")

// Acquirer fetches a repository to local disk.
type Acquirer interface {
	Acquire(ctx context.Context, sourceURL string) (string, error)
}

// Indexer builds an index entry from a checkout.
type Indexer interface {
	Build(ctx context.Context, repoID, localPath string, opts ...repository.BuildOption) (*index.Entry, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDescriber looks up a repository description after acquisition.
func WithDescriber(d remote.Describer) Option {
	return func(p *Pipeline) { p.describer = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.Wrap(l) }
}

// WithIDGenerator replaces uuid run ids.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// Pipeline coordinates background processing runs.
type Pipeline struct {
	tracker   *state.Tracker
	registry  *index.Registry
	acquirer  Acquirer
	indexer   Indexer
	describer remote.Describer
	logger    *logging.Logger
	newID     func() string

	// shutdown is cancelled by Close and bounds every run.
	shutdown context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	closed  bool
	current *activeRun
	wg      sync.WaitGroup
}

// activeRun is the most recently started run.
type activeRun struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Pipeline.
func New(tracker *state.Tracker, registry *index.Registry, acquirer Acquirer, indexer Indexer, opts ...Option) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		tracker:  tracker,
		registry: registry,
		acquirer: acquirer,
		indexer:  indexer,
		logger:   logging.Wrap(nil),
		newID:    uuid.NewString,
		shutdown: ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start validates sourceURL, claims the tracker and processes the
// repository in the background. It returns immediately with the run id.
// The run outlives ctx; only Close cancels it.
func (p *Pipeline) Start(ctx context.Context, sourceURL string) (string, error) {
	src, err := acquire.ParseSource(sourceURL)
	if err != nil {
		return "", &acquire.Error{URL: sourceURL, Cause: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}

	runID := p.newID()
	snap, ok := p.tracker.TryBegin(state.Patch{
		Status:      state.Set(state.StatusCloning),
		Message:     state.Set(fmt.Sprintf("Accessing repository %s...", src.Name)),
		Progress:    state.Set(ProgressCloning),
		RepoID:      state.Set(src.Name),
		RepoURL:     state.Set(src.URL),
		Description: state.Set(state.InitialDescription),
		RunID:       state.Set(runID),
	})
	if !ok {
		BusyRejections.Inc()
		return "", &BusyError{RunID: snap.RunID, RepoID: snap.ActiveRepoID(), Status: snap.Status}
	}

	// Every index is dropped, not only the target's: a new run replaces
	// whatever the workspace held.
	p.registry.Clear()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(p.shutdown, cancel)

	// Claiming the tracker means the previous run, if still going, was
	// reset. It shares the checkout path, so stop it and let it drain.
	prev := p.current
	if prev != nil {
		prev.cancel()
	}
	cur := &activeRun{id: runID, cancel: cancel, done: make(chan struct{})}
	p.current = cur

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(cur.done)
		defer cancel()
		defer stop()
		if prev != nil {
			select {
			case <-prev.done:
			case <-runCtx.Done():
			}
		}
		p.run(runCtx, cur, src)
	}()

	p.logger.Info(ctx, "pipeline run started",
		zap.String("run_id", runID),
		zap.String("repo", src.Name),
		zap.String("url", src.URL))
	return runID, nil
}

// run executes one run and always releases the tracker.
func (p *Pipeline) run(ctx context.Context, r *activeRun, src acquire.Source) {
	runID := r.id
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithRepoID(ctx, src.Name)
	ctx, span := tracer().Start(ctx, "Pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("repo.id", src.Name),
	))

	RunsInFlight.Inc()
	start := time.Now()
	outcome := outcomeReady

	defer func() {
		if r := recover(); r != nil {
			outcome = outcomePanic
			err := fmt.Errorf("internal error: %v", r)
			p.logger.Error(ctx, "pipeline run panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			p.fail(runID, err)
		}
		p.tracker.End(runID)

		RunsInFlight.Dec()
		RunsTotal.WithLabelValues(outcome).Inc()
		RunDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
	}()

	err := p.execute(ctx, r, src)
	switch {
	case err == nil:
		p.logger.Info(ctx, "pipeline run finished", zap.Duration("duration", time.Since(start)))
	case errors.Is(err, errSuperseded):
		outcome = outcomeSuperseded
		p.logger.Info(ctx, "pipeline run superseded, discarding result")
	default:
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		p.logger.Warn(ctx, "pipeline run failed", zap.Error(err))
		p.fail(runID, err)
	}
}

func (p *Pipeline) execute(ctx context.Context, r *activeRun, src acquire.Source) error {
	runID := r.id
	// update publishes for this run and cancels it once ownership is lost.
	update := func(patch state.Patch) bool {
		if p.tracker.UpdateRun(runID, patch) {
			return true
		}
		r.cancel()
		return false
	}

	localPath, err := p.acquirer.Acquire(ctx, src.URL)
	if err != nil {
		if p.tracker.Snapshot().RunID != runID {
			return errSuperseded
		}
		return err
	}
	trace.SpanFromContext(ctx).AddEvent("acquired", trace.WithAttributes(attribute.String("path", localPath)))

	description := p.describe(ctx, src.URL)

	if !update(state.Patch{
		Status:       state.Set(state.StatusIndexing),
		Message:      state.Set("Parsing code files..."),
		Progress:     state.Set(ProgressIndexing),
		RepoID:       state.Set(src.Name),
		RepoLocation: state.Set(localPath),
	}) {
		return errSuperseded
	}

	entry, err := p.indexer.Build(ctx, src.Name, localPath, repository.WithChunkedHook(func(n int) {
		update(state.Patch{
			Status:   state.Set(state.StatusIndexing),
			Message:  state.Set(fmt.Sprintf("Creating embeddings for %s code chunks...", humanize.Comma(int64(n)))),
			Progress: state.Set(ProgressEmbedding),
		})
	}))
	if err != nil {
		if p.tracker.Snapshot().RunID != runID {
			return errSuperseded
		}
		return err
	}
	if entry.Metadata != nil && description != "" {
		entry.Metadata.Description = description
	}

	if p.tracker.Snapshot().RunID != runID {
		r.cancel()
		p.discard(ctx, entry)
		return errSuperseded
	}
	p.registry.Put(src.Name, entry)

	patch := state.Patch{
		Status:       state.Set(state.StatusReady),
		Message:      state.Set(ReadyMessage),
		Progress:     state.Set(ProgressReady),
		RepoID:       state.Set(src.Name),
		RepoLocation: state.Set(localPath),
		Metadata:     entry.Metadata,
	}
	if description != "" {
		patch.Description = state.Set(description)
	}
	if !update(patch) {
		if cur, ok := p.registry.Get(src.Name); ok && cur == entry {
			p.registry.Remove(src.Name)
		}
		return errSuperseded
	}
	return nil
}

// describe returns the remote description, or "" when unavailable.
func (p *Pipeline) describe(ctx context.Context, sourceURL string) string {
	if p.describer == nil {
		return ""
	}
	desc, err := p.describer.Describe(ctx, sourceURL)
	if err != nil {
		p.logger.Debug(ctx, "repository description unavailable", zap.Error(err))
		return ""
	}
	return desc
}

func (p *Pipeline) fail(runID string, err error) {
	p.tracker.UpdateRun(runID, state.Patch{
		Status:   state.Set(state.StatusError),
		Message:  state.Set(err.Error()),
		Progress: state.Set(0.0),
	})
}

func (p *Pipeline) discard(ctx context.Context, entry *index.Entry) {
	if entry.Search == nil {
		return
	}
	if err := entry.Search.Close(); err != nil {
		p.logger.Warn(ctx, "failed to release discarded index", zap.Error(err))
	}
}

// Close cancels in-flight runs and rejects new ones. It does not wait.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
}

// Wait blocks until every started run has returned.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Shutdown closes the pipeline and waits for runs to finish or ctx to end.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pipeline runs: %w", ctx.Err())
	}
}
