package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/postpilot/postpilot/pkg/image"
	"github.com/postpilot/postpilot/pkg/observability"
	"github.com/postpilot/postpilot/pkg/pipeline/checkpoint"
)

// RunStatus is the externally visible outcome of an Execute or Resume call.
type RunStatus string

// Run statuses. RunRunning only ever appears inside checkpoints written
// between waves; Execute and Resume never return it.
const (
	RunRunning   RunStatus = "running"
	RunSuspended RunStatus = "suspended"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Engine executes the content-generation pipeline. It schedules stages in
// dependency waves, runs independent stages concurrently, checkpoints after
// every wave, and suspends before the approval stage until a reviewer
// decision arrives through Resume.
//
// Concurrent resumes of the same run are not safe; the caller must
// serialize writers per run.
type Engine struct {
	stages []StageDef
	funcs  map[string]StageFunc
	// postSuspend holds the stages downstream of the suspend point; they
	// run only through routing decisions, never through wave scheduling.
	postSuspend map[string]bool

	store   checkpoint.Store
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	tracing bool

	// newRunID is replaceable in tests for deterministic run IDs.
	newRunID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracing enables span creation for runs and stages.
func WithTracing(spans observability.SpanManager) Option {
	return func(e *Engine) {
		e.spans = spans
		e.tracing = spans != nil
	}
}

// New creates an engine over the given collaborators. The stage table is
// fixed; construction fails if it is structurally invalid.
func New(router ModelRouter, images image.Generator, store checkpoint.Store, opts ...Option) (*Engine, error) {
	if router == nil {
		return nil, ErrNilRouter
	}
	if images == nil {
		return nil, ErrNilGenerator
	}
	if store == nil {
		return nil, ErrNilStore
	}

	set := &stageSet{router: router, images: images}
	e := &Engine{
		stages:   defaultStages(),
		funcs:    set.registry(),
		store:    store,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := validateStages(e.stages, e.funcs); err != nil {
		return nil, err
	}
	e.postSuspend = postSuspendStages(e.stages)
	return e, nil
}

// postSuspendStages computes the set of stages that depend on the suspend
// point, directly or transitively.
func postSuspendStages(stages []StageDef) map[string]bool {
	byName := make(map[string]StageDef, len(stages))
	for _, def := range stages {
		byName[def.Name] = def
	}

	result := make(map[string]bool)
	var visit func(string) bool
	visit = func(n string) bool {
		if result[n] {
			return true
		}
		for _, dep := range byName[n].Deps {
			if byName[dep].SuspendBefore || visit(dep) {
				result[n] = true
				return true
			}
		}
		return false
	}
	for _, def := range stages {
		visit(def.Name)
	}
	return result
}

// Execute runs a fresh pipeline for the given state until it suspends for
// review or fails. A missing RunID is filled with a generated UUID.
//
// The returned state reflects all completed stages; RunStatus is
// RunSuspended on the happy path (the run now awaits Resume).
func (e *Engine) Execute(ctx context.Context, state WorkflowState) (result WorkflowState, status RunStatus, err error) {
	if state.Topic == "" {
		return state, RunFailed, ErrEmptyTopic
	}
	if state.RunID == "" {
		state.RunID = e.newRunID()
	}
	if state.ApprovalStatus == "" {
		state.ApprovalStatus = StatusPendingGeneration
	}

	observability.LogRunStart(e.logger, state.RunID, state.Topic)
	stop := observability.TimedOperation()

	execCtx := ctx
	var runSpan trace.Span
	if e.tracing {
		execCtx, runSpan = e.spans.StartRunSpan(ctx, "execute", state.RunID)
		defer func() {
			e.spans.EndSpanWithError(runSpan, err)
		}()
	}

	seq := 0
	result, status, err = e.runToSuspend(execCtx, state, map[string]bool{}, &seq)
	e.metrics.RecordRun(ctx, string(status), time.Duration(stop())*time.Millisecond)
	return result, status, err
}

// Resume continues a suspended run with a reviewer decision. It loads the
// latest checkpoint, merges the review patch, runs the approval stage, and
// routes: finalize on approval, selective regeneration on rejection, or
// re-suspend when no decision was supplied.
func (e *Engine) Resume(ctx context.Context, runID string, review ReviewPatch) (result WorkflowState, status RunStatus, err error) {
	var zero WorkflowState

	switch review.Decision {
	case "", StatusApproved, StatusRejected:
	default:
		return zero, RunFailed, fmt.Errorf("%w: %q", ErrInvalidDecision, review.Decision)
	}

	state, seq, err := e.loadRun(runID)
	if err != nil {
		return zero, RunFailed, err
	}
	if state.Finalized {
		return state, RunFailed, fmt.Errorf("%w: %s", ErrRunFinalized, runID)
	}
	if state.ApprovalStatus == StatusError {
		return state, RunFailed, fmt.Errorf("%w: %s", ErrRunFailed, runID)
	}

	if review.Decision != "" {
		state.ApprovalStatus = review.Decision
	}
	if review.Feedback != "" {
		state.Feedback = review.Feedback
	}

	stop := observability.TimedOperation()

	execCtx := ctx
	var runSpan trace.Span
	if e.tracing {
		execCtx, runSpan = e.spans.StartRunSpan(ctx, "resume", runID)
		defer func() {
			e.spans.EndSpanWithError(runSpan, err)
		}()
	}

	result, status, err = e.resumeFromApproval(execCtx, state, &seq)
	e.metrics.RecordRun(ctx, string(status), time.Duration(stop())*time.Millisecond)
	return result, status, err
}

// loadRun fetches and decodes the latest checkpoint for a run.
func (e *Engine) loadRun(runID string) (WorkflowState, int, error) {
	var zero WorkflowState

	data, err := e.store.Get(runID)
	if err != nil {
		if err == checkpoint.ErrNotFound {
			return zero, 0, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return zero, 0, &CheckpointError{RunID: runID, Op: "get", Err: err}
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return zero, 0, &CheckpointError{RunID: runID, Op: "unmarshal", Err: err}
	}
	if cp.Version != checkpoint.Version {
		return zero, 0, &CheckpointError{RunID: runID, Op: "unmarshal",
			Err: fmt.Errorf("checkpoint version %d, expected %d", cp.Version, checkpoint.Version)}
	}

	var state WorkflowState
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return zero, 0, &CheckpointError{RunID: runID, Op: "deserialize", Err: err}
	}
	return state, cp.Sequence, nil
}

// resumeFromApproval runs wait_for_approval, consults the router, and
// follows the chosen branch to the next suspend or terminal state.
func (e *Engine) resumeFromApproval(ctx context.Context, state WorkflowState, seq *int) (WorkflowState, RunStatus, error) {
	stop := observability.TimedOperation()

	state, err := e.runWave(ctx, state, []string{StageWaitForApproval})
	if err != nil {
		return e.failRun(ctx, state, seq, StageWaitForApproval, err)
	}
	if cpErr := e.saveCheckpoint(ctx, state, seq, StageWaitForApproval, "", RunRunning); cpErr != nil {
		return e.failRun(ctx, state, seq, StageWaitForApproval, cpErr)
	}

	switch Route(state) {
	case DecisionFinalize:
		state, err = e.runWave(ctx, state, []string{StageFinalize})
		if err != nil {
			return e.failRun(ctx, state, seq, StageFinalize, err)
		}
		if cpErr := e.saveCheckpoint(ctx, state, seq, StageFinalize, "", RunCompleted); cpErr != nil {
			return e.failRun(ctx, state, seq, StageFinalize, cpErr)
		}
		observability.LogRunComplete(e.logger, state.RunID, stop(), 2)
		return state, RunCompleted, nil

	case DecisionRegenerate:
		state, err = e.runWave(ctx, state, []string{StageApplyFeedback})
		if err != nil {
			return e.failRun(ctx, state, seq, StageApplyFeedback, err)
		}
		state.Pass++
		if cpErr := e.saveCheckpoint(ctx, state, seq, StageApplyFeedback, "", RunRunning); cpErr != nil {
			return e.failRun(ctx, state, seq, StageApplyFeedback, cpErr)
		}

		// Analysis and the image survive regeneration; only the flagged
		// platform generators run again.
		done := map[string]bool{
			StageAnalyze:       true,
			StageGenerateImage: true,
		}
		return e.runToSuspend(ctx, state, done, seq)

	default:
		if cpErr := e.saveCheckpoint(ctx, state, seq, StageWaitForApproval, StageWaitForApproval, RunSuspended); cpErr != nil {
			return e.failRun(ctx, state, seq, StageWaitForApproval, cpErr)
		}
		observability.LogRunSuspended(e.logger, state.RunID, state.Pass)
		return state, RunSuspended, nil
	}
}

// runToSuspend schedules waves of eligible stages until the suspend point
// is reached, then checkpoints and returns control to the caller.
func (e *Engine) runToSuspend(ctx context.Context, state WorkflowState, done map[string]bool, seq *int) (WorkflowState, RunStatus, error) {
	for {
		if err := ctx.Err(); err != nil {
			return e.failRun(ctx, state, seq, "", err)
		}

		wave, suspend := e.nextWave(state, done)
		if suspend {
			if state.ApprovalStatus == StatusRegenerating {
				// The regeneration wave has consumed the feedback; clear it
				// and the flags before handing the run back to review.
				state.Feedback = ""
				state.RegenerateLinkedIn = false
				state.RegenerateInstagram = false
				state.RegenerateWordPress = false
			}
			if cpErr := e.saveCheckpoint(ctx, state, seq, e.lastDone(done), StageWaitForApproval, RunSuspended); cpErr != nil {
				return e.failRun(ctx, state, seq, "", cpErr)
			}
			observability.LogRunSuspended(e.logger, state.RunID, state.Pass)
			return state, RunSuspended, nil
		}
		if len(wave) == 0 {
			// Validated tables always make progress toward the suspend point.
			return e.failRun(ctx, state, seq, "", fmt.Errorf("no eligible stages"))
		}

		invoked := wave[:0:0]
		for _, name := range wave {
			if e.skipStage(state, name) {
				observability.LogStageSkipped(e.logger, name)
				done[name] = true
				continue
			}
			invoked = append(invoked, name)
		}

		if len(invoked) > 0 {
			var err error
			state, err = e.runWave(ctx, state, invoked)
			if err != nil {
				return e.failRun(ctx, state, seq, invoked[0], err)
			}
			for _, name := range invoked {
				done[name] = true
			}
			if cpErr := e.saveCheckpoint(ctx, state, seq, invoked[len(invoked)-1], "", RunRunning); cpErr != nil {
				return e.failRun(ctx, state, seq, "", cpErr)
			}
		}
	}
}

// nextWave returns the stages eligible to run now. suspend is true when
// the only remaining work before the suspend point is the suspend stage
// itself.
func (e *Engine) nextWave(state WorkflowState, done map[string]bool) (wave []string, suspend bool) {
	for _, def := range e.stages {
		if done[def.Name] {
			continue
		}
		ready := true
		for _, dep := range def.Deps {
			if !done[dep] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		if def.SuspendBefore {
			suspend = true
			continue
		}
		// Stages downstream of the suspend point are driven by routing
		// decisions, never by wave scheduling.
		if e.postSuspend[def.Name] {
			continue
		}
		wave = append(wave, def.Name)
	}

	if len(wave) > 0 {
		// Run real work first; suspension waits until nothing else is eligible.
		return wave, false
	}
	return nil, suspend
}

// skipStage reports whether a generator should keep its prior output on
// a regeneration pass.
func (e *Engine) skipStage(state WorkflowState, name string) bool {
	if state.Pass == 0 {
		return false
	}
	switch name {
	case StageGenerateLinkedIn:
		return !state.RegenerateLinkedIn
	case StageGenerateInstagram:
		return !state.RegenerateInstagram
	case StageGenerateWordPress:
		return !state.RegenerateWordPress
	default:
		return false
	}
}

// lastDone returns a representative completed stage for checkpoint
// position, preferring the latest in table order.
func (e *Engine) lastDone(done map[string]bool) string {
	last := ""
	for _, def := range e.stages {
		if done[def.Name] {
			last = def.Name
		}
	}
	return last
}

// stageResult carries one stage's outcome across the fan-in channel.
type stageResult struct {
	stage string
	patch Patch
	err   error
}

// runWave executes the given stages concurrently against a shared
// read-only snapshot of the state, then merges their patches
// sequentially. Stages in one wave write disjoint fields, so merge order
// does not matter.
func (e *Engine) runWave(ctx context.Context, state WorkflowState, stages []string) (WorkflowState, error) {
	if len(stages) == 1 {
		patch, err := e.executeStage(ctx, stages[0], state)
		if err != nil {
			return state, err
		}
		return Merge(state, patch), nil
	}

	results := make(chan stageResult, len(stages))
	var wg sync.WaitGroup
	for _, name := range stages {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			patch, err := e.executeStage(ctx, name, state)
			results <- stageResult{stage: name, patch: patch, err: err}
		}(name)
	}
	wg.Wait()
	close(results)

	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		state = Merge(state, res.patch)
	}
	if firstErr != nil {
		return state, firstErr
	}
	return state, nil
}

// executeStage runs a single stage function with observability and panic
// recovery.
func (e *Engine) executeStage(ctx context.Context, name string, state WorkflowState) (patch Patch, err error) {
	logger := observability.EnrichLogger(e.logger, state.RunID, name, state.Pass)
	observability.LogStageStart(logger, name)

	stageCtx := ctx
	var span trace.Span
	if e.tracing {
		stageCtx, span = e.spans.StartStageSpan(ctx, name)
	}

	start := time.Now()
	defer func() {
		duration := time.Since(start)
		e.metrics.RecordStageExecution(stageCtx, name, duration, err)
		if e.tracing {
			e.spans.EndSpanWithError(span, err)
		}
		if err != nil {
			observability.LogStageError(logger, name, err)
		} else {
			observability.LogStageComplete(logger, name, float64(duration.Milliseconds()))
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			patch = Patch{}
			err = &PanicError{Stage: name, Value: r, Stack: string(debug.Stack())}
		}
	}()

	fn := e.funcs[name]
	patch, err = fn(stageCtx, state)
	if err != nil {
		return Patch{}, &StageError{Stage: name, Err: err}
	}
	return patch, nil
}

// failRun transitions a run into the terminal error state and writes a
// best-effort final checkpoint. The original stage error is returned even
// if that checkpoint also fails.
func (e *Engine) failRun(ctx context.Context, state WorkflowState, seq *int, stage string, cause error) (WorkflowState, RunStatus, error) {
	state.ApprovalStatus = StatusError
	state.Error = cause.Error()
	state.Finalized = false
	state.RetryCount++

	if cpErr := e.saveCheckpoint(ctx, state, seq, stage, "", RunFailed); cpErr != nil {
		e.logger.Error("failed to checkpoint error state",
			slog.String("run_id", state.RunID),
			slog.String("error", cpErr.Error()))
	}

	observability.LogRunError(e.logger, state.RunID, cause, stage)
	return state, RunFailed, cause
}

// saveCheckpoint persists the current state. Checkpoint failures are
// fatal for the run: a lost checkpoint would lose the approval state.
func (e *Engine) saveCheckpoint(ctx context.Context, state WorkflowState, seq *int, stage, nextStage string, status RunStatus) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return &CheckpointError{RunID: state.RunID, Op: "serialize", Err: err}
	}

	*seq++
	cp := checkpoint.New(state.RunID, *seq, stateBytes).
		WithPosition(stage, nextStage, state.Pass).
		WithStatus(string(status))

	data, err := cp.Marshal()
	if err != nil {
		return &CheckpointError{RunID: state.RunID, Op: "marshal", Err: err}
	}

	if err := e.store.Put(state.RunID, data); err != nil {
		return &CheckpointError{RunID: state.RunID, Op: "put", Err: err}
	}

	observability.LogCheckpoint(e.logger, state.RunID, len(data))
	e.metrics.RecordCheckpoint(ctx, state.RunID, int64(len(data)))
	return nil
}
