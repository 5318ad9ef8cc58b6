// Package scheduler implements C8, the Workflow Scheduler/Execution
// Engine: a ready-set dispatch state machine over a WorkflowExecution. It
// replaces a wave-barrier executor (every node at depth N blocks until
// depth N-1 fully completes) with continuous per-node dispatch as soon as
// each node's own dependencies resolve, so independent branches overlap
// instead of waiting on the slowest sibling.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/application/contracts"
	"github.com/smilemakc/mbflow/internal/application/execengine"
	"github.com/smilemakc/mbflow/internal/application/streaming"
	"github.com/smilemakc/mbflow/internal/application/taskqueue"
	"github.com/smilemakc/mbflow/internal/application/uisession"
	"github.com/smilemakc/mbflow/internal/application/validator"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	storagemodels "github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/smilemakc/mbflow/pkg/models"
)

// defaultMaxConcurrentNodes caps in-flight node dispatch when neither the
// request nor the workflow's own settings declare a limit.
const defaultMaxConcurrentNodes = 5

// Request carries the caller-supplied parameters of a single workflow run.
type Request struct {
	ExecutedBy         string
	UserInputs         map[string]interface{}
	GlobalVariables    map[string]interface{}
	Environment        map[string]string
	MaxConcurrentNodes int
	TimeoutMinutes     int
	ContinueOnError    bool
}

// WorkflowInvalidError is returned by Execute when C7 rejects the
// workflow; Result carries every collected issue for the caller to
// surface verbatim.
type WorkflowInvalidError struct {
	Result models.WorkflowValidationResult
}

func (e *WorkflowInvalidError) Error() string {
	if len(e.Result.Errors) == 0 {
		return "workflow failed validation"
	}
	return fmt.Sprintf("workflow failed validation: %s", e.Result.Errors[0].Message)
}

// Engine is C8.
type Engine struct {
	workflows  repository.WorkflowRepository
	execs      repository.WorkflowExecutionRepository
	execengine *execengine.Engine
	uisessions *uisession.Manager
	hub        *streaming.Hub
	queue      *taskqueue.Queue
	log        *logger.Logger

	mu   sync.Mutex
	runs map[string]*run
}

// New wires C8 from its collaborators: C7 validation happens inline via
// the validator package, C6 routing and C9/C10/C5 dispatch are held as
// live handles.
func New(
	workflows repository.WorkflowRepository,
	execs repository.WorkflowExecutionRepository,
	eng *execengine.Engine,
	ui *uisession.Manager,
	hub *streaming.Hub,
	queue *taskqueue.Queue,
	log *logger.Logger,
) *Engine {
	return &Engine{
		workflows: workflows, execs: execs, execengine: eng,
		uisessions: ui, hub: hub, queue: queue, log: log,
		runs: make(map[string]*run),
	}
}

// readyItem is one node admitted past dependency/condition checks, with
// its assembled input map, awaiting a concurrency slot.
type readyItem struct {
	node   *models.Node
	inputs map[string]interface{}
}

// run holds one WorkflowExecution's live scheduling state. Every mutation
// of we, nodeExecutions, or terminal/paused happens with mu held, the
// per-execution mutex spec.md §5 requires to serialize ready-set
// recomputation and status transitions.
type run struct {
	mu sync.Mutex

	wf       *models.Workflow
	we       *models.WorkflowExecution
	neByNode map[string]*models.NodeExecution
	router   *contracts.Router

	sem chan struct{} // concurrency cap; one slot held per in-flight node

	paused    bool
	terminal  bool
	cancelled bool
	timedOut  bool
	failure   error

	cancelFunc context.CancelFunc
	signal     func() // wakes the scheduling loop to recompute the ready set
}

func (r *run) nodeExec(nodeID string) *models.NodeExecution { return r.neByNode[nodeID] }

func (r *run) retryLimit(node *models.Node) int {
	if node.ExecutionSettings.RetryCount > 0 {
		return node.ExecutionSettings.RetryCount
	}
	return r.wf.Settings.RetryPolicy.MaxRetries
}

// retryDelay implements SPEC_FULL.md's recorded precedence decision:
// node-level executionSettings wins over workflow.settings.retryPolicy
// when both are set.
func (r *run) retryDelay(node *models.Node, attempt int) time.Duration {
	delaySeconds := node.ExecutionSettings.RetryDelay
	exponential := false
	if delaySeconds <= 0 {
		delaySeconds = r.wf.Settings.RetryPolicy.DelaySeconds
		exponential = r.wf.Settings.RetryPolicy.ExponentialBackoff
	}
	if delaySeconds <= 0 {
		delaySeconds = 1
	}
	if exponential {
		return time.Duration(delaySeconds) * time.Second * time.Duration(math.Pow(2, float64(attempt-1)))
	}
	return time.Duration(delaySeconds*attempt) * time.Second
}

// dependenciesSatisfied inspects nodeID's inbound Data/Conditional/
// Parallel/Merge edges (Control and Loop edges carry no data dependency).
// satisfied is true once every required edge's source has Completed (or
// Skipped/Failed/Cancelled/Timeout on an Optional edge). blocked is true
// when a required edge's source reached a terminal non-Completed state,
// meaning nodeID can never become ready and must itself be skipped.
func (r *run) dependenciesSatisfied(nodeID string) (satisfied, blocked bool) {
	inbound := r.wf.EdgesTo(nodeID)
	if len(inbound) == 0 {
		return true, false
	}
	for _, e := range inbound {
		if e.Type == models.EdgeTypeControl || e.Type == models.EdgeTypeLoop {
			continue
		}
		src := r.nodeExec(e.SourceNodeID)
		if src == nil {
			continue
		}
		switch src.Status {
		case models.NodeExecutionCompleted:
			continue
		case models.NodeExecutionSkipped, models.NodeExecutionFailed, models.NodeExecutionCancelled, models.NodeExecutionTimeout:
			if e.Optional {
				continue
			}
			return false, true
		default:
			return false, false
		}
	}
	return true, false
}

// Execute validates wf (C7), persists a new WorkflowExecution and its
// per-node records, and kicks the run off through C10 (spec.md §4.10:
// "used both by C5 ... and by C8 (workflow kick-off)"), returning
// immediately.
func (e *Engine) Execute(ctx context.Context, workflowID string, req Request) (*models.WorkflowExecution, error) {
	wfUUID, err := uuid.Parse(workflowID)
	if err != nil {
		return nil, fmt.Errorf("parse workflow id: %w", err)
	}
	wm, err := e.workflows.FindByIDWithRelations(ctx, wfUUID)
	if err != nil {
		return nil, fmt.Errorf("find workflow: %w", err)
	}
	wf := storagemodels.WorkflowFromStorage(wm)

	result := validator.Validate(wf)
	if !result.IsValid {
		return nil, &WorkflowInvalidError{Result: result}
	}

	maxConcurrent := req.MaxConcurrentNodes
	if maxConcurrent <= 0 {
		maxConcurrent = wf.Settings.MaxConcurrentNodes
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentNodes
	}
	timeoutMinutes := req.TimeoutMinutes
	if timeoutMinutes <= 0 {
		timeoutMinutes = wf.Settings.TimeoutMinutes
	}

	we := &models.WorkflowExecution{
		ID:              uuid.NewString(),
		WorkflowID:      wf.ID,
		WorkflowVersion: wf.Version,
		ExecutedBy:      req.ExecutedBy,
		Status:          models.WorkflowExecutionPending,
		Progress:        models.Progress{TotalNodes: len(wf.Nodes)},
		ExecutionContext: models.ExecutionContext{
			UserInputs:         req.UserInputs,
			GlobalVariables:    req.GlobalVariables,
			Environment:        req.Environment,
			MaxConcurrentNodes: maxConcurrent,
			TimeoutMinutes:     timeoutMinutes,
			ContinueOnError:    req.ContinueOnError,
		},
		StartedAt: time.Now(),
	}
	weUUID, err := uuid.Parse(we.ID)
	if err != nil {
		return nil, err
	}
	if err := e.execs.Create(ctx, storagemodels.WorkflowExecutionToStorage(we, weUUID, wfUUID)); err != nil {
		return nil, fmt.Errorf("persist workflow execution: %w", err)
	}

	neByNode := make(map[string]*models.NodeExecution, len(wf.Nodes))
	for _, n := range wf.Nodes {
		ne := &models.NodeExecution{ID: uuid.NewString(), WorkflowExecutionID: we.ID, NodeID: n.ID, Status: models.NodeExecutionPending}
		we.NodeExecutions = append(we.NodeExecutions, ne)
		neByNode[n.ID] = ne
		neUUID, err := uuid.Parse(ne.ID)
		if err != nil {
			return nil, err
		}
		if err := e.execs.CreateNodeExecution(ctx, storagemodels.NodeExecutionToStorage(ne, neUUID, weUUID)); err != nil {
			return nil, fmt.Errorf("persist node execution %s: %w", n.ID, err)
		}
	}

	r := &run{
		wf: wf, we: we, neByNode: neByNode,
		router: contracts.New(we.ID),
		sem:    make(chan struct{}, maxConcurrent),
	}

	e.mu.Lock()
	e.runs[we.ID] = r
	e.mu.Unlock()

	enqueueErr := e.queue.Enqueue(ctx, func(bgCtx context.Context) {
		e.runWorkflow(bgCtx, r)
	})
	if enqueueErr != nil {
		e.mu.Lock()
		delete(e.runs, we.ID)
		e.mu.Unlock()
		return nil, fmt.Errorf("enqueue workflow execution: %w", enqueueErr)
	}

	return we, nil
}

// runWorkflow drives one WorkflowExecution from Running to a terminal
// status via the ready-set loop (spec.md §4.8 steps 1-7), executed on
// C10's worker goroutine.
func (e *Engine) runWorkflow(ctx context.Context, r *run) {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancelFunc = cancel
	r.mu.Unlock()
	defer cancel()

	if r.we.ExecutionContext.TimeoutMinutes > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, time.Duration(r.we.ExecutionContext.TimeoutMinutes)*time.Minute)
		defer timeoutCancel()
	}

	e.hub.Publish(r.we.ID, models.StreamEvent{ExecutionID: r.we.ID, Type: models.StreamEventStarted, CreatedAt: time.Now()})
	e.transition(ctx, r, models.WorkflowExecutionRunning)

	wake := make(chan struct{}, 1)
	r.mu.Lock()
	r.signal = func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	r.mu.Unlock()

	var active sync.WaitGroup
	for {
		e.dispatchReady(runCtx, r, &active, r.signal)

		r.mu.Lock()
		finished := r.we.Progress.Done() || r.terminal
		r.mu.Unlock()
		if finished {
			break
		}

		select {
		case <-wake:
		case <-runCtx.Done():
			r.mu.Lock()
			if !r.terminal {
				r.terminal = true
				if runCtx.Err() == context.DeadlineExceeded {
					r.timedOut = true
				} else {
					r.cancelled = true
				}
			}
			r.mu.Unlock()
		}
	}

	active.Wait()
	e.finalize(ctx, r)
}

// dispatchReady computes the current ready set and admits as many as fit
// under the concurrency cap, in priority order, then spawns one goroutine
// per admitted node. It is the only place that marks a node Running,
// which — combined with holding r.mu throughout admission — guarantees a
// node is never dispatched twice.
func (e *Engine) dispatchReady(runCtx context.Context, r *run, active *sync.WaitGroup, signal func()) {
	r.mu.Lock()
	if r.paused || r.terminal {
		r.mu.Unlock()
		return
	}
	candidates := e.computeReadySet(runCtx, r)

	var admitted []readyItem
	for _, item := range candidates {
		select {
		case r.sem <- struct{}{}:
		default:
			continue
		}
		ne := r.nodeExec(item.node.ID)
		now := time.Now()
		ne.Status = models.NodeExecutionRunning
		ne.StartedAt = &now
		ne.Input = item.inputs
		e.persistNodeExecution(runCtx, r, ne)
		r.we.Progress.Running++
		r.we.Progress.Recompute()
		admitted = append(admitted, item)
	}
	r.mu.Unlock()

	for _, item := range admitted {
		active.Add(1)
		go func(it readyItem) {
			defer active.Done()
			e.runNode(runCtx, r, it, signal)
		}(item)
	}
}

// computeReadySet must be called with r.mu held. It settles any cascading
// Skipped/Failed outcomes to a fixpoint (a skip can unblock another
// node's skip) and returns the nodes now eligible for dispatch, sorted by
// descending priority then ascending node ID (spec.md §4.8 step 3).
func (e *Engine) computeReadySet(ctx context.Context, r *run) []readyItem {
	var ready []readyItem
	for {
		progressed := false
		ready = ready[:0]
		for _, n := range r.wf.Nodes {
			ne := r.nodeExec(n.ID)
			if ne.Status != models.NodeExecutionPending {
				continue
			}
			satisfied, blocked := r.dependenciesSatisfied(n.ID)
			if blocked {
				e.markSkipped(ctx, r, ne, "a required upstream dependency did not complete")
				progressed = true
				continue
			}
			if !satisfied {
				continue
			}
			inputs, ok := e.resolveNode(ctx, r, n, ne)
			if !ok {
				progressed = true
				continue
			}
			ready = append(ready, readyItem{node: n, inputs: inputs})
		}
		if !progressed {
			break
		}
	}
	sortReadyItems(ready)
	return ready
}

func sortReadyItems(items []readyItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			a, b := items[j-1].node, items[j].node
			if priorityLess(b, a) {
				items[j-1], items[j] = items[j], items[j-1]
				continue
			}
			break
		}
	}
}

// priorityLess orders by descending ExecutionSettings.Priority, then
// ascending node ID as a deterministic tie-break.
func priorityLess(a, b *models.Node) bool {
	if a.ExecutionSettings.Priority != b.ExecutionSettings.Priority {
		return a.ExecutionSettings.Priority > b.ExecutionSettings.Priority
	}
	return a.ID < b.ID
}

// resolveNode assembles target's inputs via C6 and evaluates its
// ConditionalExecution predicate, if any. Returning ok=false means the
// node's terminal status has already been set (Skipped or Failed) and it
// must not be added to the ready set.
func (e *Engine) resolveNode(ctx context.Context, r *run, n *models.Node, ne *models.NodeExecution) (map[string]interface{}, bool) {
	inputs, err := r.router.AssembleInputs(n, r.we.ExecutionContext)
	if err != nil {
		if n.ConditionalExecution != nil && n.ConditionalExecution.SkipIfFails {
			e.markSkipped(ctx, r, ne, err.Error())
		} else {
			e.handleNodeFailure(ctx, r, n, ne, err, false)
		}
		return nil, false
	}

	if n.ConditionalExecution != nil && n.ConditionalExecution.Expression != "" {
		ok, evalErr := evaluateCondition(n.ConditionalExecution.Expression, inputs, r.we.ExecutionContext.GlobalVariables)
		if evalErr != nil || !ok {
			reason := "condition evaluated false"
			if evalErr != nil {
				reason = "condition evaluation error: " + evalErr.Error()
			}
			e.markSkipped(ctx, r, ne, reason)
			return nil, false
		}
	}

	return inputs, true
}

func evaluateCondition(expression string, inputs, globals map[string]interface{}) (bool, error) {
	env := make(map[string]interface{}, len(inputs)+len(globals)+1)
	for k, v := range globals {
		env[k] = v
	}
	for k, v := range inputs {
		env[k] = v
	}
	env["inputs"] = inputs

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	ok, _ := result.(bool)
	return ok, nil
}

// runNode dispatches a single admitted node to completion, releasing its
// concurrency slot when the node's own work is done — immediately for a
// UI interaction (spec.md §4.8 step 5: "releases its concurrency slot"
// while parked awaiting human input), at the end for everything else.
func (e *Engine) runNode(runCtx context.Context, r *run, item readyItem, signal func()) {
	node := item.node
	ne := r.nodeExec(node.ID)

	if node.IsUIInteraction() {
		e.runUINode(runCtx, r, node, ne, item.inputs, signal)
		return
	}
	defer func() { <-r.sem }()

	if node.Type != models.NodeTypeProgram {
		r.mu.Lock()
		e.completeNode(context.Background(), r, node, ne, item.inputs, nil)
		r.mu.Unlock()
		signal()
		return
	}

	e.runProgramNode(runCtx, r, node, ne, item.inputs, signal)
}

func (e *Engine) runProgramNode(runCtx context.Context, r *run, node *models.Node, ne *models.NodeExecution, inputs map[string]interface{}, signal func()) {
	opts := execengine.Options{TimeoutSeconds: node.ExecutionSettings.TimeoutMinutes * 60}
	execution, err := e.execengine.Dispatch(runCtx, node.ProgramID, node.VersionID, r.we.ExecutedBy, inputs, opts)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		e.handleNodeFailure(context.Background(), r, node, ne, err, false)
		signal()
		return
	}

	ne.ProgramExecutionID = execution.ID
	switch execution.Status {
	case models.ExecutionStatusCompleted:
		raw := contracts.ParseRawOutput(execution.Results.Output)
		e.completeNode(context.Background(), r, node, ne, inputs, raw)
	case models.ExecutionStatusStopped:
		now := time.Now()
		ne.Status = models.NodeExecutionCancelled
		ne.CompletedAt = &now
		e.persistNodeExecution(context.Background(), r, ne)
		r.we.Progress.Running--
		r.we.Progress.Failed++
		r.we.Progress.Recompute()
	default:
		failErr := nodeFailureFromResults(execution)
		e.handleNodeFailure(context.Background(), r, node, ne, failErr, classifyRetryable(failErr))
	}
	signal()
}

func nodeFailureFromResults(execution *models.Execution) error {
	if execution.Results != nil && execution.Results.ExitCode != 0 {
		return &models.NonZeroExitError{ExecutionID: execution.ID, ExitCode: execution.Results.ExitCode}
	}
	if execution.Results != nil && execution.Results.Error != "" {
		return fmt.Errorf("%s", execution.Results.Error)
	}
	return fmt.Errorf("program execution %s failed", execution.ID)
}

// classifyRetryable reports whether failErr is a transient condition
// spec.md §7 marks retry-eligible (NonZeroExit, Timeout); SpawnError and
// MaterializationError are fatal and never retried.
func classifyRetryable(failErr error) bool {
	switch failErr.(type) {
	case *models.NonZeroExitError, *models.TimeoutError:
		return true
	default:
		return false
	}
}

// runUINode creates a C9 session for node, releases this node's
// concurrency slot while it waits, and resumes scheduling once the
// interaction resolves (submit, cancel, expiry, or workflow cancel).
func (e *Engine) runUINode(runCtx context.Context, r *run, node *models.Node, ne *models.NodeExecution, inputs map[string]interface{}, signal func()) {
	timeout := time.Duration(node.ExecutionSettings.TimeoutMinutes) * time.Minute
	iid, waiter, err := e.uisessions.Create(runCtx, r.we.ID, node.ID, models.InteractionUserInput, inputs, timeout)
	if err != nil {
		r.mu.Lock()
		e.handleNodeFailure(context.Background(), r, node, ne, err, false)
		r.mu.Unlock()
		<-r.sem
		signal()
		return
	}

	<-r.sem // parked awaiting human input; give the slot back to the pool

	select {
	case outcome := <-waiter:
		r.mu.Lock()
		if outcome.Err != nil {
			e.handleNodeFailure(context.Background(), r, node, ne, outcome.Err, false)
		} else {
			e.completeNode(context.Background(), r, node, ne, inputs, outcome.Interaction.OutputData)
		}
		r.mu.Unlock()
		signal()
	case <-runCtx.Done():
		_ = e.uisessions.Cancel(context.Background(), iid, "workflow cancelled")
		r.mu.Lock()
		now := time.Now()
		ne.Status = models.NodeExecutionCancelled
		ne.CompletedAt = &now
		e.persistNodeExecution(context.Background(), r, ne)
		r.we.Progress.Running--
		r.we.Progress.Failed++
		r.we.Progress.Recompute()
		r.mu.Unlock()
		signal()
	}
}

// completeNode marks ne Completed, routes its output to downstream edges
// via C6, and publishes a progress event. Caller must hold r.mu.
func (e *Engine) completeNode(ctx context.Context, r *run, node *models.Node, ne *models.NodeExecution, inputs, raw map[string]interface{}) {
	now := time.Now()
	ne.Status = models.NodeExecutionCompleted
	ne.Output = raw
	ne.CompletedAt = &now
	e.persistNodeExecution(ctx, r, ne)

	r.we.Progress.Running--
	r.we.Progress.Completed++
	r.we.Progress.Recompute()

	outEdges := r.wf.EdgesFrom(node.ID)
	if err := r.router.RouteOutput(node, outEdges, raw, nil); err != nil {
		e.log.Error("route node output failed", "node_id", node.ID, "error", err)
	}

	e.hub.Publish(r.we.ID, models.StreamEvent{
		ExecutionID: r.we.ID, Type: models.StreamEventProgress,
		Payload:   map[string]interface{}{"nodeId": node.ID, "status": "Completed", "percent": r.we.Progress.Percent},
		CreatedAt: now,
	})
}

// handleNodeFailure applies the retry/fail decision for a node's terminal
// error: retry (if the error kind allows it and the node hasn't exhausted
// its retry budget), else Failed — and, unless the execution is
// configured to continue on error, marks the whole run terminal. Caller
// must hold r.mu.
func (e *Engine) handleNodeFailure(ctx context.Context, r *run, node *models.Node, ne *models.NodeExecution, failErr error, canRetry bool) {
	if canRetry && ne.RetryCount < r.retryLimit(node) {
		e.scheduleRetry(ctx, r, node, ne, failErr)
		return
	}

	now := time.Now()
	ne.Status = models.NodeExecutionFailed
	ne.Error = failErr.Error()
	ne.CompletedAt = &now
	e.persistNodeExecution(ctx, r, ne)

	r.we.Progress.Running--
	r.we.Progress.Failed++
	r.we.Progress.Recompute()

	e.hub.Publish(r.we.ID, models.StreamEvent{
		ExecutionID: r.we.ID, Type: models.StreamEventStatus,
		Payload:   map[string]interface{}{"nodeId": node.ID, "status": "Failed", "error": failErr.Error()},
		CreatedAt: now,
	})

	if !r.we.ExecutionContext.ContinueOnError {
		r.terminal = true
		r.failure = failErr
	}
}

// scheduleRetry moves ne back to Pending after the node's configured
// retry delay so the next ready-set pass redispatches it.
func (e *Engine) scheduleRetry(ctx context.Context, r *run, node *models.Node, ne *models.NodeExecution, failErr error) {
	ne.RetryCount++
	ne.Status = models.NodeExecutionRetrying
	ne.Error = failErr.Error()
	e.persistNodeExecution(ctx, r, ne)
	r.we.Progress.Running--
	r.we.Progress.Recompute()

	delay := r.retryDelay(node, ne.RetryCount)
	time.AfterFunc(delay, func() {
		r.mu.Lock()
		if ne.Status == models.NodeExecutionRetrying {
			ne.Status = models.NodeExecutionPending
		}
		signal := r.signal
		r.mu.Unlock()
		if signal != nil {
			signal()
		}
	})
}

func (e *Engine) markSkipped(ctx context.Context, r *run, ne *models.NodeExecution, reason string) {
	now := time.Now()
	ne.Status = models.NodeExecutionSkipped
	ne.SkipReason = reason
	ne.CompletedAt = &now
	e.persistNodeExecution(ctx, r, ne)

	r.we.Progress.Skipped++
	r.we.Progress.Recompute()

	e.hub.Publish(r.we.ID, models.StreamEvent{
		ExecutionID: r.we.ID, Type: models.StreamEventProgress,
		Payload:   map[string]interface{}{"nodeId": ne.NodeID, "status": "Skipped", "reason": reason},
		CreatedAt: now,
	})
}

// finalize determines the run's terminal WorkflowExecutionStatus and
// persists it once every dispatched node has actually stopped running.
func (e *Engine) finalize(ctx context.Context, r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := models.WorkflowExecutionCompleted
	switch {
	case r.cancelled:
		status = models.WorkflowExecutionCancelled
	case r.timedOut:
		status = models.WorkflowExecutionTimeout
	case r.failure != nil:
		status = models.WorkflowExecutionFailed
		r.we.Error = r.failure.Error()
	default:
		for _, ne := range r.we.NodeExecutions {
			if ne.Status != models.NodeExecutionCompleted && ne.Status != models.NodeExecutionSkipped {
				status = models.WorkflowExecutionFailed
				break
			}
		}
	}

	now := time.Now()
	r.we.Status = status
	r.we.CompletedAt = &now
	e.persistWorkflowExecution(ctx, r)

	e.hub.Publish(r.we.ID, models.StreamEvent{
		ExecutionID: r.we.ID, Type: models.StreamEventCompleted,
		Payload:   map[string]interface{}{"status": string(status)},
		CreatedAt: now,
	})

	e.mu.Lock()
	delete(e.runs, r.we.ID)
	e.mu.Unlock()
}

func (e *Engine) transition(ctx context.Context, r *run, next models.WorkflowExecutionStatus) {
	r.mu.Lock()
	r.we.Status = next
	r.mu.Unlock()
	e.persistWorkflowExecution(ctx, r)
	e.hub.Publish(r.we.ID, models.StreamEvent{
		ExecutionID: r.we.ID, Type: models.StreamEventStatus,
		Payload:   map[string]interface{}{"status": string(next)},
		CreatedAt: time.Now(),
	})
}

func (e *Engine) persistWorkflowExecution(ctx context.Context, r *run) {
	wfUUID, err := uuid.Parse(r.wf.ID)
	if err != nil {
		e.log.Error("invalid workflow id on persist", "workflow_id", r.wf.ID, "error", err)
		return
	}
	weUUID, err := uuid.Parse(r.we.ID)
	if err != nil {
		e.log.Error("invalid workflow execution id on persist", "execution_id", r.we.ID, "error", err)
		return
	}
	record := storagemodels.WorkflowExecutionToStorage(r.we, weUUID, wfUUID)
	if err := e.execs.Update(ctx, record); err != nil {
		e.log.Error("persist workflow execution failed", "execution_id", r.we.ID, "error", err)
	}
}

func (e *Engine) persistNodeExecution(ctx context.Context, r *run, ne *models.NodeExecution) {
	weUUID, err := uuid.Parse(r.we.ID)
	if err != nil {
		return
	}
	neUUID, err := uuid.Parse(ne.ID)
	if err != nil {
		return
	}
	if err := e.execs.UpdateNodeExecution(ctx, storagemodels.NodeExecutionToStorage(ne, neUUID, weUUID)); err != nil {
		e.log.Error("persist node execution failed", "node_id", ne.NodeID, "error", err)
	}
}

func (e *Engine) activeRun(executionID string) (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[executionID]
	if !ok {
		return nil, models.ErrWorkflowExecutionNotFound
	}
	return r, nil
}

// Pause stops new node dispatch; nodes already running continue to
// completion (spec.md §4.8 step 6).
func (e *Engine) Pause(ctx context.Context, executionID string) error {
	r, err := e.activeRun(executionID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if !r.we.Status.CanTransitionTo(models.WorkflowExecutionPaused) {
		r.mu.Unlock()
		return models.ErrInvalidStateTransition
	}
	r.paused = true
	r.we.Status = models.WorkflowExecutionPaused
	r.mu.Unlock()

	e.persistWorkflowExecution(ctx, r)
	e.hub.Publish(executionID, models.StreamEvent{
		ExecutionID: executionID, Type: models.StreamEventStatus,
		Payload: map[string]interface{}{"status": string(models.WorkflowExecutionPaused)}, CreatedAt: time.Now(),
	})
	return nil
}

// Resume re-enables dispatch and wakes the scheduling loop.
func (e *Engine) Resume(ctx context.Context, executionID string) error {
	r, err := e.activeRun(executionID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if !r.we.Status.CanTransitionTo(models.WorkflowExecutionRunning) {
		r.mu.Unlock()
		return models.ErrInvalidStateTransition
	}
	r.paused = false
	r.we.Status = models.WorkflowExecutionRunning
	signal := r.signal
	r.mu.Unlock()

	e.persistWorkflowExecution(ctx, r)
	e.hub.Publish(executionID, models.StreamEvent{
		ExecutionID: executionID, Type: models.StreamEventStatus,
		Payload: map[string]interface{}{"status": string(models.WorkflowExecutionRunning)}, CreatedAt: time.Now(),
	})
	if signal != nil {
		signal()
	}
	return nil
}

// Cancel marks the run terminal and cancels its context, cascading down
// to every in-flight node's process (C3) or UI session (C9) (spec.md §5:
// "cancellation cascades from workflow to node to process").
func (e *Engine) Cancel(executionID string) error {
	r, err := e.activeRun(executionID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cancelled = true
	r.terminal = true
	cancelFn := r.cancelFunc
	r.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
	}
	return nil
}

// Status returns a workflow execution's current persisted state.
func (e *Engine) Status(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	id, err := uuid.Parse(executionID)
	if err != nil {
		return nil, err
	}
	wem, err := e.execs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	nes, err := e.execs.FindNodeExecutionsByWorkflowExecutionID(ctx, id)
	if err == nil {
		wem.NodeExecutions = nes
	}
	return storagemodels.WorkflowExecutionFromStorage(wem), nil
}
