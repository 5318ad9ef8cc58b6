// Package execengine implements C5, the Program Execution Engine: Execute
// (queued on C10's background worker), Dispatch (synchronous), Status and
// Stop for a single program invocation, backed by the C1->C2->C3->C4
// pipeline. It has no separate logs, result, pause or resume operations.
package execengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/internal/application/contracts"
	"github.com/smilemakc/mbflow/internal/application/materializer"
	"github.com/smilemakc/mbflow/internal/application/runner"
	"github.com/smilemakc/mbflow/internal/application/streaming"
	"github.com/smilemakc/mbflow/internal/application/supervisor"
	"github.com/smilemakc/mbflow/internal/application/taskqueue"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	storagemodels "github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/smilemakc/mbflow/pkg/models"
)

// Options configures a single execute() call.
type Options struct {
	TimeoutSeconds int
	DeployWebApp   bool // carried but not read; every run uses the language runner registry
}

// Engine is C5: the program execution engine.
type Engine struct {
	programs     repository.ProgramRepository
	executions   repository.ExecutionRepository
	materializer *materializer.Materializer
	runners      *runner.Registry
	supervisor   *supervisor.Supervisor
	hub          *streaming.Hub
	queue        *taskqueue.Queue
	sandboxRoot  string
	log          *logger.Logger
}

// New wires C5 from its collaborators.
func New(
	programs repository.ProgramRepository,
	executions repository.ExecutionRepository,
	mat *materializer.Materializer,
	runners *runner.Registry,
	sup *supervisor.Supervisor,
	hub *streaming.Hub,
	queue *taskqueue.Queue,
	sandboxRoot string,
	log *logger.Logger,
) *Engine {
	return &Engine{
		programs: programs, executions: executions,
		materializer: mat, runners: runners, supervisor: sup, hub: hub,
		queue: queue, sandboxRoot: sandboxRoot, log: log,
	}
}

// Execute creates a persisted, Running Execution and enqueues the actual
// pipeline through C10, returning immediately with the new execution ID
// (spec.md §4.5: "enqueues the actual work through C10; returns
// immediately"). Use this for standalone, HTTP-triggered program runs.
func (e *Engine) Execute(ctx context.Context, programID, versionID, userID string, parameters map[string]interface{}, opts Options) (*models.Execution, error) {
	execution, programUUID, versionUUID, err := e.createRecord(ctx, programID, versionID, userID, parameters)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	enqueueErr := e.queue.Enqueue(ctx, func(bgCtx context.Context) {
		e.run(bgCtx, execution.ID, programUUID, versionUUID, parameters, timeout)
	})
	if enqueueErr != nil {
		return nil, fmt.Errorf("enqueue execution: %w", enqueueErr)
	}

	return execution, nil
}

// Dispatch runs a single node's program synchronously to completion and
// returns its terminal Execution. Unlike Execute, it does not go through
// C10: C8 manages its own per-workflow concurrency cap (maxConcurrentNodes)
// across many simultaneously dispatched nodes, and routing every node
// through C10's single worker would serialize them.
func (e *Engine) Dispatch(ctx context.Context, programID, versionID, userID string, parameters map[string]interface{}, opts Options) (*models.Execution, error) {
	execution, programUUID, versionUUID, err := e.createRecord(ctx, programID, versionID, userID, parameters)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	e.run(ctx, execution.ID, programUUID, versionUUID, parameters, timeout)

	return e.Status(ctx, execution.ID)
}

func (e *Engine) createRecord(ctx context.Context, programID, versionID, userID string, parameters map[string]interface{}) (*models.Execution, uuid.UUID, uuid.UUID, error) {
	programUUID, err := uuid.Parse(programID)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, fmt.Errorf("parse program id: %w", err)
	}
	versionUUID, err := uuid.Parse(versionID)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, fmt.Errorf("parse version id: %w", err)
	}

	execution := &models.Execution{
		ID:         uuid.NewString(),
		ProgramID:  programID,
		VersionID:  versionID,
		UserID:     userID,
		Status:     models.ExecutionStatusRunning,
		Parameters: parameters,
		StartedAt:  time.Now(),
	}
	execUUID, err := uuid.Parse(execution.ID)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, err
	}
	record := storagemodels.ProgramExecutionToStorage(execution, execUUID, programUUID, versionUUID)
	if err := e.executions.Create(ctx, record); err != nil {
		return nil, uuid.Nil, uuid.Nil, fmt.Errorf("persist execution: %w", err)
	}
	return execution, programUUID, versionUUID, nil
}

// run is C5's internal pipeline (on C10's worker for Execute, inline for
// Dispatch): resolve version -> allocate sandbox -> C1 materialize -> C2
// select+build -> C3 supervise (piping emit into C4) -> persist terminal
// results -> release sandbox, retaining its output/ directory, which holds
// the files listed in results.outputFiles.
func (e *Engine) run(ctx context.Context, executionID string, programID, versionID uuid.UUID, parameters map[string]interface{}, timeout time.Duration) {
	defer supervisor.ClearEmitter(executionID)
	supervisor.SetEmitter(executionID, e.hub.Emit(executionID))

	program, version, component, err := e.resolve(ctx, programID, versionID)
	if err != nil {
		e.fail(ctx, executionID, err)
		return
	}

	sandboxRoot := filepath.Join(e.sandboxRoot, executionID)
	defer func() {
		entries, _ := os.ReadDir(sandboxRoot)
		for _, entry := range entries {
			if entry.Name() != "output" {
				os.RemoveAll(filepath.Join(sandboxRoot, entry.Name()))
			}
		}
	}()

	if _, err := e.materializer.Materialize(ctx, program, version, component, sandboxRoot); err != nil {
		e.fail(ctx, executionID, err)
		return
	}

	rn, err := e.runners.Get(program.Language)
	if err != nil {
		e.fail(ctx, executionID, &models.SpawnError{ExecutionID: executionID, Err: err})
		return
	}
	plan, err := rn.Build(sandboxRoot, parameters)
	if err != nil {
		e.fail(ctx, executionID, &models.SpawnError{ExecutionID: executionID, Err: err})
		return
	}

	outcome := e.supervisor.Run(ctx, executionID, plan, timeout)
	e.persistOutcome(ctx, executionID, programID, versionID, outcome)
}

func (e *Engine) resolve(ctx context.Context, programID, versionID uuid.UUID) (*models.Program, *models.Version, *models.UiComponent, error) {
	pm, err := e.programs.FindProgramByID(ctx, programID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("find program: %w", err)
	}
	vm, err := e.programs.FindVersionByID(ctx, versionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("find version: %w", err)
	}

	program := storagemodels.ProgramFromStorage(pm)
	version := storagemodels.VersionFromStorage(vm)
	if !version.CanExecute() {
		return nil, nil, nil, fmt.Errorf("version %s is not approved for execution", version.ID)
	}

	var component *models.UiComponent
	comps, err := e.programs.FindUiComponentsByVersionID(ctx, versionID)
	if err == nil && len(comps) > 0 {
		component = storagemodels.UiComponentFromStorage(comps[0])
	}

	return program, version, component, nil
}

func (e *Engine) fail(ctx context.Context, executionID string, err error) {
	e.log.Error("program execution failed before supervision", "execution_id", executionID, "error", err)
	now := time.Now()
	rec, findErr := e.executions.FindByID(ctx, mustParse(executionID))
	if findErr != nil {
		return
	}
	rec.Status = string(models.ExecutionStatusFailed)
	rec.Error = err.Error()
	rec.CompletedAt = &now
	_ = e.executions.Update(ctx, rec)

	e.hub.Publish(executionID, models.StreamEvent{ExecutionID: executionID, Type: models.StreamEventCompleted, Payload: map[string]interface{}{"error": err.Error()}, CreatedAt: now})
}

func (e *Engine) persistOutcome(ctx context.Context, executionID string, programID, versionID uuid.UUID, outcome supervisor.Outcome) {
	rec, err := e.executions.FindByID(ctx, mustParse(executionID))
	if err != nil {
		e.log.Error("failed to load execution for outcome persistence", "execution_id", executionID, "error", err)
		return
	}

	now := time.Now()
	rec.CompletedAt = &now
	rec.ExitCode = outcome.ExitCode
	rec.Output = outcome.Output
	outputFiles := make(storagemodels.JSONBSlice, len(outcome.OutputFiles))
	for i, f := range outcome.OutputFiles {
		outputFiles[i] = f
	}
	rec.OutputFiles = outputFiles
	rec.CPUTimeMs = outcome.ResourceUsage.CPUTimeMs
	rec.MemoryUsed = outcome.ResourceUsage.MemoryUsed
	rec.DiskUsed = outcome.ResourceUsage.DiskUsed

	switch {
	case outcome.Err == nil:
		rec.Status = string(models.ExecutionStatusCompleted)
	default:
		if _, ok := outcome.Err.(*models.CancelledError); ok {
			rec.Status = string(models.ExecutionStatusStopped)
		} else {
			rec.Status = string(models.ExecutionStatusFailed)
		}
		rec.Error = outcome.Err.Error()
	}

	if err := e.executions.Update(ctx, rec); err != nil {
		e.log.Error("failed to persist execution outcome", "execution_id", executionID, "error", err)
	}
}

func mustParse(id string) uuid.UUID {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return u
}

// Stop cancels a running execution via the process supervisor.
func (e *Engine) Stop(executionID string) bool {
	return supervisor.Stop(executionID)
}

// Status returns an execution's current persisted state.
func (e *Engine) Status(ctx context.Context, executionID string) (*models.Execution, error) {
	rec, err := e.executions.FindByID(ctx, mustParse(executionID))
	if err != nil {
		return nil, err
	}
	return storagemodels.ProgramExecutionFromStorage(rec), nil
}

// ContractRouterFor exposes a fresh C6 router scoped to executionID, for
// callers (C8) that need to route this program's output within a larger
// workflow run.
func ContractRouterFor(executionID string) *contracts.Router {
	return contracts.New(executionID)
}
