// Package supervisor implements C3, the Process Supervisor: spawns the
// OS process built by C2's Plan, streams its stdout/stderr line-by-line,
// samples peak resource usage, and enforces timeout/cancellation,
// emitting every observation as a models.StreamEvent for C4 to publish.
package supervisor

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/smilemakc/mbflow/internal/application/runner"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/pkg/models"
)

// Emit publishes one event for an execution; the caller (C5) wires this
// to the streaming hub (C4).
type Emit func(event models.StreamEvent)

// Outcome is the terminal result of a supervised run.
type Outcome struct {
	ExitCode      int
	OutputFiles   []string
	Output        string
	Duration      time.Duration
	ResourceUsage models.ResourceUsage
	Err           error // non-nil => SpawnError/TimeoutError/CancelledError/NonZeroExitError
}

// Supervisor spawns and watches a single child process per call to Run.
type Supervisor struct {
	log              *logger.Logger
	sampleInterval   time.Duration
	outputTruncBytes int
}

// New creates a Supervisor. outputTruncBytes bounds how much of the
// captured stdout/stderr tail is retained in Outcome.Output; the terminal
// Completed event carries no output (Open Question: truncation is
// byte-based).
func New(log *logger.Logger, outputTruncBytes int) *Supervisor {
	if outputTruncBytes <= 0 {
		outputTruncBytes = 64 * 1024
	}
	return &Supervisor{log: log, sampleInterval: time.Second, outputTruncBytes: outputTruncBytes}
}

// cancelRegistry lets Stop(executionID) reach a running supervision loop
// without the caller holding a reference to its context.CancelFunc.
type cancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

func (c *cancelRegistry) set(executionID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[executionID] = cancel
}

func (c *cancelRegistry) remove(executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, executionID)
}

func (c *cancelRegistry) cancel(executionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.cancels[executionID]
	if ok {
		cancel()
	}
	return ok
}

var registry = newCancelRegistry()

// Stop cancels a running execution's process, if one is currently
// supervised under executionID. Returns false if none was found.
func Stop(executionID string) bool {
	return registry.cancel(executionID)
}

// Run spawns plan's command, streams its output through emit, and blocks
// until the process exits, the timeout elapses, or ctx/Stop cancels it.
func (s *Supervisor) Run(ctx context.Context, executionID string, plan runner.Plan, timeout time.Duration) Outcome {
	runCtx, cancel := context.WithCancel(ctx)
	registry.set(executionID, cancel)
	defer registry.remove(executionID)
	defer cancel()

	var timeoutCtx context.Context
	var timeoutCancel context.CancelFunc
	if timeout > 0 {
		timeoutCtx, timeoutCancel = context.WithTimeout(runCtx, timeout)
	} else {
		timeoutCtx, timeoutCancel = runCtx, func() {}
	}
	defer timeoutCancel()

	start := time.Now()
	cmd := exec.CommandContext(timeoutCtx, plan.Cmd, plan.Args...)
	cmd.Dir = plan.WorkDir
	cmd.Env = append(os.Environ(), plan.Env...)
	// On cancel/timeout send SIGTERM first; exec kills the process if it
	// has not exited once WaitDelay has passed.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{Err: &models.SpawnError{ExecutionID: executionID, Err: err}}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{Err: &models.SpawnError{ExecutionID: executionID, Err: err}}
	}

	emit := s.emitterFor(executionID)
	if emit == nil {
		emit = func(models.StreamEvent) {}
	}

	if err := cmd.Start(); err != nil {
		return Outcome{Err: &models.SpawnError{ExecutionID: executionID, Err: err}}
	}
	emit(newEvent(executionID, models.StreamEventStarted, map[string]interface{}{"pid": cmd.Process.Pid}))

	var wg sync.WaitGroup
	var tail truncatingBuffer
	tail.limit = s.outputTruncBytes

	wg.Add(2)
	go s.pipeLines(&wg, stdoutPipe, executionID, "stdout", emit, &tail)
	go s.pipeLines(&wg, stderrPipe, executionID, "stderr", emit, &tail)

	usage := s.sampleResourceUsage(timeoutCtx, cmd, executionID, emit)

	waitErr := cmd.Wait()
	wg.Wait()
	duration := time.Since(start)

	if timeoutCtx.Err() == context.DeadlineExceeded {
		emit(newEvent(executionID, models.StreamEventStatus, map[string]interface{}{"status": "timeout"}))
		return Outcome{Err: &models.TimeoutError{Scope: "node", ID: executionID}, Duration: duration, ResourceUsage: usage.snapshot(), Output: tail.String()}
	}
	if runCtx.Err() == context.Canceled && ctx.Err() == nil {
		// Cancelled via Stop(), not via the parent context.
		emit(newEvent(executionID, models.StreamEventStatus, map[string]interface{}{"status": "cancelled"}))
		return Outcome{Err: &models.CancelledError{Scope: "node", ID: executionID}, Duration: duration, ResourceUsage: usage.snapshot(), Output: tail.String()}
	}
	if ctx.Err() != nil {
		emit(newEvent(executionID, models.StreamEventStatus, map[string]interface{}{"status": "cancelled"}))
		return Outcome{Err: &models.CancelledError{Scope: "node", ID: executionID}, Duration: duration, ResourceUsage: usage.snapshot(), Output: tail.String()}
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Outcome{Err: &models.SpawnError{ExecutionID: executionID, Err: waitErr}, Duration: duration}
		}
	}

	outputFiles := scanOutputDir(plan.WorkDir)
	result := Outcome{
		ExitCode:      exitCode,
		OutputFiles:   outputFiles,
		Output:        tail.String(),
		Duration:      duration,
		ResourceUsage: usage.snapshot(),
	}
	if exitCode != 0 {
		result.Err = &models.NonZeroExitError{ExecutionID: executionID, ExitCode: exitCode}
	}
	emit(newEvent(executionID, models.StreamEventCompleted, map[string]interface{}{
		"exitCode": exitCode, "outputFiles": outputFiles, "durationMs": duration.Milliseconds(),
	}))
	return result
}

// emitters lets SetEmitter register the C4-bound publish function used
// by a given execution before Run starts streaming.
var emitters sync.Map // executionID -> Emit

// SetEmitter registers the function used to publish events for
// executionID; call before Run.
func SetEmitter(executionID string, emit Emit) {
	emitters.Store(executionID, emit)
}

// ClearEmitter releases the registered emitter once the run has ended.
func ClearEmitter(executionID string) {
	emitters.Delete(executionID)
}

func (s *Supervisor) emitterFor(executionID string) Emit {
	if v, ok := emitters.Load(executionID); ok {
		return v.(Emit)
	}
	return nil
}

func newEvent(executionID, eventType string, payload map[string]interface{}) models.StreamEvent {
	return models.StreamEvent{ExecutionID: executionID, Type: eventType, Payload: payload, CreatedAt: time.Now()}
}

func (s *Supervisor) pipeLines(wg *sync.WaitGroup, r io.Reader, executionID, stream string, emit Emit, tail *truncatingBuffer) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.Write([]byte(line + "\n"))
		eventType := models.StreamEventOutput
		if stream == "stderr" {
			eventType = models.StreamEventError
		}
		emit(newEvent(executionID, eventType, map[string]interface{}{"stream": stream, "line": line}))
	}
}

type resourceUsageTracker struct {
	mu        sync.Mutex
	peakRSS   int64
	cpuTimeMs int64
}

func (t *resourceUsageTracker) snapshot() models.ResourceUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.ResourceUsage{CPUTimeMs: atomic.LoadInt64(&t.cpuTimeMs), MemoryUsed: t.peakRSS}
}

func (s *Supervisor) sampleResourceUsage(ctx context.Context, cmd *exec.Cmd, executionID string, emit Emit) *resourceUsageTracker {
	tracker := &resourceUsageTracker{}
	go func() {
		ticker := time.NewTicker(s.sampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if cmd.Process == nil {
					continue
				}
				proc, err := process.NewProcess(int32(cmd.Process.Pid))
				if err != nil {
					continue
				}
				memInfo, err := proc.MemoryInfo()
				if err == nil && memInfo != nil {
					tracker.mu.Lock()
					if int64(memInfo.RSS) > tracker.peakRSS {
						tracker.peakRSS = int64(memInfo.RSS)
					}
					tracker.mu.Unlock()
				}
				times, err := proc.Times()
				if err == nil && times != nil {
					cpuMs := int64((times.User + times.System) * 1000)
					atomic.StoreInt64(&tracker.cpuTimeMs, cpuMs)
				}
				usage := tracker.snapshot()
				emit(newEvent(executionID, models.StreamEventResourceUsage, map[string]interface{}{
					"cpuTime": usage.CPUTimeMs, "memoryUsed": usage.MemoryUsed,
				}))
			}
		}
	}()
	return tracker
}

func scanOutputDir(sandboxRoot string) []string {
	outputDir := filepath.Join(sandboxRoot, "output")
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join("output", e.Name()))
		}
	}
	return files
}

// truncatingBuffer keeps only the last limit bytes written to it, so
// captured stdout never grows unbounded for a chatty program.
type truncatingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *truncatingBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if b.limit > 0 && len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *truncatingBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
