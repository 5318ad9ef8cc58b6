package models

import "time"

// WorkflowExecutionStatus is the state machine status of a workflow run,
// driven by the scheduler (C8):
//
//	Pending -> Running <-> Paused
//	Running -> Completed | Failed | Cancelled | Timeout
//	Paused  -> Running | Cancelled
type WorkflowExecutionStatus string

const (
	WorkflowExecutionPending   WorkflowExecutionStatus = "Pending"
	WorkflowExecutionRunning   WorkflowExecutionStatus = "Running"
	WorkflowExecutionCompleted WorkflowExecutionStatus = "Completed"
	WorkflowExecutionFailed    WorkflowExecutionStatus = "Failed"
	WorkflowExecutionCancelled WorkflowExecutionStatus = "Cancelled"
	WorkflowExecutionPaused    WorkflowExecutionStatus = "Paused"
	WorkflowExecutionTimeout   WorkflowExecutionStatus = "Timeout"
)

// IsTerminal reports whether the workflow execution will not transition
// further.
func (s WorkflowExecutionStatus) IsTerminal() bool {
	switch s {
	case WorkflowExecutionCompleted, WorkflowExecutionFailed, WorkflowExecutionCancelled, WorkflowExecutionTimeout:
		return true
	}
	return false
}

var workflowExecutionTransitions = map[WorkflowExecutionStatus][]WorkflowExecutionStatus{
	WorkflowExecutionPending: {WorkflowExecutionRunning, WorkflowExecutionCancelled},
	WorkflowExecutionRunning: {WorkflowExecutionPaused, WorkflowExecutionCompleted, WorkflowExecutionFailed, WorkflowExecutionCancelled, WorkflowExecutionTimeout},
	WorkflowExecutionPaused:  {WorkflowExecutionRunning, WorkflowExecutionCancelled},
}

// CanTransitionTo reports whether moving to next is a legal state
// transition for the workflow execution state machine.
func (s WorkflowExecutionStatus) CanTransitionTo(next WorkflowExecutionStatus) bool {
	for _, allowed := range workflowExecutionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NodeExecutionStatus is the per-node lifecycle status within a
// WorkflowExecution.
type NodeExecutionStatus string

const (
	NodeExecutionPending   NodeExecutionStatus = "Pending"
	NodeExecutionRunning   NodeExecutionStatus = "Running"
	NodeExecutionCompleted NodeExecutionStatus = "Completed"
	NodeExecutionFailed    NodeExecutionStatus = "Failed"
	NodeExecutionCancelled NodeExecutionStatus = "Cancelled"
	NodeExecutionSkipped   NodeExecutionStatus = "Skipped"
	NodeExecutionTimeout   NodeExecutionStatus = "Timeout"
	NodeExecutionRetrying  NodeExecutionStatus = "Retrying"
)

// IsTerminal reports whether the node execution will not be dispatched
// again.
func (s NodeExecutionStatus) IsTerminal() bool {
	switch s {
	case NodeExecutionCompleted, NodeExecutionFailed, NodeExecutionCancelled, NodeExecutionSkipped, NodeExecutionTimeout:
		return true
	}
	return false
}

// NodeExecution tracks a single node's dispatch history within a
// WorkflowExecution.
type NodeExecution struct {
	ID                  string                 `json:"id"`
	WorkflowExecutionID string                 `json:"workflowExecutionId"`
	NodeID              string                 `json:"nodeId"`
	Status              NodeExecutionStatus    `json:"status"`
	Input               map[string]interface{} `json:"input,omitempty"`
	Output              map[string]interface{} `json:"output,omitempty"`
	Error               string                 `json:"error,omitempty"`
	SkipReason          string                 `json:"skipReason,omitempty"`
	RetryCount          int                    `json:"retryCount"`
	ProgramExecutionID  string                 `json:"programExecutionId,omitempty"`
	StartedAt           *time.Time             `json:"startedAt,omitempty"`
	CompletedAt         *time.Time             `json:"completedAt,omitempty"`
}

// Progress tallies node outcomes for a WorkflowExecution.
type Progress struct {
	TotalNodes int     `json:"totalNodes"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Running    int     `json:"running"`
	Percent    float64 `json:"percent"`
}

// Recompute derives Percent from the tallied counts.
func (p *Progress) Recompute() {
	if p.TotalNodes == 0 {
		p.Percent = 0
		return
	}
	done := p.Completed + p.Failed + p.Skipped
	p.Percent = float64(done) / float64(p.TotalNodes) * 100
}

// Done reports whether every node has reached a terminal outcome (I1).
func (p *Progress) Done() bool {
	return p.Completed+p.Failed+p.Skipped == p.TotalNodes
}

// ExecutionContext carries per-run overrides and environment supplied at
// workflow dispatch time.
type ExecutionContext struct {
	UserInputs              map[string]interface{} `json:"userInputs,omitempty"`
	GlobalVariables         map[string]interface{} `json:"globalVariables,omitempty"`
	Environment             map[string]string       `json:"environment,omitempty"`
	Mode                    string                  `json:"mode,omitempty"`
	SaveIntermediateResults bool                    `json:"saveIntermediateResults,omitempty"`
	MaxConcurrentNodes      int                     `json:"maxConcurrentNodes,omitempty"`
	TimeoutMinutes          int                     `json:"timeoutMinutes,omitempty"`
	ContinueOnError         bool                    `json:"continueOnError,omitempty"`
}

// WorkflowExecutionResults holds the consolidated outputs of a completed
// run.
type WorkflowExecutionResults struct {
	FinalOutputs        map[string]interface{}            `json:"finalOutputs,omitempty"`
	IntermediateResults map[string]map[string]interface{} `json:"intermediateResults,omitempty"`
	OutputFiles         []string                           `json:"outputFiles,omitempty"`
	Statistics          map[string]interface{}            `json:"statistics,omitempty"`
}

// WorkflowExecution is a single run of a Workflow's DAG, tracked by C8.
type WorkflowExecution struct {
	ID              string                   `json:"id"`
	WorkflowID      string                   `json:"workflowId"`
	WorkflowVersion int                      `json:"workflowVersion"`
	ExecutedBy      string                   `json:"executedBy,omitempty"`
	Status          WorkflowExecutionStatus  `json:"status"`
	Progress        Progress                 `json:"progress"`
	NodeExecutions  []*NodeExecution         `json:"nodeExecutions,omitempty"`
	ExecutionContext ExecutionContext        `json:"executionContext"`
	Results         WorkflowExecutionResults `json:"results"`
	Error           string                   `json:"error,omitempty"`
	Logs            []string                 `json:"logs,omitempty"`
	ResourceUsage   ResourceUsage            `json:"resourceUsage"`
	StartedAt       time.Time                `json:"startedAt"`
	CompletedAt     *time.Time               `json:"completedAt,omitempty"`
}

// GetNodeExecution returns the (most recent) node execution for nodeID.
func (we *WorkflowExecution) GetNodeExecution(nodeID string) (*NodeExecution, error) {
	for i := len(we.NodeExecutions) - 1; i >= 0; i-- {
		if we.NodeExecutions[i].NodeID == nodeID {
			return we.NodeExecutions[i], nil
		}
	}
	return nil, ErrNodeNotFound
}
