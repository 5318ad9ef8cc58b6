package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NodeExecutionModel represents one node's execution record within a
// WorkflowExecution.
type NodeExecutionModel struct {
	bun.BaseModel `bun:"table:node_executions,alias:ne"`

	ID                  uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	WorkflowExecutionID uuid.UUID  `bun:"workflow_execution_id,notnull,type:uuid" json:"workflow_execution_id" validate:"required"`
	NodeID              string     `bun:"node_id,notnull" json:"node_id" validate:"required"`
	Status              string     `bun:"status,notnull,default:'Pending'" json:"status" validate:"required,oneof=Pending Running Completed Failed Cancelled Skipped Timeout Retrying"`
	Input               JSONBMap   `bun:"input,type:jsonb,default:'{}'" json:"input,omitempty"`
	Output               JSONBMap  `bun:"output,type:jsonb" json:"output,omitempty"`
	Error               string     `bun:"error" json:"error,omitempty"`
	SkipReason          string     `bun:"skip_reason" json:"skip_reason,omitempty"`
	RetryCount          int        `bun:"retry_count,notnull,default:0" json:"retry_count" validate:"gte=0"`
	ProgramExecutionID  *uuid.UUID `bun:"program_execution_id,type:uuid" json:"program_execution_id,omitempty"`
	StartedAt           *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt         *time.Time `bun:"completed_at" json:"completed_at,omitempty"`

	WorkflowExecution *WorkflowExecutionModel `bun:"rel:belongs-to,join:workflow_execution_id=id" json:"-"`
	ProgramExecution  *ProgramExecutionModel  `bun:"rel:belongs-to,join:program_execution_id=id" json:"program_execution,omitempty"`
}

func (NodeExecutionModel) TableName() string { return "node_executions" }

func (ne *NodeExecutionModel) BeforeInsert(ctx interface{}) error {
	if ne.ID == uuid.Nil {
		ne.ID = uuid.New()
	}
	if ne.Input == nil {
		ne.Input = make(JSONBMap)
	}
	return nil
}

// IsTerminal returns true if the node execution is in a final state.
func (ne *NodeExecutionModel) IsTerminal() bool {
	switch ne.Status {
	case "Completed", "Failed", "Cancelled", "Skipped", "Timeout":
		return true
	}
	return false
}

// MarkStarted sets the started timestamp and status.
func (ne *NodeExecutionModel) MarkStarted() {
	now := time.Now()
	ne.StartedAt = &now
	ne.Status = "Running"
}

// MarkCompleted sets the completed timestamp and status.
func (ne *NodeExecutionModel) MarkCompleted(output JSONBMap) {
	now := time.Now()
	ne.CompletedAt = &now
	ne.Output = output
	ne.Status = "Completed"
}

// MarkFailed sets the completed timestamp, status, and error.
func (ne *NodeExecutionModel) MarkFailed(err string) {
	now := time.Now()
	ne.CompletedAt = &now
	ne.Status = "Failed"
	ne.Error = err
}

// MarkSkipped sets the status to skipped with a reason.
func (ne *NodeExecutionModel) MarkSkipped(reason string) {
	now := time.Now()
	ne.CompletedAt = &now
	ne.Status = "Skipped"
	ne.SkipReason = reason
}

// MarkRetrying increments retry count and sets status.
func (ne *NodeExecutionModel) MarkRetrying() {
	ne.RetryCount++
	ne.Status = "Retrying"
}
