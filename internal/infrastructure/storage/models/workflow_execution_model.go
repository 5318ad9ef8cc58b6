package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowExecutionModel represents a single run of a Workflow in the
// database.
type WorkflowExecutionModel struct {
	bun.BaseModel `bun:"table:workflow_executions,alias:we"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	WorkflowID      uuid.UUID  `bun:"workflow_id,notnull,type:uuid" json:"workflow_id" validate:"required"`
	WorkflowVersion int        `bun:"workflow_version,notnull" json:"workflow_version"`
	ExecutedBy      string     `bun:"executed_by" json:"executed_by,omitempty"`
	Status          string     `bun:"status,notnull,default:'Pending'" json:"status" validate:"required,oneof=Pending Running Completed Failed Cancelled Paused Timeout"`
	Progress        JSONBMap   `bun:"progress,type:jsonb,default:'{}'" json:"progress,omitempty"`
	ExecutionContext JSONBMap  `bun:"execution_context,type:jsonb,default:'{}'" json:"execution_context,omitempty"`
	Results         JSONBMap   `bun:"results,type:jsonb" json:"results,omitempty"`
	Error           string     `bun:"error" json:"error,omitempty"`
	Logs            JSONBSlice `bun:"logs,type:jsonb,default:'[]'" json:"logs,omitempty"`
	ResourceUsage   JSONBMap   `bun:"resource_usage,type:jsonb,default:'{}'" json:"resource_usage,omitempty"`
	StartedAt       time.Time  `bun:"started_at,notnull,default:current_timestamp" json:"started_at"`
	CompletedAt     *time.Time `bun:"completed_at" json:"completed_at,omitempty"`

	Workflow       *WorkflowModel        `bun:"rel:belongs-to,join:workflow_id=id" json:"workflow,omitempty"`
	NodeExecutions []*NodeExecutionModel `bun:"rel:has-many,join:id=workflow_execution_id" json:"node_executions,omitempty"`
}

func (WorkflowExecutionModel) TableName() string { return "workflow_executions" }

func (we *WorkflowExecutionModel) BeforeInsert(ctx interface{}) error {
	if we.ID == uuid.Nil {
		we.ID = uuid.New()
	}
	if we.StartedAt.IsZero() {
		we.StartedAt = time.Now()
	}
	if we.Progress == nil {
		we.Progress = make(JSONBMap)
	}
	if we.ExecutionContext == nil {
		we.ExecutionContext = make(JSONBMap)
	}
	if we.ResourceUsage == nil {
		we.ResourceUsage = make(JSONBMap)
	}
	return nil
}

// IsTerminal returns true if the workflow execution is in a final state.
func (we *WorkflowExecutionModel) IsTerminal() bool {
	switch we.Status {
	case "Completed", "Failed", "Cancelled", "Timeout":
		return true
	}
	return false
}

// IsPaused returns true if the workflow execution is currently suspended
// awaiting a UI interaction.
func (we *WorkflowExecutionModel) IsPaused() bool { return we.Status == "Paused" }
