package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProgramExecutionModel represents a single running/completed program
// execution (a Program invocation, not a workflow run) in the database.
type ProgramExecutionModel struct {
	bun.BaseModel `bun:"table:program_executions,alias:pe"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	ProgramID   uuid.UUID  `bun:"program_id,notnull,type:uuid" json:"program_id" validate:"required"`
	VersionID   uuid.UUID  `bun:"version_id,notnull,type:uuid" json:"version_id" validate:"required"`
	UserID      string     `bun:"user_id" json:"user_id,omitempty"`
	Status      string     `bun:"status,notnull,default:'running'" json:"status" validate:"required,oneof=running completed failed stopped"`
	Parameters  JSONBMap   `bun:"parameters,type:jsonb,default:'{}'" json:"parameters,omitempty"`
	ExitCode    int        `bun:"exit_code" json:"exit_code"`
	Output      string     `bun:"output" json:"output,omitempty"`
	OutputFiles JSONBSlice `bun:"output_files,type:jsonb,default:'[]'" json:"output_files,omitempty"`
	Error       string     `bun:"error" json:"error,omitempty"`
	CPUTimeMs   int64      `bun:"cpu_time_ms,notnull,default:0" json:"cpu_time_ms"`
	MemoryUsed  int64      `bun:"memory_used,notnull,default:0" json:"memory_used"`
	DiskUsed    int64      `bun:"disk_used,notnull,default:0" json:"disk_used"`
	StartedAt   time.Time  `bun:"started_at,notnull,default:current_timestamp" json:"started_at"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at,omitempty"`

	Program *ProgramModel `bun:"rel:belongs-to,join:program_id=id" json:"program,omitempty"`
	Version *VersionModel `bun:"rel:belongs-to,join:version_id=id" json:"version,omitempty"`
}

func (ProgramExecutionModel) TableName() string { return "program_executions" }

func (e *ProgramExecutionModel) BeforeInsert(ctx interface{}) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if e.Parameters == nil {
		e.Parameters = make(JSONBMap)
	}
	return nil
}

// IsTerminal returns true if the execution has reached a final status.
func (e *ProgramExecutionModel) IsTerminal() bool {
	switch e.Status {
	case "completed", "failed", "stopped":
		return true
	}
	return false
}

// Duration returns the execution duration if completed.
func (e *ProgramExecutionModel) Duration() *time.Duration {
	if e.CompletedAt == nil {
		return nil
	}
	d := e.CompletedAt.Sub(e.StartedAt)
	return &d
}

// MarkCompleted sets the completed timestamp, status, and exit code.
func (e *ProgramExecutionModel) MarkCompleted(exitCode int, output string) {
	now := time.Now()
	e.CompletedAt = &now
	e.ExitCode = exitCode
	e.Output = output
	if exitCode == 0 {
		e.Status = "completed"
	} else {
		e.Status = "failed"
	}
}

// MarkFailed sets the completed timestamp, status, and error.
func (e *ProgramExecutionModel) MarkFailed(err string) {
	now := time.Now()
	e.CompletedAt = &now
	e.Status = "failed"
	e.Error = err
}

// MarkStopped sets the completed timestamp and status to stopped (cancellation).
func (e *ProgramExecutionModel) MarkStopped() {
	now := time.Now()
	e.CompletedAt = &now
	e.Status = "stopped"
}
