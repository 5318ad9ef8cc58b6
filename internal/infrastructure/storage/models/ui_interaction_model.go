package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UIInteractionModel represents a pending or resolved UI interaction
// raised by a workflow execution.
type UIInteractionModel struct {
	bun.BaseModel `bun:"table:ui_interactions,alias:ui"`

	ID                  uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	WorkflowExecutionID uuid.UUID  `bun:"workflow_execution_id,notnull,type:uuid" json:"workflow_execution_id" validate:"required"`
	NodeID              string     `bun:"node_id,notnull" json:"node_id" validate:"required"`
	Type                string     `bun:"interaction_type,notnull" json:"interaction_type" validate:"required,oneof=UserInput Confirmation Selection FileUpload DataReview Custom"`
	Status              string     `bun:"status,notnull,default:'Pending'" json:"status" validate:"required,oneof=Pending InProgress Completed Cancelled Timeout"`
	InputSchema         JSONBMap   `bun:"input_schema,type:jsonb,default:'{}'" json:"input_schema,omitempty"`
	OutputData          JSONBMap   `bun:"output_data,type:jsonb" json:"output_data,omitempty"`
	TimeoutSeconds      *int       `bun:"timeout_seconds" json:"timeout_seconds,omitempty"`
	CreatedAt           time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	CompletedAt         *time.Time `bun:"completed_at" json:"completed_at,omitempty"`

	WorkflowExecution *WorkflowExecutionModel `bun:"rel:belongs-to,join:workflow_execution_id=id" json:"-"`
}

func (UIInteractionModel) TableName() string { return "ui_interactions" }

func (u *UIInteractionModel) BeforeInsert(ctx interface{}) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.InputSchema == nil {
		u.InputSchema = make(JSONBMap)
	}
	return nil
}

// IsTerminal returns true if the interaction has been resolved or expired.
func (u *UIInteractionModel) IsTerminal() bool {
	switch u.Status {
	case "Completed", "Cancelled", "Timeout":
		return true
	}
	return false
}

// ExpiresAt returns the absolute deadline for this interaction, or nil if
// it has no timeout.
func (u *UIInteractionModel) ExpiresAt() *time.Time {
	if u.TimeoutSeconds == nil {
		return nil
	}
	t := u.CreatedAt.Add(time.Duration(*u.TimeoutSeconds) * time.Second)
	return &t
}
