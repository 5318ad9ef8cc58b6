package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NodeModel represents a workflow node in the database.
type NodeModel struct {
	bun.BaseModel `bun:"table:workflow_nodes,alias:n"`

	ID                   uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"-"`
	NodeID               string    `bun:"node_id,notnull" json:"id" validate:"required,max=100"`
	WorkflowID            uuid.UUID `bun:"workflow_id,notnull,type:uuid" json:"workflow_id" validate:"required"`
	ProgramID             string    `bun:"program_id" json:"programId,omitempty"`
	VersionID             string    `bun:"version_id" json:"versionId,omitempty"`
	Name                  string    `bun:"name,notnull" json:"name"`
	Type                  string    `bun:"type,notnull" json:"nodeType"`
	InputConfiguration    JSONBMap  `bun:"input_configuration,type:jsonb,default:'{}'" json:"inputConfiguration"`
	OutputConfiguration   JSONBMap  `bun:"output_configuration,type:jsonb,default:'{}'" json:"outputConfiguration"`
	ExecutionSettings     JSONBMap  `bun:"execution_settings,type:jsonb,default:'{}'" json:"executionSettings"`
	ConditionalExecution  JSONBMap  `bun:"conditional_execution,type:jsonb" json:"conditionalExecution,omitempty"`
	Disabled              bool      `bun:"disabled,notnull,default:false" json:"disabled,omitempty"`
	Metadata              JSONBMap  `bun:"metadata,type:jsonb,default:'{}'" json:"metadata,omitempty"`
	CreatedAt             time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt             time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Workflow *WorkflowModel `bun:"rel:belongs-to,join:workflow_id=id" json:"workflow,omitempty"`
}

func (NodeModel) TableName() string { return "workflow_nodes" }

func (n *NodeModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	n.CreatedAt, n.UpdatedAt = now, now
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.InputConfiguration == nil {
		n.InputConfiguration = make(JSONBMap)
	}
	if n.OutputConfiguration == nil {
		n.OutputConfiguration = make(JSONBMap)
	}
	if n.ExecutionSettings == nil {
		n.ExecutionSettings = make(JSONBMap)
	}
	return nil
}

func (n *NodeModel) BeforeUpdate(ctx interface{}) error {
	n.UpdatedAt = time.Now()
	return nil
}
