package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrSelfReferenceEdge is returned when an edge's source and target node
// are the same.
var ErrSelfReferenceEdge = errors.New("edge cannot reference the same node as source and target")

// EdgeModel represents a workflow edge (connection between nodes) in the
// database.
type EdgeModel struct {
	bun.BaseModel `bun:"table:workflow_edges,alias:e"`

	ID               uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"-"`
	EdgeID           string    `bun:"edge_id,notnull" json:"id" validate:"required,max=100"`
	WorkflowID       uuid.UUID `bun:"workflow_id,notnull,type:uuid" json:"workflow_id" validate:"required"`
	SourceNodeID     string    `bun:"source_node_id,notnull" json:"sourceNodeId" validate:"required,max=100"`
	TargetNodeID     string    `bun:"target_node_id,notnull" json:"targetNodeId" validate:"required,max=100"`
	SourceOutputName string    `bun:"source_output_name" json:"sourceOutputName,omitempty"`
	TargetInputName  string    `bun:"target_input_name" json:"targetInputName,omitempty"`
	Type             string    `bun:"edge_type,notnull,default:'Data'" json:"edgeType"`
	SourceHandle     string    `bun:"source_handle" json:"sourceHandle,omitempty"`
	Condition        string    `bun:"condition" json:"condition,omitempty"`
	Transformation   JSONBMap  `bun:"transformation,type:jsonb" json:"transformation,omitempty"`
	Loop             JSONBMap  `bun:"loop,type:jsonb" json:"loop,omitempty"`
	Optional         bool      `bun:"optional,notnull,default:false" json:"optional,omitempty"`
	Disabled         bool      `bun:"disabled,notnull,default:false" json:"disabled,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Workflow *WorkflowModel `bun:"rel:belongs-to,join:workflow_id=id" json:"workflow,omitempty"`
}

func (EdgeModel) TableName() string { return "workflow_edges" }

func (e *EdgeModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.SourceNodeID == e.TargetNodeID {
		return ErrSelfReferenceEdge
	}
	return nil
}

func (e *EdgeModel) BeforeUpdate(ctx interface{}) error {
	e.UpdatedAt = time.Now()
	if e.SourceNodeID == e.TargetNodeID {
		return ErrSelfReferenceEdge
	}
	return nil
}

// IsLoop returns true if the edge is a Loop-type back edge.
func (e *EdgeModel) IsLoop() bool {
	return e.Type == "Loop" || (e.Loop != nil && len(e.Loop) > 0)
}
