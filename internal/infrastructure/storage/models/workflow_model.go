package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowModel represents a workflow definition in the database.
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Name        string     `bun:"name,notnull" json:"name" validate:"required,max=255"`
	Creator     string     `bun:"creator" json:"creator,omitempty"`
	Status      string     `bun:"status,notnull,default:'draft'" json:"status"`
	Version     int        `bun:"version,notnull,default:1" json:"version" validate:"gte=1"`
	Settings    JSONBMap   `bun:"settings,type:jsonb,default:'{}'" json:"settings,omitempty"`
	Permissions JSONBMap   `bun:"permissions,type:jsonb,default:'{}'" json:"permissions,omitempty"`
	Tags        StringArray `bun:"tags,type:text[]" json:"tags,omitempty"`
	IsTemplate  bool       `bun:"is_template,notnull,default:false" json:"is_template,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Nodes []*NodeModel `bun:"rel:has-many,join:id=workflow_id" json:"nodes,omitempty"`
	Edges []*EdgeModel `bun:"rel:has-many,join:id=workflow_id" json:"edges,omitempty"`
}

func (WorkflowModel) TableName() string { return "workflows" }

func (w *WorkflowModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	w.CreatedAt, w.UpdatedAt = now, now
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Settings == nil {
		w.Settings = make(JSONBMap)
	}
	if w.Permissions == nil {
		w.Permissions = make(JSONBMap)
	}
	return nil
}

func (w *WorkflowModel) BeforeUpdate(ctx interface{}) error {
	w.UpdatedAt = time.Now()
	return nil
}

// IsActive returns true if the workflow is in active status.
func (w *WorkflowModel) IsActive() bool { return w.Status == "active" }
