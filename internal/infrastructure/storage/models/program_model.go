package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProgramModel is the persisted row for a Program.
type ProgramModel struct {
	bun.BaseModel `bun:"table:programs,alias:p"`

	ID               uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Name             string    `bun:"name,notnull" json:"name"`
	Language         string    `bun:"language,notnull" json:"language"`
	UIType           string    `bun:"ui_type" json:"ui_type,omitempty"`
	CurrentVersionID *uuid.UUID `bun:"current_version_id,type:uuid" json:"current_version_id,omitempty"`
	Permissions      JSONBMap  `bun:"permissions,type:jsonb,default:'{}'" json:"permissions,omitempty"`
	Metadata         JSONBMap  `bun:"metadata,type:jsonb,default:'{}'" json:"metadata,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (ProgramModel) TableName() string { return "programs" }

func (p *ProgramModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *ProgramModel) BeforeUpdate(ctx interface{}) error {
	p.UpdatedAt = time.Now()
	return nil
}

// VersionModel is the persisted row for a Version, with its files inlined
// as a JSONB array (a version's files are always read/written together).
type VersionModel struct {
	bun.BaseModel `bun:"table:versions,alias:v"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	ProgramID uuid.UUID `bun:"program_id,notnull,type:uuid" json:"program_id"`
	Number    int       `bun:"number,notnull" json:"number"`
	Status    string    `bun:"status,notnull,default:'pending'" json:"status"`
	Files     JSONBSlice `bun:"files,type:jsonb,default:'[]'" json:"files,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (VersionModel) TableName() string { return "versions" }

func (v *VersionModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	v.CreatedAt, v.UpdatedAt = now, now
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (v *VersionModel) BeforeUpdate(ctx interface{}) error {
	v.UpdatedAt = time.Now()
	return nil
}

// UiComponentModel is the persisted row for a UiComponent, version-scoped.
type UiComponentModel struct {
	bun.BaseModel `bun:"table:ui_components,alias:uc"`

	ID            uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	ProgramID     uuid.UUID `bun:"program_id,notnull,type:uuid" json:"program_id"`
	VersionID     uuid.UUID `bun:"version_id,notnull,type:uuid" json:"version_id"`
	Type          string    `bun:"type,notnull" json:"type"`
	Name          string    `bun:"name,notnull" json:"name"`
	Configuration JSONBMap  `bun:"configuration,type:jsonb,default:'{}'" json:"configuration,omitempty"`
	Schema        JSONBMap  `bun:"schema,type:jsonb,default:'{}'" json:"schema,omitempty"`
	Status        string    `bun:"status,notnull,default:'active'" json:"status"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (UiComponentModel) TableName() string { return "ui_components" }

func (c *UiComponentModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *UiComponentModel) BeforeUpdate(ctx interface{}) error {
	c.UpdatedAt = time.Now()
	return nil
}
