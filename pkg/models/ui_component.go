package models

import "time"

// UiComponentStatus is the lifecycle state of a UiComponent.
type UiComponentStatus string

const (
	UiComponentStatusActive   UiComponentStatus = "active"
	UiComponentStatusArchived UiComponentStatus = "archived"
)

// UiComponent describes a generated UI binding for a specific program
// version. Scoping is version-scoped only (programId, versionId, name) —
// the core does not carry the older global-component model.
type UiComponent struct {
	ID            string                 `json:"id"`
	ProgramID     string                 `json:"program_id"`
	VersionID     string                 `json:"version_id"`
	Type          string                 `json:"type"`
	Name          string                 `json:"name"`
	Configuration map[string]interface{} `json:"configuration"`
	Schema        map[string]interface{} `json:"schema,omitempty"`
	Status        UiComponentStatus      `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ElementType enumerates the schema element kinds the stub generator (C1)
// understands.
type ElementType string

const (
	ElementTextInput   ElementType = "text_input"
	ElementTextarea    ElementType = "textarea"
	ElementNumberInput ElementType = "number_input"
	ElementCheckbox    ElementType = "checkbox"
	ElementDropdown    ElementType = "dropdown"
	ElementRadio       ElementType = "radio"
	ElementMultiSelect ElementType = "multi_select"
	ElementDateInput   ElementType = "date_input"
	ElementSlider      ElementType = "slider"
	ElementFileInput   ElementType = "file_input"
	ElementTable       ElementType = "table"
	ElementMapInput    ElementType = "map_input"
)

// ConfigElement is one entry of configuration.elements[] describing a single
// bound field or table column.
type ConfigElement struct {
	CustomName string        `json:"customName"`
	CellID     string        `json:"cellId,omitempty"`
	Type       ElementType   `json:"type"`
	Required   bool          `json:"required"`
	Columns    []ConfigElement `json:"columns,omitempty"`
}

// Elements returns the component's configuration.elements[] decoded into
// ConfigElement values, in source order. Unrecognized shapes are skipped.
func (c *UiComponent) Elements() []ConfigElement {
	raw, ok := c.Configuration["elements"].([]interface{})
	if !ok {
		return nil
	}
	elements := make([]ConfigElement, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		elements = append(elements, decodeConfigElement(m))
	}
	return elements
}

func decodeConfigElement(m map[string]interface{}) ConfigElement {
	el := ConfigElement{}
	if v, ok := m["customName"].(string); ok {
		el.CustomName = v
	}
	if v, ok := m["cellId"].(string); ok {
		el.CellID = v
	}
	if v, ok := m["type"].(string); ok {
		el.Type = ElementType(v)
	}
	if v, ok := m["required"].(bool); ok {
		el.Required = v
	}
	if cols, ok := m["columns"].([]interface{}); ok {
		for _, c := range cols {
			if cm, ok := c.(map[string]interface{}); ok {
				el.Columns = append(el.Columns, decodeConfigElement(cm))
			}
		}
	}
	return el
}

// Validate validates required UiComponent fields.
func (c *UiComponent) Validate() error {
	if c.ProgramID == "" {
		return &ValidationError{Field: "program_id", Message: "program ID is required"}
	}
	if c.VersionID == "" {
		return &ValidationError{Field: "version_id", Message: "version ID is required"}
	}
	if c.Name == "" {
		return &ValidationError{Field: "name", Message: "component name is required"}
	}
	return nil
}
