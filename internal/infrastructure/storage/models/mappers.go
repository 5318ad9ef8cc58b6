package models

import (
	"github.com/google/uuid"
	"github.com/smilemakc/mbflow/pkg/models"
)

// WorkflowToStorage converts a domain workflow to a storage workflow model.
// Used for both Create and Update operations.
func WorkflowToStorage(w *models.Workflow, workflowID uuid.UUID) *WorkflowModel {
	storageNodes := make([]*NodeModel, len(w.Nodes))
	for i, n := range w.Nodes {
		storageNodes[i] = NodeToStorage(n, workflowID)
	}

	storageEdges := make([]*EdgeModel, len(w.Edges))
	for i, e := range w.Edges {
		storageEdges[i] = EdgeToStorage(e, workflowID)
	}

	settings := JSONBMap{
		"maxConcurrentNodes":     w.Settings.MaxConcurrentNodes,
		"timeoutMinutes":         w.Settings.TimeoutMinutes,
		"saveIntermediateResults": w.Settings.SaveIntermediateResults,
		"retryPolicy": JSONBMap{
			"maxRetries":         w.Settings.RetryPolicy.MaxRetries,
			"delaySeconds":       w.Settings.RetryPolicy.DelaySeconds,
			"exponentialBackoff": w.Settings.RetryPolicy.ExponentialBackoff,
			"retryOnErrorTypes":  w.Settings.RetryPolicy.RetryOnErrorTypes,
		},
	}

	permissions := JSONBMap(w.Permissions)
	if permissions == nil {
		permissions = make(JSONBMap)
	}

	return &WorkflowModel{
		ID:          workflowID,
		Name:        w.Name,
		Creator:     w.Creator,
		Status:      string(w.Status),
		Version:     w.Version,
		Settings:    settings,
		Permissions: permissions,
		Tags:        StringArray(w.Tags),
		IsTemplate:  w.IsTemplate,
		Nodes:       storageNodes,
		Edges:       storageEdges,
	}
}

// NodeToStorage converts a domain node to a storage node model.
func NodeToStorage(n *models.Node, workflowID uuid.UUID) *NodeModel {
	var conditional JSONBMap
	if n.ConditionalExecution != nil {
		conditional = JSONBMap{
			"expression":        n.ConditionalExecution.Expression,
			"conditionType":     n.ConditionalExecution.ConditionType,
			"skipIfFails":       n.ConditionalExecution.SkipIfFails,
			"alternativeNodeId": n.ConditionalExecution.AlternativeNodeID,
		}
	}

	return &NodeModel{
		NodeID:               n.ID,
		WorkflowID:           workflowID,
		ProgramID:            n.ProgramID,
		VersionID:            n.VersionID,
		Name:                 n.Name,
		Type:                 string(n.Type),
		InputConfiguration:   inputConfigToJSONB(n.InputConfiguration),
		OutputConfiguration:  outputConfigToJSONB(n.OutputConfiguration),
		ExecutionSettings:    execSettingsToJSONB(n.ExecutionSettings),
		ConditionalExecution: conditional,
		Disabled:             n.Disabled,
		Metadata:             JSONBMap(n.Metadata),
	}
}

// EdgeToStorage converts a domain edge to a storage edge model.
func EdgeToStorage(e *models.Edge, workflowID uuid.UUID) *EdgeModel {
	var transformation JSONBMap
	if e.Transformation != nil {
		transformation = JSONBMap{
			"kind":       string(e.Transformation.Kind),
			"expression": e.Transformation.Expression,
		}
	}

	var loop JSONBMap
	if e.Loop != nil {
		loop = JSONBMap{"maxIterations": e.Loop.MaxIterations}
	}

	return &EdgeModel{
		EdgeID:           e.ID,
		WorkflowID:       workflowID,
		SourceNodeID:     e.SourceNodeID,
		TargetNodeID:     e.TargetNodeID,
		SourceOutputName: e.SourceOutputName,
		TargetInputName:  e.TargetInputName,
		Type:             string(e.Type),
		SourceHandle:     e.SourceHandle,
		Condition:        e.Condition,
		Transformation:   transformation,
		Loop:             loop,
		Optional:         e.Optional,
		Disabled:         e.Disabled,
	}
}

// WorkflowFromStorage converts a storage workflow model to a domain workflow.
func WorkflowFromStorage(sw *WorkflowModel) *models.Workflow {
	nodes := make([]*models.Node, len(sw.Nodes))
	for i, n := range sw.Nodes {
		nodes[i] = NodeFromStorage(n)
	}

	edges := make([]*models.Edge, len(sw.Edges))
	for i, e := range sw.Edges {
		edges[i] = EdgeFromStorage(e)
	}

	settings := models.WorkflowSettings{
		MaxConcurrentNodes:      sw.Settings.GetInt("maxConcurrentNodes"),
		TimeoutMinutes:          sw.Settings.GetInt("timeoutMinutes"),
		SaveIntermediateResults: sw.Settings.GetBool("saveIntermediateResults"),
	}
	if rp := sw.Settings.GetMap("retryPolicy"); rp != nil {
		settings.RetryPolicy = models.RetryPolicySettings{
			MaxRetries:         rp.GetInt("maxRetries"),
			DelaySeconds:       rp.GetInt("delaySeconds"),
			ExponentialBackoff: rp.GetBool("exponentialBackoff"),
		}
	}

	return &models.Workflow{
		ID:          sw.ID.String(),
		Name:        sw.Name,
		Creator:     sw.Creator,
		Status:      models.WorkflowStatus(sw.Status),
		Version:     sw.Version,
		Nodes:       nodes,
		Edges:       edges,
		Settings:    settings,
		Permissions: map[string]interface{}(sw.Permissions),
		Tags:        []string(sw.Tags),
		IsTemplate:  sw.IsTemplate,
		CreatedAt:   sw.CreatedAt,
		UpdatedAt:   sw.UpdatedAt,
	}
}

// NodeFromStorage converts a storage node model to a domain node.
func NodeFromStorage(sn *NodeModel) *models.Node {
	n := &models.Node{
		ID:                  sn.NodeID,
		ProgramID:           sn.ProgramID,
		VersionID:           sn.VersionID,
		Name:                sn.Name,
		Type:                models.NodeType(sn.Type),
		InputConfiguration:  inputConfigFromJSONB(sn.InputConfiguration),
		OutputConfiguration: outputConfigFromJSONB(sn.OutputConfiguration),
		ExecutionSettings:   execSettingsFromJSONB(sn.ExecutionSettings),
		Disabled:            sn.Disabled,
		Metadata:            map[string]interface{}(sn.Metadata),
	}
	if sn.ConditionalExecution != nil && len(sn.ConditionalExecution) > 0 {
		n.ConditionalExecution = &models.ConditionalExecution{
			Expression:        sn.ConditionalExecution.GetString("expression"),
			ConditionType:     sn.ConditionalExecution.GetString("conditionType"),
			SkipIfFails:       sn.ConditionalExecution.GetBool("skipIfFails"),
			AlternativeNodeID: sn.ConditionalExecution.GetString("alternativeNodeId"),
		}
	}
	return n
}

// EdgeFromStorage converts a storage edge model to a domain edge.
func EdgeFromStorage(se *EdgeModel) *models.Edge {
	e := &models.Edge{
		ID:               se.EdgeID,
		SourceNodeID:     se.SourceNodeID,
		TargetNodeID:     se.TargetNodeID,
		SourceOutputName: se.SourceOutputName,
		TargetInputName:  se.TargetInputName,
		Type:             models.EdgeType(se.Type),
		SourceHandle:     se.SourceHandle,
		Condition:        se.Condition,
		Optional:         se.Optional,
		Disabled:         se.Disabled,
	}
	if se.Transformation != nil && len(se.Transformation) > 0 {
		e.Transformation = &models.Transformation{
			Kind:       models.TransformKind(se.Transformation.GetString("kind")),
			Expression: se.Transformation.GetString("expression"),
		}
	}
	if se.Loop != nil && len(se.Loop) > 0 {
		e.Loop = &models.LoopConfig{MaxIterations: se.Loop.GetInt("maxIterations")}
	}
	return e
}

func inputConfigToJSONB(c models.InputConfiguration) JSONBMap {
	out := make(JSONBMap)
	mappings := make([]interface{}, len(c.Mappings))
	for i, m := range c.Mappings {
		mappings[i] = JSONBMap{
			"inputName":    m.InputName,
			"sourceNodeId": m.SourceNodeID,
			"sourceOutput": m.SourceOutput,
			"required":     m.Required,
		}
	}
	out["mappings"] = mappings
	out["staticInputs"] = c.StaticInputs
	out["userInputs"] = c.UserInputs
	out["validationRules"] = c.ValidationRules
	return out
}

func inputConfigFromJSONB(j JSONBMap) models.InputConfiguration {
	c := models.InputConfiguration{}
	if j == nil {
		return c
	}
	if raw, ok := j["mappings"].([]interface{}); ok {
		for _, r := range raw {
			if m, ok := r.(map[string]interface{}); ok {
				required, _ := m["required"].(bool)
				c.Mappings = append(c.Mappings, models.InputMapping{
					InputName:    stringOf(m["inputName"]),
					SourceNodeID: stringOf(m["sourceNodeId"]),
					SourceOutput: stringOf(m["sourceOutput"]),
					Required:     required,
				})
			}
		}
	}
	if m, ok := j["staticInputs"].(map[string]interface{}); ok {
		c.StaticInputs = m
	}
	if m, ok := j["userInputs"].(map[string]interface{}); ok {
		c.UserInputs = m
	}
	return c
}

func outputConfigToJSONB(c models.OutputConfiguration) JSONBMap {
	out := make(JSONBMap)
	mappings := make([]interface{}, len(c.Mappings))
	for i, m := range c.Mappings {
		mappings[i] = JSONBMap{"outputName": m.OutputName, "path": m.Path, "kind": string(m.Kind)}
	}
	out["mappings"] = mappings
	out["schema"] = c.Schema
	out["cacheResults"] = c.CacheResults
	out["cacheTTL"] = c.CacheTTL
	return out
}

func outputConfigFromJSONB(j JSONBMap) models.OutputConfiguration {
	c := models.OutputConfiguration{}
	if j == nil {
		return c
	}
	if raw, ok := j["mappings"].([]interface{}); ok {
		for _, r := range raw {
			if m, ok := r.(map[string]interface{}); ok {
				c.Mappings = append(c.Mappings, models.OutputMapping{
					OutputName: stringOf(m["outputName"]),
					Path:       stringOf(m["path"]),
					Kind:       models.TransformKind(stringOf(m["kind"])),
				})
			}
		}
	}
	if m, ok := j["schema"].(map[string]interface{}); ok {
		c.Schema = m
	}
	c.CacheResults = j.GetBool("cacheResults")
	c.CacheTTL = j.GetInt("cacheTTL")
	return c
}

func execSettingsToJSONB(s models.ExecutionSettings) JSONBMap {
	return JSONBMap{
		"timeoutMinutes":  s.TimeoutMinutes,
		"retryCount":      s.RetryCount,
		"retryDelay":      s.RetryDelay,
		"resourceLimits":  s.ResourceLimits,
		"environment":     s.Environment,
		"runInParallel":   s.RunInParallel,
		"priority":        s.Priority,
	}
}

func execSettingsFromJSONB(j JSONBMap) models.ExecutionSettings {
	s := models.ExecutionSettings{}
	if j == nil {
		return s
	}
	s.TimeoutMinutes = j.GetInt("timeoutMinutes")
	s.RetryCount = j.GetInt("retryCount")
	s.RetryDelay = j.GetInt("retryDelay")
	s.RunInParallel = j.GetBool("runInParallel")
	s.Priority = j.GetInt("priority")
	if m, ok := j["resourceLimits"].(map[string]interface{}); ok {
		s.ResourceLimits = m
	}
	if m, ok := j["environment"].(map[string]interface{}); ok {
		env := make(map[string]string, len(m))
		for k, v := range m {
			env[k] = stringOf(v)
		}
		s.Environment = env
	}
	return s
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}
