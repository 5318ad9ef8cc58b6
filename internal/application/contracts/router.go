// Package contracts implements C6, the Data Contract Router: it turns a
// node's raw execution output into named WorkflowDataContracts for each
// downstream edge, and assembles a target node's input map once it
// becomes eligible for dispatch.
package contracts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"

	"github.com/smilemakc/mbflow/pkg/models"
)

// Router holds the pending contracts produced so far for one
// WorkflowExecution, keyed by (targetNodeId, targetInputName).
type Router struct {
	executionID string
	pending     map[string]*models.WorkflowDataContract
}

// New creates a Router scoped to a single WorkflowExecution.
func New(executionID string) *Router {
	return &Router{executionID: executionID, pending: make(map[string]*models.WorkflowDataContract)}
}

// RouteOutput applies source's outputConfiguration.mappings to raw
// (typically the parsed stdout JSON blob), then pushes one
// WorkflowDataContract per outbound edge into the router's pending store,
// applying each edge's own transformation. outputFiles is accepted but
// not consulted: output mappings resolve against raw only.
func (r *Router) RouteOutput(source *models.Node, outEdges []*models.Edge, raw map[string]interface{}, outputFiles []string) error {
	named, err := applyOutputMappings(source, raw)
	if err != nil {
		return err
	}

	for _, e := range outEdges {
		if e.Disabled {
			continue
		}
		value, ok := named[e.SourceOutputName]
		if !ok {
			value = raw // no declared mapping for this name; pass the raw blob through
		}

		transformed, transformLabel, err := applyTransformation(e.Transformation, value, raw)
		if err != nil {
			return fmt.Errorf("edge %s transformation: %w", e.ID, err)
		}

		contract := &models.WorkflowDataContract{
			ContractID:   uuid.NewString(),
			SourceNodeID: source.ID,
			TargetNodeID: e.TargetNodeID,
			DataType:     inferDataType(transformed),
			Data:         transformed,
			Metadata: models.ContractMetadata{
				ContentType: "application/json",
				Lineage: models.Lineage{
					SourceNodes:        []string{source.ID},
					TransformationPath: nonEmpty(transformLabel),
				},
			},
			Version:   1,
			Timestamp: time.Now(),
		}

		key := models.ContractKey(r.executionID, e.TargetNodeID, e.TargetInputName)
		r.pending[key] = contract
	}

	return nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// AssembleInputs builds target's full input map: every InputMapping is
// resolved from a previously routed contract (or passed through as-is if
// unwired), then StaticInputs fill any key still unset and UserInputs
// (the node's own, then execCtx's) are merged on top. A required mapping with no contract and no static/user fallback
// surfaces as a DependencyError.
func (r *Router) AssembleInputs(target *models.Node, execCtx models.ExecutionContext) (map[string]interface{}, error) {
	inputs := make(map[string]interface{})

	for _, m := range target.InputConfiguration.Mappings {
		key := models.ContractKey(r.executionID, target.ID, m.InputName)
		contract, ok := r.pending[key]
		if ok {
			inputs[m.InputName] = contract.Data
			continue
		}
		if v, ok := target.InputConfiguration.StaticInputs[m.InputName]; ok {
			inputs[m.InputName] = v
			continue
		}
		if v, ok := execCtx.UserInputs[m.InputName]; ok {
			inputs[m.InputName] = v
			continue
		}
		if m.Required {
			return nil, &models.DependencyError{NodeID: target.ID, InputName: m.InputName}
		}
	}

	for k, v := range target.InputConfiguration.StaticInputs {
		if _, exists := inputs[k]; !exists {
			inputs[k] = v
		}
	}
	for k, v := range target.InputConfiguration.UserInputs {
		inputs[k] = v
	}
	for k, v := range execCtx.UserInputs {
		inputs[k] = v
	}

	return inputs, nil
}

// applyOutputMappings projects raw into a named-output map per source's
// declared OutputConfiguration; with no mappings declared, the raw blob
// is exposed verbatim under every name a consumer might ask for.
func applyOutputMappings(source *models.Node, raw map[string]interface{}) (map[string]interface{}, error) {
	if len(source.OutputConfiguration.Mappings) == 0 {
		return nil, nil
	}
	named := make(map[string]interface{}, len(source.OutputConfiguration.Mappings))
	for _, m := range source.OutputConfiguration.Mappings {
		value, err := extractByKind(m.Kind, m.Path, raw)
		if err != nil {
			return nil, fmt.Errorf("output mapping %s: %w", m.OutputName, err)
		}
		named[m.OutputName] = value
	}
	return named, nil
}

// applyTransformation applies an edge's declared transformation to value,
// with access to the full raw output for expressions that need sibling
// fields. Returns the transformed value and a short label for lineage.
func applyTransformation(t *models.Transformation, value interface{}, raw map[string]interface{}) (interface{}, string, error) {
	if t == nil || t.Kind == models.TransformNone || t.Kind == "" {
		return value, "", nil
	}
	switch t.Kind {
	case models.TransformJSONPath:
		result, err := extractByKind(models.TransformJSONPath, t.Expression, raw)
		if err != nil {
			return nil, "", err
		}
		return result, "JSONPath:" + t.Expression, nil
	case models.TransformExpression:
		result, err := evalExpression(t.Expression, raw, value)
		if err != nil {
			return nil, "", err
		}
		return result, "Expression:" + t.Expression, nil
	case models.TransformJMESPath:
		// No JMESPath library in the dependency set; fall back to the
		// JSONPath-style dotted-path walker, which covers the common
		// field-selection case JMESPath expressions in this system use.
		result, err := extractByKind(models.TransformJSONPath, t.Expression, raw)
		if err != nil {
			return nil, "", err
		}
		return result, "JMESPath:" + t.Expression, nil
	case models.TransformTemplate:
		result := renderTemplate(t.Expression, raw)
		return result, "Template:" + t.Expression, nil
	default:
		return value, "", nil
	}
}

func evalExpression(expression string, raw map[string]interface{}, value interface{}) (interface{}, error) {
	env := map[string]interface{}{}
	for k, v := range raw {
		env[k] = v
	}
	env["value"] = value
	env["output"] = raw

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return result, nil
}

// extractByKind resolves a dotted/bracketed path like "items[0].name"
// against raw, used by both JSONPath output mappings and transformations.
// Grounded on the same path-traversal approach as a template resolver:
// split on '.', peel a trailing "[idx]" off each segment, and descend.
func extractByKind(kind models.TransformKind, path string, raw map[string]interface{}) (interface{}, error) {
	if path == "" {
		return raw, nil
	}
	var cur interface{} = raw
	for _, segment := range strings.Split(strings.TrimPrefix(path, "$."), ".") {
		if segment == "" {
			continue
		}
		field, index, hasIndex := splitIndex(segment)
		if field != "" {
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("path %q: %q is not an object", path, field)
			}
			next, ok := m[field]
			if !ok {
				return nil, fmt.Errorf("path %q: field %q not found", path, field)
			}
			cur = next
		}
		if hasIndex {
			arr, ok := cur.([]interface{})
			if !ok {
				return nil, fmt.Errorf("path %q: %q is not an array", path, segment)
			}
			if index < 0 || index >= len(arr) {
				return nil, fmt.Errorf("path %q: index %d out of range", path, index)
			}
			cur = arr[index]
		}
	}
	return cur, nil
}

func splitIndex(segment string) (field string, index int, hasIndex bool) {
	open := strings.Index(segment, "[")
	if open < 0 || !strings.HasSuffix(segment, "]") {
		return segment, 0, false
	}
	field = segment[:open]
	idxStr := segment[open+1 : len(segment)-1]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return segment, 0, false
	}
	return field, idx, true
}

// renderTemplate does simple {{field}} substitution against raw's
// top-level keys.
func renderTemplate(template string, raw map[string]interface{}) string {
	out := template
	for k, v := range raw {
		placeholder := "{{" + k + "}}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, fmt.Sprint(v))
		}
	}
	return out
}

func inferDataType(value interface{}) models.DataType {
	switch value.(type) {
	case string:
		return models.DataTypeText
	case []byte:
		return models.DataTypeBinary
	default:
		return models.DataTypeJSON
	}
}

// ParseRawOutput parses a program's stdout tail as JSON, falling back to
// a {"output": <raw text>} envelope when it isn't valid JSON — most
// programs emit a JSON result, but plain-text output must still route.
func ParseRawOutput(stdout string) map[string]interface{} {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return map[string]interface{}{}
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		return parsed
	}
	return map[string]interface{}{"output": trimmed}
}
