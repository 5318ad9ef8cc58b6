package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowStatus represents the lifecycle status of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft      WorkflowStatus = "draft"
	WorkflowStatusActive     WorkflowStatus = "active"
	WorkflowStatusPaused     WorkflowStatus = "paused"
	WorkflowStatusArchived   WorkflowStatus = "archived"
	WorkflowStatusDeprecated WorkflowStatus = "deprecated"
)

// RetryPolicySettings configures retry behavior declared at workflow or
// node scope. Node-level settings win over workflow-level when both are
// present: the scheduler's retryLimit and retryDelay read the node's
// ExecutionSettings.RetryCount/RetryDelay first.
type RetryPolicySettings struct {
	MaxRetries         int    `json:"maxRetries"`
	DelaySeconds       int    `json:"delaySeconds"`
	ExponentialBackoff bool   `json:"exponentialBackoff"`
	RetryOnErrorTypes  []string `json:"retryOnErrorTypes,omitempty"`
}

// WorkflowSettings holds workflow-level execution defaults.
type WorkflowSettings struct {
	MaxConcurrentNodes      int                  `json:"maxConcurrentNodes"`
	TimeoutMinutes          int                  `json:"timeoutMinutes"`
	RetryPolicy             RetryPolicySettings  `json:"retryPolicy"`
	SaveIntermediateResults bool                 `json:"saveIntermediateResults"`
}

// Workflow is a complete DAG definition of program invocations and
// data-flow edges.
type Workflow struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Creator     string                 `json:"creator,omitempty"`
	Status      WorkflowStatus         `json:"status"`
	Version     int                    `json:"version"`
	Nodes       []*Node                `json:"nodes"`
	Edges       []*Edge                `json:"edges"`
	Settings    WorkflowSettings       `json:"settings"`
	Permissions map[string]interface{} `json:"permissions,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	IsTemplate  bool                   `json:"isTemplate,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NodeType enumerates the node kinds a workflow graph may contain.
type NodeType string

const (
	NodeTypeProgram      NodeType = "Program"
	NodeTypeStart        NodeType = "StartNode"
	NodeTypeEnd          NodeType = "EndNode"
	NodeTypeDecision     NodeType = "DecisionNode"
	NodeTypeMerge        NodeType = "MergeNode"
	NodeTypeSubWorkflow  NodeType = "SubWorkflow"
	NodeTypeCustomFunc   NodeType = "CustomFunction"
	NodeTypeUIInteraction NodeType = "UIInteractionNode"
)

// InputMapping selects one named input for a node from an upstream output.
type InputMapping struct {
	InputName      string `json:"inputName"`
	SourceNodeID   string `json:"sourceNodeId,omitempty"`
	SourceOutput   string `json:"sourceOutput,omitempty"`
	Required       bool   `json:"required"`
}

// InputConfiguration describes how a node's inputs are assembled.
type InputConfiguration struct {
	Mappings        []InputMapping         `json:"mappings,omitempty"`
	StaticInputs    map[string]interface{} `json:"staticInputs,omitempty"`
	UserInputs      map[string]interface{} `json:"userInputs,omitempty"`
	ValidationRules map[string]interface{} `json:"validationRules,omitempty"`
}

// OutputConfiguration describes how a node's raw output maps to named
// outputs available to downstream edges.
type OutputConfiguration struct {
	Mappings    []OutputMapping        `json:"mappings,omitempty"`
	Schema      map[string]interface{} `json:"schema,omitempty"`
	CacheResults bool                  `json:"cacheResults,omitempty"`
	CacheTTL    int                     `json:"cacheTtl,omitempty"`
}

// OutputMapping selects a field from a node's raw output and labels it.
type OutputMapping struct {
	OutputName string `json:"outputName"`
	Path       string `json:"path"`
	Kind       TransformKind `json:"kind,omitempty"`
}

// ExecutionSettings configures how a single node is dispatched.
type ExecutionSettings struct {
	TimeoutMinutes  int                    `json:"timeout"`
	RetryCount      int                    `json:"retryCount"`
	RetryDelay      int                    `json:"retryDelay"`
	ResourceLimits  map[string]interface{} `json:"resourceLimits,omitempty"`
	Environment     map[string]string      `json:"environment,omitempty"`
	RunInParallel   bool                   `json:"runInParallel,omitempty"`
	Priority        int                    `json:"priority,omitempty"`
}

// ConditionalExecution gates whether a node runs.
type ConditionalExecution struct {
	Expression         string `json:"expression"`
	ConditionType      string `json:"conditionType,omitempty"`
	SkipIfFails        bool   `json:"skipIfFails"`
	AlternativeNodeID  string `json:"alternativeNodeId,omitempty"`
}

// Node is a single vertex in the workflow DAG.
type Node struct {
	ID                   string                `json:"id"`
	ProgramID             string                `json:"programId,omitempty"`
	VersionID             string                `json:"versionId,omitempty"`
	Name                  string                `json:"name"`
	Type                  NodeType              `json:"nodeType"`
	InputConfiguration    InputConfiguration    `json:"inputConfiguration"`
	OutputConfiguration   OutputConfiguration   `json:"outputConfiguration"`
	ExecutionSettings     ExecutionSettings     `json:"executionSettings"`
	ConditionalExecution  *ConditionalExecution `json:"conditionalExecution,omitempty"`
	Disabled              bool                  `json:"disabled,omitempty"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
}

// Validate validates the node structure.
func (n *Node) Validate() error {
	if n.ID == "" {
		return &ValidationError{Field: "id", Message: "node ID is required"}
	}
	if n.Name == "" {
		return &ValidationError{Field: "name", Message: "node name is required"}
	}
	switch n.Type {
	case NodeTypeProgram, NodeTypeStart, NodeTypeEnd, NodeTypeDecision, NodeTypeMerge,
		NodeTypeSubWorkflow, NodeTypeCustomFunc, NodeTypeUIInteraction:
	default:
		return &ValidationError{Field: "nodeType", Message: "unknown node type: " + string(n.Type)}
	}
	if n.Type == NodeTypeProgram && n.ProgramID == "" {
		return &ValidationError{Field: "programId", Message: "program node requires programId"}
	}
	return nil
}

// IsUIInteraction reports whether this node suspends the workflow for
// external human input.
func (n *Node) IsUIInteraction() bool {
	return n.Type == NodeTypeUIInteraction
}

// EdgeType enumerates the edge kinds connecting two nodes.
type EdgeType string

const (
	EdgeTypeData        EdgeType = "Data"
	EdgeTypeControl      EdgeType = "Control"
	EdgeTypeConditional  EdgeType = "Conditional"
	EdgeTypeParallel     EdgeType = "Parallel"
	EdgeTypeMerge        EdgeType = "Merge"
	EdgeTypeLoop         EdgeType = "Loop"
)

// TransformKind enumerates the declarative transformation variants an edge
// or output mapping may apply to a value.
type TransformKind string

const (
	TransformJSONPath   TransformKind = "JSONPath"
	TransformJMESPath   TransformKind = "JMESPath"
	TransformExpression TransformKind = "Expression"
	TransformTemplate   TransformKind = "Template"
	TransformNone       TransformKind = "NoTransform"
)

// Transformation declares how a value is derived on an edge.
type Transformation struct {
	Kind       TransformKind `json:"kind"`
	Expression string        `json:"expression,omitempty"`
}

// LoopConfig bounds how many times a Loop edge may re-enter an earlier
// portion of the DAG.
type LoopConfig struct {
	MaxIterations int `json:"max_iterations"`
}

// Edge is a directed data-flow or control-flow connection between two
// nodes.
type Edge struct {
	ID               string          `json:"id"`
	SourceNodeID     string          `json:"sourceNodeId"`
	TargetNodeID     string          `json:"targetNodeId"`
	SourceOutputName string          `json:"sourceOutputName,omitempty"`
	TargetInputName  string          `json:"targetInputName,omitempty"`
	Type             EdgeType        `json:"edgeType"`
	SourceHandle     string          `json:"sourceHandle,omitempty"`
	Condition        string          `json:"condition,omitempty"`
	Transformation   *Transformation `json:"transformation,omitempty"`
	Loop             *LoopConfig     `json:"loop,omitempty"`
	Optional         bool            `json:"optional,omitempty"`
	Disabled         bool            `json:"disabled,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// IsLoop returns true if this edge is exempt from acyclicity checks.
func (e *Edge) IsLoop() bool { return e.Type == EdgeTypeLoop || e.Loop != nil }

// Validate validates the edge structure.
func (e *Edge) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Message: "edge ID is required"}
	}
	if e.SourceNodeID == "" {
		return &ValidationError{Field: "sourceNodeId", Message: "edge source is required"}
	}
	if e.TargetNodeID == "" {
		return &ValidationError{Field: "targetNodeId", Message: "edge target is required"}
	}
	if e.SourceNodeID == e.TargetNodeID {
		return &ValidationError{Field: "edge", Message: "self-loop edges are not allowed"}
	}
	if e.Loop != nil {
		if e.Loop.MaxIterations <= 0 {
			return &ValidationError{Field: "loop.max_iterations", Message: "must be > 0"}
		}
		if e.Condition != "" {
			return &ValidationError{Field: "loop", Message: "loop edges must not have conditions"}
		}
	}
	if e.Transformation != nil {
		switch e.Transformation.Kind {
		case TransformJSONPath, TransformJMESPath, TransformExpression, TransformTemplate, TransformNone:
		default:
			return &ValidationError{Field: "transformation.kind", Message: "unknown transformation kind: " + string(e.Transformation.Kind)}
		}
	}
	return nil
}

// Validate validates the workflow structure: required fields, duplicate
// node/edge ids, and that every edge references existing nodes.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if len(w.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Message: "at least one node is required"}
	}

	nodeIDs := make(map[string]bool)
	for _, node := range w.Nodes {
		if err := node.Validate(); err != nil {
			return err
		}
		if nodeIDs[node.ID] {
			return &ValidationError{Field: "nodes", Message: fmt.Sprintf("duplicate node ID: %s", node.ID)}
		}
		nodeIDs[node.ID] = true
	}

	edgeIDs := make(map[string]bool)
	pairs := make(map[string]bool)
	for _, edge := range w.Edges {
		if err := edge.Validate(); err != nil {
			return err
		}
		if edgeIDs[edge.ID] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("duplicate edge ID: %s", edge.ID)}
		}
		edgeIDs[edge.ID] = true

		if !nodeIDs[edge.SourceNodeID] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge references non-existent source node: %s", edge.SourceNodeID)}
		}
		if !nodeIDs[edge.TargetNodeID] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge references non-existent target node: %s", edge.TargetNodeID)}
		}

		key := edge.SourceNodeID + "|" + edge.SourceOutputName + "|" + edge.TargetNodeID + "|" + edge.TargetInputName
		if pairs[key] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("duplicate edge for (%s,%s)->(%s,%s)", edge.SourceNodeID, edge.SourceOutputName, edge.TargetNodeID, edge.TargetInputName)}
		}
		pairs[key] = true
	}

	return nil
}

// GetNode returns a node by ID.
func (w *Workflow) GetNode(nodeID string) (*Node, error) {
	for _, node := range w.Nodes {
		if node.ID == nodeID {
			return node, nil
		}
	}
	return nil, ErrNodeNotFound
}

// GetEdge returns an edge by ID.
func (w *Workflow) GetEdge(edgeID string) (*Edge, error) {
	for _, edge := range w.Edges {
		if edge.ID == edgeID {
			return edge, nil
		}
	}
	return nil, ErrEdgeNotFound
}

// EdgesFrom returns every edge whose source is nodeID.
func (w *Workflow) EdgesFrom(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range w.Edges {
		if e.SourceNodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns every edge whose target is nodeID.
func (w *Workflow) EdgesTo(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range w.Edges {
		if e.TargetNodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// AddNode adds a node to the workflow.
func (w *Workflow) AddNode(node *Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	for _, n := range w.Nodes {
		if n.ID == node.ID {
			return &ValidationError{Field: "id", Message: "node ID already exists"}
		}
	}
	w.Nodes = append(w.Nodes, node)
	w.UpdatedAt = time.Now()
	return nil
}

// AddEdge adds an edge to the workflow.
func (w *Workflow) AddEdge(edge *Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	if _, err := w.GetNode(edge.SourceNodeID); err != nil {
		return &ValidationError{Field: "sourceNodeId", Message: "source node does not exist"}
	}
	if _, err := w.GetNode(edge.TargetNodeID); err != nil {
		return &ValidationError{Field: "targetNodeId", Message: "target node does not exist"}
	}
	for _, e := range w.Edges {
		if e.ID == edge.ID {
			return &ValidationError{Field: "id", Message: "edge ID already exists"}
		}
	}
	w.Edges = append(w.Edges, edge)
	w.UpdatedAt = time.Now()
	return nil
}

// RemoveNode removes a node from the workflow and its associated edges.
func (w *Workflow) RemoveNode(nodeID string) error {
	found := false
	for i, node := range w.Nodes {
		if node.ID == nodeID {
			w.Nodes = append(w.Nodes[:i], w.Nodes[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return ErrNodeNotFound
	}

	var edges []*Edge
	for _, edge := range w.Edges {
		if edge.SourceNodeID != nodeID && edge.TargetNodeID != nodeID {
			edges = append(edges, edge)
		}
	}
	w.Edges = edges
	w.UpdatedAt = time.Now()
	return nil
}

// RemoveEdge removes an edge from the workflow.
func (w *Workflow) RemoveEdge(edgeID string) error {
	for i, edge := range w.Edges {
		if edge.ID == edgeID {
			w.Edges = append(w.Edges[:i], w.Edges[i+1:]...)
			w.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrEdgeNotFound
}

// Clone creates a deep copy of the workflow via a JSON round-trip.
func (w *Workflow) Clone() (*Workflow, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var clone Workflow
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}
