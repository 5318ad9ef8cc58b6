// Package validator implements C7, the Workflow Validator: a pure
// function over a workflow definition that checks structural soundness
// before C8 will schedule it.
package validator

import (
	"fmt"

	"github.com/smilemakc/mbflow/pkg/models"
)

// Validate runs every mandatory check from spec.md §4.7 against wf and
// returns the consolidated result. It never mutates wf and never touches
// persistence; callers (C8's execute, and the workflow-save handler) run
// it synchronously.
func Validate(wf *models.Workflow) models.WorkflowValidationResult {
	result := models.WorkflowValidationResult{IsValid: true}

	nodeByID := make(map[string]*models.Node, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeByID[n.ID] = n
	}

	checkEdgeEndpoints(wf, nodeByID, &result)
	checkAcyclic(wf, nodeByID, &result)
	checkEntryTerminalReachability(wf, nodeByID, &result)
	checkInputMappings(wf, nodeByID, &result)
	checkConditionalSeverance(wf, nodeByID, &result)
	result.ComplexityMetrics = computeComplexity(wf, nodeByID)

	result.IsValid = len(result.Errors) == 0
	return result
}

func addError(result *models.WorkflowValidationResult, code, message, nodeID, edgeID, field string) {
	result.Errors = append(result.Errors, models.ValidationIssue{Code: code, Message: message, NodeID: nodeID, EdgeID: edgeID, Field: field})
}

func addWarning(result *models.WorkflowValidationResult, code, message, nodeID, edgeID, field string) {
	result.Warnings = append(result.Warnings, models.ValidationIssue{Code: code, Message: message, NodeID: nodeID, EdgeID: edgeID, Field: field})
}

func addInfo(result *models.WorkflowValidationResult, code, message, nodeID, edgeID, field string) {
	result.Infos = append(result.Infos, models.ValidationIssue{Code: code, Message: message, NodeID: nodeID, EdgeID: edgeID, Field: field})
}

// checkEdgeEndpoints implements mandatory check 1.
func checkEdgeEndpoints(wf *models.Workflow, nodeByID map[string]*models.Node, result *models.WorkflowValidationResult) {
	for _, e := range wf.Edges {
		if _, ok := nodeByID[e.SourceNodeID]; !ok {
			addError(result, "EDGE_SOURCE_MISSING", fmt.Sprintf("edge %s references non-existent source node %s", e.ID, e.SourceNodeID), "", e.ID, "sourceNodeId")
		}
		if _, ok := nodeByID[e.TargetNodeID]; !ok {
			addError(result, "EDGE_TARGET_MISSING", fmt.Sprintf("edge %s references non-existent target node %s", e.ID, e.TargetNodeID), "", e.ID, "targetNodeId")
		}
	}
}

// checkAcyclic implements mandatory check 2: DFS with three-color
// marking over the subgraph of non-Loop edges.
func checkAcyclic(wf *models.Workflow, nodeByID map[string]*models.Node, result *models.WorkflowValidationResult) {
	adjacency := dataAdjacency(wf, true)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodeByID))
	for id := range nodeByID {
		color[id] = white
	}

	var cyclePath []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		cyclePath = append(cyclePath, id)
		for _, next := range adjacency[id] {
			switch color[next] {
			case gray:
				cyclePath = append(cyclePath, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		cyclePath = cyclePath[:len(cyclePath)-1]
		color[id] = black
		return false
	}

	for id := range nodeByID {
		if color[id] == white {
			if visit(id) {
				addError(result, "CYCLE_DETECTED", fmt.Sprintf("cycle detected among nodes: %v", cyclePath), "", "", "")
				return
			}
		}
	}
}

// checkEntryTerminalReachability implements mandatory check 3.
func checkEntryTerminalReachability(wf *models.Workflow, nodeByID map[string]*models.Node, result *models.WorkflowValidationResult) {
	if len(nodeByID) == 0 {
		return
	}

	inboundNonControl := make(map[string]int, len(nodeByID))
	outbound := make(map[string]int, len(nodeByID))
	for _, e := range wf.Edges {
		if _, ok := nodeByID[e.SourceNodeID]; !ok {
			continue
		}
		if _, ok := nodeByID[e.TargetNodeID]; !ok {
			continue
		}
		outbound[e.SourceNodeID]++
		if e.Type != models.EdgeTypeControl {
			inboundNonControl[e.TargetNodeID]++
		}
	}

	var entries, terminals []string
	for id := range nodeByID {
		if inboundNonControl[id] == 0 {
			entries = append(entries, id)
		}
		if outbound[id] == 0 {
			terminals = append(terminals, id)
		}
	}

	if len(entries) != 1 {
		addError(result, "ENTRY_COUNT", fmt.Sprintf("expected exactly one entry node, found %d: %v", len(entries), entries), "", "", "")
	}
	if len(terminals) == 0 {
		addError(result, "NO_TERMINAL_NODE", "workflow has no terminal node", "", "", "")
	}

	if len(entries) == 0 {
		return
	}
	adjacency := dataAdjacencyAllEdges(wf, nodeByID)
	reached := make(map[string]bool, len(nodeByID))
	// An isolated node is an entry too; it must not count as reached just
	// for being one, so only entries with outgoing edges seed the walk.
	var stack []string
	for _, e := range entries {
		if len(nodeByID) == 1 || outbound[e] > 0 {
			stack = append(stack, e)
		}
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		for _, next := range adjacency[cur] {
			if !reached[next] {
				stack = append(stack, next)
			}
		}
	}
	for id := range nodeByID {
		if !reached[id] {
			addError(result, "UNREACHABLE_NODE", fmt.Sprintf("node %s is not reachable from the entry node", id), id, "", "")
		}
	}
}

// checkInputMappings implements mandatory check 4: every InputMapping
// must name a source node that exists and, when there's an edge wiring
// it, a declared output the edge actually carries.
func checkInputMappings(wf *models.Workflow, nodeByID map[string]*models.Node, result *models.WorkflowValidationResult) {
	edgesByTargetInput := make(map[string][]*models.Edge)
	for _, e := range wf.Edges {
		key := e.TargetNodeID + "|" + e.TargetInputName
		edgesByTargetInput[key] = append(edgesByTargetInput[key], e)
	}

	for _, n := range wf.Nodes {
		for _, m := range n.InputConfiguration.Mappings {
			if m.SourceNodeID == "" {
				continue // satisfied entirely by staticInputs/userInputs
			}
			src, ok := nodeByID[m.SourceNodeID]
			if !ok {
				addError(result, "INPUT_SOURCE_MISSING", fmt.Sprintf("node %s input %q references non-existent source node %s", n.ID, m.InputName, m.SourceNodeID), n.ID, "", "inputConfiguration.mappings")
				continue
			}

			key := n.ID + "|" + m.InputName
			wired := edgesByTargetInput[key]
			if len(wired) == 0 {
				if m.Required {
					addWarning(result, "INPUT_NOT_WIRED", fmt.Sprintf("node %s required input %q has no inbound edge from %s", n.ID, m.InputName, m.SourceNodeID), n.ID, "", "inputConfiguration.mappings")
				}
				continue
			}

			found := false
			for _, e := range wired {
				if e.SourceNodeID == m.SourceNodeID {
					found = true
					if !outputExists(src, e.SourceOutputName) {
						addWarning(result, "OUTPUT_NOT_DECLARED", fmt.Sprintf("node %s does not declare output %q consumed by %s", src.ID, e.SourceOutputName, n.ID), n.ID, e.ID, "sourceOutputName")
					}
				}
			}
			if !found {
				addError(result, "INPUT_EDGE_MISMATCH", fmt.Sprintf("node %s input %q is wired from a different source than declared (%s)", n.ID, m.InputName, m.SourceNodeID), n.ID, "", "inputConfiguration.mappings")
			}
		}
	}
}

func outputExists(n *models.Node, outputName string) bool {
	if outputName == "" {
		return true
	}
	if len(n.OutputConfiguration.Mappings) == 0 {
		// No declared output contract; assume the raw output carries it.
		return true
	}
	for _, m := range n.OutputConfiguration.Mappings {
		if m.OutputName == outputName {
			return true
		}
	}
	return false
}

// checkConditionalSeverance implements mandatory check 5: a conditional
// edge with no AlternativeNodeID must not be the only path keeping a
// downstream node reachable.
func checkConditionalSeverance(wf *models.Workflow, nodeByID map[string]*models.Node, result *models.WorkflowValidationResult) {
	for _, n := range wf.Nodes {
		if n.ConditionalExecution == nil || n.ConditionalExecution.AlternativeNodeID != "" {
			continue
		}
		// Removing n (as if it were Skipped) must not disconnect any
		// required downstream node from every remaining entry.
		adjacency := dataAdjacencyExcluding(wf, nodeByID, n.ID)
		reachableWithout := reachableSet(adjacency, otherEntries(wf, nodeByID, n.ID))
		for _, e := range wf.Edges {
			if e.SourceNodeID != n.ID || e.Optional {
				continue
			}
			if _, ok := nodeByID[e.TargetNodeID]; !ok {
				continue
			}
			if !reachableWithout[e.TargetNodeID] {
				addWarning(result, "CONDITIONAL_SEVERANCE",
					fmt.Sprintf("node %s has no alternative and is the only path keeping %s reachable if skipped", n.ID, e.TargetNodeID),
					n.ID, e.ID, "conditionalExecution")
			}
		}
	}
}

func otherEntries(wf *models.Workflow, nodeByID map[string]*models.Node, excluded string) []string {
	inbound := make(map[string]int, len(nodeByID))
	for _, e := range wf.Edges {
		if e.Type == models.EdgeTypeControl || e.SourceNodeID == excluded {
			continue
		}
		inbound[e.TargetNodeID]++
	}
	var entries []string
	for id := range nodeByID {
		if id != excluded && inbound[id] == 0 {
			entries = append(entries, id)
		}
	}
	return entries
}

func reachableSet(adjacency map[string][]string, seeds []string) map[string]bool {
	reached := make(map[string]bool, len(adjacency))
	stack := append([]string{}, seeds...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		for _, next := range adjacency[cur] {
			if !reached[next] {
				stack = append(stack, next)
			}
		}
	}
	return reached
}

// dataAdjacency builds a source->targets map over every non-Loop edge,
// optionally including Control edges.
func dataAdjacency(wf *models.Workflow, includeControl bool) map[string][]string {
	adjacency := make(map[string][]string)
	for _, e := range wf.Edges {
		if e.IsLoop() {
			continue
		}
		if !includeControl && e.Type == models.EdgeTypeControl {
			continue
		}
		adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e.TargetNodeID)
	}
	return adjacency
}

// dataAdjacencyAllEdges includes every edge (Data, Control, Conditional,
// Parallel, Merge, and Loop) for reachability purposes — reachability is
// about whether a node can ever run, not whether it's on the acyclic
// critical path.
func dataAdjacencyAllEdges(wf *models.Workflow, nodeByID map[string]*models.Node) map[string][]string {
	adjacency := make(map[string][]string)
	for _, e := range wf.Edges {
		if _, ok := nodeByID[e.SourceNodeID]; !ok {
			continue
		}
		if _, ok := nodeByID[e.TargetNodeID]; !ok {
			continue
		}
		adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e.TargetNodeID)
	}
	return adjacency
}

func dataAdjacencyExcluding(wf *models.Workflow, nodeByID map[string]*models.Node, excluded string) map[string][]string {
	adjacency := make(map[string][]string)
	for _, e := range wf.Edges {
		if e.SourceNodeID == excluded || e.TargetNodeID == excluded {
			continue
		}
		if _, ok := nodeByID[e.SourceNodeID]; !ok {
			continue
		}
		if _, ok := nodeByID[e.TargetNodeID]; !ok {
			continue
		}
		adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e.TargetNodeID)
	}
	return adjacency
}

// computeComplexity implements mandatory check 6.
func computeComplexity(wf *models.Workflow, nodeByID map[string]*models.Node) models.ComplexityMetrics {
	metrics := models.ComplexityMetrics{
		TotalNodes: len(wf.Nodes),
		TotalEdges: len(wf.Edges),
	}
	metrics.CyclomaticComplexity = metrics.TotalEdges - metrics.TotalNodes + 2

	outDegreeData := make(map[string]int)
	for _, e := range wf.Edges {
		if e.Type == models.EdgeTypeData {
			outDegreeData[e.SourceNodeID]++
		}
	}
	for _, d := range outDegreeData {
		if d > 1 {
			metrics.ParallelBranches++
		}
	}

	adjacency := dataAdjacency(wf, false)
	inbound := make(map[string]int, len(nodeByID))
	for _, targets := range adjacency {
		for _, t := range targets {
			inbound[t]++
		}
	}
	var roots []string
	for id := range nodeByID {
		if inbound[id] == 0 {
			roots = append(roots, id)
		}
	}

	depth := make(map[string]int, len(nodeByID))
	levelSize := make(map[int]int)
	var order []string
	visited := make(map[string]bool, len(nodeByID))
	queue := append([]string{}, roots...)
	for _, r := range roots {
		depth[r] = 1
		visited[r] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		levelSize[depth[cur]]++
		for _, next := range adjacency[cur] {
			candidate := depth[cur] + 1
			if !visited[next] || candidate > depth[next] {
				depth[next] = candidate
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, d := range depth {
		if d > metrics.MaxDepth {
			metrics.MaxDepth = d
		}
	}
	for _, size := range levelSize {
		if size > metrics.MaxWidth {
			metrics.MaxWidth = size
		}
	}

	switch {
	case metrics.TotalNodes <= 5 && metrics.CyclomaticComplexity <= 3:
		metrics.ComplexityLevel = models.ComplexitySimple
	case metrics.TotalNodes <= 15 && metrics.CyclomaticComplexity <= 8:
		metrics.ComplexityLevel = models.ComplexityModerate
	case metrics.TotalNodes <= 40 && metrics.CyclomaticComplexity <= 20:
		metrics.ComplexityLevel = models.ComplexityComplex
	default:
		metrics.ComplexityLevel = models.ComplexityExtreme
	}

	return metrics
}
