package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/mbflow/pkg/models"
)

func linearWorkflow() *models.Workflow {
	return &models.Workflow{
		Name: "linear",
		Nodes: []*models.Node{
			{ID: "a", Name: "A", Type: models.NodeTypeStart},
			{ID: "b", Name: "B", Type: models.NodeTypeProgram, ProgramID: "p1"},
			{ID: "c", Name: "C", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "a", TargetNodeID: "b", Type: models.EdgeTypeData},
			{ID: "e2", SourceNodeID: "b", TargetNodeID: "c", Type: models.EdgeTypeData},
		},
	}
}

func TestValidate_ShouldReportValid_WhenWorkflowIsLinearAndSound(t *testing.T) {
	result := Validate(linearWorkflow())

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 3, result.ComplexityMetrics.TotalNodes)
	assert.Equal(t, 2, result.ComplexityMetrics.TotalEdges)
}

func TestValidate_ShouldReportCycle_WhenNonLoopEdgesFormACycle(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, &models.Edge{ID: "e3", SourceNodeID: "c", TargetNodeID: "a", Type: models.EdgeTypeData})

	result := Validate(wf)

	assert.False(t, result.IsValid)
	assertHasCode(t, result.Errors, "CYCLE_DETECTED")
}

func TestValidate_ShouldAllowLoopEdgeCycle_WhenEdgeTypeIsLoop(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, &models.Edge{ID: "e3", SourceNodeID: "c", TargetNodeID: "a", Type: models.EdgeTypeLoop, Loop: &models.LoopConfig{MaxIterations: 3}})

	result := Validate(wf)

	for _, e := range result.Errors {
		assert.NotEqual(t, "CYCLE_DETECTED", e.Code)
	}
}

func TestValidate_ShouldReportEdgeSourceMissing_WhenEdgeReferencesUnknownNode(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, &models.Edge{ID: "e3", SourceNodeID: "ghost", TargetNodeID: "c", Type: models.EdgeTypeData})

	result := Validate(wf)

	assert.False(t, result.IsValid)
	assertHasCode(t, result.Errors, "EDGE_SOURCE_MISSING")
}

func TestValidate_ShouldReportMultipleEntries_WhenTwoNodesHaveNoInbound(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &models.Node{ID: "d", Name: "D", Type: models.NodeTypeStart})

	result := Validate(wf)

	assert.False(t, result.IsValid)
	assertHasCode(t, result.Errors, "ENTRY_COUNT")
}

func TestValidate_ShouldReportUnreachableNode_WhenNodeHasNoPathFromEntry(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &models.Node{ID: "orphan", Name: "Orphan", Type: models.NodeTypeProgram, ProgramID: "p2"})

	result := Validate(wf)

	assert.False(t, result.IsValid)
	assertHasCode(t, result.Errors, "UNREACHABLE_NODE")
}

func TestValidate_ShouldReportInputSourceMissing_WhenMappingReferencesUnknownNode(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[1].InputConfiguration.Mappings = []models.InputMapping{
		{InputName: "x", SourceNodeID: "ghost", SourceOutput: "y"},
	}

	result := Validate(wf)

	assert.False(t, result.IsValid)
	assertHasCode(t, result.Errors, "INPUT_SOURCE_MISSING")
}

func assertHasCode(t *testing.T, issues []models.ValidationIssue, code string) {
	t.Helper()
	for _, i := range issues {
		if i.Code == code {
			return
		}
	}
	t.Fatalf("expected an issue with code %s, got %+v", code, issues)
}
