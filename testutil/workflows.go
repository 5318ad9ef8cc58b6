package testutil

import (
	"github.com/google/uuid"

	storagemodels "github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/smilemakc/mbflow/pkg/models"
)

func passthroughNode(id, name string) *models.Node {
	return &models.Node{
		ID:   id,
		Name: name,
		Type: models.NodeTypeCustomFunc,
		InputConfiguration: models.InputConfiguration{
			Mappings: []models.InputMapping{{InputName: "input"}},
		},
	}
}

func dataEdge(from, to string) *models.Edge {
	return &models.Edge{
		ID:           from + "_to_" + to,
		SourceNodeID: from,
		TargetNodeID: to,
		Type:         models.EdgeTypeData,
	}
}

// CreateSimpleWorkflow builds a 3-node linear chain: n1 -> n2 -> n3.
func CreateSimpleWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:    "Simple Chain Test",
		Status:  models.WorkflowStatusDraft,
		Version: 1,
		Nodes: []*models.Node{
			passthroughNode("n1", "Node 1"),
			passthroughNode("n2", "Node 2"),
			passthroughNode("n3", "Node 3"),
		},
		Edges: []*models.Edge{
			dataEdge("n1", "n2"),
			dataEdge("n2", "n3"),
		},
	}
}

// CreateParallelWorkflow builds a workflow with parallel branches that
// fan out from n1 through n2/n3/n4 and merge at n5.
func CreateParallelWorkflow() *models.Workflow {
	merge := passthroughNode("n5", "Merge Node")
	merge.Type = models.NodeTypeMerge
	return &models.Workflow{
		Name:    "Parallel Test",
		Status:  models.WorkflowStatusDraft,
		Version: 1,
		Nodes: []*models.Node{
			passthroughNode("n1", "Node 1"),
			passthroughNode("n2", "Node 2"),
			passthroughNode("n3", "Node 3"),
			passthroughNode("n4", "Node 4"),
			merge,
		},
		Edges: []*models.Edge{
			dataEdge("n1", "n2"),
			dataEdge("n1", "n3"),
			dataEdge("n1", "n4"),
			dataEdge("n2", "n5"),
			dataEdge("n3", "n5"),
			dataEdge("n4", "n5"),
		},
	}
}

// CreateVariableSubstitutionWorkflow builds a workflow whose single
// node carries static inputs to exercise template-style input wiring.
func CreateVariableSubstitutionWorkflow() *models.Workflow {
	prepare := &models.Node{
		ID:   "prepare",
		Name: "Prepare",
		Type: models.NodeTypeCustomFunc,
		InputConfiguration: models.InputConfiguration{
			StaticInputs: map[string]interface{}{
				"api_key":  "test-key-123",
				"base_url": "https://api.example.com",
			},
		},
	}
	return &models.Workflow{
		Name:    "Variable Substitution Test",
		Status:  models.WorkflowStatusDraft,
		Version: 1,
		Nodes: []*models.Node{
			prepare,
			passthroughNode("result", "Result"),
		},
		Edges: []*models.Edge{
			dataEdge("prepare", "result"),
		},
	}
}

// CreateErrorHandlingWorkflow builds a workflow with a Program node
// pointing at a program ID that does not exist, to exercise failure
// paths through the scheduler and execution engine.
func CreateErrorHandlingWorkflow() *models.Workflow {
	failing := &models.Node{
		ID:        "failing_program",
		Name:      "Failing Program",
		Type:      models.NodeTypeProgram,
		ProgramID: "nonexistent-program",
	}
	return &models.Workflow{
		Name:    "Error Handling Test",
		Status:  models.WorkflowStatusDraft,
		Version: 1,
		Nodes: []*models.Node{
			failing,
			passthroughNode("result", "Result"),
		},
		Edges: []*models.Edge{
			dataEdge("failing_program", "result"),
		},
	}
}

// WorkflowDomainToModel converts a domain Workflow into its storage
// representation, assigning a fresh UUID, via the same mapper the
// production repository uses.
func WorkflowDomainToModel(w *models.Workflow) *storagemodels.WorkflowModel {
	return storagemodels.WorkflowToStorage(w, uuid.New())
}
