package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/models"
)

func TestRouteOutput_ShouldAssembleInputs_WhenDownstreamHasMatchingMapping(t *testing.T) {
	source := &models.Node{ID: "a", Name: "A"}
	target := &models.Node{
		ID: "b", Name: "B",
		InputConfiguration: models.InputConfiguration{
			Mappings: []models.InputMapping{{InputName: "count", SourceNodeID: "a", SourceOutput: "total", Required: true}},
		},
	}
	edge := &models.Edge{ID: "e1", SourceNodeID: "a", TargetNodeID: "b", SourceOutputName: "total", TargetInputName: "count", Type: models.EdgeTypeData}

	router := New("exec-1")
	err := router.RouteOutput(source, []*models.Edge{edge}, map[string]interface{}{"total": float64(42)}, nil)
	require.NoError(t, err)

	inputs, err := router.AssembleInputs(target, models.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, float64(42), inputs["count"])
}

func TestAssembleInputs_ShouldReturnDependencyError_WhenRequiredInputMissing(t *testing.T) {
	target := &models.Node{
		ID: "b", Name: "B",
		InputConfiguration: models.InputConfiguration{
			Mappings: []models.InputMapping{{InputName: "count", SourceNodeID: "a", Required: true}},
		},
	}

	router := New("exec-1")
	_, err := router.AssembleInputs(target, models.ExecutionContext{})

	require.Error(t, err)
	var depErr *models.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "count", depErr.InputName)
}

func TestRouteOutput_ShouldApplyExpressionTransformation_WhenEdgeDeclaresOne(t *testing.T) {
	source := &models.Node{
		ID: "a", Name: "A",
		OutputConfiguration: models.OutputConfiguration{
			Mappings: []models.OutputMapping{{OutputName: "value", Path: "value"}},
		},
	}
	target := &models.Node{
		ID: "b", Name: "B",
		InputConfiguration: models.InputConfiguration{
			Mappings: []models.InputMapping{{InputName: "doubled", SourceNodeID: "a", Required: true}},
		},
	}
	edge := &models.Edge{
		ID: "e1", SourceNodeID: "a", TargetNodeID: "b", SourceOutputName: "value", TargetInputName: "doubled", Type: models.EdgeTypeData,
		Transformation: &models.Transformation{Kind: models.TransformExpression, Expression: "value * 2"},
	}

	router := New("exec-1")
	err := router.RouteOutput(source, []*models.Edge{edge}, map[string]interface{}{"value": 21}, nil)
	require.NoError(t, err)

	inputs, err := router.AssembleInputs(target, models.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, 42, inputs["doubled"])
}

func TestParseRawOutput_ShouldFallBackToOutputEnvelope_WhenStdoutIsNotJSON(t *testing.T) {
	result := ParseRawOutput("plain text result")
	assert.Equal(t, "plain text result", result["output"])
}
