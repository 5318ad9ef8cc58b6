package rest

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/smilemakc/mbflow/pkg/models"
)

type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		HTTPStatus: httpStatus,
	}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrUnauthorized     = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden        = NewAPIError("FORBIDDEN", "Access denied", http.StatusForbidden)
	ErrNotFound         = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrConflict         = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)
	ErrValidationFailed = NewAPIError("VALIDATION_FAILED", "Validation failed", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrTooManyRequests  = NewAPIError("RATE_LIMIT_EXCEEDED", "Too many requests", http.StatusTooManyRequests)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "Required parameter is missing", http.StatusBadRequest)
	ErrInvalidParameter = NewAPIError("INVALID_PARAMETER", "Invalid parameter value", http.StatusBadRequest)
	ErrInvalidID        = NewAPIError("INVALID_ID", "Invalid ID format", http.StatusBadRequest)
)

func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, models.ErrProgramNotFound):
		return NewAPIError("PROGRAM_NOT_FOUND", "Program not found", http.StatusNotFound)
	case errors.Is(err, models.ErrVersionNotFound):
		return NewAPIError("VERSION_NOT_FOUND", "Version not found", http.StatusNotFound)
	case errors.Is(err, models.ErrVersionNotApproved):
		return NewAPIError("VERSION_NOT_APPROVED", "Version is not approved for execution", http.StatusConflict)

	case errors.Is(err, models.ErrWorkflowNotFound):
		return NewAPIError("WORKFLOW_NOT_FOUND", "Workflow not found", http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidWorkflow):
		return NewAPIError("INVALID_WORKFLOW", "Invalid workflow structure", http.StatusBadRequest)
	case errors.Is(err, models.ErrCyclicDependency):
		return NewAPIError("CYCLIC_DEPENDENCY", "Workflow contains cyclic dependencies", http.StatusBadRequest)
	case errors.Is(err, models.ErrOrphanedNodes):
		return NewAPIError("ORPHANED_NODES", "Workflow contains orphaned nodes", http.StatusBadRequest)
	case errors.Is(err, models.ErrNodeNotFound):
		return NewAPIError("NODE_NOT_FOUND", "Node not found", http.StatusNotFound)
	case errors.Is(err, models.ErrEdgeNotFound):
		return NewAPIError("EDGE_NOT_FOUND", "Edge not found", http.StatusNotFound)

	case errors.Is(err, models.ErrExecutionNotFound):
		return NewAPIError("EXECUTION_NOT_FOUND", "Execution not found", http.StatusNotFound)
	case errors.Is(err, models.ErrExecutionTerminal):
		return NewAPIError("EXECUTION_TERMINAL", "Execution is already in a terminal state", http.StatusConflict)

	case errors.Is(err, models.ErrWorkflowExecutionNotFound):
		return NewAPIError("WORKFLOW_EXECUTION_NOT_FOUND", "Workflow execution not found", http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidStateTransition):
		return NewAPIError("INVALID_STATE_TRANSITION", "Invalid execution state transition", http.StatusConflict)

	case errors.Is(err, models.ErrInteractionNotFound):
		return NewAPIError("INTERACTION_NOT_FOUND", "UI interaction not found", http.StatusNotFound)
	case errors.Is(err, models.ErrRunnerNotFound):
		return NewAPIError("RUNNER_NOT_FOUND", "Language runner not found", http.StatusBadRequest)
	case errors.Is(err, models.ErrTopicNotFound):
		return NewAPIError("TOPIC_NOT_FOUND", "Streaming topic not found", http.StatusNotFound)

	// Database-level not found (when repository doesn't wrap sql.ErrNoRows)
	case errors.Is(err, sql.ErrNoRows):
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	}

	// Check for string patterns in error message as fallback
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "no rows") || strings.Contains(errMsg, "not found") {
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	}

	// Check for custom error types in default block
	{
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			return NewAPIErrorWithDetails(
				"VALIDATION_ERROR",
				validationErr.Message,
				http.StatusBadRequest,
				map[string]interface{}{
					"field": validationErr.Field,
				},
			)
		}

		var validationErrs models.ValidationErrors
		if errors.As(err, &validationErrs) {
			details := make(map[string]interface{})
			for i, ve := range validationErrs {
				details[ve.Field] = ve.Message
				if i == 0 {
					return NewAPIErrorWithDetails("VALIDATION_FAILED", ve.Message, http.StatusBadRequest, details)
				}
			}
			return NewAPIErrorWithDetails("VALIDATION_FAILED", "Multiple validation errors", http.StatusBadRequest, details)
		}

		var depErr *models.DependencyError
		if errors.As(err, &depErr) {
			return NewAPIError("DEPENDENCY_ERROR", depErr.Error(), http.StatusBadRequest)
		}

		var timeoutErr *models.TimeoutError
		if errors.As(err, &timeoutErr) {
			return NewAPIError("TIMEOUT", timeoutErr.Error(), http.StatusGatewayTimeout)
		}

		var cancelledErr *models.CancelledError
		if errors.As(err, &cancelledErr) {
			return NewAPIError("CANCELLED", cancelledErr.Error(), http.StatusConflict)
		}

		var spawnErr *models.SpawnError
		if errors.As(err, &spawnErr) {
			return NewAPIError("SPAWN_FAILED", spawnErr.Error(), http.StatusInternalServerError)
		}

		var materializeErr *models.MaterializationError
		if errors.As(err, &materializeErr) {
			return NewAPIError("MATERIALIZATION_FAILED", materializeErr.Error(), http.StatusInternalServerError)
		}
	}

	return NewAPIError("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
}
