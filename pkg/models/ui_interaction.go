package models

import "time"

// InteractionType enumerates the kinds of human-in-the-loop pause points
// a workflow may define.
type InteractionType string

const (
	InteractionUserInput   InteractionType = "UserInput"
	InteractionConfirmation InteractionType = "Confirmation"
	InteractionSelection   InteractionType = "Selection"
	InteractionFileUpload  InteractionType = "FileUpload"
	InteractionDataReview  InteractionType = "DataReview"
	InteractionCustom      InteractionType = "Custom"
)

// UIInteractionStatus is the lifecycle status of a UIInteraction.
type UIInteractionStatus string

const (
	UIInteractionPending    UIInteractionStatus = "Pending"
	UIInteractionInProgress UIInteractionStatus = "InProgress"
	UIInteractionCompleted  UIInteractionStatus = "Completed"
	UIInteractionCancelled  UIInteractionStatus = "Cancelled"
	UIInteractionTimeout    UIInteractionStatus = "Timeout"
)

// IsTerminal reports whether the interaction will not transition further.
func (s UIInteractionStatus) IsTerminal() bool {
	switch s {
	case UIInteractionCompleted, UIInteractionCancelled, UIInteractionTimeout:
		return true
	}
	return false
}

// UIInteraction is a pause point created by C8 when a workflow reaches a
// UI node; resolved by an external submission routed through C9.
type UIInteraction struct {
	ID                  string                 `json:"id"`
	WorkflowExecutionID string                 `json:"workflowExecutionId"`
	NodeID              string                 `json:"nodeId"`
	Type                InteractionType        `json:"interactionType"`
	Status              UIInteractionStatus    `json:"status"`
	InputSchema         map[string]interface{} `json:"inputSchema,omitempty"`
	OutputData          map[string]interface{} `json:"outputData,omitempty"`
	CreatedAt           time.Time              `json:"createdAt"`
	CompletedAt         *time.Time             `json:"completedAt,omitempty"`
	Timeout             *time.Duration         `json:"timeout,omitempty"`
}

// ExpiresAt returns the timestamp after which the interaction should be
// swept into Timeout, or the zero Time if it has no timeout.
func (i *UIInteraction) ExpiresAt() time.Time {
	if i.Timeout == nil {
		return time.Time{}
	}
	return i.CreatedAt.Add(*i.Timeout)
}

// IsExpired reports whether the interaction's timeout has elapsed as of
// now.
func (i *UIInteraction) IsExpired(now time.Time) bool {
	if i.Timeout == nil {
		return false
	}
	return now.After(i.ExpiresAt())
}
