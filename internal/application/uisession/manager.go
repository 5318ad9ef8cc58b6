// Package uisession implements C9, the UI-Interaction Session Manager: a
// process-wide map from interaction ID to a waiting scheduler goroutine,
// released by an external submission or by the background expiry sweep.
package uisession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/smilemakc/mbflow/internal/application/streaming"
	"github.com/smilemakc/mbflow/internal/domain/repository"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	storagemodels "github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/smilemakc/mbflow/pkg/models"
)

// Outcome is what a waiter receives once its interaction resolves.
type Outcome struct {
	Interaction *models.UIInteraction
	Err         error // non-nil on Cancelled/Timeout
}

// session pairs a persisted interaction with the channel its scheduler
// waiter blocks on.
type session struct {
	interaction *models.UIInteraction
	waiter      chan Outcome
	once        sync.Once
}

func (s *session) release(o Outcome) {
	s.once.Do(func() { s.waiter <- o; close(s.waiter) })
}

// Manager is the process-wide IID -> Session map.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	repo     repository.UIInteractionRepository
	hub      *streaming.Hub
	log      *logger.Logger
	cron     *cron.Cron
}

// New creates a Manager with a seconds-enabled cron scheduler. It does
// not start the expiry sweep; StartSweep does.
func New(repo repository.UIInteractionRepository, hub *streaming.Hub, log *logger.Logger) *Manager {
	m := &Manager{
		sessions: make(map[string]*session),
		repo:     repo,
		hub:      hub,
		log:      log,
		cron:     cron.New(cron.WithSeconds()),
	}
	return m
}

// StartSweep schedules the expired-interaction sweep on the given cron
// spec (seconds-enabled, e.g. "*/30 * * * * *" for every 30s) and starts
// the cron scheduler. Call once during startup.
func (m *Manager) StartSweep(ctx context.Context, spec string) error {
	_, err := m.cron.AddFunc(spec, func() { m.sweepExpired(ctx) })
	if err != nil {
		return fmt.Errorf("schedule ui interaction sweep: %w", err)
	}
	m.cron.Start()
	return nil
}

// StopSweep stops the cron scheduler, waiting for any in-flight sweep.
func (m *Manager) StopSweep() {
	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
}

// Create persists a new Pending UIInteraction, registers its waiter
// channel, and broadcasts a UIInteractionCreated stream event. The
// returned channel receives exactly one Outcome once submit/cancel/sweep
// resolves it.
func (m *Manager) Create(ctx context.Context, workflowExecutionID, nodeID string, interactionType models.InteractionType, inputSchema map[string]interface{}, timeout time.Duration) (string, <-chan Outcome, error) {
	interaction := &models.UIInteraction{
		ID:                  uuid.NewString(),
		WorkflowExecutionID: workflowExecutionID,
		NodeID:              nodeID,
		Type:                interactionType,
		Status:              models.UIInteractionPending,
		InputSchema:         withDerivedFields(inputSchema),
		CreatedAt:           time.Now(),
	}
	if timeout > 0 {
		interaction.Timeout = &timeout
	}

	weUUID, err := uuid.Parse(workflowExecutionID)
	if err != nil {
		return "", nil, fmt.Errorf("parse workflow execution id: %w", err)
	}
	idUUID, err := uuid.Parse(interaction.ID)
	if err != nil {
		return "", nil, err
	}
	record := storagemodels.UIInteractionToStorage(interaction, idUUID, weUUID)
	if err := m.repo.Create(ctx, record); err != nil {
		return "", nil, fmt.Errorf("persist ui interaction: %w", err)
	}

	sess := &session{interaction: interaction, waiter: make(chan Outcome, 1)}
	m.mu.Lock()
	m.sessions[interaction.ID] = sess
	m.mu.Unlock()

	m.hub.Publish(workflowExecutionID, models.StreamEvent{
		ExecutionID: workflowExecutionID,
		Type:        models.StreamEventUIInteractionCreated,
		Payload: map[string]interface{}{
			"interactionId": interaction.ID,
			"nodeId":        nodeID,
			"inputSchema":   interaction.InputSchema,
		},
		CreatedAt: time.Now(),
	})

	return interaction.ID, sess.waiter, nil
}

// Submit validates responseData against the interaction's inputSchema
// (presence of every schema-declared required field), marks it
// Completed, persists it, and releases the waiter.
func (m *Manager) Submit(ctx context.Context, interactionID string, responseData map[string]interface{}, userID string) error {
	sess, err := m.get(interactionID)
	if err != nil {
		return err
	}

	if err := validateAgainstSchema(sess.interaction.InputSchema, responseData); err != nil {
		return err
	}

	now := time.Now()
	sess.interaction.Status = models.UIInteractionCompleted
	sess.interaction.OutputData = responseData
	sess.interaction.CompletedAt = &now

	if err := m.persist(ctx, sess.interaction); err != nil {
		return err
	}

	m.hub.Publish(sess.interaction.WorkflowExecutionID, models.StreamEvent{
		ExecutionID: sess.interaction.WorkflowExecutionID,
		Type:        models.StreamEventUIInteractionStatusChanged,
		Payload:     map[string]interface{}{"interactionId": interactionID, "status": string(models.UIInteractionCompleted), "userId": userID},
		CreatedAt:   now,
	})

	m.remove(interactionID)
	sess.release(Outcome{Interaction: sess.interaction})
	return nil
}

// Cancel marks an interaction Cancelled and releases its waiter with a
// failure.
func (m *Manager) Cancel(ctx context.Context, interactionID, reason string) error {
	sess, err := m.get(interactionID)
	if err != nil {
		return err
	}

	now := time.Now()
	sess.interaction.Status = models.UIInteractionCancelled
	sess.interaction.CompletedAt = &now

	if err := m.persist(ctx, sess.interaction); err != nil {
		return err
	}

	m.hub.Publish(sess.interaction.WorkflowExecutionID, models.StreamEvent{
		ExecutionID: sess.interaction.WorkflowExecutionID,
		Type:        models.StreamEventUIInteractionStatusChanged,
		Payload:     map[string]interface{}{"interactionId": interactionID, "status": string(models.UIInteractionCancelled), "reason": reason},
		CreatedAt:   now,
	})

	m.remove(interactionID)
	sess.release(Outcome{Interaction: sess.interaction, Err: fmt.Errorf("ui interaction cancelled: %s", reason)})
	return nil
}

// sweepExpired finds interactions whose timeout has elapsed and releases
// their waiters with a UIInteractionTimeoutError.
func (m *Manager) sweepExpired(ctx context.Context) {
	expired, err := m.repo.FindExpired(ctx, time.Now())
	if err != nil {
		m.log.Error("ui interaction sweep query failed", "error", err)
		return
	}
	for _, rec := range expired {
		m.expireOne(ctx, rec.ID.String())
	}
}

func (m *Manager) expireOne(ctx context.Context, interactionID string) {
	sess, err := m.get(interactionID)
	if err != nil {
		return // already resolved locally (submit/cancel raced the sweep)
	}

	now := time.Now()
	sess.interaction.Status = models.UIInteractionTimeout
	sess.interaction.CompletedAt = &now

	if err := m.persist(ctx, sess.interaction); err != nil {
		m.log.Error("failed to persist expired ui interaction", "error", err, "interaction_id", interactionID)
	}

	m.hub.Publish(sess.interaction.WorkflowExecutionID, models.StreamEvent{
		ExecutionID: sess.interaction.WorkflowExecutionID,
		Type:        models.StreamEventUIInteractionStatusChanged,
		Payload:     map[string]interface{}{"interactionId": interactionID, "status": string(models.UIInteractionTimeout)},
		CreatedAt:   now,
	})

	m.remove(interactionID)
	sess.release(Outcome{Interaction: sess.interaction, Err: &models.UIInteractionTimeoutError{InteractionID: interactionID}})
}

func (m *Manager) get(interactionID string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[interactionID]
	if !ok {
		return nil, fmt.Errorf("ui interaction %s not found or already resolved", interactionID)
	}
	return sess, nil
}

func (m *Manager) remove(interactionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, interactionID)
}

func (m *Manager) persist(ctx context.Context, interaction *models.UIInteraction) error {
	weUUID, err := uuid.Parse(interaction.WorkflowExecutionID)
	if err != nil {
		return err
	}
	idUUID, err := uuid.Parse(interaction.ID)
	if err != nil {
		return err
	}
	return m.repo.Update(ctx, storagemodels.UIInteractionToStorage(interaction, idUUID, weUUID))
}

// withDerivedFields fills inputSchema["fields"] from inputSchema's own
// top-level keys when the caller didn't already declare a fields list,
// so a generic UI can render something reasonable either way.
func withDerivedFields(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	if _, ok := schema["fields"]; ok {
		return schema
	}
	fields := make([]string, 0, len(schema))
	for k := range schema {
		fields = append(fields, k)
	}
	out := make(map[string]interface{}, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}
	out["fields"] = fields
	return out
}

// validateAgainstSchema checks that every schema key marked required in
// a "required" list (the convention the JSON schema-lite inputSchema
// uses elsewhere in this system) is present in responseData.
func validateAgainstSchema(schema map[string]interface{}, responseData map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	required, ok := schema["required"].([]interface{})
	if !ok {
		return nil
	}
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := responseData[name]; !present {
			return &models.ValidationError{Field: name, Message: "required field missing from ui interaction response"}
		}
	}
	return nil
}
