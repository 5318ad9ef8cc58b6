package uisession

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/application/streaming"
	"github.com/smilemakc/mbflow/internal/config"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	storagemodels "github.com/smilemakc/mbflow/internal/infrastructure/storage/models"
	"github.com/smilemakc/mbflow/pkg/models"
)

type fakeRepo struct {
	records map[uuid.UUID]*storagemodels.UIInteractionModel
}

func newFakeRepo() *fakeRepo { return &fakeRepo{records: make(map[uuid.UUID]*storagemodels.UIInteractionModel)} }

func (f *fakeRepo) Create(ctx context.Context, i *storagemodels.UIInteractionModel) error {
	f.records[i.ID] = i
	return nil
}
func (f *fakeRepo) Update(ctx context.Context, i *storagemodels.UIInteractionModel) error {
	f.records[i.ID] = i
	return nil
}
func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*storagemodels.UIInteractionModel, error) {
	return f.records[id], nil
}
func (f *fakeRepo) FindPendingByWorkflowExecutionID(ctx context.Context, id uuid.UUID) ([]*storagemodels.UIInteractionModel, error) {
	return nil, nil
}
func (f *fakeRepo) FindExpired(ctx context.Context, before time.Time) ([]*storagemodels.UIInteractionModel, error) {
	var out []*storagemodels.UIInteractionModel
	for _, r := range f.records {
		if r.TimeoutSeconds != nil && r.CreatedAt.Add(time.Duration(*r.TimeoutSeconds)*time.Second).Before(before) && r.CompletedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func testLogger() *logger.Logger {
	return logger.New(config.LoggingConfig{Level: "error", Format: "text"})
}

func TestCreateThenSubmit_ShouldReleaseWaiter_WhenResponseIsValid(t *testing.T) {
	repo := newFakeRepo()
	hub := streaming.New(testLogger(), 0, 0)
	m := New(repo, hub, testLogger())

	iid, waiter, err := m.Create(context.Background(), uuid.NewString(), "node-1", models.InteractionUserInput, map[string]interface{}{"required": []interface{}{"name"}}, 0)
	require.NoError(t, err)

	err = m.Submit(context.Background(), iid, map[string]interface{}{"name": "ada"}, "user-1")
	require.NoError(t, err)

	select {
	case outcome := <-waiter:
		require.NoError(t, outcome.Err)
		assert.Equal(t, models.UIInteractionCompleted, outcome.Interaction.Status)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestSubmit_ShouldReturnValidationError_WhenRequiredFieldMissing(t *testing.T) {
	repo := newFakeRepo()
	hub := streaming.New(testLogger(), 0, 0)
	m := New(repo, hub, testLogger())

	iid, _, err := m.Create(context.Background(), uuid.NewString(), "node-1", models.InteractionUserInput, map[string]interface{}{"required": []interface{}{"name"}}, 0)
	require.NoError(t, err)

	err = m.Submit(context.Background(), iid, map[string]interface{}{}, "user-1")
	require.Error(t, err)
}

func TestCancel_ShouldReleaseWaiterWithError_WhenCalled(t *testing.T) {
	repo := newFakeRepo()
	hub := streaming.New(testLogger(), 0, 0)
	m := New(repo, hub, testLogger())

	iid, waiter, err := m.Create(context.Background(), uuid.NewString(), "node-1", models.InteractionUserInput, nil, 0)
	require.NoError(t, err)

	require.NoError(t, m.Cancel(context.Background(), iid, "user gave up"))

	outcome := <-waiter
	require.Error(t, outcome.Err)
	assert.Equal(t, models.UIInteractionCancelled, outcome.Interaction.Status)
}
