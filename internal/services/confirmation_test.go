package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-gateway/internal/kafka"
	"registration-gateway/internal/models"
	"registration-gateway/internal/storage"
)

func TestConfirm_ManualGroup(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodTransfer, 3), env.cfg.UnitPrice)
	require.NoError(t, err)

	result, err := env.engine.Confirm(ctx, group.GroupID, "admin@race")
	require.NoError(t, err)

	assert.Equal(t, models.StatusConfirmed, result.Group.PaymentStatus)
	assert.Equal(t, "admin@race", result.Group.ConfirmedBy)
	require.NotNil(t, result.Group.ConfirmedAt)
	assert.True(t, result.NotificationSent)

	// Numbers are assigned in item creation order.
	assert.Equal(t, []string{"0001", "0002", "0003"}, result.Numbers)
	require.Len(t, result.Items, 3)
	for _, item := range result.Items {
		assert.Equal(t, models.StatusConfirmed, item.PaymentStatus)
	}

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 0, unit.Reserved)
	assert.Equal(t, 3, unit.Sold)

	assert.Equal(t, 1, env.producer.published(kafka.EventConfirmed))
}

// Two racing confirms: exactly one wins, the loser sees ErrAlreadyProcessed
// and no double commit or double numbering happens.
func TestConfirm_ConcurrentDoubleConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodTransfer, 2), env.cfg.UnitPrice)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.engine.Confirm(ctx, group.GroupID, "admin")
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyProcessed):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 2, unit.Sold, "inventory must be committed exactly once")

	items, err := env.store.GetItems(ctx, group.GroupID)
	require.NoError(t, err)
	numbers := map[string]bool{}
	for _, item := range items {
		require.NotEmpty(t, item.Number)
		assert.False(t, numbers[item.Number], "number %s assigned twice", item.Number)
		numbers[item.Number] = true
	}

	assert.Equal(t, 1, env.producer.published(kafka.EventConfirmed))
}

func TestConfirm_MaterializesDeferredItems(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodP2C, 2), env.cfg.UnitPrice)
	require.NoError(t, err)

	result, err := env.engine.Confirm(ctx, group.GroupID, "p2c-gateway")
	require.NoError(t, err)

	assert.Empty(t, result.Group.Deferred, "work order is consumed on confirmation")
	require.Len(t, result.Items, 2)
	assert.Equal(t, []string{"0001", "0002"}, result.Numbers)

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 0, unit.Reserved)
	assert.Equal(t, 2, unit.Sold)
}

// When the category sold out while a gateway purchase was in flight, the
// materialization fails and the whole confirmation rolls back.
func TestConfirm_DeferredSoldOutRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 3)
	ctx := context.Background()

	deferredGroup, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodP2C, 2), env.cfg.UnitPrice)
	require.NoError(t, err)

	// Someone else takes the last units first.
	other, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodTransfer, 2), env.cfg.UnitPrice)
	require.NoError(t, err)
	_, err = env.engine.Confirm(ctx, other.GroupID, "admin")
	require.NoError(t, err)

	_, err = env.engine.Confirm(ctx, deferredGroup.GroupID, "p2c-gateway")
	require.Error(t, err)

	// Nothing of the failed confirmation sticks.
	got, err := env.store.GetGroup(ctx, deferredGroup.GroupID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.PaymentStatus)
	assert.Len(t, got.Deferred, 2)

	items, err := env.store.GetItems(ctx, deferredGroup.GroupID)
	require.NoError(t, err)
	assert.Empty(t, items)

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 2, unit.Sold)
	assert.Equal(t, 0, unit.Reserved)
}

func TestConfirm_NotificationFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodTransfer, 1), env.cfg.UnitPrice)
	require.NoError(t, err)

	env.producer.fail = true
	result, err := env.engine.Confirm(ctx, group.GroupID, "admin")
	require.NoError(t, err)

	assert.False(t, result.NotificationSent)
	assert.Equal(t, models.StatusConfirmed, result.Group.PaymentStatus)
}

func TestReject_ReleasesHolds(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodTransfer, 2), env.cfg.UnitPrice)
	require.NoError(t, err)
	assert.Equal(t, 2, env.availability(t, "M", "M").Reserved)

	rejected, err := env.engine.Reject(ctx, group.GroupID, "proof illegible")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.PaymentStatus)
	assert.Equal(t, "proof illegible", rejected.RejectReason)

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 0, unit.Reserved)
	assert.Equal(t, 0, unit.Sold)

	assert.Equal(t, 1, env.producer.published(kafka.EventRejected))

	// Rejecting again is a tolerated duplicate, no second event.
	_, err = env.engine.Reject(ctx, group.GroupID, "again")
	require.NoError(t, err)
	assert.Equal(t, 1, env.producer.published(kafka.EventRejected))
}

func TestReject_ConfirmedGroupFails(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodTransfer, 1), env.cfg.UnitPrice)
	require.NoError(t, err)
	_, err = env.engine.Confirm(ctx, group.GroupID, "admin")
	require.NoError(t, err)

	_, err = env.engine.Reject(ctx, group.GroupID, "late change of mind")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestResendNotification(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodTransfer, 1), env.cfg.UnitPrice)
	require.NoError(t, err)

	// Pending groups have nothing to resend.
	err = env.engine.ResendNotification(ctx, group.GroupID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.engine.Confirm(ctx, group.GroupID, "admin")
	require.NoError(t, err)

	require.NoError(t, env.engine.ResendNotification(ctx, group.GroupID))
	assert.Equal(t, 2, env.producer.published(kafka.EventConfirmed))
}

func TestDeleteGroup_ReturnsSoldUnits(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodTransfer, 2), env.cfg.UnitPrice)
	require.NoError(t, err)
	_, err = env.engine.Confirm(ctx, group.GroupID, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, env.availability(t, "M", "M").Sold)

	require.NoError(t, env.engine.DeleteGroup(ctx, group.GroupID))

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 0, unit.Sold)
	assert.Equal(t, 0, unit.Reserved)

	_, err = env.store.GetGroup(ctx, group.GroupID)
	assert.ErrorIs(t, err, storage.ErrGroupNotFound)

	items, err := env.store.GetItems(ctx, group.GroupID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleteGroup_NotFound(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.DeleteGroup(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrGroupNotFound)
}
