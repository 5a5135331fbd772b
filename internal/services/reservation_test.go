package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-gateway/internal/inventory"
	"registration-gateway/internal/models"
)

func TestCreateGroup_ManualChannel(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)

	group, err := env.manager.CreateGroup(context.Background(), groupRequest(models.MethodTransfer, 3), env.cfg.UnitPrice)
	require.NoError(t, err)

	assert.NotEmpty(t, group.GroupID)
	assert.NotEmpty(t, group.Code)
	assert.Equal(t, models.StatusPending, group.PaymentStatus)
	assert.Equal(t, 3, group.ItemCount)
	assert.Equal(t, 75.00, group.Amount)
	assert.Empty(t, group.Deferred)

	// Manual channels get the long verification window.
	assert.Equal(t, testStart.Add(env.cfg.ManualWindow), group.ReservedUntil)

	items, err := env.store.GetItems(context.Background(), group.GroupID)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 3, unit.Reserved)
	assert.Equal(t, 0, unit.Sold)
}

func TestCreateGroup_GatewayChannelDefersItems(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)

	group, err := env.manager.CreateGroup(context.Background(), groupRequest(models.MethodP2C, 2), env.cfg.UnitPrice)
	require.NoError(t, err)

	assert.Len(t, group.Deferred, 2)
	assert.Equal(t, testStart.Add(env.cfg.GatewayWindow), group.ReservedUntil,
		"gateway purchases get the short window")

	// No items, no inventory: the payload waits for payment confirmation.
	items, err := env.store.GetItems(context.Background(), group.GroupID)
	require.NoError(t, err)
	assert.Empty(t, items)

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 0, unit.Reserved)
	assert.Equal(t, 0, unit.Sold)
}

func TestCreateGroup_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(req *models.CreateGroupRequest)
	}{
		{"no items", func(req *models.CreateGroupRequest) { req.Items = nil }},
		{"too many items", func(req *models.CreateGroupRequest) {
			for len(req.Items) <= env.cfg.MaxItems {
				req.Items = append(req.Items, req.Items[0])
			}
		}},
		{"missing participant name", func(req *models.CreateGroupRequest) { req.Items[0].ParticipantName = "" }},
		{"unknown size", func(req *models.CreateGroupRequest) { req.Items[0].Size = "XXXL" }},
		{"bad gender", func(req *models.CreateGroupRequest) { req.Items[0].Gender = "X" }},
		{"transfer without bank", func(req *models.CreateGroupRequest) { req.BankCode = "" }},
		{"unknown method", func(req *models.CreateGroupRequest) { req.PaymentMethod = "crypto" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := groupRequest(models.MethodTransfer, 2)
			tt.mutate(req)

			_, err := env.manager.CreateGroup(ctx, req, env.cfg.UnitPrice)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateGroup_P2CRequiresGatewayFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := groupRequest(models.MethodP2C, 1)
	req.BankCode = "9999"
	_, err := env.manager.CreateGroup(ctx, req, env.cfg.UnitPrice)
	assert.ErrorIs(t, err, ErrValidation)

	req = groupRequest(models.MethodP2C, 1)
	req.ContactPhone = "02121234567"
	_, err = env.manager.CreateGroup(ctx, req, env.cfg.UnitPrice)
	assert.ErrorIs(t, err, ErrValidation)

	req = groupRequest(models.MethodP2C, 1)
	req.NationalID = "X1"
	_, err = env.manager.CreateGroup(ctx, req, env.cfg.UnitPrice)
	assert.ErrorIs(t, err, ErrValidation)
}

// Creation is all or nothing: when the hold fails, neither the group nor any
// item may remain behind.
func TestCreateGroup_RollsBackOnInsufficientInventory(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 2)

	req := groupRequest(models.MethodTransfer, 3)
	_, err := env.manager.CreateGroup(context.Background(), req, env.cfg.UnitPrice)

	var insufficient *inventory.InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)

	groups, err := env.store.ListExpiredPending(context.Background(), testStart.Add(1000*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, groups, "no group row may survive the rollback")

	unit := env.availability(t, "M", "M")
	assert.Equal(t, 0, unit.Reserved)
}

func TestGetGroup_ReportsExpiredPendingAsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedInventory(t, "M", "M", 10)
	ctx := context.Background()

	group, err := env.manager.CreateGroup(ctx, groupRequest(models.MethodP2C, 1), env.cfg.UnitPrice)
	require.NoError(t, err)

	got, _, err := env.manager.GetGroup(ctx, group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.PaymentStatus)

	env.clock.Advance(env.cfg.GatewayWindow + time.Minute)

	got, _, err = env.manager.GetGroup(ctx, group.GroupID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.PaymentStatus,
		"readers must not show an expired hold as still pending")
	assert.NotEmpty(t, got.RejectReason)
}

func TestGetGroup_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.manager.GetGroup(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
