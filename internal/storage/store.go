package storage

import (
	"context"
	"errors"
	"time"

	"registration-gateway/internal/models"
)

var (
	ErrGroupNotFound     = errors.New("group not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrInventoryNotFound = errors.New("inventory category not found")
)

// Store is the transactional persistence boundary. Mutations that must be
// atomic run inside WithTx; repository methods pick the transaction up from
// the context, so the same method works inside and outside a transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	SaveGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	GetGroupByCode(ctx context.Context, code string) (*models.Group, error)
	// UpdateGroupStatus transitions the group only when its current status is
	// one of from, acting as the optimistic guard against concurrent
	// confirms/rejects. Returns false when the guard did not match.
	UpdateGroupStatus(ctx context.Context, groupID string, from []models.PaymentStatus, to models.PaymentStatus, by, reason string, at time.Time) (bool, error)
	// ClearDeferred drops a group's deferred work order once materialized.
	ClearDeferred(ctx context.Context, groupID string) error
	DeleteGroup(ctx context.Context, groupID string) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Group, error)

	SaveItems(ctx context.Context, items []*models.Item) error
	GetItems(ctx context.Context, groupID string) ([]*models.Item, error)
	UpdateItemsStatus(ctx context.Context, groupID string, status models.PaymentStatus) error
	AssignNumber(ctx context.Context, itemID, number string) error
	DeleteItems(ctx context.Context, groupID string) error

	SaveInventoryUnit(ctx context.Context, unit *models.InventoryUnit) error
	GetInventory(ctx context.Context, cat models.Category) (*models.InventoryUnit, error)
	// GetInventoryForUpdate row-locks the category so check-and-decrement is
	// serialized per category. Must be called inside WithTx.
	GetInventoryForUpdate(ctx context.Context, cat models.Category) (*models.InventoryUnit, error)
	UpdateInventoryCounts(ctx context.Context, unit *models.InventoryUnit) error

	SaveReservations(ctx context.Context, reservations []*models.Reservation) error
	GetReservations(ctx context.Context, groupID string, status models.ReservationStatus) ([]*models.Reservation, error)
	// UpdateReservationsStatus moves reservations from one status to another
	// and reports how many rows actually transitioned.
	UpdateReservationsStatus(ctx context.Context, ids []string, from, to models.ReservationStatus) (int, error)

	// NextSequence advances the shared counter by count and returns the first
	// number of the allocated range. Must be called inside WithTx so the
	// read-increment-write is serialized.
	NextSequence(ctx context.Context, count int) (int64, error)

	SaveTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	UpdateTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	ListTransactions(ctx context.Context, groupID string) ([]*models.PaymentTransaction, error)
}
