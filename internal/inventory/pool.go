package inventory

import (
	"context"
	"fmt"
	"time"

	"registration-gateway/internal/logger"
	"registration-gateway/internal/models"
	"registration-gateway/internal/storage"
	"registration-gateway/internal/utils"
)

// InsufficientInventoryError reports a category that cannot cover the
// requested quantity, carrying the remaining count so callers can present
// "only N remaining".
type InsufficientInventoryError struct {
	Category  models.Category
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: requested %d, available %d",
		e.Category.Key(), e.Requested, e.Available)
}

// Pool tracks capacity, reserved and sold counts per category. Every
// mutation row-locks the categories it touches, so concurrent reserves
// against the same category are serialized by the store.
type Pool struct {
	store storage.Store
	log   *logger.Logger
}

func NewPool(store storage.Store, log *logger.Logger) *Pool {
	return &Pool{store: store, log: log}
}

// Reserve holds one unit of capacity per item, all categories or none.
// Joins the caller's transaction when one is in flight.
func (p *Pool) Reserve(ctx context.Context, groupID string, items []*models.Item) ([]*models.Reservation, error) {
	var reservations []*models.Reservation

	err := p.store.WithTx(ctx, func(txCtx context.Context) error {
		byCategory := make(map[models.Category][]*models.Item)
		var order []models.Category
		for _, item := range items {
			cat := item.Category()
			if _, seen := byCategory[cat]; !seen {
				order = append(order, cat)
			}
			byCategory[cat] = append(byCategory[cat], item)
		}

		now := time.Now()
		for _, cat := range order {
			want := len(byCategory[cat])

			unit, err := p.store.GetInventoryForUpdate(txCtx, cat)
			if err != nil {
				return err
			}
			if unit.Available() < want {
				return &InsufficientInventoryError{
					Category:  cat,
					Requested: want,
					Available: unit.Available(),
				}
			}

			unit.Reserved += want
			if err := p.store.UpdateInventoryCounts(txCtx, unit); err != nil {
				return err
			}

			for _, item := range byCategory[cat] {
				reservations = append(reservations, &models.Reservation{
					ReservationID: utils.GenerateUUID(),
					GroupID:       groupID,
					ItemID:        item.ItemID,
					Size:          cat.Size,
					Gender:        cat.Gender,
					Status:        models.ReservationActive,
					CreatedAt:     now,
				})
			}
		}

		return p.store.SaveReservations(txCtx, reservations)
	})
	if err != nil {
		return nil, err
	}

	p.log.LogDatabase("RESERVE", "inventory_units", fmt.Sprintf("Reserved %d units for group %s", len(reservations), groupID))
	return reservations, nil
}

// Release returns a group's active reservations to available capacity.
// Already-released reservations are skipped, so calling it twice is a no-op.
func (p *Pool) Release(ctx context.Context, groupID string) (int, error) {
	released := 0

	err := p.store.WithTx(ctx, func(txCtx context.Context) error {
		active, err := p.store.GetReservations(txCtx, groupID, models.ReservationActive)
		if err != nil {
			return err
		}

		for cat, ids := range groupByCategory(active) {
			unit, err := p.store.GetInventoryForUpdate(txCtx, cat)
			if err != nil {
				return err
			}

			n, err := p.store.UpdateReservationsStatus(txCtx, ids, models.ReservationActive, models.ReservationReleased)
			if err != nil {
				return err
			}

			unit.Reserved -= n
			if err := p.store.UpdateInventoryCounts(txCtx, unit); err != nil {
				return err
			}
			released += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if released > 0 {
		p.log.LogDatabase("RELEASE", "inventory_units", fmt.Sprintf("Released %d units for group %s", released, groupID))
	}
	return released, nil
}

// Commit converts a group's active reservations from reserved to sold.
// Idempotent: reservations already committed are not counted again.
func (p *Pool) Commit(ctx context.Context, groupID string) (int, error) {
	committed := 0

	err := p.store.WithTx(ctx, func(txCtx context.Context) error {
		active, err := p.store.GetReservations(txCtx, groupID, models.ReservationActive)
		if err != nil {
			return err
		}

		for cat, ids := range groupByCategory(active) {
			unit, err := p.store.GetInventoryForUpdate(txCtx, cat)
			if err != nil {
				return err
			}

			n, err := p.store.UpdateReservationsStatus(txCtx, ids, models.ReservationActive, models.ReservationCommitted)
			if err != nil {
				return err
			}

			unit.Reserved -= n
			unit.Sold += n
			if err := p.store.UpdateInventoryCounts(txCtx, unit); err != nil {
				return err
			}
			committed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if committed > 0 {
		p.log.LogDatabase("COMMIT", "inventory_units", fmt.Sprintf("Committed %d units for group %s", committed, groupID))
	}
	return committed, nil
}

// ReleaseSold hands sold units back to capacity; used when a confirmed group
// is administratively deleted.
func (p *Pool) ReleaseSold(ctx context.Context, groupID string) (int, error) {
	released := 0

	err := p.store.WithTx(ctx, func(txCtx context.Context) error {
		committed, err := p.store.GetReservations(txCtx, groupID, models.ReservationCommitted)
		if err != nil {
			return err
		}

		for cat, ids := range groupByCategory(committed) {
			unit, err := p.store.GetInventoryForUpdate(txCtx, cat)
			if err != nil {
				return err
			}

			n, err := p.store.UpdateReservationsStatus(txCtx, ids, models.ReservationCommitted, models.ReservationReleased)
			if err != nil {
				return err
			}

			unit.Sold -= n
			if err := p.store.UpdateInventoryCounts(txCtx, unit); err != nil {
				return err
			}
			released += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// Availability reads the current counts for one category without locking.
func (p *Pool) Availability(ctx context.Context, cat models.Category) (*models.InventoryUnit, error) {
	return p.store.GetInventory(ctx, cat)
}

func groupByCategory(reservations []*models.Reservation) map[models.Category][]string {
	out := make(map[models.Category][]string)
	for _, r := range reservations {
		cat := r.Category()
		out[cat] = append(out[cat], r.ReservationID)
	}
	return out
}
