package services

import (
	"context"
	"fmt"
	"time"

	"registration-gateway/internal/inventory"
	"registration-gateway/internal/logger"
	"registration-gateway/internal/models"
	"registration-gateway/internal/sequence"
	"registration-gateway/internal/storage"

	"registration-gateway/internal/kafka"
)

// EventPublisher is what the engine needs from Kafka; failures are logged,
// never rolled back into the confirmation transaction.
type EventPublisher interface {
	PublishGroupEvent(event *models.GroupEvent) error
}

// ConfirmationResult reports what a successful confirmation did.
type ConfirmationResult struct {
	Group            *models.Group  `json:"group"`
	Items            []*models.Item `json:"items"`
	Numbers          []string       `json:"numbers"`
	NotificationSent bool           `json:"notification_sent"`
}

// ConfirmationEngine owns the pending→terminal transitions. The conditional
// status update acts as the optimistic lock: of two concurrent confirms,
// exactly one wins and the loser observes ErrAlreadyProcessed.
type ConfirmationEngine struct {
	store     storage.Store
	pool      *inventory.Pool
	allocator *sequence.Allocator
	producer  EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

func NewConfirmationEngine(store storage.Store, pool *inventory.Pool, allocator *sequence.Allocator, producer EventPublisher, log *logger.Logger) *ConfirmationEngine {
	return &ConfirmationEngine{
		store:     store,
		pool:      pool,
		allocator: allocator,
		producer:  producer,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the time source; tests pin it.
func (e *ConfirmationEngine) WithClock(now func() time.Time) *ConfirmationEngine {
	e.now = now
	return e
}

var confirmableStates = []models.PaymentStatus{models.StatusPending, models.StatusProcessing}

// Confirm finalizes a group: materializes deferred items when present,
// transitions group and items to confirmed, commits the inventory hold and
// assigns sequence numbers in item order. Steps 1-4 are one transaction;
// the notification event is emitted afterwards and its failure only logged.
func (e *ConfirmationEngine) Confirm(ctx context.Context, groupID, confirmedBy string) (*ConfirmationResult, error) {
	e.log.LogPayment("CONFIRM", groupID, fmt.Sprintf("Confirmation requested by %s", confirmedBy))

	result := &ConfirmationResult{}

	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		group, err := e.store.GetGroup(txCtx, groupID)
		if err != nil {
			return err
		}

		ok, err := e.store.UpdateGroupStatus(txCtx, groupID, confirmableStates, models.StatusConfirmed, confirmedBy, "", e.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}

		// Gateway path: the deferred work order becomes real items now, and
		// their inventory is taken in the same transaction.
		if len(group.Deferred) > 0 {
			items := buildItems(group, group.Deferred, e.now())
			if err := e.store.SaveItems(txCtx, items); err != nil {
				return err
			}
			if _, err := e.pool.Reserve(txCtx, groupID, items); err != nil {
				return err
			}
			if err := e.store.ClearDeferred(txCtx, groupID); err != nil {
				return err
			}
		}

		if err := e.store.UpdateItemsStatus(txCtx, groupID, models.StatusConfirmed); err != nil {
			return err
		}

		if _, err := e.pool.Commit(txCtx, groupID); err != nil {
			return err
		}

		items, err := e.store.GetItems(txCtx, groupID)
		if err != nil {
			return err
		}

		var unnumbered []*models.Item
		for _, item := range items {
			if item.Number == "" {
				unnumbered = append(unnumbered, item)
			}
		}
		if len(unnumbered) > 0 {
			numbers, err := e.allocator.AllocateNext(txCtx, len(unnumbered))
			if err != nil {
				return err
			}
			for i, item := range unnumbered {
				if err := e.store.AssignNumber(txCtx, item.ItemID, numbers[i]); err != nil {
					return err
				}
				item.Number = numbers[i]
				item.PaymentStatus = models.StatusConfirmed
				result.Numbers = append(result.Numbers, numbers[i])
			}
		}

		group, err = e.store.GetGroup(txCtx, groupID)
		if err != nil {
			return err
		}
		result.Group = group
		result.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.NotificationSent = e.emit(kafka.EventConfirmed, result.Group, result.Items)

	e.log.LogPayment("CONFIRMED", groupID, fmt.Sprintf("Group %s confirmed, %d numbers assigned", result.Group.Code, len(result.Numbers)))
	return result, nil
}

// Reject transitions the group to rejected and releases its active holds.
// Rejecting an already-rejected group is a no-op so duplicate admin actions
// are tolerated; rejecting a confirmed group is ErrAlreadyProcessed.
func (e *ConfirmationEngine) Reject(ctx context.Context, groupID, reason string) (*models.Group, error) {
	return e.reject(ctx, groupID, reason, kafka.EventRejected)
}

// Expire is the sweep's rejection: same transition, published under the
// expired event type.
func (e *ConfirmationEngine) Expire(ctx context.Context, groupID string) (*models.Group, error) {
	return e.reject(ctx, groupID, "reservation window expired", kafka.EventExpired)
}

func (e *ConfirmationEngine) reject(ctx context.Context, groupID, reason, eventType string) (*models.Group, error) {
	var group *models.Group
	alreadyRejected := false

	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		group, err = e.store.GetGroup(txCtx, groupID)
		if err != nil {
			return err
		}

		if group.PaymentStatus == models.StatusRejected {
			alreadyRejected = true
			return nil
		}

		ok, err := e.store.UpdateGroupStatus(txCtx, groupID, confirmableStates, models.StatusRejected, "", reason, e.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}

		if err := e.store.UpdateItemsStatus(txCtx, groupID, models.StatusRejected); err != nil {
			return err
		}

		if _, err := e.pool.Release(txCtx, groupID); err != nil {
			return err
		}

		group, err = e.store.GetGroup(txCtx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if alreadyRejected {
		e.log.LogPayment("REJECT", groupID, "Group already rejected, nothing to do")
		return group, nil
	}

	items, _ := e.store.GetItems(ctx, groupID)
	e.emit(eventType, group, items)

	e.log.LogPayment("REJECTED", groupID, fmt.Sprintf("Group %s rejected: %s", group.Code, reason))
	return group, nil
}

// ResendNotification re-emits the terminal event for a group whose original
// notification failed to send.
func (e *ConfirmationEngine) ResendNotification(ctx context.Context, groupID string) error {
	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}

	var eventType string
	switch group.PaymentStatus {
	case models.StatusConfirmed:
		eventType = kafka.EventConfirmed
	case models.StatusRejected:
		eventType = kafka.EventRejected
	default:
		return validationErr("group %s is not in a terminal state", groupID)
	}

	items, err := e.store.GetItems(ctx, groupID)
	if err != nil {
		return err
	}

	if !e.emit(eventType, group, items) {
		return fmt.Errorf("failed to resend notification for group %s", groupID)
	}
	return nil
}

// DeleteGroup hard-deletes a group by explicit administrative action,
// releasing any still-held inventory and handing already-sold units back to
// capacity. Assigned numbers disappear with the items; the resulting gap in
// the sequence is accepted.
func (e *ConfirmationEngine) DeleteGroup(ctx context.Context, groupID string) error {
	e.log.LogPayment("DELETE", groupID, "Administrative delete requested")

	return e.store.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := e.store.GetGroup(txCtx, groupID); err != nil {
			return err
		}

		if _, err := e.pool.Release(txCtx, groupID); err != nil {
			return err
		}
		if _, err := e.pool.ReleaseSold(txCtx, groupID); err != nil {
			return err
		}
		if err := e.store.DeleteItems(txCtx, groupID); err != nil {
			return err
		}
		return e.store.DeleteGroup(txCtx, groupID)
	})
}

// emit publishes a group event; returns whether it was sent. Never fatal.
func (e *ConfirmationEngine) emit(eventType string, group *models.Group, items []*models.Item) bool {
	event := &models.GroupEvent{
		Type:      eventType,
		GroupID:   group.GroupID,
		Group:     group,
		Items:     items,
		Timestamp: e.now(),
	}

	if err := e.producer.PublishGroupEvent(event); err != nil {
		e.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for group %s: %v", eventType, group.GroupID, err))
		return false
	}
	return true
}
