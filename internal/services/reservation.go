package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"registration-gateway/internal/config"
	"registration-gateway/internal/gateway"
	"registration-gateway/internal/inventory"
	"registration-gateway/internal/logger"
	"registration-gateway/internal/models"
	"registration-gateway/internal/storage"
	"registration-gateway/internal/utils"
)

var (
	// ErrValidation wraps malformed-input failures; no state was changed.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyProcessed is the idempotency guard: the group already
	// reached a terminal state.
	ErrAlreadyProcessed = errors.New("group already processed")
	// ErrGroupNotFound mirrors the storage sentinel at the service boundary.
	ErrGroupNotFound = storage.ErrGroupNotFound
)

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ReservationManager creates purchase groups and their reservation windows.
type ReservationManager struct {
	store storage.Store
	pool  *inventory.Pool
	cfg   config.ReservationConfig
	log   *logger.Logger
	now   func() time.Time
}

func NewReservationManager(store storage.Store, pool *inventory.Pool, cfg config.ReservationConfig, log *logger.Logger) *ReservationManager {
	return &ReservationManager{
		store: store,
		pool:  pool,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// WithClock overrides the time source; tests pin it.
func (m *ReservationManager) WithClock(now func() time.Time) *ReservationManager {
	m.now = now
	return m
}

var validSizes = map[string]bool{"XS": true, "S": true, "M": true, "L": true, "XL": true, "XXL": true}

func (m *ReservationManager) validate(req *models.CreateGroupRequest) error {
	if n := len(req.Items); n < 1 || n > m.cfg.MaxItems {
		return validationErr("item count must be between 1 and %d, got %d", m.cfg.MaxItems, n)
	}

	for i, item := range req.Items {
		if item.ParticipantName == "" {
			return validationErr("item %d: participant name is required", i+1)
		}
		if !validSizes[item.Size] {
			return validationErr("item %d: unknown size %q", i+1, item.Size)
		}
		if item.Gender != "M" && item.Gender != "F" {
			return validationErr("item %d: gender must be M or F", i+1)
		}
	}

	switch req.PaymentMethod {
	case models.MethodTransfer:
		if _, err := gateway.ValidateBankCode(req.BankCode); err != nil {
			return validationErr("bank selection required for transfers: %v", err)
		}
	case models.MethodP2C:
		if _, err := gateway.ValidateBankCode(req.BankCode); err != nil {
			return validationErr("%v", err)
		}
		if _, err := gateway.NormalizePhone(req.ContactPhone); err != nil {
			return validationErr("%v", err)
		}
		if _, err := gateway.NormalizeNationalID(req.NationalID); err != nil {
			return validationErr("%v", err)
		}
	case models.MethodMobile, models.MethodStore:
	default:
		return validationErr("unknown payment method %q", req.PaymentMethod)
	}

	return nil
}

// CreateGroup validates the request and persists the group atomically with
// its items and reservations. Gateway-paid groups are created with zero
// items: the payload is kept as a deferred work order and materialized only
// on confirmation, so abandoned gateway purchases never consume inventory or
// numbers.
func (m *ReservationManager) CreateGroup(ctx context.Context, req *models.CreateGroupRequest, unitPrice float64) (*models.Group, error) {
	if err := m.validate(req); err != nil {
		return nil, err
	}

	now := m.now()
	window := m.cfg.ManualWindow
	if req.PaymentMethod.Deferred() {
		window = m.cfg.GatewayWindow
	}

	group := &models.Group{
		GroupID:       utils.GenerateUUID(),
		Code:          utils.GenerateGroupCode(),
		ContactName:   req.ContactName,
		ContactEmail:  req.ContactEmail,
		ContactPhone:  req.ContactPhone,
		NationalID:    req.NationalID,
		ItemCount:     len(req.Items),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: models.StatusPending,
		BankCode:      req.BankCode,
		Amount:        unitPrice * float64(len(req.Items)),
		ReservedUntil: now.Add(window),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if req.PaymentMethod.Deferred() {
		for _, item := range req.Items {
			group.Deferred = append(group.Deferred, models.PendingItem{
				ParticipantName: item.ParticipantName,
				Size:            item.Size,
				Gender:          item.Gender,
			})
		}

		if err := m.store.WithTx(ctx, func(txCtx context.Context) error {
			return m.store.SaveGroup(txCtx, group)
		}); err != nil {
			return nil, err
		}

		m.log.LogPayment("CREATE", group.GroupID, fmt.Sprintf("Group %s created with %d deferred items (window %s)", group.Code, group.ItemCount, window))
		return group, nil
	}

	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := m.store.SaveGroup(txCtx, group); err != nil {
			return err
		}

		items := buildItems(group, pendingFromRequest(req.Items), now)
		if err := m.store.SaveItems(txCtx, items); err != nil {
			return err
		}

		_, err := m.pool.Reserve(txCtx, group.GroupID, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.LogPayment("CREATE", group.GroupID, fmt.Sprintf("Group %s created with %d items (window %s)", group.Code, group.ItemCount, window))
	return group, nil
}

// CheckAvailability reports the live counts for one category.
func (m *ReservationManager) CheckAvailability(ctx context.Context, cat models.Category) (*models.InventoryUnit, error) {
	return m.pool.Availability(ctx, cat)
}

// GetGroup loads a group together with its items. A still-pending group past
// its window is reported as rejected without waiting for the sweep.
func (m *ReservationManager) GetGroup(ctx context.Context, groupID string) (*models.Group, []*models.Item, error) {
	group, err := m.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if group.Expired(m.now()) {
		group.PaymentStatus = models.StatusRejected
		group.RejectReason = "reservation window expired"
	}

	items, err := m.store.GetItems(ctx, group.GroupID)
	if err != nil {
		return nil, nil, err
	}
	return group, items, nil
}

func pendingFromRequest(reqs []models.CreateItemRequest) []models.PendingItem {
	out := make([]models.PendingItem, len(reqs))
	for i, r := range reqs {
		out[i] = models.PendingItem{
			ParticipantName: r.ParticipantName,
			Size:            r.Size,
			Gender:          r.Gender,
		}
	}
	return out
}

func buildItems(group *models.Group, pending []models.PendingItem, now time.Time) []*models.Item {
	items := make([]*models.Item, len(pending))
	for i, p := range pending {
		items[i] = &models.Item{
			ItemID:          utils.GenerateUUID(),
			GroupID:         group.GroupID,
			ParticipantName: p.ParticipantName,
			Size:            p.Size,
			Gender:          p.Gender,
			PaymentStatus:   group.PaymentStatus,
			CreatedAt:       now,
		}
	}
	return items
}
