package storage

import (
	"context"
	"sync"
	"time"

	"registration-gateway/internal/models"
)

// InMemoryStore is a mutex-serialized Store used in tests and local runs.
// WithTx snapshots the whole state and restores it when fn fails, so the
// all-or-nothing guarantees hold exactly like in MySQL.
type InMemoryStore struct {
	mu sync.Mutex

	groups       map[string]*models.Group
	items        map[string]*models.Item
	itemOrder    map[string][]string
	inventory    map[string]*models.InventoryUnit
	reservations map[string]*models.Reservation
	transactions map[string]*models.PaymentTransaction
	txOrder      map[string][]string
	sequence     int64
}

type memTxKey struct{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		groups:       make(map[string]*models.Group),
		items:        make(map[string]*models.Item),
		itemOrder:    make(map[string][]string),
		inventory:    make(map[string]*models.InventoryUnit),
		reservations: make(map[string]*models.Reservation),
		transactions: make(map[string]*models.PaymentTransaction),
		txOrder:      make(map[string][]string),
	}
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(memTxKey{}).(bool)
	return ok
}

func (s *InMemoryStore) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	groups       map[string]*models.Group
	items        map[string]*models.Item
	itemOrder    map[string][]string
	inventory    map[string]*models.InventoryUnit
	reservations map[string]*models.Reservation
	transactions map[string]*models.PaymentTransaction
	txOrder      map[string][]string
	sequence     int64
}

func (s *InMemoryStore) snapshot() snapshot {
	snap := snapshot{
		groups:       make(map[string]*models.Group, len(s.groups)),
		items:        make(map[string]*models.Item, len(s.items)),
		itemOrder:    make(map[string][]string, len(s.itemOrder)),
		inventory:    make(map[string]*models.InventoryUnit, len(s.inventory)),
		reservations: make(map[string]*models.Reservation, len(s.reservations)),
		transactions: make(map[string]*models.PaymentTransaction, len(s.transactions)),
		txOrder:      make(map[string][]string, len(s.txOrder)),
		sequence:     s.sequence,
	}
	for k, v := range s.groups {
		snap.groups[k] = copyGroup(v)
	}
	for k, v := range s.items {
		c := *v
		snap.items[k] = &c
	}
	for k, v := range s.itemOrder {
		snap.itemOrder[k] = append([]string(nil), v...)
	}
	for k, v := range s.inventory {
		c := *v
		snap.inventory[k] = &c
	}
	for k, v := range s.reservations {
		c := *v
		snap.reservations[k] = &c
	}
	for k, v := range s.transactions {
		c := *v
		snap.transactions[k] = &c
	}
	for k, v := range s.txOrder {
		snap.txOrder[k] = append([]string(nil), v...)
	}
	return snap
}

func (s *InMemoryStore) restore(snap snapshot) {
	s.groups = snap.groups
	s.items = snap.items
	s.itemOrder = snap.itemOrder
	s.inventory = snap.inventory
	s.reservations = snap.reservations
	s.transactions = snap.transactions
	s.txOrder = snap.txOrder
	s.sequence = snap.sequence
}

func copyGroup(g *models.Group) *models.Group {
	c := *g
	if g.ConfirmedAt != nil {
		t := *g.ConfirmedAt
		c.ConfirmedAt = &t
	}
	c.Deferred = append([]models.PendingItem(nil), g.Deferred...)
	return &c
}

func (s *InMemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *InMemoryStore) SaveGroup(ctx context.Context, group *models.Group) error {
	defer s.lock(ctx)()
	s.groups[group.GroupID] = copyGroup(group)
	return nil
}

func (s *InMemoryStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	defer s.lock(ctx)()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return copyGroup(group), nil
}

func (s *InMemoryStore) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	defer s.lock(ctx)()
	for _, group := range s.groups {
		if group.Code == code {
			return copyGroup(group), nil
		}
	}
	return nil, ErrGroupNotFound
}

func (s *InMemoryStore) UpdateGroupStatus(ctx context.Context, groupID string, from []models.PaymentStatus, to models.PaymentStatus, by, reason string, at time.Time) (bool, error) {
	defer s.lock(ctx)()
	group, ok := s.groups[groupID]
	if !ok {
		return false, ErrGroupNotFound
	}

	matched := false
	for _, st := range from {
		if group.PaymentStatus == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	group.PaymentStatus = to
	group.UpdatedAt = at
	switch to {
	case models.StatusConfirmed:
		group.ConfirmedBy = by
		t := at
		group.ConfirmedAt = &t
	case models.StatusRejected:
		group.RejectReason = reason
	}
	return true, nil
}

func (s *InMemoryStore) ClearDeferred(ctx context.Context, groupID string) error {
	defer s.lock(ctx)()
	group, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	group.Deferred = nil
	return nil
}

func (s *InMemoryStore) DeleteGroup(ctx context.Context, groupID string) error {
	defer s.lock(ctx)()
	if _, ok := s.groups[groupID]; !ok {
		return ErrGroupNotFound
	}
	delete(s.groups, groupID)
	return nil
}

// AllGroups returns every stored group regardless of status. Not part of the
// Store interface; tests and local tooling use it.
func (s *InMemoryStore) AllGroups(ctx context.Context) []*models.Group {
	defer s.lock(ctx)()
	out := make([]*models.Group, 0, len(s.groups))
	for _, group := range s.groups {
		out = append(out, copyGroup(group))
	}
	return out
}

func (s *InMemoryStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Group, error) {
	defer s.lock(ctx)()
	var groups []*models.Group
	for _, group := range s.groups {
		if group.PaymentStatus == models.StatusPending && group.ReservedUntil.Before(now) {
			groups = append(groups, copyGroup(group))
			if len(groups) == limit {
				break
			}
		}
	}
	return groups, nil
}

func (s *InMemoryStore) SaveItems(ctx context.Context, items []*models.Item) error {
	defer s.lock(ctx)()
	for _, item := range items {
		c := *item
		s.items[item.ItemID] = &c
		s.itemOrder[item.GroupID] = append(s.itemOrder[item.GroupID], item.ItemID)
	}
	return nil
}

func (s *InMemoryStore) GetItems(ctx context.Context, groupID string) ([]*models.Item, error) {
	defer s.lock(ctx)()
	var items []*models.Item
	for _, id := range s.itemOrder[groupID] {
		if item, ok := s.items[id]; ok {
			c := *item
			items = append(items, &c)
		}
	}
	return items, nil
}

func (s *InMemoryStore) UpdateItemsStatus(ctx context.Context, groupID string, status models.PaymentStatus) error {
	defer s.lock(ctx)()
	for _, id := range s.itemOrder[groupID] {
		if item, ok := s.items[id]; ok {
			item.PaymentStatus = status
		}
	}
	return nil
}

func (s *InMemoryStore) AssignNumber(ctx context.Context, itemID, number string) error {
	defer s.lock(ctx)()
	item, ok := s.items[itemID]
	if !ok || item.Number != "" {
		return ErrItemNotFound
	}
	item.Number = number
	return nil
}

func (s *InMemoryStore) DeleteItems(ctx context.Context, groupID string) error {
	defer s.lock(ctx)()
	for _, id := range s.itemOrder[groupID] {
		delete(s.items, id)
	}
	delete(s.itemOrder, groupID)
	return nil
}

func (s *InMemoryStore) SaveInventoryUnit(ctx context.Context, unit *models.InventoryUnit) error {
	defer s.lock(ctx)()
	c := *unit
	s.inventory[unit.Category().Key()] = &c
	return nil
}

func (s *InMemoryStore) GetInventory(ctx context.Context, cat models.Category) (*models.InventoryUnit, error) {
	defer s.lock(ctx)()
	unit, ok := s.inventory[cat.Key()]
	if !ok {
		return nil, ErrInventoryNotFound
	}
	c := *unit
	return &c, nil
}

// GetInventoryForUpdate relies on WithTx holding the store mutex for the
// whole transaction, which serializes category access like a row lock.
func (s *InMemoryStore) GetInventoryForUpdate(ctx context.Context, cat models.Category) (*models.InventoryUnit, error) {
	return s.GetInventory(ctx, cat)
}

func (s *InMemoryStore) UpdateInventoryCounts(ctx context.Context, unit *models.InventoryUnit) error {
	defer s.lock(ctx)()
	existing, ok := s.inventory[unit.Category().Key()]
	if !ok {
		return ErrInventoryNotFound
	}
	existing.Reserved = unit.Reserved
	existing.Sold = unit.Sold
	return nil
}

func (s *InMemoryStore) SaveReservations(ctx context.Context, reservations []*models.Reservation) error {
	defer s.lock(ctx)()
	for _, r := range reservations {
		c := *r
		s.reservations[r.ReservationID] = &c
	}
	return nil
}

func (s *InMemoryStore) GetReservations(ctx context.Context, groupID string, status models.ReservationStatus) ([]*models.Reservation, error) {
	defer s.lock(ctx)()
	var out []*models.Reservation
	for _, r := range s.reservations {
		if r.GroupID == groupID && r.Status == status {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateReservationsStatus(ctx context.Context, ids []string, from, to models.ReservationStatus) (int, error) {
	defer s.lock(ctx)()
	changed := 0
	for _, id := range ids {
		if r, ok := s.reservations[id]; ok && r.Status == from {
			r.Status = to
			changed++
		}
	}
	return changed, nil
}

func (s *InMemoryStore) NextSequence(ctx context.Context, count int) (int64, error) {
	defer s.lock(ctx)()
	first := s.sequence + 1
	s.sequence += int64(count)
	return first, nil
}

func (s *InMemoryStore) SaveTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	defer s.lock(ctx)()
	c := *tx
	s.transactions[tx.TransactionID] = &c
	s.txOrder[tx.GroupID] = append(s.txOrder[tx.GroupID], tx.TransactionID)
	return nil
}

func (s *InMemoryStore) UpdateTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	defer s.lock(ctx)()
	existing, ok := s.transactions[tx.TransactionID]
	if !ok {
		return ErrItemNotFound
	}
	existing.Control = tx.Control
	existing.AuthID = tx.AuthID
	existing.ResultCode = tx.ResultCode
	existing.Status = tx.Status
	existing.Voucher = tx.Voucher
	return nil
}

func (s *InMemoryStore) ListTransactions(ctx context.Context, groupID string) ([]*models.PaymentTransaction, error) {
	defer s.lock(ctx)()
	order := s.txOrder[groupID]
	out := make([]*models.PaymentTransaction, 0, len(order))
	// Newest first, matching the SQL ordering.
	for i := len(order) - 1; i >= 0; i-- {
		if tx, ok := s.transactions[order[i]]; ok {
			c := *tx
			out = append(out, &c)
		}
	}
	return out, nil
}
