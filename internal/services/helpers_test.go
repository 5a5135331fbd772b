package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"registration-gateway/internal/config"
	"registration-gateway/internal/gateway"
	"registration-gateway/internal/inventory"
	"registration-gateway/internal/logger"
	"registration-gateway/internal/models"
	"registration-gateway/internal/sequence"
	"registration-gateway/internal/storage"
)

var testStart = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

// fakeClock is a settable time source shared by every component under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeProducer records published events and can be told to fail.
type fakeProducer struct {
	mu     sync.Mutex
	events []*models.GroupEvent
	fail   bool
}

func (p *fakeProducer) PublishGroupEvent(event *models.GroupEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unreachable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakeProducer) published(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// fakeGateway scripts the three protocol steps.
type fakeGateway struct {
	mu            sync.Mutex
	control       string
	preErr        error
	purchaseRes   *gateway.PurchaseResult
	purchaseErr   error
	queryRes      *gateway.PurchaseResult
	queryErr      error
	purchaseCalls int
	queryCalls    int
}

func (g *fakeGateway) PreRegister(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.preErr != nil {
		return "", g.preErr
	}
	return g.control, nil
}

func (g *fakeGateway) Purchase(ctx context.Context, in gateway.PurchaseInput) (*gateway.PurchaseResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.purchaseCalls++
	if g.purchaseErr != nil {
		return nil, g.purchaseErr
	}
	return g.purchaseRes, nil
}

func (g *fakeGateway) QueryStatus(ctx context.Context, control string) (*gateway.PurchaseResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queryCalls++
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	return g.queryRes, nil
}

// fakeLocker is an in-memory stand-in for the redis SetNX lock.
type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]bool
	denyAll bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) AcquireAttempt(ctx context.Context, groupID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denyAll || l.held[groupID] {
		return false, nil
	}
	l.held[groupID] = true
	return true, nil
}

func (l *fakeLocker) ReleaseAttempt(ctx context.Context, groupID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, groupID)
	return nil
}

func (l *fakeLocker) holds(groupID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[groupID]
}

type testEnv struct {
	store        *storage.InMemoryStore
	pool         *inventory.Pool
	clock        *fakeClock
	producer     *fakeProducer
	gateway      *fakeGateway
	locker       *fakeLocker
	manager      *ReservationManager
	engine       *ConfirmationEngine
	orchestrator *PaymentOrchestrator
	sweeper      *Sweeper
	cfg          config.ReservationConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.NewLogger()
	store := storage.NewInMemoryStore()
	clock := &fakeClock{t: testStart}
	producer := &fakeProducer{}
	gw := &fakeGateway{control: "999888777666"}
	locker := newFakeLocker()

	cfg := config.ReservationConfig{
		GatewayWindow: 30 * time.Minute,
		ManualWindow:  72 * time.Hour,
		SweepInterval: time.Minute,
		MaxItems:      5,
		UnitPrice:     25.00,
	}

	pool := inventory.NewPool(store, log)
	allocator := sequence.NewAllocator(store, log)

	manager := NewReservationManager(store, pool, cfg, log).WithClock(clock.Now)
	engine := NewConfirmationEngine(store, pool, allocator, producer, log).WithClock(clock.Now)
	orchestrator := NewPaymentOrchestrator(store, manager, engine, gw, locker, cfg.GatewayWindow, log)
	sweeper := NewSweeper(store, engine, cfg.SweepInterval, log).WithClock(clock.Now)

	return &testEnv{
		store:        store,
		pool:         pool,
		clock:        clock,
		producer:     producer,
		gateway:      gw,
		locker:       locker,
		manager:      manager,
		engine:       engine,
		orchestrator: orchestrator,
		sweeper:      sweeper,
		cfg:          cfg,
	}
}

func (env *testEnv) seedInventory(t *testing.T, size, gender string, capacity int) {
	t.Helper()
	require.NoError(t, env.store.SaveInventoryUnit(context.Background(), &models.InventoryUnit{
		Size: size, Gender: gender, Capacity: capacity,
	}))
}

func (env *testEnv) availability(t *testing.T, size, gender string) *models.InventoryUnit {
	t.Helper()
	unit, err := env.pool.Availability(context.Background(), models.Category{Size: size, Gender: gender})
	require.NoError(t, err)
	return unit
}

func groupRequest(method models.PaymentMethod, count int) *models.CreateGroupRequest {
	req := &models.CreateGroupRequest{
		ContactName:   "Maria Perez",
		ContactEmail:  "maria@example.com",
		ContactPhone:  "04141234567",
		NationalID:    "V12345678",
		PaymentMethod: method,
		BankCode:      "0134",
	}
	for i := 0; i < count; i++ {
		req.Items = append(req.Items, models.CreateItemRequest{
			ParticipantName: fmt.Sprintf("Runner %d", i+1),
			Size:            "M",
			Gender:          "M",
		})
	}
	return req
}
