package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-gateway/internal/config"
	"registration-gateway/internal/gateway"
	"registration-gateway/internal/inventory"
	"registration-gateway/internal/logger"
	"registration-gateway/internal/models"
	"registration-gateway/internal/sequence"
	"registration-gateway/internal/services"
	"registration-gateway/internal/storage"
)

type stubGateway struct {
	purchaseErr error
}

func (g *stubGateway) PreRegister(ctx context.Context) (string, error) {
	return "999888777666", nil
}

func (g *stubGateway) Purchase(ctx context.Context, in gateway.PurchaseInput) (*gateway.PurchaseResult, error) {
	if g.purchaseErr != nil {
		return nil, g.purchaseErr
	}
	return &gateway.PurchaseResult{Control: in.Control, Code: "00", Approved: true, AuthID: "1"}, nil
}

func (g *stubGateway) QueryStatus(ctx context.Context, control string) (*gateway.PurchaseResult, error) {
	return &gateway.PurchaseResult{Control: control, Code: "00", Approved: true}, nil
}

type stubLocker struct{}

func (stubLocker) AcquireAttempt(ctx context.Context, groupID string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (stubLocker) ReleaseAttempt(ctx context.Context, groupID string) error { return nil }

type stubProducer struct{}

func (stubProducer) PublishGroupEvent(event *models.GroupEvent) error { return nil }

func newTestRouter(t *testing.T, gw *stubGateway) (*gin.Engine, *storage.InMemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewLogger()
	store := storage.NewInMemoryStore()
	require.NoError(t, store.SaveInventoryUnit(context.Background(), &models.InventoryUnit{
		Size: "M", Gender: "M", Capacity: 10,
	}))

	cfg := config.ReservationConfig{
		GatewayWindow: 30 * time.Minute,
		ManualWindow:  72 * time.Hour,
		MaxItems:      5,
		UnitPrice:     25.00,
	}

	pool := inventory.NewPool(store, log)
	allocator := sequence.NewAllocator(store, log)
	manager := services.NewReservationManager(store, pool, cfg, log)
	engine := services.NewConfirmationEngine(store, pool, allocator, stubProducer{}, log)
	orchestrator := services.NewPaymentOrchestrator(store, manager, engine, gw, stubLocker{}, cfg.GatewayWindow, log)

	handler := NewGroupHandler(orchestrator, engine, manager, cfg.UnitPrice)

	router := gin.New()
	groups := router.Group("/api/v1/groups")
	{
		groups.POST("", handler.CreateGroup)
		groups.GET("/:id", handler.GetGroup)
		groups.POST("/:id/confirm", handler.ConfirmGroup)
		groups.POST("/:id/reject", handler.RejectGroup)
	}
	router.GET("/api/v1/availability", handler.CheckAvailability)

	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createPayload(method models.PaymentMethod, count int) gin.H {
	items := make([]gin.H, count)
	for i := range items {
		items[i] = gin.H{"participant_name": fmt.Sprintf("Runner %d", i+1), "size": "M", "gender": "M"}
	}
	return gin.H{
		"contact_name":   "Maria Perez",
		"contact_email":  "maria@example.com",
		"contact_phone":  "04141234567",
		"national_id":    "V12345678",
		"payment_method": method,
		"bank_code":      "0134",
		"items":          items,
	}
}

func TestCreateGroupEndpoint_StoreChannel(t *testing.T) {
	router, _ := newTestRouter(t, &stubGateway{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/groups", createPayload(models.MethodStore, 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Group struct {
				PaymentStatus string `json:"payment_status"`
			} `json:"group"`
			Confirmation struct {
				Numbers []string `json:"numbers"`
			} `json:"confirmation"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "confirmed", envelope.Data.Group.PaymentStatus)
	assert.Len(t, envelope.Data.Confirmation.Numbers, 2)
}

func TestCreateGroupEndpoint_ValidationError(t *testing.T) {
	router, _ := newTestRouter(t, &stubGateway{})

	payload := createPayload(models.MethodTransfer, 1)
	payload["items"].([]gin.H)[0]["size"] = "XXXL"

	w := doJSON(t, router, http.MethodPost, "/api/v1/groups", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGroupEndpoint_InsufficientInventory(t *testing.T) {
	router, _ := newTestRouter(t, &stubGateway{})

	// Capacity is 10; two groups of 5 fill it, the third conflicts.
	for i := 0; i < 2; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/v1/groups", createPayload(models.MethodTransfer, 5))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/groups", createPayload(models.MethodTransfer, 1))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateGroupEndpoint_GatewayDecline(t *testing.T) {
	router, _ := newTestRouter(t, &stubGateway{
		purchaseErr: &gateway.DeclineError{Code: "05", Message: "fondos insuficientes"},
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/groups", createPayload(models.MethodP2C, 1))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestGetGroupEndpoint_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, &stubGateway{})

	w := doJSON(t, router, http.MethodGet, "/api/v1/groups/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmEndpoint_DoubleConfirmConflicts(t *testing.T) {
	router, store := newTestRouter(t, &stubGateway{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/groups", createPayload(models.MethodTransfer, 1))
	require.Equal(t, http.StatusCreated, w.Code)

	groups := store.AllGroups(context.Background())
	require.Len(t, groups, 1)
	path := "/api/v1/groups/" + groups[0].GroupID + "/confirm"

	w = doJSON(t, router, http.MethodPost, path, gin.H{"confirmed_by": "admin"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, path, gin.H{"confirmed_by": "admin"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubGateway{})

	w := doJSON(t, router, http.MethodGet, "/api/v1/availability?size=M&gender=M&qty=3", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Available int  `json:"available"`
			CanCover  bool `json:"can_cover"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 10, envelope.Data.Available)
	assert.True(t, envelope.Data.CanCover)

	w = doJSON(t, router, http.MethodGet, "/api/v1/availability?size=M", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/availability?size=XL&gender=F", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
