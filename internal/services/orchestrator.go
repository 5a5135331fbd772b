package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"registration-gateway/internal/gateway"
	"registration-gateway/internal/logger"
	"registration-gateway/internal/models"
	"registration-gateway/internal/storage"
	"registration-gateway/internal/utils"
)

var (
	// ErrAttemptInFlight means another gateway attempt holds the group lock.
	ErrAttemptInFlight = errors.New("another gateway attempt is in flight for this group")
	// ErrNothingToReconcile means the group has no ambiguous attempt to settle.
	ErrNothingToReconcile = errors.New("no pending gateway attempt to reconcile")
)

// GatewayClient is the slice of the P2C client the orchestrator drives.
type GatewayClient interface {
	PreRegister(ctx context.Context) (string, error)
	Purchase(ctx context.Context, in gateway.PurchaseInput) (*gateway.PurchaseResult, error)
	QueryStatus(ctx context.Context, control string) (*gateway.PurchaseResult, error)
}

// AttemptLocker serializes gateway attempts per group (redis SetNX).
type AttemptLocker interface {
	AcquireAttempt(ctx context.Context, groupID string, ttl time.Duration) (bool, error)
	ReleaseAttempt(ctx context.Context, groupID string) error
}

// ProcessResult is what a channel strategy produced for the caller.
type ProcessResult struct {
	Group        *models.Group              `json:"group"`
	Transaction  *models.PaymentTransaction `json:"transaction,omitempty"`
	Confirmation *ConfirmationResult        `json:"confirmation,omitempty"`
	// Warning carries non-blocking failures (notification delivery).
	Warning string `json:"warning,omitempty"`
}

// PaymentOrchestrator selects the channel strategy for a purchase and drives
// the reservation, gateway and confirmation components accordingly.
type PaymentOrchestrator struct {
	store        storage.Store
	reservations *ReservationManager
	engine       *ConfirmationEngine
	gateway      GatewayClient
	locks        AttemptLocker
	lockTTL      time.Duration
	log          *logger.Logger
	now          func() time.Time
}

func NewPaymentOrchestrator(store storage.Store, reservations *ReservationManager, engine *ConfirmationEngine, gw GatewayClient, locks AttemptLocker, lockTTL time.Duration, log *logger.Logger) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		store:        store,
		reservations: reservations,
		engine:       engine,
		gateway:      gw,
		locks:        locks,
		lockTTL:      lockTTL,
		log:          log,
		now:          time.Now,
	}
}

// Process creates the group and runs its channel strategy: store purchases
// confirm immediately, manual-proof channels stay pending for verification,
// and the P2C channel goes through the gateway round-trip.
func (o *PaymentOrchestrator) Process(ctx context.Context, req *models.CreateGroupRequest, unitPrice float64) (*ProcessResult, error) {
	group, err := o.reservations.CreateGroup(ctx, req, unitPrice)
	if err != nil {
		return nil, err
	}

	switch req.PaymentMethod {
	case models.MethodStore:
		return o.processStore(ctx, group)
	case models.MethodTransfer, models.MethodMobile:
		return o.processManual(ctx, group, req.Reference)
	case models.MethodP2C:
		return o.processGateway(ctx, group)
	default:
		return nil, validationErr("unknown payment method %q", req.PaymentMethod)
	}
}

func (o *PaymentOrchestrator) processStore(ctx context.Context, group *models.Group) (*ProcessResult, error) {
	tx := o.newTransaction(group, "")
	tx.Status = models.TxApproved
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return nil, err
	}

	conf, err := o.engine.Confirm(ctx, group.GroupID, "store-register")
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{Group: conf.Group, Transaction: tx, Confirmation: conf}
	if !conf.NotificationSent {
		result.Warning = "confirmation notification could not be sent"
	}
	return result, nil
}

func (o *PaymentOrchestrator) processManual(ctx context.Context, group *models.Group, reference string) (*ProcessResult, error) {
	tx := o.newTransaction(group, reference)
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return nil, err
	}

	o.log.LogPayment("AWAIT_PROOF", group.GroupID, fmt.Sprintf("Group %s awaiting payment verification", group.Code))
	return &ProcessResult{Group: group, Transaction: tx}, nil
}

// processGateway runs one full P2C attempt. Inventory is untouched until a
// definitive approval: the group carries only its deferred work order, so a
// slow gateway never starves other purchasers. No store lock is held across
// the network calls.
func (o *PaymentOrchestrator) processGateway(ctx context.Context, group *models.Group) (*ProcessResult, error) {
	ok, err := o.locks.AcquireAttempt(ctx, group.GroupID, o.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire attempt lock: %w", err)
	}
	if !ok {
		return nil, ErrAttemptInFlight
	}

	moved, err := o.store.UpdateGroupStatus(ctx, group.GroupID,
		[]models.PaymentStatus{models.StatusPending}, models.StatusProcessing, "", "", o.now())
	if err != nil {
		o.releaseLock(ctx, group.GroupID)
		return nil, err
	}
	if !moved {
		o.releaseLock(ctx, group.GroupID)
		return nil, ErrAlreadyProcessed
	}

	tx := o.newTransaction(group, "")
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		o.releaseLock(ctx, group.GroupID)
		return nil, err
	}

	control, err := o.gateway.PreRegister(ctx)
	if err != nil {
		// No payment data was sent; the attempt aborts cleanly and the
		// group returns to pending so the buyer can try again.
		tx.Status = models.TxFailed
		o.updateTransaction(ctx, tx)
		o.revertToPending(ctx, group.GroupID)
		o.releaseLock(ctx, group.GroupID)
		return nil, err
	}

	tx.Control = control
	o.updateTransaction(ctx, tx)

	res, err := o.gateway.Purchase(ctx, gateway.PurchaseInput{
		Control:    control,
		Phone:      group.ContactPhone,
		BankCode:   group.BankCode,
		NationalID: group.NationalID,
		Amount:     group.Amount,
		Invoice:    utils.GenerateInvoiceNumber(),
		Reference:  tx.TransactionID,
	})
	if err != nil {
		var decline *gateway.DeclineError
		if errors.As(err, &decline) {
			return nil, o.settleDecline(ctx, group, tx, decline)
		}

		// Unknown outcome: the gateway may have approved the purchase. The
		// transaction keeps its control number and the group stays in
		// processing until a status query settles it. The attempt lock is
		// left to expire with the window so no second purchase can start.
		o.log.Warn("GATEWAY", fmt.Sprintf("Outcome unknown for group %s (control %s): %v", group.GroupID, control, err))
		return nil, err
	}

	return o.settleApproval(ctx, group, tx, res)
}

// Reconcile settles a group stuck in processing after an ambiguous gateway
// outcome, by re-querying the final status under the recorded control.
func (o *PaymentOrchestrator) Reconcile(ctx context.Context, groupID string) (*ProcessResult, error) {
	group, err := o.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.PaymentStatus != models.StatusProcessing || group.PaymentMethod != models.MethodP2C {
		return nil, ErrNothingToReconcile
	}

	tx := o.findOpenAttempt(ctx, groupID)
	if tx == nil {
		return nil, ErrNothingToReconcile
	}

	res, err := o.gateway.QueryStatus(ctx, tx.Control)
	if err != nil {
		var decline *gateway.DeclineError
		if errors.As(err, &decline) {
			return nil, o.settleDecline(ctx, group, tx, decline)
		}
		return nil, err
	}

	return o.settleApproval(ctx, group, tx, res)
}

// HandleProofEvent moves a manual-verification group to processing when the
// external upload service stores its payment proof.
func (o *PaymentOrchestrator) HandleProofEvent(event *models.ProofEvent) error {
	ctx := context.Background()

	group, err := o.store.GetGroupByCode(ctx, event.GroupCode)
	if err != nil {
		return err
	}

	moved, err := o.store.UpdateGroupStatus(ctx, group.GroupID,
		[]models.PaymentStatus{models.StatusPending}, models.StatusProcessing, "", "", o.now())
	if err != nil {
		return err
	}
	if !moved {
		o.log.Warn("PAYMENT", fmt.Sprintf("Proof received for group %s in state %s, ignoring", group.Code, group.PaymentStatus))
		return nil
	}

	o.log.LogPayment("PROOF", group.GroupID, fmt.Sprintf("Proof %s received for group %s", event.Reference, group.Code))
	return nil
}

// ListTransactions exposes the attempt audit trail.
func (o *PaymentOrchestrator) ListTransactions(ctx context.Context, groupID string) ([]*models.PaymentTransaction, error) {
	return o.store.ListTransactions(ctx, groupID)
}

func (o *PaymentOrchestrator) settleApproval(ctx context.Context, group *models.Group, tx *models.PaymentTransaction, res *gateway.PurchaseResult) (*ProcessResult, error) {
	tx.Status = models.TxApproved
	tx.ResultCode = res.Code
	tx.AuthID = res.AuthID
	tx.Voucher = res.Voucher
	o.updateTransaction(ctx, tx)

	conf, err := o.engine.Confirm(ctx, group.GroupID, "p2c-gateway")
	if err != nil {
		// The money moved but confirmation failed (e.g. the category sold
		// out under a deferred materialization). Surface loudly; the group
		// stays in processing for manual resolution.
		o.log.Error("PAYMENT", fmt.Sprintf("Approved payment for group %s could not be confirmed: %v", group.GroupID, err))
		return nil, err
	}

	o.releaseLock(ctx, group.GroupID)

	result := &ProcessResult{Group: conf.Group, Transaction: tx, Confirmation: conf}
	if !conf.NotificationSent {
		result.Warning = "confirmation notification could not be sent"
	}
	return result, nil
}

func (o *PaymentOrchestrator) settleDecline(ctx context.Context, group *models.Group, tx *models.PaymentTransaction, decline *gateway.DeclineError) error {
	tx.Status = models.TxRejected
	tx.ResultCode = decline.Code
	o.updateTransaction(ctx, tx)

	if _, err := o.engine.Reject(ctx, group.GroupID, fmt.Sprintf("gateway decline %s", decline.Code)); err != nil {
		o.log.Error("PAYMENT", fmt.Sprintf("Failed to reject declined group %s: %v", group.GroupID, err))
	}

	o.releaseLock(ctx, group.GroupID)
	return decline
}

func (o *PaymentOrchestrator) findOpenAttempt(ctx context.Context, groupID string) *models.PaymentTransaction {
	txs, err := o.store.ListTransactions(ctx, groupID)
	if err != nil {
		return nil
	}
	for _, tx := range txs {
		if tx.Status == models.TxPending && tx.Control != "" {
			return tx
		}
	}
	return nil
}

func (o *PaymentOrchestrator) newTransaction(group *models.Group, reference string) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		TransactionID: utils.GenerateTransactionID(),
		GroupID:       group.GroupID,
		Method:        group.PaymentMethod,
		Reference:     reference,
		Amount:        group.Amount,
		Status:        models.TxPending,
		CreatedAt:     o.now(),
	}
}

func (o *PaymentOrchestrator) updateTransaction(ctx context.Context, tx *models.PaymentTransaction) {
	if err := o.store.UpdateTransaction(ctx, tx); err != nil {
		o.log.Error("DATABASE", fmt.Sprintf("Failed to update transaction %s: %v", tx.TransactionID, err))
	}
}

func (o *PaymentOrchestrator) revertToPending(ctx context.Context, groupID string) {
	if _, err := o.store.UpdateGroupStatus(ctx, groupID,
		[]models.PaymentStatus{models.StatusProcessing}, models.StatusPending, "", "", o.now()); err != nil {
		o.log.Error("PAYMENT", fmt.Sprintf("Failed to revert group %s to pending: %v", groupID, err))
	}
}

func (o *PaymentOrchestrator) releaseLock(ctx context.Context, groupID string) {
	if err := o.locks.ReleaseAttempt(ctx, groupID); err != nil {
		o.log.Warn("REDIS", fmt.Sprintf("Failed to release attempt lock for group %s: %v", groupID, err))
	}
}
