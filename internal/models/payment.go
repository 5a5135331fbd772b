package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TransactionStatus string

const (
	TxPending  TransactionStatus = "pending"
	TxApproved TransactionStatus = "approved"
	TxRejected TransactionStatus = "rejected"
	TxFailed   TransactionStatus = "failed"
)

// PaymentTransaction is the audit row for one payment attempt. A group may
// accumulate several failed or rejected attempts before one is approved.
type PaymentTransaction struct {
	bun.BaseModel `bun:"table:payment_transactions"`

	TransactionID string            `json:"transaction_id" bun:"transaction_id,pk"`
	GroupID       string            `json:"group_id" bun:"group_id"`
	Method        PaymentMethod     `json:"method" bun:"method"`
	Reference     string            `json:"reference,omitempty" bun:"reference"`
	Control       string            `json:"control,omitempty" bun:"control"`
	AuthID        string            `json:"auth_id,omitempty" bun:"auth_id"`
	ResultCode    string            `json:"result_code,omitempty" bun:"result_code"`
	Amount        float64           `json:"amount" bun:"amount"`
	Status        TransactionStatus `json:"status" bun:"status"`
	// Voucher is the gateway's multi-line receipt text, preserved verbatim.
	Voucher   string    `json:"voucher,omitempty" bun:"voucher"`
	CreatedAt time.Time `json:"created_at" bun:"created_at"`
}

// GroupEvent is published on confirmation, rejection and expiry; the external
// notification dispatcher consumes it.
type GroupEvent struct {
	Type      string              `json:"type"`
	GroupID   string              `json:"group_id"`
	Group     *Group              `json:"group"`
	Items     []*Item             `json:"items,omitempty"`
	Payment   *PaymentTransaction `json:"payment,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// ProofEvent arrives when the (external) upload service stores a payment
// proof for a manual-verification group.
type ProofEvent struct {
	GroupCode string    `json:"group_code"`
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
}

type CreateItemRequest struct {
	ParticipantName string `json:"participant_name" binding:"required"`
	Size            string `json:"size" binding:"required"`
	Gender          string `json:"gender" binding:"required"`
}

type CreateGroupRequest struct {
	ContactName   string              `json:"contact_name" binding:"required"`
	ContactEmail  string              `json:"contact_email" binding:"required,email"`
	ContactPhone  string              `json:"contact_phone" binding:"required"`
	NationalID    string              `json:"national_id" binding:"required"`
	PaymentMethod PaymentMethod       `json:"payment_method" binding:"required"`
	BankCode      string              `json:"bank_code"`
	Reference     string              `json:"reference"`
	Items         []CreateItemRequest `json:"items" binding:"required"`
}

type ConfirmRequest struct {
	ConfirmedBy string `json:"confirmed_by" binding:"required"`
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}
