package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusConfirmed  PaymentStatus = "confirmed"
	StatusRejected   PaymentStatus = "rejected"
)

// Terminal reports whether a status can never change again.
func (s PaymentStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

type PaymentMethod string

const (
	// MethodTransfer is a national bank transfer verified from an uploaded proof.
	MethodTransfer PaymentMethod = "transfer"
	// MethodMobile is a person-to-person mobile payment verified from proof.
	MethodMobile PaymentMethod = "mobile"
	// MethodStore is paid in cash at a partner store and confirmed on the spot.
	MethodStore PaymentMethod = "store"
	// MethodP2C goes through the external card/mobile gateway protocol.
	MethodP2C PaymentMethod = "p2c"
)

// Deferred reports whether items for this method are materialized only once
// the gateway confirms, instead of being created with the group.
func (m PaymentMethod) Deferred() bool {
	return m == MethodP2C
}

// PendingItem is one entry of a group's deferred work order: the item payload
// held back until the gateway round-trip completes, so no inventory or
// sequence number is consumed by purchases that never finish paying.
type PendingItem struct {
	ParticipantName string `json:"participant_name"`
	Size            string `json:"size"`
	Gender          string `json:"gender"`
}

type Group struct {
	bun.BaseModel `bun:"table:registration_groups"`

	GroupID       string        `json:"group_id" bun:"group_id,pk"`
	Code          string        `json:"code" bun:"code"`
	ContactName   string        `json:"contact_name" bun:"contact_name"`
	ContactEmail  string        `json:"contact_email" bun:"contact_email"`
	ContactPhone  string        `json:"contact_phone" bun:"contact_phone"`
	NationalID    string        `json:"national_id" bun:"national_id"`
	ItemCount     int           `json:"item_count" bun:"item_count"`
	PaymentMethod PaymentMethod `json:"payment_method" bun:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status" bun:"payment_status"`
	BankCode      string        `json:"bank_code,omitempty" bun:"bank_code"`
	Amount        float64       `json:"amount" bun:"amount"`
	ReservedUntil time.Time     `json:"reserved_until" bun:"reserved_until"`
	ConfirmedBy   string        `json:"confirmed_by,omitempty" bun:"confirmed_by"`
	ConfirmedAt   *time.Time    `json:"confirmed_at,omitempty" bun:"confirmed_at"`
	RejectReason  string        `json:"reject_reason,omitempty" bun:"reject_reason"`
	Deferred      []PendingItem `json:"deferred_items,omitempty" bun:"deferred_items,type:json"`
	CreatedAt     time.Time     `json:"created_at" bun:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" bun:"updated_at"`
}

// Expired reports whether a still-pending group's reservation window has
// elapsed. Readers treat such a group as rejected even before the sweep runs.
func (g *Group) Expired(now time.Time) bool {
	return g.PaymentStatus == StatusPending && now.After(g.ReservedUntil)
}

type Item struct {
	bun.BaseModel `bun:"table:registration_items"`

	ItemID          string        `json:"item_id" bun:"item_id,pk"`
	GroupID         string        `json:"group_id" bun:"group_id"`
	ParticipantName string        `json:"participant_name" bun:"participant_name"`
	Size            string        `json:"size" bun:"size"`
	Gender          string        `json:"gender" bun:"gender"`
	PaymentStatus   PaymentStatus `json:"payment_status" bun:"payment_status"`
	Number          string        `json:"number,omitempty" bun:"number"`
	CreatedAt       time.Time     `json:"created_at" bun:"created_at"`
}

// Category returns the inventory category this item draws from.
func (i *Item) Category() Category {
	return Category{Size: i.Size, Gender: i.Gender}
}
