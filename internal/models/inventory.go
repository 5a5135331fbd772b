package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Category keys the inventory pool. For race registrations this is
// size and gender; a ticket deployment maps zone onto Size.
type Category struct {
	Size   string `json:"size"`
	Gender string `json:"gender"`
}

func (c Category) Key() string {
	return fmt.Sprintf("%s|%s", c.Size, c.Gender)
}

type InventoryUnit struct {
	bun.BaseModel `bun:"table:inventory_units"`

	Size     string `json:"size" bun:"size,pk"`
	Gender   string `json:"gender" bun:"gender,pk"`
	Capacity int    `json:"capacity" bun:"capacity"`
	Reserved int    `json:"reserved" bun:"reserved"`
	Sold     int    `json:"sold" bun:"sold"`
}

func (u *InventoryUnit) Category() Category {
	return Category{Size: u.Size, Gender: u.Gender}
}

// Available is the capacity not currently held or consumed.
// Invariant: Reserved + Sold <= Capacity at all times.
func (u *InventoryUnit) Available() int {
	return u.Capacity - u.Reserved - u.Sold
}

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationReleased ReservationStatus = "released"
	// ReservationCommitted marks a hold consumed by confirmation.
	ReservationCommitted ReservationStatus = "committed"
)

// Reservation links one item to one unit of inventory capacity for a limited
// time. Released on rejection or expiry, committed on confirmation.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ReservationID string            `json:"reservation_id" bun:"reservation_id,pk"`
	GroupID       string            `json:"group_id" bun:"group_id"`
	ItemID        string            `json:"item_id" bun:"item_id"`
	Size          string            `json:"size" bun:"size"`
	Gender        string            `json:"gender" bun:"gender"`
	Status        ReservationStatus `json:"status" bun:"status"`
	CreatedAt     time.Time         `json:"created_at" bun:"created_at"`
}

func (r *Reservation) Category() Category {
	return Category{Size: r.Size, Gender: r.Gender}
}
