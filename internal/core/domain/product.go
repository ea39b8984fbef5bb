package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle stage of a product.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusManufactured Status = "manufactured"
	StatusInTransit    Status = "in_transit"
	StatusInWarehouse  Status = "in_warehouse"
	StatusDelivered    Status = "delivered"
	StatusRecalled     Status = "recalled"
)

// Any authorized caller may move a product to any settable status; there is no
// transition table.
var settableStatuses = map[Status]struct{}{
	StatusManufactured: {},
	StatusInTransit:    {},
	StatusInWarehouse:  {},
	StatusDelivered:    {},
	StatusRecalled:     {},
}

// Settable reports whether s may be written by an operation. Unknown is a sentinel.
func (s Status) Settable() bool {
	_, ok := settableStatuses[s]
	return ok
}

// ParseStatus converts a wire value into a settable Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Settable() {
		return "", fmt.Errorf("%w: status %q", ErrInvalidArgument, s)
	}
	return st, nil
}

// AllStatuses lists every settable status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusManufactured, StatusInTransit, StatusInWarehouse, StatusDelivered, StatusRecalled}
}

// Product is the tracked unit of goods. ID 0 never identifies a product and
// HistoryLen counts the committed history entries.
type Product struct {
	ID          uint64    `json:"id" bson:"_id"`
	SKU         string    `json:"sku" bson:"sku"`
	Description string    `json:"description" bson:"description"`
	Owner       string    `json:"owner" bson:"owner"`
	Status      Status    `json:"status" bson:"status"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	HistoryLen  uint64    `json:"history_count" bson:"history_len"`
}

// HistoryItem is one immutable audit entry. Index is the 0-based insertion position.
type HistoryItem struct {
	Index     uint64    `json:"index" bson:"idx"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Actor     string    `json:"actor" bson:"actor"`
	RoleLabel string    `json:"role" bson:"role_label"`
	Location  string    `json:"location" bson:"location"`
	Note      string    `json:"note" bson:"note"`
	Status    Status    `json:"status" bson:"status"`
}
