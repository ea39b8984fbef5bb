package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies one of the outbound notification types.
type NotificationKind string

const (
	KindProductCreated       NotificationKind = "product_created"
	KindOwnershipTransferred NotificationKind = "ownership_transferred"
	KindHistoryAdded         NotificationKind = "history_added"
	KindProductRecalled      NotificationKind = "product_recalled"
)

// Notification is emitted after a committed lifecycle operation. Only the
// fields relevant to Kind are populated.
type Notification struct {
	ID           uuid.UUID        `json:"id"`
	Kind         NotificationKind `json:"kind"`
	ProductID    uint64           `json:"product_id"`
	HistoryIndex uint64           `json:"history_index"`
	OccurredAt   time.Time        `json:"occurred_at"`

	SKU          string `json:"sku,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	Actor        string `json:"actor,omitempty"`
	RoleLabel    string `json:"role,omitempty"`
	Location     string `json:"location,omitempty"`
	Note         string `json:"note,omitempty"`
	Status       Status `json:"status,omitempty"`
	By           string `json:"by,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// DedupeKey identifies a notification across redeliveries.
func (n Notification) DedupeKey() string {
	return fmt.Sprintf("%d:%d:%s", n.ProductID, n.HistoryIndex, n.Kind)
}

func newNotification(kind NotificationKind, item HistoryItem, productID uint64) Notification {
	return Notification{
		ID:           uuid.New(),
		Kind:         kind,
		ProductID:    productID,
		HistoryIndex: item.Index,
		OccurredAt:   item.Timestamp,
	}
}

// ProductCreated announces a new product.
func ProductCreated(p Product, item HistoryItem) Notification {
	n := newNotification(KindProductCreated, item, p.ID)
	n.SKU = p.SKU
	n.Manufacturer = p.Owner
	return n
}

// OwnershipTransferred announces a custody change.
func OwnershipTransferred(productID uint64, from, to string, status Status, item HistoryItem) Notification {
	n := newNotification(KindOwnershipTransferred, item, productID)
	n.From = from
	n.To = to
	n.Status = status
	return n
}

// HistoryAdded mirrors a committed history entry.
func HistoryAdded(productID uint64, item HistoryItem) Notification {
	n := newNotification(KindHistoryAdded, item, productID)
	n.Actor = item.Actor
	n.RoleLabel = item.RoleLabel
	n.Location = item.Location
	n.Note = item.Note
	n.Status = item.Status
	return n
}

// ProductRecalled announces a recall.
func ProductRecalled(productID uint64, by, reason string, item HistoryItem) Notification {
	n := newNotification(KindProductRecalled, item, productID)
	n.By = by
	n.Reason = reason
	return n
}
