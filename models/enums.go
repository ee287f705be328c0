package models

import "fmt"

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft           PurchaseOrderStatus = "draft"
	PurchaseOrderStatusPendingApproval PurchaseOrderStatus = "pending_approval"
	PurchaseOrderStatusApproved        PurchaseOrderStatus = "approved"
	PurchaseOrderStatusSent            PurchaseOrderStatus = "sent"
	PurchaseOrderStatusPartial         PurchaseOrderStatus = "partial"
	PurchaseOrderStatusReceived        PurchaseOrderStatus = "received"
	PurchaseOrderStatusFiled           PurchaseOrderStatus = "filed"
	PurchaseOrderStatusOnHold          PurchaseOrderStatus = "on_hold"
	PurchaseOrderStatusCancelled       PurchaseOrderStatus = "cancelled"
)

func (s PurchaseOrderStatus) String() string { return string(s) }

func (s PurchaseOrderStatus) IsValid() bool {
	switch s {
	case PurchaseOrderStatusDraft, PurchaseOrderStatusPendingApproval, PurchaseOrderStatusApproved,
		PurchaseOrderStatusSent, PurchaseOrderStatusPartial, PurchaseOrderStatusReceived,
		PurchaseOrderStatusFiled, PurchaseOrderStatusOnHold, PurchaseOrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is defined from s.
func (s PurchaseOrderStatus) IsTerminal() bool {
	return s == PurchaseOrderStatusCancelled || s == PurchaseOrderStatusFiled
}

// Receivable reports whether goods may still arrive against the order.
func (s PurchaseOrderStatus) Receivable() bool {
	return s == PurchaseOrderStatusSent || s == PurchaseOrderStatusPartial
}

func ParsePurchaseOrderStatus(v string) (PurchaseOrderStatus, error) {
	s := PurchaseOrderStatus(v)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid purchase order status %q", v)
	}
	return s, nil
}

type SendChannel string

const (
	SendChannelEmail SendChannel = "email"
	SendChannelViber SendChannel = "viber"
	SendChannelSms   SendChannel = "sms"
	SendChannelOther SendChannel = "other"
)

func (c SendChannel) IsValid() bool {
	switch c {
	case SendChannelEmail, SendChannelViber, SendChannelSms, SendChannelOther:
		return true
	default:
		return false
	}
}

type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "delivery"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

func (m DeliveryMethod) IsValid() bool {
	return m == DeliveryMethodDelivery || m == DeliveryMethodPickup
}

// LedgerSourcePurchaseReceive tags ledger entries appended by goods receipt.
const LedgerSourcePurchaseReceive = "purchase_receive"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
