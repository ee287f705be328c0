package lifecycle

import (
	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

// ReceiveLine is one (item, quantity) pair of a receive batch. Zero
// quantities are allowed and skipped; at least one line must be positive.
type ReceiveLine struct {
	ItemId   int             `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// checkReceiveLines validates the whole batch before anything is applied.
// Any failing line rejects the batch in full.
func checkReceiveLines(po *models.PurchaseOrder, lines []ReceiveLine) error {
	hasPositive := false
	seen := make(map[int]bool, len(lines))
	for _, line := range lines {
		item := po.ItemById(line.ItemId)
		if item == nil {
			return &NotFoundError{Resource: "purchase order item", Id: line.ItemId}
		}
		if seen[line.ItemId] {
			return guardViolation(ActionReceive, "item %d appears more than once in the batch", line.ItemId)
		}
		seen[line.ItemId] = true
		if line.Quantity.IsNegative() {
			return guardViolation(ActionReceive, "received quantity for item %d cannot be negative", line.ItemId)
		}
		if line.Quantity.GreaterThan(item.RemainingQty()) {
			return guardViolation(ActionReceive, "received quantity %s for item %d exceeds remaining %s",
				line.Quantity, line.ItemId, item.RemainingQty())
		}
		if line.Quantity.IsPositive() {
			hasPositive = true
		}
	}
	if !hasPositive {
		return guardViolation(ActionReceive, "at least one item must have a positive quantity")
	}
	return nil
}

// receiveOutcome computes the aggregate status after applying the batch:
// received iff every item would reach its ordered quantity, else partial.
func receiveOutcome(po *models.PurchaseOrder, lines []ReceiveLine) models.PurchaseOrderStatus {
	byItem := make(map[int]decimal.Decimal, len(lines))
	for _, line := range lines {
		byItem[line.ItemId] = line.Quantity
	}
	for _, item := range po.Items {
		after := item.QtyReceived.Add(byItem[item.ID])
		if after.LessThan(item.QtyOrdered) {
			return models.PurchaseOrderStatusPartial
		}
	}
	return models.PurchaseOrderStatusReceived
}
