package workflow

import (
	"fmt"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/purchasing_backend/lifecycle"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

// ApplyPurchaseOrderReceiveStock applies the inventory side effects of an
// accepted receive batch: one append-only ledger entry per positive line plus
// the matching qty_received increment. The batch has already passed
// checkReceiveLines in full, so every line either applies or the enclosing
// transaction rolls back; no item is ever partially updated.
func ApplyPurchaseOrderReceiveStock(tx *gorm.DB, po *models.PurchaseOrder, lines []lifecycle.ReceiveLine, receiptRef string, actorUserId int, actorName string) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	if po == nil {
		return fmt.Errorf("purchase order is nil")
	}

	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			continue
		}
		item := po.ItemById(line.ItemId)
		if item == nil {
			return fmt.Errorf("purchase order item %d not found on order %d", line.ItemId, po.ID)
		}

		if _, err := models.AppendPurchaseReceiveEntry(tx, po, item, line.Quantity, receiptRef, actorUserId, actorName); err != nil {
			return err
		}
		item.QtyReceived = item.QtyReceived.Add(line.Quantity)
	}
	return nil
}
