package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryLedgerEntry is the append-only record of an inventory quantity
// change. Entries are never updated or deleted; corrections append a new
// entry. QtyAfter must always equal QtyBefore + QtyDelta.
type InventoryLedgerEntry struct {
	ID                  string          `gorm:"size:36;primary_key" json:"id"` // uuid
	BusinessId          string          `gorm:"index:idx_ledger_biz_item,priority:1;not null" json:"business_id"`
	ProductId           int             `gorm:"index:idx_ledger_biz_item,priority:2;not null" json:"product_id"`
	QtyDelta            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_delta"`
	QtyBefore           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_before"`
	QtyAfter            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_after"`
	Source              string          `gorm:"size:30;not null" json:"source"`
	PurchaseOrderId     int             `gorm:"index;not null" json:"purchase_order_id"`
	PurchaseOrderItemId int             `gorm:"index" json:"purchase_order_item_id"`
	ReceiptReference    string          `gorm:"size:64;index" json:"receipt_reference"`
	ActorUserId         int             `json:"actor_user_id"`
	ActorName           string          `gorm:"size:100" json:"actor_name"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// StockSummary caches per-product on-hand quantity. The ledger is the truth;
// the summary is updated in the same transaction as every ledger append.
type StockSummary struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index:uniq_stock,unique;not null" json:"business_id"`
	ProductId   int             `gorm:"index:uniq_stock,unique;not null" json:"product_id"`
	OnHandQty   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"on_hand_qty"`
	ReceivedQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func fetchStockSummaryForChange(tx *gorm.DB, businessId string, productId int) (*StockSummary, error) {
	var summary StockSummary
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND product_id = ?", businessId, productId).
		First(&summary).Error
	if err == gorm.ErrRecordNotFound {
		summary = StockSummary{
			BusinessId: businessId,
			ProductId:  productId,
		}
		if err := tx.Create(&summary).Error; err != nil {
			return nil, err
		}
		return &summary, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// AppendPurchaseReceiveEntry appends one ledger entry for received goods and
// advances the stock summary in the same transaction. Returns the entry as
// written.
func AppendPurchaseReceiveEntry(tx *gorm.DB, po *PurchaseOrder, item *PurchaseOrderItem, qty decimal.Decimal, receiptRef string, actorUserId int, actorName string) (*InventoryLedgerEntry, error) {
	if !qty.IsPositive() {
		return nil, errors.New("ledger delta for a receive must be positive")
	}

	summary, err := fetchStockSummaryForChange(tx, po.BusinessId, item.ProductId)
	if err != nil {
		return nil, err
	}

	before := summary.OnHandQty
	after := before.Add(qty)

	entry := InventoryLedgerEntry{
		ID:                  uuid.NewString(),
		BusinessId:          po.BusinessId,
		ProductId:           item.ProductId,
		QtyDelta:            qty,
		QtyBefore:           before,
		QtyAfter:            after,
		Source:              LedgerSourcePurchaseReceive,
		PurchaseOrderId:     po.ID,
		PurchaseOrderItemId: item.ID,
		ReceiptReference:    receiptRef,
		ActorUserId:         actorUserId,
		ActorName:           actorName,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&StockSummary{}).
		Where("id = ?", summary.ID).
		Updates(map[string]interface{}{
			"on_hand_qty":  after,
			"received_qty": summary.ReceivedQty.Add(qty),
		}).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// LedgerEntriesForOrder lists the receive trail for one order, oldest first.
func LedgerEntriesForOrder(tx *gorm.DB, businessId string, purchaseOrderId int) ([]InventoryLedgerEntry, error) {
	var entries []InventoryLedgerEntry
	err := tx.
		Where("business_id = ? AND purchase_order_id = ?", businessId, purchaseOrderId).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}
