package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PurchaseOrder struct {
	ID                   int                  `gorm:"primary_key" json:"id"`
	BusinessId           string               `gorm:"index;not null" json:"business_id"`
	SupplierId           int                  `gorm:"index;not null" json:"supplier_id" binding:"required"`
	OrderNumber          string               `gorm:"size:255;not null" json:"order_number"`
	SequenceNo           int64                `gorm:"not null" json:"sequence_no"`
	CurrentStatus        PurchaseOrderStatus  `gorm:"size:20;index;not null" json:"current_status"`
	DeliveryMethod       DeliveryMethod       `gorm:"size:20;not null" json:"delivery_method"`
	OrderDate            time.Time            `gorm:"not null" json:"order_date"`
	ExpectedDeliveryDate *time.Time           `gorm:"default:null" json:"expected_delivery_date"`
	ReceivedDate         *time.Time           `gorm:"default:null" json:"received_date"`
	SentAt               *time.Time           `gorm:"default:null" json:"sent_at"`
	SendChannel          *SendChannel         `gorm:"size:20;default:null" json:"send_channel"`
	ApproverUserId       int                  `gorm:"default:null" json:"approver_user_id"`
	ApproverName         string               `gorm:"size:255;default:null" json:"approver_name"`
	ApprovedAt           *time.Time           `gorm:"default:null" json:"approved_at"`
	ApprovalNotes        string               `gorm:"type:text;default:null" json:"approval_notes"`
	HoldReason           string               `gorm:"type:text;default:null" json:"hold_reason"`
	StatusBeforeHold     *PurchaseOrderStatus `gorm:"size:20;default:null" json:"status_before_hold"`
	CancellationReason   string               `gorm:"type:text;default:null" json:"cancellation_reason"`
	TaxRate              decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"tax_rate"`
	OrderSubtotal        decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"order_subtotal"`
	OrderTaxAmount       decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"order_tax_amount"`
	OrderTotalAmount     decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"order_total_amount"`
	Items                []PurchaseOrderItem  `json:"items"`
	CreatedAt            time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ProductId       int             `gorm:"index;not null" json:"product_id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	Sku             string          `gorm:"size:100" json:"sku"`
	Unit            string          `gorm:"size:50" json:"unit"`
	QtyOrdered      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_ordered"`
	QtyReceived     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_received"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	LineTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
}

// RemainingQty is how much can still be received against the line.
func (item PurchaseOrderItem) RemainingQty() decimal.Decimal {
	return item.QtyOrdered.Sub(item.QtyReceived)
}

func (item PurchaseOrderItem) FullyReceived() bool {
	return item.QtyReceived.GreaterThanOrEqual(item.QtyOrdered)
}

// FullyReceived reports whether every line reached its ordered quantity.
// Orders without lines are never considered received.
func (po PurchaseOrder) FullyReceived() bool {
	if len(po.Items) == 0 {
		return false
	}
	for _, item := range po.Items {
		if !item.FullyReceived() {
			return false
		}
	}
	return true
}

// ItemById returns the owned line with the given id, or nil.
func (po *PurchaseOrder) ItemById(itemId int) *PurchaseOrderItem {
	for i := range po.Items {
		if po.Items[i].ID == itemId {
			return &po.Items[i]
		}
	}
	return nil
}

// ComputeTotals recomputes line totals and order monetary totals from the
// owned items. Only meaningful while the order is still draft; quantities
// and costs are frozen on submit.
func (po *PurchaseOrder) ComputeTotals() {
	var subtotal decimal.Decimal
	for i := range po.Items {
		po.Items[i].LineTotal = po.Items[i].QtyOrdered.Mul(po.Items[i].UnitCost)
		subtotal = subtotal.Add(po.Items[i].LineTotal)
	}
	po.OrderSubtotal = subtotal
	po.OrderTaxAmount = subtotal.Mul(po.TaxRate).Div(decimal.NewFromInt(100))
	po.OrderTotalAmount = subtotal.Add(po.OrderTaxAmount)
}

type NewPurchaseOrder struct {
	SupplierId           int                    `json:"supplier_id" binding:"required"`
	DeliveryMethod       DeliveryMethod         `json:"delivery_method" binding:"required"`
	OrderDate            time.Time              `json:"order_date" binding:"required"`
	ExpectedDeliveryDate *time.Time             `json:"expected_delivery_date"`
	TaxRate              decimal.Decimal        `json:"tax_rate"`
	Items                []NewPurchaseOrderItem `json:"items" binding:"dive"`
}

type NewPurchaseOrderItem struct {
	ProductId  int             `json:"product_id" binding:"required"`
	Name       string          `json:"name" binding:"required"`
	Sku        string          `json:"sku"`
	Unit       string          `json:"unit"`
	QtyOrdered decimal.Decimal `json:"qty_ordered" binding:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

func (input NewPurchaseOrder) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.DeliveryMethod.IsValid() {
		return errors.New("invalid delivery method")
	}
	if input.TaxRate.IsNegative() {
		return errors.New("tax rate cannot be negative")
	}
	for _, item := range input.Items {
		if !item.QtyOrdered.IsPositive() {
			return fmt.Errorf("ordered quantity must be positive for product %d", item.ProductId)
		}
		if item.UnitCost.IsNegative() {
			return fmt.Errorf("unit cost cannot be negative for product %d", item.ProductId)
		}
	}
	return nil
}

// CreatePurchaseOrder stores a new order in draft. Orders are always created
// as draft; moving further is a transition with its own guards.
func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	items := make([]PurchaseOrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, PurchaseOrderItem{
			ProductId:  item.ProductId,
			Name:       item.Name,
			Sku:        item.Sku,
			Unit:       item.Unit,
			QtyOrdered: item.QtyOrdered,
			UnitCost:   item.UnitCost,
		})
	}

	purchaseOrder := PurchaseOrder{
		BusinessId:           businessId,
		SupplierId:           input.SupplierId,
		CurrentStatus:        PurchaseOrderStatusDraft,
		DeliveryMethod:       input.DeliveryMethod,
		OrderDate:            input.OrderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		TaxRate:              input.TaxRate,
		Items:                items,
	}
	purchaseOrder.ComputeTotals()

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	seqNo, err := NextTransactionNumber(tx.WithContext(ctx), businessId, "purchase_order")
	if err != nil {
		return nil, err
	}
	purchaseOrder.SequenceNo = seqNo
	purchaseOrder.OrderNumber = fmt.Sprintf("PO-%d", seqNo)

	if err := tx.WithContext(ctx).Create(&purchaseOrder).Error; err != nil {
		return nil, err
	}
	if err := CreateHistory(tx.WithContext(ctx), "Create", purchaseOrder.ID, "purchase_orders", "Created purchase order "+purchaseOrder.OrderNumber); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

// UpdateDraftPurchaseOrder replaces header fields and the item list while the
// order is still draft, then recomputes totals. Non-draft orders are frozen.
func UpdateDraftPurchaseOrder(ctx context.Context, id int, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	existing, err := FetchPurchaseOrderForChange(tx.WithContext(ctx), businessId, id)
	if err != nil {
		return nil, err
	}
	if existing.CurrentStatus != PurchaseOrderStatusDraft {
		return nil, errors.New("only draft purchase orders can be edited")
	}

	if err := tx.WithContext(ctx).Model(existing).Association("Items").Unscoped().Clear(); err != nil {
		return nil, err
	}

	existing.SupplierId = input.SupplierId
	existing.DeliveryMethod = input.DeliveryMethod
	existing.OrderDate = input.OrderDate
	existing.ExpectedDeliveryDate = input.ExpectedDeliveryDate
	existing.TaxRate = input.TaxRate
	existing.Items = nil
	for _, item := range input.Items {
		existing.Items = append(existing.Items, PurchaseOrderItem{
			PurchaseOrderId: existing.ID,
			ProductId:       item.ProductId,
			Name:            item.Name,
			Sku:             item.Sku,
			Unit:            item.Unit,
			QtyOrdered:      item.QtyOrdered,
			UnitCost:        item.UnitCost,
		})
	}
	existing.ComputeTotals()

	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return existing, nil
}

func DeletePurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	result, err := FetchPurchaseOrderForChange(tx.WithContext(ctx), businessId, id)
	if err != nil {
		return nil, err
	}
	if result.CurrentStatus != PurchaseOrderStatusDraft {
		return nil, errors.New("only draft purchase orders can be deleted")
	}

	if err := tx.WithContext(ctx).Model(result).Association("Items").Unscoped().Clear(); err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(result).Error; err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var purchaseOrder PurchaseOrder
	err := db.WithContext(ctx).
		Preload("Items").
		Where("business_id = ? AND id = ?", businessId, id).
		First(&purchaseOrder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

// FetchPurchaseOrderForChange loads the aggregate with its items under a
// row lock. Must run inside a transaction.
func FetchPurchaseOrderForChange(tx *gorm.DB, businessId string, id int) (*PurchaseOrder, error) {
	var purchaseOrder PurchaseOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		Where("business_id = ? AND id = ?", businessId, id).
		First(&purchaseOrder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

var ErrPurchaseOrderNotFound = errors.New("purchase order not found")

// PaginatePurchaseOrders lists orders newest-first with keyset pagination on
// (created_at, id); afterId anchors the next page.
func PaginatePurchaseOrders(ctx context.Context, limit int, afterId *int, supplierId *int, currentStatus *PurchaseOrderStatus, orderNumber *string) ([]*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if supplierId != nil && *supplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", *supplierId)
	}
	if currentStatus != nil {
		dbCtx = dbCtx.Where("current_status = ?", *currentStatus)
	}
	if orderNumber != nil && *orderNumber != "" {
		dbCtx = dbCtx.Where("order_number LIKE ?", "%"+*orderNumber+"%")
	}
	if afterId != nil && *afterId > 0 {
		var anchor PurchaseOrder
		if err := db.WithContext(ctx).Select("id", "created_at").
			Where("business_id = ? AND id = ?", businessId, *afterId).
			First(&anchor).Error; err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("(created_at < ?) OR (created_at = ? AND id < ?)", anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
	}

	var results []*PurchaseOrder
	err := dbCtx.
		Preload("Items").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
