package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/lifecycle"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("purchasing-backend")

const receiveHandlerName = "purchase_order_receive"

// ApplyPurchaseOrderTransition is the authoritative transition executor: it
// loads the aggregate under per-order locks, re-evaluates the shared guard,
// applies the side effects and the status change in one DB transaction, and
// returns the updated aggregate.
//
// expectedStatus, when non-nil, is the status the caller last read; a
// mismatch is a ConflictError answered before guards run. receiptRef dedupes
// receive batches: a repeat with an already-succeeded reference returns the
// current aggregate without double-counting.
func ApplyPurchaseOrderTransition(ctx context.Context, engine *lifecycle.Engine, orderId int, action lifecycle.Action, input lifecycle.TransitionInput, expectedStatus *models.PurchaseOrderStatus, receiptRef string) (*models.PurchaseOrder, error) {
	return applyPurchaseOrderTransition(ctx, config.GetDB(), engine, orderId, action, input, expectedStatus, receiptRef)
}

func applyPurchaseOrderTransition(ctx context.Context, db *gorm.DB, engine *lifecycle.Engine, orderId int, action lifecycle.Action, input lifecycle.TransitionInput, expectedStatus *models.PurchaseOrderStatus, receiptRef string) (*models.PurchaseOrder, error) {
	ctx, span := tracer.Start(ctx, "purchase_order."+string(action))
	defer span.End()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// Best-effort redis lock; the MySQL advisory lock below is the authority.
	if redisLock := obtainOrderRedisLock(ctx, businessId, orderId); redisLock != nil {
		defer func() { _ = redisLock.Release(context.WithoutCancel(ctx)) }()
	}

	var po *models.PurchaseOrder
	txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireOrderPostingLock(tx, businessId, orderId); err != nil {
			return err
		}
		// GET_LOCK is session-scoped, not transaction-scoped: commit does not
		// free it. The deferred release runs when this closure returns, while
		// the transaction is still open, so the pooled connection never leaves
		// with the lock held.
		defer ReleaseOrderPostingLock(tx, businessId, orderId)

		var err error
		po, err = models.FetchPurchaseOrderForChange(tx, businessId, orderId)
		if err != nil {
			if errors.Is(err, models.ErrPurchaseOrderNotFound) {
				return &lifecycle.NotFoundError{Resource: "purchase order", Id: orderId}
			}
			return err
		}

		if expectedStatus != nil && *expectedStatus != po.CurrentStatus {
			return &lifecycle.ConflictError{OrderId: orderId, Expected: *expectedStatus, Actual: po.CurrentStatus}
		}

		if action == lifecycle.ActionReceive && receiptRef != "" {
			skip, err := BeginIdempotency(tx, businessId, receiveHandlerName, receiptRef)
			if err != nil {
				return err
			}
			if skip {
				// Already applied; return the aggregate as it stands.
				return nil
			}
		}

		if err := engine.Check(po, action, input); err != nil {
			if action == lifecycle.ActionReceive && receiptRef != "" {
				_ = MarkIdempotencyFailed(tx, businessId, receiveHandlerName, receiptRef, err)
			}
			return err
		}

		oldStatus := po.CurrentStatus
		// Resolve the result state before effects run: hold metadata is consumed
		// by NextStatus and cleared by the resume effect.
		nextStatus := engine.Next(po, action, input)
		if err := applyTransitionEffects(ctx, tx, po, action, input, receiptRef); err != nil {
			return err
		}
		po.CurrentStatus = nextStatus

		// Receive recomputes the aggregate from item state after the increments.
		if action == lifecycle.ActionReceive {
			if po.FullyReceived() {
				po.CurrentStatus = models.PurchaseOrderStatusReceived
				if po.ReceivedDate == nil {
					now := time.Now().UTC()
					po.ReceivedDate = &now
				}
			} else {
				po.CurrentStatus = models.PurchaseOrderStatusPartial
			}
		}

		if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(po).Error; err != nil {
			return err
		}

		description := fmt.Sprintf("%s: %s -> %s", action, oldStatus, po.CurrentStatus)
		if err := models.CreateHistory(tx, "Update", po.ID, "purchase_orders", description); err != nil {
			return err
		}

		if action == lifecycle.ActionReceive && receiptRef != "" {
			return MarkIdempotencySucceeded(tx, businessId, receiveHandlerName, receiptRef)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return po, nil
}

// applyTransitionEffects mutates the aggregate's transition metadata and, for
// receive, appends ledger entries and advances item quantities. Guards have
// already passed; nothing here re-decides admissibility.
func applyTransitionEffects(ctx context.Context, tx *gorm.DB, po *models.PurchaseOrder, action lifecycle.Action, input lifecycle.TransitionInput, receiptRef string) error {
	now := time.Now().UTC()
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	switch action {
	case lifecycle.ActionApprove:
		po.ApproverUserId = userId
		po.ApproverName = userName
		po.ApprovedAt = &now
		po.ApprovalNotes = input.Notes
	case lifecycle.ActionSend:
		channel := input.Channel
		po.SendChannel = &channel
		po.SentAt = &now
	case lifecycle.ActionReceive:
		return ApplyPurchaseOrderReceiveStock(tx.WithContext(ctx), po, input.Lines, receiptRef, userId, userName)
	case lifecycle.ActionHold:
		prev := po.CurrentStatus
		po.StatusBeforeHold = &prev
		po.HoldReason = input.Reason
	case lifecycle.ActionResume:
		po.StatusBeforeHold = nil
		po.HoldReason = ""
	case lifecycle.ActionCancel:
		po.CancellationReason = input.Reason
	}
	return nil
}
