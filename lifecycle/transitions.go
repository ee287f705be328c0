// Package lifecycle owns the purchase order state model: the closed status
// set, the transition table with its guards, the derived action-availability
// predicates and the progress projection used for rendering.
//
// Guards here are pure functions over the loaded aggregate. The same
// evaluation runs client-side for fast pre-flight feedback and server-side as
// the authority; it is never hand-duplicated.
package lifecycle

import (
	"strings"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionSend    Action = "send"
	ActionReceive Action = "receive"
	ActionHold    Action = "hold"
	ActionResume  Action = "resume"
	ActionCancel  Action = "cancel"
	ActionFile    Action = "file"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionSubmit, ActionApprove, ActionSend, ActionReceive, ActionHold, ActionResume, ActionCancel, ActionFile:
		return true
	default:
		return false
	}
}

// allowedFrom is the transition table's source-state column.
var allowedFrom = map[Action][]models.PurchaseOrderStatus{
	ActionSubmit:  {models.PurchaseOrderStatusDraft},
	ActionApprove: {models.PurchaseOrderStatusPendingApproval},
	ActionSend:    {models.PurchaseOrderStatusApproved},
	ActionReceive: {models.PurchaseOrderStatusSent, models.PurchaseOrderStatusPartial},
	ActionHold:    {models.PurchaseOrderStatusSent, models.PurchaseOrderStatusPartial},
	ActionResume:  {models.PurchaseOrderStatusOnHold},
	ActionCancel:  {models.PurchaseOrderStatusDraft, models.PurchaseOrderStatusPendingApproval, models.PurchaseOrderStatusApproved},
	ActionFile:    {models.PurchaseOrderStatusReceived},
}

func actionAllowedFrom(action Action, status models.PurchaseOrderStatus) bool {
	for _, s := range allowedFrom[action] {
		if s == status {
			return true
		}
	}
	return false
}

// TransitionInput carries the per-action payload evaluated by the guards.
type TransitionInput struct {
	Channel models.SendChannel
	Reason  string
	Notes   string
	Lines   []ReceiveLine
}

func checkSourceState(action Action, po *models.PurchaseOrder) error {
	if actionAllowedFrom(action, po.CurrentStatus) {
		return nil
	}
	return guardViolation(action, "not allowed while order is %s", po.CurrentStatus)
}

// CheckTransition evaluates the guard for one attempted transition against
// the loaded aggregate. A nil result means the transition would be accepted
// with the order in this state; it mutates nothing.
func CheckTransition(po *models.PurchaseOrder, action Action, input TransitionInput) error {
	if po == nil {
		return &NotFoundError{Resource: "purchase order", Id: 0}
	}
	if !action.IsValid() {
		return guardViolation(action, "unknown action")
	}
	if err := checkSourceState(action, po); err != nil {
		return err
	}

	switch action {
	case ActionSubmit:
		if len(po.Items) == 0 {
			return guardViolation(action, "order has no items")
		}
	case ActionSend:
		if !input.Channel.IsValid() {
			return guardViolation(action, "send channel must be one of email, viber, sms, other")
		}
	case ActionReceive:
		return checkReceiveLines(po, input.Lines)
	case ActionHold:
		if strings.TrimSpace(input.Reason) == "" {
			return guardViolation(action, "hold reason is required")
		}
	case ActionResume:
		if po.StatusBeforeHold == nil || !po.StatusBeforeHold.Receivable() {
			return guardViolation(action, "order has no resumable pre-hold status")
		}
	case ActionCancel:
		if strings.TrimSpace(input.Reason) == "" {
			return guardViolation(action, "cancellation reason is required")
		}
	}
	return nil
}

// NextStatus returns the result state for an accepted transition. Callers
// must have passed CheckTransition first; receive outcomes depend on the
// lines being applied.
func NextStatus(po *models.PurchaseOrder, action Action, input TransitionInput) models.PurchaseOrderStatus {
	switch action {
	case ActionSubmit:
		return models.PurchaseOrderStatusPendingApproval
	case ActionApprove:
		return models.PurchaseOrderStatusApproved
	case ActionSend:
		return models.PurchaseOrderStatusSent
	case ActionReceive:
		return receiveOutcome(po, input.Lines)
	case ActionHold:
		return models.PurchaseOrderStatusOnHold
	case ActionResume:
		return *po.StatusBeforeHold
	case ActionCancel:
		return models.PurchaseOrderStatusCancelled
	case ActionFile:
		return models.PurchaseOrderStatusFiled
	}
	return po.CurrentStatus
}
