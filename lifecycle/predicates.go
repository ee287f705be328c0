package lifecycle

import "bitbucket.org/mmdatafocus/purchasing_backend/models"

// Action-availability predicates for UI enablement. Pure functions of status,
// recomputed on every read so they can never desync from the stored status.

func CanSubmit(s models.PurchaseOrderStatus) bool {
	return s == models.PurchaseOrderStatusDraft
}

func CanApprove(s models.PurchaseOrderStatus) bool {
	return s == models.PurchaseOrderStatusPendingApproval
}

func CanSend(s models.PurchaseOrderStatus) bool {
	return s == models.PurchaseOrderStatusApproved
}

func CanReceive(s models.PurchaseOrderStatus) bool {
	return s.Receivable()
}

func CanHold(s models.PurchaseOrderStatus) bool {
	return s.Receivable()
}

func CanResume(s models.PurchaseOrderStatus) bool {
	return s == models.PurchaseOrderStatusOnHold
}

func CanCancel(s models.PurchaseOrderStatus) bool {
	return s == models.PurchaseOrderStatusDraft ||
		s == models.PurchaseOrderStatusPendingApproval ||
		s == models.PurchaseOrderStatusApproved
}

func CanFile(s models.PurchaseOrderStatus) bool {
	return s == models.PurchaseOrderStatusReceived
}

// AvailableActions lists every action whose source-state check passes for the
// status, in canonical action order.
func AvailableActions(s models.PurchaseOrderStatus) []Action {
	all := []Action{ActionSubmit, ActionApprove, ActionSend, ActionReceive, ActionHold, ActionResume, ActionCancel, ActionFile}
	var available []Action
	for _, action := range all {
		if actionAllowedFrom(action, s) {
			available = append(available, action)
		}
	}
	return available
}
