package lifecycle

import "bitbucket.org/mmdatafocus/purchasing_backend/models"

// CanonicalPath is the forward progression rendered as the order's progress
// track. on_hold and cancelled are off-path and rendered as alerts instead.
var CanonicalPath = []models.PurchaseOrderStatus{
	models.PurchaseOrderStatusDraft,
	models.PurchaseOrderStatusPendingApproval,
	models.PurchaseOrderStatusApproved,
	models.PurchaseOrderStatusSent,
	models.PurchaseOrderStatusReceived,
	models.PurchaseOrderStatusFiled,
}

// ProgressIndex returns the order's position on the canonical path. partial
// renders at the sent position (goods are still arriving). ok is false for
// off-path statuses.
func ProgressIndex(s models.PurchaseOrderStatus) (int, bool) {
	if s == models.PurchaseOrderStatusPartial {
		s = models.PurchaseOrderStatusSent
	}
	for i, step := range CanonicalPath {
		if step == s {
			return i, true
		}
	}
	return -1, false
}

type StepState string

const (
	StepComplete StepState = "complete"
	StepActive   StepState = "active"
	StepPending  StepState = "pending"
)

// ProgressTrack projects the canonical path into per-step render states for
// the given status. Off-path statuses return nil; render them as alerts.
func ProgressTrack(s models.PurchaseOrderStatus) []StepState {
	idx, ok := ProgressIndex(s)
	if !ok {
		return nil
	}
	track := make([]StepState, len(CanonicalPath))
	for i := range CanonicalPath {
		switch {
		case i < idx:
			track[i] = StepComplete
		case i == idx:
			track[i] = StepActive
		default:
			track[i] = StepPending
		}
	}
	return track
}
