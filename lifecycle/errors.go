package lifecycle

import (
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

// GuardViolation rejects a transition whose precondition failed. The order
// is left untouched; the caller corrects the input and retries.
type GuardViolation struct {
	Action Action
	Reason string
}

func (e *GuardViolation) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Action, e.Reason)
}

func guardViolation(action Action, format string, args ...any) *GuardViolation {
	return &GuardViolation{Action: action, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError means the authoritative status changed since the caller last
// read the order. Refetch and re-evaluate action availability before retrying.
type ConflictError struct {
	OrderId  int
	Expected models.PurchaseOrderStatus
	Actual   models.PurchaseOrderStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("purchase order %d changed: expected status %s, found %s", e.OrderId, e.Expected, e.Actual)
}

// TransportError wraps a failed call to the order service. Retrying is safe;
// the service dedupes receive batches on their receipt reference.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "order service call failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError identifies a missing order or order item.
type NotFoundError struct {
	Resource string
	Id       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.Id)
}

// NotSupportedError is returned at construction when the configured backend
// variant has no purchase order support.
type NotSupportedError struct {
	Variant config.BackendVariant
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("purchase orders are not supported on backend variant %q", e.Variant)
}

// ErrOrderBusy rejects a transition dispatched while another one is already
// in flight for the same order id. Not queued; the caller retries after the
// pending call settles.
var ErrOrderBusy = errors.New("a transition is already in flight for this order")
