package lifecycle

import (
	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

// Engine binds the pure state model to an explicit backend variant. The
// variant is a constructor argument, never ambient state read at call sites;
// construction fails for variants without purchase order support.
type Engine struct {
	variant config.BackendVariant
}

func NewEngine(variant config.BackendVariant) (*Engine, error) {
	if !variant.SupportsPurchaseOrders() {
		return nil, &NotSupportedError{Variant: variant}
	}
	return &Engine{variant: variant}, nil
}

func (e *Engine) Variant() config.BackendVariant { return e.variant }

// Check evaluates the guard for an attempted transition. See CheckTransition.
func (e *Engine) Check(po *models.PurchaseOrder, action Action, input TransitionInput) error {
	return CheckTransition(po, action, input)
}

// Next returns the result state of an accepted transition.
func (e *Engine) Next(po *models.PurchaseOrder, action Action, input TransitionInput) models.PurchaseOrderStatus {
	return NextStatus(po, action, input)
}
