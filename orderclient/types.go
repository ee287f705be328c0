package orderclient

import (
	"bitbucket.org/mmdatafocus/purchasing_backend/lifecycle"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

// Wire payloads for the order service API. Field names match the gin
// handlers' binding tags.

type sendOrderRequest struct {
	Channel models.SendChannel `json:"channel"`
}

type receiveItemsRequest struct {
	ReceiptReference string                  `json:"receipt_reference,omitempty"`
	Items            []lifecycle.ReceiveLine `json:"items"`
}

type approveOrderRequest struct {
	Notes string `json:"notes,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// apiError is the service's structured error envelope.
type apiError struct {
	Code           string `json:"code"`
	Action         string `json:"action,omitempty"`
	Message        string `json:"message"`
	ExpectedStatus string `json:"expected_status,omitempty"`
	ActualStatus   string `json:"actual_status,omitempty"`
}

type apiErrorEnvelope struct {
	Error *apiError `json:"error"`
}

const (
	errCodeGuardViolation = "guard_violation"
	errCodeConflict       = "conflict"
	errCodeNotFound       = "not_found"
	errCodeBusy           = "busy"
	errCodeNotSupported   = "not_supported"
)
