// Package orderclient dispatches purchase order transitions to the
// order-management service and projects the authoritative state it returns.
//
// Guards are evaluated optimistically before the network call using the same
// lifecycle checks the server runs, but the server response, not the local
// computation, is ground truth: every returned aggregate replaces the cached
// snapshot, and a conflict answer forces a refetch before the next attempt.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/lifecycle"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

type Client struct {
	baseURL    string
	apiKey     string
	apiKeyHdr  string
	businessId string
	http       *http.Client
	engine     *lifecycle.Engine

	// At most one in-flight transition per order id. A second dispatch while
	// one is pending is rejected with ErrOrderBusy, never queued. Distinct
	// orders proceed independently.
	mu       sync.Mutex
	inflight map[int]bool

	// Last authoritative aggregate per order id, used for optimistic guard
	// checks and conflict detection on the next transition.
	snapMu    sync.RWMutex
	snapshots map[int]*models.PurchaseOrder
}

type Config struct {
	BaseURL    string
	APIKey     string
	BusinessId string
	Variant    config.BackendVariant
	Timeout    time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	engine, err := lifecycle.NewEngine(cfg.Variant)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("PURCHASING_API_BASE_URL"))
	}
	if baseURL == "" {
		return nil, errors.New("order service base url is empty")
	}
	if strings.TrimSpace(cfg.BusinessId) == "" {
		return nil, errors.New("business id is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("PURCHASING_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		apiKeyHdr:  apiKeyHeader,
		businessId: cfg.BusinessId,
		http:       &http.Client{Timeout: timeout},
		engine:     engine,
		inflight:   make(map[int]bool),
		snapshots:  make(map[int]*models.PurchaseOrder),
	}, nil
}

// Snapshot returns the last authoritative aggregate seen for the order, or
// nil if it was never fetched. Used by the UI for predicates and the progress
// track without a round trip.
func (c *Client) Snapshot(orderId int) *models.PurchaseOrder {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	po := c.snapshots[orderId]
	if po == nil {
		return nil
	}
	snap := *po
	snap.Items = append([]models.PurchaseOrderItem(nil), po.Items...)
	return &snap
}

// storeSnapshot caches a private copy: callers hold their own aggregate and
// may mutate it without corrupting the pre-flight cache.
func (c *Client) storeSnapshot(po *models.PurchaseOrder) {
	if po == nil {
		return
	}
	snap := *po
	snap.Items = append([]models.PurchaseOrderItem(nil), po.Items...)
	c.snapMu.Lock()
	c.snapshots[po.ID] = &snap
	c.snapMu.Unlock()
}

func (c *Client) dropSnapshot(orderId int) {
	c.snapMu.Lock()
	delete(c.snapshots, orderId)
	c.snapMu.Unlock()
}

func (c *Client) beginDispatch(orderId int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[orderId] {
		return lifecycle.ErrOrderBusy
	}
	c.inflight[orderId] = true
	return nil
}

func (c *Client) endDispatch(orderId int) {
	c.mu.Lock()
	delete(c.inflight, orderId)
	c.mu.Unlock()
}

func (c *Client) GetOrder(ctx context.Context, orderId int) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	path := fmt.Sprintf("/purchase-orders/%d", orderId)
	if err := c.do(ctx, http.MethodGet, path, orderId, nil, "", &po); err != nil {
		return nil, err
	}
	c.storeSnapshot(&po)
	return &po, nil
}

func (c *Client) SubmitOrder(ctx context.Context, orderId int) (*models.PurchaseOrder, error) {
	return c.transition(ctx, orderId, lifecycle.ActionSubmit, lifecycle.TransitionInput{}, nil)
}

func (c *Client) ApproveOrder(ctx context.Context, orderId int, notes string) (*models.PurchaseOrder, error) {
	return c.transition(ctx, orderId, lifecycle.ActionApprove, lifecycle.TransitionInput{Notes: notes},
		approveOrderRequest{Notes: notes})
}

func (c *Client) SendOrder(ctx context.Context, orderId int, channel models.SendChannel) (*models.PurchaseOrder, error) {
	return c.transition(ctx, orderId, lifecycle.ActionSend, lifecycle.TransitionInput{Channel: channel},
		sendOrderRequest{Channel: channel})
}

// ReceiveItems submits an all-or-nothing receive batch. receiptRef, when
// non-empty, lets the service dedupe a retried batch so quantities are never
// double-counted.
func (c *Client) ReceiveItems(ctx context.Context, orderId int, items []lifecycle.ReceiveLine, receiptRef string) (*models.PurchaseOrder, error) {
	return c.transition(ctx, orderId, lifecycle.ActionReceive, lifecycle.TransitionInput{Lines: items},
		receiveItemsRequest{ReceiptReference: receiptRef, Items: items})
}

func (c *Client) HoldOrder(ctx context.Context, orderId int, reason string) (*models.PurchaseOrder, error) {
	return c.transition(ctx, orderId, lifecycle.ActionHold, lifecycle.TransitionInput{Reason: reason},
		reasonRequest{Reason: reason})
}

func (c *Client) ResumeOrder(ctx context.Context, orderId int) (*models.PurchaseOrder, error) {
	return c.transition(ctx, orderId, lifecycle.ActionResume, lifecycle.TransitionInput{}, nil)
}

func (c *Client) CancelOrder(ctx context.Context, orderId int, reason string) (*models.PurchaseOrder, error) {
	return c.transition(ctx, orderId, lifecycle.ActionCancel, lifecycle.TransitionInput{Reason: reason},
		reasonRequest{Reason: reason})
}

func (c *Client) FileOrder(ctx context.Context, orderId int) (*models.PurchaseOrder, error) {
	return c.transition(ctx, orderId, lifecycle.ActionFile, lifecycle.TransitionInput{}, nil)
}

func (c *Client) transition(ctx context.Context, orderId int, action lifecycle.Action, input lifecycle.TransitionInput, body any) (*models.PurchaseOrder, error) {
	if err := c.beginDispatch(orderId); err != nil {
		return nil, err
	}
	defer c.endDispatch(orderId)

	// Fast pre-flight against the cached aggregate; the server re-validates
	// as the authority.
	expectedStatus := ""
	if snap := c.Snapshot(orderId); snap != nil {
		if err := c.engine.Check(snap, action, input); err != nil {
			return nil, err
		}
		expectedStatus = string(snap.CurrentStatus)
	}

	var po models.PurchaseOrder
	path := fmt.Sprintf("/purchase-orders/%d/%s", orderId, action)
	if err := c.do(ctx, http.MethodPost, path, orderId, body, expectedStatus, &po); err != nil {
		var conflict *lifecycle.ConflictError
		if errors.As(err, &conflict) {
			// Stale snapshot; force the next read to hit the service.
			c.dropSnapshot(orderId)
		}
		return nil, err
	}
	c.storeSnapshot(&po)
	return &po, nil
}

func (c *Client) do(ctx context.Context, method string, path string, orderId int, body any, expectedStatus string, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("X-Business-Id", c.businessId)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if expectedStatus != "" {
		req.Header.Set("X-Expected-Status", expectedStatus)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &lifecycle.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &lifecycle.TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp.StatusCode, raw, orderId)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &lifecycle.TransportError{Err: err}
		}
	}
	return nil
}

func (c *Client) decodeError(statusCode int, raw []byte, orderId int) error {
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error == nil {
		return &lifecycle.TransportError{Err: fmt.Errorf("order service error %d: %s", statusCode, strings.TrimSpace(string(raw)))}
	}

	apiErr := envelope.Error
	switch apiErr.Code {
	case errCodeGuardViolation:
		return &lifecycle.GuardViolation{Action: lifecycle.Action(apiErr.Action), Reason: apiErr.Message}
	case errCodeConflict:
		return &lifecycle.ConflictError{
			OrderId:  orderId,
			Expected: models.PurchaseOrderStatus(apiErr.ExpectedStatus),
			Actual:   models.PurchaseOrderStatus(apiErr.ActualStatus),
		}
	case errCodeNotFound:
		return &lifecycle.NotFoundError{Resource: "purchase order", Id: orderId}
	case errCodeBusy:
		return lifecycle.ErrOrderBusy
	case errCodeNotSupported:
		return &lifecycle.NotSupportedError{Variant: config.BackendVariant(apiErr.Message)}
	default:
		return &lifecycle.TransportError{Err: fmt.Errorf("order service error %d (%s): %s", statusCode, apiErr.Code, apiErr.Message)}
	}
}
