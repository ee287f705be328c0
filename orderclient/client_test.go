package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/lifecycle"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:    baseURL,
		BusinessId: "biz-1",
		Variant:    config.BackendVariantBooks,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeOrder(w http.ResponseWriter, id int, status models.PurchaseOrderStatus) {
	po := models.PurchaseOrder{
		ID:            id,
		BusinessId:    "biz-1",
		CurrentStatus: status,
		Items: []models.PurchaseOrderItem{
			{ID: 1, ProductId: 100, Name: "rice 25kg", QtyOrdered: decimal.NewFromInt(10)},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&po)
}

func writeError(w http.ResponseWriter, httpStatus int, apiErr apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(apiErrorEnvelope{Error: &apiErr})
}

func TestNewClient_UnsupportedVariant(t *testing.T) {
	_, err := NewClient(Config{
		BaseURL:    "http://localhost:1",
		BusinessId: "biz-1",
		Variant:    config.BackendVariantLegacyPos,
	})
	var notSupported *lifecycle.NotSupportedError
	if !errors.As(err, &notSupported) {
		t.Fatalf("expected NotSupportedError, got %v", err)
	}
	if notSupported.Variant != config.BackendVariantLegacyPos {
		t.Fatalf("error names variant %s", notSupported.Variant)
	}
}

func TestNewClient_RequiresBaseURLAndBusinessId(t *testing.T) {
	if _, err := NewClient(Config{BusinessId: "biz-1", Variant: config.BackendVariantBooks}); err == nil {
		t.Fatal("expected error for empty base url")
	}
	if _, err := NewClient(Config{BaseURL: "http://localhost:1", Variant: config.BackendVariantBooks}); err == nil {
		t.Fatal("expected error for empty business id")
	}
}

func TestSubmitOrder_SendsExpectedStatusAndStoresResponse(t *testing.T) {
	var sawExpected string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/purchase-orders/7":
			writeOrder(w, 7, models.PurchaseOrderStatusDraft)
		case "/purchase-orders/7/submit":
			sawExpected = r.Header.Get("X-Expected-Status")
			if r.Header.Get("X-Business-Id") != "biz-1" {
				t.Errorf("missing business id header")
			}
			writeOrder(w, 7, models.PurchaseOrderStatusPendingApproval)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := c.GetOrder(ctx, 7); err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	po, err := c.SubmitOrder(ctx, 7)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if sawExpected != "draft" {
		t.Fatalf("expected X-Expected-Status draft, got %q", sawExpected)
	}
	if po.CurrentStatus != models.PurchaseOrderStatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", po.CurrentStatus)
	}
	if snap := c.Snapshot(7); snap == nil || snap.CurrentStatus != models.PurchaseOrderStatusPendingApproval {
		t.Fatalf("snapshot not replaced with server response")
	}
}

func TestTransition_PreflightGuardSkipsNetworkCall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeOrder(w, 3, models.PurchaseOrderStatusFiled)
			return
		}
		atomic.AddInt32(&calls, 1)
		writeOrder(w, 3, models.PurchaseOrderStatusFiled)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := c.GetOrder(ctx, 3); err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	_, err := c.SubmitOrder(ctx, 3)
	var guard *lifecycle.GuardViolation
	if !errors.As(err, &guard) {
		t.Fatalf("expected GuardViolation from pre-flight, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("expected no transition request, server saw %d", n)
	}
}

func TestTransition_SecondDispatchForSameOrderIsBusy(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		writeOrder(w, 5, models.PurchaseOrderStatusPendingApproval)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.SubmitOrder(ctx, 5)
		firstDone <- err
	}()
	// The first dispatch holds the in-flight slot while parked in the handler.
	<-entered

	_, second := c.SubmitOrder(ctx, 5)
	if !errors.Is(second, lifecycle.ErrOrderBusy) {
		t.Fatalf("expected ErrOrderBusy for overlapping dispatch, got %v", second)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}

	// The slot is free again after settlement: the retry reaches the
	// pre-flight guard, which rejects submit from pending_approval.
	_, retry := c.SubmitOrder(ctx, 5)
	var guard *lifecycle.GuardViolation
	if !errors.As(retry, &guard) {
		t.Fatalf("expected GuardViolation on retry, got %v", retry)
	}
}

func TestTransition_DistinctOrdersDispatchIndependently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeOrder(w, 1, models.PurchaseOrderStatusPendingApproval)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int{10, 11} {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			_, errs[i] = c.SubmitOrder(ctx, id)
		}(i, id)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
}

func TestDecodeError_Taxonomy(t *testing.T) {
	cases := []struct {
		name       string
		httpStatus int
		apiErr     apiError
		check      func(t *testing.T, err error)
	}{
		{
			name:       "guard violation",
			httpStatus: http.StatusUnprocessableEntity,
			apiErr:     apiError{Code: "guard_violation", Action: "submit", Message: "order has no items"},
			check: func(t *testing.T, err error) {
				var guard *lifecycle.GuardViolation
				if !errors.As(err, &guard) {
					t.Fatalf("expected GuardViolation, got %v", err)
				}
				if guard.Action != lifecycle.ActionSubmit || guard.Reason != "order has no items" {
					t.Fatalf("unexpected guard fields: %+v", guard)
				}
			},
		},
		{
			name:       "conflict",
			httpStatus: http.StatusConflict,
			apiErr:     apiError{Code: "conflict", Message: "changed", ExpectedStatus: "draft", ActualStatus: "cancelled"},
			check: func(t *testing.T, err error) {
				var conflict *lifecycle.ConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("expected ConflictError, got %v", err)
				}
				if conflict.Expected != models.PurchaseOrderStatusDraft || conflict.Actual != models.PurchaseOrderStatusCancelled {
					t.Fatalf("unexpected conflict fields: %+v", conflict)
				}
			},
		},
		{
			name:       "not found",
			httpStatus: http.StatusNotFound,
			apiErr:     apiError{Code: "not_found", Message: "purchase order 9 not found"},
			check: func(t *testing.T, err error) {
				var notFound *lifecycle.NotFoundError
				if !errors.As(err, &notFound) {
					t.Fatalf("expected NotFoundError, got %v", err)
				}
			},
		},
		{
			name:       "busy",
			httpStatus: http.StatusLocked,
			apiErr:     apiError{Code: "busy", Message: "in flight"},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, lifecycle.ErrOrderBusy) {
					t.Fatalf("expected ErrOrderBusy, got %v", err)
				}
			},
		},
		{
			name:       "unknown code",
			httpStatus: http.StatusInternalServerError,
			apiErr:     apiError{Code: "internal", Message: "boom"},
			check: func(t *testing.T, err error) {
				var transport *lifecycle.TransportError
				if !errors.As(err, &transport) {
					t.Fatalf("expected TransportError, got %v", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tc.httpStatus, tc.apiErr)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			_, err := c.SubmitOrder(context.Background(), 9)
			if err == nil {
				t.Fatal("expected error")
			}
			tc.check(t, err)
		})
	}
}

func TestTransition_ConflictDropsSnapshot(t *testing.T) {
	conflicted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeOrder(w, 4, models.PurchaseOrderStatusDraft)
			return
		}
		conflicted = true
		writeError(w, http.StatusConflict, apiError{
			Code: "conflict", Message: "changed",
			ExpectedStatus: "draft", ActualStatus: "cancelled",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := c.GetOrder(ctx, 4); err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	_, err := c.SubmitOrder(ctx, 4)
	var conflict *lifecycle.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !conflicted {
		t.Fatal("server never saw the transition")
	}
	if c.Snapshot(4) != nil {
		t.Fatal("stale snapshot must be dropped after a conflict")
	}
}

func TestDo_NetworkFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(t, srv.URL)
	_, err := c.GetOrder(context.Background(), 1)
	var transport *lifecycle.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestDo_NonJSONErrorBodyIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html>upstream exploded</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetOrder(context.Background(), 1)
	var transport *lifecycle.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestGetOrder_RepeatedFetchIsByteIdentical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeOrder(w, 9, models.PurchaseOrderStatusSent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	first, err := c.GetOrder(ctx, 9)
	if err != nil {
		t.Fatalf("first GetOrder: %v", err)
	}
	second, err := c.GetOrder(ctx, 9)
	if err != nil {
		t.Fatalf("second GetOrder: %v", err)
	}

	firstRaw, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}
	secondRaw, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal second: %v", err)
	}
	if !bytes.Equal(firstRaw, secondRaw) {
		t.Fatalf("repeated fetch diverged:\n%s\n%s", firstRaw, secondRaw)
	}
}

func TestSnapshot_IsolatedFromCallerMutation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeOrder(w, 6, models.PurchaseOrderStatusDraft)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	po, err := c.GetOrder(context.Background(), 6)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	po.CurrentStatus = models.PurchaseOrderStatusCancelled
	po.Items[0].QtyOrdered = decimal.NewFromInt(999)

	snap := c.Snapshot(6)
	if snap == nil {
		t.Fatal("snapshot missing")
	}
	if snap.CurrentStatus != models.PurchaseOrderStatusDraft {
		t.Fatalf("caller mutation leaked into cached status: %s", snap.CurrentStatus)
	}
	if !snap.Items[0].QtyOrdered.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("caller mutation leaked into cached items: %s", snap.Items[0].QtyOrdered)
	}
}
