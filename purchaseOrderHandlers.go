package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/lifecycle"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"bitbucket.org/mmdatafocus/purchasing_backend/workflow"
)

// apiError is the structured error envelope every handler returns. The order
// client decodes the code back into the lifecycle error taxonomy.
type apiError struct {
	Code           string `json:"code"`
	Action         string `json:"action,omitempty"`
	Message        string `json:"message"`
	ExpectedStatus string `json:"expected_status,omitempty"`
	ActualStatus   string `json:"actual_status,omitempty"`
}

func respondError(c *gin.Context, err error) {
	var guard *lifecycle.GuardViolation
	var conflict *lifecycle.ConflictError
	var notFound *lifecycle.NotFoundError
	var notSupported *lifecycle.NotSupportedError

	switch {
	case errors.As(err, &guard):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": apiError{
			Code:    "guard_violation",
			Action:  string(guard.Action),
			Message: guard.Reason,
		}})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": apiError{
			Code:           "conflict",
			Message:        conflict.Error(),
			ExpectedStatus: string(conflict.Expected),
			ActualStatus:   string(conflict.Actual),
		}})
	case errors.As(err, &notFound) || errors.Is(err, models.ErrPurchaseOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": apiError{
			Code:    "not_found",
			Message: err.Error(),
		}})
	case errors.Is(err, workflow.ErrIdempotencyInProgress):
		c.JSON(http.StatusLocked, gin.H{"error": apiError{
			Code:    "busy",
			Message: err.Error(),
		}})
	case errors.As(err, &notSupported):
		c.JSON(http.StatusInternalServerError, gin.H{"error": apiError{
			Code:    "not_supported",
			Message: err.Error(),
		}})
	default:
		logger := config.GetLogger()
		config.LogError(logger, "purchaseOrderHandlers.go", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": apiError{
			Code:    "internal",
			Message: err.Error(),
		}})
	}
}

func orderIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": apiError{Code: "bad_request", Message: "invalid order id"}})
		return 0, false
	}
	return id, true
}

// expectedStatusHeader reads the caller's last-seen status for conflict
// detection; absent means "no check".
func expectedStatusHeader(c *gin.Context) (*models.PurchaseOrderStatus, bool) {
	raw := c.GetHeader("X-Expected-Status")
	if raw == "" {
		return nil, true
	}
	status, err := models.ParsePurchaseOrderStatus(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": apiError{Code: "bad_request", Message: err.Error()}})
		return nil, false
	}
	return &status, true
}

type transitionBody struct {
	Channel          models.SendChannel      `json:"channel"`
	Reason           string                  `json:"reason"`
	Notes            string                  `json:"notes"`
	ReceiptReference string                  `json:"receipt_reference"`
	Items            []lifecycle.ReceiveLine `json:"items"`
}

// transitionHandler serves every POST /purchase-orders/:id/<action> route.
// The engine is constructed once at startup with the deployment's backend
// variant; a variant without purchase order support refuses all transitions.
func transitionHandler(engine *lifecycle.Engine, engineErr error, action lifecycle.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if engineErr != nil {
			respondError(c, engineErr)
			return
		}

		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		expectedStatus, ok := expectedStatusHeader(c)
		if !ok {
			return
		}

		var body transitionBody
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": apiError{Code: "bad_request", Message: "invalid request"}})
				return
			}
		}

		input := lifecycle.TransitionInput{
			Channel: body.Channel,
			Reason:  body.Reason,
			Notes:   body.Notes,
			Lines:   body.Items,
		}

		po, err := workflow.ApplyPurchaseOrderTransition(c.Request.Context(), engine, id, action, input, expectedStatus, body.ReceiptReference)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	}
}

func createPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": apiError{Code: "bad_request", Message: err.Error()}})
			return
		}
		po, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, po)
	}
}

func updatePurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": apiError{Code: "bad_request", Message: err.Error()}})
			return
		}
		po, err := models.UpdateDraftPurchaseOrder(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	}
}

func deletePurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		po, err := models.DeletePurchaseOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	}
}

func getPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		po, err := models.GetPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	}
}

func listPurchaseOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

		var afterId *int
		if v, err := strconv.Atoi(c.Query("after_id")); err == nil && v > 0 {
			afterId = &v
		}
		var supplierId *int
		if v, err := strconv.Atoi(c.Query("supplier_id")); err == nil && v > 0 {
			supplierId = &v
		}
		var currentStatus *models.PurchaseOrderStatus
		if raw := c.Query("status"); raw != "" {
			status, err := models.ParsePurchaseOrderStatus(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": apiError{Code: "bad_request", Message: err.Error()}})
				return
			}
			currentStatus = &status
		}
		var orderNumber *string
		if raw := c.Query("order_number"); raw != "" {
			orderNumber = &raw
		}

		orders, err := models.PaginatePurchaseOrders(c.Request.Context(), limit, afterId, supplierId, currentStatus, orderNumber)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": orders})
	}
}

// businessContextMiddleware lifts the tenant and actor identity headers into
// the request context. Authentication itself is handled upstream.
func businessContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if businessId := c.GetHeader("X-Business-Id"); businessId != "" {
			ctx = utils.SetBusinessIdInContext(ctx, businessId)
		}
		if raw := c.GetHeader("X-User-Id"); raw != "" {
			if userId, err := strconv.Atoi(raw); err == nil {
				ctx = utils.SetUserIdInContext(ctx, userId)
			}
		}
		if userName := c.GetHeader("X-User-Name"); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
