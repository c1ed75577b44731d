package handler

import (
	"context"

	apppacking "github.com/erp/stockcore/internal/application/packing"
	"github.com/erp/stockcore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PackingHandler drives packing orders through their lifecycle
type PackingHandler struct {
	BaseHandler
	packing *apppacking.PackingService
}

// NewPackingHandler creates a new PackingHandler
func NewPackingHandler(packing *apppacking.PackingService) *PackingHandler {
	return &PackingHandler{packing: packing}
}

// Create godoc
// @Summary  Create a packing order awaiting approval
// @Tags     packing
// @Router   /packing/orders [post]
func (h *PackingHandler) Create(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req apppacking.CreateOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}

	order, err := h.packing.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, order)
}

// GetByID godoc
// @Summary  Get a packing order
// @Tags     packing
// @Router   /packing/orders/{id} [get]
func (h *PackingHandler) GetByID(c *gin.Context) {
	h.withOrder(c, h.packing.GetByID)
}

// List godoc
// @Summary  List packing orders
// @Tags     packing
// @Router   /packing/orders [get]
func (h *PackingHandler) List(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	filter := apppacking.OrderListFilter{Page: 1, PageSize: 20}
	if !h.bindQuery(c, &filter) {
		return
	}

	orders, total, err := h.packing.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, orders, total, filter.Page, filter.PageSize)
}

// Approve moves an order from awaiting_approval to confirmed
func (h *PackingHandler) Approve(c *gin.Context) {
	h.withOrder(c, h.packing.Approve)
}

// StartPacking moves a confirmed order into packing
func (h *PackingHandler) StartPacking(c *gin.Context) {
	h.withOrder(c, h.packing.StartPacking)
}

// MarkReady closes packing once every item is complete
func (h *PackingHandler) MarkReady(c *gin.Context) {
	h.withOrder(c, h.packing.MarkReady)
}

// Deliver marks a ready order as delivered
func (h *PackingHandler) Deliver(c *gin.Context) {
	h.withOrder(c, h.packing.Deliver)
}

// SetPackedQuantity godoc
// @Summary  Set an item's packed quantity; stock follows the delta
// @Tags     packing
// @Router   /packing/orders/{id}/items/{itemId}/packed [put]
func (h *PackingHandler) SetPackedQuantity(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathUUID(c, "itemId")
	if !ok {
		return
	}
	var req apppacking.SetPackedQuantityRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.PerformedBy = middleware.GetUserID(c)

	resp, err := h.packing.SetPackedQuantity(c.Request.Context(), tenantID, orderID, itemID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Consume godoc
// @Summary  Pack every outstanding item, consuming stock per item
// @Description Items succeed or fail independently; the body lists each outcome.
// @Tags     packing
// @Router   /packing/orders/{id}/consume [post]
func (h *PackingHandler) Consume(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.packing.PackAll(c.Request.Context(), tenantID, orderID, middleware.GetUserID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Reverse godoc
// @Summary  Return every packed unit of the order to stock
// @Tags     packing
// @Router   /packing/orders/{id}/reverse [post]
func (h *PackingHandler) Reverse(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req apppacking.ReverseOrderRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	req.PerformedBy = middleware.GetUserID(c)

	resp, err := h.packing.Reverse(c.Request.Context(), tenantID, orderID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Cancel godoc
// @Summary  Cancel an order; packed stock is returned first
// @Tags     packing
// @Router   /packing/orders/{id}/cancel [post]
func (h *PackingHandler) Cancel(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req apppacking.CancelOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.PerformedBy = middleware.GetUserID(c)

	order, err := h.packing.Cancel(c.Request.Context(), tenantID, orderID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

func (h *PackingHandler) withOrder(c *gin.Context, fn func(ctx context.Context, tenantID, orderID uuid.UUID) (*apppacking.OrderResponse, error)) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	order, err := fn(c.Request.Context(), tenantID, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}
