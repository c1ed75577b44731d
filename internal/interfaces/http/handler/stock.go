package handler

import (
	appinventory "github.com/erp/stockcore/internal/application/inventory"
	"github.com/erp/stockcore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// StockHandler serves ledger movements and stock queries
type StockHandler struct {
	BaseHandler
	ledger *appinventory.StockLedgerService
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(ledger *appinventory.StockLedgerService) *StockHandler {
	return &StockHandler{ledger: ledger}
}

// ReverseTransactionRequest is the body of a single transaction reversal
type ReverseTransactionRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// Receive godoc
// @Summary  Receive a lot of a physical product
// @Tags     stock
// @Router   /inventory/products/{id}/receive [post]
func (h *StockHandler) Receive(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req appinventory.ReceiveStockRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.ProductID = productID
	req.PerformedBy = middleware.GetUserID(c)

	resp, err := h.ledger.ReceiveStock(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Adjust godoc
// @Summary  Apply a signed stock adjustment
// @Tags     stock
// @Router   /inventory/products/{id}/adjust [post]
func (h *StockHandler) Adjust(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req appinventory.AdjustStockRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.ProductID = productID
	req.PerformedBy = middleware.GetUserID(c)

	tx, err := h.ledger.AdjustStock(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tx)
}

// VirtualStock godoc
// @Summary  Get stock as seen by sales; derived for subproducts
// @Tags     stock
// @Router   /inventory/products/{id}/virtual-stock [get]
func (h *StockHandler) VirtualStock(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	stock, err := h.ledger.GetVirtualStock(c.Request.Context(), tenantID, productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stock)
}

// Transactions godoc
// @Summary  List a product's ledger, newest first
// @Tags     stock
// @Router   /inventory/products/{id}/transactions [get]
func (h *StockHandler) Transactions(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var filter appinventory.TransactionListFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	page, err := h.ledger.GetTransactionHistory(c.Request.Context(), tenantID, productID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Batches godoc
// @Summary  List a product's lots in FIFO order
// @Tags     stock
// @Router   /inventory/products/{id}/batches [get]
func (h *StockHandler) Batches(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var filter appinventory.BatchListFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	page, err := h.ledger.ListBatches(c.Request.Context(), tenantID, productID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// ReverseTransaction godoc
// @Summary  Reverse one transaction exactly once
// @Tags     stock
// @Router   /inventory/transactions/{id}/reverse [post]
func (h *StockHandler) ReverseTransaction(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	transactionID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req ReverseTransactionRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}

	tx, err := h.ledger.ReverseTransaction(c.Request.Context(), tenantID, transactionID, middleware.GetUserID(c), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tx)
}
