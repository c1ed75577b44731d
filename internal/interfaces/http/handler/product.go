package handler

import (
	appinventory "github.com/erp/stockcore/internal/application/inventory"
	"github.com/gin-gonic/gin"
)

// ProductHandler serves product master data and loss percentages
type ProductHandler struct {
	BaseHandler
	products *appinventory.ProductService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(products *appinventory.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// Create godoc
// @Summary  Create a physical product, or a subproduct when parent_product_id is set
// @Tags     products
// @Router   /inventory/products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appinventory.CreateProductRequest
	if !h.bindJSON(c, &req) {
		return
	}

	product, err := h.products.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, product)
}

// GetByID godoc
// @Summary  Get a product
// @Tags     products
// @Router   /inventory/products/{id} [get]
func (h *ProductHandler) GetByID(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	product, err := h.products.GetByID(c.Request.Context(), tenantID, productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// List godoc
// @Summary  List products
// @Tags     products
// @Router   /inventory/products [get]
func (h *ProductHandler) List(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	filter := appinventory.ProductListFilter{Page: 1, PageSize: 20}
	if !h.bindQuery(c, &filter) {
		return
	}

	items, total, err := h.products.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, items, total, filter.Page, filter.PageSize)
}

// SetLossPercentage godoc
// @Summary  Set or clear a loss percentage; subproducts are refreshed
// @Tags     products
// @Router   /inventory/products/{id}/loss-percentage [put]
func (h *ProductHandler) SetLossPercentage(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req appinventory.SetLossPercentageRequest
	if !h.bindJSON(c, &req) {
		return
	}

	product, err := h.products.SetLossPercentage(c.Request.Context(), tenantID, productID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}
