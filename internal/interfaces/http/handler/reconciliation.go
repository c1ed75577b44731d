package handler

import (
	"github.com/erp/stockcore/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
)

// RunTracker reports the scheduler's most recent run
type RunTracker interface {
	LastRun() *scheduler.Run
}

// ReconciliationHandler exposes on-demand reconciliation
type ReconciliationHandler struct {
	BaseHandler
	reconciler scheduler.Reconciler
	runs       RunTracker
}

// NewReconciliationHandler creates a new ReconciliationHandler. runs may be
// nil when the scheduler is disabled.
func NewReconciliationHandler(reconciler scheduler.Reconciler, runs RunTracker) *ReconciliationHandler {
	return &ReconciliationHandler{reconciler: reconciler, runs: runs}
}

// Run godoc
// @Summary  Compare cached stock with lots and parents for the caller's tenant
// @Description Read-only. Discrepancies are reported, never repaired.
// @Tags     reconciliation
// @Router   /inventory/reconciliation [get]
func (h *ReconciliationHandler) Run(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	report, err := h.reconciler.Run(c.Request.Context(), &tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// LastRun godoc
// @Summary  Status of the last scheduled reconciliation
// @Tags     reconciliation
// @Router   /inventory/reconciliation/last-run [get]
func (h *ReconciliationHandler) LastRun(c *gin.Context) {
	if h.runs == nil {
		h.Success(c, nil)
		return
	}
	h.Success(c, h.runs.LastRun())
}
