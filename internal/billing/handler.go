package billing

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartqa-backend/internal/shared/server/middleware"
	"smartqa-backend/internal/shared/server/respond"
)

// Handler exposes billing endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches billing routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/billing/usage", h.getUsage)
	rg.POST("/billing/account", h.ensureAccount)
}

// RegisterDevRoutes attaches dev-only billing routes.
func (h *Handler) RegisterDevRoutes(rg *gin.RouterGroup) {
	rg.POST("/billing/reset", h.resetUsage)
}

type ensureAccountRequest struct {
	Type string `json:"type"`
}

func (h *Handler) ensureAccount(c *gin.Context) {
	var req ensureAccountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	a, err := h.Svc.EnsureAccount(c.Request.Context(), middleware.UserIDFromContext(c), req.Type)
	if err != nil {
		h.writeError(c, err, "failed to create billing account")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"id":    a.ID,
		"type":  a.Type,
		"usage": a.Snapshot(),
	})
}

func (h *Handler) getUsage(c *gin.Context) {
	u, err := h.Svc.Usage(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		h.writeError(c, err, "failed to fetch usage")
		return
	}
	respond.OK(c, u)
}

func (h *Handler) resetUsage(c *gin.Context) {
	u, err := h.Svc.Reset(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		h.writeError(c, err, "failed to reset usage")
		return
	}
	respond.OK(c, u)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNoActiveLedger):
		respond.Error(c, http.StatusNotFound, "no_active_ledger", "no active billing account", nil)
	case errors.Is(err, ErrPlanNotFound):
		respond.Error(c, http.StatusBadRequest, "plan_not_found", "plan not available", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", fallback, nil)
	}
}
