package testcases

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/shared/server/middleware"
	"smartqa-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the test case service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches test case routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses/:id/test-cases", h.list)
	rg.GET("/analyses/:id/test-cases/:caseId", h.get)
	rg.PUT("/analyses/:id/test-cases/:caseId", h.update)
	rg.DELETE("/analyses/:id/test-cases/:caseId", h.softDelete)
	rg.POST("/analyses/:id/test-cases/:caseId/restore", h.restore)
}

func (h *Handler) list(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	cases, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), c.Query("includeDeleted") == "true")
	if err != nil {
		WriteError(c, err, "failed to list test cases")
		return
	}
	respond.OK(c, gin.H{"items": cases})
}

func (h *Handler) get(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	tc, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), c.Param("caseId"))
	if err != nil {
		WriteError(c, err, "failed to load test case")
		return
	}
	respond.OK(c, tc)
}

func (h *Handler) update(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	var upd Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	tc, err := h.Svc.Update(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), c.Param("caseId"), upd)
	if err != nil {
		WriteError(c, err, "failed to update test case")
		return
	}
	respond.OK(c, tc)
}

func (h *Handler) softDelete(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	if err := h.Svc.SoftDelete(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), c.Param("caseId")); err != nil {
		WriteError(c, err, "failed to delete test case")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) restore(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	if err := h.Svc.Restore(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), c.Param("caseId")); err != nil {
		WriteError(c, err, "failed to restore test case")
		return
	}
	c.Status(http.StatusNoContent)
}

// WriteError maps test case errors to HTTP responses.
func WriteError(c *gin.Context, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.Is(err, analyses.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "test case not found", nil)
	case errors.Is(err, ErrForeignStepReference):
		respond.Error(c, http.StatusConflict, "foreign_step_reference", err.Error(), nil)
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", verr.Error(), verr.Fields)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", fallback, nil)
	}
}
