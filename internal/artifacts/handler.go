package artifacts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/shared/server/middleware"
	"smartqa-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the artifacts service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches documentation and script routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses/:id/documentation", h.listDocumentation)
	rg.GET("/analyses/:id/documentation/latest", h.latestDocumentation)
	rg.PUT("/analyses/:id/documentation", h.updateDocumentation)
	rg.DELETE("/analyses/:id/documentation/:artifactId", h.softDelete(KindDocumentation))
	rg.POST("/analyses/:id/documentation/:artifactId/restore", h.restore(KindDocumentation))

	rg.GET("/analyses/:id/scripts", h.listScripts)
	rg.GET("/analyses/:id/scripts/latest", h.latestScript)
	rg.DELETE("/analyses/:id/scripts/:artifactId", h.softDelete(KindScript))
	rg.POST("/analyses/:id/scripts/:artifactId/restore", h.restore(KindScript))
}

func (h *Handler) listDocumentation(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	docs, err := h.Svc.ListDocumentation(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), c.Query("includeDeleted") == "true")
	if err != nil {
		WriteError(c, err, "failed to list documentation")
		return
	}
	respond.OK(c, gin.H{"items": docs})
}

func (h *Handler) latestDocumentation(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	doc, err := h.Svc.LatestDocumentation(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		WriteError(c, err, "failed to load documentation")
		return
	}
	respond.OK(c, doc)
}

func (h *Handler) updateDocumentation(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	var edit DocumentationEdit
	if err := c.ShouldBindJSON(&edit); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	doc, err := h.Svc.UpdateDocumentation(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), edit)
	if err != nil {
		WriteError(c, err, "failed to update documentation")
		return
	}
	respond.OK(c, doc)
}

func (h *Handler) listScripts(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	scripts, err := h.Svc.ListScripts(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), c.Query("includeDeleted") == "true")
	if err != nil {
		WriteError(c, err, "failed to list scripts")
		return
	}
	respond.OK(c, gin.H{"items": scripts})
}

func (h *Handler) latestScript(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	script, err := h.Svc.LatestScript(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		WriteError(c, err, "failed to load script")
		return
	}
	respond.OK(c, script)
}

func (h *Handler) softDelete(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("analysisId", c.Param("id"))
		if err := h.Svc.SoftDelete(c.Request.Context(), middleware.UserIDFromContext(c), kind, c.Param("id"), c.Param("artifactId")); err != nil {
			WriteError(c, err, "failed to delete artifact")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) restore(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("analysisId", c.Param("id"))
		if err := h.Svc.Restore(c.Request.Context(), middleware.UserIDFromContext(c), kind, c.Param("id"), c.Param("artifactId")); err != nil {
			WriteError(c, err, "failed to restore artifact")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// WriteError maps artifact errors to HTTP responses.
func WriteError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, analyses.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "artifact not found", nil)
	case errors.Is(err, ErrInvalidEdit):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", fallback, nil)
	}
}
