package runs

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/shared/server/middleware"
	"smartqa-backend/internal/shared/server/respond"
)

// AnalysisReader enforces ownership before runs are listed.
type AnalysisReader interface {
	GetForOwner(ctx context.Context, analysisID, ownerID string) (analyses.Analysis, error)
}

// Handler exposes stage runs of an analysis.
type Handler struct {
	Repo     Repo
	Analyses AnalysisReader
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo, reader AnalysisReader) *Handler {
	return &Handler{Repo: repo, Analyses: reader}
}

// RegisterRoutes attaches the runs route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses/:id/runs", h.list)
}

func (h *Handler) list(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set("analysisId", analysisID)
	ctx := c.Request.Context()
	if _, err := h.Analyses.GetForOwner(ctx, analysisID, middleware.UserIDFromContext(c)); err != nil {
		if errors.Is(err, analyses.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to load analysis", nil)
		return
	}
	items, err := h.Repo.ListByAnalysis(ctx, analysisID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to list runs", nil)
		return
	}
	respond.OK(c, gin.H{"items": items})
}
