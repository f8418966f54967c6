package analyses

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"smartqa-backend/internal/billing"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/shared/server/middleware"
	"smartqa-backend/internal/shared/server/respond"
)

const maxUploadBytes = 20 << 20

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes. triggerMW guards the stage triggers.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, triggerMW ...gin.HandlerFunc) {
	rg.POST("/analyses", chain(triggerMW, h.create)...)
	rg.GET("/analyses", h.list)
	rg.GET("/analyses/:id", h.get)
	rg.POST("/analyses/:id/explore", chain(triggerMW, h.trigger(queue.StageExplore))...)
	rg.POST("/analyses/:id/documentation", chain(triggerMW, h.trigger(queue.StageGenerateDocumentation))...)
	rg.POST("/analyses/:id/scripts", chain(triggerMW, h.trigger(queue.StageGenerateScripts))...)
}

func chain(mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}

func (h *Handler) create(c *gin.Context) {
	in, files, err := bindCreate(c)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	in.OwnerID = middleware.UserIDFromContext(c)
	in.RequestID = middleware.RequestIDFromContext(c)

	a, err := h.Svc.Create(c.Request.Context(), in)
	if err != nil {
		WriteError(c, err, "failed to create analysis")
		return
	}
	c.Set("analysisId", a.ID)
	respond.JSON(c, http.StatusCreated, a)
}

func bindCreate(c *gin.Context) (CreateInput, []multipart.File, error) {
	var in CreateInput
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&in); err != nil {
			return in, nil, errors.New("invalid request body")
		}
		return in, nil, nil
	}

	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		return in, nil, errors.New("invalid multipart body")
	}
	in.Name = c.PostForm("name")
	in.TargetURL = c.PostForm("targetUrl")
	in.Objective = c.PostForm("objective")
	in.ScreenContext = c.PostForm("screenContext")
	if raw := strings.TrimSpace(c.PostForm("credentials")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Credentials); err != nil {
			return in, nil, errors.New("credentials must be a JSON array")
		}
	}

	var opened []multipart.File
	if form := c.Request.MultipartForm; form != nil {
		for _, fh := range form.File["documents"] {
			f, err := fh.Open()
			if err != nil {
				for _, o := range opened {
					_ = o.Close()
				}
				return in, nil, errors.New("unreadable document")
			}
			opened = append(opened, f)
			in.Files = append(in.Files, Upload{
				FileName:  fh.Filename,
				MediaType: fh.Header.Get("Content-Type"),
				Body:      f,
			})
		}
	}
	return in, opened, nil
}

func (h *Handler) get(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	view, err := h.Svc.GetView(c.Request.Context(), c.Param("id"), middleware.UserIDFromContext(c))
	if err != nil {
		WriteError(c, err, "failed to fetch analysis")
		return
	}
	respond.OK(c, view)
}

func (h *Handler) list(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	items, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		WriteError(c, err, "failed to list analyses")
		return
	}
	respond.OK(c, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) trigger(stage queue.Stage) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("analysisId", c.Param("id"))
		c.Set("stage", string(stage))
		msg, err := h.Svc.TriggerStage(c.Request.Context(), c.Param("id"), middleware.UserIDFromContext(c), stage, middleware.RequestIDFromContext(c))
		if err != nil {
			WriteError(c, err, "failed to enqueue stage")
			return
		}
		c.Set("jobId", msg.JobID)
		respond.JSON(c, http.StatusAccepted, gin.H{
			"jobId":      msg.JobID,
			"stage":      msg.Stage,
			"analysisId": msg.AnalysisID,
		})
	}
}

// WriteError maps analysis and quota errors to the HTTP error envelope.
func WriteError(c *gin.Context, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid analysis request", verr.Fields)
	case errors.Is(err, billing.ErrQuotaExceeded):
		respond.Error(c, http.StatusPaymentRequired, "quota_exceeded", "You've reached your analysis limit for this cycle.", nil)
	case errors.Is(err, billing.ErrSubscriptionInactive):
		respond.Error(c, http.StatusPaymentRequired, "subscription_inactive", "Subscription is not active.", nil)
	case errors.Is(err, billing.ErrNoActiveLedger):
		respond.Error(c, http.StatusPaymentRequired, "no_active_ledger", "No active billing account.", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrNotExplored):
		respond.Error(c, http.StatusConflict, "not_explored", "run exploration before generating artifacts", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", fallback, nil)
	}
}
