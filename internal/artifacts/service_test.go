package artifacts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/shared/server/middleware"
)

func newServiceFixture(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	ar := analyses.NewMemoryRepo()
	err := ar.Create(context.Background(), analyses.NewAnalysis{Analysis: analyses.Analysis{
		ID: "a-1", OwnerID: "owner-1", Name: "Login", TargetURL: "https://x.test",
		Status: analyses.StatusDraft, CreatedAt: testNow,
	}}, nil)
	require.NoError(t, err)
	repo := NewMemoryRepo()
	return NewService(repo, ar), repo
}

func TestServiceEnforcesOwnership(t *testing.T) {
	svc, repo := newServiceFixture(t)
	_, err := repo.CreateDocumentation(context.Background(), newDoc("d-1", ""))
	require.NoError(t, err)

	_, err = svc.LatestDocumentation(context.Background(), "intruder", "a-1")
	require.ErrorIs(t, err, analyses.ErrNotFound)

	err = svc.SoftDelete(context.Background(), "intruder", KindDocumentation, "a-1", "d-1")
	require.ErrorIs(t, err, analyses.ErrNotFound)

	doc, err := svc.LatestDocumentation(context.Background(), "owner-1", "a-1")
	require.NoError(t, err)
	require.Equal(t, "d-1", doc.ID)
}

func TestServiceValidatesEdits(t *testing.T) {
	svc, repo := newServiceFixture(t)
	_, _ = repo.CreateDocumentation(context.Background(), newDoc("d-1", ""))

	_, err := svc.UpdateDocumentation(context.Background(), "owner-1", "a-1", DocumentationEdit{})
	require.ErrorIs(t, err, ErrInvalidEdit)

	bad := "published"
	_, err = svc.UpdateDocumentation(context.Background(), "owner-1", "a-1", DocumentationEdit{Status: &bad})
	require.ErrorIs(t, err, ErrInvalidEdit)

	status := StatusReviewed
	doc, err := svc.UpdateDocumentation(context.Background(), "owner-1", "a-1", DocumentationEdit{Status: &status})
	require.NoError(t, err)
	require.Equal(t, StatusReviewed, doc.Status)
	require.Equal(t, 2, doc.Version)
}

func TestHandlerDocumentationRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, repo := newServiceFixture(t)
	_, _ = repo.CreateDocumentation(context.Background(), newDoc("d-1", ""))

	router := gin.New()
	router.Use(middleware.Auth(nil, true))
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-User-Id", "owner-1")
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	resp := do(http.MethodPut, "/api/v1/analyses/a-1/documentation", `{"content":"# New","contentFormat":"text"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var doc Documentation
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &doc))
	require.Equal(t, GeneratedByUser, doc.GeneratedBy)
	require.Equal(t, FormatText, doc.ContentFormat)
	require.Contains(t, resp.Body.String(), `"analysisId":"a-1"`)
	require.Contains(t, resp.Body.String(), `"generatedBy":"user"`)
	require.NotContains(t, resp.Body.String(), `"analysis_id"`)

	resp = do(http.MethodDelete, "/api/v1/analyses/a-1/documentation/d-1", "")
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = do(http.MethodGet, "/api/v1/analyses/a-1/documentation/latest", "")
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(http.MethodPost, "/api/v1/analyses/a-1/documentation/d-1/restore", "")
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = do(http.MethodGet, "/api/v1/analyses/a-1/documentation?includeDeleted=true", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"version":2`)
}
