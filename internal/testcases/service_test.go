package testcases

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

func newServiceFixture(t *testing.T) (*Service, []TestCase) {
	t.Helper()
	ar := analyses.NewMemoryRepo()
	err := ar.Create(context.Background(), analyses.NewAnalysis{Analysis: analyses.Analysis{
		ID: "a-1", OwnerID: "owner-1", Name: "Login", TargetURL: "https://x.test",
		Status: analyses.StatusDraft, CreatedAt: testNow,
	}}, nil)
	require.NoError(t, err)
	repo := newTestRepo()
	created, err := repo.CreateBatch(context.Background(), newBatch("job-1", "Empty password", "Wrong password"))
	require.NoError(t, err)
	return NewService(repo, ar), created
}

func TestServiceValidatesUpdate(t *testing.T) {
	svc, created := newServiceFixture(t)
	ctx := context.Background()

	priority := "urgent"
	status := "done"
	steps := []StepInput{{Order: 1, Action: "  "}, {Order: 2, Action: "Click", StepType: "wait"}}
	_, err := svc.Update(ctx, "owner-1", "a-1", created[0].ID, Update{Priority: &priority, Status: &status, Steps: &steps})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "priority")
	require.Contains(t, verr.Fields, "status")
	require.Contains(t, verr.Fields, "steps[0].action")
	require.Contains(t, verr.Fields, "steps[1].stepType")

	_, err = svc.Get(ctx, "intruder", "a-1", created[0].ID)
	require.ErrorIs(t, err, analyses.ErrNotFound)
}

func TestHandlerTestCaseRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, created := newServiceFixture(t)

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
	casePath := "/api/v1/analyses/a-1/test-cases/" + created[0].ID

	resp := do(http.MethodPut, casePath, `{"steps":[{"id":"`+created[1].Steps[0].ID+`","order":1,"action":"x"}]}`)
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	require.Contains(t, resp.Body.String(), "foreign_step_reference")

	resp = do(http.MethodPut, casePath, `{"priority":"high","steps":[{"order":1,"action":"Open form","expectedResult":"Form shown"}]}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var tc TestCase
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &tc))
	require.Equal(t, "high", tc.Priority)
	require.Len(t, tc.Steps, 1)
	require.Equal(t, created[0].Steps[0].ID, tc.Steps[0].ID)
	require.Equal(t, "Form shown", tc.Steps[0].ExpectedResult)
	require.Contains(t, resp.Body.String(), `"testCaseId":"`+created[0].ID+`"`)
	require.NotContains(t, resp.Body.String(), `"expected_result"`)

	resp = do(http.MethodDelete, casePath, "")
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = do(http.MethodGet, "/api/v1/analyses/a-1/test-cases", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotContains(t, resp.Body.String(), created[0].ID)

	resp = do(http.MethodPost, casePath+"/restore", "")
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = do(http.MethodGet, casePath, "")
	require.Equal(t, http.StatusOK, resp.Code)
}
