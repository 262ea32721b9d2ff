package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/internal/config"
	apperrors "go-scantron-grader/internal/errors"
	"go-scantron-grader/internal/service"
	"go-scantron-grader/pkg/models"
	"go-scantron-grader/pkg/services"
)

type stubService struct {
	urlReq     service.URLBatchRequest
	resolved   []int
	resolveReq service.ResolveRequest
	resolveErr error
	book       *models.GradeBook
}

func (s *stubService) GradeBatch(context.Context, service.BatchRequest) (*service.BatchResult, error) {
	return nil, apperrors.NewInternalError("not used", nil)
}

func (s *stubService) GradeURLs(_ context.Context, req service.URLBatchRequest) (*service.BatchResult, error) {
	s.urlReq = req
	book := models.NewGradeBook(req.AssignmentID)
	book.Revision = 1
	return &service.BatchResult{
		BatchID:      "b-1",
		AssignmentID: req.AssignmentID,
		Records: []models.GradeRecord{
			{StudentID: "S1", Percentage: 100},
			{StudentID: "S2", Percentage: 40, NeedsReview: true},
		},
		Unidentified: []models.UnidentifiedPage{{PageNumber: 3, Reason: models.ReasonUnidentified}},
		Book:         book,
	}, nil
}

func (s *stubService) ResolvePage(_ context.Context, assignmentID string, page int, req service.ResolveRequest) (*models.GradeRecord, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	s.resolved = append(s.resolved, page)
	s.resolveReq = req
	return &models.GradeRecord{StudentID: req.StudentID, AssignmentID: assignmentID, Source: models.SourceManual}, nil
}

func (s *stubService) GradeBook(_ context.Context, assignmentID string) (*models.GradeBook, error) {
	if s.book != nil {
		return s.book, nil
	}
	return models.NewGradeBook(assignmentID), nil
}

func (s *stubService) Unidentified(ctx context.Context, assignmentID string) ([]models.UnidentifiedPage, error) {
	book, _ := s.GradeBook(ctx, assignmentID)
	return book.Unidentified, nil
}

func newTestHandler(t *testing.T, svc *stubService) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		RequestTimeout:     time.Second,
		BatchTimeout:       time.Second,
		MaxRequestBodySize: 1024,
	}
	h, err := NewHandler(svc, services.NewReportService(svc, 0), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	return h
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := do(newTestHandler(t, &stubService{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"available"`)
}

func TestGradeBatchEndpoint(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	body := `{"page_urls":["https://scans.example.com/1.png","https://scans.example.com/2.png"],
		"roster":[{"studentId":"S1","name":" Ada Lovelace "}],"default_version_id":"V1"}`
	w := do(h, http.MethodPost, "/assignments/A1/batches", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "b-1", resp.BatchID)
	assert.Equal(t, 2, resp.Graded)
	assert.Equal(t, 1, resp.Unidentified)
	assert.Equal(t, 1, resp.NeedsReview)
	assert.Equal(t, int64(1), resp.Revision)

	assert.Equal(t, "A1", svc.urlReq.AssignmentID)
	assert.Equal(t, "V1", svc.urlReq.DefaultVersionID)
	assert.Equal(t, []models.RosterEntry{{StudentID: "S1", Name: "Ada Lovelace"}}, svc.urlReq.Roster)
}

func TestGradeBatchEndpoint_BadRequests(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	tests := map[string]string{
		"not json":          `{`,
		"no pages":          `{"page_urls":[]}`,
		"blank page":        `{"page_urls":[""]}`,
		"duplicate student": `{"page_urls":["https://x/1.png"],"roster":[{"studentId":"S1","name":"A"},{"studentId":"S1","name":"B"}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(h, http.MethodPost, "/assignments/A1/batches", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	big := `{"page_urls":["` + strings.Repeat("a", 2048) + `"]}`
	w := do(h, http.MethodPost, "/assignments/A1/batches", big)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveEndpoint(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	w := do(h, http.MethodPost, "/assignments/A1/unidentified/7/resolve", `{"student_id":"S42"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []int{7}, svc.resolved)
	assert.Contains(t, w.Body.String(), `"studentId":"S42"`)

	w = do(h, http.MethodPost, "/assignments/A1/unidentified/x/resolve", `{"student_id":"S42"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(h, http.MethodPost, "/assignments/A1/unidentified/7/resolve", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodPost, "/assignments/A1/unidentified/7/resolve", `{"student_id":"S42","batch_id":" b-2 "}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "b-2", svc.resolveReq.BatchID)

	svc.resolveErr = apperrors.NewNotFoundError("page 8 is not pending", nil)
	w = do(h, http.MethodPost, "/assignments/A1/unidentified/8/resolve", `{"student_id":"S42"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.resolveErr = apperrors.NewConflictError("page 7 is pending in several batches", nil)
	w = do(h, http.MethodPost, "/assignments/A1/unidentified/7/resolve", `{"student_id":"S42"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReadEndpoints(t *testing.T) {
	name := "Ada"
	book := models.NewGradeBook("A1")
	book.Records = []models.GradeRecord{{StudentID: "S1", Percentage: 92}}
	book.Unidentified = []models.UnidentifiedPage{{PageNumber: 4, OCRStudentName: &name}}
	h := newTestHandler(t, &stubService{book: book})

	w := do(h, http.MethodGet, "/assignments/A1/grades", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"studentId":"S1"`)

	w = do(h, http.MethodGet, "/assignments/A1/unidentified", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pageNumber":4`)

	w = do(h, http.MethodGet, "/assignments/A1/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rep models.AssignmentReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "Ada", rep.Pending[0].OCRStudentName)
	assert.Equal(t, 1, rep.Distribution[0].Count)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	do(h, http.MethodGet, "/health", "")

	w := do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `scantron_http_requests_total{endpoint="/health",method="GET",status="200"} 1`)
}

func TestDetermineStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusConflict, determineStatusCode(apperrors.NewConflictError("x", nil)))
	assert.Equal(t, http.StatusGatewayTimeout, determineStatusCode(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, determineStatusCode(bytes.ErrTooLarge))
}
