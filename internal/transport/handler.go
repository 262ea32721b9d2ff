package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-scantron-grader/internal/config"
	apperrors "go-scantron-grader/internal/errors"
	"go-scantron-grader/internal/logger"
	"go-scantron-grader/internal/repository"
	"go-scantron-grader/internal/service"
	"go-scantron-grader/pkg/models"
	"go-scantron-grader/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

// NewHandler builds the HTTP API. reg receives the request metrics and is
// served on /metrics.
func NewHandler(svc service.GradingService, reports *services.ReportService, cfg *config.Config, reg *prometheus.Registry) (http.Handler, error) {
	metrics, err := NewHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}

	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		metrics.Middleware(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", prometheusHandler(reg))

	a := r.Group("/assignments/:assignmentID")
	a.POST("/batches", gradeBatch(svc, cfg))
	a.GET("/grades", gradeBook(svc))
	a.GET("/unidentified", unidentified(svc))
	a.POST("/unidentified/:pageNumber/resolve", resolvePage(svc, cfg))
	a.GET("/report", report(reports))

	return r, nil
}

func assignmentID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("assignmentID"))
	if id == "" {
		respondError(c, http.StatusBadRequest, "invalid assignment", apperrors.NewValidationError("assignment id is required", nil))
		return "", false
	}
	return id, true
}

func gradeBatch(svc service.GradingService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.BatchTimeout)
		defer cancel()

		id, ok := assignmentID(c)
		if !ok {
			return
		}

		// Log request start
		logger.WithFields(logrus.Fields{
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"assignment_id": id,
			"ip":            c.ClientIP(),
		}).Info("Processing grading batch request")

		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		roster, err := repository.ValidateRoster(req.Roster)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid roster", err)
			return
		}

		result, err := svc.GradeURLs(ctx, service.URLBatchRequest{
			AssignmentID:     id,
			PageURLs:         req.PageURLs,
			Roster:           roster,
			DefaultVersionID: req.DefaultVersionID,
		})
		if err != nil {
			respondError(c, determineStatusCode(err), "grading batch failed", err)
			return
		}

		resp := models.BatchResponse{
			BatchID:           result.BatchID,
			AssignmentID:      id,
			Timestamp:         time.Now().UTC().Format(time.RFC3339),
			ProcessingTimeSec: time.Since(startTime).Seconds(),
			Graded:            len(result.Records),
			Unidentified:      len(result.Unidentified),
			Revision:          result.Book.Revision,
			Records:           result.Records,
			Pending:           result.Unidentified,
			Stats:             result.Book.Stats,
		}
		for _, r := range result.Records {
			if r.NeedsReview {
				resp.NeedsReview++
			}
		}

		logger.WithFields(logrus.Fields{
			"assignment_id":      id,
			"batch_id":           result.BatchID,
			"graded":             resp.Graded,
			"unidentified":       resp.Unidentified,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Grading batch completed successfully")

		c.JSON(http.StatusOK, resp)
	}
}

func gradeBook(svc service.GradingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := assignmentID(c)
		if !ok {
			return
		}
		book, err := svc.GradeBook(c.Request.Context(), id)
		if err != nil {
			respondError(c, determineStatusCode(err), "failed to load grades", err)
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

func unidentified(svc service.GradingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := assignmentID(c)
		if !ok {
			return
		}
		pages, err := svc.Unidentified(c.Request.Context(), id)
		if err != nil {
			respondError(c, determineStatusCode(err), "failed to load unidentified pages", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"assignment_id": id, "pages": pages})
	}
}

func resolvePage(svc service.GradingService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		id, ok := assignmentID(c)
		if !ok {
			return
		}
		page, err := strconv.Atoi(c.Param("pageNumber"))
		if err != nil || page < 1 {
			respondError(c, http.StatusBadRequest, "invalid page number", apperrors.NewValidationError("page number must be a positive integer", err))
			return
		}

		var req models.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		record, err := svc.ResolvePage(ctx, id, page, service.ResolveRequest{
			StudentID: strings.TrimSpace(req.StudentID),
			VersionID: strings.TrimSpace(req.VersionID),
			BatchID:   strings.TrimSpace(req.BatchID),
		})
		if err != nil {
			respondError(c, determineStatusCode(err), "failed to resolve page", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"assignment_id": id,
			"page":          page,
			"student_id":    record.StudentID,
		}).Info("Unidentified page resolved")
		c.JSON(http.StatusOK, record)
	}
}

func report(reports *services.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := assignmentID(c)
		if !ok {
			return
		}
		rep, err := reports.Report(c.Request.Context(), id)
		if err != nil {
			respondError(c, determineStatusCode(err), "failed to build report", err)
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
