// Package server is the thin HTTP transport for the orchestrator: gin
// handlers that decode requests, call into internal/orchestrator,
// internal/jobs, and internal/cache, and serialize the documented
// response envelopes. Routing and request parsing sit at the
// collaborator boundary the specification calls out as external; these
// handlers carry no business logic of their own.
package server

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/lintsvc/internal/cache"
	"github.com/flanksource/lintsvc/internal/db"
	"github.com/flanksource/lintsvc/internal/jobs"
	"github.com/flanksource/lintsvc/internal/metrics"
	"github.com/flanksource/lintsvc/internal/models"
	"github.com/flanksource/lintsvc/internal/orchestrator"
	"github.com/flanksource/lintsvc/internal/registry"
	"github.com/flanksource/lintsvc/internal/runner"
)

// Server bundles every collaborator the HTTP surface needs.
type Server struct {
	engine       *gin.Engine
	orchestrator *orchestrator.Orchestrator
	jobs         *jobs.Manager
	cacheSvc     *cache.Service
	registry     *registry.Registry
	runner       *runner.Runner
	database     *db.DB
	metrics      *metrics.Metrics
	startedAt    time.Time
}

// New builds a Server and registers every route from the external
// interfaces section.
func New(orch *orchestrator.Orchestrator, jobMgr *jobs.Manager, cacheSvc *cache.Service, reg *registry.Registry, r *runner.Runner, database *db.DB, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:       engine,
		orchestrator: orch,
		jobs:         jobMgr,
		cacheSvc:     cacheSvc,
		registry:     reg,
		runner:       r,
		database:     database,
		metrics:      m,
		startedAt:    time.Now(),
	}

	engine.Use(s.recordMetrics)

	engine.POST("/:linter/:format/async", s.handleAsync)
	engine.POST("/:linter/:format", s.handleSync)
	engine.GET("/:linter/:format/:encoded", s.handleGetEncoded)
	engine.GET("/jobs/:job_id", s.handleGetJob)
	engine.DELETE("/jobs/:job_id", s.handleCancelJob)
	engine.GET("/linters", s.handleListLinters)
	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", s.handleMetrics)
	engine.GET("/metrics/prometheus", gin.WrapH(promhttp.Handler()))
	engine.DELETE("/cache", s.handleDeleteCache)

	return s
}

// Handler exposes the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

// syncRequestBody is the decoded shape of a POST body: either content or
// a base-64 archive, with optional per-request options.
type syncRequestBody struct {
	Content  *string        `json:"content"`
	Filename string         `json:"filename"`
	Archive  *string        `json:"archive"`
	Options  models.Options `json:"options"`
}

func writeError(c *gin.Context, status int, err error) {
	appErr := models.AsAppError(err)
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":       string(appErr.Kind),
			"message":    appErr.Message,
			"details":    appErr.Details,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"request_id": c.GetString("request_id"),
		},
	})
}

// httpStatusFor maps an ErrorKind to its documented HTTP status.
func httpStatusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrValidation, models.ErrInvalidParameters, models.ErrUnsupportedFormat:
		return http.StatusBadRequest
	case models.ErrContentTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.ErrLinterNotFound, models.ErrLinterExecution, models.ErrWorkspace, models.ErrJobAlreadyCancelled:
		return http.StatusUnprocessableEntity
	case models.ErrTimeout:
		return http.StatusRequestTimeout
	case models.ErrJobNotFound:
		return http.StatusNotFound
	case models.ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case models.ErrCache, models.ErrDatabase, models.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSync(c *gin.Context) {
	linter := c.Param("linter")
	format := models.Format(c.Param("format"))

	req, err := decodeSyncBody(c)
	if err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}
	req.Linter = linter
	req.Format = format

	s.runSync(c, req)
}

func decodeSyncBody(c *gin.Context) (orchestrator.Request, error) {
	contentType := c.ContentType()
	if contentType == "application/json" {
		var body syncRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return orchestrator.Request{}, models.NewAppError(models.ErrValidation, "invalid request body", err)
		}
		return bodyToRequest(body)
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return orchestrator.Request{}, models.NewAppError(models.ErrValidation, "failed to read request body", err)
	}
	if len(raw) == 0 {
		return orchestrator.Request{}, models.NewAppError(models.ErrValidation, "request has neither content nor archive", nil)
	}
	return orchestrator.Request{Content: raw, Options: models.Options{}}, nil
}

func bodyToRequest(body syncRequestBody) (orchestrator.Request, error) {
	req := orchestrator.Request{Options: body.Options, Filename: body.Filename}
	switch {
	case body.Archive != nil:
		raw, err := base64.StdEncoding.DecodeString(*body.Archive)
		if err != nil {
			return orchestrator.Request{}, models.NewAppError(models.ErrValidation, "invalid base64 archive", err)
		}
		req.Archive = raw
	case body.Content != nil:
		req.Content = []byte(*body.Content)
	default:
		return orchestrator.Request{}, models.NewAppError(models.ErrValidation, "request has neither content nor archive", nil)
	}
	return req, nil
}

func (s *Server) runSync(c *gin.Context, req orchestrator.Request) {
	result, err := s.orchestrator.Execute(c.Request.Context(), req)
	if err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}

	c.Set("cache_hit", result.CacheHit)
	c.Set("linter", req.Linter)
	c.Set("format", string(req.Format))

	if req.Format == models.FormatText {
		c.JSON(http.StatusOK, gin.H{
			"success":           result.Execution.Success,
			"output":            result.Execution.Output,
			"errors":            result.Execution.Errors,
			"exit_code":         result.Execution.ExitCode,
			"execution_time_ms": result.Execution.ExecutionTimeMs,
			"cache_hit":         result.CacheHit,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           result.Execution.Success,
		"exit_code":         result.Execution.ExitCode,
		"execution_time_ms": result.Execution.ExecutionTimeMs,
		"file_count":        result.Execution.FileCount,
		"issues":            result.Execution.Issues,
		"parsed_output":     result.Execution.ParsedOutput,
		"cache_hit":         result.CacheHit,
	})
}

// handleGetEncoded implements the Kroki-style GET form: the content is a
// URL path segment holding base-64-encoded raw-deflate-compressed bytes.
func (s *Server) handleGetEncoded(c *gin.Context) {
	linter := c.Param("linter")
	format := models.Format(c.Param("format"))
	encoded := c.Param("encoded")

	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		writeError(c, http.StatusBadRequest, models.NewAppError(models.ErrValidation, "invalid base64 path segment", err))
		return
	}

	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	content, err := io.ReadAll(fr)
	if err != nil {
		writeError(c, http.StatusBadRequest, models.NewAppError(models.ErrValidation, "invalid raw-deflate payload", err))
		return
	}

	s.runSync(c, orchestrator.Request{Linter: linter, Format: format, Content: content})
}

func (s *Server) handleAsync(c *gin.Context) {
	linter := c.Param("linter")
	format := models.Format(c.Param("format"))

	req, err := decodeSyncBody(c)
	if err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}
	req.Linter = linter
	req.Format = format

	if _, err := s.orchestrator.Validate(linter, format); err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}

	jobID, err := s.jobs.SubmitJob(req)
	if err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":    true,
		"job_id":     jobID,
		"status":     "pending",
		"status_url": "/jobs/" + jobID,
		"cancel_url": "/jobs/" + jobID,
	})
}

func (s *Server) handleGetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	record, err := s.jobs.GetJobStatus(jobID)
	if err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}
	if record == nil {
		writeError(c, http.StatusNotFound, models.NewAppError(models.ErrJobNotFound, "job not found: "+jobID, nil))
		return
	}
	c.JSON(http.StatusOK, jobToResponse(record))
}

func jobToResponse(record *models.JobRecord) gin.H {
	body := gin.H{
		"job_id":     record.JobID,
		"linter":     record.LinterType,
		"format":     record.Format,
		"status":     record.Status,
		"created_at": record.CreatedAt,
	}
	if record.StartedAt != nil {
		body["started_at"] = record.StartedAt
	}
	if record.CompletedAt != nil {
		body["completed_at"] = record.CompletedAt
	}
	if record.ExecutionTimeMs > 0 {
		body["execution_time_ms"] = record.ExecutionTimeMs
	}
	if record.Status == models.JobCompleted && record.ResultJSON != "" {
		var result models.ExecutionResult
		if err := json.Unmarshal([]byte(record.ResultJSON), &result); err == nil {
			body["result"] = result
		}
	}
	if record.Status == models.JobFailed && record.ErrorMessage != "" {
		body["error_message"] = record.ErrorMessage
	}
	return body
}

func (s *Server) handleCancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	cancelled, err := s.jobs.CancelJob(jobID)
	if err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}
	if !cancelled {
		writeError(c, http.StatusUnprocessableEntity,
			models.NewAppError(models.ErrJobAlreadyCancelled, "job already in a terminal state: "+jobID, nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) handleListLinters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"linters": s.runner.GetAllLinterStatus()})
}

// handleMetrics returns the JSON summary documented at GET /metrics:
// cache hit rate, job counts by state, the running-jobs snapshot, and
// process memory/uptime. The Prometheus exposition format lives
// separately at GET /metrics/prometheus for scrapers.
func (s *Server) handleMetrics(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	running, err := s.jobs.GetRunningJobs()
	if err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cache":        s.cacheSvc.GetStats(),
		"cache_hits":   s.cacheSvc.GetHitMissStats(),
		"jobs":         s.jobs.GetJobStats(),
		"running_jobs": running,
		"process": gin.H{
			"uptime_ms":   time.Since(s.startedAt).Milliseconds(),
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"num_goroutine": runtime.NumGoroutine(),
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if sqlDB, err := s.database.Read().DB(); err != nil || sqlDB.Ping() != nil {
		checks["database"] = "fail"
		healthy = false
	} else {
		checks["database"] = "ok"
	}
	checks["filesystem"] = "ok"

	statuses := s.runner.GetAllLinterStatus()
	available := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if st.Available {
			available = append(available, st.Name)
		}
	}
	checks["linters"] = "ok"

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": checks,
		"linters": gin.H{
			"total":           len(statuses),
			"available_count": len(available),
			"available":       available,
		},
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
	})
}

func (s *Server) handleDeleteCache(c *gin.Context) {
	if err := s.cacheSvc.Invalidate("", ""); err != nil {
		writeError(c, httpStatusFor(models.AsAppError(err).Kind), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// recordMetrics assigns a request id, records the Prometheus
// observation for every request, and persists an audit row per the
// Database collaborator's api_metrics table.
func (s *Server) recordMetrics(c *gin.Context) {
	requestID := uuid.New().String()
	c.Set("request_id", requestID)
	start := time.Now()

	c.Next()

	elapsed := time.Since(start)
	cacheHit, _ := c.Get("cache_hit")
	cacheHitBool, _ := cacheHit.(bool)
	linter, _ := c.Get("linter")
	format, _ := c.Get("format")

	s.metrics.Observe(c.FullPath(), c.Request.Method, c.Writer.Status(), elapsed)

	record := models.MetricRecord{
		Endpoint:       c.FullPath(),
		Method:         c.Request.Method,
		StatusCode:     c.Writer.Status(),
		ResponseTimeMs: elapsed.Milliseconds(),
		CacheHit:       cacheHitBool,
		CreatedAt:      time.Now(),
	}
	if l, ok := linter.(string); ok {
		record.LinterType = l
	}
	if f, ok := format.(string); ok {
		record.Format = f
	}
	if err := s.database.Write().Create(&record).Error; err != nil {
		logger.Debugf("failed to persist api_metrics row: %v", err)
	}
}
