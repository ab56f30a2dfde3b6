// Package orchestrator is the Request orchestrator: the pipeline shared
// by both synchronous and asynchronous (job-backed) requests — validate
// linter/format, materialize the workspace, consult the cache, invoke
// the runner on miss, persist the result, and always clean the
// workspace up regardless of outcome.
package orchestrator

import (
	"context"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/lintsvc/internal/cache"
	"github.com/flanksource/lintsvc/internal/models"
	"github.com/flanksource/lintsvc/internal/registry"
	"github.com/flanksource/lintsvc/internal/runner"
	"github.com/flanksource/lintsvc/internal/workspace"
)

// Request is the normalized shape of a lint request, agnostic of
// whether it arrived synchronously or via the job queue.
type Request struct {
	Linter   string
	Format   models.Format
	Content  []byte
	Filename string
	Archive  []byte
	Options  models.Options
}

// Result wraps the execution result together with whether it was served
// from cache.
type Result struct {
	Execution *models.ExecutionResult
	CacheHit  bool
}

// Orchestrator wires the Workspace Manager, Linter Registry, Linter
// Runner, and Cache Service into the single pipeline both the
// synchronous HTTP handler and the Job Manager drive.
type Orchestrator struct {
	workspaces *workspace.Manager
	registry   *registry.Registry
	runner     *runner.Runner
	cacheSvc   *cache.Service
}

// New builds an Orchestrator from its collaborators.
func New(workspaces *workspace.Manager, reg *registry.Registry, r *runner.Runner, cacheSvc *cache.Service) *Orchestrator {
	return &Orchestrator{workspaces: workspaces, registry: reg, runner: r, cacheSvc: cacheSvc}
}

// Validate checks the linter name and output format against the
// registry before any workspace work begins.
func (o *Orchestrator) Validate(linterName string, format models.Format) (models.Descriptor, error) {
	desc, ok := o.registry.Get(linterName)
	if !ok {
		return models.Descriptor{}, models.NewAppError(models.ErrInvalidParameters,
			"unknown linter: "+linterName, nil)
	}
	if !desc.SupportsFormat(format) {
		return models.Descriptor{}, models.NewAppError(models.ErrUnsupportedFormat,
			"linter "+linterName+" does not support format "+string(format), nil)
	}
	return desc, nil
}

// Execute runs the full pipeline for req: cache lookup, and on miss,
// workspace build, runner invocation, cache store, workspace cleanup.
// Cleanup always runs once a workspace was created, on every exit path.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	if _, err := o.Validate(req.Linter, req.Format); err != nil {
		return nil, err
	}

	var content []byte
	switch {
	case req.Archive != nil:
		content = req.Archive
	case req.Content != nil:
		content = req.Content
	default:
		return nil, models.NewAppError(models.ErrValidation, "request has neither content nor archive", nil)
	}

	contentHash := cache.GenerateContentHash(content)
	optionsHash := cache.GenerateOptionsHash(req.Options)

	if cached := o.cacheSvc.Get(contentHash, req.Linter, req.Format, optionsHash); cached != nil {
		return &Result{Execution: cached, CacheHit: true}, nil
	}

	ws, err := o.buildWorkspace(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := o.workspaces.Cleanup(ws.Path); cerr != nil {
			logger.Warnf("workspace cleanup failed for %s: %v", ws.Path, cerr)
		}
	}()

	execReq := models.ExecutionRequest{
		Linter:        req.Linter,
		Format:        req.Format,
		WorkspacePath: ws.Path,
		Options:       req.Options,
		TimeoutMs:     req.Options.TimeoutMs,
	}

	effectiveFiles := workspace.FilterFiles(ws.Files, req.Options.Normalize())
	if err := workspace.RemoveExcluded(ws.Path, ws.Files, effectiveFiles); err != nil {
		return nil, err
	}
	result, err := o.runner.Run(ctx, execReq, effectiveFiles)
	if err != nil {
		o.recordFailure(contentHash, req.Linter, req.Format, optionsHash, err)
		return nil, err
	}

	status := models.CacheStatusSuccess
	if !result.Success {
		status = models.CacheStatusError
	}
	if setErr := o.cacheSvc.Set(contentHash, req.Linter, req.Format, optionsHash, *result, status, "", 0); setErr != nil {
		return nil, setErr
	}

	return &Result{Execution: result, CacheHit: false}, nil
}

func (o *Orchestrator) recordFailure(contentHash, linter string, format models.Format, optionsHash string, execErr error) {
	status := models.CacheStatusError
	message := execErr.Error()
	if appErr := models.AsAppError(execErr); appErr.Kind == models.ErrTimeout {
		status = models.CacheStatusTimeout
	}
	empty := models.ExecutionResult{Success: false, Errors: []string{message}}
	if err := o.cacheSvc.Set(contentHash, linter, format, optionsHash, empty, status, message, 0.25); err != nil {
		logger.Warnf("failed to record failed execution in cache: %v", err)
	}
}

func (o *Orchestrator) buildWorkspace(req Request) (*models.Workspace, error) {
	if req.Archive != nil {
		return o.workspaces.CreateFromBuffer(req.Archive, "tar.gz")
	}
	return o.workspaces.CreateFromText(req.Content, req.Filename)
}
