package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/spf13/cobra"

	"github.com/flanksource/commons/logger"
	appconfig "github.com/flanksource/lintsvc/config"
	"github.com/flanksource/lintsvc/internal/cache"
	"github.com/flanksource/lintsvc/internal/db"
	"github.com/flanksource/lintsvc/internal/jobs"
	"github.com/flanksource/lintsvc/internal/metrics"
	"github.com/flanksource/lintsvc/internal/orchestrator"
	"github.com/flanksource/lintsvc/internal/registry"
	"github.com/flanksource/lintsvc/internal/runner"
	"github.com/flanksource/lintsvc/internal/server"
	"github.com/flanksource/lintsvc/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lint-as-a-service HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg := appconfig.Load()

	if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
		logger.Warnf("failed to start gops diagnostics agent: %v", err)
	}
	defer agent.Close()

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	quotas := workspace.Quotas{
		MaxSingleFileBytes: cfg.MaxSingleFileBytes,
		MaxArchiveBytes:    cfg.MaxArchiveBytes,
		MaxFileCount:       cfg.MaxFileCount,
	}
	workspaces, err := workspace.NewManager(cfg.WorkspaceDir, quotas, cfg.WorkspaceTTL)
	if err != nil {
		return err
	}

	reg := registry.New()
	r := runner.New(reg)
	cacheSvc := cache.New(database)
	orch := orchestrator.New(workspaces, reg, r, cacheSvc)

	jobCfg := jobs.Config{MaxConcurrentJobs: cfg.MaxConcurrentJobs, JobTimeoutMs: cfg.JobTimeoutMs}
	jobMgr := jobs.New(jobCfg, database, orch)
	jobMgr.Start()
	defer jobMgr.Stop()

	m := metrics.New()
	srv := server.New(orch, jobMgr, cacheSvc, reg, r, database, m)

	stopCacheCleanup := cacheSvc.StartCleanupTimer(cfg.CleanupInterval)
	defer stopCacheCleanup()

	stopWorkspaceCleanup := startWorkspaceCleanupTimer(workspaces, cfg.WorkspaceTTL, cfg.CleanupInterval)
	defer stopWorkspaceCleanup()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Infof("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func startWorkspaceCleanupTimer(workspaces *workspace.Manager, ttl, interval time.Duration) func() {
	stop := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := workspaces.CleanupExpired(ttl); err != nil {
					logger.Warnf("workspace cleanup sweep failed: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
