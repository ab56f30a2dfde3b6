// Package jobs is the Job Manager: a bounded-concurrency scheduler that
// persists every submission immediately and dispatches pending work
// FIFO by created_at as worker capacity frees up, running each
// dispatched job through the same pipeline as a synchronous request.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/lintsvc/internal/db"
	"github.com/flanksource/lintsvc/internal/models"
	"github.com/flanksource/lintsvc/internal/orchestrator"
)

// Config bounds the scheduler's behavior.
type Config struct {
	MaxConcurrentJobs int64
	JobTimeoutMs      int64
}

// DefaultConfig matches the small-default/generous-timeout guidance.
func DefaultConfig() Config {
	return Config{MaxConcurrentJobs: 4, JobTimeoutMs: 300_000}
}

// liveJob tracks a running job's cancellation hook and a channel closed
// once runJob has persisted its terminal state, so CancelJob can block
// until the child process has actually exited rather than racing it.
type liveJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stats mirrors getJobStats()'s response shape.
type Stats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// Manager is the Job Manager.
type Manager struct {
	cfg          Config
	database     *db.DB
	orchestrator *orchestrator.Orchestrator

	sem *semaphore.Weighted

	mu      sync.Mutex
	running map[string]*liveJob

	dispatchSignal chan struct{}
	stop           chan struct{}
	wg             sync.WaitGroup
}

// New builds a Manager and reconciles any orphaned `running` jobs left
// over from a previous, uncleanly-terminated process.
func New(cfg Config, database *db.DB, orch *orchestrator.Orchestrator) *Manager {
	m := &Manager{
		cfg:            cfg,
		database:       database,
		orchestrator:   orch,
		sem:            semaphore.NewWeighted(cfg.MaxConcurrentJobs),
		running:        make(map[string]*liveJob),
		dispatchSignal: make(chan struct{}, 1),
		stop:           make(chan struct{}),
	}
	m.reconcileOrphans()
	return m
}

// reconcileOrphans marks any job stuck in `running` whose started_at
// predates the job timeout as failed, per the startup-recovery
// requirement.
func (m *Manager) reconcileOrphans() {
	cutoff := time.Now().Add(-time.Duration(m.cfg.JobTimeoutMs) * time.Millisecond)
	result := m.database.Write().Model(&models.JobRecord{}).
		Where("status = ? AND started_at < ?", models.JobRunning, cutoff).
		Updates(map[string]any{
			"status":        models.JobFailed,
			"error_message": "orphaned: process restarted while job was running",
			"completed_at":  time.Now(),
		})
	if result.Error != nil {
		logger.Warnf("failed to reconcile orphaned jobs on startup: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		logger.Warnf("reconciled %d orphaned job(s) from a previous run", result.RowsAffected)
	}
}

// Start launches the dispatch loop. Stop must be called to release it.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.dispatchLoop()
}

// Stop halts the dispatch loop. In-flight jobs are not cancelled.
func (m *Manager) Stop() {
	close(m.stop)
	m.wg.Wait()
}

func newJobID() string {
	return fmt.Sprintf("job_%d_%d", time.Now().UnixMilli(), rand.Intn(1_000_000))
}

// SubmitJob persists a new pending job and wakes the dispatcher.
// Submission never blocks on worker capacity.
func (m *Manager) SubmitJob(req orchestrator.Request) (string, error) {
	optionsJSON, _ := json.Marshal(req.Options)

	record := models.JobRecord{
		JobID:       newJobID(),
		LinterType:  req.Linter,
		Format:      req.Format,
		Content:     string(req.Content),
		Filename:    req.Filename,
		OptionsJSON: string(optionsJSON),
		Status:      models.JobPending,
		CreatedAt:   time.Now(),
	}
	if req.Archive != nil {
		record.Archive = string(req.Archive)
	}

	if err := m.database.Write().Create(&record).Error; err != nil {
		return "", models.NewAppError(models.ErrDatabase, "failed to persist job", err)
	}

	m.signalDispatch()
	return record.JobID, nil
}

// GetJobStatus returns the job record, or nil if unknown.
func (m *Manager) GetJobStatus(jobID string) (*models.JobRecord, error) {
	var record models.JobRecord
	err := m.database.Read().Where("job_id = ?", jobID).First(&record).Error
	if err != nil {
		return nil, nil
	}
	return &record, nil
}

// CancelJob transitions a pending job directly to cancelled, or signals
// the runner to terminate a running job's process and blocks until that
// process has actually exited and runJob has persisted the terminal
// state — a job is only ever reported cancelled after its child has
// exited, never the instant the signal is sent. Cancelling a job already
// in a terminal state is a no-op that returns false.
func (m *Manager) CancelJob(jobID string) (bool, error) {
	var record models.JobRecord
	if err := m.database.Read().Where("job_id = ?", jobID).First(&record).Error; err != nil {
		return false, nil
	}
	if record.Status.IsTerminal() {
		return false, nil
	}

	if record.Status == models.JobPending {
		res := m.database.Write().Model(&models.JobRecord{}).
			Where("job_id = ? AND status = ?", jobID, models.JobPending).
			Updates(map[string]any{"status": models.JobCancelled, "completed_at": time.Now()})
		if res.Error != nil {
			return false, models.NewAppError(models.ErrDatabase, "failed to cancel job", res.Error)
		}
		return res.RowsAffected > 0, nil
	}

	m.mu.Lock()
	job, ok := m.running[jobID]
	m.mu.Unlock()
	if !ok {
		// runJob already finished (and persisted a terminal state) between
		// our read above and this lookup — nothing left to cancel.
		return false, nil
	}

	job.cancel()
	<-job.done

	var updated models.JobRecord
	if err := m.database.Read().Where("job_id = ?", jobID).First(&updated).Error; err != nil {
		return false, models.NewAppError(models.ErrDatabase, "failed to read job after cancel", err)
	}
	return updated.Status == models.JobCancelled, nil
}

// GetJobStats returns aggregated counts across every lifecycle state.
func (m *Manager) GetJobStats() Stats {
	var stats Stats
	counts := []struct {
		status models.JobStatus
		dest   *int64
	}{
		{models.JobPending, &stats.Pending},
		{models.JobRunning, &stats.Running},
		{models.JobCompleted, &stats.Completed},
		{models.JobFailed, &stats.Failed},
		{models.JobCancelled, &stats.Cancelled},
	}
	for _, c := range counts {
		m.database.Read().Model(&models.JobRecord{}).Where("status = ?", c.status).Count(c.dest)
	}
	return stats
}

// GetRunningJobs returns a snapshot of every job currently in flight.
func (m *Manager) GetRunningJobs() ([]models.JobRecord, error) {
	var records []models.JobRecord
	if err := m.database.Read().Where("status = ?", models.JobRunning).Find(&records).Error; err != nil {
		return nil, models.NewAppError(models.ErrDatabase, "failed to list running jobs", err)
	}
	return records, nil
}

func (m *Manager) signalDispatch() {
	select {
	case m.dispatchSignal <- struct{}{}:
	default:
	}
}

// dispatchLoop wakes on submission or a periodic tick, and moves as many
// pending jobs to running as semaphore capacity allows.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-m.dispatchSignal:
			m.dispatchPending()
		case <-ticker.C:
			m.dispatchPending()
		}
	}
}

func (m *Manager) dispatchPending() {
	for {
		if !m.sem.TryAcquire(1) {
			return
		}

		var record models.JobRecord
		err := m.database.Write().
			Where("status = ?", models.JobPending).
			Order("created_at ASC, job_id ASC").
			First(&record).Error
		if err != nil {
			m.sem.Release(1)
			return
		}

		res := m.database.Write().Model(&models.JobRecord{}).
			Where("job_id = ? AND status = ?", record.JobID, models.JobPending).
			Updates(map[string]any{"status": models.JobRunning, "started_at": time.Now()})
		if res.Error != nil || res.RowsAffected == 0 {
			// Lost the race to another dispatcher tick; try the next job.
			m.sem.Release(1)
			continue
		}

		m.wg.Add(1)
		go m.runJob(record)
	}
}

func (m *Manager) runJob(record models.JobRecord) {
	defer m.wg.Done()
	defer m.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(m.cfg.JobTimeoutMs)*time.Millisecond)
	done := make(chan struct{})
	m.mu.Lock()
	m.running[record.JobID] = &liveJob{cancel: cancel, done: done}
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.running, record.JobID)
		m.mu.Unlock()
		close(done)
	}()

	var options models.Options
	_ = json.Unmarshal([]byte(record.OptionsJSON), &options)

	req := orchestrator.Request{
		Linter:   record.LinterType,
		Format:   record.Format,
		Filename: record.Filename,
		Options:  options,
	}
	if record.Archive != "" {
		req.Archive = []byte(record.Archive)
	} else {
		req.Content = []byte(record.Content)
	}

	start := time.Now()
	result, err := m.orchestrator.Execute(ctx, req)
	elapsed := time.Since(start).Milliseconds()

	updates := map[string]any{"completed_at": time.Now(), "execution_time_ms": elapsed}
	if err != nil {
		if ctx.Err() == context.Canceled {
			updates["status"] = models.JobCancelled
		} else {
			updates["status"] = models.JobFailed
		}
		updates["error_message"] = models.AsAppError(err).Message
	} else {
		encoded, _ := json.Marshal(result.Execution)
		updates["status"] = models.JobCompleted
		updates["result"] = string(encoded)
	}

	res := m.database.Write().Model(&models.JobRecord{}).
		Where("job_id = ? AND status = ?", record.JobID, models.JobRunning).
		Updates(updates)
	if res.Error != nil {
		logger.Warnf("failed to persist completion for job %s: %v", record.JobID, res.Error)
	}
}
