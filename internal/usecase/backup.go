package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantvault/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Backup owns the backup job lifecycle: it creates the job record, runs the
// serializer in a tracked goroutine and guarantees every exit path lands the
// job in a terminal state. Concurrent backups for the same tenant run
// independently; each produces its own point-in-time artifact.
type Backup struct {
	store       domain.JobStore
	snapshotter *Snapshotter
	artifacts   domain.ArtifactStore
	notifier    domain.Notifier
	logger      Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewBackup(
	store domain.JobStore,
	snapshotter *Snapshotter,
	artifacts domain.ArtifactStore,
	notifier domain.Notifier,
	logger Logger,
) *Backup {
	return &Backup{
		store:       store,
		snapshotter: snapshotter,
		artifacts:   artifacts,
		notifier:    notifier,
		logger:      logger,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Create inserts a pending job and returns it immediately; serialization runs
// asynchronously and callers poll job status.
func (uc *Backup) Create(ctx context.Context, tenantID string, typ domain.BackupType, description, createdBy string) (*domain.BackupJob, error) {
	if tenantID == "" {
		return nil, &domain.InvalidStateError{Reason: "tenant id is required"}
	}
	if !typ.Valid() {
		return nil, &domain.InvalidStateError{Reason: fmt.Sprintf("unsupported backup type %q", typ)}
	}

	job := &domain.BackupJob{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Type:        typ,
		Status:      domain.StatusPending,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}

	if err := uc.store.CreateBackupJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create backup job: %w", err)
	}

	// The job outlives the request; detach from the caller's cancellation
	// but keep a per-job cancel func so Cancel can abort in-flight I/O.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	uc.mu.Lock()
	uc.cancels[job.ID] = cancel
	uc.mu.Unlock()

	uc.wg.Add(1)
	go uc.run(jobCtx, *job)

	return job, nil
}

func (uc *Backup) run(ctx context.Context, job domain.BackupJob) {
	defer uc.wg.Done()
	defer uc.releaseCancel(job.ID)

	start := time.Now()
	uc.logger.Infof("[%s] Starting %s backup %s", job.TenantID, job.Type, job.ID)

	if err := uc.store.MarkBackupStarted(ctx, job.ID); err != nil {
		// Cancelled before it began; nothing to do.
		uc.logger.Warnf("[%s] Backup %s did not start: %v", job.TenantID, job.ID, err)
		return
	}

	var since *time.Time
	if job.Type == domain.BackupIncremental {
		last, err := uc.store.LastCompletedBackup(ctx, job.TenantID)
		switch {
		case err == nil:
			since = last.StartedAt
		case errors.Is(err, domain.ErrNotFound):
			uc.logger.Infof("[%s] No prior completed backup, incremental includes all rows", job.TenantID)
		default:
			uc.fail(ctx, &job, fmt.Errorf("resolve last backup: %w", err))
			return
		}
	}

	result, err := uc.snapshotter.Build(ctx, job.TenantID, job.Type, since)
	if err != nil {
		uc.fail(ctx, &job, err)
		return
	}

	key := artifactKey(job.TenantID, job.Type, job.ID, start)
	location, err := uc.artifacts.Put(ctx, key, result.Payload)
	if err != nil {
		uc.fail(ctx, &job, &domain.ArtifactWriteError{Key: key, Err: err})
		return
	}

	if err := uc.store.CompleteBackupJob(ctx, job.ID, location, result.Checksum, result.Size, result.Metadata); err != nil {
		// The job left in_progress underneath us (cancelled); the artifact
		// is orphaned, so remove it.
		uc.logger.Warnf("[%s] Backup %s could not complete: %v", job.TenantID, job.ID, err)
		if delErr := uc.artifacts.Delete(context.WithoutCancel(ctx), location); delErr != nil {
			uc.logger.Errorf("[%s] Failed to remove orphaned artifact %s: %v", job.TenantID, location, delErr)
		}
		return
	}

	uc.logger.Infof("[%s] Backup %s completed in %s: %d tables, %d rows, %d bytes",
		job.TenantID, job.ID, time.Since(start).Round(time.Second),
		result.Metadata.TableCount, result.Metadata.RowCount, result.Size)
	uc.notify(ctx, fmt.Sprintf("Backup %s for tenant %s completed (%d tables, %d rows, %d bytes)",
		job.ID, job.TenantID, result.Metadata.TableCount, result.Metadata.RowCount, result.Size))
}

func (uc *Backup) fail(ctx context.Context, job *domain.BackupJob, cause error) {
	uc.logger.Errorf("[%s] Backup %s failed: %v", job.TenantID, job.ID, cause)

	// Record the failure even when the job context was cancelled mid-run.
	detached := context.WithoutCancel(ctx)
	if err := uc.store.FailBackupJob(detached, job.ID, cause.Error()); err != nil {
		var invalid *domain.InvalidStateError
		if errors.As(err, &invalid) {
			// Already terminal, typically cancelled while we were failing.
			uc.logger.Warnf("[%s] Backup %s already terminal: %v", job.TenantID, job.ID, err)
			return
		}
		uc.logger.Errorf("[%s] Failed to record backup failure for %s: %v", job.TenantID, job.ID, err)
		return
	}

	uc.notify(detached, fmt.Sprintf("Backup %s for tenant %s failed: %v", job.ID, job.TenantID, cause))
}

func (uc *Backup) notify(ctx context.Context, message string) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Notify(ctx, message); err != nil {
		uc.logger.Warnf("Notification failed: %v", err)
	}
}

func (uc *Backup) releaseCancel(id string) {
	uc.mu.Lock()
	if cancel, ok := uc.cancels[id]; ok {
		cancel()
		delete(uc.cancels, id)
	}
	uc.mu.Unlock()
}

// Cancel transitions a pending or in-progress job to cancelled and aborts its
// outstanding I/O. Terminal jobs are rejected with InvalidStateError.
func (uc *Backup) Cancel(ctx context.Context, id string) error {
	if err := uc.store.CancelBackupJob(ctx, id); err != nil {
		return err
	}

	uc.mu.Lock()
	cancel := uc.cancels[id]
	uc.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	uc.logger.Infof("Backup %s cancelled", id)
	return nil
}

// Get returns a single job. Callers owning tenant scoping (restore, verify,
// the API layer) check TenantID themselves.
func (uc *Backup) Get(ctx context.Context, id string) (*domain.BackupJob, error) {
	return uc.store.GetBackupJob(ctx, id)
}

// List returns all of a tenant's backup jobs, most recent first.
func (uc *Backup) List(ctx context.Context, tenantID string) ([]domain.BackupJob, error) {
	return uc.store.ListBackupJobs(ctx, tenantID)
}

// Stats aggregates the tenant's backup history.
func (uc *Backup) Stats(ctx context.Context, tenantID string) (*domain.BackupStats, error) {
	return uc.store.BackupStats(ctx, tenantID)
}

// Wait blocks until all in-flight backup goroutines have finished.
func (uc *Backup) Wait() {
	uc.wg.Wait()
}

// Stop aborts all running jobs and waits for them to settle.
func (uc *Backup) Stop() {
	uc.mu.Lock()
	for _, cancel := range uc.cancels {
		cancel()
	}
	uc.mu.Unlock()
	uc.wg.Wait()
}

func artifactKey(tenantID string, typ domain.BackupType, jobID string, at time.Time) string {
	return fmt.Sprintf("%s/%s_%s_%s.snapshot.gz", tenantID, typ, at.UTC().Format("20060102_150405"), jobID[:8])
}
