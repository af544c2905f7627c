package usecase

import (
	"context"
	"sync"
	"time"

	"tenantvault/internal/domain"
)

// Retention prunes expired backups: the artifact is deleted first, then the
// job record, so a crash between the two leaves a record pointing at a missing
// artifact rather than an unaccounted blob. The newest completed backup of a
// tenant is always kept, whatever its age. Restore jobs are never touched;
// they are the audit trail.
type Retention struct {
	store         domain.JobStore
	artifacts     domain.ArtifactStore
	logger        Logger
	retentionDays int
}

func NewRetention(store domain.JobStore, artifacts domain.ArtifactStore, logger Logger, retentionDays int) *Retention {
	return &Retention{
		store:         store,
		artifacts:     artifacts,
		logger:        logger,
		retentionDays: retentionDays,
	}
}

// Execute prunes all given tenants concurrently. Per-tenant failures are
// logged, not propagated; one tenant's broken artifact store must not block
// the others.
func (uc *Retention) Execute(ctx context.Context, tenantIDs []string) {
	if uc.retentionDays <= 0 {
		uc.logger.Infof("Retention disabled, skipping cleanup")
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -uc.retentionDays)
	uc.logger.Infof("Starting retention cleanup, cutoff: %s", cutoff.Format(time.RFC3339))

	var wg sync.WaitGroup
	for _, tenantID := range tenantIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			if err := uc.cleanupTenant(ctx, id, cutoff); err != nil {
				uc.logger.Errorf("[%s] Retention cleanup failed: %v", id, err)
			}
		}(tenantID)
	}
	wg.Wait()

	uc.logger.Infof("Retention cleanup completed")
}

func (uc *Retention) cleanupTenant(ctx context.Context, tenantID string, cutoff time.Time) error {
	jobs, err := uc.store.ListBackupJobs(ctx, tenantID)
	if err != nil {
		return err
	}

	// Jobs are ordered most recent first; the first completed one is the
	// tenant's only restorable point once everything older is pruned.
	keepID := ""
	for _, job := range jobs {
		if job.Status == domain.StatusCompleted {
			keepID = job.ID
			break
		}
	}

	deleted := 0
	for _, job := range jobs {
		if !job.Status.Terminal() || job.ID == keepID {
			continue
		}
		if !job.CreatedAt.Before(cutoff) {
			continue
		}

		if job.Status == domain.StatusCompleted && job.FilePath != "" {
			if err := uc.artifacts.Delete(ctx, job.FilePath); err != nil {
				uc.logger.Errorf("[%s] Failed to delete expired artifact %s: %v", tenantID, job.FilePath, err)
				continue
			}
		}

		if err := uc.store.DeleteBackupJob(ctx, job.ID); err != nil {
			uc.logger.Errorf("[%s] Failed to delete expired backup job %s: %v", tenantID, job.ID, err)
			continue
		}

		uc.logger.Infof("[%s] Pruned expired backup %s (%s, created %s)",
			tenantID, job.ID, job.Status, job.CreatedAt.Format(time.RFC3339))
		deleted++
	}

	if deleted > 0 {
		uc.logger.Infof("[%s] Pruned %d expired backup(s)", tenantID, deleted)
	}
	return nil
}
