package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantvault/internal/domain"
)

// Restore reconstructs a tenant's data graph from a sealed artifact. The
// stored entity ids are never reused: every reconstruction step records an
// old-id to new-id mapping scoped to the run, and later steps resolve their
// references through those maps. Restore is not atomic; a failure leaves the
// already-created entities in place, and because every step creates fresh
// records a retry never collides with a partial earlier attempt.
type Restore struct {
	store      domain.JobStore
	source     domain.DataSource
	artifacts  domain.ArtifactStore
	compressor domain.Compressor
	notifier   domain.Notifier
	logger     Logger

	wg sync.WaitGroup
}

func NewRestore(
	store domain.JobStore,
	source domain.DataSource,
	artifacts domain.ArtifactStore,
	compressor domain.Compressor,
	notifier domain.Notifier,
	logger Logger,
) *Restore {
	return &Restore{
		store:      store,
		source:     source,
		artifacts:  artifacts,
		compressor: compressor,
		notifier:   notifier,
		logger:     logger,
	}
}

// FromBackup validates the request synchronously, creates a pending restore
// job and returns it immediately; reconstruction runs asynchronously.
// Invalid requests are rejected before any job record exists.
func (uc *Restore) FromBackup(ctx context.Context, backupID, tenantID, createdBy string) (*domain.RestoreJob, error) {
	backup, err := uc.store.GetBackupJob(ctx, backupID)
	if err != nil {
		return nil, err
	}

	if backup.TenantID != tenantID {
		return nil, &domain.InvalidStateError{
			Reason: fmt.Sprintf("backup %s does not belong to tenant %s", backupID, tenantID),
		}
	}
	if backup.Status != domain.StatusCompleted {
		return nil, &domain.InvalidStateError{
			Reason: fmt.Sprintf("backup %s is not completed (status: %s)", backupID, backup.Status),
		}
	}

	job := &domain.RestoreJob{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		BackupID:  backupID,
		Status:    domain.StatusPending,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	if err := uc.store.CreateRestoreJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create restore job: %w", err)
	}

	uc.wg.Add(1)
	go uc.run(context.WithoutCancel(ctx), *job, *backup)

	return job, nil
}

func (uc *Restore) run(ctx context.Context, job domain.RestoreJob, backup domain.BackupJob) {
	defer uc.wg.Done()

	start := time.Now()
	uc.logger.Infof("[%s] Starting restore %s from backup %s", job.TenantID, job.ID, backup.ID)

	if err := uc.store.MarkRestoreStarted(ctx, job.ID); err != nil {
		uc.logger.Warnf("[%s] Restore %s did not start: %v", job.TenantID, job.ID, err)
		return
	}

	payload, err := uc.artifacts.Get(ctx, backup.FilePath)
	if err != nil {
		uc.fail(ctx, &job, &domain.ArtifactReadError{Location: backup.FilePath, Err: err})
		return
	}

	if actual := checksum(payload); actual != backup.Checksum {
		uc.fail(ctx, &job, &domain.ChecksumMismatchError{Expected: backup.Checksum, Actual: actual})
		return
	}

	raw, err := uc.compressor.Decompress(payload)
	if err != nil {
		uc.fail(ctx, &job, fmt.Errorf("decompress artifact: %w", err))
		return
	}

	snap, err := DecodeSnapshot(raw)
	if err != nil {
		uc.fail(ctx, &job, err)
		return
	}

	skipped, err := uc.rebuild(ctx, job.TenantID, snap)
	if err != nil {
		uc.fail(ctx, &job, err)
		return
	}

	if err := uc.store.CompleteRestoreJob(ctx, job.ID, skipped); err != nil {
		uc.logger.Errorf("[%s] Failed to record restore completion for %s: %v", job.TenantID, job.ID, err)
		return
	}

	uc.logger.Infof("[%s] Restore %s completed in %s (%d permissions skipped)",
		job.TenantID, job.ID, time.Since(start).Round(time.Second), skipped)
	uc.notify(ctx, fmt.Sprintf("Restore %s for tenant %s completed (%d permissions skipped)",
		job.ID, job.TenantID, skipped))
}

// rebuild replays the snapshot against the target tenant in strict dependency
// order: database containers, tables, columns, rows, cells, permissions.
// Returns the number of permission records skipped because their user no
// longer exists in the target tenant.
func (uc *Restore) rebuild(ctx context.Context, tenantID string, snap *domain.Snapshot) (int, error) {
	databaseIDs := make(map[string]string)
	tableIDs := make(map[string]string)
	columnIDs := make(map[string]string)
	rowIDs := make(map[string]string)

	// Step 1: ensure database containers exist, matching by name so a
	// restore into a tenant that already has the container reuses it.
	existing, err := uc.source.ListDatabases(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list target databases: %w", err)
	}
	existingByName := make(map[string]string, len(existing))
	for _, db := range existing {
		existingByName[db.Name] = db.ID
	}

	for _, db := range snap.Databases {
		newID, ok := existingByName[db.Name]
		if !ok {
			newID, err = uc.source.CreateDatabase(ctx, tenantID, db.Name)
			if err != nil {
				return 0, fmt.Errorf("create database %q: %w", db.Name, err)
			}
		}
		databaseIDs[db.ID] = newID
	}

	// Step 2: tables.
	for _, db := range snap.Databases {
		for _, table := range db.Tables {
			newID, err := uc.source.CreateTable(ctx, tenantID, databaseIDs[db.ID], table.Name)
			if err != nil {
				return 0, fmt.Errorf("create table %q: %w", table.Name, err)
			}
			tableIDs[table.ID] = newID
		}
	}

	// Step 3: columns.
	for _, db := range snap.Databases {
		for _, table := range db.Tables {
			for _, col := range table.Columns {
				restored := col
				restored.ID = ""
				restored.TableID = tableIDs[table.ID]

				newID, err := uc.source.CreateColumn(ctx, tenantID, restored)
				if err != nil {
					return 0, fmt.Errorf("create column %q: %w", col.Name, err)
				}
				columnIDs[col.ID] = newID
			}
		}
	}

	// Step 4: rows.
	for _, db := range snap.Databases {
		for _, table := range db.Tables {
			for _, row := range table.Rows {
				newID, err := uc.source.CreateRow(ctx, tenantID, tableIDs[table.ID])
				if err != nil {
					return 0, fmt.Errorf("create row in table %q: %w", table.Name, err)
				}
				rowIDs[row.ID] = newID
			}
		}
	}

	// Step 5: cells, resolving column references through the mapping.
	for _, db := range snap.Databases {
		for _, table := range db.Tables {
			for _, row := range table.Rows {
				for _, cell := range row.Cells {
					newColumnID, ok := columnIDs[cell.ColumnID]
					if !ok {
						return 0, fmt.Errorf("cell in row %s references unknown column %s", row.ID, cell.ColumnID)
					}
					if err := uc.source.CreateCell(ctx, tenantID, rowIDs[row.ID], newColumnID, cell.Value); err != nil {
						return 0, fmt.Errorf("create cell for column %s: %w", cell.ColumnID, err)
					}
				}
			}
		}
	}

	// Step 6: permissions, against the target tenant's current user set.
	users, err := uc.source.ListUsers(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list target users: %w", err)
	}
	userSet := make(map[string]bool, len(users))
	for _, u := range users {
		userSet[u.ID] = true
	}

	skipped := 0
	for _, perm := range snap.TablePermissions {
		newTableID, ok := tableIDs[perm.TableID]
		if !ok {
			return 0, fmt.Errorf("permission %s references unknown table %s", perm.ID, perm.TableID)
		}
		if !userSet[perm.UserID] {
			uc.logger.Warnf("[%s] Skipping table permission for missing user %s", tenantID, perm.UserID)
			skipped++
			continue
		}

		restored := perm
		restored.ID = ""
		restored.TableID = newTableID
		if err := uc.source.CreateTablePermission(ctx, tenantID, restored); err != nil {
			return 0, fmt.Errorf("create table permission: %w", err)
		}
	}

	for _, perm := range snap.ColumnPermissions {
		newColumnID, ok := columnIDs[perm.ColumnID]
		if !ok {
			return 0, fmt.Errorf("permission %s references unknown column %s", perm.ID, perm.ColumnID)
		}
		if !userSet[perm.UserID] {
			uc.logger.Warnf("[%s] Skipping column permission for missing user %s", tenantID, perm.UserID)
			skipped++
			continue
		}

		restored := perm
		restored.ID = ""
		restored.ColumnID = newColumnID
		if err := uc.source.CreateColumnPermission(ctx, tenantID, restored); err != nil {
			return 0, fmt.Errorf("create column permission: %w", err)
		}
	}

	return skipped, nil
}

func (uc *Restore) fail(ctx context.Context, job *domain.RestoreJob, cause error) {
	uc.logger.Errorf("[%s] Restore %s failed: %v", job.TenantID, job.ID, cause)

	if err := uc.store.FailRestoreJob(ctx, job.ID, cause.Error()); err != nil {
		uc.logger.Errorf("[%s] Failed to record restore failure for %s: %v", job.TenantID, job.ID, err)
		return
	}

	uc.notify(ctx, fmt.Sprintf("Restore %s for tenant %s failed: %v", job.ID, job.TenantID, cause))
}

func (uc *Restore) notify(ctx context.Context, message string) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Notify(ctx, message); err != nil {
		uc.logger.Warnf("Notification failed: %v", err)
	}
}

// List returns all of a tenant's restore jobs, most recent first. Restore
// jobs are never deleted; they are the audit trail.
func (uc *Restore) List(ctx context.Context, tenantID string) ([]domain.RestoreJob, error) {
	return uc.store.ListRestoreJobs(ctx, tenantID)
}

// Get returns a single restore job.
func (uc *Restore) Get(ctx context.Context, id string) (*domain.RestoreJob, error) {
	return uc.store.GetRestoreJob(ctx, id)
}

// Wait blocks until all in-flight restore goroutines have finished.
func (uc *Restore) Wait() {
	uc.wg.Wait()
}
