package domain

import "context"

// JobStore persists backup and restore job records. Status mutations are
// guarded: each transition method succeeds only when the job is currently in
// an allowed prior state, otherwise it returns InvalidStateError. That makes
// the state machine monotonic under concurrent writers without any cross-job
// locking.
type JobStore interface {
	CreateBackupJob(ctx context.Context, job *BackupJob) error
	GetBackupJob(ctx context.Context, id string) (*BackupJob, error)
	ListBackupJobs(ctx context.Context, tenantID string) ([]BackupJob, error)
	// LastCompletedBackup returns the most recent completed backup for a
	// tenant, or ErrNotFound. Incremental backups cut over at its StartedAt.
	LastCompletedBackup(ctx context.Context, tenantID string) (*BackupJob, error)
	BackupStats(ctx context.Context, tenantID string) (*BackupStats, error)

	MarkBackupStarted(ctx context.Context, id string) error
	CompleteBackupJob(ctx context.Context, id, filePath, checksum string, sizeBytes int64, meta BackupMetadata) error
	FailBackupJob(ctx context.Context, id, errMsg string) error
	CancelBackupJob(ctx context.Context, id string) error
	DeleteBackupJob(ctx context.Context, id string) error

	CreateRestoreJob(ctx context.Context, job *RestoreJob) error
	GetRestoreJob(ctx context.Context, id string) (*RestoreJob, error)
	ListRestoreJobs(ctx context.Context, tenantID string) ([]RestoreJob, error)

	MarkRestoreStarted(ctx context.Context, id string) error
	CompleteRestoreJob(ctx context.Context, id string, skippedPermissions int) error
	FailRestoreJob(ctx context.Context, id, errMsg string) error
}
