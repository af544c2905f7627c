package domain

import "time"

type BackupType string

const (
	BackupFull        BackupType = "full"
	BackupSchemaOnly  BackupType = "schema_only"
	BackupDataOnly    BackupType = "data_only"
	BackupIncremental BackupType = "incremental"
)

func (t BackupType) Valid() bool {
	switch t {
	case BackupFull, BackupSchemaOnly, BackupDataOnly, BackupIncremental:
		return true
	}
	return false
}

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further status mutation is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type BackupMetadata struct {
	DatabaseCount    int      `json:"database_count"`
	TableCount       int      `json:"table_count"`
	RowCount         int      `json:"row_count"`
	CompressionRatio *float64 `json:"compression_ratio,omitempty"`
}

type BackupJob struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Type        BackupType     `json:"type"`
	Status      JobStatus      `json:"status"`
	Description string         `json:"description,omitempty"`
	FilePath    string         `json:"file_path,omitempty"`
	SizeBytes   int64          `json:"size_bytes"`
	Checksum    string         `json:"checksum,omitempty"`
	Metadata    BackupMetadata `json:"metadata"`
	Error       *string        `json:"error,omitempty"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

type RestoreJob struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	BackupID           string     `json:"backup_id"`
	Status             JobStatus  `json:"status"`
	SkippedPermissions int        `json:"skipped_permissions"`
	Error              *string    `json:"error,omitempty"`
	CreatedBy          string     `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// BackupStats aggregates a tenant's backup history for operational visibility.
type BackupStats struct {
	TotalBackups   int        `json:"total_backups"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	LastBackupAt   *time.Time `json:"last_backup_at,omitempty"`
	SuccessRate    float64    `json:"success_rate"`
}
