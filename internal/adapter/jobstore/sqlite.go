package jobstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"tenantvault/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists backup and restore job records. Every status mutation
// is a guarded UPDATE whose WHERE clause names the allowed prior states, so a
// job in a terminal state can never move again, no matter how many goroutines
// race on it.
type SQLiteStore struct {
	db *sql.DB
}

func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=true&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping job store: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "tenantvault", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const backupColumns = `id, tenant_id, type, status, description, file_path, size_bytes, checksum,
	database_count, table_count, row_count, compression_ratio, error, created_by, created_at, started_at, completed_at`

func (s *SQLiteStore) CreateBackupJob(ctx context.Context, job *domain.BackupJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backup_jobs (`+backupColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, job.Type, job.Status, job.Description, job.FilePath,
		job.SizeBytes, job.Checksum, job.Metadata.DatabaseCount, job.Metadata.TableCount,
		job.Metadata.RowCount, job.Metadata.CompressionRatio, job.Error,
		job.CreatedBy, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert backup job: %w", err)
	}
	return nil
}

func scanBackupJob(row interface{ Scan(...any) error }) (*domain.BackupJob, error) {
	var job domain.BackupJob
	err := row.Scan(&job.ID, &job.TenantID, &job.Type, &job.Status, &job.Description,
		&job.FilePath, &job.SizeBytes, &job.Checksum, &job.Metadata.DatabaseCount,
		&job.Metadata.TableCount, &job.Metadata.RowCount, &job.Metadata.CompressionRatio,
		&job.Error, &job.CreatedBy, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *SQLiteStore) GetBackupJob(ctx context.Context, id string) (*domain.BackupJob, error) {
	job, err := scanBackupJob(s.db.QueryRowContext(ctx,
		`SELECT `+backupColumns+` FROM backup_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backup job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get backup job %s: %w", id, err)
	}
	return job, nil
}

func (s *SQLiteStore) ListBackupJobs(ctx context.Context, tenantID string) ([]domain.BackupJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupColumns+` FROM backup_jobs WHERE tenant_id = ? ORDER BY created_at DESC, id DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list backup jobs for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var jobs []domain.BackupJob
	for rows.Next() {
		job, err := scanBackupJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup jobs: %w", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) LastCompletedBackup(ctx context.Context, tenantID string) (*domain.BackupJob, error) {
	job, err := scanBackupJob(s.db.QueryRowContext(ctx,
		`SELECT `+backupColumns+` FROM backup_jobs
		 WHERE tenant_id = ? AND status = ?
		 ORDER BY completed_at DESC LIMIT 1`,
		tenantID, domain.StatusCompleted))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no completed backup for tenant %s: %w", tenantID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get last completed backup for tenant %s: %w", tenantID, err)
	}
	return job, nil
}

func (s *SQLiteStore) BackupStats(ctx context.Context, tenantID string) (*domain.BackupStats, error) {
	var stats domain.BackupStats
	var terminal, completed int
	var lastBackup sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN size_bytes ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status IN (?, ?, ?) THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM backup_jobs WHERE tenant_id = ?`,
		domain.StatusCompleted,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
		domain.StatusCompleted, tenantID,
	).Scan(&stats.TotalBackups, &stats.TotalSizeBytes, &terminal, &completed)
	if err != nil {
		return nil, fmt.Errorf("aggregate backup stats for tenant %s: %w", tenantID, err)
	}

	// The timestamp is selected as a bare column, not an aggregate expression,
	// so the driver still sees the TIMESTAMP decltype and converts it.
	err = s.db.QueryRowContext(ctx,
		`SELECT completed_at FROM backup_jobs
		 WHERE tenant_id = ? AND status = ?
		 ORDER BY completed_at DESC LIMIT 1`,
		tenantID, domain.StatusCompleted,
	).Scan(&lastBackup)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last backup time for tenant %s: %w", tenantID, err)
	}

	if terminal > 0 {
		stats.SuccessRate = float64(completed) / float64(terminal)
	}
	if lastBackup.Valid {
		t := lastBackup.Time
		stats.LastBackupAt = &t
	}

	return &stats, nil
}

// transition runs a guarded status update and maps "no rows changed" onto
// either ErrNotFound or InvalidStateError depending on whether the job exists.
func (s *SQLiteStore) transition(ctx context.Context, table, id string, res sql.Result, execErr error) error {
	if execErr != nil {
		return fmt.Errorf("update %s %s: %w", table, id, execErr)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s %s: %w", table, id, err)
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check status of %s %s: %w", table, id, err)
	}

	return &domain.InvalidStateError{
		Reason: fmt.Sprintf("job %s cannot transition from status %s", id, status),
	}
}

func (s *SQLiteStore) MarkBackupStarted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backup_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		domain.StatusInProgress, time.Now().UTC(), id, domain.StatusPending)
	return s.transition(ctx, "backup_jobs", id, res, err)
}

func (s *SQLiteStore) CompleteBackupJob(ctx context.Context, id, filePath, checksum string, sizeBytes int64, meta domain.BackupMetadata) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backup_jobs
		 SET status = ?, file_path = ?, checksum = ?, size_bytes = ?,
		     database_count = ?, table_count = ?, row_count = ?, compression_ratio = ?,
		     completed_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted, filePath, checksum, sizeBytes,
		meta.DatabaseCount, meta.TableCount, meta.RowCount, meta.CompressionRatio,
		time.Now().UTC(), id, domain.StatusInProgress)
	return s.transition(ctx, "backup_jobs", id, res, err)
}

func (s *SQLiteStore) FailBackupJob(ctx context.Context, id, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backup_jobs SET status = ?, error = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusFailed, errMsg, time.Now().UTC(),
		id, domain.StatusPending, domain.StatusInProgress)
	return s.transition(ctx, "backup_jobs", id, res, err)
}

func (s *SQLiteStore) CancelBackupJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backup_jobs SET status = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusCancelled, time.Now().UTC(),
		id, domain.StatusPending, domain.StatusInProgress)
	return s.transition(ctx, "backup_jobs", id, res, err)
}

func (s *SQLiteStore) DeleteBackupJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backup_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backup job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for backup job %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("backup job %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

const restoreColumns = `id, tenant_id, backup_id, status, skipped_permissions, error, created_by, created_at, started_at, completed_at`

func (s *SQLiteStore) CreateRestoreJob(ctx context.Context, job *domain.RestoreJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO restore_jobs (`+restoreColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, job.BackupID, job.Status, job.SkippedPermissions,
		job.Error, job.CreatedBy, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert restore job: %w", err)
	}
	return nil
}

func scanRestoreJob(row interface{ Scan(...any) error }) (*domain.RestoreJob, error) {
	var job domain.RestoreJob
	err := row.Scan(&job.ID, &job.TenantID, &job.BackupID, &job.Status,
		&job.SkippedPermissions, &job.Error, &job.CreatedBy, &job.CreatedAt,
		&job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *SQLiteStore) GetRestoreJob(ctx context.Context, id string) (*domain.RestoreJob, error) {
	job, err := scanRestoreJob(s.db.QueryRowContext(ctx,
		`SELECT `+restoreColumns+` FROM restore_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("restore job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get restore job %s: %w", id, err)
	}
	return job, nil
}

func (s *SQLiteStore) ListRestoreJobs(ctx context.Context, tenantID string) ([]domain.RestoreJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+restoreColumns+` FROM restore_jobs WHERE tenant_id = ? ORDER BY created_at DESC, id DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list restore jobs for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var jobs []domain.RestoreJob
	for rows.Next() {
		job, err := scanRestoreJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restore job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restore jobs: %w", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) MarkRestoreStarted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE restore_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		domain.StatusInProgress, time.Now().UTC(), id, domain.StatusPending)
	return s.transition(ctx, "restore_jobs", id, res, err)
}

func (s *SQLiteStore) CompleteRestoreJob(ctx context.Context, id string, skippedPermissions int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE restore_jobs SET status = ?, skipped_permissions = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted, skippedPermissions, time.Now().UTC(),
		id, domain.StatusInProgress)
	return s.transition(ctx, "restore_jobs", id, res, err)
}

func (s *SQLiteStore) FailRestoreJob(ctx context.Context, id, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE restore_jobs SET status = ?, error = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusFailed, errMsg, time.Now().UTC(),
		id, domain.StatusPending, domain.StatusInProgress)
	return s.transition(ctx, "restore_jobs", id, res, err)
}
