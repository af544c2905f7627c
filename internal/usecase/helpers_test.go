package usecase

import (
	"context"
	"path/filepath"
	"testing"

	"tenantvault/internal/adapter/artifact"
	"tenantvault/internal/adapter/compressor"
	"tenantvault/internal/adapter/jobstore"
	"tenantvault/internal/adapter/source"
	"tenantvault/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

func newTestStore(t *testing.T) *jobstore.SQLiteStore {
	t.Helper()

	store, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestArtifacts(t *testing.T) *artifact.LocalStore {
	t.Helper()

	store, err := artifact.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("open artifact store: %v", err)
	}
	return store
}

// seededTenant captures the ids of the fixture graph so tests can reference
// them after seeding.
type seededTenant struct {
	DatabaseID string
	ContactsID string
	DealsID    string
	NameColID  string
	AgeColID   string
	TitleColID string
	RowIDs     []string
}

// seedTenant builds a small but complete graph: one database, two tables,
// three rows with typed cells, one table permission and one column permission
// across two users.
func seedTenant(t *testing.T, src *source.MemorySource, tenantID string) seededTenant {
	t.Helper()
	ctx := context.Background()

	var fx seededTenant
	var err error

	fx.DatabaseID, err = src.CreateDatabase(ctx, tenantID, "crm")
	if err != nil {
		t.Fatalf("seed database: %v", err)
	}

	fx.ContactsID, err = src.CreateTable(ctx, tenantID, fx.DatabaseID, "contacts")
	if err != nil {
		t.Fatalf("seed table: %v", err)
	}
	fx.DealsID, err = src.CreateTable(ctx, tenantID, fx.DatabaseID, "deals")
	if err != nil {
		t.Fatalf("seed table: %v", err)
	}

	fx.NameColID, _ = src.CreateColumn(ctx, tenantID, domain.Column{TableID: fx.ContactsID, Name: "name", Type: "text", Required: true})
	fx.AgeColID, _ = src.CreateColumn(ctx, tenantID, domain.Column{TableID: fx.ContactsID, Name: "age", Type: "number"})
	fx.TitleColID, _ = src.CreateColumn(ctx, tenantID, domain.Column{TableID: fx.DealsID, Name: "title", Type: "text"})

	contacts := [][2]any{
		{"Ada", float64(36)},
		{"Linus", float64(54)},
	}
	for _, c := range contacts {
		rowID, err := src.CreateRow(ctx, tenantID, fx.ContactsID)
		if err != nil {
			t.Fatalf("seed row: %v", err)
		}
		name, _ := domain.NewCellValue(c[0])
		age, _ := domain.NewCellValue(c[1])
		src.CreateCell(ctx, tenantID, rowID, fx.NameColID, name)
		src.CreateCell(ctx, tenantID, rowID, fx.AgeColID, age)
		fx.RowIDs = append(fx.RowIDs, rowID)
	}

	dealRow, err := src.CreateRow(ctx, tenantID, fx.DealsID)
	if err != nil {
		t.Fatalf("seed row: %v", err)
	}
	title, _ := domain.NewCellValue("Q3 renewal")
	src.CreateCell(ctx, tenantID, dealRow, fx.TitleColID, title)
	fx.RowIDs = append(fx.RowIDs, dealRow)

	src.AddUser(tenantID, domain.User{ID: "user-1", Email: "ada@example.com"})
	src.AddUser(tenantID, domain.User{ID: "user-2", Email: "linus@example.com"})

	src.CreateTablePermission(ctx, tenantID, domain.TablePermission{
		TableID: fx.ContactsID, UserID: "user-1", CanRead: true, CanEdit: true,
	})
	src.CreateColumnPermission(ctx, tenantID, domain.ColumnPermission{
		ColumnID: fx.NameColID, UserID: "user-2", CanRead: true,
	})

	src.ResetCalls()
	return fx
}

func newTestBackup(t *testing.T, src *source.MemorySource) (*Backup, *jobstore.SQLiteStore, *artifact.LocalStore) {
	t.Helper()

	store := newTestStore(t)
	artifacts := newTestArtifacts(t)
	snapshotter := NewSnapshotter(src, compressor.NewGzip(), nopLogger{})
	backup := NewBackup(store, snapshotter, artifacts, nil, nopLogger{})
	t.Cleanup(backup.Stop)
	return backup, store, artifacts
}

// runBackup creates a backup and waits for it to settle, returning the final
// job record.
func runBackup(t *testing.T, backup *Backup, store *jobstore.SQLiteStore, tenantID string, typ domain.BackupType) *domain.BackupJob {
	t.Helper()
	ctx := context.Background()

	job, err := backup.Create(ctx, tenantID, typ, "", "tester")
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	backup.Wait()

	final, err := store.GetBackupJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload backup job: %v", err)
	}
	return final
}
