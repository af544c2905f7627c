package domain

import (
	"context"
	"time"
)

// DataSource is the tenant-scoped data-access API of the platform's
// relational store. Every operation takes the tenant id explicitly; the core
// never assumes ambient tenant context. List methods return entities with
// child slices empty, the serializer assembles the graph.
type DataSource interface {
	ListDatabases(ctx context.Context, tenantID string) ([]Database, error)
	ListTables(ctx context.Context, tenantID, databaseID string) ([]Table, error)
	ListColumns(ctx context.Context, tenantID, tableID string) ([]Column, error)
	ListRows(ctx context.Context, tenantID, tableID string) ([]Row, error)
	// ListRowsSince returns only rows updated at or after the given time,
	// for incremental backups. Reliability depends on the store maintaining
	// row update timestamps under concurrent writes.
	ListRowsSince(ctx context.Context, tenantID, tableID string, since time.Time) ([]Row, error)
	ListCells(ctx context.Context, tenantID, rowID string) ([]RawCell, error)
	ListTablePermissions(ctx context.Context, tenantID, tableID string) ([]TablePermission, error)
	ListColumnPermissions(ctx context.Context, tenantID, columnID string) ([]ColumnPermission, error)
	ListUsers(ctx context.Context, tenantID string) ([]User, error)

	CreateDatabase(ctx context.Context, tenantID, name string) (string, error)
	CreateTable(ctx context.Context, tenantID, databaseID, name string) (string, error)
	CreateColumn(ctx context.Context, tenantID string, col Column) (string, error)
	CreateRow(ctx context.Context, tenantID, tableID string) (string, error)
	CreateCell(ctx context.Context, tenantID, rowID, columnID string, value CellValue) error
	CreateTablePermission(ctx context.Context, tenantID string, perm TablePermission) error
	CreateColumnPermission(ctx context.Context, tenantID string, perm ColumnPermission) error
}
