package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"tenantvault/internal/domain"
)

// SQLiteSource reads and writes the platform's relational store directly.
// The schema (tenant databases/tables/columns/rows/cells plus permission and
// user tables) is owned by the platform; EnsureSchema exists for dev setups
// and tests that start from an empty file.
type SQLiteSource struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open source store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping source store: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the platform tables when they do not exist yet.
func (s *SQLiteSource) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenant_databases (
			id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS tenant_tables (
			id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, database_id TEXT NOT NULL,
			name TEXT NOT NULL, created_at TIMESTAMP NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS tenant_columns (
			id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, table_id TEXT NOT NULL,
			name TEXT NOT NULL, type TEXT NOT NULL,
			required INTEGER NOT NULL DEFAULT 0, is_primary INTEGER NOT NULL DEFAULT 0,
			auto_increment INTEGER NOT NULL DEFAULT 0, created_at TIMESTAMP NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS tenant_rows (
			id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, table_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS tenant_cells (
			id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, row_id TEXT NOT NULL,
			column_id TEXT NOT NULL, value_kind TEXT NOT NULL, value_text TEXT,
			created_at TIMESTAMP NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS table_permissions (
			id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, table_id TEXT NOT NULL,
			user_id TEXT NOT NULL, can_read INTEGER NOT NULL, can_edit INTEGER NOT NULL,
			can_delete INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS column_permissions (
			id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, column_id TEXT NOT NULL,
			user_id TEXT NOT NULL, can_read INTEGER NOT NULL, can_edit INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS tenant_users (
			id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, email TEXT NOT NULL)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create source schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSource) ListDatabases(ctx context.Context, tenantID string) ([]domain.Database, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM tenant_databases WHERE tenant_id = ? ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer rows.Close()

	var out []domain.Database
	for rows.Next() {
		var db domain.Database
		if err := rows.Scan(&db.ID, &db.Name); err != nil {
			return nil, fmt.Errorf("scan database: %w", err)
		}
		out = append(out, db)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) ListTables(ctx context.Context, tenantID, databaseID string) ([]domain.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, database_id, name FROM tenant_tables
		 WHERE tenant_id = ? AND database_id = ? ORDER BY created_at, id`, tenantID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []domain.Table
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.DatabaseID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) ListColumns(ctx context.Context, tenantID, tableID string) ([]domain.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, table_id, name, type, required, is_primary, auto_increment
		 FROM tenant_columns WHERE tenant_id = ? AND table_id = ? ORDER BY created_at, id`,
		tenantID, tableID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var out []domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.Type, &c.Required, &c.Primary, &c.AutoIncrement); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) listRows(ctx context.Context, tenantID, tableID string, since *time.Time) ([]domain.Row, error) {
	query := `SELECT id, table_id, updated_at FROM tenant_rows WHERE tenant_id = ? AND table_id = ?`
	args := []any{tenantID, tableID}
	if since != nil {
		query += ` AND updated_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		var r domain.Row
		if err := rows.Scan(&r.ID, &r.TableID, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) ListRows(ctx context.Context, tenantID, tableID string) ([]domain.Row, error) {
	return s.listRows(ctx, tenantID, tableID, nil)
}

func (s *SQLiteSource) ListRowsSince(ctx context.Context, tenantID, tableID string, since time.Time) ([]domain.Row, error) {
	return s.listRows(ctx, tenantID, tableID, &since)
}

func (s *SQLiteSource) ListCells(ctx context.Context, tenantID, rowID string) ([]domain.RawCell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_id, value_kind, value_text FROM tenant_cells
		 WHERE tenant_id = ? AND row_id = ? ORDER BY created_at, id`, tenantID, rowID)
	if err != nil {
		return nil, fmt.Errorf("list cells: %w", err)
	}
	defer rows.Close()

	var out []domain.RawCell
	for rows.Next() {
		var columnID, kind string
		var text sql.NullString
		if err := rows.Scan(&columnID, &kind, &text); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}

		value, err := decodeStoredValue(kind, text)
		if err != nil {
			return nil, fmt.Errorf("decode cell for column %s: %w", columnID, err)
		}
		out = append(out, domain.RawCell{ColumnID: columnID, Value: value})
	}
	return out, rows.Err()
}

func (s *SQLiteSource) ListTablePermissions(ctx context.Context, tenantID, tableID string) ([]domain.TablePermission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, table_id, user_id, can_read, can_edit, can_delete
		 FROM table_permissions WHERE tenant_id = ? AND table_id = ? ORDER BY id`, tenantID, tableID)
	if err != nil {
		return nil, fmt.Errorf("list table permissions: %w", err)
	}
	defer rows.Close()

	var out []domain.TablePermission
	for rows.Next() {
		var p domain.TablePermission
		if err := rows.Scan(&p.ID, &p.TableID, &p.UserID, &p.CanRead, &p.CanEdit, &p.CanDelete); err != nil {
			return nil, fmt.Errorf("scan table permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) ListColumnPermissions(ctx context.Context, tenantID, columnID string) ([]domain.ColumnPermission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, column_id, user_id, can_read, can_edit
		 FROM column_permissions WHERE tenant_id = ? AND column_id = ? ORDER BY id`, tenantID, columnID)
	if err != nil {
		return nil, fmt.Errorf("list column permissions: %w", err)
	}
	defer rows.Close()

	var out []domain.ColumnPermission
	for rows.Next() {
		var p domain.ColumnPermission
		if err := rows.Scan(&p.ID, &p.ColumnID, &p.UserID, &p.CanRead, &p.CanEdit); err != nil {
			return nil, fmt.Errorf("scan column permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) ListUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email FROM tenant_users WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) CreateDatabase(ctx context.Context, tenantID, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_databases (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)`,
		id, tenantID, name, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("create database: %w", err)
	}
	return id, nil
}

func (s *SQLiteSource) CreateTable(ctx context.Context, tenantID, databaseID, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_tables (id, tenant_id, database_id, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, tenantID, databaseID, name, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("create table: %w", err)
	}
	return id, nil
}

func (s *SQLiteSource) CreateColumn(ctx context.Context, tenantID string, col domain.Column) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_columns (id, tenant_id, table_id, name, type, required, is_primary, auto_increment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, tenantID, col.TableID, col.Name, col.Type, col.Required, col.Primary, col.AutoIncrement, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("create column: %w", err)
	}
	return id, nil
}

func (s *SQLiteSource) CreateRow(ctx context.Context, tenantID, tableID string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_rows (id, tenant_id, table_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, tenantID, tableID, now, now)
	if err != nil {
		return "", fmt.Errorf("create row: %w", err)
	}
	return id, nil
}

func (s *SQLiteSource) CreateCell(ctx context.Context, tenantID, rowID, columnID string, value domain.CellValue) error {
	kind, text := encodeStoredValue(value)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_cells (id, tenant_id, row_id, column_id, value_kind, value_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), tenantID, rowID, columnID, kind, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create cell: %w", err)
	}
	return nil
}

func (s *SQLiteSource) CreateTablePermission(ctx context.Context, tenantID string, perm domain.TablePermission) error {
	id := perm.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO table_permissions (id, tenant_id, table_id, user_id, can_read, can_edit, can_delete)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, tenantID, perm.TableID, perm.UserID, perm.CanRead, perm.CanEdit, perm.CanDelete)
	if err != nil {
		return fmt.Errorf("create table permission: %w", err)
	}
	return nil
}

func (s *SQLiteSource) CreateColumnPermission(ctx context.Context, tenantID string, perm domain.ColumnPermission) error {
	id := perm.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO column_permissions (id, tenant_id, column_id, user_id, can_read, can_edit)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, tenantID, perm.ColumnID, perm.UserID, perm.CanRead, perm.CanEdit)
	if err != nil {
		return fmt.Errorf("create column permission: %w", err)
	}
	return nil
}

// AddUser registers a platform user for a tenant, for dev and test setups.
func (s *SQLiteSource) AddUser(ctx context.Context, tenantID string, user domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_users (id, tenant_id, email) VALUES (?, ?, ?)`,
		user.ID, tenantID, user.Email)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

func encodeStoredValue(v domain.CellValue) (string, sql.NullString) {
	switch v.Kind {
	case domain.KindString:
		return string(v.Kind), sql.NullString{String: v.Str, Valid: true}
	case domain.KindNumber:
		return string(v.Kind), sql.NullString{String: strconv.FormatFloat(v.Num, 'g', -1, 64), Valid: true}
	case domain.KindBool:
		return string(v.Kind), sql.NullString{String: strconv.FormatBool(v.Bool), Valid: true}
	case domain.KindTime:
		if v.Time == nil {
			return string(domain.KindNull), sql.NullString{}
		}
		return string(v.Kind), sql.NullString{String: v.Time.UTC().Format(time.RFC3339Nano), Valid: true}
	default:
		return string(domain.KindNull), sql.NullString{}
	}
}

func decodeStoredValue(kind string, text sql.NullString) (any, error) {
	switch domain.ValueKind(kind) {
	case domain.KindNull:
		return nil, nil
	case domain.KindString:
		return text.String, nil
	case domain.KindNumber:
		n, err := strconv.ParseFloat(text.String, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stored number %q: %w", text.String, err)
		}
		return n, nil
	case domain.KindBool:
		b, err := strconv.ParseBool(text.String)
		if err != nil {
			return nil, fmt.Errorf("invalid stored bool %q: %w", text.String, err)
		}
		return b, nil
	case domain.KindTime:
		t, err := time.Parse(time.RFC3339Nano, text.String)
		if err != nil {
			return nil, fmt.Errorf("invalid stored time %q: %w", text.String, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown stored value kind %q", kind)
	}
}
