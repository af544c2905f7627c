package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantvault/internal/domain"
)

type tenantData struct {
	databases   []domain.Database
	tables      map[string][]domain.Table
	columns     map[string][]domain.Column
	rows        map[string][]domain.Row
	cells       map[string][]domain.RawCell
	tablePerms  map[string][]domain.TablePermission
	columnPerms map[string][]domain.ColumnPermission
	users       []domain.User
}

func newTenantData() *tenantData {
	return &tenantData{
		tables:      make(map[string][]domain.Table),
		columns:     make(map[string][]domain.Column),
		rows:        make(map[string][]domain.Row),
		cells:       make(map[string][]domain.RawCell),
		tablePerms:  make(map[string][]domain.TablePermission),
		columnPerms: make(map[string][]domain.ColumnPermission),
	}
}

// MemorySource is an in-memory DataSource. It preserves insertion order, so
// snapshots built from it are deterministic. Every operation is appended to a
// call log, which the restore tests use to assert dependency order, and an
// optional Hook can inject failures or latency per operation.
type MemorySource struct {
	mu      sync.Mutex
	tenants map[string]*tenantData
	calls   []string

	// Hook, when set, runs at the start of every operation with the op tag
	// about to be recorded. A non-nil return aborts the operation.
	Hook func(ctx context.Context, op string) error
}

func NewMemory() *MemorySource {
	return &MemorySource{tenants: make(map[string]*tenantData)}
}

func (m *MemorySource) tenant(tenantID string) *tenantData {
	td, ok := m.tenants[tenantID]
	if !ok {
		td = newTenantData()
		m.tenants[tenantID] = td
	}
	return td
}

// begin records the op and runs the hook. Callers must not hold the mutex.
func (m *MemorySource) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.calls = append(m.calls, op)
	hook := m.Hook
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, op)
	}
	return nil
}

// Calls returns a snapshot of the recorded operation log.
func (m *MemorySource) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MemorySource) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MemorySource) ListDatabases(ctx context.Context, tenantID string) ([]domain.Database, error) {
	if err := m.begin(ctx, "list_databases"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Database(nil), m.tenant(tenantID).databases...), nil
}

func (m *MemorySource) ListTables(ctx context.Context, tenantID, databaseID string) ([]domain.Table, error) {
	if err := m.begin(ctx, "list_tables:"+databaseID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Table(nil), m.tenant(tenantID).tables[databaseID]...), nil
}

func (m *MemorySource) ListColumns(ctx context.Context, tenantID, tableID string) ([]domain.Column, error) {
	if err := m.begin(ctx, "list_columns:"+tableID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Column(nil), m.tenant(tenantID).columns[tableID]...), nil
}

func (m *MemorySource) ListRows(ctx context.Context, tenantID, tableID string) ([]domain.Row, error) {
	if err := m.begin(ctx, "list_rows:"+tableID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Row(nil), m.tenant(tenantID).rows[tableID]...), nil
}

func (m *MemorySource) ListRowsSince(ctx context.Context, tenantID, tableID string, since time.Time) ([]domain.Row, error) {
	if err := m.begin(ctx, "list_rows_since:"+tableID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Row
	for _, row := range m.tenant(tenantID).rows[tableID] {
		if !row.UpdatedAt.Before(since) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MemorySource) ListCells(ctx context.Context, tenantID, rowID string) ([]domain.RawCell, error) {
	if err := m.begin(ctx, "list_cells:"+rowID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RawCell(nil), m.tenant(tenantID).cells[rowID]...), nil
}

func (m *MemorySource) ListTablePermissions(ctx context.Context, tenantID, tableID string) ([]domain.TablePermission, error) {
	if err := m.begin(ctx, "list_table_permissions:"+tableID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TablePermission(nil), m.tenant(tenantID).tablePerms[tableID]...), nil
}

func (m *MemorySource) ListColumnPermissions(ctx context.Context, tenantID, columnID string) ([]domain.ColumnPermission, error) {
	if err := m.begin(ctx, "list_column_permissions:"+columnID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ColumnPermission(nil), m.tenant(tenantID).columnPerms[columnID]...), nil
}

func (m *MemorySource) ListUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	if err := m.begin(ctx, "list_users"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.User(nil), m.tenant(tenantID).users...), nil
}

func (m *MemorySource) CreateDatabase(ctx context.Context, tenantID, name string) (string, error) {
	id := uuid.NewString()
	if err := m.begin(ctx, "create_database:"+id); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(tenantID)
	td.databases = append(td.databases, domain.Database{ID: id, Name: name})
	return id, nil
}

func (m *MemorySource) CreateTable(ctx context.Context, tenantID, databaseID, name string) (string, error) {
	id := uuid.NewString()
	if err := m.begin(ctx, fmt.Sprintf("create_table:%s:%s", databaseID, id)); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(tenantID)
	td.tables[databaseID] = append(td.tables[databaseID], domain.Table{ID: id, DatabaseID: databaseID, Name: name})
	return id, nil
}

func (m *MemorySource) CreateColumn(ctx context.Context, tenantID string, col domain.Column) (string, error) {
	col.ID = uuid.NewString()
	if err := m.begin(ctx, fmt.Sprintf("create_column:%s:%s", col.TableID, col.ID)); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(tenantID)
	td.columns[col.TableID] = append(td.columns[col.TableID], col)
	return col.ID, nil
}

func (m *MemorySource) CreateRow(ctx context.Context, tenantID, tableID string) (string, error) {
	id := uuid.NewString()
	if err := m.begin(ctx, fmt.Sprintf("create_row:%s:%s", tableID, id)); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(tenantID)
	td.rows[tableID] = append(td.rows[tableID], domain.Row{ID: id, TableID: tableID, UpdatedAt: time.Now().UTC()})
	return id, nil
}

func (m *MemorySource) CreateCell(ctx context.Context, tenantID, rowID, columnID string, value domain.CellValue) error {
	if err := m.begin(ctx, fmt.Sprintf("create_cell:%s:%s", rowID, columnID)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(tenantID)
	td.cells[rowID] = append(td.cells[rowID], domain.RawCell{ColumnID: columnID, Value: value.Native()})
	return nil
}

func (m *MemorySource) CreateTablePermission(ctx context.Context, tenantID string, perm domain.TablePermission) error {
	if err := m.begin(ctx, "create_table_permission:"+perm.TableID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	td := m.tenant(tenantID)
	td.tablePerms[perm.TableID] = append(td.tablePerms[perm.TableID], perm)
	return nil
}

func (m *MemorySource) CreateColumnPermission(ctx context.Context, tenantID string, perm domain.ColumnPermission) error {
	if err := m.begin(ctx, "create_column_permission:"+perm.ColumnID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	td := m.tenant(tenantID)
	td.columnPerms[perm.ColumnID] = append(td.columnPerms[perm.ColumnID], perm)
	return nil
}

// AddUser registers a user in the tenant. Users are owned by the platform's
// account system, so there is no Create op for them on the DataSource port.
func (m *MemorySource) AddUser(tenantID string, user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(tenantID)
	td.users = append(td.users, user)
}

// AddRawCell stores an arbitrary value without going through CellValue
// conversion, to exercise backup-time encoding failures.
func (m *MemorySource) AddRawCell(tenantID, rowID, columnID string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(tenantID)
	td.cells[rowID] = append(td.cells[rowID], domain.RawCell{ColumnID: columnID, Value: value})
}

// TouchRow backdates or advances a row's update timestamp, for incremental
// backup scenarios.
func (m *MemorySource) TouchRow(tenantID, tableID, rowID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tenant(tenantID).rows[tableID]
	for i := range rows {
		if rows[i].ID == rowID {
			rows[i].UpdatedAt = at
		}
	}
}
