package domain

import "time"

// SnapshotVersion is bumped whenever the artifact layout changes in a way an
// older restore could not interpret.
const SnapshotVersion = 1

// Snapshot is the serialized backup artifact contract. It is fully
// self-describing: every cross-reference (a cell's ColumnID, a permission's
// TableID) resolves against ids carried inside the snapshot itself, never
// against ids in the target tenant.
type Snapshot struct {
	Version           int                `json:"version"`
	TenantID          string             `json:"tenant_id"`
	Type              BackupType         `json:"type"`
	CreatedAt         time.Time          `json:"created_at"`
	Databases         []Database         `json:"databases"`
	TablePermissions  []TablePermission  `json:"table_permissions,omitempty"`
	ColumnPermissions []ColumnPermission `json:"column_permissions,omitempty"`
}

type Database struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Tables []Table `json:"tables,omitempty"`
}

type Table struct {
	ID         string   `json:"id"`
	DatabaseID string   `json:"database_id"`
	Name       string   `json:"name"`
	Columns    []Column `json:"columns,omitempty"`
	Rows       []Row    `json:"rows,omitempty"`
}

type Column struct {
	ID            string `json:"id"`
	TableID       string `json:"table_id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Required      bool   `json:"required,omitempty"`
	Primary       bool   `json:"primary,omitempty"`
	AutoIncrement bool   `json:"auto_increment,omitempty"`
}

type Row struct {
	ID        string    `json:"id"`
	TableID   string    `json:"table_id"`
	UpdatedAt time.Time `json:"updated_at"`
	Cells     []Cell    `json:"cells,omitempty"`
}

type Cell struct {
	ColumnID string    `json:"column_id"`
	Value    CellValue `json:"value"`
}

// RawCell is what the data-access layer hands the serializer: the column
// reference plus the untyped stored value. Conversion to the tagged CellValue
// happens at the serialization boundary and is where EncodingError surfaces.
type RawCell struct {
	ColumnID string
	Value    any
}

type TablePermission struct {
	ID        string `json:"id"`
	TableID   string `json:"table_id"`
	UserID    string `json:"user_id"`
	CanRead   bool   `json:"can_read"`
	CanEdit   bool   `json:"can_edit"`
	CanDelete bool   `json:"can_delete"`
}

type ColumnPermission struct {
	ID       string `json:"id"`
	ColumnID string `json:"column_id"`
	UserID   string `json:"user_id"`
	CanRead  bool   `json:"can_read"`
	CanEdit  bool   `json:"can_edit"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
