package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"tenantvault/internal/domain"
)

// Snapshotter walks a tenant's data graph and produces the sealed artifact
// payload. Traversal is depth-first and preserves the source's insertion
// order, so for a fixed source state and creation time the payload bytes and
// checksum are reproducible.
type Snapshotter struct {
	source     domain.DataSource
	compressor domain.Compressor
	logger     Logger

	// now is swappable so tests can pin the snapshot timestamp.
	now func() time.Time
}

func NewSnapshotter(source domain.DataSource, compressor domain.Compressor, logger Logger) *Snapshotter {
	return &Snapshotter{
		source:     source,
		compressor: compressor,
		logger:     logger,
		now:        time.Now,
	}
}

type SnapshotResult struct {
	// Payload is the compressed artifact exactly as it goes to blob storage.
	Payload  []byte
	Checksum string
	RawSize  int64
	Size     int64
	Metadata domain.BackupMetadata
}

// Build assembles the snapshot for a tenant. For incremental backups, since
// is the start time of the last completed backup; nil means no prior backup
// exists and all rows are included.
func (s *Snapshotter) Build(ctx context.Context, tenantID string, typ domain.BackupType, since *time.Time) (*SnapshotResult, error) {
	snap := domain.Snapshot{
		Version:   domain.SnapshotVersion,
		TenantID:  tenantID,
		Type:      typ,
		CreatedAt: s.now().UTC(),
	}

	includeRows := typ != domain.BackupSchemaOnly
	includePermissions := typ == domain.BackupFull || typ == domain.BackupSchemaOnly

	databases, err := s.source.ListDatabases(ctx, tenantID)
	if err != nil {
		return nil, &domain.SourceReadError{Op: "list databases", Err: err}
	}

	rowCount := 0
	tableCount := 0

	for _, db := range databases {
		tables, err := s.source.ListTables(ctx, tenantID, db.ID)
		if err != nil {
			return nil, &domain.SourceReadError{Op: fmt.Sprintf("list tables of database %s", db.ID), Err: err}
		}

		for ti := range tables {
			table := &tables[ti]
			tableCount++

			columns, err := s.source.ListColumns(ctx, tenantID, table.ID)
			if err != nil {
				return nil, &domain.SourceReadError{Op: fmt.Sprintf("list columns of table %s", table.ID), Err: err}
			}
			table.Columns = columns

			if includeRows {
				rows, err := s.listRows(ctx, tenantID, table.ID, typ, since)
				if err != nil {
					return nil, &domain.SourceReadError{Op: fmt.Sprintf("list rows of table %s", table.ID), Err: err}
				}

				for ri := range rows {
					cells, err := s.collectCells(ctx, tenantID, rows[ri].ID)
					if err != nil {
						return nil, err
					}
					rows[ri].Cells = cells
				}
				table.Rows = rows
				rowCount += len(rows)
			}

			if includePermissions {
				perms, err := s.source.ListTablePermissions(ctx, tenantID, table.ID)
				if err != nil {
					return nil, &domain.SourceReadError{Op: fmt.Sprintf("list permissions of table %s", table.ID), Err: err}
				}
				snap.TablePermissions = append(snap.TablePermissions, perms...)

				for _, col := range columns {
					colPerms, err := s.source.ListColumnPermissions(ctx, tenantID, col.ID)
					if err != nil {
						return nil, &domain.SourceReadError{Op: fmt.Sprintf("list permissions of column %s", col.ID), Err: err}
					}
					snap.ColumnPermissions = append(snap.ColumnPermissions, colPerms...)
				}
			}
		}

		db.Tables = tables
		snap.Databases = append(snap.Databases, db)
	}

	raw, err := json.Marshal(&snap)
	if err != nil {
		return nil, &domain.EncodingError{Reason: err.Error()}
	}

	payload, err := s.compressor.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}

	ratio := float64(len(payload)) / float64(len(raw))

	return &SnapshotResult{
		Payload:  payload,
		Checksum: checksum(payload),
		RawSize:  int64(len(raw)),
		Size:     int64(len(payload)),
		Metadata: domain.BackupMetadata{
			DatabaseCount:    len(databases),
			TableCount:       tableCount,
			RowCount:         rowCount,
			CompressionRatio: &ratio,
		},
	}, nil
}

func (s *Snapshotter) listRows(ctx context.Context, tenantID, tableID string, typ domain.BackupType, since *time.Time) ([]domain.Row, error) {
	if typ == domain.BackupIncremental && since != nil {
		return s.source.ListRowsSince(ctx, tenantID, tableID, *since)
	}
	return s.source.ListRows(ctx, tenantID, tableID)
}

// collectCells converts the store's untyped cell values into the tagged
// snapshot representation. A value that cannot be represented aborts the
// whole backup; dropping it would be silent data loss.
func (s *Snapshotter) collectCells(ctx context.Context, tenantID, rowID string) ([]domain.Cell, error) {
	rawCells, err := s.source.ListCells(ctx, tenantID, rowID)
	if err != nil {
		return nil, &domain.SourceReadError{Op: fmt.Sprintf("list cells of row %s", rowID), Err: err}
	}

	cells := make([]domain.Cell, 0, len(rawCells))
	for _, raw := range rawCells {
		value, err := domain.NewCellValue(raw.Value)
		if err != nil {
			var encErr *domain.EncodingError
			if errors.As(err, &encErr) {
				encErr.ColumnID = raw.ColumnID
				return nil, encErr
			}
			return nil, err
		}
		cells = append(cells, domain.Cell{ColumnID: raw.ColumnID, Value: value})
	}
	return cells, nil
}

// DecodeSnapshot parses a decompressed artifact payload.
func DecodeSnapshot(raw []byte) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != domain.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
