package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"tenantvault/internal/adapter/compressor"
	"tenantvault/internal/adapter/source"
	"tenantvault/internal/domain"
)

func TestSnapshotterBuild(t *testing.T) {
	Convey("Given a seeded tenant", t, func() {
		ctx := context.Background()
		src := source.NewMemory()
		fx := seedTenant(t, src, "acme")

		snapshotter := NewSnapshotter(src, compressor.NewGzip(), nopLogger{})

		decode := func(result *SnapshotResult) *domain.Snapshot {
			raw, err := compressor.NewGzip().Decompress(result.Payload)
			So(err, ShouldBeNil)
			snap, err := DecodeSnapshot(raw)
			So(err, ShouldBeNil)
			return snap
		}

		Convey("A full snapshot carries schema, rows and permissions", func() {
			result, err := snapshotter.Build(ctx, "acme", domain.BackupFull, nil)
			So(err, ShouldBeNil)

			So(result.Metadata.DatabaseCount, ShouldEqual, 1)
			So(result.Metadata.TableCount, ShouldEqual, 2)
			So(result.Metadata.RowCount, ShouldEqual, 3)
			So(result.Checksum, ShouldHaveLength, 64)
			So(result.Size, ShouldEqual, int64(len(result.Payload)))
			So(*result.Metadata.CompressionRatio, ShouldBeGreaterThan, 0)

			snap := decode(result)
			So(snap.Version, ShouldEqual, domain.SnapshotVersion)
			So(snap.TenantID, ShouldEqual, "acme")
			So(snap.Databases, ShouldHaveLength, 1)
			So(snap.Databases[0].Tables, ShouldHaveLength, 2)
			So(snap.TablePermissions, ShouldHaveLength, 1)
			So(snap.ColumnPermissions, ShouldHaveLength, 1)

			contacts := snap.Databases[0].Tables[0]
			So(contacts.Name, ShouldEqual, "contacts")
			So(contacts.Columns, ShouldHaveLength, 2)
			So(contacts.Rows, ShouldHaveLength, 2)
			So(contacts.Rows[0].Cells, ShouldHaveLength, 2)
			So(contacts.Rows[0].Cells[0].Value.Kind, ShouldEqual, domain.KindString)
			So(contacts.Rows[0].Cells[0].Value.Str, ShouldEqual, "Ada")
			So(contacts.Rows[0].Cells[1].Value.Kind, ShouldEqual, domain.KindNumber)
			So(contacts.Rows[0].Cells[1].Value.Num, ShouldEqual, 36)
		})

		Convey("A schema_only snapshot has no rows but keeps permissions", func() {
			result, err := snapshotter.Build(ctx, "acme", domain.BackupSchemaOnly, nil)
			So(err, ShouldBeNil)
			So(result.Metadata.RowCount, ShouldEqual, 0)

			snap := decode(result)
			So(snap.Databases[0].Tables[0].Columns, ShouldHaveLength, 2)
			So(snap.Databases[0].Tables[0].Rows, ShouldBeEmpty)
			So(snap.TablePermissions, ShouldHaveLength, 1)
		})

		Convey("A data_only snapshot has rows but no permissions", func() {
			result, err := snapshotter.Build(ctx, "acme", domain.BackupDataOnly, nil)
			So(err, ShouldBeNil)
			So(result.Metadata.RowCount, ShouldEqual, 3)

			snap := decode(result)
			So(snap.Databases[0].Tables[0].Rows, ShouldHaveLength, 2)
			So(snap.TablePermissions, ShouldBeEmpty)
			So(snap.ColumnPermissions, ShouldBeEmpty)
		})

		Convey("An incremental snapshot only includes rows updated since the mark", func() {
			since := time.Now().UTC()
			for _, rowID := range fx.RowIDs {
				src.TouchRow("acme", fx.ContactsID, rowID, since.Add(-time.Hour))
				src.TouchRow("acme", fx.DealsID, rowID, since.Add(-time.Hour))
			}
			fresh, err := src.CreateRow(ctx, "acme", fx.ContactsID)
			So(err, ShouldBeNil)
			src.TouchRow("acme", fx.ContactsID, fresh, since.Add(time.Hour))

			result, err := snapshotter.Build(ctx, "acme", domain.BackupIncremental, &since)
			So(err, ShouldBeNil)
			So(result.Metadata.RowCount, ShouldEqual, 1)
			So(result.Metadata.TableCount, ShouldEqual, 2)
		})

		Convey("An incremental snapshot without a mark includes all rows", func() {
			result, err := snapshotter.Build(ctx, "acme", domain.BackupIncremental, nil)
			So(err, ShouldBeNil)
			So(result.Metadata.RowCount, ShouldEqual, 3)
		})

		Convey("Two builds at the same instant produce identical payloads", func() {
			at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
			snapshotter.now = func() time.Time { return at }

			first, err := snapshotter.Build(ctx, "acme", domain.BackupFull, nil)
			So(err, ShouldBeNil)
			second, err := snapshotter.Build(ctx, "acme", domain.BackupFull, nil)
			So(err, ShouldBeNil)

			So(second.Checksum, ShouldEqual, first.Checksum)
			So(second.Payload, ShouldResemble, first.Payload)
		})

		Convey("A source failure surfaces as SourceReadError naming the operation", func() {
			src.Hook = func(_ context.Context, op string) error {
				if strings.HasPrefix(op, "list_rows:") {
					return fmt.Errorf("connection reset")
				}
				return nil
			}

			_, err := snapshotter.Build(ctx, "acme", domain.BackupFull, nil)

			var readErr *domain.SourceReadError
			So(errors.As(err, &readErr), ShouldBeTrue)
			So(readErr.Op, ShouldContainSubstring, "list rows")
			So(readErr.Error(), ShouldContainSubstring, "connection reset")
		})

		Convey("An unrepresentable cell value aborts the build with EncodingError", func() {
			src.AddRawCell("acme", fx.RowIDs[0], fx.AgeColID, struct{ X int }{1})

			_, err := snapshotter.Build(ctx, "acme", domain.BackupFull, nil)

			var encErr *domain.EncodingError
			So(errors.As(err, &encErr), ShouldBeTrue)
			So(encErr.ColumnID, ShouldEqual, fx.AgeColID)
		})
	})
}

func TestDecodeSnapshot(t *testing.T) {
	Convey("Given snapshot payloads", t, func() {
		Convey("Garbage input is rejected", func() {
			_, err := DecodeSnapshot([]byte("not json"))
			So(err, ShouldNotBeNil)
		})

		Convey("An unknown version is rejected", func() {
			_, err := DecodeSnapshot([]byte(`{"version": 99, "tenant_id": "acme"}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "version")
		})
	})
}
