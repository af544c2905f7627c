package source

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"tenantvault/internal/domain"
)

func openTestSource(t *testing.T) *SQLiteSource {
	t.Helper()

	src, err := OpenSQLite(filepath.Join(t.TempDir(), "platform.db"))
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	if err := src.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return src
}

func TestSQLiteSource(t *testing.T) {
	Convey("Given a SQLite tenant data source", t, func() {
		ctx := context.Background()
		src := openTestSource(t)

		Convey("The structural graph round-trips", func() {
			dbID, err := src.CreateDatabase(ctx, "acme", "crm")
			So(err, ShouldBeNil)

			tableID, err := src.CreateTable(ctx, "acme", dbID, "contacts")
			So(err, ShouldBeNil)

			colID, err := src.CreateColumn(ctx, "acme", domain.Column{
				TableID: tableID, Name: "name", Type: "text", Required: true, Primary: true,
			})
			So(err, ShouldBeNil)

			databases, err := src.ListDatabases(ctx, "acme")
			So(err, ShouldBeNil)
			So(databases, ShouldHaveLength, 1)
			So(databases[0].ID, ShouldEqual, dbID)
			So(databases[0].Name, ShouldEqual, "crm")

			tables, err := src.ListTables(ctx, "acme", dbID)
			So(err, ShouldBeNil)
			So(tables, ShouldHaveLength, 1)
			So(tables[0].DatabaseID, ShouldEqual, dbID)

			columns, err := src.ListColumns(ctx, "acme", tableID)
			So(err, ShouldBeNil)
			So(columns, ShouldHaveLength, 1)
			So(columns[0].ID, ShouldEqual, colID)
			So(columns[0].Required, ShouldBeTrue)
			So(columns[0].Primary, ShouldBeTrue)

			Convey("Listing is tenant-scoped", func() {
				other, err := src.ListDatabases(ctx, "globex")
				So(err, ShouldBeNil)
				So(other, ShouldBeEmpty)
			})
		})

		Convey("Every value kind survives storage", func() {
			dbID, _ := src.CreateDatabase(ctx, "acme", "crm")
			tableID, _ := src.CreateTable(ctx, "acme", dbID, "contacts")
			rowID, err := src.CreateRow(ctx, "acme", tableID)
			So(err, ShouldBeNil)

			at := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
			values := []any{"Ada", 36.5, true, at, nil}
			for i, raw := range values {
				v, err := domain.NewCellValue(raw)
				So(err, ShouldBeNil)
				So(src.CreateCell(ctx, "acme", rowID, string(rune('a'+i)), v), ShouldBeNil)
			}

			cells, err := src.ListCells(ctx, "acme", rowID)
			So(err, ShouldBeNil)
			So(cells, ShouldHaveLength, 5)
			So(cells[0].Value, ShouldEqual, "Ada")
			So(cells[1].Value, ShouldEqual, 36.5)
			So(cells[2].Value, ShouldEqual, true)
			So(cells[3].Value.(time.Time).Equal(at), ShouldBeTrue)
			So(cells[4].Value, ShouldBeNil)
		})

		Convey("ListRowsSince filters on the update timestamp", func() {
			dbID, _ := src.CreateDatabase(ctx, "acme", "crm")
			tableID, _ := src.CreateTable(ctx, "acme", dbID, "contacts")

			_, err := src.CreateRow(ctx, "acme", tableID)
			So(err, ShouldBeNil)
			_, err = src.CreateRow(ctx, "acme", tableID)
			So(err, ShouldBeNil)

			all, err := src.ListRows(ctx, "acme", tableID)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 2)

			past := time.Now().UTC().Add(-time.Hour)
			recent, err := src.ListRowsSince(ctx, "acme", tableID, past)
			So(err, ShouldBeNil)
			So(recent, ShouldHaveLength, 2)

			future := time.Now().UTC().Add(time.Hour)
			none, err := src.ListRowsSince(ctx, "acme", tableID, future)
			So(err, ShouldBeNil)
			So(none, ShouldBeEmpty)
		})

		Convey("Permissions and users round-trip", func() {
			dbID, _ := src.CreateDatabase(ctx, "acme", "crm")
			tableID, _ := src.CreateTable(ctx, "acme", dbID, "contacts")
			colID, _ := src.CreateColumn(ctx, "acme", domain.Column{TableID: tableID, Name: "name", Type: "text"})

			So(src.AddUser(ctx, "acme", domain.User{ID: "user-1", Email: "ada@example.com"}), ShouldBeNil)

			So(src.CreateTablePermission(ctx, "acme", domain.TablePermission{
				TableID: tableID, UserID: "user-1", CanRead: true, CanDelete: true,
			}), ShouldBeNil)
			So(src.CreateColumnPermission(ctx, "acme", domain.ColumnPermission{
				ColumnID: colID, UserID: "user-1", CanRead: true, CanEdit: true,
			}), ShouldBeNil)

			tablePerms, err := src.ListTablePermissions(ctx, "acme", tableID)
			So(err, ShouldBeNil)
			So(tablePerms, ShouldHaveLength, 1)
			So(tablePerms[0].ID, ShouldNotBeEmpty)
			So(tablePerms[0].CanDelete, ShouldBeTrue)

			colPerms, err := src.ListColumnPermissions(ctx, "acme", colID)
			So(err, ShouldBeNil)
			So(colPerms, ShouldHaveLength, 1)
			So(colPerms[0].CanEdit, ShouldBeTrue)

			users, err := src.ListUsers(ctx, "acme")
			So(err, ShouldBeNil)
			So(users, ShouldHaveLength, 1)
			So(users[0].Email, ShouldEqual, "ada@example.com")
		})
	})
}
