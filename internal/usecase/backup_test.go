package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"tenantvault/internal/adapter/source"
	"tenantvault/internal/domain"
)

func TestBackupLifecycle(t *testing.T) {
	Convey("Given a backup manager over a seeded tenant", t, func() {
		ctx := context.Background()
		src := source.NewMemory()
		fx := seedTenant(t, src, "acme")
		backup, store, artifacts := newTestBackup(t, src)

		Convey("A full backup runs to completion and seals an artifact", func() {
			job, err := backup.Create(ctx, "acme", domain.BackupFull, "nightly", "scheduler")
			So(err, ShouldBeNil)
			So(job.Status, ShouldEqual, domain.StatusPending)
			So(job.ID, ShouldNotBeEmpty)

			backup.Wait()

			final, err := store.GetBackupJob(ctx, job.ID)
			So(err, ShouldBeNil)
			So(final.Status, ShouldEqual, domain.StatusCompleted)
			So(final.StartedAt, ShouldNotBeNil)
			So(final.CompletedAt, ShouldNotBeNil)
			So(final.Checksum, ShouldHaveLength, 64)
			So(final.SizeBytes, ShouldBeGreaterThan, 0)
			So(final.Metadata.TableCount, ShouldEqual, 2)
			So(final.Metadata.RowCount, ShouldEqual, 3)

			data, err := artifacts.Get(ctx, final.FilePath)
			So(err, ShouldBeNil)
			So(int64(len(data)), ShouldEqual, final.SizeBytes)
		})

		Convey("An empty tenant id is rejected before a job exists", func() {
			_, err := backup.Create(ctx, "", domain.BackupFull, "", "tester")

			var invalid *domain.InvalidStateError
			So(errors.As(err, &invalid), ShouldBeTrue)
		})

		Convey("An unknown backup type is rejected before a job exists", func() {
			_, err := backup.Create(ctx, "acme", domain.BackupType("differential"), "", "tester")

			var invalid *domain.InvalidStateError
			So(errors.As(err, &invalid), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "differential")
		})

		Convey("A failed backup leaves no artifact behind", func() {
			src.Hook = func(_ context.Context, op string) error {
				if strings.HasPrefix(op, "list_cells:") {
					return fmt.Errorf("source unavailable")
				}
				return nil
			}

			final := runBackup(t, backup, store, "acme", domain.BackupFull)
			So(final.Status, ShouldEqual, domain.StatusFailed)
			So(final.Error, ShouldNotBeNil)
			So(*final.Error, ShouldContainSubstring, "source unavailable")
			So(final.FilePath, ShouldBeEmpty)

			keys, err := artifacts.List(ctx)
			So(err, ShouldBeNil)
			So(keys, ShouldBeEmpty)
		})

		Convey("An incremental backup only captures rows changed since the last completed one", func() {
			first := runBackup(t, backup, store, "acme", domain.BackupFull)
			So(first.Status, ShouldEqual, domain.StatusCompleted)

			past := first.StartedAt.Add(-time.Hour)
			for _, rowID := range fx.RowIDs {
				src.TouchRow("acme", fx.ContactsID, rowID, past)
				src.TouchRow("acme", fx.DealsID, rowID, past)
			}
			fresh, err := src.CreateRow(ctx, "acme", fx.ContactsID)
			So(err, ShouldBeNil)
			src.TouchRow("acme", fx.ContactsID, fresh, first.StartedAt.Add(time.Hour))

			second := runBackup(t, backup, store, "acme", domain.BackupIncremental)
			So(second.Status, ShouldEqual, domain.StatusCompleted)
			So(second.Metadata.RowCount, ShouldEqual, 1)
		})

		Convey("An incremental backup with no prior completed backup captures everything", func() {
			final := runBackup(t, backup, store, "acme", domain.BackupIncremental)
			So(final.Status, ShouldEqual, domain.StatusCompleted)
			So(final.Metadata.RowCount, ShouldEqual, 3)
		})

		Convey("Cancelling an in-progress backup settles it as cancelled with no artifact", func() {
			release := make(chan struct{})
			src.Hook = func(hookCtx context.Context, op string) error {
				if strings.HasPrefix(op, "list_rows:") {
					close(release)
					<-hookCtx.Done()
					return hookCtx.Err()
				}
				return nil
			}

			job, err := backup.Create(ctx, "acme", domain.BackupFull, "", "tester")
			So(err, ShouldBeNil)

			<-release
			So(backup.Cancel(ctx, job.ID), ShouldBeNil)
			backup.Wait()

			final, err := store.GetBackupJob(ctx, job.ID)
			So(err, ShouldBeNil)
			So(final.Status, ShouldEqual, domain.StatusCancelled)

			keys, err := artifacts.List(ctx)
			So(err, ShouldBeNil)
			So(keys, ShouldBeEmpty)
		})

		Convey("Cancelling a settled backup is rejected", func() {
			final := runBackup(t, backup, store, "acme", domain.BackupFull)
			So(final.Status, ShouldEqual, domain.StatusCompleted)

			err := backup.Cancel(ctx, final.ID)

			var invalid *domain.InvalidStateError
			So(errors.As(err, &invalid), ShouldBeTrue)
		})

		Convey("Cancelling an unknown job returns ErrNotFound", func() {
			err := backup.Cancel(ctx, "no-such-job")
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("Stats reflect the full job history", func() {
			ok := runBackup(t, backup, store, "acme", domain.BackupFull)
			So(ok.Status, ShouldEqual, domain.StatusCompleted)

			src.Hook = func(_ context.Context, op string) error {
				if op == "list_databases" {
					return fmt.Errorf("boom")
				}
				return nil
			}
			failed := runBackup(t, backup, store, "acme", domain.BackupFull)
			So(failed.Status, ShouldEqual, domain.StatusFailed)

			stats, err := backup.Stats(ctx, "acme")
			So(err, ShouldBeNil)
			So(stats.TotalBackups, ShouldEqual, 2)
			So(stats.TotalSizeBytes, ShouldEqual, ok.SizeBytes)
			So(stats.SuccessRate, ShouldAlmostEqual, 0.5)
			So(stats.LastBackupAt, ShouldNotBeNil)
		})

		Convey("List is tenant-scoped and most recent first", func() {
			first := runBackup(t, backup, store, "acme", domain.BackupFull)
			second := runBackup(t, backup, store, "acme", domain.BackupSchemaOnly)
			runBackup(t, backup, store, "other", domain.BackupFull)

			jobs, err := backup.List(ctx, "acme")
			So(err, ShouldBeNil)
			So(jobs, ShouldHaveLength, 2)
			So(jobs[0].ID, ShouldEqual, second.ID)
			So(jobs[1].ID, ShouldEqual, first.ID)
		})
	})
}
