package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) Infof(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(template, args...))
}

func (l *recordingLogger) Errorf(template string, args ...interface{}) {
	l.Infof(template, args...)
}

func (l *recordingLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		log := &recordingLogger{}
		sched := New(log)

		Convey("A valid cron spec registers and is logged", func() {
			err := sched.AddJob("nightly-backup", "0 2 * * *", func(context.Context) error { return nil })

			So(err, ShouldBeNil)
			entries := log.all()
			So(entries, ShouldHaveLength, 1)
			So(entries[0], ShouldContainSubstring, "nightly-backup")
			So(entries[0], ShouldContainSubstring, "0 2 * * *")
		})

		Convey("An invalid cron spec is rejected", func() {
			err := sched.AddJob("broken", "not a spec", func(context.Context) error { return nil })

			So(err, ShouldNotBeNil)
			So(log.all(), ShouldBeEmpty)
		})

		Convey("A six-field spec is rejected, only standard specs are accepted", func() {
			err := sched.AddJob("too-fine", "* * * * * *", func(context.Context) error { return nil })
			So(err, ShouldNotBeNil)
		})

		Convey("Start and Stop are clean with jobs registered", func() {
			err := sched.AddJob("retention", "0 3 * * *", func(context.Context) error { return nil })
			So(err, ShouldBeNil)

			So(func() { sched.Start() }, ShouldNotPanic)
			So(func() { sched.Stop() }, ShouldNotPanic)
		})
	})
}
