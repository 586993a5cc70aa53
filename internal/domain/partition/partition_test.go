package partition_test

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/okian/podium/internal/domain/partition"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCalendar(t *testing.T) {
	Convey("Given a calendar in America/Detroit", t, func() {
		loc, err := time.LoadLocation("America/Detroit")
		So(err, ShouldBeNil)
		cal := partition.NewCalendar(loc)

		Convey("When resolving a mid-week timestamp", func() {
			// Friday 1 March 2013.
			ts := time.Date(2013, time.March, 1, 13, 45, 0, 0, loc)
			day, week, prev := cal.Resolve(ts)

			Convey("Then day, week and previous week follow the calendar", func() {
				So(day, ShouldEqual, partition.ID("20130301"))
				So(week, ShouldEqual, partition.ID("20130224"))
				So(prev, ShouldEqual, partition.ID("20130217"))
			})
		})

		Convey("When the timestamp is a Sunday", func() {
			ts := time.Date(2013, time.March, 3, 0, 0, 0, 0, loc)

			Convey("Then the week starts on that day", func() {
				So(cal.WeekID(ts), ShouldEqual, partition.ID("20130303"))
			})
		})

		Convey("When the timestamp follows the spring DST transition", func() {
			// DST starts on Sunday 10 March 2013; Monday 00:30 must still
			// belong to the week of the 10th.
			ts := time.Date(2013, time.March, 11, 0, 30, 0, 0, loc)

			Convey("Then the week start is not shifted", func() {
				So(cal.DayID(ts), ShouldEqual, partition.ID("20130311"))
				So(cal.WeekID(ts), ShouldEqual, partition.ID("20130310"))
			})
		})

		Convey("When the timestamp is given in UTC", func() {
			// 2013-03-02 03:00 UTC is still 1 March in Detroit.
			ts := time.Date(2013, time.March, 2, 3, 0, 0, 0, time.UTC)

			Convey("Then the calendar location decides the day", func() {
				So(cal.DayID(ts), ShouldEqual, partition.ID("20130301"))
			})
		})

		Convey("When stepping back across a month boundary", func() {
			prev, err := cal.PreviousWeekID("20130303")

			Convey("Then it lands exactly seven days earlier", func() {
				So(err, ShouldBeNil)
				So(prev, ShouldEqual, partition.ID("20130224"))
			})
		})

		Convey("When the week id is malformed", func() {
			_, err := cal.PreviousWeekID("2013-03-03")

			Convey("Then ErrInvalidID is returned", func() {
				So(errors.Is(err, partition.ErrInvalidID), ShouldBeTrue)
			})
		})
	})

	Convey("Given a zero calendar", t, func() {
		var cal partition.Calendar

		Convey("Then it falls back to UTC", func() {
			So(cal.Location(), ShouldEqual, time.UTC)
			So(cal.DayID(time.Date(2024, time.January, 1, 23, 0, 0, 0, time.UTC)), ShouldEqual, partition.ID("20240101"))
		})
	})

	Convey("Given partition kinds", t, func() {
		So(partition.Day.String(), ShouldEqual, "day")
		So(partition.Week.String(), ShouldEqual, "week")
	})
}
