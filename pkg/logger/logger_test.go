package logger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the logger package", t, func() {
		Convey("When initializing with the default format", func() {
			err := Init()

			Convey("Then a global logger is available", func() {
				So(err, ShouldBeNil)
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initializing with json format", func() {
			So(InitWithFormat("json"), ShouldBeNil)
			So(Get(), ShouldNotBeNil)
		})

		Convey("When initializing with an unknown format", func() {
			err := InitWithFormat("xml")

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown log format")
			})
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing into a buffer", t, func() {
		var buf bytes.Buffer
		SetOutput(&buf)
		defer SetOutput(os.Stdout)
		So(Init(), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Get().With(String("run_id", "r1")).Named("engine").Info(ctx, "event processed",
				Int64("score", 120), Error(errors.New("boom")))
			out := buf.String()

			Convey("Then fields, name and source are rendered", func() {
				So(out, ShouldContainSubstring, "event processed")
				So(out, ShouldContainSubstring, "run_id=r1")
				So(out, ShouldContainSubstring, "logger=engine")
				So(out, ShouldContainSubstring, "score=120")
				So(out, ShouldContainSubstring, "error=boom")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When names are chained", func() {
			Get().Named("service").With(String("run_id", "r2")).Named("lane-3").Info(ctx, "lane started")
			out := buf.String()

			Convey("Then they render as one joined attribute", func() {
				So(out, ShouldContainSubstring, "logger=service.lane-3")
				So(strings.Count(out, "logger="), ShouldEqual, 1)
				So(out, ShouldContainSubstring, "run_id=r2")
			})
		})

		Convey("When chained names are written as json", func() {
			So(InitWithFormat("json"), ShouldBeNil)
			Get().Named("service").Named("engine").Info(ctx, "store write")
			out := buf.String()

			Convey("Then the logger key appears once", func() {
				So(out, ShouldContainSubstring, `"logger":"service.engine"`)
				So(strings.Count(out, `"logger"`), ShouldEqual, 1)
			})
		})

		Convey("When logging below the configured level", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			defer func() { _ = SetLevelString("info") }()
			Get().Debug(ctx, "hidden")
			Get().Info(ctx, "also hidden")
			Get().Warn(ctx, "shown")

			Convey("Then only the warning is written", func() {
				So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
				So(buf.String(), ShouldContainSubstring, "shown")
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "info", "", "warn", "warning", "error", " DEBUG "} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		_ = SetLevelString("info")
	})
}
