package model_test

import (
	"errors"
	"testing"
	"time"

	model "github.com/okian/podium/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestScoreEventValidate(t *testing.T) {
	convey.Convey("Given score events", t, func() {
		ts := time.Date(2013, time.March, 1, 0, 0, 0, 0, time.UTC)

		convey.Convey("When the event is complete", func() {
			err := model.ScoreEvent{UserID: "U1", Score: 0, Timestamp: ts}.Validate()

			convey.Convey("Then it should be valid", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a field is missing or out of range", func() {
			cases := []model.ScoreEvent{
				{Score: 10, Timestamp: ts},
				{UserID: "U1", Score: -1, Timestamp: ts},
				{UserID: "U1", Score: 10},
			}

			convey.Convey("Then each one is rejected with ErrInvalidEvent", func() {
				for _, e := range cases {
					err := e.Validate()
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, model.ErrInvalidEvent), convey.ShouldBeTrue)
				}
			})
		})
	})
}

func TestOutcomeString(t *testing.T) {
	convey.Convey("Given upsert outcomes", t, func() {
		convey.So(model.Inserted.String(), convey.ShouldEqual, "inserted")
		convey.So(model.Updated.String(), convey.ShouldEqual, "updated")
		convey.So(model.Skipped.String(), convey.ShouldEqual, "skipped")
		convey.So(model.Appended.String(), convey.ShouldEqual, "appended")
	})
}
