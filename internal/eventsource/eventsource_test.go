package eventsource_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/eventsource"
)

func drain(src eventsource.Source) ([]model.ScoreEvent, error) {
	var out []model.ScoreEvent
	for {
		e, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

func smallConfig(seed uint64) eventsource.GeneratorConfig {
	cfg := eventsource.DefaultGeneratorConfig(time.UTC)
	cfg.Users = 50
	cfg.Steps = 20
	cfg.Seed = seed
	return cfg
}

func TestGenerator(t *testing.T) {
	Convey("Given two generators with the same seed", t, func() {
		a, err := eventsource.NewGenerator(smallConfig(7))
		So(err, ShouldBeNil)
		b, err := eventsource.NewGenerator(smallConfig(7))
		So(err, ShouldBeNil)

		Convey("Then they emit identical streams", func() {
			ea, err := drain(a)
			So(err, ShouldBeNil)
			eb, err := drain(b)
			So(err, ShouldBeNil)
			So(ea, ShouldResemble, eb)
			So(a.Roster(), ShouldResemble, b.Roster())
		})
	})

	Convey("Given a generator", t, func() {
		cfg := smallConfig(42)
		g, err := eventsource.NewGenerator(cfg)
		So(err, ShouldBeNil)
		events, err := drain(g)
		So(err, ShouldBeNil)

		Convey("Then roster ids carry the fixed prefix", func() {
			roster := g.Roster()
			So(roster, ShouldHaveLength, 50)
			for _, id := range roster {
				So(strings.HasPrefix(id, "10000"), ShouldBeTrue)
				So(len(id), ShouldEqual, 15)
			}
		})

		Convey("Then the event count per step stays in range", func() {
			So(len(events), ShouldBeBetweenOrEqual, cfg.Steps*cfg.MinPerStep, cfg.Steps*cfg.MaxPerStep)
		})

		Convey("Then scores stay in range and timestamps never go back", func() {
			last := cfg.Start
			end := cfg.Start.Add(time.Duration(cfg.Steps-1) * cfg.Step)
			for _, e := range events {
				So(e.Validate(), ShouldBeNil)
				So(e.Score, ShouldBeBetweenOrEqual, 0, 1000000)
				So(e.Timestamp.Before(last), ShouldBeFalse)
				So(e.Timestamp.After(end), ShouldBeFalse)
				last = e.Timestamp
			}
		})

		Convey("Then it stays exhausted", func() {
			_, err := g.Next(context.Background())
			So(err, ShouldEqual, io.EOF)
		})
	})

	Convey("Given invalid generator configs", t, func() {
		cfg := smallConfig(1)
		cfg.Users = 0
		_, err := eventsource.NewGenerator(cfg)
		So(errors.Is(err, eventsource.ErrInvalidGenerator), ShouldBeTrue)

		cfg = smallConfig(1)
		cfg.MaxPerStep = cfg.MinPerStep - 1
		_, err = eventsource.NewGenerator(cfg)
		So(errors.Is(err, eventsource.ErrInvalidGenerator), ShouldBeTrue)
	})

	Convey("StepsFor covers whole days", t, func() {
		So(eventsource.StepsFor(31, time.Minute), ShouldEqual, 31*24*60)
		So(eventsource.StepsFor(1, 0), ShouldEqual, 0)
	})
}

func TestFileRoundTrip(t *testing.T) {
	Convey("Given generated events written to a file", t, func() {
		g, err := eventsource.NewGenerator(smallConfig(3))
		So(err, ShouldBeNil)
		want, err := drain(g)
		So(err, ShouldBeNil)

		path := filepath.Join(t.TempDir(), "events.ndjson")
		f, err := os.Create(path)
		So(err, ShouldBeNil)
		w := eventsource.NewWriter(f)
		n, err := w.Copy(context.Background(), eventsource.NewSlice(want...))
		So(err, ShouldBeNil)
		So(n, ShouldEqual, len(want))
		So(f.Close(), ShouldBeNil)

		Convey("When the file is replayed", func() {
			src, err := eventsource.OpenFile(path)
			So(err, ShouldBeNil)
			defer src.Close()
			got, err := drain(src)

			Convey("Then the same events come back", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, len(want))
				for i := range want {
					So(got[i].UserID, ShouldEqual, want[i].UserID)
					So(got[i].Score, ShouldEqual, want[i].Score)
					So(got[i].Timestamp.Equal(want[i].Timestamp), ShouldBeTrue)
				}
			})
		})
	})

	Convey("Given a stream with an invalid event", t, func() {
		in := `{"user_id":"U1","score":10,"timestamp":"2013-03-01T00:00:00Z"}
{"user_id":"","score":5,"timestamp":"2013-03-01T00:01:00Z"}
`
		src := eventsource.NewReader(strings.NewReader(in))

		Convey("Then the first event decodes and the second is rejected", func() {
			e, err := src.Next(context.Background())
			So(err, ShouldBeNil)
			So(e.UserID, ShouldEqual, "U1")

			_, err = src.Next(context.Background())
			So(errors.Is(err, model.ErrInvalidEvent), ShouldBeTrue)
		})
	})

	Convey("Given malformed JSON", t, func() {
		src := eventsource.NewReader(bytes.NewBufferString("{not json}\n"))
		_, err := src.Next(context.Background())
		So(err, ShouldNotBeNil)
		So(err, ShouldNotEqual, io.EOF)
	})
}

func TestThrottle(t *testing.T) {
	ev := model.ScoreEvent{UserID: "U1", Score: 1, Timestamp: time.Date(2013, time.March, 1, 0, 0, 0, 0, time.UTC)}

	Convey("A non-positive rate leaves the source untouched", t, func() {
		src := eventsource.NewSlice(ev)
		So(eventsource.Throttle(src, 0), ShouldEqual, src)
	})

	Convey("Given a throttled source", t, func() {
		src := eventsource.Throttle(eventsource.NewSlice(ev, ev, ev), 1000)

		Convey("Then every event passes through", func() {
			got, err := drain(src)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 3)
		})
	})

	Convey("Given a slow throttle and a cancelled context", t, func() {
		src := eventsource.Throttle(eventsource.NewSlice(ev, ev), 0.001)
		_, err := src.Next(context.Background())
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = src.Next(ctx)
		So(err, ShouldNotBeNil)
	})
}
