package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with defaults", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "podium")
				So(manager.subsystem, ShouldEqual, "loader")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 2, 3}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "unit")
				So(manager.histogramBuckets, ShouldResemble, []float64{1, 2, 3})
			})
		})

		Convey("When creating with empty values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "podium")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording store outcomes", func() {
			before := testutil.ToFloat64(current().storeOutcomes.WithLabelValues("daily_leader", "inserted"))
			RecordStoreOutcome("daily_leader", "inserted")
			RecordStoreOutcome("daily_leader", "inserted")

			Convey("Then the labelled counter advances", func() {
				after := testutil.ToFloat64(current().storeOutcomes.WithLabelValues("daily_leader", "inserted"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording event flow", func() {
			before := testutil.ToFloat64(current().eventsProcessed)
			RecordEventGenerated()
			RecordEventProcessed(1.5)
			RecordEventFailed()

			Convey("Then the processed counter advances", func() {
				So(testutil.ToFloat64(current().eventsProcessed)-before, ShouldEqual, 1)
			})
		})

		Convey("When recording the remaining collectors", func() {
			So(func() {
				RecordStoreError("weekly_leader", "conflict")
				RecordStoreRetry("weekly_leader")
				RecordStoreLatency("main_board", 0.3)
				RecordPartitionEnsured("day")
				UpdateLaneQueueDepth("0", 12)
				UpdateWorkerCount(4)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				UpdateDBPoolConnections(8, 5, 3)
			}, ShouldNotPanic)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(current().workerCount), ShouldEqual, 4)
				So(testutil.ToFloat64(current().laneQueueDepth.WithLabelValues("0")), ShouldEqual, 12)
				So(testutil.ToFloat64(current().dbPoolConnections.WithLabelValues("acquired")), ShouldEqual, 3)
			})
		})

		Convey("When gathering the custom registry", func() {
			families, err := GetRegistry().Gather()

			Convey("Then it exposes podium metrics", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global metrics reconfigured with a custom name and buckets", t, func() {
		Configure(WithNamespace("board"), WithSubsystem("batch"), WithHistogramBuckets([]float64{1, 10}))
		defer Configure()

		RecordEventProcessed(3)
		RecordStoreLatency("main_board", 20)
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)

		names := make(map[string]bool)
		for _, f := range families {
			names[f.GetName()] = true
		}

		Convey("Then collectors carry the new prefix", func() {
			So(names["board_batch_events_processed_total"], ShouldBeTrue)
			So(names["podium_loader_events_processed_total"], ShouldBeFalse)
		})

		Convey("Then latency histograms use the configured buckets", func() {
			So(names["board_batch_event_latency_milliseconds"], ShouldBeTrue)
			for _, f := range families {
				if f.GetName() == "board_batch_event_latency_milliseconds" {
					So(f.GetMetric()[0].GetHistogram().GetBucket(), ShouldHaveLength, 2)
				}
			}
		})
	})
}
