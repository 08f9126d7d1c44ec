package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "sustainability")
				So(manager.subsystem, ShouldEqual, "pipeline")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test-namespace")
				So(manager.subsystem, ShouldEqual, "test-subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})
		})

		Convey("When creating with empty values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "sustainability")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording run metrics", func() {
			before := testutil.ToFloat64(globalManager.runsTotal.WithLabelValues("ok"))
			RecordRun("ok")
			RecordPhase("score", "ok", 12)
			RecordRowsScored(40)
			RecordRowsPersisted(40)

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.runsTotal.WithLabelValues("ok")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.lastRunScore), ShouldEqual, 40)
				So(testutil.ToFloat64(globalManager.phaseOutcomes.WithLabelValues("score", "ok")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording fail-open outcomes", func() {
			So(func() {
				RecordLockOutcome("fail_open")
				RecordSnapshotLookup(true)
				RecordSnapshotLookup(false)
				RecordStoreError("upsert_rows")
				RecordRetroEnqueued()
				RecordConfigFallback()
				RecordErrorByComponent("repository", "unavailable")
			}, ShouldNotPanic)

			Convey("Then lookups are split by result", func() {
				So(testutil.ToFloat64(globalManager.snapshotReuse.WithLabelValues("hit")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.snapshotReuse.WithLabelValues("miss")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording queue and worker metrics", func() {
			So(func() {
				UpdateQueueCapacity(16)
				UpdateQueueSize(3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueDuplicate()
				RecordQueueProcessingLatency(4)
				UpdateWorkerActiveCount(1)
				RecordWorkerProcessingLatency(9)
				RecordWorkerError()
				RecordRepositoryWriteLatency(2)
				RecordRepositoryQueryLatency(1)
			}, ShouldNotPanic)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 16)
			})
		})
	})
}

func TestHandler(t *testing.T) {
	Convey("Given recorded metrics", t, func() {
		RecordRun("degraded")

		Convey("When scraping the handler", func() {
			rec := httptest.NewRecorder()
			Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			body, err := io.ReadAll(rec.Body)
			So(err, ShouldBeNil)

			Convey("Then the custom registry is exposed", func() {
				So(rec.Code, ShouldEqual, 200)
				So(strings.Contains(string(body), "sustainability_pipeline_runs_total"), ShouldBeTrue)
				So(strings.Contains(string(body), "go_goroutines"), ShouldBeFalse)
			})
		})
	})
}
