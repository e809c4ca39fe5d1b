package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "visiontags")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("pfx"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.feedback.Inc()

			Convey("Then metric names carry namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_namespace_test_subsystem_pfx_feedback_total")
			})
		})

		Convey("When creating with empty values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "visiontags")
				So(manager.subsystem, ShouldEqual, "analytics")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording domain metrics", func() {
			before := testutil.ToFloat64(globalManager.feedback)
			RecordFeedback()
			RecordFeedback()

			Convey("Then counters advance", func() {
				So(testutil.ToFloat64(globalManager.feedback), ShouldEqual, before+2)
			})
		})

		Convey("When updating gauges", func() {
			UpdateWindowSize(42)
			UpdateProjectionGroupSize("16", 7)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.windowSize), ShouldEqual, 42)
				So(testutil.ToFloat64(globalManager.projectionGroupSize.WithLabelValues("16")), ShouldEqual, 7)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordClassification("tinycnn", "ok")
				UpdateTotalRecords(10)
				RecordProjectionRefresh("recomputed")
				RecordProjectionLatency("16", 1.5)
				RecordIntegrityFault()
				RecordNeighborQuery(2.0)
				RecordSummaryQuery()
				RecordSaliencyLatency(3.0)
				RecordInferenceLatency("tinycnn", "explain", 4.0)
				RecordInferenceError("remote", "classify")
				UpdateModelsLoaded(2)
				RecordStoreLatency("memory", "insert", 0.1)
				RecordStoreError("sqlite", "last_n")
				RecordHTTPRequest("/analyze", "POST", "200")
				RecordHTTPRequestDuration("/analyze", "POST", "200", 12)
				RecordRateLimited()
				RecordErrorByComponent("projection", "integrity")
				RecordErrorByEndpoint("/feedback", "POST", "not_found")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})

		Convey("When measuring elapsed time", func() {
			start := time.Now().Add(-5 * time.Millisecond)

			Convey("Then Since reports milliseconds", func() {
				So(Since(start), ShouldBeGreaterThanOrEqualTo, 5)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordClassification("tinycnn", "ok")
					RecordNeighborQuery(float64(j))
					RecordHTTPRequest("/neighbors", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then nothing panics and the registry gathers", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}

func TestRegistryBuildInfo(t *testing.T) {
	Convey("Given the service registry", t, func() {
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)

		Convey("Then build info is exported", func() {
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(names, ShouldContain, "go_build_info")
		})
	})
}
