package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.configFetchTotal, "configFetchTotal counter should be initialized")
	assert.NotNil(t, collector.jobsStartedTotal, "jobsStartedTotal counter should be initialized")
	assert.NotNil(t, collector.jobsTimeoutTotal, "jobsTimeoutTotal counter should be initialized")
	assert.NotNil(t, collector.dispatchFailures, "dispatchFailures counter should be initialized")
	assert.NotNil(t, collector.jobDuration, "jobDuration histogram should be initialized")
	assert.NotNil(t, collector.watchBackoff, "watchBackoff gauge should be initialized")
}

func TestRecordConfigFetch(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordConfigFetch(true)
		collector.RecordConfigFetch(false)
	}, "RecordConfigFetch should not panic")
}

func TestRecordJobStarted(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			collector.RecordJobStarted()
		}
	}, "RecordJobStarted should not panic")
}

func TestRecordJobTimeout(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordJobTimeout()
	}, "RecordJobTimeout should not panic")
}

func TestRecordJobDuration(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	durations := []float64{0.001, 0.01, 0.1, 1.0, 5.0}
	for _, d := range durations {
		assert.NotPanics(t, func() {
			collector.RecordJobDuration(d)
		}, "RecordJobDuration should not panic with duration %f", d)
	}
}

func TestRecordDispatchFailure(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordDispatchFailure("soi")
		collector.RecordDispatchFailure("control_plane")
	}, "RecordDispatchFailure should not panic")
}

func TestSetWatchBackoff(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	backoffs := []float64{30, 60, 120, 240}
	for _, b := range backoffs {
		assert.NotPanics(t, func() {
			collector.SetWatchBackoff(b)
		}, "SetWatchBackoff should not panic with value %f", b)
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	done := make(chan bool, 100)

	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordConfigFetch(true)
			collector.RecordJobStarted()
			collector.RecordJobDuration(0.1)
			collector.SetWatchBackoff(30)
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	// A second collector will panic due to duplicate registration; a
	// process should have only one collector.
	assert.Panics(t, func() {
		NewCollector()
	}, "Creating a second collector should panic due to duplicate registration")
}

func TestJobLifecycleSequence(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordConfigFetch(true)
		collector.RecordJobStarted()
		collector.RecordJobDuration(0.5)
	}, "complete job lifecycle should not panic")
}

func TestJobTimeoutSequence(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordConfigFetch(true)
		collector.RecordJobStarted()
		collector.RecordJobTimeout()
		collector.RecordDispatchFailure("soi")
	}, "job timeout scenario should not panic")
}

func TestZeroAndNegativeValues(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordJobDuration(0.0)
		collector.SetWatchBackoff(0.0)
		collector.SetWatchBackoff(-1)
	}, "edge case values should not panic")
}
