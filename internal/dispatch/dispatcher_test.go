package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

type fakeSOIReporter struct {
	mu    sync.Mutex
	calls []types.SOI
	items map[string][]*types.Intelligence
	err   error
}

func (f *fakeSOIReporter) Report(ctx context.Context, soi types.SOI, items []*types.Intelligence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, soi)
	if f.items == nil {
		f.items = make(map[string][]*types.Intelligence)
	}
	f.items[soi.BaseURL+soi.Callback.Path] = items
	return f.err
}

type fakeControlPlaneReporter struct {
	mu       sync.Mutex
	received []*types.Intelligence
	err      error
}

func (f *fakeControlPlaneReporter) UpdateIntelligences(ctx context.Context, baseURL, securityKey string, items []*types.Intelligence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, items...)
	return f.err
}

type fakeMetrics struct {
	mu       sync.Mutex
	failures []string
}

func (f *fakeMetrics) RecordDispatchFailure(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, target)
}

func item(globalID, baseURL, path string) *types.Intelligence {
	return &types.Intelligence{
		GlobalID: globalID,
		SOI:      types.SOI{BaseURL: baseURL, Callback: types.SOICallback{Method: "POST", Path: path}},
	}
}

func TestDispatchGroupsByDestination(t *testing.T) {
	soiReporter := &fakeSOIReporter{}
	cp := &fakeControlPlaneReporter{}
	d := NewDispatcher(soiReporter, cp)

	items := []*types.Intelligence{
		item("i-1", "https://a.example.com", "/ingest"),
		item("i-2", "https://a.example.com", "/ingest"),
		item("i-3", "https://b.example.com", "/ingest"),
	}

	d.Dispatch(context.Background(), "https://cp.example.com", "key", items)

	require.Len(t, soiReporter.calls, 2, "two destinations should get one Report call each")
	assert.Len(t, soiReporter.items["https://a.example.com/ingest"], 2)
	assert.Len(t, soiReporter.items["https://b.example.com/ingest"], 1)
	assert.Len(t, cp.received, 3)
}

func TestDispatchSkipsIncompleteDescriptors(t *testing.T) {
	soiReporter := &fakeSOIReporter{}
	cp := &fakeControlPlaneReporter{}
	d := NewDispatcher(soiReporter, cp)

	items := []*types.Intelligence{{GlobalID: "no-soi"}}
	d.Dispatch(context.Background(), "https://cp.example.com", "key", items)

	assert.Empty(t, soiReporter.calls)
	assert.Empty(t, cp.received)
}

func TestDispatchMarksItemsFailedOnSOIError(t *testing.T) {
	soiReporter := &fakeSOIReporter{err: errors.New("soi down")}
	cp := &fakeControlPlaneReporter{}
	d := NewDispatcher(soiReporter, cp)

	items := []*types.Intelligence{item("i-1", "https://a.example.com", "/ingest")}
	d.Dispatch(context.Background(), "https://cp.example.com", "key", items)

	require.Len(t, cp.received, 1)
	assert.Equal(t, types.StateFailed, cp.received[0].System.State)
}

func TestDispatchTolerantOfControlPlaneFailure(t *testing.T) {
	soiReporter := &fakeSOIReporter{}
	cp := &fakeControlPlaneReporter{err: errors.New("cp down")}
	d := NewDispatcher(soiReporter, cp)

	items := []*types.Intelligence{item("i-1", "https://a.example.com", "/ingest")}
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), "https://cp.example.com", "key", items)
	})
}

func TestDispatchEmptyBatch(t *testing.T) {
	soiReporter := &fakeSOIReporter{}
	cp := &fakeControlPlaneReporter{}
	d := NewDispatcher(soiReporter, cp)

	d.Dispatch(context.Background(), "https://cp.example.com", "key", nil)
	assert.Empty(t, soiReporter.calls)
}

func TestDispatchRecordsMetricsOnFailure(t *testing.T) {
	soiReporter := &fakeSOIReporter{err: errors.New("soi down")}
	cp := &fakeControlPlaneReporter{err: errors.New("cp down")}
	d := NewDispatcher(soiReporter, cp)
	m := &fakeMetrics{}
	d.SetMetrics(m)

	items := []*types.Intelligence{item("i-1", "https://a.example.com", "/ingest")}
	d.Dispatch(context.Background(), "https://cp.example.com", "key", items)

	assert.ElementsMatch(t, []string{"soi", "control_plane"}, m.failures)
}

func TestDispatchNilMetricsIsNoOp(t *testing.T) {
	soiReporter := &fakeSOIReporter{err: errors.New("soi down")}
	cp := &fakeControlPlaneReporter{}
	d := NewDispatcher(soiReporter, cp)

	items := []*types.Intelligence{item("i-1", "https://a.example.com", "/ingest")}
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), "https://cp.example.com", "key", items)
	})
}
