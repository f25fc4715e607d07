// Package dispatch implements the Result Dispatcher: it groups a
// reconciled batch of intelligences by destination and reports each
// group to its target system and to the control plane, tolerating
// failures in both without ever propagating them back to the job
// loop.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

var log = slog.Default()

// SOIReporter posts a bucket's intelligences to its target system.
type SOIReporter interface {
	Report(ctx context.Context, soi types.SOI, items []*types.Intelligence) error
}

// ControlPlaneReporter reports reconciled intelligences back to the
// Metadata Service.
type ControlPlaneReporter interface {
	UpdateIntelligences(ctx context.Context, baseURL, securityKey string, items []*types.Intelligence) error
}

// MetricsRecorder receives per-bucket dispatch outcomes. Optional: a
// Dispatcher with no recorder simply skips the calls.
type MetricsRecorder interface {
	RecordDispatchFailure(target string)
}

// Dispatcher fans reconciled intelligences out to SOIs and reports
// them back to the control plane.
type Dispatcher struct {
	soi          SOIReporter
	controlPlane ControlPlaneReporter
	metrics      MetricsRecorder
}

// NewDispatcher wires the two collaborators the dispatcher reports
// through.
func NewDispatcher(soi SOIReporter, controlPlane ControlPlaneReporter) *Dispatcher {
	return &Dispatcher{soi: soi, controlPlane: controlPlane}
}

// SetMetrics attaches a metrics recorder. Safe to skip; nil is a no-op.
func (d *Dispatcher) SetMetrics(m MetricsRecorder) {
	d.metrics = m
}

type bucket struct {
	soi   types.SOI
	items []*types.Intelligence
}

// Dispatch groups items by (method, baseURL+path) and reports each
// bucket concurrently. It never returns an error: dispatch failures
// are logged, and a control-plane update failure is tolerated because
// the control plane will eventually reissue the work (spec.md §4.G).
func (d *Dispatcher) Dispatch(ctx context.Context, cpBaseURL, cpSecurityKey string, items []*types.Intelligence) {
	buckets := groupByDestination(items)
	if len(buckets) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(buckets))
	for key, b := range buckets {
		go func(key string, b *bucket) {
			defer wg.Done()
			d.dispatchBucket(ctx, key, b, cpBaseURL, cpSecurityKey)
		}(key, b)
	}
	wg.Wait()
}

func (d *Dispatcher) dispatchBucket(ctx context.Context, key string, b *bucket, cpBaseURL, cpSecurityKey string) {
	if err := d.soi.Report(ctx, b.soi, b.items); err != nil {
		log.Debug("soi dispatch failed; marking bucket items failed", "destination", key, "error", err)
		for _, item := range b.items {
			types.SetIntelligenceState(item, types.StateFailed, err)
		}
		if d.metrics != nil {
			d.metrics.RecordDispatchFailure("soi")
		}
	}

	if err := d.controlPlane.UpdateIntelligences(ctx, cpBaseURL, cpSecurityKey, b.items); err != nil {
		log.Error("control plane update failed; items may be reissued", "destination", key, "error", err)
		if d.metrics != nil {
			d.metrics.RecordDispatchFailure("control_plane")
		}
	}
}

// groupByDestination buckets items by lower(method) ":" lower(baseURL+path).
// Items missing any of baseURL/method/path are skipped with a debug log.
// Each bucket retains the first observed SOI descriptor and only its
// own items (spec.md §9 flags the reference implementation's bug of
// forwarding the full outer list to every bucket; this is corrected).
func groupByDestination(items []*types.Intelligence) map[string]*bucket {
	buckets := make(map[string]*bucket)
	for _, item := range items {
		s := item.SOI
		if s.BaseURL == "" || s.Callback.Method == "" || s.Callback.Path == "" {
			log.Debug("skipping intelligence with incomplete soi descriptor", "globalId", item.GlobalID)
			continue
		}
		key := strings.ToLower(s.Callback.Method) + ":" + strings.ToLower(s.BaseURL+s.Callback.Path)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{soi: s}
			buckets[key] = b
		}
		b.items = append(b.items, item)
	}
	return buckets
}
