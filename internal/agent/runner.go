// ============================================================================
// Job Runner - executes one job to completion
// ============================================================================
//
// Package: internal/agent
// File: runner.go
// Function: the state machine driving one job through
// ACQUIRING → EXECUTING → (COMPLETING | TIMING_OUT) → REPORTING →
// TEARDOWN (spec.md §4.F). Acquisition itself lives in jobloop.go's
// tryAcquireJob; this file starts at Fetch.
// ============================================================================

package agent

import (
	"context"
	"time"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

const timeoutReason = "collect intelligences timeout"
const unresolvedReason = "timeout or not resolved"

// runJob drives job from Fetch through Teardown. Any error or panic
// inside is caught here, logged, and funneled into teardown plus an
// immediate re-tick — the loop must never die from a single bad job
// (spec.md §4.F, "Failure semantics").
func (p *Producer) runJob(job *types.RunningJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job runner panicked; tearing down", "jobId", job.JobID, "panic", r)
		}
		p.teardown(job)
		p.recordJobDuration(job)
		p.retick()
	}()

	snap := p.resolver.Resolve()
	cfg := p.ProducerConfiguration()
	if cfg == nil {
		log.Warn("job runner started with no adopted config; tearing down", "jobId", job.JobID)
		return
	}

	items, err := p.cpClient.GetIntelligences(context.Background(), snap.BaseURL, snap.GlobalID, snap.SecurityKey)
	if err != nil {
		log.Error("failed to fetch intelligences", "jobId", job.JobID, "error", err)
		return
	}

	if len(items) == 0 {
		p.livenessCheck(job, cfg)
		return
	}

	p.mu.Lock()
	p.ranJobNumber++
	p.mu.Unlock()

	job.TotalIntelligences = items
	p.execute(job, cfg)

	final := p.reconcile(job)
	if final == nil {
		return
	}

	p.dispatcher.Dispatch(context.Background(), snap.BaseURL, snap.SecurityKey, final)
}

// livenessCheck invokes the worker once with an empty batch so it can
// observe liveness, then tears down without reporting (spec.md §4.F,
// "Fetch": "On empty result").
func (p *Producer) livenessCheck(job *types.RunningJob, cfg *types.ProducerConfig) {
	w := p.Worker()
	if w == nil {
		return
	}
	outcomes := w.Run(context.Background(), nil, job.JobID, *cfg)
	for range outcomes {
	}
}

// execute hands the batch to the worker and races its completion
// against COLLECT_JOB_TIMEOUT (spec.md §4.F, "Execution").
func (p *Producer) execute(job *types.RunningJob, cfg *types.ProducerConfig) {
	w := p.Worker()
	if w == nil {
		log.Warn("no worker installed; every item will be marked failed as unresolved", "jobId", job.JobID)
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), p.constants.CollectJobTimeout)
	defer cancel()

	p.mu.Lock()
	job.TimeoutHandle = cancel
	p.mu.Unlock()

	var outcomes <-chan types.Outcome
	if w != nil {
		outcomes = w.Run(jobCtx, job.TotalIntelligences, job.JobID, *cfg)
	} else {
		closed := make(chan types.Outcome)
		close(closed)
		outcomes = closed
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for outcome := range outcomes {
			p.reconcileOutcome(job, outcome)
		}
	}()

	select {
	case <-drained:
		// (a) worker completed first.
	case <-jobCtx.Done():
		// (b) timeout first.
		p.applyTimeout(job)
	}
}

// reconcileOutcome writes one asynchronous outcome into
// collectedByGlobalId, unless the timeout has already won the race for
// this job (spec.md §4.F, "late outcomes ... are ignored").
func (p *Producer) reconcileOutcome(job *types.RunningJob, outcome types.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if job.JobTimeout {
		return
	}
	if outcome.GlobalID == "" {
		log.Debug("dropping outcome with no globalId", "jobId", job.JobID)
		return
	}

	switch {
	case outcome.Err != nil:
		orig := findByGlobalID(job.TotalIntelligences, outcome.GlobalID)
		if orig == nil {
			return
		}
		item := *orig
		types.SetIntelligenceState(&item, types.StateFailed, outcome.Err)
		job.CollectedByGlobalID[outcome.GlobalID] = &item

	case outcome.Item != nil:
		item := *outcome.Item
		types.SetIntelligenceState(&item, types.StateFinished, nil)
		job.CollectedByGlobalID[outcome.GlobalID] = &item

	default:
		log.Debug("dropping outcome with neither item nor error", "jobId", job.JobID, "globalId", outcome.GlobalID)
		return
	}

	job.CollectedCount = len(job.CollectedByGlobalID)
}

// applyTimeout marks every item in the batch TIMEOUT regardless of any
// outcome that may still arrive (spec.md §4.F, "(b) Timeout first").
func (p *Producer) applyTimeout(job *types.RunningJob) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if job.JobTimeout {
		return
	}
	job.JobTimeout = true

	for _, orig := range job.TotalIntelligences {
		item := *orig
		types.SetIntelligenceState(&item, types.StateTimeout, timeoutReason)
		job.CollectedByGlobalID[item.GlobalID] = &item
	}
	job.CollectedCount = len(job.CollectedByGlobalID)

	if p.metrics != nil {
		p.metrics.RecordJobTimeout()
	}
}

// reconcile builds the final ordered list entering REPORTING (spec.md
// §4.F, "Reconciliation"), guarded by Ending so only the first caller
// per job proceeds.
func (p *Producer) reconcile(job *types.RunningJob) []*types.Intelligence {
	p.mu.Lock()
	defer p.mu.Unlock()

	if job.Ending {
		return nil
	}
	job.Ending = true

	final := make([]*types.Intelligence, 0, len(job.TotalIntelligences))
	for _, orig := range job.TotalIntelligences {
		collected, ok := job.CollectedByGlobalID[orig.GlobalID]
		if !ok {
			item := *orig
			types.SetIntelligenceState(&item, types.StateFailed, unresolvedReason)
			final = append(final, &item)
			continue
		}
		if collected.System.State == "" {
			item := *collected
			if len(item.Dataset) > 0 {
				types.SetIntelligenceState(&item, types.StateFinished, nil)
			} else {
				types.SetIntelligenceState(&item, types.StateFailed, nil)
			}
			final = append(final, &item)
			continue
		}
		final = append(final, collected)
	}
	return final
}

// teardown cancels the job's slot, restoring the IDLE invariants
// (spec.md §4.F, "Teardown").
func (p *Producer) teardown(job *types.RunningJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job == job {
		p.job = nil
	}
}

func (p *Producer) recordJobDuration(job *types.RunningJob) {
	p.mu.Lock()
	m := p.metrics
	p.mu.Unlock()
	if m != nil {
		m.RecordJobDuration(time.Since(job.StartTime).Seconds())
	}
}

func findByGlobalID(items []*types.Intelligence, globalID string) *types.Intelligence {
	for _, item := range items {
		if item.GlobalID == globalID {
			return item
		}
	}
	return nil
}
