// ============================================================================
// Job Loop - periodic job admission
// ============================================================================
//
// Package: internal/agent
// File: jobloop.go
// Function: on every tick (and on a job's teardown, for back-to-back
// execution) decide whether to admit a new job, owning the
// single-job-per-producer invariant (spec.md §4.E).
// ============================================================================

package agent

import "github.com/bitsky-io/producer-agent/pkg/types"

// jobTick admits a new job if the slot is free, otherwise skips.
func (p *Producer) jobTick() {
	job := p.tryAcquireJob()
	if job == nil {
		log.Debug("job loop tick skipped; job already active")
		return
	}
	p.recordJobStarted()

	p.loopWg.Add(1)
	go func() {
		defer p.loopWg.Done()
		p.runJob(job)
	}()
}

// tryAcquireJob is Acquisition's atomic admission gate (spec.md §4.F):
// re-check jobId/lockJob/ending, then initialize a fresh RunningJob if
// the slot is free.
func (p *Producer) tryAcquireJob() *types.RunningJob {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.job != nil && (p.job.LockJob || p.job.Ending) {
		return nil
	}

	job := types.NewRunningJob(newJobID())
	p.job = job
	return job
}

func (p *Producer) recordJobStarted() {
	p.mu.Lock()
	m := p.metrics
	p.mu.Unlock()
	if m != nil {
		m.RecordJobStarted()
	}
}
