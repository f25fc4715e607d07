// ============================================================================
// Producer Façade - lifecycle API for the producer agent
// ============================================================================
//
// Package: internal/agent
// File: producer.go
// Function: the public start/stop surface and the owning control-loop
// goroutine that drives the Config Watcher and Job Loop.
//
// Concurrency model: one owning goroutine per Producer (runLoop) reacts
// to two time.Tickers (config watch, job loop) and a stop signal — the
// single logical executor spec.md §5 calls for. Job execution itself is
// handed off to a short-lived goroutine per job (tracked by loopWg) so
// a slow worker never blocks the watcher or Stop() from responding;
// the single-job invariant is enforced by the RunningJob slot, not by
// blocking the owning goroutine.
// ============================================================================

package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bitsky-io/producer-agent/internal/config"
	"github.com/bitsky-io/producer-agent/internal/controlplane"
	"github.com/bitsky-io/producer-agent/internal/dispatch"
	"github.com/bitsky-io/producer-agent/internal/soi"
	"github.com/bitsky-io/producer-agent/pkg/types"
)

var log = slog.Default()

// ControlPlaneClient is the subset of internal/controlplane.Client the
// agent package depends on — narrowed to an interface so tests can
// supply a fake without a live HTTP server.
type ControlPlaneClient interface {
	GetProducerConfig(ctx context.Context, baseURL, globalID, producerType, securityKey string) (*types.ProducerConfig, error)
	GetIntelligences(ctx context.Context, baseURL, globalID, securityKey string) ([]*types.Intelligence, error)
	dispatch.ControlPlaneReporter
}

// MetricsRecorder receives the agent's runtime metrics. Optional: a
// Producer with no recorder simply skips the calls. Satisfied by
// *internal/metrics.Collector.
type MetricsRecorder interface {
	RecordConfigFetch(success bool)
	RecordJobStarted()
	RecordJobTimeout()
	RecordJobDuration(seconds float64)
	SetWatchBackoff(seconds float64)
	dispatch.MetricsRecorder
}

var (
	_ ControlPlaneClient          = (*controlplane.Client)(nil)
	_ dispatch.SOIReporter        = (*soi.Client)(nil)
	_ dispatch.ControlPlaneReporter = (*controlplane.Client)(nil)
)

// Producer is one running agent instance: one per process, owning all
// of its mutable state (spec.md §5, "no state is shared across
// Producer instances").
type Producer struct {
	mu sync.Mutex

	resolver   *config.Resolver
	cpClient   ControlPlaneClient
	dispatcher *dispatch.Dispatcher
	constants  Constants
	metrics    MetricsRecorder

	typeTag string
	worker  types.Worker

	cfg           *types.ProducerConfig
	lastErr       *types.ProducerError
	job           *types.RunningJob
	ranJobNumber  int
	watchFailures int

	stopCh   chan struct{}
	retickCh chan struct{}
	loopWg   sync.WaitGroup
	started  bool
}

// NewProducer wires a Producer from its collaborators. soiClient and
// cpClient are both threaded into the Result Dispatcher; cpClient is
// also used directly by the watcher and job runner.
func NewProducer(resolver *config.Resolver, cpClient ControlPlaneClient, soiClient dispatch.SOIReporter, constants Constants) *Producer {
	return &Producer{
		resolver:   resolver,
		cpClient:   cpClient,
		dispatcher: dispatch.NewDispatcher(soiClient, cpClient),
		constants:  constants,
		typeTag:    constants.DefaultType,
		stopCh:     make(chan struct{}),
		retickCh:   make(chan struct{}, 1),
	}
}

// Start is idempotent: it resets runtime state, ensures a default
// type, and arms the Config Watcher. It installs no default worker:
// with none set via SetWorker, every item of a fetched batch is
// reconciled FAILED as unresolved.
func (p *Producer) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		log.Info("producer already started")
		return nil
	}
	if p.typeTag == "" {
		p.typeTag = p.constants.DefaultType
	}
	p.stopCh = make(chan struct{})
	p.retickCh = make(chan struct{}, 1)
	p.cfg = nil
	p.lastErr = nil
	p.job = nil
	p.watchFailures = 0
	p.started = true
	p.mu.Unlock()

	p.loopWg.Add(1)
	go p.runLoop()

	log.Info("producer started", "type", p.Type())
	return nil
}

// Stop is idempotent: it cancels the watchers and the active job's
// timers, waits for all loop goroutines to exit, and zeroes runtime
// state. Errors during shutdown are logged, never returned (spec.md
// §4.H).
func (p *Producer) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		log.Info("producer already stopped")
		return
	}
	p.started = false
	stopCh := p.stopCh
	job := p.job
	p.mu.Unlock()

	close(stopCh)
	if job != nil {
		p.mu.Lock()
		cancel := job.TimeoutHandle
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	p.loopWg.Wait()

	p.mu.Lock()
	p.job = nil
	p.cfg = nil
	p.lastErr = nil
	p.watchFailures = 0
	p.mu.Unlock()

	log.Info("producer stopped")
}

// SetConfigs replaces the caller-override snapshot the Config
// Resolver merges on its next Resolve() call.
func (p *Producer) SetConfigs(o config.Overrides) {
	p.resolver.SetOverrides(o)
}

// Type returns the producer's type tag.
func (p *Producer) Type() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typeTag
}

// SetType rejects an empty value, matching spec.md §4.H's
// "setter rejects empty values".
func (p *Producer) SetType(t string) error {
	if t == "" {
		return errEmptyType
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typeTag = t
	return nil
}

// Worker returns the currently installed execution worker, if any.
func (p *Producer) Worker() types.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.worker
}

// SetWorker rejects a nil worker, matching spec.md §4.H's "setter
// rejects non-callables".
func (p *Producer) SetWorker(w types.Worker) error {
	if w == nil {
		return errNilWorker
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.worker = w
	return nil
}

// ProducerConfiguration returns the last adopted remote config, or nil
// if none has been adopted since the last Start (Stop clears it).
func (p *Producer) ProducerConfiguration() *types.ProducerConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// ProducerError returns the last classified error, or nil.
func (p *Producer) ProducerError() *types.ProducerError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SetMetrics attaches a metrics recorder to the producer and its
// dispatcher. Safe to skip; nil is a no-op.
func (p *Producer) SetMetrics(m MetricsRecorder) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
	p.dispatcher.SetMetrics(m)
}

// JobID returns the current job's id, or "" if no job is active.
func (p *Producer) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job == nil {
		return ""
	}
	return p.job.JobID
}

func (p *Producer) setError(err *types.ProducerError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
}

func (p *Producer) setConfig(cfg *types.ProducerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// newJobID derives a fresh job id for Acquisition.
func newJobID() string {
	return uuid.NewString()
}

// runLoop is the owning goroutine: it ticks the Config Watcher every
// PollingIntervalWatchAgent (stretched by watchTick's backoff after
// failures) and the Job Loop on a dynamic, config-derived
// interval, reacting to stop and to teardown's immediate re-tick
// request.
func (p *Producer) runLoop() {
	defer p.loopWg.Done()

	watchTicker := time.NewTicker(p.constants.PollingIntervalWatchAgent)
	defer watchTicker.Stop()

	var jobTicker *time.Ticker
	stopJobTicker := func() {
		if jobTicker != nil {
			jobTicker.Stop()
			jobTicker = nil
		}
	}
	defer stopJobTicker()

	// Run the watcher immediately so Start() doesn't wait a full
	// interval before the first config adoption.
	p.watchTick(watchTicker, &jobTicker)

	for {
		var jobTickC <-chan time.Time
		if jobTicker != nil {
			jobTickC = jobTicker.C
		}

		select {
		case <-p.stopCh:
			stopJobTicker()
			return

		case <-watchTicker.C:
			p.watchTick(watchTicker, &jobTicker)

		case <-jobTickC:
			p.jobTick()

		case <-p.retickCh:
			p.jobTick()
		}
	}
}

// stopJobLoop stops and clears *jobTicker, matching spec.md §4.D's
// "stop the Job Loop" transition.
func stopJobLoop(jobTicker **time.Ticker) {
	if *jobTicker != nil {
		(*jobTicker).Stop()
		*jobTicker = nil
	}
}

// startJobLoop (re)starts *jobTicker at max(pollingInterval, default)
// seconds (spec.md §4.E).
func startJobLoop(jobTicker **time.Ticker, pollingIntervalSeconds, defaultSeconds int) {
	interval := pollingIntervalSeconds
	if interval < defaultSeconds {
		interval = defaultSeconds
	}
	*jobTicker = time.NewTicker(time.Duration(interval) * time.Second)
}

func (p *Producer) retick() {
	select {
	case p.retickCh <- struct{}{}:
	default:
		// a re-tick is already pending; the loop will notice the
		// slot is free again on its own.
	}
}
