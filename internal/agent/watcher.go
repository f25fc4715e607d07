// ============================================================================
// Config Watcher - reconciles remote config into local running state
// ============================================================================
//
// Package: internal/agent
// File: watcher.go
// Function: on every tick, fetch the remote producer config and decide
// whether the Job Loop should be running or stopped (spec.md §4.D).
// ============================================================================

package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

// watchTick fetches the remote config, compares it against the last
// adopted snapshot on (globalId, version), and on a change evaluates
// the preconditions that gate the Job Loop. Failures are classified
// into producerError and never stop the watcher; repeated failures
// back the watch ticker off exponentially (REDESIGN FLAG #3), capped
// at MaxWatchBackoffMultiple and reset to the base interval on the
// next success.
func (p *Producer) watchTick(watchTicker *time.Ticker, jobTicker **time.Ticker) {
	snap := p.resolver.Resolve()

	if snap.BaseURL == "" || snap.GlobalID == "" {
		p.setError(types.NewConfigMissingError())
		stopJobLoop(jobTicker)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := p.cpClient.GetProducerConfig(ctx, snap.BaseURL, snap.GlobalID, p.Type(), snap.SecurityKey)
	if err != nil {
		p.setError(classifyWatchError(err))
		p.backoffWatch(watchTicker)
		p.recordConfigFetch(false)
		log.Warn("config watch failed", "error", err)
		return
	}

	p.resetWatchBackoff(watchTicker)
	p.setError(nil)
	p.recordConfigFetch(true)

	last := p.ProducerConfiguration()
	lastID, lastVer := last.Key()
	newID, newVer := cfg.Key()
	if last != nil && lastID == newID && lastVer == newVer {
		return
	}

	p.setConfig(cfg)

	if preconditionsMet(cfg, p.Type(), snap.BaseURL) {
		stopJobLoop(jobTicker)
		startJobLoop(jobTicker, cfg.PollingIntervalSeconds, p.constants.DefaultPollingIntervalSec)
		log.Info("config adopted; job loop running",
			"globalId", newID, "version", newVer)
	} else {
		stopJobLoop(jobTicker)
		log.Info("config adopted; job loop stopped (preconditions not met)",
			"globalId", newID, "version", newVer, "state", cfg.System.State)
	}
}

// preconditionsMet evaluates spec.md §4.D's gate: base URL present,
// remote type present and case-insensitively equal to the producer's
// type, remote globalId present, and remote state ACTIVE.
func preconditionsMet(cfg *types.ProducerConfig, producerType, baseURL string) bool {
	if baseURL == "" {
		return false
	}
	if cfg.Type == "" || !strings.EqualFold(cfg.Type, producerType) {
		return false
	}
	if cfg.GlobalID == "" {
		return false
	}
	return cfg.System.State == types.SystemActive
}

func classifyWatchError(err error) *types.ProducerError {
	var perr *types.ProducerError
	if errors.As(err, &perr) {
		return perr
	}
	return types.ClassifyHTTPError(0, "", "", "", err)
}

func (p *Producer) backoffWatch(watchTicker *time.Ticker) {
	p.mu.Lock()
	p.watchFailures++
	failures := p.watchFailures
	p.mu.Unlock()

	multiple := 1 << uint(failures)
	if multiple > MaxWatchBackoffMultiple {
		multiple = MaxWatchBackoffMultiple
	}
	interval := time.Duration(multiple) * p.constants.PollingIntervalWatchAgent
	watchTicker.Reset(interval)
	p.recordWatchBackoff(interval)
}

func (p *Producer) resetWatchBackoff(watchTicker *time.Ticker) {
	p.mu.Lock()
	hadFailures := p.watchFailures > 0
	p.watchFailures = 0
	p.mu.Unlock()

	if hadFailures {
		watchTicker.Reset(p.constants.PollingIntervalWatchAgent)
		p.recordWatchBackoff(p.constants.PollingIntervalWatchAgent)
	}
}

func (p *Producer) recordConfigFetch(success bool) {
	p.mu.Lock()
	m := p.metrics
	p.mu.Unlock()
	if m != nil {
		m.RecordConfigFetch(success)
	}
}

func (p *Producer) recordWatchBackoff(interval time.Duration) {
	p.mu.Lock()
	m := p.metrics
	p.mu.Unlock()
	if m != nil {
		m.SetWatchBackoff(interval.Seconds())
	}
}
