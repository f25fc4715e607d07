// Package types defines the domain model shared by the producer agent's
// packages: the remote producer configuration, the unit of work
// ("intelligence"), the per-job bookkeeping record, and the error
// taxonomy classified from control-plane responses.
package types

import (
	"context"
	"time"
)

// IntelligenceState is the terminal state the core assigns to an
// intelligence once a job has reconciled it.
type IntelligenceState string

const (
	StateFinished IntelligenceState = "FINISHED"
	StateFailed   IntelligenceState = "FAILED"
	StateTimeout  IntelligenceState = "TIMEOUT"
)

// ProducerSystemState is the remote-config enum; only Active permits
// job execution.
type ProducerSystemState string

const (
	SystemActive   ProducerSystemState = "ACTIVE"
	SystemInactive ProducerSystemState = "INACTIVE"
)

// ProducerConfig is the remote configuration snapshot fetched from the
// Metadata Service. Only the fields the core inspects are typed here;
// callers that need more may carry a richer struct downstream.
type ProducerConfig struct {
	GlobalID string `json:"globalId"`
	Type     string `json:"type"`
	System   struct {
		Version string              `json:"version"`
		State   ProducerSystemState `json:"state"`
	} `json:"system"`
	PollingIntervalSeconds int `json:"pollingInterval"`
}

// Key returns the (globalId, version) pair the Config Watcher compares
// snapshots on.
func (c *ProducerConfig) Key() (string, string) {
	if c == nil {
		return "", ""
	}
	return c.GlobalID, c.System.Version
}

// SOICallback describes how to reach a target system.
type SOICallback struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// SOI is the destination a reconciled intelligence must be reported to.
type SOI struct {
	BaseURL  string      `json:"baseURL"`
	Callback SOICallback `json:"callback"`
	APIKey   string      `json:"apiKey,omitempty"`
}

// IntelligenceSystem carries the core-written fields of an
// intelligence: the reconciled state, failure reason, and producer
// completion timestamp.
type IntelligenceSystem struct {
	State          IntelligenceState `json:"state,omitempty"`
	FailuresReason string            `json:"failuresReason,omitempty"`
	Producer       struct {
		EndedAt *time.Time `json:"endedAt,omitempty"`
	} `json:"producer"`
}

// Intelligence is one unit of work dispatched to the pluggable
// execution worker and, once reconciled, reported to its SOI and the
// control plane.
type Intelligence struct {
	GlobalID string             `json:"globalId"`
	SOI      SOI                `json:"soi"`
	System   IntelligenceSystem `json:"system"`
	Dataset  map[string]any     `json:"dataset,omitempty"`
}

// HasTerminalState reports whether the intelligence has been
// reconciled to one of FINISHED/FAILED/TIMEOUT.
func (i *Intelligence) HasTerminalState() bool {
	switch i.System.State {
	case StateFinished, StateFailed, StateTimeout:
		return true
	default:
		return false
	}
}

// RunningJob is the per-job bookkeeping record. At most one exists per
// Producer at any instant; LockJob is the canonical slot indicator and
// JobID is present iff LockJob is true.
type RunningJob struct {
	JobID               string
	StartTime           time.Time
	TotalIntelligences  []*Intelligence
	CollectedByGlobalID map[string]*Intelligence
	CollectedCount      int
	JobTimeout          bool
	Ending              bool
	LockJob             bool

	// TimeoutHandle cancels the job's COLLECT_JOB_TIMEOUT context
	// (spec.md §4.B's timeoutHandle). Set once Execution starts; Stop()
	// invokes it so a shutdown does not wait out the full timeout.
	TimeoutHandle context.CancelFunc
}

// NewRunningJob returns a freshly initialized RunningJob — the atomic
// admission gate for the single-job invariant (spec.md §4.F,
// Acquisition).
func NewRunningJob(jobID string) *RunningJob {
	return &RunningJob{
		JobID:               jobID,
		StartTime:           time.Now(),
		CollectedByGlobalID: make(map[string]*Intelligence),
		LockJob:             true,
	}
}
