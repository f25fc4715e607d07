package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// SetIntelligenceState writes the terminal state, timestamps the
// producer's completion time, and serializes an optional reason onto
// an intelligence.
//
// The reference implementation this core is modeled on sets
// system.producer.endedAt only when it is already present — almost
// certainly inverted intent. This implementation sets it when absent,
// which is the behavior spec.md's REDESIGN FLAGS call for.
func SetIntelligenceState(item *Intelligence, state IntelligenceState, reason any) {
	item.System.State = state
	if item.System.Producer.EndedAt == nil {
		now := time.Now()
		item.System.Producer.EndedAt = &now
	}
	if reason != nil {
		item.System.FailuresReason = SerializeReason(reason)
	}
}

// SerializeReason renders a failure reason the way the reference
// implementation does: an error's message, a JSON-encoded object, or
// a plain string coercion.
func SerializeReason(reason any) string {
	switch v := reason.(type) {
	case nil:
		return ""
	case error:
		return v.Error()
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
