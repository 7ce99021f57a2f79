// Package metrics defines metric names and tagging helpers for session
// lifecycle events.
package metrics

import (
	"time"

	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// AuthEvent captures details about a session lifecycle event for metric emission.
type AuthEvent struct {
	// Operation is the lifecycle operation: login, login_federated, register,
	// verify_second_factor, refresh, logout, hydrate.
	Operation string
	Result    string
	Duration  time.Duration
	Err       error
}

// EmitAuthEvent emits standardised session lifecycle metrics.
func EmitAuthEvent(sink statsd.Sink, in AuthEvent) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = string(autherrors.CodeOf(in.Err))
	}

	sink.Count("session.event", 1, tags)

	if in.Duration > 0 {
		sink.Timing("session.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
