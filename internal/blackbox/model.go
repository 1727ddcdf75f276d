package blackbox

import (
	"time"

	"github.com/flightcore-dev/flightcore/internal/telemetry"
)

// Session describes one recorded flight.
type Session struct {
	ID        int64
	StartTime time.Time

	// Vehicle names the airframe or simulation profile that produced the
	// recording.
	Vehicle string

	// Config carries the serialized configuration the session flew with,
	// when one was recorded.
	Config *string
}

// Frame is one stored control-loop snapshot.
type Frame struct {
	ID        int64
	SessionID int64

	telemetry.Snapshot
}

// Event is a discrete occurrence worth finding without scanning frames:
// arm, disarm, failsafe, signal loss.
type Event struct {
	ID          int64
	SessionID   int64
	TimestampUs uint32
	Kind        string
	Detail      string
}

// Event kinds written by the recorder.
const (
	EventArmed      = "armed"
	EventDisarmed   = "disarmed"
	EventFailsafe   = "failsafe"
	EventSignalLost = "signal-lost"
)
