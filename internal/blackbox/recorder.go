package blackbox

import (
	"context"
	"fmt"

	"github.com/flightcore-dev/flightcore/internal/telemetry"
)

const defaultBatchSize = 256

// Recorder turns a stream of control-loop snapshots into a flight log:
// frames are batched into transactions and arming/failsafe edges become
// events.
type Recorder struct {
	store     *Store
	sessionID int64

	batch     []telemetry.Snapshot
	batchSize int

	lastTimestampUs uint32
	haveLast        bool
	lastArmed       bool
	lastFailsafe    bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBatchSize sets how many frames accumulate before a transaction is
// written.
func WithBatchSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewRecorder starts a new session for the given vehicle and returns a
// recorder writing into it.
func NewRecorder(ctx context.Context, store *Store, vehicle string, config any, opts ...RecorderOption) (*Recorder, error) {
	sessionID, err := store.CreateSession(ctx, vehicle, config)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	r := &Recorder{
		store:     store,
		sessionID: sessionID,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.batch = make([]telemetry.Snapshot, 0, r.batchSize)

	return r, nil
}

// SessionID returns the session this recorder writes into.
func (r *Recorder) SessionID() int64 {
	return r.sessionID
}

// Observe records one snapshot. Snapshots carrying the same loop timestamp
// as the previous one are dropped, so the recorder can be driven faster
// than the core tick without duplicating frames.
func (r *Recorder) Observe(ctx context.Context, snap telemetry.Snapshot) error {
	if r.haveLast && snap.TimestampUs == r.lastTimestampUs {
		return nil
	}

	if err := r.recordEdges(ctx, snap); err != nil {
		return err
	}

	r.lastTimestampUs = snap.TimestampUs
	r.haveLast = true

	r.batch = append(r.batch, snap)
	if len(r.batch) >= r.batchSize {
		return r.Flush(ctx)
	}
	return nil
}

func (r *Recorder) recordEdges(ctx context.Context, snap telemetry.Snapshot) error {
	if snap.Armed != r.lastArmed {
		kind := EventArmed
		if !snap.Armed {
			kind = EventDisarmed
		}
		if err := r.store.StoreEvent(ctx, r.sessionID, snap.TimestampUs, kind, ""); err != nil {
			return fmt.Errorf("recording %s event: %w", kind, err)
		}
		r.lastArmed = snap.Armed
	}

	if snap.Failsafe && !r.lastFailsafe {
		if err := r.store.StoreEvent(ctx, r.sessionID, snap.TimestampUs, EventFailsafe, ""); err != nil {
			return fmt.Errorf("recording failsafe event: %w", err)
		}
	}
	r.lastFailsafe = snap.Failsafe

	return nil
}

// Flush writes any buffered frames. Call once more after the run ends.
func (r *Recorder) Flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}

	if err := r.store.StoreFrames(ctx, r.sessionID, r.batch); err != nil {
		return fmt.Errorf("flushing %d frames: %w", len(r.batch), err)
	}
	r.batch = r.batch[:0]
	return nil
}
