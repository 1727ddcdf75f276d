package blackbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// ErrNoData indicates that no frames exist for the given parameters.
var ErrNoData = fmt.Errorf("no data available")

// ReaderOption configures a FrameReader with filtering criteria.
type ReaderOption func(*FrameReader)

// WithStartUs excludes frames recorded before the given loop time.
func WithStartUs(usec uint32) ReaderOption {
	return func(r *FrameReader) {
		r.startUs = usec
	}
}

// WithEndUs excludes frames recorded after the given loop time.
func WithEndUs(usec uint32) ReaderOption {
	return func(r *FrameReader) {
		r.endUs = usec
	}
}

// WithTimeRange bounds the iteration to [startUs, endUs].
func WithTimeRange(startUs, endUs uint32) ReaderOption {
	return func(r *FrameReader) {
		r.startUs = startUs
		r.endUs = endUs
	}
}

// WithArmedOnly skips frames captured while the vehicle was disarmed.
func WithArmedOnly() ReaderOption {
	return func(r *FrameReader) {
		r.armedOnly = true
	}
}

// FrameReader iterates over a session's stored frames in time order. Each
// instance must be used from a single goroutine and closed after use.
type FrameReader struct {
	sessionID int64
	session   *Session

	startUs   uint32
	endUs     uint32
	armedOnly bool

	current Frame
	rows    *sql.Rows
	err     error
}

func newFrameReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*FrameReader, error) {
	fr := &FrameReader{
		sessionID: sessionID,
		endUs:     math.MaxUint32,
	}
	for _, opt := range opts {
		opt(fr)
	}
	if err := fr.init(ctx, db); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return fr, nil
}

func (fr *FrameReader) init(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("database connection required")
	}
	if fr.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if fr.startUs > fr.endUs {
		return fmt.Errorf("start time %d is after end time %d", fr.startUs, fr.endUs)
	}

	if err := fr.loadSession(ctx, db); err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if err := fr.initQuery(ctx, db); err != nil {
		return fmt.Errorf("initializing query: %w", err)
	}
	return nil
}

func (fr *FrameReader) loadSession(ctx context.Context, db *sql.DB) (err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, fr.sessionID).Scan(&sess.ID, &sess.StartTime, &sess.Vehicle, &config); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	if config.Valid {
		sess.Config = &config.String
	}

	fr.session = &sess
	return
}

func (fr *FrameReader) initQuery(ctx context.Context, db *sql.DB) (err error) {
	stmt, err := db.PrepareContext(ctx, selectFramesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if fr.rows, err = stmt.QueryContext(ctx, fr.sessionID, fr.startUs, fr.endUs); err != nil {
		return err
	}
	return nil
}

// Session returns the metadata of the session being read.
func (fr *FrameReader) Session() *Session {
	return fr.session
}

// Next advances the iterator. It returns false at the end of data or on
// error; check Error to tell the two apart.
func (fr *FrameReader) Next(ctx context.Context) bool {
	if fr.err != nil || fr.rows == nil {
		return false
	}

	for {
		select {
		case <-ctx.Done():
			fr.err = ctx.Err()
			return false
		default:
		}

		if !fr.rows.Next() {
			fr.err = ErrNoData
			return false
		}

		var f Frame
		fr.err = fr.rows.Scan(
			&f.ID,
			&f.SessionID,
			&f.TimestampUs,
			&f.Armed,
			&f.Failsafe,
			&f.Throttle,
			&f.Roll,
			&f.Pitch,
			&f.Yaw,
			&f.Phi,
			&f.Theta,
			&f.Psi,
			&f.Motors[0],
			&f.Motors[1],
			&f.Motors[2],
			&f.Motors[3],
		)
		if fr.err != nil {
			fr.err = fmt.Errorf("scanning frame: %w", fr.err)
			return false
		}

		if fr.armedOnly && !f.Armed {
			continue
		}

		fr.current = f
		return true
	}
}

// Current returns the frame the iterator is positioned on. Undefined after
// Next returns false.
func (fr *FrameReader) Current() Frame {
	return fr.current
}

// Error returns any error that occurred during iteration, excluding the
// end-of-data marker.
func (fr *FrameReader) Error() error {
	if fr.err != nil && !errors.Is(fr.err, ErrNoData) {
		return fr.err
	}
	if fr.rows != nil {
		return fr.rows.Err()
	}
	return nil
}

// Close releases the reader's database resources.
func (fr *FrameReader) Close() error {
	if fr.rows != nil {
		err := fr.rows.Close()
		fr.rows = nil
		return err
	}
	return nil
}
