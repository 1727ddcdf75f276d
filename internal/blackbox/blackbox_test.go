package blackbox

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/flightcore-dev/flightcore/internal/telemetry"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s := New(filepath.Join(t.TempDir(), "flight.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})
	return s
}

func makeFrames(n int, startUs, stepUs uint32, armed bool) []telemetry.Snapshot {
	frames := make([]telemetry.Snapshot, n)
	for i := range frames {
		frames[i] = telemetry.Snapshot{
			TimestampUs: startUs + uint32(i)*stepUs,
			Armed:       armed,
			Throttle:    float64(i) / float64(n),
			Phi:         0.01 * float64(i),
			Motors:      [4]float64{0.1, 0.2, 0.3, 0.4},
		}
	}
	return frames
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	id, err := s.CreateSession(ctx, "sim-quad-x", map[string]any{"rate_hz": 2000})
	if err != nil {
		t.Fatal(err)
	}
	if id <= 0 {
		t.Fatalf("session ID = %d", id)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Vehicle != "sim-quad-x" {
		t.Errorf("vehicle = %q", sess.Vehicle)
	}
	if sess.Config == nil || *sess.Config != `{"rate_hz":2000}` {
		t.Errorf("config = %v", sess.Config)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != id {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestFramesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	id, err := s.CreateSession(ctx, "sim-quad-x", nil)
	if err != nil {
		t.Fatal(err)
	}

	want := makeFrames(100, 1000, 500, true)
	if err := s.StoreFrames(ctx, id, want); err != nil {
		t.Fatal(err)
	}

	fr, err := s.ReadFrames(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()

	if fr.Session().ID != id {
		t.Errorf("reader session = %d, want %d", fr.Session().ID, id)
	}

	var got []Frame
	for fr.Next(ctx) {
		got = append(got, fr.Current())
	}
	if err := fr.Error(); err != nil {
		t.Fatal(err)
	}

	if len(got) != len(want) {
		t.Fatalf("read %d frames, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.TimestampUs != want[i].TimestampUs {
			t.Fatalf("frame %d timestamp = %d, want %d", i, f.TimestampUs, want[i].TimestampUs)
		}
		if f.Throttle != want[i].Throttle || f.Motors != want[i].Motors {
			t.Fatalf("frame %d = %+v, want %+v", i, f.Snapshot, want[i])
		}
	}
}

func TestReadFramesTimeRange(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	id, err := s.CreateSession(ctx, "sim-quad-x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.StoreFrames(ctx, id, makeFrames(100, 0, 1000, true)); err != nil {
		t.Fatal(err)
	}

	fr, err := s.ReadFrames(ctx, id, WithTimeRange(10_000, 19_000))
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()

	count := 0
	for fr.Next(ctx) {
		u := fr.Current().TimestampUs
		if u < 10_000 || u > 19_000 {
			t.Errorf("frame at %dus outside requested range", u)
		}
		count++
	}
	if err := fr.Error(); err != nil {
		t.Fatal(err)
	}
	if count != 10 {
		t.Errorf("read %d frames in range, want 10", count)
	}
}

func TestReadFramesArmedOnly(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	id, err := s.CreateSession(ctx, "sim-quad-x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.StoreFrames(ctx, id, makeFrames(10, 0, 1000, false)); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreFrames(ctx, id, makeFrames(5, 10_000, 1000, true)); err != nil {
		t.Fatal(err)
	}

	fr, err := s.ReadFrames(ctx, id, WithArmedOnly())
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()

	count := 0
	for fr.Next(ctx) {
		if !fr.Current().Armed {
			t.Error("disarmed frame passed the armed-only filter")
		}
		count++
	}
	if count != 5 {
		t.Errorf("read %d armed frames, want 5", count)
	}
}

func TestReadFramesUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	// Schema exists only after a write.
	if _, err := s.CreateSession(ctx, "sim-quad-x", nil); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ReadFrames(ctx, 9999); err == nil {
		t.Fatal("reader created for a session that does not exist")
	}
}

func TestRecorderBatchesAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	rec, err := NewRecorder(ctx, s, "sim-quad-x", nil, WithBatchSize(8))
	if err != nil {
		t.Fatal(err)
	}

	// Two observations per loop timestamp: the duplicate must be dropped.
	for _, f := range makeFrames(20, 0, 500, false) {
		if err := rec.Observe(ctx, f); err != nil {
			t.Fatal(err)
		}
		if err := rec.Observe(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	fr, err := s.ReadFrames(ctx, rec.SessionID())
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()

	count := 0
	for fr.Next(ctx) {
		count++
	}
	if count != 20 {
		t.Errorf("stored %d frames, want 20", count)
	}
}

func TestRecorderWritesArmingEvents(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	rec, err := NewRecorder(ctx, s, "sim-quad-x", nil, WithBatchSize(4))
	if err != nil {
		t.Fatal(err)
	}

	script := []telemetry.Snapshot{
		{TimestampUs: 1000},
		{TimestampUs: 2000, Armed: true},
		{TimestampUs: 3000, Armed: true},
		{TimestampUs: 4000, Failsafe: true},
		{TimestampUs: 5000, Failsafe: true},
	}
	for _, snap := range script {
		if err := rec.Observe(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	events, err := s.Events(ctx, rec.SessionID())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{EventArmed, EventDisarmed, EventFailsafe}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want kinds %v", events, want)
	}
	for i, ev := range events {
		if ev.Kind != want[i] {
			t.Errorf("event %d kind = %q, want %q", i, ev.Kind, want[i])
		}
	}
	// The sustained failsafe must not repeat the event.
	if events[2].TimestampUs != 4000 {
		t.Errorf("failsafe event at %dus, want 4000", events[2].TimestampUs)
	}
}
