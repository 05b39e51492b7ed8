package events_test

import (
	"context"
	"testing"
	"time"

	"kudosbot/internal/db"
	"kudosbot/internal/events"
	"kudosbot/internal/migrate"
)

func newTestWriter(t *testing.T) events.Writer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return events.Writer{DB: conn}
}

func appendOne(t *testing.T, w events.Writer, evtType, commentID string) {
	t.Helper()
	tx, err := w.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := w.Append(context.Background(), tx, evtType, commentID, "r1", "run-1", events.Payload{"dispo": "confirmed"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// A writer with no clock set stamps events with the wall clock and stays
// usable across appends.
func TestAppendDefaultsClock(t *testing.T) {
	w := newTestWriter(t)
	appendOne(t, w, events.TypeReplyCreated, "c1")
	appendOne(t, w, events.TypeAwardRecorded, "c1")

	got, err := w.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	for _, e := range got {
		ts, err := time.Parse(time.RFC3339, e.TS)
		if err != nil {
			t.Fatalf("bad timestamp %q: %v", e.TS, err)
		}
		if d := time.Since(ts); d < 0 || d > time.Minute {
			t.Fatalf("timestamp %q not near now", e.TS)
		}
	}
	if got[0].Type != events.TypeAwardRecorded {
		t.Fatalf("newest event = %s, want %s", got[0].Type, events.TypeAwardRecorded)
	}
}

func TestAppendFixedClock(t *testing.T) {
	w := newTestWriter(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Now = func() time.Time { return at }
	appendOne(t, w, events.TypeReplyEdited, "c2")

	got, err := w.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].TS != at.Format(time.RFC3339) {
		t.Fatalf("got %+v, want ts %s", got, at.Format(time.RFC3339))
	}
}
