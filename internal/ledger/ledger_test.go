package ledger_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"kudosbot/internal/db"
	"kudosbot/internal/domain"
	"kudosbot/internal/ledger"
	"kudosbot/internal/migrate"
)

func newTestLedger(t *testing.T) ledger.Ledger {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ledger.Ledger{DB: conn}
}

func inTx(t *testing.T, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func testAward(awardingID, submissionID, awardingAuthor, awardedAuthor string, at time.Time) domain.Award {
	return domain.Award{
		ID:                    uuid.New().String(),
		SubmissionID:          submissionID,
		SubmissionAuthor:      "op",
		AwardedCommentID:      "awarded-" + awardingID,
		AwardedCommentAuthor:  awardedAuthor,
		AwardingCommentID:     awardingID,
		AwardingCommentAuthor: awardingAuthor,
		AwardingCommentTime:   float64(at.Unix()),
	}
}

func TestRecordAwardUniqueAwardingComment(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	a := testAward("c1", "s1", "alice", "bob", time.Now())

	if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.RecordAward(ctx, tx, a) }); err != nil {
		t.Fatalf("record award: %v", err)
	}
	ok, err := l.HasAwardForComment(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("HasAwardForComment = %v, %v; want true", ok, err)
	}

	dup := testAward("c1", "s1", "alice", "bob", time.Now())
	if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.RecordAward(ctx, tx, dup) }); err == nil {
		t.Fatal("expected unique constraint violation on second award for same awarding comment")
	}
	ok, err = l.HasAwardForComment(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("HasAwardForComment(missing) = %v, %v; want false", ok, err)
	}
}

func TestPriorAwardsInThread(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()
	awards := []domain.Award{
		testAward("c1", "s1", "alice", "bob", now),
		testAward("c2", "s1", "alice", "carol", now),
		testAward("c3", "s2", "alice", "bob", now),
	}
	for _, a := range awards {
		a := a
		if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.RecordAward(ctx, tx, a) }); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := l.PriorAwardsInThread(ctx, "s1", "alice", "bob")
	if err != nil {
		t.Fatalf("prior awards: %v", err)
	}
	if len(got) != 1 || got[0].AwardingCommentID != "c1" {
		t.Fatalf("expected only the s1 alice->bob award, got %+v", got)
	}
	got, err = l.PriorAwardsInThread(ctx, "s1", "bob", "alice")
	if err != nil || len(got) != 0 {
		t.Fatalf("reversed pair should have no awards, got %d, %v", len(got), err)
	}
}

func TestAwardsByMonthHalfOpen(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	inside := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	lastInstant := time.Date(2024, time.March, 31, 23, 59, 59, 0, time.UTC)
	boundary := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{inside, lastInstant, boundary} {
		a := testAward(string(rune('a'+i)), "s1", "alice", "bob", at)
		a.AwardedCommentID = a.AwardingCommentID + "-awarded"
		if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.RecordAward(ctx, tx, a) }); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, err := l.AwardsByMonth(ctx, 2024, time.March)
	if err != nil {
		t.Fatalf("by month: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 awards inside March, got %d", len(got))
	}
	for _, a := range got {
		if a.AwardingCommentTime >= float64(boundary.Unix()) {
			t.Fatalf("award at %v should be excluded from March", a.AwardingCommentTime)
		}
	}
}

func TestAwardsByAwardeeAndCount(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()
	for i, awarder := range []string{"alice", "carol"} {
		a := testAward(string(rune('x'+i)), "s1", awarder, "bob", now.Add(time.Duration(i)*time.Minute))
		if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.RecordAward(ctx, tx, a) }); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, err := l.AwardsByAwardee(ctx, "bob")
	if err != nil || len(got) != 2 {
		t.Fatalf("AwardsByAwardee = %d, %v; want 2", len(got), err)
	}
	n, err := l.AwardCountByAwardee(ctx, "bob")
	if err != nil || n != 2 {
		t.Fatalf("AwardCountByAwardee = %d, %v; want 2", n, err)
	}
	n, err = l.AwardCountByAwardee(ctx, "nobody")
	if err != nil || n != 0 {
		t.Fatalf("AwardCountByAwardee(nobody) = %d, %v; want 0", n, err)
	}
}

func TestDispositionLogLifecycle(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.GetDispositionLog(ctx, "c1"); err != ledger.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	entry := domain.DispositionLog{CommentID: "c1", Dispo: domain.TooShort, ReplyID: "r1", CommentTime: 1000}
	if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.UpsertDispositionLog(ctx, tx, entry) }); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := l.GetDispositionLog(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Dispo != domain.TooShort || got.ReplyID != "r1" {
		t.Fatalf("unexpected entry %+v", got)
	}

	// upsert replaces in place
	entry.Dispo = domain.Confirmed
	if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.UpsertDispositionLog(ctx, tx, entry) }); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	got, err = l.GetDispositionLog(ctx, "c1")
	if err != nil || got.Dispo != domain.Confirmed {
		t.Fatalf("expected confirmed after upsert, got %+v, %v", got, err)
	}

	if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.DeleteDispositionLog(ctx, tx, "c1") }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := l.GetDispositionLog(ctx, "c1"); err != ledger.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRecentDispositionLogs(t *testing.T) {
	l := newTestLedger(t)
	fixed := time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return fixed }
	ctx := context.Background()

	fresh := domain.DispositionLog{CommentID: "fresh", Dispo: domain.TooShort, ReplyID: "r1",
		CommentTime: float64(fixed.Add(-24 * time.Hour).Unix())}
	stale := domain.DispositionLog{CommentID: "stale", Dispo: domain.TooShort, ReplyID: "r2",
		CommentTime: float64(fixed.Add(-20 * 24 * time.Hour).Unix())}
	for _, e := range []domain.DispositionLog{fresh, stale} {
		e := e
		if err := inTx(t, l.DB, func(tx *sql.Tx) error { return l.UpsertDispositionLog(ctx, tx, e) }); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	got, err := l.RecentDispositionLogs(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].CommentID != "fresh" {
		t.Fatalf("expected only the fresh entry, got %+v", got)
	}
}
