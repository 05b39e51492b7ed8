// Package ledger owns the durable award ledger and the per-comment
// disposition log. Awards are append-only; the uniqueness of
// awarding_comment_id is the correctness mechanism behind idempotent
// re-scans.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kudosbot/internal/domain"
)

type Ledger struct {
	DB *sql.DB
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

const awardColumns = `id,
submission_id, submission_title, submission_self_text, submission_author, submission_url, submission_time,
awarded_comment_id, awarded_comment_text, awarded_comment_author, awarded_comment_url, awarded_comment_time,
awarding_comment_id, awarding_comment_text, awarding_comment_author, awarding_comment_url, awarding_comment_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAward(row rowScanner) (domain.Award, error) {
	var a domain.Award
	err := row.Scan(&a.ID,
		&a.SubmissionID, &a.SubmissionTitle, &a.SubmissionSelfText, &a.SubmissionAuthor, &a.SubmissionURL, &a.SubmissionTime,
		&a.AwardedCommentID, &a.AwardedCommentText, &a.AwardedCommentAuthor, &a.AwardedCommentURL, &a.AwardedCommentTime,
		&a.AwardingCommentID, &a.AwardingCommentText, &a.AwardingCommentAuthor, &a.AwardingCommentURL, &a.AwardingCommentTime)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// RecordAward appends one award row inside the given transaction. The unique
// index on awarding_comment_id rejects a second award for the same awarding
// comment.
func (l Ledger) RecordAward(ctx context.Context, tx *sql.Tx, a domain.Award) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO awards(`+awardColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID,
		a.SubmissionID, a.SubmissionTitle, a.SubmissionSelfText, a.SubmissionAuthor, a.SubmissionURL, a.SubmissionTime,
		a.AwardedCommentID, a.AwardedCommentText, a.AwardedCommentAuthor, a.AwardedCommentURL, a.AwardedCommentTime,
		a.AwardingCommentID, a.AwardingCommentText, a.AwardingCommentAuthor, a.AwardingCommentURL, a.AwardingCommentTime)
	if err != nil {
		return fmt.Errorf("record award for comment %s: %w", a.AwardingCommentID, err)
	}
	return nil
}

// PriorAwardsInThread returns awards in the submission for the same
// awarding/awarded author pair. Callers scope the result further to a single
// conversation tree by comparing thread roots.
func (l Ledger) PriorAwardsInThread(ctx context.Context, submissionID, awardingAuthor, awardedAuthor string) ([]domain.Award, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT `+awardColumns+` FROM awards
WHERE submission_id=? AND awarding_comment_author=? AND awarded_comment_author=?`,
		submissionID, awardingAuthor, awardedAuthor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAwards(rows)
}

// HasAwardForComment reports whether an award already exists for the exact
// awarding comment id.
func (l Ledger) HasAwardForComment(ctx context.Context, awardingCommentID string) (bool, error) {
	var one int
	err := l.DB.QueryRowContext(ctx, `SELECT 1 FROM awards WHERE awarding_comment_id=? LIMIT 1`, awardingCommentID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AllAwards returns every ledger row, oldest first.
func (l Ledger) AllAwards(ctx context.Context) ([]domain.Award, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT `+awardColumns+` FROM awards ORDER BY awarding_comment_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAwards(rows)
}

func (l Ledger) AwardsByAwardee(ctx context.Context, author string) ([]domain.Award, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT `+awardColumns+` FROM awards
WHERE awarded_comment_author=? ORDER BY awarding_comment_time ASC`, author)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAwards(rows)
}

// AwardCountByAwardee returns the number of awards an author has received.
func (l Ledger) AwardCountByAwardee(ctx context.Context, author string) (int, error) {
	var n int
	err := l.DB.QueryRowContext(ctx, `SELECT count(*) FROM awards WHERE awarded_comment_author=?`, author).Scan(&n)
	return n, err
}

// AwardsByMonth returns awards whose awarding time falls in the half-open
// interval [start of month, start of next month).
func (l Ledger) AwardsByMonth(ctx context.Context, year int, month time.Month) ([]domain.Award, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	rows, err := l.DB.QueryContext(ctx, `SELECT `+awardColumns+` FROM awards
WHERE awarding_comment_time >= ? AND awarding_comment_time < ? ORDER BY awarding_comment_time ASC`,
		float64(start.Unix()), float64(end.Unix()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAwards(rows)
}

func collectAwards(rows *sql.Rows) ([]domain.Award, error) {
	var res []domain.Award
	for rows.Next() {
		a, err := scanAward(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpsertDispositionLog replaces the comment's log row on conflict.
func (l Ledger) UpsertDispositionLog(ctx context.Context, tx *sql.Tx, entry domain.DispositionLog) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO dispo_log(comment_id, dispo, reply_id, comment_time) VALUES (?,?,?,?)
ON CONFLICT(comment_id) DO UPDATE SET dispo=excluded.dispo, reply_id=excluded.reply_id, comment_time=excluded.comment_time`,
		entry.CommentID, int(entry.Dispo), entry.ReplyID, entry.CommentTime)
	if err != nil {
		return fmt.Errorf("upsert dispo log for comment %s: %w", entry.CommentID, err)
	}
	return nil
}

func (l Ledger) GetDispositionLog(ctx context.Context, commentID string) (domain.DispositionLog, error) {
	var entry domain.DispositionLog
	var dispo int
	err := l.DB.QueryRowContext(ctx, `SELECT comment_id, dispo, reply_id, comment_time FROM dispo_log WHERE comment_id=?`, commentID).
		Scan(&entry.CommentID, &dispo, &entry.ReplyID, &entry.CommentTime)
	if err == sql.ErrNoRows {
		return entry, ErrNotFound
	}
	entry.Dispo = domain.Disposition(dispo)
	return entry, err
}

// RecentDispositionLogs returns log entries for comments created within the
// last maxAgeDays.
func (l Ledger) RecentDispositionLogs(ctx context.Context, maxAgeDays int) ([]domain.DispositionLog, error) {
	cutoff := float64(l.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix())
	rows, err := l.DB.QueryContext(ctx, `SELECT comment_id, dispo, reply_id, comment_time FROM dispo_log WHERE comment_time > ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DispositionLog
	for rows.Next() {
		var entry domain.DispositionLog
		var dispo int
		if err := rows.Scan(&entry.CommentID, &dispo, &entry.ReplyID, &entry.CommentTime); err != nil {
			return nil, err
		}
		entry.Dispo = domain.Disposition(dispo)
		res = append(res, entry)
	}
	return res, rows.Err()
}

func (l Ledger) DeleteDispositionLog(ctx context.Context, tx *sql.Tx, commentID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM dispo_log WHERE comment_id=?`, commentID)
	return err
}
