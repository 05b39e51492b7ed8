// Package reconcile keeps the bot's replies and the award ledger consistent
// with the current disposition of each comment. Processing is sequential: a
// comment is fully classified and reconciled before the next one starts.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kudosbot/internal/classify"
	"kudosbot/internal/domain"
	"kudosbot/internal/events"
	"kudosbot/internal/ledger"
	"kudosbot/internal/platform"
	"kudosbot/internal/render"
)

// ActionError wraps a failed reply, edit or retract against the platform.
// The caller logs it and moves on; the stale state self-heals on the next
// scan because reconciliation is convergent.
type ActionError struct {
	Op        string
	CommentID string
	Err       error
}

func (e ActionError) Error() string {
	return fmt.Sprintf("%s for comment %s: %v", e.Op, e.CommentID, e.Err)
}

func (e ActionError) Unwrap() error { return e.Err }

type Reconciler struct {
	DB         *sql.DB
	Ledger     ledger.Ledger
	Events     events.Writer
	Client     platform.Client
	Classifier *classify.Classifier
	Renderer   render.Renderer
	Log        *zap.Logger
	Now        func() time.Time
	RunID      string

	awarded []domain.Award
}

func New(db *sql.DB, l ledger.Ledger, client platform.Client, cls *classify.Classifier, r render.Renderer, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		DB:         db,
		Ledger:     l,
		Events:     events.Writer{DB: db},
		Client:     client,
		Classifier: cls,
		Renderer:   r,
		Log:        log,
		Now:        time.Now,
		RunID:      uuid.New().String(),
	}
}

// TakeAwarded returns the awards recorded since the last call and resets the
// internal slice. The scan driver uses it for first-award notifications.
func (r *Reconciler) TakeAwarded() []domain.Award {
	out := r.awarded
	r.awarded = nil
	return out
}

// ProcessComment classifies cm and applies the minimal corrective action so
// the bot's reply (or absence of one) matches the disposition. Ledger writes
// happen only after the platform action succeeded, inside one transaction.
func (r *Reconciler) ProcessComment(ctx context.Context, cm domain.Comment, strict bool) error {
	log := r.Log.With(zap.String("comment_id", cm.ID), zap.String("author", cm.Author))

	dispo, parent, err := r.Classifier.Classify(ctx, cm, strict)
	if err != nil {
		return fmt.Errorf("classify %s: %w", cm.ID, err)
	}
	log = log.With(zap.Stringer("dispo", dispo))

	prev, err := r.Ledger.GetDispositionLog(ctx, cm.ID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return r.firstSight(ctx, log, cm, dispo, parent)
	case err != nil:
		return fmt.Errorf("load disposition log %s: %w", cm.ID, err)
	}

	if dispo == prev.Dispo {
		log.Debug("disposition unchanged")
		return nil
	}
	return r.transition(ctx, log, cm, prev, dispo, parent)
}

func (r *Reconciler) firstSight(ctx context.Context, log *zap.Logger, cm domain.Comment, dispo domain.Disposition, parent *domain.Comment) error {
	if dispo.Trivial() {
		log.Debug("trivial disposition, no reply")
		return nil
	}
	body, err := r.Renderer.Render(dispo, cm, parent)
	if err != nil {
		return fmt.Errorf("render reply for %s: %w", cm.ID, err)
	}
	reply, err := r.Client.Reply(ctx, cm.ID, body)
	if err != nil {
		return ActionError{Op: "reply", CommentID: cm.ID, Err: err}
	}
	log.Info("posted reply", zap.String("reply_id", reply.ID))

	return r.commit(ctx, cm, dispo, parent, reply.ID, events.TypeReplyCreated)
}

func (r *Reconciler) transition(ctx context.Context, log *zap.Logger, cm domain.Comment, prev domain.DispositionLog, dispo domain.Disposition, parent *domain.Comment) error {
	log = log.With(zap.Stringer("prev_dispo", prev.Dispo), zap.String("reply_id", prev.ReplyID))

	if dispo.Trivial() {
		if err := r.Client.Delete(ctx, prev.ReplyID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			return ActionError{Op: "retract", CommentID: cm.ID, Err: err}
		}
		log.Info("retracted reply")
		return r.inTx(ctx, func(tx *sql.Tx) error {
			if err := r.Ledger.DeleteDispositionLog(ctx, tx, cm.ID); err != nil {
				return err
			}
			return r.Events.Append(ctx, tx, events.TypeReplyRetracted, cm.ID, prev.ReplyID, r.RunID, events.Payload{
				"prev_dispo": prev.Dispo.String(),
				"new_dispo":  dispo.String(),
			})
		})
	}

	// A ledger row already covers this comment; re-editing or re-logging
	// would only churn.
	if dispo == domain.AlreadyAwarded {
		log.Debug("already awarded, steady state")
		return nil
	}

	body, err := r.Renderer.Render(dispo, cm, parent)
	if err != nil {
		return fmt.Errorf("render reply for %s: %w", cm.ID, err)
	}
	if err := r.Client.Edit(ctx, prev.ReplyID, body); err != nil {
		return ActionError{Op: "edit", CommentID: cm.ID, Err: err}
	}
	log.Info("edited reply")

	return r.commit(ctx, cm, dispo, parent, prev.ReplyID, events.TypeReplyEdited)
}

// commit writes the disposition log, the award when confirmed and the audit
// events in one transaction.
func (r *Reconciler) commit(ctx context.Context, cm domain.Comment, dispo domain.Disposition, parent *domain.Comment, replyID, evtType string) error {
	var award *domain.Award
	if dispo == domain.Confirmed {
		a, err := r.buildAward(ctx, cm, parent)
		if err != nil {
			return err
		}
		award = &a
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		entry := domain.DispositionLog{CommentID: cm.ID, Dispo: dispo, ReplyID: replyID, CommentTime: cm.CreatedUTC}
		if err := r.Ledger.UpsertDispositionLog(ctx, tx, entry); err != nil {
			return err
		}
		if err := r.Events.Append(ctx, tx, evtType, cm.ID, replyID, r.RunID, events.Payload{
			"dispo": dispo.String(),
		}); err != nil {
			return err
		}
		if award != nil {
			if err := r.Ledger.RecordAward(ctx, tx, *award); err != nil {
				return err
			}
			return r.Events.Append(ctx, tx, events.TypeAwardRecorded, cm.ID, replyID, r.RunID, events.Payload{
				"award_id": award.ID,
				"awardee":  award.AwardedCommentAuthor,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if award != nil {
		r.Log.Info("point awarded",
			zap.String("awardee", award.AwardedCommentAuthor),
			zap.String("awarding_comment_id", cm.ID))
		r.awarded = append(r.awarded, *award)
	}
	return nil
}

// buildAward snapshots the submission, the awarded comment and the awarding
// comment so the ledger row survives platform-side deletions.
func (r *Reconciler) buildAward(ctx context.Context, cm domain.Comment, parent *domain.Comment) (domain.Award, error) {
	sub, err := r.Client.Submission(ctx, cm.SubmissionID)
	if err != nil {
		return domain.Award{}, fmt.Errorf("snapshot submission %s: %w", cm.SubmissionID, err)
	}
	return domain.Award{
		ID: uuid.New().String(),

		SubmissionID:       sub.ID,
		SubmissionTitle:    sub.Title,
		SubmissionSelfText: sub.SelfText,
		SubmissionAuthor:   sub.Author,
		SubmissionURL:      sub.URL,
		SubmissionTime:     sub.CreatedUTC,

		AwardedCommentID:     parent.ID,
		AwardedCommentText:   parent.Body,
		AwardedCommentAuthor: parent.Author,
		AwardedCommentURL:    parent.Permalink,
		AwardedCommentTime:   parent.CreatedUTC,

		AwardingCommentID:     cm.ID,
		AwardingCommentText:   cm.Body,
		AwardingCommentAuthor: cm.Author,
		AwardingCommentURL:    cm.Permalink,
		AwardingCommentTime:   cm.CreatedUTC,
	}, nil
}

func (r *Reconciler) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
