package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"kudosbot/internal/domain"
)

// Writer appends reconciliation events to the audit trail. Appends run
// inside the same transaction as the ledger write they describe.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

const (
	TypeReplyCreated   = "reply_created"
	TypeReplyEdited    = "reply_edited"
	TypeReplyRetracted = "reply_retracted"
	TypeAwardRecorded  = "award_recorded"
)

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, commentID, replyID, runID string, payload Payload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO recon_events(ts,type,comment_id,reply_id,run_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, commentID, nullable(replyID), runID, string(data))
	return err
}

// Recent returns the newest events, most recent first.
func (w Writer) Recent(ctx context.Context, limit int) ([]domain.ReconEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.DB.QueryContext(ctx,
		`SELECT id,ts,type,comment_id,COALESCE(reply_id,''),run_id,payload_json FROM recon_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ReconEvent
	for rows.Next() {
		var e domain.ReconEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.CommentID, &e.ReplyID, &e.RunID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
