package domain

// Comment is a thread comment as observed on the platform. The bot never
// mutates one directly; replies, edits and retractions go through the
// platform client.
type Comment struct {
	ID           string  `json:"id"`
	Body         string  `json:"body"`
	Author       string  `json:"author"`
	ParentID     string  `json:"parent_id"`
	SubmissionID string  `json:"submission_id"`
	Permalink    string  `json:"permalink"`
	CreatedUTC   float64 `json:"created_utc"`
	// IsRoot marks a top-level comment, i.e. its parent is the submission.
	IsRoot bool `json:"is_root"`
}

type Submission struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	SelfText   string  `json:"self_text"`
	Author     string  `json:"author"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	CreatedUTC float64 `json:"created_utc"`
}

// Award is one confirmed point grant. Rows are append-only: snapshots of the
// submission, the awarded comment and the awarding comment are copied in at
// award time so the ledger stays meaningful after platform-side deletions.
type Award struct {
	ID string `json:"id"`

	SubmissionID       string  `json:"submission_id"`
	SubmissionTitle    string  `json:"submission_title"`
	SubmissionSelfText string  `json:"submission_self_text"`
	SubmissionAuthor   string  `json:"submission_author"`
	SubmissionURL      string  `json:"submission_url"`
	SubmissionTime     float64 `json:"submission_time"`

	AwardedCommentID     string  `json:"awarded_comment_id"`
	AwardedCommentText   string  `json:"awarded_comment_text"`
	AwardedCommentAuthor string  `json:"awarded_comment_author"`
	AwardedCommentURL    string  `json:"awarded_comment_url"`
	AwardedCommentTime   float64 `json:"awarded_comment_time"`

	AwardingCommentID     string  `json:"awarding_comment_id"`
	AwardingCommentText   string  `json:"awarding_comment_text"`
	AwardingCommentAuthor string  `json:"awarding_comment_author"`
	AwardingCommentURL    string  `json:"awarding_comment_url"`
	AwardingCommentTime   float64 `json:"awarding_comment_time"`
}

// DispositionLog records the last disposition the bot resolved for a comment
// and which of the bot's replies carries it. One row per comment, upserted on
// change, deleted when the disposition degrades to a trivial one.
type DispositionLog struct {
	CommentID   string      `json:"comment_id"`
	Dispo       Disposition `json:"dispo"`
	ReplyID     string      `json:"reply_id"`
	CommentTime float64     `json:"comment_time"`
}

// ReconEvent is one append-only audit row describing an action the reconciler
// took (reply posted, edited, retracted, award recorded).
type ReconEvent struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	CommentID string `json:"comment_id,omitempty"`
	ReplyID   string `json:"reply_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Payload   string `json:"payload_json"`
}
