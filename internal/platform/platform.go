// Package platform is the seam between the reconciliation core and the
// remote discussion platform. The core treats it as a synchronous,
// possibly-failing capability; polling, authentication and rate limiting
// live behind the Client implementations.
package platform

import (
	"context"
	"errors"
	"fmt"

	"kudosbot/internal/domain"
)

// ErrNotFound is returned when a comment, submission or message does not
// exist on the platform (deleted node, bad id).
var ErrNotFound = errors.New("not found")

// TransientError wraps a fetch or action failure that is expected to succeed
// on a later scan pass.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e TransientError) Unwrap() error { return e.Err }

// Message is a private message in the bot's inbox.
type Message struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Client is the platform capability the core consumes.
type Client interface {
	Comment(ctx context.Context, id string) (domain.Comment, error)
	Submission(ctx context.Context, id string) (domain.Submission, error)

	// NewComments returns community comments newer than the given comment id,
	// oldest first. An empty id means "everything the platform will give us".
	NewComments(ctx context.Context, before string) ([]domain.Comment, error)

	// Reply posts a bot reply to a comment and returns the created reply.
	Reply(ctx context.Context, commentID, body string) (domain.Comment, error)
	Edit(ctx context.Context, replyID, body string) error
	Delete(ctx context.Context, replyID string) error

	Moderators(ctx context.Context) ([]string, error)
	SendMessage(ctx context.Context, to, subject, body string) error
	Unread(ctx context.Context) ([]Message, error)
	MarkRead(ctx context.Context, messageID string) error
}
