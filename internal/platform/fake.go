package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kudosbot/internal/domain"
)

// Fake is an in-memory Client used by tests and dry runs. Replies get
// sequential ids; deletions are recorded so tests can assert retractions.
type Fake struct {
	mu          sync.Mutex
	BotUser     string
	comments    map[string]domain.Comment
	submissions map[string]domain.Submission
	mods        []string
	unread      []Message
	read        map[string]bool
	deleted     []string
	sent        []Message
	replySeq    int

	// ReplyErr, EditErr and DeleteErr inject action failures.
	ReplyErr  error
	EditErr   error
	DeleteErr error
}

func NewFake(botUser string) *Fake {
	return &Fake{
		BotUser:     botUser,
		comments:    map[string]domain.Comment{},
		submissions: map[string]domain.Submission{},
		read:        map[string]bool{},
	}
}

func (f *Fake) AddComment(c domain.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.ID] = c
}

func (f *Fake) AddSubmission(s domain.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions[s.ID] = s
}

func (f *Fake) SetModerators(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mods = names
}

func (f *Fake) AddMessage(m Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread = append(f.unread, m)
}

// RemoveComment simulates a platform-side deletion.
func (f *Fake) RemoveComment(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.comments, id)
}

// Deleted returns reply ids retracted through Delete.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Sent returns messages sent through SendMessage, with ID holding the
// recipient.
func (f *Fake) Sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func (f *Fake) Comment(ctx context.Context, id string) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return domain.Comment{}, ErrNotFound
	}
	return c, nil
}

func (f *Fake) Submission(ctx context.Context, id string) (domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[id]
	if !ok {
		return domain.Submission{}, ErrNotFound
	}
	return s, nil
}

func (f *Fake) NewComments(ctx context.Context, before string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []domain.Comment
	for _, c := range f.comments {
		if c.Author == f.BotUser {
			continue
		}
		if before == "" || c.ID > before {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (f *Fake) Reply(ctx context.Context, commentID, body string) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReplyErr != nil {
		return domain.Comment{}, f.ReplyErr
	}
	parent, ok := f.comments[commentID]
	if !ok {
		return domain.Comment{}, ErrNotFound
	}
	f.replySeq++
	reply := domain.Comment{
		ID:           fmt.Sprintf("reply-%03d", f.replySeq),
		Body:         body,
		Author:       f.BotUser,
		ParentID:     commentID,
		SubmissionID: parent.SubmissionID,
	}
	f.comments[reply.ID] = reply
	return reply, nil
}

func (f *Fake) Edit(ctx context.Context, replyID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		return f.EditErr
	}
	c, ok := f.comments[replyID]
	if !ok {
		return ErrNotFound
	}
	c.Body = body
	f.comments[replyID] = c
	return nil
}

func (f *Fake) Delete(ctx context.Context, replyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.comments[replyID]; !ok {
		return ErrNotFound
	}
	delete(f.comments, replyID)
	f.deleted = append(f.deleted, replyID)
	return nil
}

func (f *Fake) Moderators(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mods...), nil
}

func (f *Fake) SendMessage(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Message{ID: to, Subject: subject, Body: body})
	return nil
}

func (f *Fake) Unread(ctx context.Context) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []Message
	for _, m := range f.unread {
		if !f.read[m.ID] {
			res = append(res, m)
		}
	}
	return res, nil
}

func (f *Fake) MarkRead(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read[messageID] = true
	return nil
}
