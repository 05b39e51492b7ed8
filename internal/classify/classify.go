// Package classify resolves a comment to a disposition: the single verdict
// that drives whether the bot replies, awards, edits or retracts. The rules
// run in a fixed priority order so two scans of the same unchanged comment
// always agree.
package classify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"kudosbot/internal/config"
	"kudosbot/internal/domain"
	"kudosbot/internal/ledger"
	"kudosbot/internal/platform"
	"kudosbot/internal/scanner"
)

type Classifier struct {
	Client    platform.Client
	Ledger    ledger.Ledger
	BotUser   string
	Tokens    []string
	MinLength int
	Log       *zap.Logger
}

func New(client platform.Client, l ledger.Ledger, cfg *config.Config, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		Client:    client,
		Ledger:    l,
		BotUser:   cfg.Account.Username,
		Tokens:    cfg.Tokens,
		MinLength: cfg.MinimumLength(),
		Log:       log,
	}
}

// Classify resolves the disposition of cm. When strict is true the token
// check, the length check and the in-tree duplicate check apply; a forced
// award (moderator override) passes strict=false to skip them. The returned
// parent is the awarded comment and is non-nil exactly when the disposition
// is Confirmed and the awarded target is a comment rather than the
// submission author (which can never be Confirmed).
func (c *Classifier) Classify(ctx context.Context, cm domain.Comment, strict bool) (domain.Disposition, *domain.Comment, error) {
	if strict && !scanner.ContainsToken(cm.Body, c.Tokens) {
		return domain.TokenMissing, nil, nil
	}
	if cm.Author == c.BotUser {
		return domain.AuthorIsBot, nil, nil
	}

	sub, err := c.Client.Submission(ctx, cm.SubmissionID)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch submission %s: %w", cm.SubmissionID, err)
	}

	var parent *domain.Comment
	parentAuthor := sub.Author
	if !cm.IsRoot {
		p, err := c.Client.Comment(ctx, cm.ParentID)
		if err != nil {
			return 0, nil, fmt.Errorf("fetch parent %s: %w", cm.ParentID, err)
		}
		parent = &p
		parentAuthor = p.Author
	}

	switch {
	case parentAuthor == c.BotUser:
		return domain.ParentIsBot, nil, nil
	case parentAuthor == cm.Author:
		return domain.AwardedSelf, nil, nil
	// Root comments land here too: their stand-in parent author is the
	// submission author.
	case parentAuthor == sub.Author:
		return domain.AwardedOP, nil, nil
	}

	if strict && utf8.RuneCountInString(cm.Body) < c.MinLength {
		return domain.TooShort, parent, nil
	}

	awarded, err := c.Ledger.HasAwardForComment(ctx, cm.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("check prior award for %s: %w", cm.ID, err)
	}
	if awarded {
		return domain.AlreadyAwarded, parent, nil
	}

	if strict {
		dup, err := c.alreadyAwardedInTree(ctx, cm, parent)
		if err != nil {
			return 0, nil, err
		}
		if dup {
			return domain.AlreadyAwardedInTree, parent, nil
		}
	}

	c.Log.Debug("comment confirmed",
		zap.String("comment_id", cm.ID),
		zap.String("author", cm.Author),
		zap.String("awardee", parent.Author))
	return domain.Confirmed, parent, nil
}

// alreadyAwardedInTree reports whether the same awarder already granted a
// point to the same awardee elsewhere under the same root comment of this
// submission. Awards under a different root branch do not count.
func (c *Classifier) alreadyAwardedInTree(ctx context.Context, cm domain.Comment, parent *domain.Comment) (bool, error) {
	prior, err := c.Ledger.PriorAwardsInThread(ctx, cm.SubmissionID, cm.Author, parent.Author)
	if err != nil {
		return false, fmt.Errorf("prior awards in thread: %w", err)
	}
	if len(prior) == 0 {
		return false, nil
	}
	root, err := ClimbToRoot(ctx, c.Client, cm)
	if err != nil {
		return false, err
	}
	for _, a := range prior {
		priorCm, err := c.Client.Comment(ctx, a.AwardingCommentID)
		if err != nil {
			if err == platform.ErrNotFound {
				// The awarding comment was deleted; the ledger row still
				// blocks a duplicate in this thread.
				return true, nil
			}
			return false, fmt.Errorf("fetch prior awarding comment %s: %w", a.AwardingCommentID, err)
		}
		priorRoot, err := ClimbToRoot(ctx, c.Client, priorCm)
		if err != nil {
			return false, err
		}
		if priorRoot.ID == root.ID {
			return true, nil
		}
	}
	return false, nil
}

// ClimbToRoot walks parent links until it reaches the top-level comment of
// cm's branch.
func ClimbToRoot(ctx context.Context, client platform.Client, cm domain.Comment) (domain.Comment, error) {
	for !cm.IsRoot {
		p, err := client.Comment(ctx, cm.ParentID)
		if err != nil {
			return domain.Comment{}, fmt.Errorf("climb to root via %s: %w", cm.ParentID, err)
		}
		cm = p
	}
	return cm, nil
}
