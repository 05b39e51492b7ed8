// Package scan is the outer polling driver: it pulls fresh comments, replays
// rescannable ones, reads moderator commands from the inbox and feeds
// everything through the reconciler one comment at a time.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"kudosbot/internal/config"
	"kudosbot/internal/ledger"
	"kudosbot/internal/platform"
	"kudosbot/internal/reconcile"
)

// ErrStopRequested is returned by Run when a moderator issues the stop
// command.
var ErrStopRequested = errors.New("stop requested by moderator")

// scannedWindowCap bounds the recently-scanned-id window. The window is
// advisory bookkeeping for resuming scans; award uniqueness is enforced by
// the ledger, not by this.
const scannedWindowCap = 10

// resetEvery clears the scanned window after this many iterations so a
// wedged resume point cannot stall the scan forever.
const resetEvery = 10

type Runner struct {
	Client platform.Client
	Recon  *reconcile.Reconciler
	Ledger ledger.Ledger
	Config *config.Config
	Log    *zap.Logger

	// StateFile persists the newest scanned comment id across restarts.
	StateFile string

	scanned []string
}

func New(client platform.Client, recon *reconcile.Reconciler, l ledger.Ledger, cfg *config.Config, log *zap.Logger, stateFile string) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{Client: client, Recon: recon, Ledger: l, Config: cfg, Log: log, StateFile: stateFile}
	if id := readSavedID(stateFile); id != "" {
		r.scanned = append(r.scanned, id)
	}
	return r
}

func (r *Runner) pushScanned(id string) {
	if n := len(r.scanned); n > 0 && id <= r.scanned[n-1] {
		return
	}
	r.scanned = append(r.scanned, id)
	if len(r.scanned) > scannedWindowCap {
		r.scanned = r.scanned[len(r.scanned)-scannedWindowCap:]
	}
}

// mostRecentScanned returns the resume point for the next pull. Ids whose
// comments were deleted platform-side are popped so the resume marker always
// points at something the platform still knows.
func (r *Runner) mostRecentScanned(ctx context.Context) string {
	for len(r.scanned) > 0 {
		id := r.scanned[len(r.scanned)-1]
		_, err := r.Client.Comment(ctx, id)
		if errors.Is(err, platform.ErrNotFound) {
			r.scanned = r.scanned[:len(r.scanned)-1]
			continue
		}
		return id
	}
	return ""
}

// ScanNew pulls comments newer than the resume point and reconciles each.
// Action failures are logged and skipped; the next pass converges them.
func (r *Runner) ScanNew(ctx context.Context) error {
	before := r.mostRecentScanned(ctx)
	r.Log.Info("scanning new comments", zap.String("after", before))

	comments, err := r.Client.NewComments(ctx, before)
	if err != nil {
		return fmt.Errorf("pull new comments: %w", err)
	}
	for _, cm := range comments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Recon.ProcessComment(ctx, cm, true); err != nil {
			r.Log.Warn("comment skipped", zap.String("comment_id", cm.ID), zap.Error(err))
		}
		r.pushScanned(cm.ID)
	}
	return nil
}

// Rescan replays recent disposition log entries that can still change,
// re-fetching the live comment and running the exact same pipeline.
func (r *Runner) Rescan(ctx context.Context) error {
	r.Log.Info("rescanning", zap.Int("window_days", r.Config.DaysToRescan))

	logs, err := r.Ledger.RecentDispositionLogs(ctx, r.Config.DaysToRescan)
	if err != nil {
		return fmt.Errorf("load recent dispositions: %w", err)
	}
	for _, entry := range logs {
		if !entry.Dispo.Rescannable() {
			continue
		}
		cm, err := r.Client.Comment(ctx, entry.CommentID)
		if err != nil {
			r.Log.Warn("rescan fetch failed", zap.String("comment_id", entry.CommentID), zap.Error(err))
			continue
		}
		if err := r.Recon.ProcessComment(ctx, cm, true); err != nil {
			r.Log.Warn("rescan skipped", zap.String("comment_id", cm.ID), zap.Error(err))
		}
	}
	return nil
}

// ScanInbox reads unread messages and executes moderator commands. Every
// message is marked read, commands from non-moderators are ignored.
func (r *Runner) ScanInbox(ctx context.Context) error {
	msgs, err := r.Client.Unread(ctx)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	mods, err := r.Client.Moderators(ctx)
	if err != nil {
		return fmt.Errorf("list moderators: %w", err)
	}
	var stop bool
	for _, m := range msgs {
		if isModerator(mods, m.Author) {
			if err := r.runCommand(ctx, m); err != nil {
				if errors.Is(err, ErrStopRequested) {
					stop = true
				} else {
					r.Log.Warn("command failed", zap.String("message_id", m.ID), zap.Error(err))
				}
			}
		}
		if err := r.Client.MarkRead(ctx, m.ID); err != nil {
			r.Log.Warn("mark read failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
	if stop {
		return ErrStopRequested
	}
	return nil
}

func isModerator(mods []string, name string) bool {
	for _, m := range mods {
		if m == name {
			return true
		}
	}
	return false
}

func (r *Runner) runCommand(ctx context.Context, m platform.Message) error {
	command := strings.ToLower(strings.TrimSpace(m.Subject))
	r.Log.Info("moderator command", zap.String("command", command), zap.String("from", m.Author))

	switch command {
	case "add", "force add":
		strict := command != "force add"
		if !strict {
			notice := "The force add command has been used on the following link(s):\n\n" + m.Body
			if err := r.Client.SendMessage(ctx, "/"+r.Config.Community, "Force Add Detected", notice); err != nil {
				return err
			}
		}
		if err := r.processLinked(ctx, m.Body, strict); err != nil {
			return err
		}
		return r.Client.SendMessage(ctx, m.Author, "Add complete",
			"The add command has been completed on: "+m.Body)
	case "rescan":
		return r.processLinked(ctx, m.Body, true)
	case "reset":
		r.scanned = nil
		return nil
	case "stop":
		if err := r.Client.SendMessage(ctx, "/"+r.Config.Community, "Stop Message Confirmed",
			"NOTICE: The stop message has been issued and I have stopped running."); err != nil {
			r.Log.Warn("stop notice failed", zap.Error(err))
		}
		return ErrStopRequested
	}
	return nil
}

// processLinked runs the pipeline over every comment permalink found in a
// message body.
func (r *Runner) processLinked(ctx context.Context, body string, strict bool) error {
	for _, id := range r.extractCommentIDs(body) {
		cm, err := r.Client.Comment(ctx, id)
		if err != nil {
			r.Log.Warn("linked comment fetch failed", zap.String("comment_id", id), zap.Error(err))
			continue
		}
		if err := r.Recon.ProcessComment(ctx, cm, strict); err != nil {
			r.Log.Warn("linked comment skipped", zap.String("comment_id", id), zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) extractCommentIDs(body string) []string {
	pattern := regexp.MustCompile(
		`(?:https?://)?[\w.-]*/` + regexp.QuoteMeta(r.Config.Community) + `/comments/[\w\d]+(?:/[^/\s]+)/?([\w\d]+)`)
	var ids []string
	for _, m := range pattern.FindAllStringSubmatch(body, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// notifyFirstAwards sends the one-time welcome message to anyone whose
// freshly recorded award was their first.
func (r *Runner) notifyFirstAwards(ctx context.Context) {
	seen := map[string]bool{}
	for _, a := range r.Recon.TakeAwarded() {
		awardee := a.AwardedCommentAuthor
		if seen[awardee] {
			continue
		}
		seen[awardee] = true
		n, err := r.Ledger.AwardCountByAwardee(ctx, awardee)
		if err != nil {
			r.Log.Warn("award count failed", zap.String("awardee", awardee), zap.Error(err))
			continue
		}
		if n != 1 {
			continue
		}
		body := fmt.Sprintf(r.Config.Messages.FirstTime, r.Config.Community, awardee)
		if err := r.Client.SendMessage(ctx, awardee, r.Config.Messages.FirstTimeSubject, body); err != nil {
			r.Log.Warn("first award notice failed", zap.String("awardee", awardee), zap.Error(err))
		}
	}
}

// Once runs a single iteration: inbox, fresh comments, rescans, first-award
// notices.
func (r *Runner) Once(ctx context.Context, rescan bool) error {
	if err := r.ScanInbox(ctx); err != nil {
		if errors.Is(err, ErrStopRequested) {
			return err
		}
		r.Log.Warn("inbox scan failed", zap.Error(err))
	}
	if err := r.ScanNew(ctx); err != nil {
		r.Log.Warn("comment scan failed", zap.Error(err))
	}
	if rescan {
		if err := r.Rescan(ctx); err != nil {
			r.Log.Warn("rescan failed", zap.Error(err))
		}
	}
	r.notifyFirstAwards(ctx)
	r.persistResumePoint()
	return nil
}

// Run loops Once until the context is cancelled or a moderator stops the
// bot. Rescans fire on the first iteration of every reset cycle; the scanned
// window clears every resetEvery iterations.
func (r *Runner) Run(ctx context.Context) error {
	iteration := 0
	for {
		if err := r.Once(ctx, iteration == 0); err != nil {
			return err
		}
		iteration++
		if iteration == resetEvery {
			r.scanned = nil
			iteration = 0
		}
		r.Log.Info("iteration complete", zap.Int("iteration", iteration))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(r.Config.SleepSeconds) * time.Second):
		}
	}
}

func (r *Runner) persistResumePoint() {
	if r.StateFile == "" || len(r.scanned) == 0 {
		return
	}
	id := r.scanned[len(r.scanned)-1]
	if err := os.WriteFile(r.StateFile, []byte(id), 0o644); err != nil {
		r.Log.Warn("persist resume point failed", zap.Error(err))
	}
}

func readSavedID(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
