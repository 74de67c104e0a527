package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/storage"
)

// ScoreTransform adjusts a computed score before clamping, e.g. doubling
// for critical detector signals.
type ScoreTransform func(float64) float64

// CreateReport runs the intake pipeline for one candidate: policy
// suppression, scoring, dedup-or-merge against the open (suspect, reason)
// report, persistence, then side effects. Returns false with no error when
// the candidate was suppressed by policy.
//
// Two concurrent candidates for the same pair may race on the
// find-then-upsert; upsert semantics make the last write win on the merge
// document. This path is deliberately not serialized by the inquiry queue.
func (eng *Engine) CreateReport(ctx context.Context, c modreport.Candidate, transforms ...ScoreTransform) (bool, error) {
	logger := eng.Logger.With("suspect", c.Suspect.ID, "reason", c.Reason, "reporter", c.Reporter.ID)

	if c.Reporter.Marks.ReportBan {
		reportSuppressedCount.WithLabelValues(string(c.Reason)).Inc()
		logger.Debug("suppressing report from banned reporter")
		return false, nil
	}
	if mootCandidate(c) {
		reportSuppressedCount.WithLabelValues(string(c.Reason)).Inc()
		logger.Debug("suppressing moot report, suspect already sanctioned")
		return false, nil
	}

	accuracy, err := eng.ReporterAccuracy(ctx, c.Reporter.ID)
	if err != nil {
		return false, fmt.Errorf("computing reporter accuracy: %w", err)
	}
	score := eng.Config.Scorer(c, accuracy)
	for _, t := range transforms {
		score = t(score)
	}
	score = modreport.ClampScore(score)

	now := time.Now()
	atom := c.Atom(now)

	open := true
	existing, err := eng.Store.FindOne(ctx, storage.Selector{
		SuspectID: c.Suspect.ID,
		Reason:    &c.Reason,
		Open:      &open,
	})
	if err != nil {
		return false, fmt.Errorf("looking up open report: %w", err)
	}
	if existing == nil {
		existing, err = eng.reopenCandidate(ctx, c)
		if err != nil {
			return false, err
		}
	}

	var rep modreport.Report
	prevScore := 0.0
	if existing != nil {
		prevScore = existing.Score
		rep = modreport.Merge(*existing, atom, score, eng.Config.MergePolicy)
		logger.Info("merging report", "report", rep.ID, "score", rep.Score, "atoms", len(rep.Atoms))
	} else {
		rep = modreport.Report{
			ID:        uuid.New().String(),
			SuspectID: c.Suspect.ID,
			Reason:    c.Reason,
			Score:     score,
			Open:      true,
			Atoms:     []modreport.Atom{atom},
		}
		logger.Info("creating report", "report", rep.ID, "score", rep.Score)
	}
	if err := eng.Store.Upsert(ctx, rep.ID, &rep); err != nil {
		return false, fmt.Errorf("persisting report: %w", err)
	}

	eng.reportSideEffects(ctx, logger, c, &rep, prevScore)
	return true, nil
}

// A candidate is moot when acting on it could not change anything: the
// suspect already carries the sanction the report argues for.
func mootCandidate(c modreport.Candidate) bool {
	switch {
	case c.Reason == modreport.ReasonCheat && c.Suspect.Marks.Engine:
		return true
	case c.IsAutomatic() && c.Reason != modreport.ReasonComm && c.Suspect.Marks.Troll:
		return true
	case c.Reason == modreport.ReasonComm && c.Suspect.Marks.Troll:
		return true
	}
	return false
}

// reopenCandidate finds a report for this pair that the system previously
// bulk-closed, eligible to reopen because the suspect is still unsanctioned.
func (eng *Engine) reopenCandidate(ctx context.Context, c modreport.Candidate) (*modreport.Report, error) {
	if c.Suspect.Marks.Engine || c.Suspect.Marks.Troll || c.Suspect.Marks.Lame {
		return nil, nil
	}
	closed := false
	reps, err := eng.Store.Find(ctx, storage.Selector{
		SuspectID: c.Suspect.ID,
		Reason:    &c.Reason,
		Open:      &closed,
		DoneBy:    eng.Config.SystemUserID,
	}, storage.SortRecentFirst, 1)
	if err != nil {
		return nil, fmt.Errorf("looking up reopenable report: %w", err)
	}
	if len(reps) == 0 {
		return nil, nil
	}
	return &reps[0], nil
}

// Side effects after a successful persist, in order: metric, burst alert on
// threshold crossing, cheat event, room score invalidation (unconditional,
// merges included).
func (eng *Engine) reportSideEffects(ctx context.Context, logger *slog.Logger, c modreport.Candidate, rep *modreport.Report, prevScore float64) {
	reportReceivedCount.WithLabelValues(string(c.Reason), strconv.Itoa(int(rep.Score))).Inc()

	th := eng.Config.EscalationThreshold
	if c.Reason == modreport.ReasonComm && rep.Score >= th && prevScore < th && eng.Notifier != nil {
		if err := eng.Notifier.SendBurstAlert(ctx, c.Suspect.ID); err != nil {
			logger.Warn("sending burst alert failed", "err", err)
		} else {
			burstAlertCount.Inc()
		}
	}

	if c.Reason == modreport.ReasonCheat && eng.Bus != nil {
		evt := CheatReportEvent{ReportID: rep.ID, SuspectID: rep.SuspectID, Score: rep.Score}
		if err := eng.Bus.Publish(ctx, TopicCheatReport, evt); err != nil {
			logger.Warn("publishing cheat report event failed", "err", err)
		}
	}

	eng.PurgeRoomScores(ctx)
}

// Process closes a report: Done set, inquiry cleared, caches invalidated.
// Returns nil when the report does not exist.
func (eng *Engine) Process(ctx context.Context, mod modreport.Moderator, reportID string) (*modreport.Report, error) {
	rep, err := eng.Store.FindOne(ctx, storage.Selector{ID: reportID})
	if err != nil {
		return nil, fmt.Errorf("looking up report: %w", err)
	}
	if rep == nil {
		return nil, nil
	}
	rep.Open = false
	rep.Inquiry = nil
	rep.Done = &modreport.Done{By: mod.ID, At: time.Now()}
	if err := eng.Store.Upsert(ctx, rep.ID, rep); err != nil {
		return nil, fmt.Errorf("persisting processed report: %w", err)
	}
	reportProcessedCount.WithLabelValues(string(rep.Reason)).Inc()
	eng.Logger.Info("report processed", "report", rep.ID, "mod", mod.ID, "reason", rep.Reason)

	eng.PurgeRoomScores(ctx)
	seen := map[string]bool{}
	for _, a := range rep.Atoms {
		if !seen[a.By] {
			seen[a.By] = true
			eng.PurgeAccuracy(ctx, a.By)
		}
	}
	return rep, nil
}

// AutoProcess bulk-closes every open report on a now-sanctioned suspect in
// the given rooms, attributed to the system user. Reports closed this way
// stay eligible for reopening should the sanction be lifted.
func (eng *Engine) AutoProcess(ctx context.Context, suspectID string, rooms []modreport.Room) (int, error) {
	open := true
	sel := storage.Selector{SuspectID: suspectID, Rooms: rooms, Open: &open}

	// reporters whose accuracy caches go stale with this closure
	reporters, err := eng.Store.Distinct(ctx, storage.FieldAtomBy, sel)
	if err != nil {
		return 0, fmt.Errorf("listing reporters for cache purge: %w", err)
	}

	openFalse := false
	n, err := eng.Store.UpdateMany(ctx, sel, storage.Patch{
		SetOpen:      &openFalse,
		ClearInquiry: true,
		SetDone:      &modreport.Done{By: eng.Config.SystemUserID, At: time.Now()},
	})
	if err != nil {
		return 0, fmt.Errorf("bulk-closing reports: %w", err)
	}
	if n > 0 {
		eng.Logger.Info("auto-processed reports", "suspect", suspectID, "count", n)
		eng.PurgeRoomScores(ctx)
		for _, by := range reporters {
			eng.PurgeAccuracy(ctx, by)
		}
	}
	return n, nil
}
