// Automated report producers: thin glue that resolves the system reporter,
// builds a reason-specific candidate, and hands it to the intake pipeline.
// The one exception with real logic of its own is the ban-evasion
// aggregator in banevasion.go.
package detectors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/countstore"
	"github.com/playhall/modreport/modreport/engine"
)

type Detectors struct {
	Engine *engine.Engine
	Logger *slog.Logger
	// abuse-ban counts per account, supplied by the playban service
	Playbans PlaybanSource
}

// PlaybanSource exposes how many abuse bans an account has accumulated.
type PlaybanSource interface {
	PlaybanCount(ctx context.Context, userID string) (int, error)
}

func New(eng *engine.Engine, logger *slog.Logger, playbans PlaybanSource) *Detectors {
	return &Detectors{Engine: eng, Logger: logger, Playbans: playbans}
}

// critical doubles a detector score; used where the signal is corroborated
// enough that a moderator should see it ahead of player reports.
func critical(s float64) float64 { return s * 2 }

// systemCandidate builds a candidate reported by the system identity.
// Returns nil (no error) when either identity cannot be resolved.
func (d *Detectors) systemCandidate(ctx context.Context, suspectID string, reason modreport.Reason, text string) (*modreport.Candidate, error) {
	reporter, err := modreport.GetReporter(ctx, d.Engine.Directory, d.Engine.Config.SystemUserID)
	if err != nil {
		return nil, err
	}
	suspect, err := modreport.GetSuspect(ctx, d.Engine.Directory, suspectID)
	if err != nil {
		return nil, err
	}
	if reporter == nil || suspect == nil {
		return nil, nil
	}
	return &modreport.Candidate{
		Reporter: *reporter,
		Suspect:  *suspect,
		Reason:   reason,
		Text:     text,
	}, nil
}

// fresh guards against an automated report repeating within the day for the
// same (reason, suspect).
func (d *Detectors) fresh(ctx context.Context, reason modreport.Reason, suspectID string) bool {
	c, err := d.Engine.Counters.GetCount(ctx, counterName(reason), suspectID, countstore.PeriodDay)
	if err != nil {
		d.Logger.Warn("detector dedupe counter read failed", "reason", reason, "err", err)
		return false
	}
	return c == 0
}

func (d *Detectors) mark(ctx context.Context, reason modreport.Reason, suspectID string) {
	if err := d.Engine.Counters.Increment(ctx, counterName(reason), suspectID); err != nil {
		d.Logger.Warn("detector dedupe counter increment failed", "reason", reason, "err", err)
	}
}

func counterName(reason modreport.Reason) string {
	return "detector-report-" + string(reason)
}

func (d *Detectors) file(ctx context.Context, suspectID string, reason modreport.Reason, text string, transforms ...engine.ScoreTransform) (bool, error) {
	if !d.fresh(ctx, reason, suspectID) {
		d.Logger.Debug("skipping duplicate automated report", "suspect", suspectID, "reason", reason)
		return false, nil
	}
	cand, err := d.systemCandidate(ctx, suspectID, reason, text)
	if err != nil || cand == nil {
		return false, err
	}
	created, err := d.Engine.CreateReport(ctx, *cand, transforms...)
	if err != nil {
		return false, err
	}
	if created {
		d.mark(ctx, reason, suspectID)
		detectorReportCount.WithLabelValues(string(reason)).Inc()
	}
	return created, nil
}

// CheatPrint files a cheat report when the analysis engine flags a player's
// recent games. Treated as critical: the signal only fires on multiple
// flagged games.
func (d *Detectors) CheatPrint(ctx context.Context, suspectID string, games int) (bool, error) {
	text := fmt.Sprintf("Cheat analysis flagged %d recent games", games)
	return d.file(ctx, suspectID, modreport.ReasonCheat, text, critical)
}

// CommAbuse files a communication report carrying the offending excerpt.
func (d *Detectors) CommAbuse(ctx context.Context, suspectID, excerpt string) (bool, error) {
	text := fmt.Sprintf("Toxic chat detected: %q", excerpt)
	return d.file(ctx, suspectID, modreport.ReasonComm, text)
}

// Boosting files a report for suspicious rating inflation.
func (d *Detectors) Boosting(ctx context.Context, suspectID string, games int) (bool, error) {
	text := fmt.Sprintf("Rating manipulation suspected across %d games (boosting)", games)
	return d.file(ctx, suspectID, modreport.ReasonBoost, text)
}

// Sandbagging files a report for deliberate rating deflation.
func (d *Detectors) Sandbagging(ctx context.Context, suspectID string, games int) (bool, error) {
	text := fmt.Sprintf("Rating manipulation suspected across %d games (sandbagging)", games)
	return d.file(ctx, suspectID, modreport.ReasonBoost, text)
}

// AltAccount files a report correlating a suspect with a linked account.
func (d *Detectors) AltAccount(ctx context.Context, suspectID, linkedID string) (bool, error) {
	text := fmt.Sprintf("Shares IP and device fingerprint with %s", linkedID)
	return d.file(ctx, suspectID, modreport.ReasonAltAccount, text)
}
