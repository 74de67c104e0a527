// Report lifecycle engine: intake/dedup/scoring, the inquiry claim
// protocol, aggregate caches, and the moderator-facing query layer.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/cachestore"
	"github.com/playhall/modreport/modreport/countstore"
	"github.com/playhall/modreport/modreport/storage"
)

// Scorer computes the severity of a candidate given the reporter's cached
// accuracy (nil when unknown). Deterministic, injectable; the engine clamps
// the result to [5,100] after caller-supplied transforms.
type Scorer func(c modreport.Candidate, accuracy *int) float64

type Config struct {
	Scorer      Scorer
	MergePolicy modreport.ScoreMergePolicy
	// communication reports crossing this score trigger a burst alert
	EscalationThreshold float64
	// bounded backlog of the inquiry sequencer; submissions beyond it fail fast
	QueueSize int
	// per-task deadline inside the sequencer
	TaskTimeout time.Duration
	// claims older than this are released by the sweep
	ClaimExpiry   time.Duration
	SweepInterval time.Duration
	// distinguished identity automated detectors report as
	SystemUserID string
}

func DefaultConfig() Config {
	return Config{
		Scorer:              DefaultScorer,
		MergePolicy:         modreport.MergeMax,
		EscalationThreshold: 80,
		QueueSize:           32,
		TaskTimeout:         20 * time.Second,
		ClaimExpiry:         20 * time.Minute,
		SweepInterval:       time.Minute,
		SystemUserID:        "watcher",
	}
}

// DefaultScorer weighs reporter reliability and evidence substance around a
// reason-dependent base. Detector candidates start higher: they only fire on
// corroborated signals.
func DefaultScorer(c modreport.Candidate, accuracy *int) float64 {
	score := 30.0
	if c.IsAutomatic() {
		score = 50
	}
	if accuracy != nil {
		score += float64(*accuracy-50) / 2
	}
	n := len([]rune(c.Text))
	if n > 400 {
		n = 400
	}
	score += float64(n) / 40
	return score
}

// Engine owns report state transitions. Logger, Store, Directory, Counters
// and the three caches must be non-nil; Notifier, Bus and Presence are
// optional collaborators and may be left nil.
type Engine struct {
	Logger    *slog.Logger
	Store     storage.Store
	Directory modreport.Directory
	Counters  countstore.CountStore
	// reporter reliability, 24h TTL
	AccuracyCache cachestore.Cache
	// per-room max open score, 5m TTL
	ScoreCache cachestore.Cache
	// moderator-local report suppressions
	SnoozeCache cachestore.Cache
	Notifier    Notifier
	Bus         EventBus
	Presence    Presence
	Config      Config

	inquiries *sequencer
}

// StartWorkers launches the inquiry sequencer and the stale-claim sweep.
// Call with a cancellable context for graceful shutdown; mutating inquiry
// operations fail with ErrNotStarted until this runs.
func (eng *Engine) StartWorkers(ctx context.Context) {
	eng.inquiries = newSequencer(eng.Config.QueueSize, eng.Config.TaskTimeout, eng.Logger)
	go eng.inquiries.run(ctx)
	go eng.runInquirySweep(ctx)
}
