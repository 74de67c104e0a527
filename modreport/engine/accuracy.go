package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/storage"
)

const (
	accuracyCacheName = "accuracy"
	// sentinel cached when the reporter's history is too thin to judge
	accuracyUnknown = "none"
	// closed cheat reports considered per reporter
	accuracyWindow = 20
	// below this many closed cheat reports, accuracy is unknown
	accuracyMinSample = 4
)

// ReporterAccuracy returns the reporter's cached reliability estimate in
// [0,100], or nil when their history is too thin. Both outcomes are cached
// for the cache's TTL; processing any of the reporter's reports purges the
// entry.
func (eng *Engine) ReporterAccuracy(ctx context.Context, reporterID string) (*int, error) {
	if v, ok, err := eng.AccuracyCache.Get(ctx, accuracyCacheName, reporterID); err == nil && ok {
		if v == accuracyUnknown {
			return nil, nil
		}
		if n, err := strconv.Atoi(v); err == nil {
			return &n, nil
		}
	}

	acc, err := eng.computeAccuracy(ctx, reporterID)
	if err != nil {
		return nil, err
	}
	accuracyRefreshCount.Inc()
	val := accuracyUnknown
	if acc != nil {
		val = strconv.Itoa(*acc)
	}
	if err := eng.AccuracyCache.Set(ctx, accuracyCacheName, reporterID, val); err != nil {
		eng.Logger.Warn("caching reporter accuracy failed", "reporter", reporterID, "err", err)
	}
	return acc, nil
}

// Laplace-smoothed confirmation rate over the reporter's recent closed
// cheat reports: round(100*(confirmed+0.5)/(distinctSuspects+2)). The
// smoothing keeps a couple of lucky hits from minting a trusted reporter.
func (eng *Engine) computeAccuracy(ctx context.Context, reporterID string) (*int, error) {
	closed := false
	sel := storage.Selector{
		Reason: &modreport.ReasonCheat,
		Open:   &closed,
		AtomBy: reporterID,
	}
	reps, err := eng.Store.Find(ctx, sel, storage.SortRecentFirst, accuracyWindow)
	if err != nil {
		return nil, fmt.Errorf("listing closed cheat reports: %w", err)
	}
	if len(reps) < accuracyMinSample {
		return nil, nil
	}
	confirmed := 0
	seen := make(map[string]bool)
	for i := range reps {
		if seen[reps[i].SuspectID] {
			continue
		}
		seen[reps[i].SuspectID] = true
		meta, err := eng.Directory.Lookup(ctx, reps[i].SuspectID)
		if err != nil {
			return nil, fmt.Errorf("resolving reported suspect: %w", err)
		}
		if meta != nil && meta.Marks.Engine {
			confirmed++
		}
	}
	score := int(math.Round(100 * (float64(confirmed) + 0.5) / (float64(len(seen)) + 2)))
	return &score, nil
}

// PurgeAccuracy drops the cached estimate; the next read recomputes.
func (eng *Engine) PurgeAccuracy(ctx context.Context, reporterID string) {
	if err := eng.AccuracyCache.Purge(ctx, accuracyCacheName, reporterID); err != nil {
		eng.Logger.Warn("purging accuracy cache failed", "reporter", reporterID, "err", err)
	}
}
