package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/storage"
)

var (
	// ErrQueueFull is returned when the inquiry backlog is saturated; the
	// caller should retry or surface the failure, the queue never grows
	// past its bound.
	ErrQueueFull = errors.New("inquiry queue full")
	// ErrNotStarted is returned when mutating inquiry operations run while
	// the worker is not, either before StartWorkers or after shutdown.
	ErrNotStarted = errors.New("inquiry worker not running")
)

type seqTask struct {
	name string
	fn   func(ctx context.Context) error
	done chan error
}

// sequencer linearizes inquiry state transitions: a bounded FIFO task
// channel drained by exactly one worker goroutine. Claim races (two
// moderators both observing "unclaimed") cannot happen because every
// read-modify-write runs here, one at a time, in submission order.
type sequencer struct {
	tasks   chan seqTask
	stopped chan struct{}
	timeout time.Duration
	logger  *slog.Logger
}

func newSequencer(size int, timeout time.Duration, logger *slog.Logger) *sequencer {
	return &sequencer{
		tasks:   make(chan seqTask, size),
		stopped: make(chan struct{}),
		timeout: timeout,
		logger:  logger,
	}
}

func (q *sequencer) run(ctx context.Context) {
	defer close(q.stopped)
	for {
		select {
		case <-ctx.Done():
			q.failPending(ctx.Err())
			return
		case t := <-q.tasks:
			if err := ctx.Err(); err != nil {
				t.done <- err
				continue
			}
			tctx, cancel := context.WithTimeout(ctx, q.timeout)
			start := time.Now()
			err := t.fn(tctx)
			cancel()
			inquiryTaskDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
			if err != nil {
				q.logger.Warn("inquiry task failed", "task", t.name, "err", err)
			}
			t.done <- err
		}
	}
}

// failPending fails every task still queued at shutdown so its submitter
// unblocks instead of waiting on a worker that will never run it.
func (q *sequencer) failPending(err error) {
	for {
		select {
		case t := <-q.tasks:
			t.done <- err
		default:
			return
		}
	}
}

// submit enqueues a task and waits for its completion. Fails fast with
// ErrQueueFull instead of blocking when the backlog is at capacity.
func (q *sequencer) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	t := seqTask{name: name, fn: fn, done: make(chan error, 1)}
	select {
	case q.tasks <- t:
	default:
		inquiryQueueFullCount.Inc()
		return ErrQueueFull
	}
	select {
	case err := <-t.done:
		return err
	case <-q.stopped:
		// worker shut down; the task may have been failed just before
		select {
		case err := <-t.done:
			return err
		default:
			return ErrNotStarted
		}
	case <-ctx.Done():
		// abandoned by the caller; the task still executes in order
		return ctx.Err()
	}
}

// Toggle starts, switches, or self-cancels a moderator's claim. The
// identifier resolves by report id first, then as a suspect user id (their
// highest-scoring open report). Returns the previously held report (now
// released) and the newly claimed one; both may be nil.
func (eng *Engine) Toggle(ctx context.Context, ident string, mod modreport.Moderator) (prev, next *modreport.Report, err error) {
	return eng.toggleTarget(ctx, "toggle", mod, func(tctx context.Context) (*modreport.Report, error) {
		return eng.resolveInquiryTarget(tctx, ident)
	})
}

// ToggleNext claims the highest-scoring open, unclaimed, non-snoozed report
// in the room, releasing any claim the moderator already holds.
func (eng *Engine) ToggleNext(ctx context.Context, room modreport.Room, mod modreport.Moderator) (prev, next *modreport.Report, err error) {
	return eng.toggleTarget(ctx, "toggle-next", mod, func(tctx context.Context) (*modreport.Report, error) {
		return eng.nextBest(tctx, room, mod)
	})
}

func (eng *Engine) toggleTarget(ctx context.Context, op string, mod modreport.Moderator, pick func(ctx context.Context) (*modreport.Report, error)) (prev, next *modreport.Report, err error) {
	if eng.inquiries == nil {
		return nil, nil, ErrNotStarted
	}
	err = eng.inquiries.submit(ctx, op, func(tctx context.Context) error {
		target, err := pick(tctx)
		if err != nil {
			return err
		}
		p, err := eng.releaseCurrent(tctx, mod)
		if err != nil {
			return err
		}
		prev = p
		if target == nil {
			return nil
		}
		if prev != nil && prev.ID == target.ID {
			// second toggle by the holder: released in the step above, net off
			return nil
		}
		fresh, err := eng.Store.FindOne(tctx, storage.Selector{ID: target.ID})
		if err != nil {
			return fmt.Errorf("re-reading toggle target: %w", err)
		}
		if fresh == nil || !fresh.Open || fresh.Inquiry != nil {
			return nil
		}
		fresh.Inquiry = &modreport.Inquiry{Mod: mod.ID, SeenAt: time.Now()}
		if err := eng.Store.Upsert(tctx, fresh.ID, fresh); err != nil {
			return fmt.Errorf("persisting claim: %w", err)
		}
		next = fresh
		return nil
	})
	if err == nil {
		inquiryOpCount.WithLabelValues(op).Inc()
	}
	return prev, next, err
}

func (eng *Engine) resolveInquiryTarget(ctx context.Context, ident string) (*modreport.Report, error) {
	rep, err := eng.Store.FindOne(ctx, storage.Selector{ID: ident})
	if err != nil {
		return nil, fmt.Errorf("resolving report id: %w", err)
	}
	if rep != nil {
		return rep, nil
	}
	open := true
	reps, err := eng.Store.Find(ctx, storage.Selector{SuspectID: ident, Open: &open}, storage.SortScoreDesc, 1)
	if err != nil {
		return nil, fmt.Errorf("resolving suspect id: %w", err)
	}
	if len(reps) == 0 {
		return nil, nil
	}
	return &reps[0], nil
}

func (eng *Engine) nextBest(ctx context.Context, room modreport.Room, mod modreport.Moderator) (*modreport.Report, error) {
	open := true
	reps, err := eng.Store.Find(ctx, storage.Selector{
		Rooms:     []modreport.Room{room},
		Open:      &open,
		Unclaimed: true,
	}, storage.SortScoreDesc, 0)
	if err != nil {
		return nil, fmt.Errorf("listing room queue: %w", err)
	}
	for i := range reps {
		if !eng.snoozed(ctx, mod.ID, reps[i].ID) {
			return &reps[i], nil
		}
	}
	return nil, nil
}

// releaseCurrent drops the moderator's active claim, if any, returning the
// report as it was held. Self-authored placeholders are deleted outright.
func (eng *Engine) releaseCurrent(ctx context.Context, mod modreport.Moderator) (*modreport.Report, error) {
	cur, err := eng.Store.FindOne(ctx, storage.Selector{ClaimedBy: mod.ID})
	if err != nil {
		return nil, fmt.Errorf("looking up current claim: %w", err)
	}
	if cur == nil {
		return nil, nil
	}
	return cur, eng.releaseClaim(ctx, cur.Clone(), mod.ID)
}

func (eng *Engine) releaseClaim(ctx context.Context, rep *modreport.Report, modID string) error {
	if rep.IsPlaceholder() && rep.AuthoredBy(modID) {
		// an uninspected placeholder has no independent value
		if err := eng.Store.DeleteOne(ctx, rep.ID); err != nil {
			return fmt.Errorf("deleting placeholder report: %w", err)
		}
		return nil
	}
	rep.Inquiry = nil
	rep.Done = nil
	rep.Open = true
	if err := eng.Store.Upsert(ctx, rep.ID, rep); err != nil {
		return fmt.Errorf("persisting released claim: %w", err)
	}
	return nil
}

// Cancel releases the moderator's claim on a specific report (deleting it
// when it is their own placeholder).
func (eng *Engine) Cancel(ctx context.Context, reportID string, mod modreport.Moderator) error {
	if eng.inquiries == nil {
		return ErrNotStarted
	}
	err := eng.inquiries.submit(ctx, "cancel", func(tctx context.Context) error {
		rep, err := eng.Store.FindOne(tctx, storage.Selector{ID: reportID})
		if err != nil {
			return fmt.Errorf("looking up report: %w", err)
		}
		if rep == nil {
			return nil
		}
		return eng.releaseClaim(tctx, rep, mod.ID)
	})
	if err == nil {
		inquiryOpCount.WithLabelValues("cancel").Inc()
	}
	return err
}

// Spontaneous inserts a pre-claimed placeholder report so a moderator can
// review a suspect nobody reported. Any currently held claim is released
// first.
func (eng *Engine) Spontaneous(ctx context.Context, suspectID string, mod modreport.Moderator) (*modreport.Report, error) {
	return eng.placeholder(ctx, "spontaneous", suspectID, mod, modreport.SpontaneousText)
}

// Appeal is the placeholder variant opened when a sanctioned user appeals.
func (eng *Engine) Appeal(ctx context.Context, suspectID string, mod modreport.Moderator) (*modreport.Report, error) {
	return eng.placeholder(ctx, "appeal", suspectID, mod, modreport.AppealText)
}

func (eng *Engine) placeholder(ctx context.Context, op, suspectID string, mod modreport.Moderator, marker string) (*modreport.Report, error) {
	if eng.inquiries == nil {
		return nil, ErrNotStarted
	}
	var out *modreport.Report
	err := eng.inquiries.submit(ctx, op, func(tctx context.Context) error {
		if _, err := eng.releaseCurrent(tctx, mod); err != nil {
			return err
		}
		now := time.Now()
		rep := modreport.Report{
			ID:        uuid.New().String(),
			SuspectID: suspectID,
			Reason:    modreport.ReasonOther,
			Open:      true,
			Atoms:     []modreport.Atom{modreport.NewAtom(mod.ID, marker, now)},
			Inquiry:   &modreport.Inquiry{Mod: mod.ID, SeenAt: now},
		}
		if err := eng.Store.Upsert(tctx, rep.ID, &rep); err != nil {
			return fmt.Errorf("persisting placeholder report: %w", err)
		}
		out = &rep
		return nil
	})
	if err != nil {
		return nil, err
	}
	inquiryOpCount.WithLabelValues(op).Inc()
	return out, nil
}

// ExpireInquiries releases every claim older than the configured expiry,
// deleting stale placeholders. Routed through the sequencer so the sweep
// cannot collide with live toggles.
func (eng *Engine) ExpireInquiries(ctx context.Context) error {
	if eng.inquiries == nil {
		return ErrNotStarted
	}
	return eng.inquiries.submit(ctx, "expire", func(tctx context.Context) error {
		cutoff := time.Now().Add(-eng.Config.ClaimExpiry)
		stale, err := eng.Store.Find(tctx, storage.Selector{ClaimedBefore: cutoff}, storage.SortNone, 0)
		if err != nil {
			return fmt.Errorf("listing stale claims: %w", err)
		}
		for i := range stale {
			rep := &stale[i]
			// releaseClaim clears rep.Inquiry, so read the holder first
			mod := rep.Inquiry.Mod
			if err := eng.releaseClaim(tctx, rep, mod); err != nil {
				return err
			}
			expiredClaimCount.Inc()
			eng.Logger.Info("expired inquiry claim", "report", rep.ID, "mod", mod)
		}
		return nil
	})
}

// runInquirySweep periodically expires stale claims until ctx is cancelled.
func (eng *Engine) runInquirySweep(ctx context.Context) {
	ticker := time.NewTicker(eng.Config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.ExpireInquiries(ctx); err != nil && !errors.Is(err, context.Canceled) {
				eng.Logger.Warn("inquiry sweep failed", "err", err)
			}
		}
	}
}

// Snooze hides one report from this moderator's queue for the duration
// without touching global state, then advances them to the next-best report
// in the same room.
func (eng *Engine) Snooze(ctx context.Context, mod modreport.Moderator, reportID string, dur time.Duration) (*modreport.Report, error) {
	rep, err := eng.Store.FindOne(ctx, storage.Selector{ID: reportID})
	if err != nil {
		return nil, fmt.Errorf("looking up report: %w", err)
	}
	if rep == nil {
		return nil, nil
	}
	deadline := time.Now().Add(dur).Format(time.RFC3339)
	if err := eng.SnoozeCache.Set(ctx, snoozeCacheName, snoozeKey(mod.ID, reportID), deadline); err != nil {
		return nil, fmt.Errorf("recording snooze: %w", err)
	}
	inquiryOpCount.WithLabelValues("snooze").Inc()
	_, next, err := eng.ToggleNext(ctx, rep.Room(), mod)
	return next, err
}

const snoozeCacheName = "snooze"

func snoozeKey(modID, reportID string) string {
	return modID + "/" + reportID
}

func (eng *Engine) snoozed(ctx context.Context, modID, reportID string) bool {
	v, ok, err := eng.SnoozeCache.Get(ctx, snoozeCacheName, snoozeKey(modID, reportID))
	if err != nil || !ok {
		return false
	}
	deadline, err := time.Parse(time.RFC3339, v)
	return err == nil && time.Now().Before(deadline)
}
