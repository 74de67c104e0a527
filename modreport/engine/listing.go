package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/storage"
)

// how much suspect presence is worth relative to raw score when ordering a
// moderator's queue
const onlineUrgencyBoost = 20

// QueueEntry is a listed report enriched with suspect presence and the
// derived urgency used for final ordering.
type QueueEntry struct {
	Report  modreport.Report
	Online  bool
	Urgency float64
}

// OpenAndRecent builds a moderator's working queue: open, unclaimed,
// non-snoozed reports in the room (all listable rooms when room is nil),
// highest score first, backfilled with recently closed reports when short.
// The xfiles room never gets backfill. Entries are re-ranked by urgency,
// which folds in suspect presence.
func (eng *Engine) OpenAndRecent(ctx context.Context, room *modreport.Room, mod modreport.Moderator, limit int) ([]QueueEntry, error) {
	rooms := modreport.ListableRooms()
	if room != nil {
		rooms = []modreport.Room{*room}
	}

	open := true
	reps, err := eng.Store.Find(ctx, storage.Selector{
		Rooms:     rooms,
		Open:      &open,
		Unclaimed: true,
	}, storage.SortScoreDesc, 0)
	if err != nil {
		return nil, fmt.Errorf("listing open reports: %w", err)
	}
	picked := make([]modreport.Report, 0, limit)
	for i := range reps {
		if len(picked) >= limit {
			break
		}
		if eng.snoozed(ctx, mod.ID, reps[i].ID) {
			continue
		}
		picked = append(picked, reps[i])
	}

	if len(picked) < limit && !(room != nil && *room == modreport.RoomXfiles) {
		closed := false
		recent, err := eng.Store.Find(ctx, storage.Selector{
			Rooms: rooms,
			Open:  &closed,
		}, storage.SortRecentFirst, limit-len(picked))
		if err != nil {
			return nil, fmt.Errorf("backfilling closed reports: %w", err)
		}
		picked = append(picked, recent...)
	}

	out := make([]QueueEntry, 0, len(picked))
	for i := range picked {
		online := false
		if eng.Presence != nil {
			online, err = eng.Presence.IsOnline(ctx, picked[i].SuspectID)
			if err != nil {
				eng.Logger.Warn("presence lookup failed", "suspect", picked[i].SuspectID, "err", err)
				online = false
			}
		}
		urgency := picked[i].Score
		if online {
			urgency += onlineUrgencyBoost
		}
		out = append(out, QueueEntry{Report: picked[i], Online: online, Urgency: urgency})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Urgency > out[j].Urgency
	})
	return out, nil
}

// RecentBySuspect lists the newest reports filed against one user.
func (eng *Engine) RecentBySuspect(ctx context.Context, suspectID string, limit int) ([]modreport.Report, error) {
	return eng.Store.Find(ctx, storage.Selector{SuspectID: suspectID}, storage.SortRecentFirst, limit)
}

// ByAndAbout lists the newest reports a user filed or is the subject of.
func (eng *Engine) ByAndAbout(ctx context.Context, userID string, limit int) ([]modreport.Report, error) {
	return eng.Store.Find(ctx, storage.Selector{ByOrAbout: userID}, storage.SortRecentFirst, limit)
}
