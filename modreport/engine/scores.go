package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/storage"
)

const roomScoreCacheName = "room-score"

// RoomScore returns the highest score among open, unclaimed reports in the
// room, lazily recomputed on cache miss. Creation and processing purge the
// cache, so explicit invalidation supersedes the TTL; a purge racing an
// in-flight refresh just means the next read recomputes.
func (eng *Engine) RoomScore(ctx context.Context, room modreport.Room) (float64, error) {
	if v, ok, err := eng.ScoreCache.Get(ctx, roomScoreCacheName, string(room)); err == nil && ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, nil
		}
	}

	max, err := eng.maxOpenScore(ctx, room)
	if err != nil {
		return 0, err
	}
	roomScoreRefreshCount.Inc()
	if err := eng.ScoreCache.Set(ctx, roomScoreCacheName, string(room), strconv.FormatFloat(max, 'f', -1, 64)); err != nil {
		eng.Logger.Warn("caching room score failed", "room", room, "err", err)
	}
	return max, nil
}

// RoomScores snapshots every room's maximum.
func (eng *Engine) RoomScores(ctx context.Context) (map[modreport.Room]float64, error) {
	out := make(map[modreport.Room]float64, len(modreport.AllRooms()))
	for _, room := range modreport.AllRooms() {
		score, err := eng.RoomScore(ctx, room)
		if err != nil {
			return nil, err
		}
		out[room] = score
	}
	return out, nil
}

func (eng *Engine) maxOpenScore(ctx context.Context, room modreport.Room) (float64, error) {
	open := true
	reps, err := eng.Store.Find(ctx, storage.Selector{
		Rooms:     []modreport.Room{room},
		Open:      &open,
		Unclaimed: true,
	}, storage.SortScoreDesc, 1)
	if err != nil {
		return 0, fmt.Errorf("computing room max score: %w", err)
	}
	if len(reps) == 0 {
		return 0, nil
	}
	return reps[0].Score, nil
}

// PurgeRoomScores invalidates the per-room maxima across all rooms.
func (eng *Engine) PurgeRoomScores(ctx context.Context) {
	for _, room := range modreport.AllRooms() {
		if err := eng.ScoreCache.Purge(ctx, roomScoreCacheName, string(room)); err != nil {
			eng.Logger.Warn("purging room score cache failed", "room", room, "err", err)
		}
	}
}
