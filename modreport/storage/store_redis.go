package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/playhall/modreport/modreport"
)

var (
	redisReportPrefix = "report/"
	redisReportIndex  = "reports"
)

// RedisStore keeps reports as JSON documents keyed by report id, with a set
// of known ids as the index. Selector evaluation happens client-side; the
// report corpus a single moderation deployment works over is small enough
// that a full scan per query is acceptable, and single-document writes keep
// the atomic upsert contract.
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &RedisStore{Client: rdb}, nil
}

func (s *RedisStore) loadAll(ctx context.Context) ([]modreport.Report, error) {
	ids, err := s.Client.SMembers(ctx, redisReportIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("listing report index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisReportPrefix + id
	}
	vals, err := s.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching report documents: %w", err)
	}
	out := make([]modreport.Report, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// id in the index but document expired or deleted; skip
			continue
		}
		var r modreport.Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decoding report document: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisStore) FindOne(ctx context.Context, sel Selector) (*modreport.Report, error) {
	// point lookup when the selector pins an id
	if sel.ID != "" {
		raw, err := s.Client.Get(ctx, redisReportPrefix+sel.ID).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var r modreport.Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decoding report document: %w", err)
		}
		if !sel.Match(&r) {
			return nil, nil
		}
		return &r, nil
	}
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if sel.Match(&all[i]) {
			return all[i].Clone(), nil
		}
	}
	return nil, nil
}

func (s *RedisStore) Find(ctx context.Context, sel Selector, order Sort, limit int) ([]modreport.Report, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	matches := []modreport.Report{}
	for i := range all {
		if sel.Match(&all[i]) {
			matches = append(matches, all[i])
		}
	}
	sortReports(matches, order)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *RedisStore) Upsert(ctx context.Context, id string, r *modreport.Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report document: %w", err)
	}
	multi := s.Client.Pipeline()
	multi.Set(ctx, redisReportPrefix+id, raw, 0)
	multi.SAdd(ctx, redisReportIndex, id)
	_, err = multi.Exec(ctx)
	return err
}

func (s *RedisStore) UpdateMany(ctx context.Context, sel Selector, p Patch) (int, error) {
	matches, err := s.Find(ctx, sel, SortNone, 0)
	if err != nil {
		return 0, err
	}
	for i := range matches {
		p.Apply(&matches[i])
		if err := s.Upsert(ctx, matches[i].ID, &matches[i]); err != nil {
			return i, err
		}
	}
	return len(matches), nil
}

func (s *RedisStore) DeleteOne(ctx context.Context, id string) error {
	multi := s.Client.Pipeline()
	multi.Del(ctx, redisReportPrefix+id)
	multi.SRem(ctx, redisReportIndex, id)
	_, err := multi.Exec(ctx)
	return err
}

func (s *RedisStore) Distinct(ctx context.Context, field string, sel Selector) ([]string, error) {
	matches, err := s.Find(ctx, sel, SortNone, 0)
	if err != nil {
		return nil, err
	}
	return distinctValues(matches, field), nil
}
