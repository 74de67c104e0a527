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

// Well-known fixture identities.
const (
	TestSystemUser = "watcher"
	TestMod        = "mod-1"
	TestMod2       = "mod-2"
	TestReporter   = "reporter-1"
	TestReporter2  = "reporter-2"
	TestSuspect    = "suspect-1"
	TestSuspect2   = "suspect-2"
	TestEngineUser = "engine-1"
	TestTrollUser  = "troll-1"
	TestBannedUser = "banned-1"
)

// EngineTestFixture builds a fully in-memory engine with a deterministic
// scorer (fixed 50 before transforms) and a populated mock directory.
// Intentionally exported, for use in other packages.
func EngineTestFixture() *Engine {
	dir := modreport.NewMockDirectory()
	dir.Insert(modreport.UserMeta{ID: TestSystemUser, Marks: modreport.Marks{System: true, Mod: true}})
	dir.Insert(modreport.UserMeta{ID: TestMod, Marks: modreport.Marks{Mod: true}})
	dir.Insert(modreport.UserMeta{ID: TestMod2, Marks: modreport.Marks{Mod: true}})
	dir.Insert(modreport.UserMeta{ID: TestReporter})
	dir.Insert(modreport.UserMeta{ID: TestReporter2})
	dir.Insert(modreport.UserMeta{ID: TestSuspect})
	dir.Insert(modreport.UserMeta{ID: TestSuspect2})
	dir.Insert(modreport.UserMeta{ID: TestEngineUser, Marks: modreport.Marks{Engine: true}})
	dir.Insert(modreport.UserMeta{ID: TestTrollUser, Marks: modreport.Marks{Troll: true}})
	dir.Insert(modreport.UserMeta{ID: TestBannedUser, Marks: modreport.Marks{ReportBan: true}})

	cfg := DefaultConfig()
	cfg.Scorer = func(c modreport.Candidate, accuracy *int) float64 { return 50 }
	cfg.SystemUserID = TestSystemUser

	return &Engine{
		Logger:        slog.Default(),
		Store:         storage.NewMemStore(),
		Directory:     dir,
		Counters:      countstore.NewMemCountStore(),
		AccuracyCache: cachestore.NewMemCache(1000, 24*time.Hour),
		ScoreCache:    cachestore.NewMemCache(100, 5*time.Minute),
		SnoozeCache:   cachestore.NewMemCache(1000, 24*time.Hour),
		Notifier:      &MemNotifier{},
		Bus:           NewMemBus(),
		Presence:      NewMemPresence(),
		Config:        cfg,
	}
}

// TestCandidate resolves fixture identities into a candidate; panics on
// unknown ids since fixtures control the directory.
func TestCandidate(eng *Engine, reporterID, suspectID string, reason modreport.Reason, text string) modreport.Candidate {
	ctx := context.Background()
	reporter, err := modreport.GetReporter(ctx, eng.Directory, reporterID)
	if err != nil || reporter == nil {
		panic("fixture reporter missing: " + reporterID)
	}
	suspect, err := modreport.GetSuspect(ctx, eng.Directory, suspectID)
	if err != nil || suspect == nil {
		panic("fixture suspect missing: " + suspectID)
	}
	return modreport.Candidate{
		Reporter: *reporter,
		Suspect:  *suspect,
		Reason:   reason,
		Text:     text,
	}
}

// TestModerator resolves a fixture moderator; panics on unknown ids.
func TestModerator(eng *Engine, modID string) modreport.Moderator {
	mod, err := modreport.GetModerator(context.Background(), eng.Directory, modID)
	if err != nil || mod == nil {
		panic("fixture moderator missing: " + modID)
	}
	return *mod
}
