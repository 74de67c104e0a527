package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playhall/modreport/modreport"
	"github.com/playhall/modreport/modreport/storage"
)

func startedFixture(t *testing.T) (*Engine, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng := EngineTestFixture()
	eng.StartWorkers(ctx)
	return eng, ctx
}

func mustCreate(t *testing.T, eng *Engine, reporterID, suspectID string, reason modreport.Reason, text string, transforms ...ScoreTransform) *modreport.Report {
	t.Helper()
	ctx := context.Background()
	created, err := eng.CreateReport(ctx, TestCandidate(eng, reporterID, suspectID, reason, text), transforms...)
	require.NoError(t, err)
	require.True(t, created)
	open := true
	rep, err := eng.Store.FindOne(ctx, storage.Selector{SuspectID: suspectID, Reason: &reason, Open: &open})
	require.NoError(t, err)
	require.NotNil(t, rep)
	return rep
}

func TestToggleClaimAndSelfCancel(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)
	rep := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "t")

	// fresh claim
	prev, next, err := eng.Toggle(ctx, rep.ID, mod)
	assert.NoError(err)
	assert.Nil(prev)
	require.NotNil(t, next)
	assert.Equal(TestMod, next.Inquiry.Mod)

	stored, err := eng.Store.FindOne(ctx, storage.Selector{ID: rep.ID})
	assert.NoError(err)
	assert.NotNil(stored.Inquiry)

	// second toggle by the holder: released, not re-claimed
	prev, next, err = eng.Toggle(ctx, rep.ID, mod)
	assert.NoError(err)
	require.NotNil(t, prev)
	assert.Equal(rep.ID, prev.ID)
	assert.Nil(next)

	stored, err = eng.Store.FindOne(ctx, storage.Selector{ID: rep.ID})
	assert.NoError(err)
	assert.Nil(stored.Inquiry)
	assert.True(stored.Open)
}

func TestToggleSwitchesClaims(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)
	repA := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "a")
	repB := mustCreate(t, eng, TestReporter, TestSuspect2, modreport.ReasonCheat, "b")

	_, _, err := eng.Toggle(ctx, repA.ID, mod)
	assert.NoError(err)

	prev, next, err := eng.Toggle(ctx, repB.ID, mod)
	assert.NoError(err)
	require.NotNil(t, prev)
	assert.Equal(repA.ID, prev.ID)
	require.NotNil(t, next)
	assert.Equal(repB.ID, next.ID)

	storedA, err := eng.Store.FindOne(ctx, storage.Selector{ID: repA.ID})
	assert.NoError(err)
	assert.Nil(storedA.Inquiry)
	storedB, err := eng.Store.FindOne(ctx, storage.Selector{ID: repB.ID})
	assert.NoError(err)
	require.NotNil(t, storedB.Inquiry)
	assert.Equal(TestMod, storedB.Inquiry.Mod)
}

func TestToggleBySuspectID(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)
	rep := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "t")

	_, next, err := eng.Toggle(ctx, TestSuspect, mod)
	assert.NoError(err)
	require.NotNil(t, next)
	assert.Equal(rep.ID, next.ID)
}

func TestToggleUnknownIdent(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)

	prev, next, err := eng.Toggle(ctx, "nobody", mod)
	assert.NoError(err)
	assert.Nil(prev)
	assert.Nil(next)
}

func TestExclusiveClaimUnderConcurrency(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	rep := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "t")

	dir := eng.Directory.(*modreport.MockDirectory)
	const n = 8
	mods := make([]modreport.Moderator, n)
	for i := 0; i < n; i++ {
		id := "racer-" + string(rune('a'+i))
		dir.Insert(modreport.UserMeta{ID: id, Marks: modreport.Marks{Mod: true}})
		mods[i] = TestModerator(eng, id)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := []string{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(mod modreport.Moderator) {
			defer wg.Done()
			_, next, err := eng.Toggle(ctx, rep.ID, mod)
			assert.NoError(err)
			if next != nil {
				mu.Lock()
				winners = append(winners, mod.ID)
				mu.Unlock()
			}
		}(mods[i])
	}
	wg.Wait()

	// exactly one moderator won the claim, and the store agrees on who
	require.Len(t, winners, 1)
	stored, err := eng.Store.FindOne(ctx, storage.Selector{ID: rep.ID})
	assert.NoError(err)
	require.NotNil(t, stored.Inquiry)
	assert.Equal(winners[0], stored.Inquiry.Mod)
}

func TestToggleNextPicksHighestUnsnoozed(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)

	low := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "low",
		func(s float64) float64 { return 40 })
	high := mustCreate(t, eng, TestReporter, TestSuspect2, modreport.ReasonCheat, "high",
		func(s float64) float64 { return 90 })

	_, next, err := eng.ToggleNext(ctx, modreport.RoomCheat, mod)
	assert.NoError(err)
	require.NotNil(t, next)
	assert.Equal(high.ID, next.ID)

	// snooze the winner and go again: the lower report comes up
	_, _, err = eng.Toggle(ctx, high.ID, mod) // release
	assert.NoError(err)
	_, err = eng.Snooze(ctx, mod, high.ID, time.Hour)
	assert.NoError(err)

	stored, err := eng.Store.FindOne(ctx, storage.Selector{ID: low.ID})
	assert.NoError(err)
	require.NotNil(t, stored.Inquiry)
	assert.Equal(TestMod, stored.Inquiry.Mod)

	// snoozing is moderator-local
	mod2 := TestModerator(eng, TestMod2)
	_, _, err = eng.Toggle(ctx, low.ID, mod) // release low
	assert.NoError(err)
	_, next, err = eng.ToggleNext(ctx, modreport.RoomCheat, mod2)
	assert.NoError(err)
	require.NotNil(t, next)
	assert.Equal(high.ID, next.ID)
}

func TestSpontaneousAndAppeal(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)

	rep, err := eng.Spontaneous(ctx, TestSuspect, mod)
	assert.NoError(err)
	require.NotNil(t, rep)
	assert.True(rep.Open)
	assert.True(rep.IsPlaceholder())
	require.NotNil(t, rep.Inquiry)
	assert.Equal(TestMod, rep.Inquiry.Mod)
	assert.Equal(modreport.SpontaneousText, rep.Atoms[0].Text)

	// walking away from an uninspected placeholder deletes it
	_, _, err = eng.Toggle(ctx, rep.ID, mod)
	assert.NoError(err)
	gone, err := eng.Store.FindOne(ctx, storage.Selector{ID: rep.ID})
	assert.NoError(err)
	assert.Nil(gone)

	appeal, err := eng.Appeal(ctx, TestSuspect2, mod)
	assert.NoError(err)
	require.NotNil(t, appeal)
	assert.Equal(modreport.AppealText, appeal.Atoms[0].Text)
}

func TestExpireInquiries(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)
	mod2 := TestModerator(eng, TestMod2)

	rep := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "t")
	_, _, err := eng.Toggle(ctx, rep.ID, mod)
	assert.NoError(err)
	placeholder, err := eng.Spontaneous(ctx, TestSuspect2, mod2)
	assert.NoError(err)

	// age both claims past the expiry
	for _, id := range []string{rep.ID, placeholder.ID} {
		stored, err := eng.Store.FindOne(ctx, storage.Selector{ID: id})
		assert.NoError(err)
		stored.Inquiry.SeenAt = time.Now().Add(-30 * time.Minute)
		assert.NoError(eng.Store.Upsert(ctx, id, stored))
	}

	assert.NoError(eng.ExpireInquiries(ctx))

	released, err := eng.Store.FindOne(ctx, storage.Selector{ID: rep.ID})
	assert.NoError(err)
	require.NotNil(t, released)
	assert.Nil(released.Inquiry)
	assert.True(released.Open)

	deleted, err := eng.Store.FindOne(ctx, storage.Selector{ID: placeholder.ID})
	assert.NoError(err)
	assert.Nil(deleted)
}

func TestExpireLeavesFreshClaims(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)
	rep := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "t")

	_, _, err := eng.Toggle(ctx, rep.ID, mod)
	assert.NoError(err)
	assert.NoError(eng.ExpireInquiries(ctx))

	stored, err := eng.Store.FindOne(ctx, storage.Selector{ID: rep.ID})
	assert.NoError(err)
	require.NotNil(t, stored.Inquiry)
}

func TestCancelReleasesClaim(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)
	rep := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "t")

	_, _, err := eng.Toggle(ctx, rep.ID, mod)
	assert.NoError(err)
	assert.NoError(eng.Cancel(ctx, rep.ID, mod))

	stored, err := eng.Store.FindOne(ctx, storage.Selector{ID: rep.ID})
	assert.NoError(err)
	assert.Nil(stored.Inquiry)
	assert.True(stored.Open)
}

func TestInquiryRequiresWorker(t *testing.T) {
	assert := assert.New(t)
	eng := EngineTestFixture()
	mod := TestModerator(eng, TestMod)

	_, _, err := eng.Toggle(context.Background(), "r1", mod)
	assert.ErrorIs(err, ErrNotStarted)
}

func TestSequencerFailsFastWhenFull(t *testing.T) {
	assert := assert.New(t)

	// no worker draining: fill the backlog, then one more must be rejected
	q := newSequencer(2, time.Second, slog.Default())
	noop := func(ctx context.Context) error { return nil }
	q.tasks <- seqTask{name: "a", fn: noop, done: make(chan error, 1)}
	q.tasks <- seqTask{name: "b", fn: noop, done: make(chan error, 1)}

	err := q.submit(context.Background(), "c", noop)
	assert.ErrorIs(err, ErrQueueFull)
}

func TestSequencerFailsPendingOnShutdown(t *testing.T) {
	assert := assert.New(t)

	q := newSequencer(4, time.Second, slog.Default())
	done := make(chan error, 1)
	q.tasks <- seqTask{name: "pending", fn: func(ctx context.Context) error { return nil }, done: done}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.run(ctx)

	// the queued task was failed, not dropped, so its submitter unblocks
	assert.ErrorIs(<-done, context.Canceled)

	// submitting to a stopped worker errors instead of blocking forever
	err := q.submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(err, ErrNotStarted)
}

func TestSequencerRunsInSubmissionOrder(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := newSequencer(8, time.Second, slog.Default())
	go q.run(ctx)

	var mu sync.Mutex
	got := []int{}
	for i := 0; i < 5; i++ {
		i := i
		err := q.submit(ctx, "t", func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, i)
			return nil
		})
		assert.NoError(err)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal([]int{0, 1, 2, 3, 4}, got)
}

func TestSequencerTaskTimeout(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := newSequencer(8, 20*time.Millisecond, slog.Default())
	go q.run(ctx)

	err := q.submit(ctx, "slow", func(tctx context.Context) error {
		<-tctx.Done()
		return tctx.Err()
	})
	assert.ErrorIs(err, context.DeadlineExceeded)
}
