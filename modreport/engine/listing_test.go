package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playhall/modreport/modreport"
)

func TestOpenAndRecentOrdering(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)

	low := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "low",
		func(s float64) float64 { return 30 })
	high := mustCreate(t, eng, TestReporter, TestSuspect2, modreport.ReasonCheat, "high",
		func(s float64) float64 { return 70 })

	room := modreport.RoomCheat
	entries, err := eng.OpenAndRecent(ctx, &room, mod, 10)
	assert.NoError(err)
	require.Len(t, entries, 2)
	assert.Equal(high.ID, entries[0].Report.ID)
	assert.Equal(low.ID, entries[1].Report.ID)
	assert.Equal(70.0, entries[0].Urgency)
}

func TestOpenAndRecentOnlineBoost(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)

	mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "offline",
		func(s float64) float64 { return 60 })
	online := mustCreate(t, eng, TestReporter, TestSuspect2, modreport.ReasonCheat, "online",
		func(s float64) float64 { return 50 })
	eng.Presence.(*MemPresence).SetOnline(TestSuspect2, true)

	room := modreport.RoomCheat
	entries, err := eng.OpenAndRecent(ctx, &room, mod, 10)
	assert.NoError(err)
	require.Len(t, entries, 2)
	// 50 + presence boost outranks 60 offline
	assert.Equal(online.ID, entries[0].Report.ID)
	assert.True(entries[0].Online)
	assert.Equal(70.0, entries[0].Urgency)
	assert.False(entries[1].Online)
}

func TestOpenAndRecentExcludesSnoozedAndClaimed(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)
	mod2 := TestModerator(eng, TestMod2)

	a := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "a",
		func(s float64) float64 { return 90 })
	b := mustCreate(t, eng, TestReporter, TestSuspect2, modreport.ReasonCheat, "b",
		func(s float64) float64 { return 80 })

	// a claimed by another moderator drops out for everyone
	_, _, err := eng.Toggle(ctx, a.ID, mod2)
	assert.NoError(err)

	room := modreport.RoomCheat
	entries, err := eng.OpenAndRecent(ctx, &room, mod, 10)
	assert.NoError(err)
	require.Len(t, entries, 1)
	assert.Equal(b.ID, entries[0].Report.ID)

	// snoozing b hides it from this moderator only
	_, err = eng.Snooze(ctx, mod, b.ID, time.Hour)
	assert.NoError(err)
	entries, err = eng.OpenAndRecent(ctx, &room, mod, 10)
	assert.NoError(err)
	assert.Empty(entries)

	entries, err = eng.OpenAndRecent(ctx, &room, mod2, 10)
	assert.NoError(err)
	assert.Len(entries, 1)
}

func TestOpenAndRecentBackfill(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)

	rep := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "t")
	_, err := eng.Process(ctx, mod, rep.ID)
	assert.NoError(err)

	// nothing open, so the queue is padded with recently closed work
	room := modreport.RoomCheat
	entries, err := eng.OpenAndRecent(ctx, &room, mod, 10)
	assert.NoError(err)
	require.Len(t, entries, 1)
	assert.Equal(rep.ID, entries[0].Report.ID)
	assert.False(entries[0].Report.Open)
}

func TestOpenAndRecentNoXfilesBackfill(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)

	rep := mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonOther, "odd")
	_, err := eng.Process(ctx, mod, rep.ID)
	assert.NoError(err)

	room := modreport.RoomXfiles
	entries, err := eng.OpenAndRecent(ctx, &room, mod, 10)
	assert.NoError(err)
	assert.Empty(entries)
}

func TestOpenAndRecentAllRooms(t *testing.T) {
	assert := assert.New(t)
	eng, ctx := startedFixture(t)
	mod := TestModerator(eng, TestMod)

	mustCreate(t, eng, TestReporter, TestSuspect, modreport.ReasonCheat, "a")
	mustCreate(t, eng, TestReporter, TestSuspect2, modreport.ReasonComm, "b")

	entries, err := eng.OpenAndRecent(ctx, nil, mod, 10)
	assert.NoError(err)
	assert.Len(entries, 2)
}

func TestRecentBySuspectAndByAndAbout(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()

	_, err := eng.CreateReport(ctx, TestCandidate(eng, TestReporter, TestSuspect, modreport.ReasonCheat, "a"))
	assert.NoError(err)
	_, err = eng.CreateReport(ctx, TestCandidate(eng, TestReporter, TestSuspect2, modreport.ReasonComm, "b"))
	assert.NoError(err)
	_, err = eng.CreateReport(ctx, TestCandidate(eng, TestReporter2, TestSuspect, modreport.ReasonComm, "c"))
	assert.NoError(err)

	bySuspect, err := eng.RecentBySuspect(ctx, TestSuspect, 10)
	assert.NoError(err)
	assert.Len(bySuspect, 2)

	// everything reporter-1 filed, across suspects
	involved, err := eng.ByAndAbout(ctx, TestReporter, 10)
	assert.NoError(err)
	assert.Len(involved, 2)

	// suspect-1 both filed nothing and is the subject of two
	involved, err = eng.ByAndAbout(ctx, TestSuspect, 10)
	assert.NoError(err)
	assert.Len(involved, 2)
}
