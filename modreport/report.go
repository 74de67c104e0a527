package modreport

import (
	"time"
)

// Reason classifies why a report was filed. It is fixed at creation and
// determines the room a report is queued in.
type Reason string

var (
	ReasonCheat      Reason = "cheat"
	ReasonComm       Reason = "communication"
	ReasonBoost      Reason = "boost"
	ReasonAltAccount Reason = "alt-account"
	ReasonPlayban    Reason = "playban-pattern"
	ReasonOther      Reason = "other"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonCheat, ReasonComm, ReasonBoost, ReasonAltAccount, ReasonPlayban, ReasonOther:
		return true
	}
	return false
}

// Room is the priority partition a report is queued in. It is a pure
// function of the reason; RoomXfiles is the low-priority catch-all which is
// excluded from normal listing and backfill.
type Room string

var (
	RoomCheat  Room = "cheat"
	RoomComm   Room = "comm"
	RoomOther  Room = "other"
	RoomXfiles Room = "xfiles"
)

func (r Reason) Room() Room {
	switch r {
	case ReasonCheat:
		return RoomCheat
	case ReasonComm:
		return RoomComm
	case ReasonBoost, ReasonAltAccount, ReasonPlayban:
		return RoomOther
	default:
		return RoomXfiles
	}
}

func AllRooms() []Room {
	return []Room{RoomCheat, RoomComm, RoomOther, RoomXfiles}
}

// Rooms eligible for moderator queue listing (everything except xfiles).
func ListableRooms() []Room {
	return []Room{RoomCheat, RoomComm, RoomOther}
}

// Maximum length of a single evidence text, in runes. Longer submissions are
// truncated, not rejected.
const MaxAtomText = 1000

// Atom is one evidence entry within a report. Reports keep atoms ordered
// newest first.
type Atom struct {
	By   string    `json:"by"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

func NewAtom(by, text string, at time.Time) Atom {
	if runes := []rune(text); len(runes) > MaxAtomText {
		text = string(runes[:MaxAtomText])
	}
	return Atom{By: by, Text: text, At: at}
}

// Inquiry marks a report as exclusively claimed by one moderator.
type Inquiry struct {
	Mod    string    `json:"mod"`
	SeenAt time.Time `json:"seenAt"`
}

// Done marks a report as processed (closed) by a moderator.
type Done struct {
	By string    `json:"by"`
	At time.Time `json:"at"`
}

// Report is a persisted, possibly-merged abuse record for one
// (suspect, reason) pair.
//
// Invariants: Open==false exactly when Done is set; Inquiry set implies
// Open; the room is derived from Reason and never stored independently.
type Report struct {
	ID        string   `json:"id"`
	SuspectID string   `json:"suspect"`
	Reason    Reason   `json:"reason"`
	Score     float64  `json:"score"`
	Open      bool     `json:"open"`
	Atoms     []Atom   `json:"atoms"`
	Inquiry   *Inquiry `json:"inquiry,omitempty"`
	Done      *Done    `json:"done,omitempty"`
}

func (r *Report) Room() Room {
	return r.Reason.Room()
}

// NewestAtom returns the most recent evidence entry, or nil for an empty
// report.
func (r *Report) NewestAtom() *Atom {
	if len(r.Atoms) == 0 {
		return nil
	}
	return &r.Atoms[0]
}

func (r *Report) HasAtomBy(userID string) bool {
	for _, a := range r.Atoms {
		if a.By == userID {
			return true
		}
	}
	return false
}

// Marker texts identifying moderator-synthesized placeholder reports. These
// carry no independent evidence and are deleted (not released) when the
// claiming moderator walks away.
const (
	SpontaneousText = "Spontaneous inquiry"
	AppealText      = "Appeal inquiry"
)

func (r *Report) IsPlaceholder() bool {
	a := r.NewestAtom()
	if a == nil {
		return false
	}
	return a.Text == SpontaneousText || a.Text == AppealText
}

// AuthoredBy reports whether the placeholder (or any report) was opened by
// the given user, judged by its newest atom.
func (r *Report) AuthoredBy(userID string) bool {
	a := r.NewestAtom()
	return a != nil && a.By == userID
}

// Clone returns a deep copy, so store implementations can hand out reports
// without aliasing their internal state.
func (r *Report) Clone() *Report {
	out := *r
	out.Atoms = make([]Atom, len(r.Atoms))
	copy(out.Atoms, r.Atoms)
	if r.Inquiry != nil {
		inq := *r.Inquiry
		out.Inquiry = &inq
	}
	if r.Done != nil {
		done := *r.Done
		out.Done = &done
	}
	return &out
}

// ScoreMergePolicy selects how the score of an incoming candidate combines
// with the score of the open report it merges into.
type ScoreMergePolicy int

const (
	// MergeMax keeps the higher of the two scores. This is the default: a
	// later, better-informed score can raise severity but a low-effort
	// duplicate can never erase it.
	MergeMax ScoreMergePolicy = iota
	// MergeSum accumulates scores across candidates.
	MergeSum
	// MergeReplace lets the newest score win outright.
	MergeReplace
)

// Merge folds a new accepted candidate into an existing report: the atom is
// prepended (newest first) and the score combined per policy. The result is
// always an open report; merging into a reopened report clears its closure.
func Merge(old Report, atom Atom, score float64, policy ScoreMergePolicy) Report {
	out := *old.Clone()
	out.Atoms = append([]Atom{atom}, out.Atoms...)
	switch policy {
	case MergeSum:
		out.Score = out.Score + score
	case MergeReplace:
		out.Score = score
	default:
		if score > out.Score {
			out.Score = score
		}
	}
	out.Open = true
	out.Done = nil
	return out
}

// ClampScore bounds a computed severity to the working range. The floor
// keeps accepted reports visible; the ceiling keeps multipliers from
// dominating queue ordering forever.
func ClampScore(s float64) float64 {
	if s < 5 {
		return 5
	}
	if s > 100 {
		return 100
	}
	return s
}
