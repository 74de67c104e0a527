// Document store contract for reports.
//
// The real persistent store is an external collaborator; this package
// defines the selector-based CRUD surface the engine consumes, plus
// in-memory and redis implementations. Selectors are structural predicates
// over report fields, and every mutation is a single atomic document write
// (upsert semantics, last write wins).
package storage

import (
	"context"
	"sort"
	"time"

	"github.com/playhall/modreport/modreport"
)

// Sort orders for Find.
type Sort int

const (
	SortNone Sort = iota
	// highest score first, newest evidence breaking ties
	SortScoreDesc
	// newest evidence first
	SortRecentFirst
)

// Selector is a structural predicate over report fields. Zero-value fields
// do not constrain the match.
type Selector struct {
	ID        string
	SuspectID string
	Reason    *modreport.Reason
	Rooms     []modreport.Room
	Open      *bool
	// inquiry must be absent
	Unclaimed bool
	// inquiry held by this moderator
	ClaimedBy string
	// inquiry seen before this instant (stale claim sweep)
	ClaimedBefore time.Time
	// some atom authored by this user
	AtomBy string
	// suspect is this user, or some atom authored by them
	ByOrAbout string
	// closed by this user
	DoneBy string
	// newest atom strictly after this instant
	AtomsAfter time.Time
}

// Match evaluates the predicate against a single report.
func (s Selector) Match(r *modreport.Report) bool {
	if s.ID != "" && r.ID != s.ID {
		return false
	}
	if s.SuspectID != "" && r.SuspectID != s.SuspectID {
		return false
	}
	if s.Reason != nil && r.Reason != *s.Reason {
		return false
	}
	if len(s.Rooms) > 0 {
		found := false
		for _, room := range s.Rooms {
			if r.Room() == room {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.Open != nil && r.Open != *s.Open {
		return false
	}
	if s.Unclaimed && r.Inquiry != nil {
		return false
	}
	if s.ClaimedBy != "" && (r.Inquiry == nil || r.Inquiry.Mod != s.ClaimedBy) {
		return false
	}
	if !s.ClaimedBefore.IsZero() && (r.Inquiry == nil || !r.Inquiry.SeenAt.Before(s.ClaimedBefore)) {
		return false
	}
	if s.AtomBy != "" && !r.HasAtomBy(s.AtomBy) {
		return false
	}
	if s.ByOrAbout != "" && r.SuspectID != s.ByOrAbout && !r.HasAtomBy(s.ByOrAbout) {
		return false
	}
	if s.DoneBy != "" && (r.Done == nil || r.Done.By != s.DoneBy) {
		return false
	}
	if !s.AtomsAfter.IsZero() {
		newest := r.NewestAtom()
		if newest == nil || !newest.At.After(s.AtomsAfter) {
			return false
		}
	}
	return true
}

// Patch is a partial update applied by UpdateMany. Only set fields take
// effect.
type Patch struct {
	SetOpen      *bool
	ClearInquiry bool
	ClearDone    bool
	SetDone      *modreport.Done
}

func (p Patch) Apply(r *modreport.Report) {
	if p.SetOpen != nil {
		r.Open = *p.SetOpen
	}
	if p.ClearInquiry {
		r.Inquiry = nil
	}
	if p.ClearDone {
		r.Done = nil
	}
	if p.SetDone != nil {
		done := *p.SetDone
		r.Done = &done
	}
}

// Fields usable with Distinct.
const (
	FieldSuspect = "suspect"
	FieldAtomBy  = "atoms.by"
)

// Store is the persistence contract the engine consumes. Not-found is a nil
// result, never an error. Implementations must return copies, never aliases
// of internal state.
type Store interface {
	FindOne(ctx context.Context, sel Selector) (*modreport.Report, error)
	// Find returns matches ordered by sort; limit <= 0 means no limit.
	Find(ctx context.Context, sel Selector, order Sort, limit int) ([]modreport.Report, error)
	Upsert(ctx context.Context, id string, r *modreport.Report) error
	// UpdateMany patches all matches, returning how many were touched.
	UpdateMany(ctx context.Context, sel Selector, p Patch) (int, error)
	DeleteOne(ctx context.Context, id string) error
	// Distinct returns the unique values of a field across all matches.
	Distinct(ctx context.Context, field string, sel Selector) ([]string, error)
}

func sortReports(reports []modreport.Report, order Sort) {
	newest := func(r *modreport.Report) time.Time {
		if a := r.NewestAtom(); a != nil {
			return a.At
		}
		return time.Time{}
	}
	switch order {
	case SortScoreDesc:
		sort.SliceStable(reports, func(i, j int) bool {
			if reports[i].Score != reports[j].Score {
				return reports[i].Score > reports[j].Score
			}
			return newest(&reports[i]).After(newest(&reports[j]))
		})
	case SortRecentFirst:
		sort.SliceStable(reports, func(i, j int) bool {
			return newest(&reports[i]).After(newest(&reports[j]))
		})
	}
}

func distinctValues(reports []modreport.Report, field string) []string {
	seen := make(map[string]bool)
	out := []string{}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for i := range reports {
		switch field {
		case FieldSuspect:
			add(reports[i].SuspectID)
		case FieldAtomBy:
			for _, a := range reports[i].Atoms {
				add(a.By)
			}
		}
	}
	sort.Strings(out)
	return out
}
