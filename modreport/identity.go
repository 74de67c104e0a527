package modreport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Marks are the behavioral flags the identity service keeps on an account.
type Marks struct {
	// already sanctioned for cheating
	Engine bool
	// already sanctioned for communication abuse
	Troll bool
	// account is generally compromised (boosting, sandbagging, etc)
	Lame bool
	// banned from filing reports
	ReportBan bool
	// member of the moderation team
	Mod bool
	// distinguished system identity used by automated detectors
	System bool
}

// UserMeta is the base identity view this engine needs: an id plus marks.
// Profile data, sessions, and preferences are out of scope here.
type UserMeta struct {
	ID    string
	Marks Marks
}

// Directory resolves user ids to identity views. Implemented externally by
// the identity/role service; MockDirectory covers tests.
type Directory interface {
	// Lookup returns nil (not an error) for an unknown user.
	Lookup(ctx context.Context, userID string) (*UserMeta, error)
}

// Role view types. These are tagged, disjoint wrappers constructed only via
// the Get* conversions below; there is no implicit widening between roles.

type Suspect struct {
	UserMeta
}

type Reporter struct {
	UserMeta
}

type Moderator struct {
	UserMeta
}

func GetSuspect(ctx context.Context, d Directory, userID string) (*Suspect, error) {
	meta, err := d.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving suspect: %w", err)
	}
	if meta == nil {
		return nil, nil
	}
	return &Suspect{UserMeta: *meta}, nil
}

func GetReporter(ctx context.Context, d Directory, userID string) (*Reporter, error) {
	meta, err := d.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving reporter: %w", err)
	}
	if meta == nil {
		return nil, nil
	}
	return &Reporter{UserMeta: *meta}, nil
}

// GetModerator resolves a user id to a moderator view, returning nil for
// users without moderation rights.
func GetModerator(ctx context.Context, d Directory, userID string) (*Moderator, error) {
	meta, err := d.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving moderator: %w", err)
	}
	if meta == nil || !(meta.Marks.Mod || meta.Marks.System) {
		return nil, nil
	}
	return &Moderator{UserMeta: *meta}, nil
}

// Candidate is an unscored, unpersisted report request.
type Candidate struct {
	Reporter Reporter
	Suspect  Suspect
	Reason   Reason
	Text     string
}

// IsAutomatic reports whether this candidate was produced by an automated
// detector rather than a player.
func (c Candidate) IsAutomatic() bool {
	return c.Reporter.Marks.System
}

// Atom builds the evidence entry this candidate contributes to a report.
func (c Candidate) Atom(at time.Time) Atom {
	return NewAtom(c.Reporter.ID, c.Text, at)
}

// MockDirectory is an in-memory Directory for tests.
type MockDirectory struct {
	mu    sync.RWMutex
	users map[string]UserMeta
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{users: make(map[string]UserMeta)}
}

func (d *MockDirectory) Insert(meta UserMeta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[meta.ID] = meta
}

func (d *MockDirectory) Lookup(ctx context.Context, userID string) (*UserMeta, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	meta, ok := d.users[userID]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}
