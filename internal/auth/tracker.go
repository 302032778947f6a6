package auth

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/campovivo/platform/internal/identity"
	"github.com/campovivo/platform/internal/shared/types"
)

// SessionSource is the identity-backend surface the tracker consumes: a
// point-in-time check for an existing session plus a push subscription for
// subsequent changes.
type SessionSource interface {
	CurrentSession(ctx context.Context) (*identity.Session, error)
	OnSessionChange(fn func(identity.SessionEvent)) func()
}

// The identity store is the production source.
var _ SessionSource = (*identity.Store)(nil)

// RoleResolver resolves the canonical role for a user
type RoleResolver interface {
	Resolve(ctx context.Context, userID types.ID) Role
}

// State is the tracker snapshot exposed to readers
type State struct {
	Session       *identity.Session
	Authorization Authorization
	// Loading is true from an identity change until the first role
	// resolution attempt for that identity completes.
	Loading bool
}

// Tracker holds the current session and its resolved authorization for one
// principal. It reconciles the startup session check with the ongoing
// session-change subscription: role resolution runs exactly once per
// identity change, and a resolution that completes after the identity has
// already moved on is discarded rather than written.
type Tracker struct {
	source   SessionSource
	resolver RoleResolver
	log      *logrus.Entry

	mu sync.RWMutex
	// generation guards against stale resolution writes. Every identity
	// change bumps it; a resolution result is only applied if the
	// generation it started under is still current.
	generation uint64
	session    *identity.Session
	auth       Authorization
	loading    bool

	unsubscribe func()
}

// NewTracker creates a tracker
func NewTracker(source SessionSource, resolver RoleResolver) *Tracker {
	return &Tracker{
		source:   source,
		resolver: resolver,
		log:      logrus.WithField("component", "tracker"),
		loading:  true,
	}
}

// Start subscribes to session changes and performs the initial session
// check. A failed initial check is logged and treated as signed out, never
// as a default role. The pull result is guarded by the generation current
// at subscription time: if a session-change event lands while the pull is
// in flight, the event wins and the stale pull result is discarded.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	startGen := t.generation
	t.mu.Unlock()

	t.unsubscribe = t.source.OnSessionChange(func(ev identity.SessionEvent) {
		switch ev.Type {
		case identity.SessionSignedIn:
			t.setSession(ctx, ev.Session)
		case identity.SessionSignedOut, identity.SessionRevoked:
			t.clearSession()
		}
	})

	session, err := t.source.CurrentSession(ctx)
	if err != nil {
		t.log.WithError(err).Warn("initial session check failed, treating as signed out")
		session = nil
	} else if session != nil && !session.IsActive() {
		session = nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generation != startGen {
		return
	}
	if session == nil {
		t.clearLocked()
		return
	}
	t.resolveLocked(ctx, session)
}

// Stop cancels the session-change subscription
func (t *Tracker) Stop() {
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
}

// State returns the current snapshot
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return State{
		Session:       t.session,
		Authorization: t.auth,
		Loading:       t.loading,
	}
}

func (t *Tracker) setSession(ctx context.Context, session *identity.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil && t.session.ID == session.ID {
		// The startup check and the subscription can both observe the
		// same sign-in; resolve once per identity change, not once per
		// source.
		return
	}
	t.resolveLocked(ctx, session)
}

// resolveLocked installs the session and starts role resolution for it.
// Callers hold mu.
func (t *Tracker) resolveLocked(ctx context.Context, session *identity.Session) {
	t.generation++
	gen := t.generation
	t.session = session
	t.auth = Authorization{UserID: session.UserID, SessionID: session.ID, Email: session.Email}
	t.loading = true

	go func() {
		role := t.resolver.Resolve(ctx, session.UserID)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.generation != gen {
			// The identity changed while the lookup was in flight.
			// Dropping the result here is what prevents a signed-out
			// user's role from flashing back into view.
			return
		}
		t.auth.Role = role
		t.auth.Resolved = true
		t.loading = false
	}()
}

func (t *Tracker) clearSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked()
}

// clearLocked drops the session and its authorization. Callers hold mu.
func (t *Tracker) clearLocked() {
	t.generation++
	// The authorization is zeroed before loading settles so a stale
	// elevated role is never observable, even momentarily.
	t.auth = Authorization{}
	t.session = nil
	t.loading = false
}
