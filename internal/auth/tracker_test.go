package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campovivo/platform/internal/identity"
	"github.com/campovivo/platform/internal/shared/types"
)

type fakeSessionSource struct {
	mu      sync.Mutex
	session *identity.Session
	err     error
	subs    []func(identity.SessionEvent)
}

func (f *fakeSessionSource) CurrentSession(ctx context.Context) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.err
}

func (f *fakeSessionSource) OnSessionChange(fn func(identity.SessionEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeSessionSource) emit(ev identity.SessionEvent) {
	f.mu.Lock()
	subs := append([]func(identity.SessionEvent){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// blockingResolver holds every resolution until released, so tests can
// observe the in-flight window.
type blockingResolver struct {
	role    Role
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func newBlockingResolver(role Role) *blockingResolver {
	return &blockingResolver{role: role, release: make(chan struct{})}
}

func (b *blockingResolver) Resolve(ctx context.Context, userID types.ID) Role {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return b.role
}

func (b *blockingResolver) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func activeSession() *identity.Session {
	return &identity.Session{
		ID:        types.NewID(),
		UserID:    types.NewID(),
		Email:     "ana@campovivo.example",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTrackerInitialSession(t *testing.T) {
	session := activeSession()
	source := &fakeSessionSource{session: session}
	resolver := newBlockingResolver(RoleAdmin)

	tr := NewTracker(source, resolver)
	tr.Start(context.Background())
	defer tr.Stop()

	// While resolution is in flight the tracker reports loading and every
	// predicate stays false.
	state := tr.State()
	if !state.Loading {
		t.Error("Loading = false before resolution completed")
	}
	if state.Authorization.IsAdmin() || state.Authorization.Satisfies(RequireNone) {
		t.Error("predicates answered true during resolution")
	}

	close(resolver.release)
	waitFor(t, func() bool { return !tr.State().Loading })

	state = tr.State()
	if !state.Authorization.IsAdmin() {
		t.Error("role not applied after resolution")
	}
	if state.Session == nil || state.Session.ID != session.ID {
		t.Error("session not tracked")
	}
}

func TestTrackerInitialCheckErrorMeansSignedOut(t *testing.T) {
	source := &fakeSessionSource{err: errors.New("backend unreachable")}
	resolver := newBlockingResolver(RoleAdmin)

	tr := NewTracker(source, resolver)
	tr.Start(context.Background())
	defer tr.Stop()

	state := tr.State()
	if state.Loading {
		t.Error("Loading = true after failed initial check")
	}
	if state.Session != nil {
		t.Error("session present after failed initial check")
	}
	if resolver.callCount() != 0 {
		t.Error("resolution attempted with no session")
	}
}

func TestTrackerResolvesOncePerIdentityChange(t *testing.T) {
	session := activeSession()
	source := &fakeSessionSource{session: session}
	resolver := newBlockingResolver(RoleEditor)

	tr := NewTracker(source, resolver)
	tr.Start(context.Background())
	defer tr.Stop()

	// The subscription observing the same sign-in the initial check
	// already handled must not trigger a second resolution.
	source.emit(identity.SessionEvent{Type: identity.SessionSignedIn, Session: session})

	close(resolver.release)
	waitFor(t, func() bool { return !tr.State().Loading })

	if got := resolver.callCount(); got != 1 {
		t.Errorf("resolver called %d times, want 1", got)
	}
}

func TestTrackerDiscardsStaleResolution(t *testing.T) {
	session := activeSession()
	source := &fakeSessionSource{session: session}
	resolver := newBlockingResolver(RoleAdmin)

	tr := NewTracker(source, resolver)
	tr.Start(context.Background())
	defer tr.Stop()

	waitFor(t, func() bool { return resolver.callCount() == 1 })

	// Sign out while the admin resolution is still in flight, then let it
	// complete late.
	source.emit(identity.SessionEvent{Type: identity.SessionSignedOut, Session: session})
	close(resolver.release)

	// The late result must be dropped: no flash of the admin role.
	time.Sleep(20 * time.Millisecond)
	state := tr.State()
	if state.Session != nil {
		t.Error("session survived sign-out")
	}
	if state.Authorization.Resolved || state.Authorization.IsAdmin() {
		t.Error("stale resolution was applied after sign-out")
	}
	if state.Loading {
		t.Error("Loading = true after sign-out")
	}
}

func TestTrackerClearsRoleOnSignOut(t *testing.T) {
	session := activeSession()
	source := &fakeSessionSource{session: session}
	resolver := newBlockingResolver(RoleAdmin)

	tr := NewTracker(source, resolver)
	tr.Start(context.Background())
	defer tr.Stop()

	close(resolver.release)
	waitFor(t, func() bool { return tr.State().Authorization.IsAdmin() })

	source.emit(identity.SessionEvent{Type: identity.SessionSignedOut, Session: session})

	state := tr.State()
	if state.Authorization.IsAdmin() || state.Authorization.Resolved {
		t.Error("resolved role observable after sign-out")
	}
}

// stalledSource parks the initial session check until released, so a test
// can deliver subscription events while the pull is still in flight.
type stalledSource struct {
	fakeSessionSource
	pullStarted chan struct{}
	pullRelease chan struct{}
}

func (s *stalledSource) CurrentSession(ctx context.Context) (*identity.Session, error) {
	close(s.pullStarted)
	<-s.pullRelease
	return s.fakeSessionSource.CurrentSession(ctx)
}

func TestTrackerInitialCheckDoesNotStompSignIn(t *testing.T) {
	resolver := newBlockingResolver(RoleEditor)
	close(resolver.release)

	// The pull will report "no session"; a sign-in arrives through the
	// subscription while it is still in flight.
	source := &stalledSource{
		pullStarted: make(chan struct{}),
		pullRelease: make(chan struct{}),
	}

	tr := NewTracker(source, resolver)
	done := make(chan struct{})
	go func() {
		tr.Start(context.Background())
		close(done)
	}()
	defer tr.Stop()

	<-source.pullStarted
	session := activeSession()
	source.emit(identity.SessionEvent{Type: identity.SessionSignedIn, Session: session})
	close(source.pullRelease)
	<-done

	waitFor(t, func() bool { return !tr.State().Loading })

	state := tr.State()
	if state.Session == nil || state.Session.ID != session.ID {
		t.Fatal("sign-in delivered during the initial check was wiped by the stale pull result")
	}
	if !state.Authorization.IsEditor() {
		t.Error("role from the subscription sign-in was not applied")
	}
}

func TestTrackerInitialCheckDoesNotResurrectSignedOutSession(t *testing.T) {
	resolver := newBlockingResolver(RoleAdmin)
	close(resolver.release)

	// The pull will return a session whose sign-out event already arrived
	// while the pull was in flight; the stale session must stay dead.
	session := activeSession()
	source := &stalledSource{
		fakeSessionSource: fakeSessionSource{session: session},
		pullStarted:       make(chan struct{}),
		pullRelease:       make(chan struct{}),
	}

	tr := NewTracker(source, resolver)
	done := make(chan struct{})
	go func() {
		tr.Start(context.Background())
		close(done)
	}()
	defer tr.Stop()

	<-source.pullStarted
	source.emit(identity.SessionEvent{Type: identity.SessionSignedOut, Session: session})
	close(source.pullRelease)
	<-done

	state := tr.State()
	if state.Session != nil {
		t.Fatal("stale pull result resurrected a signed-out session")
	}
	if state.Authorization.Resolved || state.Loading {
		t.Error("tracker not settled as signed out")
	}
}

func TestTrackerNewSignInAfterSignOut(t *testing.T) {
	source := &fakeSessionSource{}
	resolver := newBlockingResolver(RoleViewer)
	close(resolver.release)

	tr := NewTracker(source, resolver)
	tr.Start(context.Background())
	defer tr.Stop()

	if tr.State().Session != nil {
		t.Fatal("unexpected initial session")
	}

	session := activeSession()
	source.emit(identity.SessionEvent{Type: identity.SessionSignedIn, Session: session})
	waitFor(t, func() bool { return tr.State().Authorization.IsViewer() })

	if got := tr.State().Session; got == nil || got.ID != session.ID {
		t.Error("session from subscription not tracked")
	}
}
