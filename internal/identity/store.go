package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/campovivo/platform/internal/shared/config"
	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/metrics"
	"github.com/campovivo/platform/internal/shared/types"
)

// Store is the postgres-backed identity backend. It owns credentials,
// session rows, role assignment rows and scoped visibility grants.
type Store struct {
	pool *pgxpool.Pool
	cfg  config.AuthConfig
	log  *logrus.Entry

	mu      sync.Mutex
	nextSub int
	subs    map[int]func(SessionEvent)
}

// NewStore creates the identity store
func NewStore(pool *pgxpool.Pool, cfg config.AuthConfig) *Store {
	return &Store{
		pool: pool,
		cfg:  cfg,
		log:  logrus.WithField("component", "identity"),
		subs: make(map[int]func(SessionEvent)),
	}
}

// OnSessionChange registers a subscriber for session lifecycle events.
// The returned function cancels the subscription.
func (s *Store) OnSessionChange(fn func(SessionEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(event SessionEvent) {
	s.mu.Lock()
	subs := make([]func(SessionEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}

// SignUp creates a new user with a hashed password and provisions the
// configured default role assignment for them.
func (s *Store) SignUp(ctx context.Context, email, password, displayName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.Validation("invalid email", map[string]string{"email": "must be a valid address"})
	}
	if len(password) < 8 {
		return nil, apperrors.Validation("password too short", map[string]string{"password": "minimum 8 characters"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user := &User{
		ID:          types.NewID(),
		Email:       email,
		DisplayName: displayName,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.Unavailable(err, "identity backend unavailable")
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		user.ID, user.Email, user.DisplayName, string(hash),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, apperrors.Conflict("email already registered")
		}
		return nil, apperrors.Wrap(err, "failed to create user")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO role_assignments (user_id, role, updated_by)
		VALUES ($1, $2, $1)`,
		user.ID, s.cfg.DefaultSignupRole,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to assign default role")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.Wrap(err, "failed to commit sign-up")
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": s.cfg.DefaultSignupRole}).Info("user signed up")
	return user, nil
}

// SignIn verifies credentials, creates a session row and returns it with a
// signed access token. Invalid email and invalid password are
// indistinguishable to the caller.
func (s *Store) SignIn(ctx context.Context, email, password string) (*Session, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var userID types.ID
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email,
	).Scan(&userID, &hash)
	if err == pgx.ErrNoRows {
		metrics.RecordSignIn("invalid")
		return nil, "", apperrors.Unauthorized("invalid credentials")
	}
	if err != nil {
		metrics.RecordSignIn("error")
		return nil, "", apperrors.Unavailable(err, "identity backend unavailable")
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		metrics.RecordSignIn("invalid")
		return nil, "", apperrors.Unauthorized("invalid credentials")
	}

	session := &Session{
		ID:     types.NewID(),
		UserID: userID,
		Email:  email,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at, expires_at`,
		session.ID, session.UserID, time.Now().Add(s.cfg.SessionTTL),
	).Scan(&session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		metrics.RecordSignIn("error")
		return nil, "", apperrors.Wrap(err, "failed to create session")
	}

	token, err := IssueToken(s.cfg.JWTSecret, session, s.cfg.AccessTokenTTL)
	if err != nil {
		metrics.RecordSignIn("error")
		return nil, "", apperrors.Internal(err)
	}

	metrics.RecordSignIn("success")
	s.notify(SessionEvent{Type: SessionSignedIn, Session: session})
	return session, token, nil
}

// SignOut revokes the session row. Outstanding tokens referencing it stop
// authenticating immediately.
func (s *Store) SignOut(ctx context.Context, sessionID types.ID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`,
		sessionID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to revoke session")
	}
	if tag.RowsAffected() == 0 {
		// Already revoked; signing out twice is not an error.
		return nil
	}

	now := time.Now()
	session.RevokedAt = &now
	s.notify(SessionEvent{Type: SessionSignedOut, Session: session})
	return nil
}

// GetSession loads a session row by id
func (s *Store) GetSession(ctx context.Context, id types.ID) (*Session, error) {
	session := &Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.user_id, u.email, s.created_at, s.expires_at, s.revoked_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1`, id,
	).Scan(&session.ID, &session.UserID, &session.Email, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("session", id.String())
	}
	if err != nil {
		return nil, apperrors.Unavailable(err, "identity backend unavailable")
	}
	return session, nil
}

// CurrentSession returns the most recently created active session, or nil
// without error when nobody is signed in. It backs the startup check of the
// session tracker.
func (s *Store) CurrentSession(ctx context.Context) (*Session, error) {
	session := &Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.user_id, u.email, s.created_at, s.expires_at, s.revoked_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.revoked_at IS NULL AND s.expires_at > now()
		ORDER BY s.created_at DESC
		LIMIT 1`,
	).Scan(&session.ID, &session.UserID, &session.Email, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Unavailable(err, "identity backend unavailable")
	}
	return session, nil
}

// SessionFromToken validates an access token and returns its backing
// session, provided the session row is still active.
func (s *Store) SessionFromToken(ctx context.Context, token string) (*Session, error) {
	claims, err := ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}

	sessionID, err := types.ParseID(claims.SessionID)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid token claims")
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized("session no longer exists")
		}
		return nil, err
	}

	if !session.IsActive() {
		return nil, apperrors.Unauthorized("session expired or revoked")
	}
	return session, nil
}

// RequestPasswordReset issues a reset token for the account. Unknown emails
// succeed silently so the endpoint cannot be used to probe registrations.
func (s *Store) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var userID types.ID
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Unavailable(err, "identity backend unavailable")
	}

	token := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)`,
		token, userID, time.Now().Add(s.cfg.ResetTokenTTL),
	)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to create reset token")
	}

	s.log.WithField("user_id", userID).Info("password reset requested")
	return token.String(), nil
}

// CompletePasswordReset consumes a reset token, replaces the password hash
// and revokes every active session of the user.
func (s *Store) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return apperrors.Validation("password too short", map[string]string{"password": "minimum 8 characters"})
	}

	tokenID, err := uuid.Parse(token)
	if err != nil {
		return apperrors.BadRequest("invalid reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Internal(err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Unavailable(err, "identity backend unavailable")
	}
	defer tx.Rollback(ctx)

	var userID types.ID
	err = tx.QueryRow(ctx, `
		UPDATE password_resets
		SET used_at = now()
		WHERE token = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING user_id`, tokenID,
	).Scan(&userID)
	if err == pgx.ErrNoRows {
		return apperrors.BadRequest("invalid or expired reset token")
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to consume reset token")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		string(hash), userID,
	); err != nil {
		return apperrors.Wrap(err, "failed to update password")
	}

	rows, err := tx.Query(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
		RETURNING id`, userID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to revoke sessions")
	}
	revoked, err := scanSessionIDs(rows)
	if err != nil {
		// A truncated id list would drop revocation notifications while the
		// commit proceeds, so the whole reset fails instead.
		return apperrors.Wrap(err, "failed to read revoked sessions")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, "failed to commit password reset")
	}

	now := time.Now()
	for _, id := range revoked {
		s.notify(SessionEvent{Type: SessionRevoked, Session: &Session{ID: id, UserID: userID, RevokedAt: &now}})
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "sessions_revoked": len(revoked)}).Info("password reset completed")
	return nil
}

// scanSessionIDs drains a single-column id result set, surfacing any
// iteration error so a partially read set is never mistaken for complete.
func scanSessionIDs(rows pgx.Rows) ([]types.ID, error) {
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetUser loads a user by id
func (s *Store) GetUser(ctx context.Context, id types.ID) (*User, error) {
	user := &User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, display_name, created_at, updated_at
		FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt, &user.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("user", id.String())
	}
	if err != nil {
		return nil, apperrors.Unavailable(err, "identity backend unavailable")
	}
	return user, nil
}

// ListUsers returns all users ordered by email
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, display_name, created_at, updated_at
		FROM users ORDER BY email`,
	)
	if err != nil {
		return nil, apperrors.Unavailable(err, "identity backend unavailable")
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetRoleAssignment returns the raw role value of the user's primary role
// row. A missing row is reported as a not found error, which the resolver
// treats as "fall back to the legacy lookup", distinct from query failures.
func (s *Store) GetRoleAssignment(ctx context.Context, userID types.ID) (string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_role_assignment", time.Since(start)) }()

	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT role FROM role_assignments WHERE user_id = $1`, userID,
	).Scan(&role)
	if err == pgx.ErrNoRows {
		return "", apperrors.NotFound("role assignment", userID.String())
	}
	if err != nil {
		return "", apperrors.Unavailable(err, "role store unavailable")
	}
	return role, nil
}

// SetRoleAssignment upserts the user's primary role row
func (s *Store) SetRoleAssignment(ctx context.Context, userID types.ID, role string, actor types.ID) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO role_assignments (user_id, role, updated_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET role = $2, updated_by = $3, updated_at = now()`,
		userID, role, actor,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to set role assignment")
	}
	return nil
}

// GetScopedGrants returns the farm account ids granted to the user
func (s *Store) GetScopedGrants(ctx context.Context, userID types.ID) ([]types.ID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id FROM account_grants WHERE user_id = $1 ORDER BY granted_at`, userID,
	)
	if err != nil {
		return nil, apperrors.Unavailable(err, "grant store unavailable")
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan grant")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetScopedGrants atomically replaces the user's grant set
func (s *Store) SetScopedGrants(ctx context.Context, userID types.ID, accountIDs []types.ID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Unavailable(err, "grant store unavailable")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM account_grants WHERE user_id = $1`, userID); err != nil {
		return apperrors.Wrap(err, "failed to clear grants")
	}

	for _, accountID := range accountIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO account_grants (user_id, account_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			userID, accountID,
		); err != nil {
			return apperrors.Wrap(err, "failed to insert grant")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, "failed to commit grant update")
	}

	metrics.RecordScopedGrantUpdate()
	return nil
}
