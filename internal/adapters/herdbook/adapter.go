// Package herdbook talks to the legacy herd-book SQL Server database. The
// only thing the platform still reads from it is the historical role value
// of users provisioned before the dashboard existed.
package herdbook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/sirupsen/logrus"

	"github.com/campovivo/platform/internal/shared/config"
	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/types"
)

// Adapter wraps the herd-book connection
type Adapter struct {
	db  *sql.DB
	cfg config.LegacyDBConfig
	log *logrus.Entry
}

// New opens a connection to the herd-book database and verifies it
func New(ctx context.Context, cfg config.LegacyDBConfig) (*Adapter, error) {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)
	if cfg.Encrypt {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open herd-book database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping herd-book database: %w", err)
	}

	return &Adapter{
		db:  db,
		cfg: cfg,
		log: logrus.WithField("component", "herdbook"),
	}, nil
}

// UserRole returns the raw legacy role value ("ADM", "VISUALIZADOR",
// "EDITOR", ...) for a user. A user unknown to the herd book is reported as
// not found; transport and timeout failures are reported as unavailable so
// callers never confuse the two.
func (a *Adapter) UserRole(ctx context.Context, userID types.ID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()

	var role sql.NullString
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf("EXEC %s @user_id", a.cfg.RoleProcedure),
		sql.Named("user_id", userID.String()),
	).Scan(&role)
	if err == sql.ErrNoRows {
		return "", apperrors.NotFound("legacy role", userID.String())
	}
	if err != nil {
		a.log.WithError(err).WithField("user_id", userID).Warn("legacy role lookup failed")
		return "", apperrors.Unavailable(err, "herd-book lookup failed")
	}

	// Some herd-book rows carry a NULL role column; treat those like a
	// missing row.
	if !role.Valid || role.String == "" {
		return "", apperrors.NotFound("legacy role", userID.String())
	}

	return role.String, nil
}

// Health checks database connectivity
func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the database connection
func (a *Adapter) Close() error {
	return a.db.Close()
}
