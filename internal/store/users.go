package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ragchat/gateway/internal/gatewayerr"
)

// DemoUserExternalID is the fixed identity used when authentication is
// disabled for local/demo deployments; C3 resolves it like any other
// external id, auto-provisioning it on first use.
const DemoUserExternalID = "demo-user"

// GetUserByExternalID looks up a user by the identity provider's subject
// claim. Returns (nil, nil) if no such user exists.
func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, external_id, email, username, display_name, role, active, created_at, updated_at
		FROM users WHERE external_id = ?`), externalID)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	return u, nil
}

// ResolveUser looks up a user by external id, auto-provisioning one on first
// sight (C3). A concurrent create racing another request is tolerated: on a
// unique-constraint violation the row is re-read, and failure propagates
// only if it is still absent.
func (s *Store) ResolveUser(ctx context.Context, externalID, email, username, displayName string) (*User, error) {
	if u, err := s.GetUserByExternalID(ctx, externalID); err != nil {
		return nil, err
	} else if u != nil {
		return u, nil
	}

	now := time.Now().UTC()
	candidate := &User{
		ID: uuid.NewString(), ExternalID: externalID, Email: email, Username: username,
		DisplayName: displayName, Role: "user", Active: true,
		CreatedAt: now, UpdatedAt: now,
	}

	var created *User
	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, s.q(`
			INSERT INTO users (id, external_id, email, username, display_name, role, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'user', TRUE, ?, ?)`),
			candidate.ID, externalID, email, username, displayName, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				existing, lookupErr := s.GetUserByExternalID(ctx, externalID)
				if lookupErr != nil {
					return lookupErr
				}
				if existing == nil {
					return fmt.Errorf("concurrent user create lost the race and no row is visible")
				}
				created = existing
				return nil
			}
			return err
		}
		created = candidate
		return nil
	})
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	return created, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Username, &u.DisplayName, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
