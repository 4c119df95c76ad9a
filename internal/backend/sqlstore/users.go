package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
)

const bcryptCost = 12

func (s *Store) Login(ctx context.Context, c backend.Credentials) (backend.AuthResult, error) {
	var (
		u        backend.User
		hash     string
		approved int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, approved, created_at FROM users WHERE username=$1`,
		strings.TrimSpace(c.Username),
	).Scan(&u.ID, &u.Username, &hash, &u.Role, &approved, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.AuthResult{}, backend.ErrUnauthorized
	}
	if err != nil {
		return backend.AuthResult{}, fmt.Errorf("login: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(c.Password)) != nil {
		return backend.AuthResult{}, backend.ErrUnauthorized
	}
	u.Approved = approved == 1
	if !u.Approved {
		return backend.AuthResult{}, backend.ErrPendingApproval
	}
	return backend.AuthResult{User: u}, nil
}

// Register creates a user. Plain users are active at once; admins wait for
// a super-admin's approval.
func (s *Store) Register(ctx context.Context, r backend.Registration) (backend.User, error) {
	username := strings.TrimSpace(r.Username)
	if username == "" || r.Password == "" {
		return backend.User{}, fmt.Errorf("%w: username and password required", backend.ErrInvalid)
	}
	role := r.Role
	if role == "" {
		role = backend.RoleUser
	}
	if role != backend.RoleUser && role != backend.RoleAdmin {
		return backend.User{}, fmt.Errorf("%w: cannot register with role %q", backend.ErrInvalid, role)
	}
	return s.createUser(ctx, username, r.Password, role, role == backend.RoleUser)
}

// EnsureSuperAdmin creates the bootstrap super-admin when no user with that
// name exists yet.
func (s *Store) EnsureSuperAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1`, username).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup super-admin: %w", err)
	}
	_, err = s.createUser(ctx, username, password, backend.RoleSuperAdmin, true)
	return err
}

func (s *Store) createUser(ctx context.Context, username, password string, role backend.Role, approved bool) (backend.User, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1`, username).Scan(&exists)
	if err == nil {
		return backend.User{}, fmt.Errorf("%w: username %q taken", backend.ErrConflict, username)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return backend.User{}, fmt.Errorf("lookup user: %w", err)
	}
	phash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return backend.User{}, err
	}
	u := backend.User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		Approved:  approved,
		CreatedAt: time.Now().Unix(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, approved, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, string(phash), string(u.Role), boolInt(approved), u.CreatedAt)
	if err != nil {
		return backend.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) ListPendingAdmins(ctx context.Context) ([]backend.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, role, created_at FROM users WHERE role=$1 AND approved=0 ORDER BY created_at, username`,
		string(backend.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("list pending admins: %w", err)
	}
	defer rows.Close()
	out := []backend.User{}
	for rows.Next() {
		var u backend.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DecideAdmin approves a pending admin or removes the account.
func (s *Store) DecideAdmin(ctx context.Context, userID string, approve bool) error {
	var (
		role     string
		approved int
	)
	err := s.db.QueryRowContext(ctx, `SELECT role, approved FROM users WHERE id=$1`, userID).Scan(&role, &approved)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup admin: %w", err)
	}
	if backend.Role(role) != backend.RoleAdmin || approved == 1 {
		return fmt.Errorf("%w: user is not a pending admin", backend.ErrConflict)
	}
	if approve {
		_, err = s.db.ExecContext(ctx, `UPDATE users SET approved=1 WHERE id=$1`, userID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	}
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
