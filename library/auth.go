package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength matches the hosted provider's sign-up rule.
const MinPasswordLength = 6

// AuthProvider is the identity collaborator. The core trusts what it returns
// and never checks credentials itself.
type AuthProvider interface {
	CreateAccount(ctx context.Context, email, password string, attrs map[string]string) (string, error)
	ResolveRole(ctx context.Context, userID string) (Role, error)
}

// LocalAuth keeps accounts in the same SQLite file as the ledger.
type LocalAuth struct {
	db   *Database
	cost int
}

// NewLocalAuth returns a provider hashing with bcrypt.DefaultCost.
func NewLocalAuth(db *Database) *LocalAuth {
	return &LocalAuth{db: db, cost: bcrypt.DefaultCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// account is a validated, hashed sign-up that has not been written yet.
type account struct {
	id    string
	email string
	hash  string
	attrs string
}

// stagedAuth is an AuthProvider whose accounts live in the ledger's own
// store, so an account can commit in the same transaction as its profile.
type stagedAuth interface {
	AuthProvider
	stageAccount(email, password string, attrs map[string]string) (*account, error)
	store() *Database
}

var _ stagedAuth = (*LocalAuth)(nil)

// CreateAccount stores a bcrypt hash of password and returns a new user id.
func (a *LocalAuth) CreateAccount(ctx context.Context, email, password string, attrs map[string]string) (string, error) {
	acc, err := a.stageAccount(email, password, attrs)
	if err != nil {
		return "", err
	}
	if err := insertAccount(ctx, a.db.db, acc); err != nil {
		return "", err
	}
	return acc.id, nil
}

func (a *LocalAuth) store() *Database { return a.db }

func (a *LocalAuth) stageAccount(email, password string, attrs map[string]string) (*account, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("email %q: %w", email, ErrInvalidRange)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("password shorter than %d characters: %w", MinPasswordLength, ErrInvalidRange)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	rawAttrs, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return &account{id: uuid.NewString(), email: email, hash: string(hash), attrs: string(rawAttrs)}, nil
}

func insertAccount(ctx context.Context, q querier, acc *account) error {
	if _, err := q.ExecContext(ctx, `INSERT INTO accounts(user_id,email,password_hash,attributes) VALUES(?,?,?,?)`,
		acc.id, acc.email, acc.hash, acc.attrs); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", acc.email, ErrConflict)
		}
		return storeErr("create account", err)
	}
	return nil
}

// Authenticate returns the user id for matching credentials.
func (a *LocalAuth) Authenticate(ctx context.Context, email, password string) (string, error) {
	var id, hash string
	err := a.db.db.QueryRowContext(ctx, `SELECT user_id,password_hash FROM accounts WHERE email=?`, normalizeEmail(email)).
		Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", storeErr("authenticate", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// ResetPassword replaces the stored hash for userID.
func (a *LocalAuth) ResetPassword(ctx context.Context, userID, password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password shorter than %d characters: %w", MinPasswordLength, ErrInvalidRange)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res, err := a.db.db.ExecContext(ctx, `UPDATE accounts SET password_hash=? WHERE user_id=?`, string(hash), userID)
	if err != nil {
		return storeErr("reset password", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("reset password", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ResolveRole reads the authoritative role from user_roles.
func (a *LocalAuth) ResolveRole(ctx context.Context, userID string) (Role, error) {
	return resolveRole(ctx, a.db.db, userID)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
