package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	MinClassLevel = 1
	MaxClassLevel = 10
)

const profileColumns = `p.id,p.full_name,p.email,p.class_level,COALESCE(r.role,''),p.created_at`

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.ClassLevel, &p.Role, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile fetches a directory record with its assigned role.
func (d *Database) GetProfile(ctx context.Context, id string) (*Profile, error) {
	p, err := scanProfile(d.db.QueryRowContext(ctx, `SELECT `+profileColumns+`
        FROM profiles p LEFT JOIN user_roles r ON r.user_id = p.id
        WHERE p.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get profile", err)
	}
	return p, nil
}

// ProfileByEmail looks a user up by login email.
func (d *Database) ProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	p, err := scanProfile(d.db.QueryRowContext(ctx, `SELECT `+profileColumns+`
        FROM profiles p LEFT JOIN user_roles r ON r.user_id = p.id
        WHERE p.email=?`, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get profile", err)
	}
	return p, nil
}

// ListStudents returns every user holding the student role, by name.
func (d *Database) ListStudents(ctx context.Context) ([]*Profile, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+profileColumns+`
        FROM profiles p JOIN user_roles r ON r.user_id = p.id
        WHERE r.role='student'
        ORDER BY p.full_name, p.id`)
	if err != nil {
		return nil, storeErr("list students", err)
	}
	defer rows.Close()

	students := []*Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, storeErr("list students", err)
		}
		students = append(students, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list students", err)
	}
	return students, nil
}

// HasAdmin reports whether any admin role has been assigned yet.
func (d *Database) HasAdmin(ctx context.Context) (bool, error) {
	var exists bool
	if err := d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM user_roles WHERE role='admin')`).Scan(&exists); err != nil {
		return false, storeErr("check admin", err)
	}
	return exists, nil
}

func resolveRole(ctx context.Context, q querier, userID string) (Role, error) {
	var role Role
	err := q.QueryRowContext(ctx, `SELECT role FROM user_roles WHERE user_id=?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return "", storeErr("resolve role", err)
	}
	return role, nil
}

// createProfile writes the directory record and its single role assignment.
// A user that already has a role gets ErrConflict.
func (d *Database) createProfile(ctx context.Context, p *Profile) error {
	return d.withTx(ctx, "create profile", func(tx *sql.Tx) error {
		return d.insertProfile(ctx, tx, p)
	})
}

func (d *Database) insertProfile(ctx context.Context, tx *sql.Tx, p *Profile) error {
	_, err := resolveRole(ctx, tx, p.ID)
	if err == nil {
		return fmt.Errorf("user %s already has a role: %w", p.ID, ErrConflict)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	if _, err := tx.StmtContext(ctx, d.insertProfileStmt).ExecContext(ctx,
		p.ID, p.FullName, p.Email, p.ClassLevel, p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("profile %s: %w", p.ID, ErrConflict)
		}
		return storeErr("insert profile", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO user_roles(user_id,role) VALUES(?,?)`, p.ID, p.Role); err != nil {
		return storeErr("assign role", err)
	}
	return nil
}

func validClassLevel(level int) bool {
	return level >= MinClassLevel && level <= MaxClassLevel
}

func newProfile(id, name, email string, class int, role Role, now time.Time) *Profile {
	return &Profile{ID: id, FullName: name, Email: email, ClassLevel: class, Role: role, CreatedAt: now}
}
