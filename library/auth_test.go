package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuth(t *testing.T) *LocalAuth {
	t.Helper()
	a := NewLocalAuth(tempDB(t))
	a.cost = bcrypt.MinCost
	return a
}

func TestCreateAccountValidation(t *testing.T) {
	a := newAuth(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "  ", "long-enough"},
		{"no at sign", "student.school.test", "long-enough"},
		{"short password", "s@school.test", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.CreateAccount(ctx, tt.email, tt.password, nil)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}

func TestCreateAccountAndAuthenticate(t *testing.T) {
	a := newAuth(t)
	ctx := context.Background()

	id, err := a.CreateAccount(ctx, "Reader@School.test", "123456", map[string]string{"full_name": "Reader"})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	got, err := a.Authenticate(ctx, "reader@school.test", "123456")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = a.Authenticate(ctx, "reader@school.test", "654321")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = a.CreateAccount(ctx, "READER@school.test", "another-pass", nil)
	assert.ErrorIs(t, err, ErrConflict)

	var hash string
	require.NoError(t, a.db.db.QueryRow(`SELECT password_hash FROM accounts WHERE user_id=?`, id).Scan(&hash))
	assert.NotEqual(t, "123456", hash)
}

func TestResolveRoleWithoutProfile(t *testing.T) {
	a := newAuth(t)
	id, err := a.CreateAccount(context.Background(), "orphan@school.test", "123456", nil)
	require.NoError(t, err)

	_, err = a.ResolveRole(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}
