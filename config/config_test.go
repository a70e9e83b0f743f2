package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LENDING_DB_PATH", "")
	t.Setenv("LENDING_MAX_DUE_DAYS", "")

	cfg := Load()
	assert.Equal(t, "library.db", cfg.DBPath)
	assert.Equal(t, 1, cfg.MinDueDays)
	assert.Equal(t, 30, cfg.MaxDueDays)
	assert.Equal(t, 14, cfg.DefaultDueDays)
	assert.False(t, cfg.AllowDuplicateLoans)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LENDING_DB_PATH", "/tmp/x.db")
	t.Setenv("LENDING_MAX_DUE_DAYS", "21")
	t.Setenv("LENDING_ALLOW_REMOVE_WITH_LOANS", "true")
	t.Setenv("LENDING_MIN_DUE_DAYS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, 21, cfg.MaxDueDays)
	assert.Equal(t, 1, cfg.MinDueDays)
	assert.True(t, cfg.AllowRemoveWithLoans)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		min     int
		max     int
		def     int
		wantErr bool
	}{
		{"defaults", 1, 30, 14, false},
		{"zero min", 0, 30, 14, true},
		{"inverted", 10, 5, 7, true},
		{"default above max", 1, 7, 14, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{MinDueDays: tt.min, MaxDueDays: tt.max, DefaultDueDays: tt.def}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
