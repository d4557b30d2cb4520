package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cascade.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRules(t, `
trouble:
  - users_profile_id_fkey
  - pages_owner_id_fkey
unloadables:
  - users
  - pages
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"users_profile_id_fkey", "pages_owner_id_fkey"}, rules.Trouble)
	assert.Equal(t, []string{"users", "pages"}, rules.Unloadables)
	assert.True(t, rules.IsUnloadable("users"))
	assert.False(t, rules.IsUnloadable("posts"))
}

func TestLoadRulesInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no unloadables", "trouble: [a_fkey]\n"},
		{"duplicate trouble", "trouble: [a_fkey, a_fkey]\nunloadables: [users]\n"},
		{"empty table", "unloadables: ['']\n"},
		{"not yaml", "unloadables: [users\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(writeRules(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
