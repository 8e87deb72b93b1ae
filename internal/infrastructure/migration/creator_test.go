package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/iplixera/nivostack-monorepo-sub006/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add plans table", "add_plans_table"},
		{"Add-Plans-Table", "add_plans_table"},
		{"ADD_PLANS_TABLE", "add_plans_table"},
		{"add__plans__table", "add_plans_table"},
		{"Seed Plans 2", "seed_plans_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"ünïcode", "ncode"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add history index", "Index history by actor")
	require.NoError(t, err)

	assert.Equal(t, "000001", mf.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_history_index.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_history_index.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: add history index")
	assert.Contains(t, string(up), "Index history by actor")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(Rollback)")
}

func TestCreateMigration_NumbersAfterExisting(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"000001_init.up.sql", "000001_init.down.sql", "000007_seed.up.sql", "000007_seed.down.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("--"), 0o644))
	}

	mf, err := CreateMigration(dir, "next", "")
	require.NoError(t, err)
	assert.Equal(t, "000008", mf.Version)
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nested, "init", "")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_seed_plans.up.sql":            {Data: []byte("--")},
		"000002_seed_plans.down.sql":          {Data: []byte("--")},
		"000001_create_quota_tables.up.sql":   {Data: []byte("--")},
		"000001_create_quota_tables.down.sql": {Data: []byte("--")},
		"README.md":                           {Data: []byte("docs")},
		"subdir.up.sql/file":                  {Data: []byte("--")},
	}

	names, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_quota_tables", "000002_seed_plans"}, names)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	names, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for i, name := range names {
		version, err := versionOf(name)
		require.NoError(t, err)
		assert.Equal(t, i+1, version, "versions are contiguous")

		_, err = migrations.FS.ReadFile(name + downSuffix)
		assert.NoError(t, err, "%s has a rollback", name)

		up, err := migrations.FS.ReadFile(name + upSuffix)
		require.NoError(t, err)
		assert.False(t, strings.TrimSpace(string(up)) == "", "%s is not empty", name)
	}
}
