package project

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/taskbridgehq/taskbridge/internal/config"
)

func readConfigDoc(t *testing.T, fsys afero.Fs) map[string]any {
	t.Helper()
	raw, err := afero.ReadFile(fsys, config.Path(root))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	return doc
}

func TestMigrateUnconfiguredProject(t *testing.T) {
	fsys := afero.NewMemMapFs()

	res, err := Migrate(fsys, root, MigrateOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StateUnconfigured, res.State)
	require.NotEmpty(t, res.Changes)

	// The written config is zero-impact: local mode, remote disabled.
	doc := readConfigDoc(t, fsys)
	assert.Equal(t, "local", doc["persistenceMode"])
	remote, ok := doc["remote"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, remote["enabled"])

	state, err := Classify(fsys, root)
	require.NoError(t, err)
	assert.Equal(t, StateConfiguredLocal, state)
}

func TestMigrateLegacyProjectKeepsTasks(t *testing.T) {
	fsys := afero.NewMemMapFs()
	legacy := `{"tasks":[{"id":1,"title":"keep me","status":"pending","priority":"medium"}]}`
	writeFile(t, fsys, filepath.Join(root, "tasks.json"), legacy)

	res, err := Migrate(fsys, root, MigrateOptions{Backup: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StateLegacy, res.State)
	require.NotEmpty(t, res.BackupDir)

	// Task content is never rewritten.
	raw, err := afero.ReadFile(fsys, filepath.Join(root, "tasks.json"))
	require.NoError(t, err)
	assert.JSONEq(t, legacy, string(raw))

	// The backup holds a copy of the legacy document.
	backed, err := afero.ReadFile(fsys, filepath.Join(res.BackupDir, "tasks.legacy.json"))
	require.NoError(t, err)
	assert.JSONEq(t, legacy, string(backed))
}

func TestMigratePreservesExistingKeys(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, config.Path(root), "version: \"9\"\npersistenceMode: local\nautoSync: true\n")

	_, err := Migrate(fsys, root, MigrateOptions{})
	require.NoError(t, err)

	doc := readConfigDoc(t, fsys)
	assert.Equal(t, "9", doc["version"], "existing keys always win")
	assert.Equal(t, true, doc["autoSync"])
	assert.Contains(t, doc, "remote", "the missing section is added")
}

func TestMigrateIsIdempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()

	first, err := Migrate(fsys, root, MigrateOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, first.Changes)

	before, err := afero.ReadFile(fsys, config.Path(root))
	require.NoError(t, err)

	second, err := Migrate(fsys, root, MigrateOptions{Backup: true})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Empty(t, second.Changes, "re-running on a configured project is a no-op")
	assert.Empty(t, second.BackupDir, "a no-op migration takes no backup")

	after, err := afero.ReadFile(fsys, config.Path(root))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMigrateDryRunWritesNothing(t *testing.T) {
	fsys := afero.NewMemMapFs()

	res, err := Migrate(fsys, root, MigrateOptions{DryRun: true, Backup: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotEmpty(t, res.Changes)
	assert.Empty(t, res.BackupDir)

	exists, err := afero.Exists(fsys, config.Path(root))
	require.NoError(t, err)
	assert.False(t, exists)
}
