package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyplabs/sessiond/internal/session"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadToolsBuildsTable(t *testing.T) {
	path := writeTemp(t, "tools.yaml", `
variant-a:
  command: agent-a
  args: ["--no-color"]
variant-b:
  command: agent-b
variant-c:
  command: agent-c
  args: ["--json"]
`)

	tools, err := LoadTools(path)
	require.NoError(t, err)
	assert.Equal(t, session.CommandSpec{Command: "agent-a", Args: []string{"--no-color"}}, tools[session.VariantA])
	assert.Equal(t, session.CommandSpec{Command: "agent-b"}, tools[session.VariantB])
	assert.Equal(t, session.CommandSpec{Command: "agent-c", Args: []string{"--json"}}, tools[session.VariantC])
}

func TestLoadToolsRejectsUnknownVariant(t *testing.T) {
	path := writeTemp(t, "tools.yaml", `
variant-z:
  command: mystery
`)

	_, err := LoadTools(path)
	assert.Error(t, err)
}

func TestLoadProfilesMissingFileYieldsEmptyStore(t *testing.T) {
	store, err := LoadProfiles(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Profile{}, store.Get("anything"))
}

func TestLoadProfilesReadsCwdAndEnv(t *testing.T) {
	path := writeTemp(t, "profiles.yaml", `
worker-a:
  cwd: /srv/repo
  env:
    FOO: bar
`)

	store, err := LoadProfiles(path)
	require.NoError(t, err)

	p := store.Get("worker-a")
	assert.Equal(t, "/srv/repo", p.Cwd)
	assert.Equal(t, "bar", p.Vars["FOO"])

	assert.Equal(t, Profile{}, store.Get("unknown"))
}

func TestStoreGetOnNilStoreIsSafe(t *testing.T) {
	var store *Store
	assert.Equal(t, Profile{}, store.Get("x"))
}

func TestReloadPicksUpEditedFile(t *testing.T) {
	path := writeTemp(t, "profiles.yaml", `
worker-a:
  cwd: /srv/repo-v1
`)

	store, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/repo-v1", store.Get("worker-a").Cwd)

	require.NoError(t, os.WriteFile(path, []byte(`
worker-a:
  cwd: /srv/repo-v2
worker-b:
  cwd: /srv/other
`), 0o644))

	require.NoError(t, store.Reload())
	assert.Equal(t, "/srv/repo-v2", store.Get("worker-a").Cwd)
	assert.Equal(t, "/srv/other", store.Get("worker-b").Cwd)
}

func TestReloadOnNilStoreIsSafe(t *testing.T) {
	var store *Store
	assert.NoError(t, store.Reload())
}
