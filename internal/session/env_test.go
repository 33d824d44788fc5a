package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildChildEnvForcesTerm(t *testing.T) {
	env := buildChildEnv(VariantC, []string{"PATH=/bin"}, nil, "")
	m := envToMap(env)
	assert.Equal(t, terminalType, m["TERM"])
	assert.Equal(t, "/bin", m["PATH"])
}

func TestBuildChildEnvVariantAStripsPinnedVars(t *testing.T) {
	parent := []string{
		"VARIANT_A_RESUME_SESSION_ID=abc",
		"VARIANT_A_THREAD_ID=def",
		"VARIANT_A_CI=1",
		"KEEP_ME=1",
	}
	m := envToMap(buildChildEnv(VariantA, parent, nil, ""))
	assert.NotContains(t, m, "VARIANT_A_RESUME_SESSION_ID")
	assert.NotContains(t, m, "VARIANT_A_THREAD_ID")
	assert.NotContains(t, m, "VARIANT_A_CI")
	assert.Equal(t, "1", m["KEEP_ME"])
}

func TestBuildChildEnvVariantBStripsCredentialsByDefault(t *testing.T) {
	parent := []string{"ANTHROPIC_API_KEY=secret", "ANTHROPIC_MODEL=x"}
	m := envToMap(buildChildEnv(VariantB, parent, nil, ""))
	assert.NotContains(t, m, "ANTHROPIC_API_KEY")
	assert.NotContains(t, m, "ANTHROPIC_MODEL")
}

func TestBuildChildEnvVariantBApiModeKeepsCredentials(t *testing.T) {
	parent := []string{"ANTHROPIC_API_KEY=secret"}
	m := envToMap(buildChildEnv(VariantB, parent, nil, "api"))
	assert.Equal(t, "secret", m["ANTHROPIC_API_KEY"])
}

func TestBuildChildEnvVariantBOverrideCannotReintroduceCredentials(t *testing.T) {
	parent := []string{"PATH=/bin"}
	overrides := map[string]string{"ANTHROPIC_API_KEY": "leaked"}
	m := envToMap(buildChildEnv(VariantB, parent, overrides, ""))
	assert.NotContains(t, m, "ANTHROPIC_API_KEY")
}

func TestBuildChildEnvOverridesWinOverParent(t *testing.T) {
	parent := []string{"FOO=parent"}
	overrides := map[string]string{"FOO": "override"}
	m := envToMap(buildChildEnv(VariantC, parent, overrides, ""))
	assert.Equal(t, "override", m["FOO"])
}

func TestBuildChildEnvSkipsBlankOverrideKeys(t *testing.T) {
	m := envToMap(buildChildEnv(VariantC, nil, map[string]string{"  ": "x"}, ""))
	assert.NotContains(t, m, "  ")
}
