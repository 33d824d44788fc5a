package session

import "strings"

// terminalType is forced into every child's environment regardless of
// variant, so output always renders with full color/cursor support
// ("TERM=xterm-256color").
const terminalType = "xterm-256color"

// variantAStripKeys pin the child to a pre-existing conversation thread
// or mark a CI context; stripping them lets a fresh session start clean
// even when the supervisor itself is invoked from a pinned environment.
var variantAStripKeys = []string{
	"VARIANT_A_RESUME_SESSION_ID",
	"VARIANT_A_THREAD_ID",
	"VARIANT_A_CI",
}

// variantBCredentialKeys are stripped unless the caller opts into "api"
// auth mode, so a subscription-mode caller never accidentally inherits
// billing/model overrides meant for direct API use.
var variantBCredentialKeys = []string{
	"ANTHROPIC_API_KEY",
	"ANTHROPIC_AUTH_TOKEN",
	"ANTHROPIC_BASE_URL",
	"ANTHROPIC_MODEL",
	"ANTHROPIC_SUBAGENT_MODEL",
	"CLAUDE_CODE_USE_BEDROCK",
	"CLAUDE_CODE_SKIP_BEDROCK_AUTH",
	"AWS_BEARER_TOKEN_BEDROCK",
}

// buildChildEnv produces the child process environment for a session.
// It is pure: no I/O, failure is not possible. parentEnv is a "KEY=VALUE"
// slice (os.Environ() shape); overrides win over everything scrubbed
// from parentEnv.
func buildChildEnv(v Variant, parentEnv []string, overrides map[string]string, authMode string) []string {
	base := envToMap(parentEnv)

	switch v {
	case VariantA:
		stripKeys(base, variantAStripKeys)
	case VariantB:
		if authMode != "api" {
			stripKeys(base, variantBCredentialKeys)
		}
	case VariantC:
		// No additional scrubbing.
	}

	for k, val := range overrides {
		if strings.TrimSpace(k) == "" {
			continue
		}
		base[k] = val
	}

	// Re-apply variant B's credential strip after merging overrides so a
	// subscription-mode caller cannot re-inherit credentials even if its
	// own override map (e.g. copied from a stale profile) still carries
	// them.
	if v == VariantB && authMode != "api" {
		stripKeys(base, variantBCredentialKeys)
	}

	base["TERM"] = terminalType

	return mapToEnv(base)
}

func stripKeys(m map[string]string, keys []string) {
	for _, k := range keys {
		delete(m, k)
	}
}

func envToMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		m[parts[0]] = parts[1]
	}
	return m
}

func mapToEnv(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
