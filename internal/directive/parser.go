package directive

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// maxCarryBytes bounds per-session carry so a child that emits an
// unterminated marker forever cannot grow memory without bound; carry is
// simply reset (dropped) on overflow.
const maxCarryBytes = 64 * 1024

// DefaultDedupeWindowMs is the default sliding dedupe window.
const DefaultDedupeWindowMs = 300_000

type markerKind int

const (
	markerDispatch markerKind = iota
	markerSendTask
	markerAnswer
)

type markerDef struct {
	kind  markerKind
	label string
}

// markers are tried in this order at every scan position; longer/more
// specific labels never collide since each is a distinct literal.
var markers = []markerDef{
	{markerDispatch, "FYP_DISPATCH_JSON:"},
	{markerSendTask, "FYP_SEND_TASK_JSON:"},
	{markerAnswer, "FYP_ANSWER_QUESTION_JSON:"},
}

var placeholderPattern = regexp.MustCompile(`<[^<>\n]+>`)

// Parse extracts every complete directive from chunk, using and
// updating carry/recent for sessionID. dedupeWindowMs<=0 selects
// DefaultDedupeWindowMs.
func Parse(sessionID string, chunk []byte, carry CarryStore, recent RecentStore, dedupeWindowMs int) Result {
	return parseAt(sessionID, chunk, carry, recent, dedupeWindowMs, time.Now())
}

// parseAt is Parse with an explicit clock, so tests can fix "now"
// without sleeping real wall-clock time across the dedupe window.
func parseAt(sessionID string, chunk []byte, carry CarryStore, recent RecentStore, dedupeWindowMs int, now time.Time) Result {
	if dedupeWindowMs <= 0 {
		dedupeWindowMs = DefaultDedupeWindowMs
	}

	text := carry[sessionID] + string(chunk)
	delete(carry, sessionID)

	var result Result
	pos := 0

	for pos < len(text) {
		markerStart, def, markerEnd, found := findNextMarker(text, pos)
		if !found {
			// No marker anywhere in the remainder: nothing to carry
			// unless the tail could be the start of one (handled by
			// partialMarkerTail below).
			break
		}

		bodyStart, hasBody := skipToBrace(text, markerEnd)
		if !hasBody {
			// Marker present but body not yet begun (still only
			// whitespace, or we ran out of chunk): hold from the
			// marker onward.
			setCarry(carry, sessionID, text[markerStart:])
			return result
		}

		bodyEnd, ok := findBalancedJSON(text, bodyStart)
		if !ok {
			// Unbalanced tail: hold from the marker onward and wait
			// for more bytes.
			setCarry(carry, sessionID, text[markerStart:])
			return result
		}

		raw := text[bodyStart:bodyEnd]
		applyDirective(def.kind, raw, sessionID, recent, dedupeWindowMs, now, &result)

		pos = bodyEnd
	}

	// Reached the end with no usable marker left to resume from: check
	// whether the very tail of the remaining (unconsumed) text is a
	// prefix of a marker label (could complete on the next chunk);
	// otherwise this is a definitive non-match and carry resets to
	// empty.
	if tail := partialMarkerTail(text[pos:]); tail != "" {
		setCarry(carry, sessionID, tail)
	}

	return result
}

// findNextMarker returns the earliest marker literal at or after pos.
func findNextMarker(text string, pos int) (start int, def markerDef, end int, found bool) {
	best := -1
	for _, m := range markers {
		idx := strings.Index(text[pos:], m.label)
		if idx == -1 {
			continue
		}
		abs := pos + idx
		if best == -1 || abs < best {
			best = abs
			def = m
		}
	}
	if best == -1 {
		return 0, markerDef{}, 0, false
	}
	return best, def, best + len(def.label), true
}

// skipToBrace advances past whitespace/newlines after a marker to the
// first '{'. hasBody is false if only whitespace remains (marker is
// waiting on more chunk) or if a non-whitespace, non-'{' byte appears
// first (malformed — treated the same as "not yet", since more data
// might still resolve it is not guaranteed, but the conservative choice
// keeps the fragment carried forward as still-unterminated.
func skipToBrace(text string, from int) (bodyStart int, hasBody bool) {
	i := from
	for i < len(text) {
		switch text[i] {
		case ' ', '\t', '\r', '\n':
			i++
			continue
		case '{':
			return i, true
		default:
			return 0, false
		}
	}
	return 0, false
}

// findBalancedJSON scans a '{'-rooted JSON value starting at start,
// tracking bracket depth while respecting string literals and their
// backslash escapes. Returns the index just past the matching '}', or
// ok=false if the text ends before the value balances.
func findBalancedJSON(text string, start int) (end int, ok bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// partialMarkerTail returns the longest suffix of text that is a proper
// prefix of some marker label, so a marker split exactly at a chunk
// boundary (e.g. "...FYP_DISPATCH_JS") survives into the next chunk.
func partialMarkerTail(text string) string {
	maxLen := 0
	for _, m := range markers {
		if len(m.label) > maxLen {
			maxLen = len(m.label)
		}
	}
	if maxLen > len(text) {
		maxLen = len(text)
	}
	for l := maxLen; l > 0; l-- {
		suffix := text[len(text)-l:]
		for _, m := range markers {
			if strings.HasPrefix(m.label, suffix) {
				return suffix
			}
		}
	}
	return ""
}

func setCarry(carry CarryStore, sessionID, value string) {
	if len(value) > maxCarryBytes {
		delete(carry, sessionID)
		return
	}
	carry[sessionID] = value
}

// applyDirective decodes raw per kind, applies placeholder suppression,
// dedupes against recent, and appends to result on success.
func applyDirective(kind markerKind, raw string, sessionID string, recent RecentStore, dedupeWindowMs int, now time.Time, result *Result) {
	switch kind {
	case markerDispatch:
		var d Dispatch
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return
		}
		if isPlaceholder(d.Text) {
			return
		}
		if dedupe(sessionID, "dispatch", raw, recent, dedupeWindowMs, now) {
			return
		}
		result.Dispatches = append(result.Dispatches, d)

	case markerSendTask:
		var st struct {
			Target     string `json:"target"`
			Task       string `json:"task"`
			Initialize bool   `json:"initialize"`
			Interrupt  bool   `json:"interrupt"`
		}
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return
		}
		if isPlaceholder(st.Task) {
			return
		}
		if dedupe(sessionID, "send_task", raw, recent, dedupeWindowMs, now) {
			return
		}
		result.Dispatches = append(result.Dispatches, Dispatch{
			Target:                    st.Target,
			Text:                      st.Task,
			Interrupt:                 st.Interrupt,
			IncludeBootstrapIfPresent: st.Initialize,
		})

	case markerAnswer:
		var qa QuestionAnswer
		if err := json.Unmarshal([]byte(raw), &qa); err != nil {
			return
		}
		if dedupe(sessionID, "answer", raw, recent, dedupeWindowMs, now) {
			return
		}
		result.QuestionAnswers = append(result.QuestionAnswers, qa)
	}
}

func isPlaceholder(s string) bool {
	return placeholderPattern.MatchString(s)
}

// dedupe computes a canonical fingerprint for (kind, raw) and reports
// whether it was seen for sessionID within the window; if not, it
// records now and returns false.
func dedupe(sessionID, kind, raw string, recent RecentStore, dedupeWindowMs int, now time.Time) (isDuplicate bool) {
	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return false
	}
	canonical, err := json.Marshal(generic) // encoding/json sorts map keys
	if err != nil {
		return false
	}
	fingerprint := kind + ":" + string(canonical)

	nowMs := now.UnixMilli()
	bySession, ok := recent[sessionID]
	if !ok {
		bySession = make(map[string]int64)
		recent[sessionID] = bySession
	}

	if last, seen := bySession[fingerprint]; seen {
		if nowMs-last < int64(dedupeWindowMs) {
			return true
		}
	}
	bySession[fingerprint] = nowMs
	return false
}
