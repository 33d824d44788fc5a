package directive

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshStores() (CarryStore, RecentStore) {
	return CarryStore{}, RecentStore{}
}

func TestSingleLineDispatch(t *testing.T) {
	carry, recent := freshStores()
	chunk := `FYP_DISPATCH_JSON: {"target":"worker:Worker A","text":"PING","interrupt":true}`

	res := parseAt("s1", []byte(chunk), carry, recent, 0, time.Now())

	require.Len(t, res.Dispatches, 1)
	d := res.Dispatches[0]
	assert.Equal(t, "worker:Worker A", d.Target)
	assert.Equal(t, "PING", d.Text)
	assert.True(t, d.Interrupt)
	assert.Empty(t, carry["s1"])
}

func TestMultilineSendTask(t *testing.T) {
	carry, recent := freshStores()
	chunk := "FYP_SEND_TASK_JSON:\n{\n  \"target\":\"worker:Worker A\",\n  \"task\":\"TASK: fix startup\\nSCOPE: server/src/app.ts\",\n  \"initialize\": true,\n  \"interrupt\": false\n}\n"

	res := parseAt("s1", []byte(chunk), carry, recent, 0, time.Now())

	require.Len(t, res.Dispatches, 1)
	d := res.Dispatches[0]
	assert.Equal(t, "worker:Worker A", d.Target)
	assert.True(t, d.IncludeBootstrapIfPresent)
	assert.Contains(t, d.Text, "TASK: fix startup")
	assert.Contains(t, d.Text, "SCOPE: server/src/app.ts")
}

func TestChunkSplitDirective(t *testing.T) {
	carry, recent := freshStores()
	now := time.Now()

	first := `FYP_DISPATCH_JSON: {"target":"worker:Worker A","text":"HEL`
	res1 := parseAt("s1", []byte(first), carry, recent, 0, now)
	assert.Len(t, res1.Dispatches, 0)
	assert.NotEmpty(t, carry["s1"])

	second := `LO","interrupt":false}`
	res2 := parseAt("s1", []byte(second), carry, recent, 0, now)
	require.Len(t, res2.Dispatches, 1)
	assert.Equal(t, "HELLO", res2.Dispatches[0].Text)
	assert.Empty(t, carry["s1"])
}

func TestQuestionAnswer(t *testing.T) {
	carry, recent := freshStores()
	chunk := "FYP_ANSWER_QUESTION_JSON:\n{\n  \"attentionId\": 321,\n  \"optionId\": \"2\",\n  \"source\": \"orchestrator-auto\",\n  \"meta\": { \"reason\": \"safe default\" }\n}\n"

	res := parseAt("s1", []byte(chunk), carry, recent, 0, time.Now())

	require.Len(t, res.QuestionAnswers, 1)
	qa := res.QuestionAnswers[0]
	assert.EqualValues(t, 321, qa.AttentionID)
	assert.Equal(t, "2", qa.OptionID)
	assert.Equal(t, "orchestrator-auto", qa.Source)
	assert.Equal(t, "safe default", qa.Meta["reason"])
}

func TestPlaceholderSuppression(t *testing.T) {
	carry, recent := freshStores()
	chunk := `FYP_DISPATCH_JSON: {"target":"all","text":"<prompt>"}`

	res := parseAt("s1", []byte(chunk), carry, recent, 0, time.Now())

	assert.Empty(t, res.Dispatches)
}

func TestDedupeSuppressesRepeatWithinWindow(t *testing.T) {
	carry, recent := freshStores()
	now := time.Now()
	chunk := `FYP_DISPATCH_JSON: {"target":"worker:a","text":"same"}`

	res1 := parseAt("s1", []byte(chunk), carry, recent, 1000, now)
	require.Len(t, res1.Dispatches, 1)

	res2 := parseAt("s1", []byte(chunk), carry, recent, 1000, now.Add(10*time.Millisecond))
	assert.Empty(t, res2.Dispatches)

	res3 := parseAt("s1", []byte(chunk), carry, recent, 1000, now.Add(2*time.Second))
	assert.Len(t, res3.Dispatches, 1)
}

func TestDedupeIsPerSession(t *testing.T) {
	carry, recent := freshStores()
	now := time.Now()
	chunk := `FYP_DISPATCH_JSON: {"target":"worker:a","text":"same"}`

	res1 := parseAt("s1", []byte(chunk), carry, recent, 5000, now)
	res2 := parseAt("s2", []byte(chunk), carry, recent, 5000, now)

	assert.Len(t, res1.Dispatches, 1)
	assert.Len(t, res2.Dispatches, 1)
}

func TestConcatenatedDirectivesYieldBothOutputs(t *testing.T) {
	one := `FYP_DISPATCH_JSON: {"target":"w1","text":"one"}`
	two := `FYP_DISPATCH_JSON: {"target":"w2","text":"two"}`
	combined := one + "\n" + two

	carry, recent := freshStores()
	res := parseAt("s1", []byte(combined), carry, recent, 0, time.Now())
	require.Len(t, res.Dispatches, 2)
	assert.Equal(t, "one", res.Dispatches[0].Text)
	assert.Equal(t, "two", res.Dispatches[1].Text)
}

func TestSplittingAtAnyIndexYieldsSameTwoOutputs(t *testing.T) {
	one := `FYP_DISPATCH_JSON: {"target":"w1","text":"one"}`
	two := `FYP_DISPATCH_JSON: {"target":"w2","text":"two"}`
	combined := one + "\n" + two
	now := time.Now()

	for split := 1; split < len(combined); split++ {
		carry, recent := freshStores()
		r1 := parseAt("s1", []byte(combined[:split]), carry, recent, 0, now)
		r2 := parseAt("s1", []byte(combined[split:]), carry, recent, 0, now)

		all := append(append([]Dispatch{}, r1.Dispatches...), r2.Dispatches...)
		require.Lenf(t, all, 2, "split at %d produced %d dispatches", split, len(all))
		assert.Equal(t, "one", all[0].Text)
		assert.Equal(t, "two", all[1].Text)
	}
}

func TestMalformedJSONIsDiscardedNotCrashed(t *testing.T) {
	carry, recent := freshStores()
	chunk := `FYP_DISPATCH_JSON: {"target": "bad", "text": }`

	assert.NotPanics(t, func() {
		res := parseAt("s1", []byte(chunk), carry, recent, 0, time.Now())
		assert.Empty(t, res.Dispatches)
	})
}

func TestCarryOverflowResets(t *testing.T) {
	carry, recent := freshStores()
	huge := `FYP_DISPATCH_JSON: {"target":"a","text":"` + strings.Repeat("x", maxCarryBytes+10)

	res := parseAt("s1", []byte(huge), carry, recent, 0, time.Now())
	assert.Empty(t, res.Dispatches)
	assert.Empty(t, carry["s1"])
}
