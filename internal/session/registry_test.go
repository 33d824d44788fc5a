package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catTools() Tools {
	return Tools{
		VariantA: {Command: "cat"},
		VariantB: {Command: "cat"},
		VariantC: {Command: "cat"},
	}
}

func TestCreateSessionRejectsDuplicateID(t *testing.T) {
	r := NewRegistry(catTools(), "", true)
	id, err := r.CreateSession(CreateOptions{ID: "dup", Variant: VariantC})
	require.NoError(t, err)
	defer r.Close(id, true, 200)

	_, err = r.CreateSession(CreateOptions{ID: "dup", Variant: VariantC})
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestCreateSessionUnknownVariantDoesNotRegister(t *testing.T) {
	r := NewRegistry(Tools{}, "", true)
	_, err := r.CreateSession(CreateOptions{Variant: VariantA})
	assert.ErrorIs(t, err, ErrSpawnFailed)
	assert.Empty(t, r.List())
}

func TestUnknownSessionOperationsError(t *testing.T) {
	r := NewRegistry(catTools(), "", true)
	_, err := r.GetStatus("nope")
	assert.ErrorIs(t, err, ErrUnknownSession)

	err = r.Write("nope", "x")
	assert.ErrorIs(t, err, ErrUnknownSession)

	err = r.Interrupt("nope", true)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestCloseOnAbsentIDIsIdempotentNoop(t *testing.T) {
	r := NewRegistry(catTools(), "", true)
	res := r.Close("never-existed", true, 200)
	assert.Equal(t, CloseResult{Existed: false, WasRunning: false}, res)
}

func TestPTYEchoEndToEnd(t *testing.T) {
	r := NewRegistry(catTools(), "", true)
	id, err := r.CreateSession(CreateOptions{Variant: VariantA})
	require.NoError(t, err)

	var mu sync.Mutex
	var received strings.Builder
	gotHello := make(chan struct{})
	cancel, err := r.OnOutput(id, func(chunk []byte) {
		mu.Lock()
		received.Write(chunk)
		s := received.String()
		mu.Unlock()
		if strings.Contains(s, "hello") {
			select {
			case gotHello <- struct{}{}:
			default:
			}
		}
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, r.Write(id, "hello\r"))

	select {
	case <-gotHello:
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("did not observe echoed output in time")
	}

	exited := make(chan Status, 1)
	_, err = r.OnExit(id, func(st Status) { exited <- st })
	require.NoError(t, err)

	require.NoError(t, r.Interrupt(id, false))

	select {
	case st := <-exited:
		assert.False(t, st.Running)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit after interrupt")
	}
}

func TestWriteDuringClosingIsSilentlyDropped(t *testing.T) {
	r := NewRegistry(catTools(), "", true)
	id, err := r.CreateSession(CreateOptions{Variant: VariantC})
	require.NoError(t, err)

	s, err := r.mustGet(id)
	require.NoError(t, err)

	r.mu.Lock()
	r.closingSet[id] = struct{}{}
	r.mu.Unlock()

	var gotAny bool
	cancel, err := r.OnOutput(id, func([]byte) { gotAny = true })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, r.Write(id, "should not be written\n"))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, gotAny)

	r.mu.Lock()
	delete(r.closingSet, id)
	r.mu.Unlock()
	s.Forget()
}

func TestCloseIsIdempotentSecondCallSeesGone(t *testing.T) {
	r := NewRegistry(catTools(), "", true)
	id, err := r.CreateSession(CreateOptions{Variant: VariantC})
	require.NoError(t, err)

	first := r.Close(id, true, 200)
	assert.True(t, first.Existed)

	second := r.Close(id, true, 200)
	assert.False(t, second.Existed)
}

func TestDisposeKillsAllSessions(t *testing.T) {
	r := NewRegistry(catTools(), "", true)
	_, err := r.CreateSession(CreateOptions{Variant: VariantC})
	require.NoError(t, err)
	_, err = r.CreateSession(CreateOptions{Variant: VariantC})
	require.NoError(t, err)

	r.Dispose()
	assert.Empty(t, r.List())
}

func TestGenerateSessionIDLength(t *testing.T) {
	id := generateSessionID()
	assert.Len(t, id, 12)
}
