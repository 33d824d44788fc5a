package health

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyplabs/sessiond/internal/eventbus"
)

func TestNewReporterDefaultsInterval(t *testing.T) {
	r := NewReporter(eventbus.NewHub(), nil, 0)
	assert.Equal(t, DefaultInterval, r.Interval)
}

func TestReporterPublishesSnapshot(t *testing.T) {
	hub := eventbus.NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 50 && hub.Count() == 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, hub.Count())

	r := NewReporter(hub, func() int { return 3 }, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env eventbus.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, eventbus.TopicSupervisorHealth, env.Topic)
	assert.Contains(t, string(env.Payload), `"sessionCount":3`)
}
