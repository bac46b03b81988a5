package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/pkg/logger"
)

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var welcome Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, EventWelcome, welcome.Type)
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHubBroadcastsBenchmarks(t *testing.T) {
	hub := NewHub(logger.Nop())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()
	defer hub.Close()

	all := dial(t, server, "")
	defer all.Close()
	onlyB := dial(t, server, "?tenant=dealer-b")
	defer onlyB.Close()
	waitForClients(t, hub, 2)

	hub.PublishBenchmark(contracts.BenchmarkRecord{ID: "b1", Tenant: "dealer-a", WeightsVersion: 3})
	hub.PublishBenchmark(contracts.BenchmarkRecord{ID: "b2", Tenant: "dealer-b", WeightsVersion: 1})

	var ev Event
	require.NoError(t, all.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, EventBenchmark, ev.Type)
	assert.Equal(t, "dealer-a", ev.Tenant)
	require.NotNil(t, ev.Benchmark)
	assert.Equal(t, 3, ev.Benchmark.WeightsVersion)

	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, "b2", ev.Benchmark.ID)

	require.NoError(t, onlyB.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, onlyB.ReadJSON(&ev))
	assert.Equal(t, "b2", ev.Benchmark.ID, "tenant filter skips dealer-a")
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub := NewHub(logger.Nop())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// no subscribers: publish is a no-op
	hub.PublishBenchmark(contracts.BenchmarkRecord{ID: "b1", Tenant: "dealer-a"})
}

func TestHubClose(t *testing.T) {
	hub := NewHub(logger.Nop())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dial(t, server, "")
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
