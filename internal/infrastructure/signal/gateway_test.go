package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/services"
	"castline/internal/infrastructure/distributed"
	"castline/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	gateway  *Gateway
	server   *httptest.Server
	bus      *distributed.Bus
	auth     services.AuthService
	profiles *memory.MemoryProfileRepository
}

func newGatewayFixture(t *testing.T, configure ...func(*GatewayOptions)) *gatewayFixture {
	t.Helper()

	bus := distributed.NewLocalBus(distributed.NewHub(16, nil), nil)
	profiles := memory.NewMemoryProfileRepository()
	auth := services.NewAuthService("test-secret", "castline-test", time.Hour)

	opts := DefaultGatewayOptions()
	opts.PingInterval = time.Second
	for _, fn := range configure {
		fn(&opts)
	}
	g := NewGateway(bus, auth, services.NewProfileService(profiles, nil), nil, nil, opts)

	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	return &gatewayFixture{gateway: g, server: srv, bus: bus, auth: auth, profiles: profiles}
}

func (f *gatewayFixture) dial(t *testing.T, id domain.Identity) *websocket.Conn {
	t.Helper()
	token, err := f.auth.IssueToken(id)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) ServerFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame ServerFrame
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestGateway_RejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_PingPong(t *testing.T) {
	f := newGatewayFixture(t)
	ws := f.dial(t, domain.Identity{ID: "viewer-1", Name: "Viewer"})

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FramePing}))
	assert.Equal(t, FramePong, readFrame(t, ws).Type)
}

func TestGateway_SubscribeAndReceive(t *testing.T) {
	f := newGatewayFixture(t)
	ws := f.dial(t, domain.Identity{ID: "viewer-1", Name: "Viewer"})

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameSubscribe, Channel: domain.PlatformChannel}))

	ack := readFrame(t, ws)
	assert.Equal(t, FrameSubscribed, ack.Type)
	assert.Equal(t, domain.PlatformChannel, ack.Channel)

	first := readFrame(t, ws)
	assert.Equal(t, FrameEvent, first.Type)
	assert.Equal(t, domain.EventSubscriptionSucceeded, first.Event)

	require.NoError(t, f.bus.Publish(context.Background(), domain.PlatformChannel, domain.EventEndBroadcast, struct{}{}))

	ev := readFrame(t, ws)
	assert.Equal(t, FrameEvent, ev.Type)
	assert.Equal(t, domain.PlatformChannel, ev.Channel)
	assert.Equal(t, domain.EventEndBroadcast, ev.Event)
	assert.JSONEq(t, `{}`, string(ev.Data))
}

func TestGateway_DuplicateSubscribe(t *testing.T) {
	f := newGatewayFixture(t)
	ws := f.dial(t, domain.Identity{ID: "viewer-1"})

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameSubscribe, Channel: domain.PlatformChannel}))
	readFrame(t, ws) // subscribed
	readFrame(t, ws) // subscription-succeeded

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameSubscribe, Channel: domain.PlatformChannel}))
	frame := readFrame(t, ws)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "already_subscribed", frame.Code)
}

func TestGateway_PresenceRequiresPermission(t *testing.T) {
	f := newGatewayFixture(t)
	ws := f.dial(t, domain.Identity{ID: "viewer-1", Name: "Viewer"})

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameSubscribe, Channel: domain.ChatChannel}))

	frame := readFrame(t, ws)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "forbidden", frame.Code)
	assert.Equal(t, domain.ChatChannel, frame.Channel)
}

func TestGateway_PresenceSnapshot(t *testing.T) {
	f := newGatewayFixture(t)

	p := domain.NewProfile("viewer-1", time.Now())
	p.Permissions = domain.Grant(p.Permissions, domain.PermJoinPresence)
	_, err := f.profiles.Create(context.Background(), p)
	require.NoError(t, err)

	ws := f.dial(t, domain.Identity{ID: "viewer-1", Name: "Viewer"})
	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameSubscribe, Channel: domain.ChatChannel}))

	assert.Equal(t, FrameSubscribed, readFrame(t, ws).Type)

	first := readFrame(t, ws)
	require.Equal(t, domain.EventSubscriptionSucceeded, first.Event)

	var snapshot domain.PresenceSnapshot
	require.NoError(t, json.Unmarshal(first.Data, &snapshot))
	assert.Equal(t, 1, snapshot.Count)
	require.Len(t, snapshot.Members, 1)
	assert.Equal(t, domain.UserID("viewer-1"), snapshot.Members[0].ID)

	members, err := f.bus.Members(context.Background(), domain.ChatChannel)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestGateway_InvalidFrames(t *testing.T) {
	f := newGatewayFixture(t)
	ws := f.dial(t, domain.Identity{ID: "viewer-1"})

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "invalid_frame", readFrame(t, ws).Code)

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: "dance"}))
	assert.Equal(t, "invalid_frame", readFrame(t, ws).Code)

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameSubscribe, Channel: "Bad Channel"}))
	assert.Equal(t, "invalid_channel", readFrame(t, ws).Code)

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameUnsubscribe, Channel: "chat"}))
	assert.Equal(t, "not_subscribed", readFrame(t, ws).Code)
}

func TestGateway_ShutdownClosesConnections(t *testing.T) {
	f := newGatewayFixture(t)
	ws := f.dial(t, domain.Identity{ID: "viewer-1"})

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FramePing}))
	readFrame(t, ws)
	require.Equal(t, 1, f.gateway.Connections())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.gateway.Shutdown(ctx))
	assert.Equal(t, 0, f.gateway.Connections())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestGateway_EnforcesConnectionLimit(t *testing.T) {
	f := newGatewayFixture(t, func(o *GatewayOptions) { o.MaxConnections = 2 })
	token, err := f.auth.IssueToken(domain.Identity{ID: "viewer-1"})
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?token=" + token

	var (
		mu       sync.Mutex
		accepted []*websocket.Conn
		rejected int
		wg       sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if assert.NotNil(t, resp) {
					assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
				}
				rejected++
				return
			}
			accepted = append(accepted, ws)
		}()
	}
	wg.Wait()

	assert.Len(t, accepted, 2)
	assert.Equal(t, 3, rejected)

	for _, ws := range accepted {
		_ = ws.Close()
	}
	require.Eventually(t, func() bool { return f.gateway.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = ws.Close()
}
