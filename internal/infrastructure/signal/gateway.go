package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/internal/core/services"
	"castline/pkg/tracing"
	"castline/pkg/validation"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// Server frame types.
const (
	FrameEvent      = "event"
	FrameSubscribed = "subscribed"
	FrameError      = "error"
	FramePong       = "pong"
)

// ClientFrame is what a browser sends over the socket.
type ClientFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// ServerFrame is what the gateway writes back.
type ServerFrame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

type GatewayOptions struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	WriteBuffer       int
	MaxMessageSize    int64
	MessagesPerSecond float64
	Burst             int
	MaxConnections    int
	AllowedOrigins    []string
}

func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		WriteBuffer:       64,
		MaxMessageSize:    16 * 1024,
		MessagesPerSecond: 20,
		Burst:             40,
	}
}

// Gateway bridges browser websockets to the fan-out bus. Each connection
// authenticates once with a bearer token and then subscribes to channels.
type Gateway struct {
	bus      ports.Bus
	auth     services.AuthService
	profiles ports.ProfileService
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
	opts     GatewayOptions
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*connection]struct{}
	draining bool
	active   atomic.Int64
}

func NewGateway(
	bus ports.Bus,
	auth services.AuthService,
	profiles ports.ProfileService,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
	opts GatewayOptions,
) *Gateway {
	defaults := DefaultGatewayOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.PongTimeout <= opts.PingInterval {
		opts.PongTimeout = 2 * opts.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.WriteBuffer <= 0 {
		opts.WriteBuffer = defaults.WriteBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = defaults.MessagesPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = defaults.Burst
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	g := &Gateway{
		bus:      bus,
		auth:     auth,
		profiles: profiles,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		conns:    make(map[*connection]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter browsers use for websockets.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := g.auth.ValidateToken(bearerToken(r))
	if err != nil {
		g.logger.Infow("websocket authentication failed", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := g.reserve(); err != nil {
		if errors.Is(err, errConnectionLimit) {
			g.logger.Warnw("websocket connection limit reached", "limit", g.opts.MaxConnections)
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.release()
		g.logger.Infow("websocket upgrade failed", "error", err)
		return
	}

	c := g.newConnection(ws, identity)
	if !g.register(c) {
		g.release()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}
	defer g.unregister(c)

	g.logger.Infow("client connected", "user_id", identity.ID, "remote_addr", r.RemoteAddr)
	c.run()
	g.logger.Infow("client disconnected", "user_id", identity.ID, "dropped_frames", c.dropped.Load())
}

var (
	errConnectionLimit = errors.New("too many connections")
	errDraining        = errors.New("shutting down")
)

// reserve claims a connection slot before the handshake. The slot is given
// back by release, or by unregister once the connection has registered.
func (g *Gateway) reserve() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return errDraining
	}
	if limit := g.opts.MaxConnections; limit > 0 && g.active.Load() >= int64(limit) {
		return errConnectionLimit
	}
	g.active.Add(1)
	return nil
}

func (g *Gateway) release() {
	g.active.Add(-1)
}

func (g *Gateway) register(c *connection) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return false
	}
	g.conns[c] = struct{}{}
	if g.metrics != nil {
		g.metrics.GatewayConnected()
	}
	return true
}

func (g *Gateway) unregister(c *connection) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
	g.active.Add(-1)
	if g.metrics != nil {
		g.metrics.GatewayDisconnected()
	}
}

// Connections reports the number of open client connections.
func (g *Gateway) Connections() int {
	return int(g.active.Load())
}

// Shutdown stops accepting connections and closes the open ones with
// going-away. It waits for them to finish until ctx ends.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.draining = true
	for c := range g.conns {
		c.stop()
	}
	g.mu.Unlock()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for g.active.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

type connection struct {
	g        *Gateway
	ws       *websocket.Conn
	identity domain.Identity
	limiter  *rate.Limiter
	send     chan []byte
	dropped  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	subs  map[string]ports.Subscription
	pumps conc.WaitGroup
}

func (g *Gateway) newConnection(ws *websocket.Conn, identity domain.Identity) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		g:        g,
		ws:       ws,
		identity: identity,
		limiter:  rate.NewLimiter(rate.Limit(g.opts.MessagesPerSecond), g.opts.Burst),
		send:     make(chan []byte, g.opts.WriteBuffer),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]ports.Subscription),
	}
}

func (c *connection) stop() {
	c.cancel()
}

func (c *connection) run() {
	var wg conc.WaitGroup
	wg.Go(c.readLoop)
	wg.Go(c.writeLoop)
	if r := wg.WaitAndRecover(); r != nil {
		c.g.logger.Errorw("websocket connection panicked", "user_id", c.identity.ID, "panic", r.String())
	}

	c.mu.Lock()
	for channel, sub := range c.subs {
		_ = sub.Close()
		delete(c.subs, channel)
	}
	c.mu.Unlock()
	c.pumps.Wait()
}

func (c *connection) readLoop() {
	defer c.cancel()

	c.ws.SetReadLimit(c.g.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.g.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.g.opts.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) &&
				c.ctx.Err() == nil {
				c.g.logger.Infow("error reading from client", "user_id", c.identity.ID, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.g.opts.PongTimeout))

		if !c.limiter.Allow() {
			c.sendError("", "rate_limited", "too many frames")
			continue
		}

		var frame ClientFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			c.sendError("", "invalid_frame", "frame must be a JSON object")
			continue
		}
		c.handle(frame)
	}
}

func (c *connection) writeLoop() {
	ping := time.NewTicker(c.g.opts.PingInterval)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(c.g.opts.WriteTimeout))
			return

		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.g.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.g.logger.Infow("error writing to client", "user_id", c.identity.ID, "error", err)
				c.cancel()
				return
			}

		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.g.opts.WriteTimeout)); err != nil {
				c.g.logger.Infow("error sending ping", "user_id", c.identity.ID, "error", err)
				c.cancel()
				return
			}
		}
	}
}

func (c *connection) handle(frame ClientFrame) {
	ctx, span := tracing.TraceWebSocketFrame(c.ctx, frame.Type, string(c.identity.ID))
	defer span.End()

	switch frame.Type {
	case FramePing:
		c.enqueue(ServerFrame{Type: FramePong})
	case FrameSubscribe:
		c.subscribe(ctx, frame.Channel)
	case FrameUnsubscribe:
		c.unsubscribe(frame.Channel)
	default:
		c.sendError("", "invalid_frame", "unknown frame type: "+frame.Type)
	}
}

func (c *connection) subscribe(ctx context.Context, channel string) {
	if err := validation.ValidateChannel(channel); err != nil {
		c.sendError(channel, "invalid_channel", err.Error())
		return
	}

	c.mu.Lock()
	_, exists := c.subs[channel]
	c.mu.Unlock()
	if exists {
		c.sendError(channel, "already_subscribed", "already subscribed to "+channel)
		return
	}

	var member *domain.Member
	if domain.IsPresenceChannel(channel) {
		profile, err := c.g.profiles.Ensure(ctx, c.identity)
		if err != nil {
			c.sendDomainError(channel, err)
			return
		}
		if !profile.Can(domain.PermJoinPresence) {
			c.g.logger.Infow("presence subscription denied", "user_id", c.identity.ID, "channel", channel)
			c.sendError(channel, "forbidden", "missing JOIN_PRESENCE permission")
			return
		}
		member = &domain.Member{ID: c.identity.ID, Info: c.identity}
	}

	sub, err := c.g.bus.Subscribe(c.ctx, channel, member)
	if err != nil {
		c.sendDomainError(channel, err)
		return
	}

	c.mu.Lock()
	if _, raced := c.subs[channel]; raced {
		c.mu.Unlock()
		_ = sub.Close()
		return
	}
	c.subs[channel] = sub
	c.mu.Unlock()

	c.enqueue(ServerFrame{Type: FrameSubscribed, Channel: channel})
	c.pumps.Go(func() { c.forward(sub) })
}

func (c *connection) unsubscribe(channel string) {
	c.mu.Lock()
	sub, ok := c.subs[channel]
	delete(c.subs, channel)
	c.mu.Unlock()

	if !ok {
		c.sendError(channel, "not_subscribed", "not subscribed to "+channel)
		return
	}
	if err := sub.Close(); err != nil {
		c.g.logger.Debugw("error closing subscription", "channel", channel, "error", err)
	}
}

// forward copies bus events into the write buffer until the subscription
// closes.
func (c *connection) forward(sub ports.Subscription) {
	for ev := range sub.Events() {
		c.enqueue(ServerFrame{
			Type:    FrameEvent,
			Channel: ev.Channel,
			Event:   ev.Name,
			Data:    ev.Data,
		})
	}
}

// enqueue never blocks; a client that cannot keep up loses frames.
func (c *connection) enqueue(frame ServerFrame) {
	data, err := sonic.Marshal(frame)
	if err != nil {
		c.g.logger.Warnw("failed to encode frame", "type", frame.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			c.g.logger.Warnw("client write buffer full, dropping frames", "user_id", c.identity.ID, "dropped", n)
		}
	}
}

func (c *connection) sendError(channel, code, message string) {
	c.enqueue(ServerFrame{Type: FrameError, Channel: channel, Code: code, Message: message})
}

func (c *connection) sendDomainError(channel string, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		c.sendError(channel, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		c.sendError(channel, "forbidden", err.Error())
	case errors.Is(err, domain.ErrValidation):
		c.sendError(channel, "invalid_channel", err.Error())
	default:
		c.g.logger.Warnw("subscription failed", "user_id", c.identity.ID, "channel", channel, "error", err)
		c.sendError(channel, "unavailable", "try again later")
	}
}
