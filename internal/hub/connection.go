// Package hub keeps the agent's websocket session to the remote-support
// hub open. Connect only starts the session loop; dialing, reconnect
// backoff, and command dispatch all happen in the background.
package hub

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"
)

var (
	ErrServerURLRequired = errors.New("hub: server url required")
	ErrDeviceIDRequired  = errors.New("hub: device id required")
	ErrAlreadyConnecting = errors.New("hub: connection already started")
	ErrInvalidServerURL  = errors.New("hub: invalid server url")
	ErrNotConnected      = errors.New("hub: not connected")
)

// AgentPath is the websocket endpoint under the server URL.
const AgentPath = "/hubs/agent"

type Config struct {
	ServerURL         string
	DeviceID          string
	OrganizationID    string
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	Backoff           BackoffConfig
	// SocksProxy is an optional host:port SOCKS5 proxy. When empty the
	// HTTP(S)_PROXY environment applies.
	SocksProxy string
	// CAFile is an optional PEM bundle trusted in addition to system roots.
	CAFile string
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: time.Minute,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		Backoff:           DefaultBackoff(),
	}
}

// WithDefaults fills zero durations from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

// Validate checks the fields needed to dial.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return ErrServerURLRequired
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		return ErrDeviceIDRequired
	}
	if _, err := EndpointURL(c.ServerURL); err != nil {
		return err
	}
	return nil
}

// EndpointURL maps an http(s) or ws(s) server URL to the agent endpoint.
func EndpointURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(server))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidServerURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidServerURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: host missing", ErrInvalidServerURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + AgentPath
	return u.String(), nil
}

// Spawner runs background work; the fault supervisor satisfies it.
type Spawner interface {
	Go(source string, fn func() error)
}

type goSpawner struct{}

func (goSpawner) Go(_ string, fn func() error) { go func() { _ = fn() }() }

// Dependencies are the capabilities the hub dispatches commands to.
type Dependencies struct {
	Devices  platform.DeviceInfoGenerator
	Launcher platform.Launcher
	Updater  platform.Updater
	Spawner  Spawner
}

// Connection is the long-lived hub session.
type Connection struct {
	cfg    Config
	deps   Dependencies
	logger zerolog.Logger
	rng    *rand.Rand

	starting  atomic.Bool
	connected atomic.Bool
	sessions  atomic.Int64

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewConnection(cfg Config, deps Dependencies, logger zerolog.Logger) *Connection {
	if deps.Spawner == nil {
		deps.Spawner = goSpawner{}
	}
	return &Connection{
		cfg:    cfg.WithDefaults(),
		deps:   deps,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Connect validates the configuration and starts the session loop. It
// returns once the loop is running; the loop ends with ctx.
func (c *Connection) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if !c.starting.CompareAndSwap(false, true) {
		return ErrAlreadyConnecting
	}
	c.deps.Spawner.Go("hub", func() error {
		return c.run(ctx)
	})
	c.logger.Info().Str("server", c.cfg.ServerURL).Msg("hub.Connection.Connect started")
	return nil
}

// Connected reports whether a session is currently open.
func (c *Connection) Connected() bool {
	return c.connected.Load()
}

// Sessions counts the sessions opened so far.
func (c *Connection) Sessions() int64 {
	return c.sessions.Load()
}

// Info returns the connection identity for status output.
func (c *Connection) Info() (server, deviceID, orgID string) {
	return c.cfg.ServerURL, c.cfg.DeviceID, c.cfg.OrganizationID
}

func (c *Connection) run(ctx context.Context) error {
	attempt := 0
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			observability.RecordHubConnectAttempt(false)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
			c.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("hub.Connection dial failed")
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			continue
		}
		observability.RecordHubConnectAttempt(true)
		attempt = 0

		err = c.session(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
		c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("hub.Connection session closed")
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := EndpointURL(c.cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	if ca := strings.TrimSpace(c.cfg.CAFile); ca != "" {
		tlsCfg, err := rootsTLSConfig(ca)
		if err != nil {
			return nil, err
		}
		d.TLSClientConfig = tlsCfg
	}
	if socks := strings.TrimSpace(c.cfg.SocksProxy); socks != "" {
		pd, err := proxy.SOCKS5("tcp", socks, nil, &net.Dialer{Timeout: c.cfg.HandshakeTimeout})
		if err != nil {
			return nil, fmt.Errorf("hub: socks proxy %s: %w", socks, err)
		}
		cd, ok := pd.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("hub: socks proxy %s: dialer lacks context support", socks)
		}
		d.Proxy = nil
		d.NetDialContext = cd.DialContext
	}

	header := http.Header{}
	header.Set("X-Device-Id", c.cfg.DeviceID)
	if c.cfg.OrganizationID != "" {
		header.Set("X-Organization-Id", c.cfg.OrganizationID)
	}
	conn, resp, err := d.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("hub: dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// session runs one open socket until it fails or ctx ends.
func (c *Connection) session(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.sessions.Add(1)
	observability.SetHubConnected(true)
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.connected.Store(false)
		observability.SetHubConnected(false)
		_ = conn.Close()
	}()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessCtx.Done()
		_ = conn.Close()
	}()

	if err := c.sendDevice(sessCtx, TypeHello, ""); err != nil {
		return err
	}
	c.logger.Info().Str("device_id", c.cfg.DeviceID).Msg("hub.Connection session open")

	go c.heartbeat(sessCtx)

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("hub: read: %w", err)
		}
		c.dispatch(sessCtx, env)
	}
}

func (c *Connection) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendDevice(ctx, TypeHeartbeat, ""); err != nil {
				c.logger.Debug().Err(err).Msg("hub.Connection heartbeat failed")
			}
		}
	}
}

func (c *Connection) dispatch(ctx context.Context, env Envelope) {
	c.logger.Debug().Str("type", env.Type).Str("id", env.ID).Msg("hub.Connection command")
	switch env.Type {
	case TypePing:
		c.reply(TypePong, env.ID, nil)
	case TypeDeviceInfo:
		if err := c.sendDevice(ctx, TypeDeviceInfo, env.ID); err != nil {
			c.reply(TypeResult, env.ID, resultFor(err))
		}
	case TypeCheckForUpdates:
		if c.deps.Updater == nil {
			c.reply(TypeResult, env.ID, resultFor(errors.New("updater unavailable")))
			return
		}
		c.deps.Spawner.Go("hub.checkForUpdates", func() error {
			err := c.deps.Updater.CheckForUpdates(ctx)
			c.reply(TypeResult, env.ID, resultFor(err))
			return err
		})
	case TypeLaunchRemoteControl:
		var req platform.LaunchRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			c.reply(TypeResult, env.ID, resultFor(fmt.Errorf("hub: launch payload: %w", err)))
			return
		}
		if req.ServerURL == "" {
			req.ServerURL = c.cfg.ServerURL
		}
		if c.deps.Launcher == nil {
			c.reply(TypeResult, env.ID, resultFor(errors.New("launcher unavailable")))
			return
		}
		err := c.deps.Launcher.LaunchRemoteControl(ctx, req)
		c.reply(TypeResult, env.ID, resultFor(err))
	default:
		c.logger.Warn().Str("type", env.Type).Msg("hub.Connection unknown command")
		c.reply(TypeResult, env.ID, resultFor(fmt.Errorf("unknown command %q", env.Type)))
	}
}

func (c *Connection) sendDevice(ctx context.Context, typ, id string) error {
	if c.deps.Devices == nil {
		return c.send(typ, id, platform.Device{ID: c.cfg.DeviceID, OrganizationID: c.cfg.OrganizationID})
	}
	d, err := c.deps.Devices.CreateDevice(ctx, c.cfg.DeviceID, c.cfg.OrganizationID)
	if err != nil {
		return fmt.Errorf("hub: device info: %w", err)
	}
	return c.send(typ, id, d)
}

func (c *Connection) reply(typ, id string, payload any) {
	if err := c.send(typ, id, payload); err != nil {
		c.logger.Debug().Err(err).Str("type", typ).Msg("hub.Connection reply failed")
	}
}

func (c *Connection) send(typ, id string, payload any) error {
	env, err := newEnvelope(typ, id, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(env)
}

func rootsTLSConfig(caFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("hub: read ca file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("hub: ca file %s has no certificates", caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
