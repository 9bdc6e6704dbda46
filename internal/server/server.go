// Package server implements the ephemeral HTTP delivery server behind
// marklet's dynamic scripting: it negotiates a listen port, gates visibility
// of content on build readiness, and serves the bookmarklet index and script
// bodies addressed by protected filename hashes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/marklet/marklet/internal/config"
	"github.com/marklet/marklet/internal/logging"
	"github.com/marklet/marklet/internal/ports"
	"github.com/marklet/marklet/internal/protect"
	"github.com/marklet/marklet/internal/registry"
)

// SourceInput is one (filename, script) pair submitted by the build
// pipeline. The server computes the protected hash itself.
type SourceInput struct {
	Filename string
	Script   string
}

// DeliveryServer owns the listening socket, the readiness flag, and the
// current generation of servable sources. Readiness is authoritative and
// independent of the socket: a bound listener mid-rebuild still answers 503.
type DeliveryServer struct {
	config   *config.Config
	logger   logging.Logger
	hashFn   protect.HashFunc
	registry *registry.Registry

	mu          sync.RWMutex // guards httpServer, currentPort, origin
	httpServer  *http.Server
	currentPort int
	origin      string

	started atomic.Bool
	ready   atomic.Bool

	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *client
	unregister   chan *websocket.Conn

	closeOnce sync.Once
}

// Option customizes server construction.
type Option func(*DeliveryServer)

// WithHashFunc replaces the default salted/stretched filename hash.
func WithHashFunc(fn protect.HashFunc) Option {
	return func(s *DeliveryServer) {
		if fn != nil {
			s.hashFn = fn
		}
	}
}

// New creates a delivery server. It does not bind anything until Start.
func New(cfg *config.Config, logger logging.Logger, opts ...Option) *DeliveryServer {
	s := &DeliveryServer{
		config:     cfg,
		logger:     logger.WithComponent("server"),
		hashFn:     protect.Hasher(cfg.Protect.Salt, cfg.Protect.StretchCount),
		registry:   registry.New(),
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start negotiates the listen port, binds the socket, and begins serving in
// the background. It returns once the listener is bound; port conflicts and
// fallback exhaustion are fatal and reported to the caller.
func (s *DeliveryServer) Start(ctx context.Context) error {
	if s.started.Load() {
		return errors.New("server already started")
	}

	cfg := s.config.Server

	port, err := ports.FindAvailable(cfg.Host, cfg.Port, cfg.FallbackPort)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		// The probe released the port before we could bind it; losing
		// that race to another process is still a startup failure.
		return fmt.Errorf("binding %s: %w", addr, err)
	}

	s.mu.Lock()
	s.currentPort = port
	s.origin = fmt.Sprintf("http://%s", addr)
	s.httpServer = &http.Server{Handler: s.routes()}
	httpServer := s.httpServer
	origin := s.origin
	s.mu.Unlock()

	s.started.Store(true)

	go s.runHub(ctx)
	go s.forwardGenerationEvents(ctx)

	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error(ctx, serveErr, "delivery server stopped unexpectedly")
		}
	}()

	if cfg.Open {
		go s.openBrowser(ctx, origin)
	}

	s.logger.Info(ctx, "delivery server listening", "origin", origin, "port", port)

	return nil
}

// SetBookmarkletSources installs a new generation. The server is not ready
// from the first statement until the complete set is swapped in, so no
// request can observe a half-updated source set. Hashing runs on the
// caller's goroutine, keeping large stretch counts off the serving path.
func (s *DeliveryServer) SetBookmarkletSources(ctx context.Context, inputs []SourceInput) error {
	s.ready.Store(false)

	sources := make([]registry.Source, 0, len(inputs))
	seen := make(map[string]string, len(inputs))
	for _, input := range inputs {
		hash, err := s.hashFn(input.Filename)
		if err != nil {
			// Stay not ready: the previous generation is stale now.
			return fmt.Errorf("hashing filename %q: %w", input.Filename, err)
		}
		if prev, dup := seen[hash]; dup {
			return fmt.Errorf("hash collision between %q and %q", prev, input.Filename)
		}
		seen[hash] = input.Filename

		sources = append(sources, registry.Source{
			Filename: input.Filename,
			Script:   input.Script,
			Hash:     hash,
		})
	}

	gen := s.registry.Install(sources)
	s.ready.Store(true)

	s.logger.Info(ctx, "generation installed", "generation", gen.Seq, "sources", len(sources))

	return nil
}

// SetReady toggles readiness gating. The build pipeline calls this with
// false when a rebuild starts; SetBookmarkletSources restores readiness once
// the new set is installed.
func (s *DeliveryServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether requests are currently being served content.
func (s *DeliveryServer) IsReady() bool {
	return s.ready.Load()
}

// IsStarted reports whether the listener is bound.
func (s *DeliveryServer) IsStarted() bool {
	return s.started.Load()
}

// Port returns the negotiated listen port. It is fixed for the process
// lifetime once Start succeeds.
func (s *DeliveryServer) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPort
}

// Origin returns the server's http origin, e.g. http://127.0.0.1:3300.
func (s *DeliveryServer) Origin() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origin
}

// Close tears the server down best-effort. Errors during teardown are logged
// and never returned; shutdown is fire and forget for the caller.
func (s *DeliveryServer) Close() {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		s.clientsMutex.Lock()
		for conn, cl := range s.clients {
			close(cl.send)
			conn.Close(websocket.StatusGoingAway, "server closing")
		}
		s.clients = make(map[*websocket.Conn]*client)
		s.clientsMutex.Unlock()

		s.mu.RLock()
		httpServer := s.httpServer
		s.mu.RUnlock()

		if httpServer != nil {
			if err := httpServer.Shutdown(ctx); err != nil {
				s.logger.Warn(ctx, err, "closing delivery server")
			}
		}

		s.started.Store(false)
		s.ready.Store(false)
	})
}

func (s *DeliveryServer) forwardGenerationEvents(ctx context.Context) {
	events := s.registry.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			s.broadcastMessage(UpdateMessage{
				Type:       "generation",
				Generation: event.Seq,
				Count:      event.Count,
				Timestamp:  event.Timestamp,
			})
		}
	}
}

// openBrowser opens url in the default browser. The URL is validated before
// being handed to a system command.
func (s *DeliveryServer) openBrowser(ctx context.Context, rawURL string) {
	// Give the accept loop a moment to come up.
	time.Sleep(100 * time.Millisecond)

	if err := validateBrowserURL(rawURL); err != nil {
		s.logger.Warn(ctx, err, "refusing to open browser")
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", rawURL).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL).Start()
	case "darwin":
		err = exec.Command("open", rawURL).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(ctx, err, "opening browser")
	}
}

// validateBrowserURL accepts only plain http URLs with a host, since the
// value ends up as a system command argument.
func validateBrowserURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if parsed.Scheme != "http" {
		return fmt.Errorf("unexpected scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}
