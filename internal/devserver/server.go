// Package devserver serves a live artifact over HTTP, rebuilds it when
// watched files change and pushes updates to connected browsers.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapbundle/internal/bootstrap"
)

// Config holds dev server configuration.
type Config struct {
	Host string
	Port int
	// StaticRoot is served for paths no artifact file matches (optional).
	StaticRoot string
	// PublicPath is the URL prefix artifact files and assets are served
	// under. It may be an absolute URL.
	PublicPath string
	HotOnly    bool
	// DisableHostCheck accepts requests for any Host header.
	DisableHostCheck bool
	// AllowedHosts extends the hosts accepted by the host check.
	AllowedHosts []string
	Debounce     time.Duration

	// Document is the host HTML document (optional).
	Document string
	MountID  string
	// Global is the object whose init receives the mount node and flags.
	Global string
	Flags  bootstrap.Flags

	// WatchRoots are watched in addition to the directories of graph modules.
	WatchRoots []string
	// OnRebuild is called after every rebuild attempt (optional).
	OnRebuild func(RebuildResult)
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Server is the development server.
type Server struct {
	cfg     Config
	builder Builder
	session *Session
	logger  *slog.Logger

	prefix string
	hosts  map[string]struct{}

	newWatcher func() (*fsnotify.Watcher, error)
	resync     chan struct{}
	ready      chan struct{}
	readyOnce  sync.Once
	addr       atomic.Value
}

// New creates a dev server for the given engine and renderer.
func New(cfg Config, b Builder, r Renderer) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MountID == "" {
		cfg.MountID = "app"
	}
	if cfg.PublicPath == "" {
		cfg.PublicPath = "/"
	}

	s := &Server{
		cfg:        cfg,
		builder:    b,
		logger:     cfg.Logger,
		prefix:     publicPrefix(cfg.PublicPath),
		hosts:      make(map[string]struct{}),
		newWatcher: fsnotify.NewWatcher,
		resync:     make(chan struct{}, 1),
		ready:      make(chan struct{}),
	}

	for _, h := range cfg.AllowedHosts {
		s.hosts[strings.ToLower(h)] = struct{}{}
	}
	if cfg.Host != "" && cfg.Host != "0.0.0.0" && cfg.Host != "::" {
		s.hosts[strings.ToLower(cfg.Host)] = struct{}{}
	}
	if u, err := url.Parse(cfg.PublicPath); err == nil && u.Hostname() != "" {
		s.hosts[strings.ToLower(u.Hostname())] = struct{}{}
	}

	s.session = NewSession(b, r, SessionConfig{
		Debounce: cfg.Debounce,
		HotOnly:  cfg.HotOnly,
		Logger:   cfg.Logger,
		OnRebuild: func(res RebuildResult) {
			select {
			case s.resync <- struct{}{}:
			default:
			}
			if cfg.OnRebuild != nil {
				cfg.OnRebuild(res)
			}
		},
	})
	return s
}

// publicPrefix returns the path component of a public path with leading
// and trailing slashes.
func publicPrefix(publicPath string) string {
	p := publicPath
	if u, err := url.Parse(publicPath); err == nil && u.Host != "" {
		p = u.Path
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Session returns the server's rebuild session.
func (s *Server) Session() *Session {
	return s.session
}

// State returns the server state.
func (s *Server) State() State {
	return s.session.State()
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// ListenAddr returns the bound address once the server is ready.
func (s *Server) ListenAddr() string {
	v, _ := s.addr.Load().(string)
	return v
}

// Ready is closed once the server is serving.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Serve binds the listener, runs the initial build and serves until ctx
// is cancelled. A failed initial build does not stop the server; errors
// are shown until a rebuild succeeds.
func (s *Server) Serve(ctx context.Context) error {
	s.session.setState(StateStarting)

	addr := s.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.session.setState(StateFailed)
		return &TransportError{Addr: addr, Op: "listen", Err: err}
	}
	s.addr.Store(ln.Addr().String())
	s.logger.Info("starting dev server", "addr", "http://"+ln.Addr().String())

	if err := s.session.Build(ctx); err != nil {
		if ctx.Err() != nil {
			_ = ln.Close()
			s.session.setState(StateStopped)
			return nil
		}
		s.logger.Warn("initial build failed, waiting for changes", "error", err)
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.session.setState(StateServing)
	s.readyOnce.Do(func() { close(s.ready) })

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		return s.watch(egctx)
	})

	eg.Go(func() error {
		return s.session.Run(egctx)
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down dev server...")
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		s.session.setState(StateFailed)
		return &TransportError{Addr: ln.Addr().String(), Op: "serve", Err: err}
	}
	s.session.setState(StateStopped)
	return nil
}
