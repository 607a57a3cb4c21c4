package devserver

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/leapbundle/internal/bootstrap"
	"github.com/leapstack-labs/leapbundle/internal/bundle"
	"github.com/starfederation/datastar-go/datastar"
)

// Routes served under the internal prefix.
const (
	RoutePrefix = "/__leapbundle"
	EventsPath  = RoutePrefix + "/events"
	ClientPath  = RoutePrefix + "/client.js"
	StatusPath  = RoutePrefix + "/status"
)

//go:embed client.js
var clientJS []byte

const defaultDocument = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>leapbundle</title></head>
<body><div id="%s"></div></body>
</html>
`

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
		middleware.Recoverer,
	)
	if !s.cfg.DisableHostCheck {
		r.Use(s.hostCheck)
	}

	r.Route(RoutePrefix, func(r chi.Router) {
		// SSE responses must not be buffered by the compressor.
		r.Get("/events", s.handleEvents)
		r.With(middleware.Compress(5)).Get("/client.js", s.handleClient)
		r.Get("/status", s.handleStatus)
	})
	r.With(middleware.Compress(5)).Get("/*", s.handleFile)

	return r
}

// hostCheck rejects requests whose Host header names neither a loopback
// address nor a configured host.
func (s *Server) hostCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allowedHost(r.Host) {
			s.logger.Warn("rejected request with invalid host", "host", r.Host, "path", r.URL.Path)
			http.Error(w, "invalid Host header", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedHost(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	_, ok := s.hosts[host]
	return ok
}

// handleEvents is the long-lived SSE push channel.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := s.session.Subscribe()
	defer s.session.Unsubscribe(updates)

	// A client connecting while the build is broken sees the errors at once.
	if msg := s.session.Failure(); msg != nil {
		if err := s.send(sse, *msg); err != nil {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if err := s.send(sse, msg); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}

func (s *Server) send(sse *datastar.ServerSentEventGenerator, msg Message) error {
	switch msg.Type {
	case MessageBuildError:
		if err := sse.PatchElementTempl(Overlay(msg.Diagnostics)); err != nil {
			return err
		}
		if err := sse.ConsoleError(errors.New(msg.Reason)); err != nil {
			return err
		}
	case MessageBuildOK:
		if err := sse.PatchElementTempl(Overlay(nil)); err != nil {
			return err
		}
	}
	return sse.MarshalAndPatchSignals(signals{Leapbundle: msg})
}

type clientConfig struct {
	Events  string `json:"events"`
	HotOnly bool   `json:"hotOnly"`
	Overlay string `json:"overlay"`
}

func (s *Server) handleClient(w http.ResponseWriter, _ *http.Request) {
	cfg, err := json.Marshal(clientConfig{Events: EventsPath, HotOnly: s.cfg.HotOnly, Overlay: OverlayID})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = fmt.Fprintf(w, "window.__LEAPBUNDLE_HMR__ = %s;\n", cfg)
	_, _ = w.Write(clientJS)
}

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	Stats
	Entry string   `json:"entry,omitempty"`
	Files []string `json:"files,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Stats: s.session.Stats()}
	if art := s.session.Artifact(); art != nil {
		resp.Entry = art.Entry
		for _, f := range art.Files {
			resp.Files = append(resp.Files, f.Name)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode status", "error", err)
	}
}

// handleFile serves the host document, artifact files, assets and the
// static root, in that order.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if p == "/" || p == "/index.html" {
		s.handleDocument(w, r)
		return
	}

	art := s.session.Artifact()
	if name, ok := strings.CutPrefix(p, s.prefix); ok && art != nil {
		if f, ok := art.File(name); ok {
			serveContent(w, r, f.Name, f.Content, art.Hash)
			return
		}
		if assetName, ok := strings.CutPrefix(name, bundle.AssetDir+"/"); ok {
			if a, ok := art.Asset(assetName); ok {
				serveContent(w, r, a.Name, a.Content, art.Hash)
				return
			}
		}
	}

	if s.staticFile(p) {
		http.FileServer(http.Dir(s.cfg.StaticRoot)).ServeHTTP(w, r)
		return
	}
	if art == nil {
		http.Error(w, "no successful build yet", http.StatusServiceUnavailable)
		return
	}
	http.NotFound(w, r)
}

func serveContent(w http.ResponseWriter, r *http.Request, name string, content []byte, hash string) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", `"`+hash+`"`)
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(content))
}

func (s *Server) staticFile(urlPath string) bool {
	if s.cfg.StaticRoot == "" {
		return false
	}
	name := filepath.Join(s.cfg.StaticRoot, filepath.FromSlash(path.Clean("/"+urlPath)))
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

// handleDocument serves the host document with the artifact scripts,
// the live-reload client and the init call injected. If bootstrapping
// fails the document is served unmodified.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	src := s.document()

	rt := &bootstrap.ScriptRuntime{Client: ClientPath}
	if art := s.session.Artifact(); art != nil {
		rt.Global = s.cfg.Global
		base := strings.TrimSuffix(s.cfg.PublicPath, "/")
		for _, f := range art.Files {
			rt.Scripts = append(rt.Scripts, base+"/"+f.Name)
		}
	}

	out, res := bootstrap.Document(src, s.cfg.MountID, rt, s.cfg.Flags, s.logger)
	if !res.OK() {
		s.logger.Warn("serving document without bootstrap", "path", r.URL.Path, "error", res.Err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(out)
}

func (s *Server) document() []byte {
	if s.cfg.Document != "" {
		src, err := os.ReadFile(s.cfg.Document)
		if err == nil {
			return src
		}
		s.logger.Warn("failed to read host document, using default", "document", s.cfg.Document, "error", err)
	}
	return []byte(fmt.Sprintf(defaultDocument, html.EscapeString(s.cfg.MountID)))
}
