package devserver

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/leapbundle/internal/bundle"
	"github.com/leapstack-labs/leapbundle/internal/devserver/notifier"
	"github.com/leapstack-labs/leapbundle/internal/engine"
	"github.com/leapstack-labs/leapbundle/internal/graph"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// DefaultDebounce is how long a session waits for more change
// notifications before rebuilding.
const DefaultDebounce = 100 * time.Millisecond

// Builder is the graph engine a session drives.
type Builder interface {
	Build(ctx context.Context) (*graph.Graph, error)
	Rebuild(ctx context.Context, changed []string) (*engine.Update, error)
	Graph() *graph.Graph
}

// Renderer turns a built graph into an artifact.
type Renderer interface {
	Render(g *graph.Graph) (*bundle.Artifact, error)
}

// SessionConfig holds session configuration.
type SessionConfig struct {
	// Debounce defaults to DefaultDebounce. A negative value rebuilds on
	// every notification.
	Debounce time.Duration
	// HotOnly replaces reload requests with hotRejected messages.
	HotOnly bool
	// OnRebuild is called after every rebuild attempt (optional).
	OnRebuild func(RebuildResult)
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// RebuildResult describes one rebuild attempt.
type RebuildResult struct {
	Paths    []string
	Update   *engine.Update
	Messages []Message
	Err      error
	Duration time.Duration
	// Discarded is set when the session was cancelled while rebuilding.
	Discarded bool
}

// Stats summarizes a session.
type Stats struct {
	State         State         `json:"state"`
	Hash          string        `json:"hash,omitempty"`
	Builds        int           `json:"builds"`
	Rebuilds      int           `json:"rebuilds"`
	Failures      int           `json:"failures"`
	Notifications int           `json:"notifications"`
	Clients       int           `json:"clients"`
	LastDuration  time.Duration `json:"last_duration_ns"`
	LastError     string        `json:"last_error,omitempty"`
}

// Session owns the current artifact and turns file change notifications
// into rebuilds and client messages.
type Session struct {
	builder  Builder
	renderer Renderer
	cfg      SessionConfig
	logger   *slog.Logger
	notifier *notifier.Notifier[Message]

	state    stateVar
	artifact atomic.Pointer[bundle.Artifact]
	failure  atomic.Pointer[Message]
	seq      atomic.Uint64

	// trigger has a single slot: notifications arriving during a rebuild
	// produce at most one follow-up rebuild.
	trigger chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stats   Stats
}

// NewSession creates a session. Call Build once, then Run.
func NewSession(b Builder, r Renderer, cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Session{
		builder:  b,
		renderer: r,
		cfg:      cfg,
		logger:   cfg.Logger,
		notifier: notifier.New[Message](),
		trigger:  make(chan struct{}, 1),
		pending:  make(map[string]struct{}),
	}
}

// Artifact returns the last successfully rendered artifact, or nil.
func (s *Session) Artifact() *bundle.Artifact {
	return s.artifact.Load()
}

// Failure returns the buildError message of the latest build when it
// failed, or nil.
func (s *Session) Failure() *Message {
	return s.failure.Load()
}

// State returns the current state.
func (s *Session) State() State {
	return s.state.load()
}

func (s *Session) setState(st State) {
	s.state.store(st)
}

// Subscribe registers a client for broadcast messages.
func (s *Session) Subscribe() chan Message {
	return s.notifier.Subscribe()
}

// Unsubscribe removes a client.
func (s *Session) Unsubscribe(ch chan Message) {
	s.notifier.Unsubscribe(ch)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()
	st.State = s.State()
	st.Clients = s.notifier.Len()
	if a := s.Artifact(); a != nil {
		st.Hash = a.Hash
	}
	return st
}

// Build runs the initial build. A failed build leaves the session without
// an artifact and records the failure for clients that connect later.
func (s *Session) Build(ctx context.Context) error {
	start := time.Now()
	g, err := s.builder.Build(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var art *bundle.Artifact
	if err == nil {
		art, err = s.renderer.Render(g)
	}

	s.mu.Lock()
	s.stats.Builds++
	s.stats.LastDuration = time.Since(start)
	s.mu.Unlock()

	if err != nil {
		s.fail(err)
		return err
	}
	s.artifact.Store(art)
	s.failure.Store(nil)
	s.logger.Info("initial build finished", "hash", art.Hash, "modules", len(art.Records), "duration", time.Since(start))
	return nil
}

// Notify records a change to path. Rebuilds start once notifications
// stop arriving for the debounce interval.
func (s *Session) Notify(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[path] = struct{}{}
	s.stats.Notifications++

	if s.cfg.Debounce < 0 {
		s.kick()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, s.kick)
}

func (s *Session) kick() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Session) takePending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.pending))
	for p := range s.pending {
		paths = append(paths, p)
	}
	clear(s.pending)
	sort.Strings(paths)
	return paths
}

// Run processes notifications until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trigger:
			paths := s.takePending()
			if len(paths) == 0 {
				continue
			}
			s.rebuild(ctx, paths)
		}
	}
}

func (s *Session) rebuild(ctx context.Context, paths []string) {
	s.setState(StateRebuilding)
	defer s.setState(StateServing)

	start := time.Now()
	res := RebuildResult{Paths: paths}
	s.logger.Debug("rebuilding", "paths", paths)

	upd, err := s.builder.Rebuild(ctx, paths)
	var art *bundle.Artifact
	if err == nil {
		art, err = s.renderer.Render(s.builder.Graph())
	}
	res.Update = upd
	res.Duration = time.Since(start)

	if ctx.Err() != nil {
		res.Discarded = true
		s.logger.Debug("discarding rebuild after shutdown", "paths", paths)
		s.done(res)
		return
	}

	s.mu.Lock()
	s.stats.Rebuilds++
	s.stats.LastDuration = res.Duration
	s.mu.Unlock()

	if err != nil {
		res.Err = err
		res.Messages = []Message{s.fail(err)}
		s.done(res)
		return
	}

	wasFailing := s.failure.Swap(nil) != nil
	old := s.artifact.Swap(art)
	res.Messages = s.updates(old, art, wasFailing)
	for _, msg := range res.Messages {
		s.notifier.Broadcast(msg)
	}

	s.mu.Lock()
	s.stats.LastError = ""
	s.mu.Unlock()

	s.logger.Info("rebuilt", "hash", art.Hash, "messages", len(res.Messages), "duration", res.Duration)
	s.done(res)
}

func (s *Session) done(res RebuildResult) {
	if s.cfg.OnRebuild != nil {
		s.cfg.OnRebuild(res)
	}
}

// fail records and broadcasts a buildError. The current artifact is kept.
func (s *Session) fail(err error) Message {
	msg := Message{
		Type:        MessageBuildError,
		Seq:         s.seq.Add(1),
		Reason:      err.Error(),
		Diagnostics: s.diagnostics(err),
	}
	s.failure.Store(&msg)

	s.mu.Lock()
	s.stats.Failures++
	s.stats.LastError = err.Error()
	s.mu.Unlock()

	s.logger.Warn("build failed", "errors", len(msg.Diagnostics), "error", err)
	s.notifier.Broadcast(msg)
	return msg
}

// diagnostics collects the error diagnostics behind err. Module failures
// report the diagnostics recorded on the failed module.
func (s *Session) diagnostics(err error) []core.Diagnostic {
	var be *engine.BuildError
	if !errors.As(err, &be) {
		return []core.Diagnostic{core.Errorf("build", "%v", err)}
	}

	g := s.builder.Graph()
	var diags []core.Diagnostic
	for _, me := range be.Errors {
		found := false
		if g != nil {
			if m, ok := g.Get(me.Path); ok {
				for _, d := range m.Diagnostics {
					if d.IsError() {
						diags = append(diags, d)
						found = true
					}
				}
			}
		}
		if !found {
			d := core.Errorf(string(me.Kind), "%v", me.Err)
			d.Path = me.Path
			diags = append(diags, d)
		}
	}
	return diags
}

// updates computes the messages that move a client from old to cur.
func (s *Session) updates(old, cur *bundle.Artifact, wasFailing bool) []Message {
	var msgs []Message
	var reason string

	if old == nil {
		reason = "first successful build"
	} else {
		if old.Entry != cur.Entry || !sameRecord(old.Records[old.Entry], cur.Records[cur.Entry]) {
			reason = "entry module changed"
		}

		var added, changed []string
		for id, rec := range cur.Records {
			prev, ok := old.Records[id]
			switch {
			case !ok:
				added = append(added, id)
			case !sameRecord(prev, rec):
				changed = append(changed, id)
			}
		}
		for id := range old.Records {
			if _, ok := cur.Records[id]; !ok && reason == "" {
				reason = "modules removed"
			}
		}
		sort.Strings(added)
		sort.Strings(changed)

		if reason == "" || s.cfg.HotOnly {
			// Added modules are registered before the changed modules
			// that require them.
			for _, id := range append(added, changed...) {
				content, err := bundle.RecordJSON(cur.Records[id])
				if err != nil {
					s.logger.Error("failed to encode module record", "module", id, "error", err)
					reason = "failed to encode module update"
					continue
				}
				msgs = append(msgs, Message{
					Type:    MessageModuleUpdate,
					Seq:     s.seq.Add(1),
					Path:    id,
					Content: string(content),
				})
			}
		}
	}

	if reason != "" {
		typ := MessageReloadRequired
		if s.cfg.HotOnly {
			typ = MessageHotRejected
		}
		msgs = append(msgs, Message{Type: typ, Seq: s.seq.Add(1), Reason: reason, Hash: cur.Hash})
	}
	if len(msgs) > 0 || wasFailing {
		msgs = append(msgs, Message{Type: MessageBuildOK, Seq: s.seq.Add(1), Hash: cur.Hash})
	}
	return msgs
}

func sameRecord(a, b *bundle.Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Code == b.Code && maps.Equal(a.Deps, b.Deps)
}
