// Package shell owns the activity-scoped state of the application shell and
// serialises every operation on it through a single Loop.
package shell

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
)

// Observer is told about every decision the shell makes.
type Observer interface {
	Navigation(d navigation.Decision)
	Activation(o deeplink.Outcome)
	Capability(e capability.Event)
}

// Options wire the shell's components.
type Options struct {
	Dispatcher *navigation.Dispatcher
	Reconciler deeplink.Config
	Bridge     capability.Config
	Native     capability.Options
	Observers  []Observer
}

// State is a point-in-time view of the shell for the control API.
type State struct {
	Reconciler   deeplink.State      `json:"reconciler"`
	Pending      string              `json:"pending_deep_link,omitempty"`
	AuthInFlight bool                `json:"auth_in_flight"`
	HasBrowser   bool                `json:"has_browser"`
	Capability   capability.Snapshot `json:"capability"`
	Rules        []string            `json:"navigation_rules"`
}

// Shell is the context object holding the reconciler and bridge. A new Shell
// is created for each browser host, which resets all pending state.
type Shell struct {
	loop       *Loop
	dispatcher *navigation.Dispatcher
	reconciler *deeplink.Reconciler
	bridge     *capability.Bridge
	observers  []Observer

	// inbox holds enqueued activations until the single drainer posts them.
	inboxMu  sync.Mutex
	inbox    []deeplink.ActivationEvent
	draining bool
}

// New builds a shell whose components run on loop.
func New(loop *Loop, opts Options) *Shell {
	s := &Shell{
		loop:       loop,
		dispatcher: opts.Dispatcher,
		reconciler: deeplink.NewReconciler(opts.Reconciler),
		observers:  opts.Observers,
	}
	native := opts.Native
	userObserver := native.Observer
	native.Observer = func(ev capability.Event) {
		if userObserver != nil {
			userObserver(ev)
		}
		for _, o := range s.observers {
			o.Capability(ev)
		}
	}
	s.bridge = capability.NewBridge(opts.Bridge, native)
	return s
}

// Activate routes an inbound activation event and waits for the outcome.
func (s *Shell) Activate(ctx context.Context, ev deeplink.ActivationEvent) (deeplink.Outcome, error) {
	if strings.TrimSpace(ev.URI) == "" {
		return deeplink.Outcome{}, newError(CodeValidation, "uri is required", nil)
	}
	var out deeplink.Outcome
	err := s.loop.Do(ctx, func() {
		out = s.reconciler.HandleActivation(&ev)
		s.notifyActivation(out)
	})
	return out, err
}

// Enqueue routes an activation event without waiting. It is safe to call
// from code already running on the loop. Events reach the loop in the order
// they were enqueued.
func (s *Shell) Enqueue(ev deeplink.ActivationEvent) {
	s.inboxMu.Lock()
	s.inbox = append(s.inbox, ev)
	start := !s.draining
	s.draining = true
	s.inboxMu.Unlock()
	if start {
		go s.drainInbox()
	}
}

func (s *Shell) drainInbox() {
	for {
		s.inboxMu.Lock()
		if len(s.inbox) == 0 {
			s.draining = false
			s.inboxMu.Unlock()
			return
		}
		ev := s.inbox[0]
		s.inbox = s.inbox[1:]
		s.inboxMu.Unlock()

		if err := s.loop.Post(func() {
			s.notifyActivation(s.reconciler.HandleActivation(&ev))
		}); err != nil {
			slog.Warn("enqueued activation dropped", "uri", ev.URI, "error", err)
		}
	}
}

// AttachBrowser hands the browser host to the reconciler, which performs
// the first navigation.
func (s *Shell) AttachBrowser(ctx context.Context, b deeplink.Browser) (deeplink.Outcome, error) {
	if b == nil {
		return deeplink.Outcome{}, newError(CodeBrowserUnavailable, "browser host is nil", nil)
	}
	var out deeplink.Outcome
	err := s.loop.Do(ctx, func() {
		out = s.reconciler.AttachBrowser(b)
		s.notifyActivation(out)
	})
	return out, err
}

// Navigate runs the dispatcher for a navigation attempted by the browser host.
func (s *Shell) Navigate(ctx context.Context, rawURL string) (navigation.Decision, error) {
	var dec navigation.Decision
	err := s.loop.Do(ctx, func() {
		dec = s.dispatcher.Dispatch(rawURL)
		for _, o := range s.observers {
			o.Navigation(dec)
		}
	})
	return dec, err
}

// Decide reports what the dispatcher would do with rawURL without acting.
func (s *Shell) Decide(ctx context.Context, rawURL string) (navigation.Decision, error) {
	if strings.TrimSpace(rawURL) == "" {
		return navigation.Decision{}, newError(CodeValidation, "url is required", nil)
	}
	var dec navigation.Decision
	err := s.loop.Do(ctx, func() {
		dec = s.dispatcher.DecideURL(rawURL)
	})
	return dec, err
}

// FileChooser forwards a web file picker request to the bridge.
func (s *Shell) FileChooser(req capability.FileChooserRequest, cb capability.FileCallback) error {
	return s.loop.Post(func() { s.bridge.FileChooser(req, cb) })
}

// MediaRequest forwards a web media permission request to the bridge.
func (s *Shell) MediaRequest(req capability.MediaRequest) error {
	return s.loop.Post(func() { s.bridge.MediaRequest(req) })
}

// PermissionResult delivers a native permission prompt outcome.
func (s *Shell) PermissionResult(res capability.PermissionResult) error {
	return s.loop.Post(func() { s.bridge.OnPermissionResult(res) })
}

// ActivityResult delivers a pick/capture activity outcome.
func (s *Shell) ActivityResult(res capability.ActivityResult) error {
	return s.loop.Post(func() { s.bridge.OnActivityResult(res) })
}

// DetachBrowser resolves every outstanding capability request.
func (s *Shell) DetachBrowser(ctx context.Context) error {
	return s.loop.Do(ctx, s.bridge.Reset)
}

// State returns a snapshot taken on the loop.
func (s *Shell) State(ctx context.Context) (State, error) {
	var st State
	err := s.loop.Do(ctx, func() {
		st = State{
			Reconciler:   s.reconciler.State(),
			Pending:      s.reconciler.Pending(),
			AuthInFlight: s.reconciler.AuthInFlight(),
			HasBrowser:   s.reconciler.HasBrowser(),
			Capability:   s.bridge.Snapshot(),
			Rules:        s.dispatcher.Rules(),
		}
	})
	return st, err
}

func (s *Shell) notifyActivation(out deeplink.Outcome) {
	for _, o := range s.observers {
		o.Activation(out)
	}
}
