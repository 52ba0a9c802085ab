// Package deeplink reconciles inbound activation events with the browser
// host. Authentication callbacks are routed to the session-establishing
// endpoint exactly once; ordinary links are loaded verbatim.
package deeplink

import (
	"log/slog"
	"net/url"
	"strings"
)

// ActionView is the only activation action that carries a routable URI.
const ActionView = "VIEW"

// ActivationEvent is an OS request to bring the application to the
// foreground, possibly carrying a URI.
type ActivationEvent struct {
	Action string `json:"action"`
	URI    string `json:"uri,omitempty"`
}

// Consume clears the URI payload so a redelivered event is not routed twice.
func (e *ActivationEvent) Consume() {
	e.URI = ""
}

// Browser is the part of the browser host the reconciler drives.
type Browser interface {
	Navigate(url string)
}

// State is the reconciler's externally visible state.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingBrowser State = "awaiting_browser"
	StateAuthInFlight    State = "auth_in_flight"
)

// Kind classifies an activation URI.
type Kind string

const (
	KindAuthRedirect Kind = "auth_redirect"
	KindDeepLink     Kind = "deep_link"
)

// Config names the canonical origin and the auth callback shapes.
type Config struct {
	AppHost         string
	CustomScheme    string
	AuthSuccessPath string
	SessionPath     string
	TokenParam      string
	ErrorParam      string
}

// Outcome describes what the reconciler did with one event. It feeds logs,
// metrics and the event stream; the reconciler's behaviour never depends on it.
type Outcome struct {
	Kind       Kind   `json:"kind,omitempty"`
	Result     string `json:"result"`
	URI        string `json:"uri,omitempty"`
	NavigateTo string `json:"navigate_to,omitempty"`
}

const (
	ResultIgnored   = "ignored"
	ResultDuplicate = "duplicate_dropped"
	ResultBuffered  = "buffered"
	ResultResolved  = "resolved"
	ResultLoaded    = "loaded"
	ResultNoBrowser = "dropped_no_browser"
	ResultStartURL  = "start_url"
)

// Reconciler is the deep link / auth state machine. It is not safe for
// concurrent use; the shell drives it from a single loop.
type Reconciler struct {
	cfg     Config
	browser Browser

	// pending holds at most one auth redirect that arrived before the
	// browser existed. It never holds a URI that has been routed.
	pending string
	// authInFlight is set once a token redemption has been requested and
	// is not reset for the lifetime of the reconciler.
	authInFlight bool
}

// NewReconciler returns a reconciler in the Idle state with no browser.
func NewReconciler(cfg Config) *Reconciler {
	if cfg.TokenParam == "" {
		cfg.TokenParam = "auth_token"
	}
	if cfg.ErrorParam == "" {
		cfg.ErrorParam = "error"
	}
	if cfg.SessionPath == "" {
		cfg.SessionPath = "/app/auth_login"
	}
	cfg.AppHost = strings.ToLower(cfg.AppHost)
	cfg.CustomScheme = strings.ToLower(cfg.CustomScheme)
	return &Reconciler{cfg: cfg}
}

// State reports the current state. AuthInFlight takes precedence because a
// buffered redirect cannot coexist with it.
func (r *Reconciler) State() State {
	switch {
	case r.authInFlight:
		return StateAuthInFlight
	case r.pending != "":
		return StateAwaitingBrowser
	default:
		return StateIdle
	}
}

// Pending returns the buffered auth redirect, if any.
func (r *Reconciler) Pending() string {
	return r.pending
}

// AuthInFlight reports whether a token redemption has been requested.
func (r *Reconciler) AuthInFlight() bool {
	return r.authInFlight
}

// HasBrowser reports whether the browser host has been attached.
func (r *Reconciler) HasBrowser() bool {
	return r.browser != nil
}

// StartURL is loaded when the browser attaches with nothing pending.
func (r *Reconciler) StartURL() string {
	return r.origin() + "/"
}

// Classify reports whether uri is an auth redirect or an ordinary link.
func (r *Reconciler) Classify(u *url.URL) Kind {
	scheme := strings.ToLower(u.Scheme)
	if r.cfg.CustomScheme != "" && scheme == r.cfg.CustomScheme {
		return KindAuthRedirect
	}
	if scheme == "https" &&
		strings.ToLower(u.Hostname()) == r.cfg.AppHost &&
		r.cfg.AuthSuccessPath != "" &&
		strings.HasPrefix(u.Path, r.cfg.AuthSuccessPath) {
		return KindAuthRedirect
	}
	return KindDeepLink
}

// HandleActivation routes one activation event. The event's URI is consumed
// whenever it is routed or buffered.
func (r *Reconciler) HandleActivation(ev *ActivationEvent) Outcome {
	if ev == nil || ev.URI == "" {
		return Outcome{Result: ResultIgnored}
	}
	if ev.Action != "" && !strings.EqualFold(ev.Action, ActionView) {
		slog.Debug("activation ignored, not a view action", "action", ev.Action)
		return Outcome{Result: ResultIgnored, URI: ev.URI}
	}

	raw := ev.URI
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		slog.Warn("activation uri unparseable, ignoring", "uri", raw, "error", err)
		ev.Consume()
		return Outcome{Result: ResultIgnored, URI: raw}
	}

	if r.Classify(u) == KindDeepLink {
		return r.routeDeepLink(ev, raw)
	}

	out := Outcome{Kind: KindAuthRedirect, URI: raw}
	if r.authInFlight {
		slog.Warn("auth redirect dropped, token exchange already in flight", "uri", raw)
		ev.Consume()
		out.Result = ResultDuplicate
		return out
	}

	ev.Consume()
	if r.browser == nil {
		if r.pending != "" {
			slog.Info("pending auth redirect replaced", "previous", r.pending, "uri", raw)
		}
		r.pending = raw
		slog.Info("auth redirect buffered until browser is ready", "uri", raw)
		out.Result = ResultBuffered
		return out
	}

	out.Result = ResultResolved
	out.NavigateTo = r.resolveAuth(u)
	return out
}

func (r *Reconciler) routeDeepLink(ev *ActivationEvent, raw string) Outcome {
	out := Outcome{Kind: KindDeepLink, URI: raw}
	if r.browser == nil {
		slog.Warn("deep link dropped, browser not ready", "uri", raw)
		out.Result = ResultNoBrowser
		return out
	}
	ev.Consume()
	slog.Info("deep link loaded", "uri", raw)
	r.browser.Navigate(raw)
	out.Result = ResultLoaded
	out.NavigateTo = raw
	return out
}

// AttachBrowser records that the browser host exists and performs its first
// navigation: the buffered auth redirect if there is one, else the start URL.
func (r *Reconciler) AttachBrowser(b Browser) Outcome {
	r.browser = b

	if r.pending == "" {
		start := r.StartURL()
		slog.Info("browser ready, loading start url", "url", start)
		b.Navigate(start)
		return Outcome{Result: ResultStartURL, NavigateTo: start}
	}

	raw := r.pending
	r.pending = ""
	u, err := url.Parse(raw)
	if err != nil {
		// Only parseable URIs are ever buffered.
		b.Navigate(r.StartURL())
		return Outcome{Kind: KindAuthRedirect, Result: ResultStartURL, URI: raw, NavigateTo: r.StartURL()}
	}
	slog.Info("browser ready, resolving buffered auth redirect", "uri", raw)
	return Outcome{Kind: KindAuthRedirect, Result: ResultResolved, URI: raw, NavigateTo: r.resolveAuth(u)}
}

// resolveAuth turns an auth callback into exactly one navigation and returns
// the navigated URL.
func (r *Reconciler) resolveAuth(u *url.URL) string {
	q := u.Query()
	token := q.Get(r.cfg.TokenParam)
	errCode := q.Get(r.cfg.ErrorParam)

	var target string
	switch {
	case token != "":
		r.authInFlight = true
		target = r.SessionURL(token)
		slog.Info("auth callback carries token, establishing session")
	case errCode != "":
		target = r.StartURL()
		slog.Info("auth callback reported failure", "error", errCode, "message", q.Get("message"))
	default:
		target = r.StartURL()
		slog.Warn("malformed auth callback, neither token nor error", "uri", u.String())
	}
	r.browser.Navigate(target)
	return target
}

// SessionURL is the session-establishing endpoint for token.
func (r *Reconciler) SessionURL(token string) string {
	return r.origin() + r.cfg.SessionPath + "?token=" + url.QueryEscape(token)
}

func (r *Reconciler) origin() string {
	return "https://" + r.cfg.AppHost
}
