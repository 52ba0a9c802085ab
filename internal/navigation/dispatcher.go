package navigation

import (
	"log/slog"
)

// Verdict tells the browser host whether to render a navigation.
type Verdict int

const (
	// Allow lets the browser render the URL.
	Allow Verdict = iota
	// Intercept means the dispatcher fully handled the navigation and the
	// browser must not render it.
	Intercept
)

func (v Verdict) String() string {
	if v == Intercept {
		return "intercept"
	}
	return "allow"
}

// Decision is the dispatcher's answer for one navigation attempt.
type Decision struct {
	Verdict Verdict `json:"-"`
	Rule    string  `json:"rule"`
	URL     string  `json:"url"`
	// Intent is nil for allowed navigations and for intercepted ones that
	// were dropped because nothing can handle them.
	Intent *Intent `json:"intent,omitempty"`
	// LaunchErr is set by Dispatch when the external action failed.
	LaunchErr error `json:"-"`
}

// Intercepted reports whether the browser must not render the URL.
func (d Decision) Intercepted() bool {
	return d.Verdict == Intercept
}

// Rule is one entry of the ordered decision table.
type Rule struct {
	Name   string
	Match  func(Request) bool
	Decide func(Request) Decision
}

// Dispatcher decides, for every outbound URL, whether the browser renders it
// or an external handler takes over.
type Dispatcher struct {
	rules    []Rule
	launcher Launcher
}

// NewDispatcher builds a dispatcher with the standard rule order for policy.
func NewDispatcher(policy Policy, launcher Launcher) *Dispatcher {
	d := &Dispatcher{launcher: launcher}
	d.rules = buildRules(policy, d.canResolve)
	return d
}

// NewDispatcherWithRules builds a dispatcher over an explicit rule table.
func NewDispatcherWithRules(rules []Rule, launcher Launcher) *Dispatcher {
	return &Dispatcher{rules: rules, launcher: launcher}
}

// Rules returns rule names in evaluation order.
func (d *Dispatcher) Rules() []string {
	names := make([]string, 0, len(d.rules))
	for _, r := range d.rules {
		names = append(names, r.Name)
	}
	return names
}

// Decide evaluates the rule table without performing any external action.
func (d *Dispatcher) Decide(req Request) Decision {
	for _, r := range d.rules {
		if !r.Match(req) {
			continue
		}
		dec := r.Decide(req)
		dec.Rule = r.Name
		dec.URL = req.String()
		return dec
	}
	return Decision{Verdict: Allow, Rule: ruleDefault, URL: req.String()}
}

// DecideURL parses raw and decides. Unparseable URLs are allowed so the
// browser can report its own error page.
func (d *Dispatcher) DecideURL(raw string) Decision {
	req, err := ParseRequest(raw)
	if err != nil {
		slog.Warn("navigation url unparseable, allowing", "url", raw, "error", err)
		return Decision{Verdict: Allow, Rule: ruleUnparseable, URL: raw}
	}
	return d.Decide(req)
}

// Dispatch decides and, for intercepted navigations carrying an intent,
// starts exactly one external action. Launch failures are logged and
// swallowed; the user stays on the current page.
func (d *Dispatcher) Dispatch(raw string) Decision {
	dec := d.DecideURL(raw)
	if !dec.Intercepted() {
		slog.Debug("navigation allowed", "rule", dec.Rule, "url", raw)
		return dec
	}
	if dec.Intent == nil {
		slog.Info("navigation dropped, no handler", "rule", dec.Rule, "url", raw)
		return dec
	}
	if d.launcher == nil {
		slog.Warn("navigation intercepted without launcher", "rule", dec.Rule, "intent", dec.Intent.String())
		return dec
	}
	if err := d.launcher.Start(*dec.Intent); err != nil {
		dec.LaunchErr = err
		slog.Warn("external launch failed", "rule", dec.Rule, "intent", dec.Intent.String(), "error", err)
		return dec
	}
	slog.Info("navigation handed off", "rule", dec.Rule, "intent", dec.Intent.String())
	return dec
}

func (d *Dispatcher) canResolve(uri string) bool {
	if d.launcher == nil {
		return false
	}
	return d.launcher.CanResolve(uri)
}
