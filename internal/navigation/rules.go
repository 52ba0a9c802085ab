package navigation

import (
	"strings"
)

const (
	RuleShareSheet      = "share-sheet"
	RuleMessagingScheme = "messaging-scheme"
	RuleIdentityHost    = "identity-host"
	RuleAppLink         = "app-link"
	RuleAppScheme       = "app-scheme"
	RuleForeignHost     = "foreign-host"
	RuleSchemePolicy    = "scheme-policy"

	ruleDefault     = "default"
	ruleUnparseable = "unparseable"
)

// ShareEndpoint is a social share URL rewritten into a share intent.
type ShareEndpoint struct {
	Host         string
	PathContains string
	Params       []string
}

// MessagingScheme is a messaging app's URI scheme rewritten into a share intent.
type MessagingScheme struct {
	Scheme string
	Param  string
	Title  string
}

// Policy is the data the standard rule table is built from.
type Policy struct {
	AppHost         string
	CustomScheme    string
	AuthSuccessPath string
	IdentityHosts   []string

	ShareTitle       string
	ShareEndpoints   []ShareEndpoint
	MessagingSchemes []MessagingScheme

	// ExternalizeForeignHosts opens http(s) URLs outside the app domain in
	// the system browser instead of rendering them.
	ExternalizeForeignHosts bool
}

// buildRules returns the decision table in its fixed priority order.
func buildRules(p Policy, canResolve func(string) bool) []Rule {
	rules := []Rule{
		shareSheetRule(p),
		messagingSchemeRule(p),
		identityHostRule(p),
		appLinkRule(p),
		appSchemeRule(p),
	}
	if p.ExternalizeForeignHosts {
		rules = append(rules, foreignHostRule(p))
	}
	return append(rules, schemePolicyRule(canResolve))
}

func shareSheetRule(p Policy) Rule {
	endpointFor := func(req Request) (ShareEndpoint, bool) {
		if !req.IsWeb() {
			return ShareEndpoint{}, false
		}
		for _, e := range p.ShareEndpoints {
			if HostMatches(req.Host, e.Host) && strings.Contains(req.Path, e.PathContains) {
				return e, true
			}
		}
		return ShareEndpoint{}, false
	}
	return Rule{
		Name: RuleShareSheet,
		Match: func(req Request) bool {
			_, ok := endpointFor(req)
			return ok
		},
		Decide: func(req Request) Decision {
			e, _ := endpointFor(req)
			var parts []string
			for _, name := range e.Params {
				if v := strings.TrimSpace(req.Query.Get(name)); v != "" {
					parts = append(parts, v)
				}
			}
			if len(parts) == 0 {
				return Decision{Verdict: Intercept, Intent: ViewIntent(req.String())}
			}
			return Decision{Verdict: Intercept, Intent: ShareIntent(strings.Join(parts, " "), p.ShareTitle)}
		},
	}
}

func messagingSchemeRule(p Policy) Rule {
	schemeFor := func(req Request) (MessagingScheme, bool) {
		for _, m := range p.MessagingSchemes {
			if req.Scheme == m.Scheme {
				return m, true
			}
		}
		return MessagingScheme{}, false
	}
	return Rule{
		Name: RuleMessagingScheme,
		Match: func(req Request) bool {
			_, ok := schemeFor(req)
			return ok
		},
		Decide: func(req Request) Decision {
			m, _ := schemeFor(req)
			text := req.Query.Get(m.Param)
			if strings.TrimSpace(text) == "" {
				return Decision{Verdict: Intercept, Intent: ViewIntent(req.String())}
			}
			title := m.Title
			if title == "" {
				title = p.ShareTitle
			}
			return Decision{Verdict: Intercept, Intent: ShareIntent(text, title)}
		},
	}
}

func identityHostRule(p Policy) Rule {
	return Rule{
		Name: RuleIdentityHost,
		Match: func(req Request) bool {
			for _, h := range p.IdentityHosts {
				if HostMatches(req.Host, h) {
					return true
				}
			}
			return false
		},
		Decide: func(req Request) Decision {
			return Decision{Verdict: Intercept, Intent: ViewIntent(req.String())}
		},
	}
}

func appLinkRule(p Policy) Rule {
	return Rule{
		Name: RuleAppLink,
		Match: func(req Request) bool {
			return IsAppLink(req, p.AppHost, p.AuthSuccessPath)
		},
		Decide: func(req Request) Decision {
			return Decision{Verdict: Intercept, Intent: ViewIntent(req.String())}
		},
	}
}

func appSchemeRule(p Policy) Rule {
	return Rule{
		Name: RuleAppScheme,
		Match: func(req Request) bool {
			return p.CustomScheme != "" && req.Scheme == strings.ToLower(p.CustomScheme)
		},
		Decide: func(Request) Decision {
			return Decision{Verdict: Allow}
		},
	}
}

func foreignHostRule(p Policy) Rule {
	return Rule{
		Name: RuleForeignHost,
		Match: func(req Request) bool {
			return req.IsWeb() && !HostMatches(req.Host, p.AppHost)
		},
		Decide: func(req Request) Decision {
			return Decision{Verdict: Intercept, Intent: ViewIntent(req.String())}
		},
	}
}

func schemePolicyRule(canResolve func(string) bool) Rule {
	return Rule{
		Name:  RuleSchemePolicy,
		Match: func(Request) bool { return true },
		Decide: func(req Request) Decision {
			if req.IsWeb() {
				return Decision{Verdict: Allow}
			}
			if canResolve(req.String()) {
				return Decision{Verdict: Intercept, Intent: ViewIntent(req.String())}
			}
			return Decision{Verdict: Intercept}
		},
	}
}

// IsAppLink reports whether req is the verified auth-success app link:
// https on the canonical host with the auth-success path prefix.
func IsAppLink(req Request, appHost, authSuccessPath string) bool {
	return req.Scheme == "https" &&
		appHost != "" &&
		req.Host == strings.ToLower(appHost) &&
		authSuccessPath != "" &&
		strings.HasPrefix(req.Path, authSuccessPath)
}

// Owns reports whether the OS would deliver raw back to this application:
// the custom scheme or the verified app link.
func (p Policy) Owns(raw string) bool {
	req, err := ParseRequest(raw)
	if err != nil {
		return false
	}
	if p.CustomScheme != "" && req.Scheme == strings.ToLower(p.CustomScheme) {
		return true
	}
	return IsAppLink(req, p.AppHost, p.AuthSuccessPath)
}
