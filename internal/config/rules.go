package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ShareEndpoint describes a social "share" URL that is rewritten into an OS
// share action instead of being opened.
type ShareEndpoint struct {
	Name         string   `yaml:"name"`
	Host         string   `yaml:"host"`
	PathContains string   `yaml:"path_contains"`
	Params       []string `yaml:"params"`
}

// MessagingScheme describes a messaging app's custom URI scheme whose text
// payload is rewritten into an OS share action.
type MessagingScheme struct {
	Scheme string `yaml:"scheme"`
	Param  string `yaml:"param"`
	Title  string `yaml:"title"`
}

// NavigationRules is the top-level YAML configuration for the navigation
// dispatcher's data-driven rules.
type NavigationRules struct {
	ShareTitle       string            `yaml:"share_title"`
	ShareEndpoints   []ShareEndpoint   `yaml:"share_endpoints"`
	MessagingSchemes []MessagingScheme `yaml:"messaging_schemes"`
	IdentityHosts    []string          `yaml:"identity_hosts,omitempty"`
}

// DefaultNavigationRules returns the built-in share and messaging rules.
func DefaultNavigationRules() *NavigationRules {
	return &NavigationRules{
		ShareTitle: "Share via",
		ShareEndpoints: []ShareEndpoint{
			{Name: "facebook", Host: "facebook.com", PathContains: "/sharer", Params: []string{"u"}},
			{Name: "twitter", Host: "twitter.com", PathContains: "/intent/tweet", Params: []string{"text", "url"}},
			{Name: "x", Host: "x.com", PathContains: "/intent/tweet", Params: []string{"text", "url"}},
			{Name: "twitter-share", Host: "twitter.com", PathContains: "/share", Params: []string{"text", "url"}},
			{Name: "linkedin", Host: "linkedin.com", PathContains: "/sharing/share-offsite", Params: []string{"url"}},
		},
		MessagingSchemes: []MessagingScheme{
			{Scheme: "whatsapp", Param: "text", Title: "Share via WhatsApp"},
			{Scheme: "tg", Param: "text", Title: "Share via Telegram"},
		},
	}
}

// LoadNavigationRules reads navigation rules from a YAML file. A missing file
// yields the built-in defaults; sections left empty in the file keep their
// defaults too.
func LoadNavigationRules(path string) (*NavigationRules, error) {
	rules := DefaultNavigationRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rules, nil
		}
		return nil, fmt.Errorf("navigation rules: %w", err)
	}

	var file NavigationRules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("navigation rules: %w", err)
	}

	for i, e := range file.ShareEndpoints {
		if e.Host == "" || e.PathContains == "" {
			return nil, fmt.Errorf("navigation rules: share_endpoints[%d] requires host and path_contains", i)
		}
		if len(e.Params) == 0 {
			return nil, fmt.Errorf("navigation rules: share_endpoints[%d] (%s) requires params", i, e.Name)
		}
		file.ShareEndpoints[i].Host = strings.ToLower(e.Host)
	}
	for i, m := range file.MessagingSchemes {
		if m.Scheme == "" || m.Param == "" {
			return nil, fmt.Errorf("navigation rules: messaging_schemes[%d] requires scheme and param", i)
		}
		file.MessagingSchemes[i].Scheme = strings.ToLower(m.Scheme)
	}

	if file.ShareTitle != "" {
		rules.ShareTitle = file.ShareTitle
	}
	if len(file.ShareEndpoints) > 0 {
		rules.ShareEndpoints = file.ShareEndpoints
	}
	if len(file.MessagingSchemes) > 0 {
		rules.MessagingSchemes = file.MessagingSchemes
	}
	for _, h := range file.IdentityHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			rules.IdentityHosts = append(rules.IdentityHosts, h)
		}
	}
	return rules, nil
}
