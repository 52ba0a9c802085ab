package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AppHost != "nearil.com" {
		t.Fatalf("AppHost = %q; want %q", cfg.AppHost, "nearil.com")
	}
	if got, want := cfg.StartURL(), "https://nearil.com/"; got != want {
		t.Fatalf("StartURL() = %q; want %q", got, want)
	}
	if got, want := cfg.CDPURL(), "http://127.0.0.1:9230"; got != want {
		t.Fatalf("CDPURL() = %q; want %q", got, want)
	}
	if !reflect.DeepEqual(cfg.IdentityHosts, defaultIdentityHosts) {
		t.Fatalf("IdentityHosts = %v; want %v", cfg.IdentityHosts, defaultIdentityHosts)
	}
	if cfg.ExternalizeForeignHosts {
		t.Fatal("ExternalizeForeignHosts = true; want false by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEARIL_APP_HOST", "Staging.Nearil.com")
	t.Setenv("NEARIL_AUTH_SUCCESS_PATH", "auth_done")
	t.Setenv("NEARIL_IDENTITY_HOSTS", " accounts.google.com, ,Okta.com ")
	t.Setenv("NEARIL_PLATFORM_LEVEL", "27")
	t.Setenv("NEARIL_AUTO_GRANT", "true")
	t.Setenv("CHROMIUM_CDP_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AppHost != "staging.nearil.com" {
		t.Fatalf("AppHost = %q; want lower-cased host", cfg.AppHost)
	}
	if cfg.AuthSuccessPath != "/auth_done" {
		t.Fatalf("AuthSuccessPath = %q; want %q", cfg.AuthSuccessPath, "/auth_done")
	}
	if want := []string{"accounts.google.com", "okta.com"}; !reflect.DeepEqual(cfg.IdentityHosts, want) {
		t.Fatalf("IdentityHosts = %v; want %v", cfg.IdentityHosts, want)
	}
	if cfg.PlatformLevel != 27 {
		t.Fatalf("PlatformLevel = %d; want 27", cfg.PlatformLevel)
	}
	if !cfg.AutoGrant {
		t.Fatal("AutoGrant = false; want true")
	}
	if cfg.CDPPort != 9230 {
		t.Fatalf("CDPPort = %d; want default for invalid value", cfg.CDPPort)
	}
}

func TestLoadNavigationRulesMissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadNavigationRules(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadNavigationRules() error = %v", err)
	}
	if !reflect.DeepEqual(rules, DefaultNavigationRules()) {
		t.Fatalf("rules = %+v; want defaults", rules)
	}
}

func TestLoadNavigationRulesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navigation.yaml")
	body := `
share_title: Send with
messaging_schemes:
  - scheme: Viber
    param: text
    title: Share via Viber
identity_hosts:
  - Login.Example.org
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadNavigationRules(path)
	if err != nil {
		t.Fatalf("LoadNavigationRules() error = %v", err)
	}
	if rules.ShareTitle != "Send with" {
		t.Fatalf("ShareTitle = %q; want %q", rules.ShareTitle, "Send with")
	}
	if len(rules.MessagingSchemes) != 1 || rules.MessagingSchemes[0].Scheme != "viber" {
		t.Fatalf("MessagingSchemes = %+v; want single viber entry", rules.MessagingSchemes)
	}
	if len(rules.ShareEndpoints) != len(DefaultNavigationRules().ShareEndpoints) {
		t.Fatalf("ShareEndpoints replaced; want defaults kept")
	}
	if want := []string{"login.example.org"}; !reflect.DeepEqual(rules.IdentityHosts, want) {
		t.Fatalf("IdentityHosts = %v; want %v", rules.IdentityHosts, want)
	}
}

func TestLoadNavigationRulesValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navigation.yaml")
	body := `
share_endpoints:
  - name: broken
    host: example.com
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	_, err := LoadNavigationRules(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "share_endpoints[0]") {
		t.Fatalf("error = %q; want to name share_endpoints[0]", err)
	}
}
