package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
)

func TestObserverCounters(t *testing.T) {
	m := New()

	m.Navigation(navigation.Decision{Verdict: navigation.Allow, Rule: navigation.RuleSchemePolicy})
	m.Navigation(navigation.Decision{
		Verdict:   navigation.Intercept,
		Rule:      navigation.RuleIdentityHost,
		Intent:    &navigation.Intent{Action: navigation.ActionView},
		LaunchErr: errors.New("no opener"),
	})
	m.Activation(deeplink.Outcome{Kind: deeplink.KindAuthRedirect, Result: deeplink.ResultResolved})
	m.Activation(deeplink.Outcome{Result: deeplink.ResultIgnored})
	m.Capability(capability.Event{Kind: capability.KindFileCapture, Result: capability.ResultDelivered})
	m.PromptsChanged(2)
	m.JournalDropped.Inc()

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"allow", testutil.ToFloat64(m.Navigations.WithLabelValues("allow", navigation.RuleSchemePolicy)), 1},
		{"intercept", testutil.ToFloat64(m.Navigations.WithLabelValues("intercept", navigation.RuleIdentityHost)), 1},
		{"launch failure", testutil.ToFloat64(m.LaunchFailures.WithLabelValues("VIEW")), 1},
		{"auth resolved", testutil.ToFloat64(m.Activations.WithLabelValues("auth_redirect", "resolved")), 1},
		{"ignored", testutil.ToFloat64(m.Activations.WithLabelValues("none", "ignored")), 1},
		{"delivered", testutil.ToFloat64(m.CapabilityEvents.WithLabelValues("file_capture", "delivered")), 1},
		{"prompts", testutil.ToFloat64(m.PromptsPending), 2},
		{"journal dropped", testutil.ToFloat64(m.JournalDropped), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v; want %v", c.name, c.got, c.want)
		}
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", m.Handler())

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/state", "200")); got != 3 {
		t.Fatalf("requests = %v; want 3", got)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "nearil_http_requests_total") {
		t.Fatal("exposition missing request counter")
	}
}
