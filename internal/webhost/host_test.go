package webhost

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
)

type fakeShell struct {
	mu        sync.Mutex
	decisions map[string]navigation.Decision
	navigated []string
	enqueued  []deeplink.ActivationEvent
	media     []capability.MediaRequest
	mediaErr  error
}

func (f *fakeShell) Navigate(_ context.Context, raw string) (navigation.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, raw)
	return f.decisions[raw], nil
}

func (f *fakeShell) Enqueue(ev deeplink.ActivationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, ev)
}

func (f *fakeShell) FileChooser(capability.FileChooserRequest, capability.FileCallback) error {
	return nil
}

func (f *fakeShell) MediaRequest(req capability.MediaRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, req)
	return f.mediaErr
}

func TestGateScriptWiring(t *testing.T) {
	for _, want := range []string{`"nearilBridge"`, `"__nearilMediaResolve"`, "getUserMedia", `"video-capture"`, `"audio-capture"`, `a[href]`} {
		if !strings.Contains(gateScript, want) {
			t.Errorf("gate script missing %s", want)
		}
	}
	if got := resolveMediaExpr("7", true); got != `window["__nearilMediaResolve"] && window["__nearilMediaResolve"]("7", true)` {
		t.Fatalf("resolveMediaExpr() = %s", got)
	}
}

func TestChooserRequest(t *testing.T) {
	req := chooserRequest(inputAttrs{Accept: "image/*, .heic,", Capture: true}, page.FileChooserOpenedModeSelectSingle)
	want := capability.FileChooserRequest{Capture: true, AcceptTypes: []string{"image/*", ".heic"}}
	if !reflect.DeepEqual(req, want) {
		t.Fatalf("chooserRequest() = %+v; want %+v", req, want)
	}
	if req := chooserRequest(inputAttrs{}, page.FileChooserOpenedModeSelectMultiple); !req.Multiple || req.Capture {
		t.Fatalf("chooserRequest(multiple) = %+v", req)
	}
}

func TestLocalPaths(t *testing.T) {
	got := localPaths([]string{"file:///tmp/a.jpg", "/tmp/b.png", "content://media/1"})
	if want := []string{"/tmp/a.jpg", "/tmp/b.png"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("localPaths() = %v; want %v", got, want)
	}
}

func TestParseBinding(t *testing.T) {
	msg, err := parseBinding(`{"type":"media","id":"3","resources":["video-capture"]}`)
	if err != nil {
		t.Fatalf("parseBinding() error = %v", err)
	}
	if msg.Type != "media" || msg.ID != "3" || !reflect.DeepEqual(msg.Resources, []string{"video-capture"}) {
		t.Fatalf("parseBinding() = %+v", msg)
	}
	if _, err := parseBinding("not json"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMediaRequestResolvesOnce(t *testing.T) {
	type call struct {
		granted []capability.Resource
		ok      bool
	}
	calls := make(chan call, 4)
	req := newMediaRequest("1", []capability.Resource{capability.ResourceVideoCapture}, func(g []capability.Resource, ok bool) {
		calls <- call{g, ok}
	})

	req.Grant(req.Resources())
	req.Deny()
	req.Grant(nil)

	select {
	case c := <-calls:
		if !c.ok || !reflect.DeepEqual(c.granted, []capability.Resource{capability.ResourceVideoCapture}) {
			t.Fatalf("first resolution = %+v; want grant", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("media request never resolved")
	}
	select {
	case c := <-calls:
		t.Fatalf("second resolution %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPermissionName(t *testing.T) {
	if permissionName(capability.ResourceVideoCapture) != "camera" ||
		permissionName(capability.ResourceAudioCapture) != "microphone" ||
		permissionName("midi") != "" {
		t.Fatal("unexpected permission mapping")
	}
}

func TestMainFrameTracking(t *testing.T) {
	h := New(Config{}, &fakeShell{})
	h.onEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "main"}})
	h.onEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "child", ParentID: "main"}})
	if got := h.MainFrame(); got != "main" {
		t.Fatalf("MainFrame() = %q; want main", got)
	}
}

func TestLinkClickRouting(t *testing.T) {
	sh := &fakeShell{decisions: map[string]navigation.Decision{
		"whatsapp://send?text=hi":  {Verdict: navigation.Intercept, Rule: navigation.RuleMessagingScheme},
		"nearil://cb?auth_token=t": {Verdict: navigation.Allow, Rule: navigation.RuleAppScheme},
	}}
	h := New(Config{}, sh)

	h.onLinkClick("whatsapp://send?text=hi")
	h.onLinkClick("nearil://cb?auth_token=t")

	want := []deeplink.ActivationEvent{{Action: deeplink.ActionView, URI: "nearil://cb?auth_token=t"}}
	if !reflect.DeepEqual(sh.enqueued, want) {
		t.Fatalf("enqueued = %v; want %v", sh.enqueued, want)
	}
	if len(sh.navigated) != 2 {
		t.Fatalf("decisions asked = %v", sh.navigated)
	}
}

func TestMediaBindingReachesShell(t *testing.T) {
	sh := &fakeShell{}
	h := New(Config{}, sh)
	msg := bindingMessage{Type: "media", ID: "9", Resources: []string{"audio-capture"}}

	h.dispatchBinding(0, msg)

	if len(sh.media) != 1 {
		t.Fatalf("media requests = %d; want 1", len(sh.media))
	}
	if got := sh.media[0].Resources(); !reflect.DeepEqual(got, []capability.Resource{capability.ResourceAudioCapture}) {
		t.Fatalf("resources = %v", got)
	}
}

func (f *fakeShell) asked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigated...)
}

func TestPopupFollowedInMainPage(t *testing.T) {
	h := New(Config{}, &fakeShell{})
	h.targetID = "main"
	loaded := make(chan string, 1)
	closed := make(chan target.ID, 1)
	h.load = func(raw string) { loaded <- raw }
	h.closeTarget = func(id target.ID) { closed <- id }

	popup := &target.Info{TargetID: "pop", Type: "page", OpenerID: "main", URL: "about:blank"}
	h.onBrowserEvent(&target.EventTargetCreated{TargetInfo: popup})

	sharer := "https://www.facebook.com/sharer/sharer.php?u=https%3A%2F%2Fnearil.com"
	h.onBrowserEvent(&target.EventTargetInfoChanged{TargetInfo: &target.Info{TargetID: "pop", Type: "page", OpenerID: "main", URL: sharer}})

	select {
	case id := <-closed:
		if id != "pop" {
			t.Fatalf("closed %q; want pop", id)
		}
	case <-time.After(time.Second):
		t.Fatal("popup was not closed")
	}
	select {
	case got := <-loaded:
		if got != sharer {
			t.Fatalf("main page loaded %q; want %q", got, sharer)
		}
	case <-time.After(time.Second):
		t.Fatal("popup URL was not followed in the main page")
	}
}

func TestClaimPopup(t *testing.T) {
	h := New(Config{}, &fakeShell{})
	h.targetID = "main"

	tests := []struct {
		name string
		info *target.Info
		want bool
	}{
		{"blank popup", &target.Info{TargetID: "a", Type: "page", OpenerID: "main", URL: "about:blank"}, false},
		{"unrelated page", &target.Info{TargetID: "b", Type: "page", URL: "https://example.com"}, false},
		{"worker", &target.Info{TargetID: "c", Type: "service_worker", OpenerID: "main", URL: "https://nearil.com/sw.js"}, false},
		{"popup", &target.Info{TargetID: "d", Type: "page", OpenerID: "main", URL: "https://accounts.example.com/auth"}, true},
		{"popup again", &target.Info{TargetID: "d", Type: "page", OpenerID: "main", URL: "https://accounts.example.com/next"}, false},
	}
	for _, tt := range tests {
		if got := h.claimPopup(tt.info); got != tt.want {
			t.Errorf("%s: claimPopup() = %v; want %v", tt.name, got, tt.want)
		}
	}

	h.onBrowserEvent(&target.EventTargetDestroyed{TargetID: "d"})
	if !h.claimPopup(&target.Info{TargetID: "d", Type: "page", OpenerID: "main", URL: "https://accounts.example.com/auth"}) {
		t.Fatal("destroyed popup id still claimed")
	}
}

func TestNonWebPopupGoesToDispatcher(t *testing.T) {
	sh := &fakeShell{decisions: map[string]navigation.Decision{
		"whatsapp://send?text=hi": {Verdict: navigation.Intercept, Rule: navigation.RuleMessagingScheme},
	}}
	h := New(Config{}, sh)
	var closed []target.ID
	h.closeTarget = func(id target.ID) { closed = append(closed, id) }
	h.load = func(raw string) { t.Fatalf("main page loaded %q", raw) }

	h.followPopup("pop", "whatsapp://send?text=hi")

	if !reflect.DeepEqual(closed, []target.ID{"pop"}) {
		t.Fatalf("closed = %v; want pop", closed)
	}
	if got := sh.asked(); !reflect.DeepEqual(got, []string{"whatsapp://send?text=hi"}) {
		t.Fatalf("decisions asked = %v", got)
	}
	if len(sh.enqueued) != 0 {
		t.Fatalf("enqueued = %v; want none for intercepted URL", sh.enqueued)
	}
}

func TestScriptNavigationToNonWebScheme(t *testing.T) {
	sh := &fakeShell{decisions: map[string]navigation.Decision{
		"whatsapp://send?text=hi": {Verdict: navigation.Intercept, Rule: navigation.RuleMessagingScheme},
	}}
	h := New(Config{}, sh)

	h.onEvent(&page.EventFrameRequestedNavigation{URL: "https://nearil.com/next", Disposition: page.ClientNavigationDispositionCurrentTab})
	h.onEvent(&page.EventFrameRequestedNavigation{URL: "mailto:a@b.c", Disposition: page.ClientNavigationDispositionNewWindow})
	h.onEvent(&page.EventFrameRequestedNavigation{URL: "whatsapp://send?text=hi", Disposition: page.ClientNavigationDispositionCurrentTab})

	deadline := time.Now().Add(time.Second)
	for len(sh.asked()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := sh.asked(); !reflect.DeepEqual(got, []string{"whatsapp://send?text=hi"}) {
		t.Fatalf("decisions asked = %v; want only the script navigation", got)
	}
}

func TestIsWebURL(t *testing.T) {
	for raw, want := range map[string]bool{
		"https://nearil.com":   true,
		"HTTP://nearil.com":    true,
		"blob:https://x/1":     true,
		"/relative":            true,
		"whatsapp://send":      false,
		"nearil://cb":          false,
		"intent://scan#Intent": false,
	} {
		if got := isWebURL(raw); got != want {
			t.Errorf("isWebURL(%q) = %v; want %v", raw, got, want)
		}
	}
}
