// Package webhost drives a Chromium page over the DevTools protocol as the
// shell's browser host: top-level navigations are vetted by the dispatcher,
// file inputs are routed to the capability bridge and getUserMedia is gated
// on native permissions.
package webhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
)

var errNotAttached = errors.New("browser host is not attached to a page")

// Shell is the part of the application shell the host reports to.
type Shell interface {
	Navigate(ctx context.Context, rawURL string) (navigation.Decision, error)
	Enqueue(ev deeplink.ActivationEvent)
	FileChooser(req capability.FileChooserRequest, cb capability.FileCallback) error
	MediaRequest(req capability.MediaRequest) error
}

// Config configures the host.
type Config struct {
	CDPURL string
	// Origin receives browser permission grants, e.g. https://nearil.com.
	Origin          string
	NavigateTimeout time.Duration
}

// Host is a connected browser page. It implements deeplink.Browser.
type Host struct {
	cfg   Config
	shell Shell

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	// load and closeTarget default to CDP calls on the attached page.
	load        func(rawURL string)
	closeTarget func(id target.ID)

	mu        sync.RWMutex
	targetID  string
	mainFrame cdp.FrameID
	popups    map[target.ID]bool
}

// New creates an unconnected host.
func New(cfg Config, shell Shell) *Host {
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 30 * time.Second
	}
	h := &Host{cfg: cfg, shell: shell, popups: map[target.ID]bool{}}
	h.load = h.Navigate
	h.closeTarget = h.closePage
	return h
}

// Connect attaches to the first page target of the browser at cfg.CDPURL and
// installs navigation, file chooser and media interception.
func (h *Host) Connect(ctx context.Context) error {
	slog.Info("connecting to chromium", "url", h.cfg.CDPURL)
	h.allocCtx, h.allocCancel = chromedp.NewRemoteAllocator(context.Background(), h.cfg.CDPURL)

	tempCtx, tempCancel := chromedp.NewContext(h.allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		h.allocCancel()
		return fmt.Errorf("connect to browser: %w", err)
	}
	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		h.allocCancel()
		return fmt.Errorf("enumerate targets: %w", err)
	}
	var pageTarget *chromedpTarget
	for _, t := range targets {
		if t.Type == "page" {
			pageTarget = &chromedpTarget{id: t.TargetID, url: t.URL}
			break
		}
	}
	if pageTarget == nil {
		h.allocCancel()
		return fmt.Errorf("no page target found")
	}

	h.tabCtx, h.tabCancel = chromedp.NewContext(h.allocCtx, chromedp.WithTargetID(pageTarget.id))
	if err := chromedp.Run(h.tabCtx); err != nil {
		h.Close()
		return fmt.Errorf("attach to page: %w", err)
	}
	h.mu.Lock()
	h.targetID = string(pageTarget.id)
	h.mu.Unlock()
	chromedp.ListenTarget(h.tabCtx, h.onEvent)
	chromedp.ListenBrowser(h.tabCtx, h.onBrowserEvent)

	setupCtx, cancel := context.WithTimeout(h.tabCtx, 15*time.Second)
	defer cancel()
	err = chromedp.Run(setupCtx,
		page.Enable(),
		runtime.Enable(),
		runtime.AddBinding(BindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(gateScript).Do(ctx)
			return err
		}),
		page.SetInterceptFileChooserDialog(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
		}),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
			URLPattern:   "*",
			ResourceType: network.ResourceTypeDocument,
			RequestStage: fetch.RequestStageRequest,
		}}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			h.setMainFrame(tree.Frame.ID)
			return nil
		}),
	)
	if err != nil {
		h.Close()
		return fmt.Errorf("install interception: %w", err)
	}
	slog.Info("browser host attached", "target_id", h.TargetID(), "url", pageTarget.url, "main_frame", h.MainFrame())
	return nil
}

type chromedpTarget struct {
	id  target.ID
	url string
}

// TargetID returns the attached page's target ID.
func (h *Host) TargetID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.targetID
}

// MainFrame returns the top-level frame ID.
func (h *Host) MainFrame() cdp.FrameID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mainFrame
}

func (h *Host) setMainFrame(id cdp.FrameID) {
	h.mu.Lock()
	h.mainFrame = id
	h.mu.Unlock()
}

// Navigate loads rawURL in the page without blocking the caller.
func (h *Host) Navigate(rawURL string) {
	if h.tabCtx == nil {
		slog.Warn("navigate without attached page", "url", rawURL)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(h.tabCtx, h.cfg.NavigateTimeout)
		defer cancel()
		if err := chromedp.Run(ctx, chromedp.Navigate(rawURL)); err != nil {
			// Intercepted navigations surface here as net::ERR_ABORTED.
			slog.Info("browser navigation did not complete", "url", rawURL, "error", err)
			return
		}
		slog.Debug("browser navigated", "url", rawURL)
	}()
}

// Close detaches from the page. The browser process keeps running.
func (h *Host) Close() {
	if h.tabCancel != nil {
		h.tabCancel()
	}
	if h.allocCancel != nil {
		h.allocCancel()
	}
	slog.Info("browser host closed")
}

// onEvent runs on chromedp's event goroutine; anything that issues CDP
// commands is moved off it.
func (h *Host) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			h.setMainFrame(e.Frame.ID)
		}
	case *fetch.EventRequestPaused:
		go h.onRequestPaused(e)
	case *page.EventFileChooserOpened:
		go h.onFileChooser(e)
	case *runtime.EventBindingCalled:
		if e.Name == BindingName {
			go h.onBinding(e)
		}
	case *page.EventFrameRequestedNavigation:
		// Script navigations to non-web schemes never reach the Fetch domain.
		// New-window requests arrive as popup targets instead.
		if e.Disposition == page.ClientNavigationDispositionCurrentTab && !isWebURL(e.URL) {
			go h.onLinkClick(e.URL)
		}
	}
}

func (h *Host) run(actions ...chromedp.Action) error {
	if h.tabCtx == nil {
		return errNotAttached
	}
	ctx, cancel := context.WithTimeout(h.tabCtx, 10*time.Second)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (h *Host) onRequestPaused(e *fetch.EventRequestPaused) {
	rawURL := ""
	if e.Request != nil {
		rawURL = e.Request.URL
		if e.Request.URLFragment != "" {
			rawURL += e.Request.URLFragment
		}
	}
	intercept := false
	if e.FrameID == h.MainFrame() && e.ResourceType == network.ResourceTypeDocument {
		dec, err := h.shell.Navigate(h.tabCtx, rawURL)
		if err != nil {
			slog.Warn("navigation decision unavailable, allowing", "url", rawURL, "error", err)
		} else {
			intercept = dec.Intercepted()
		}
	}

	var err error
	if intercept {
		err = h.run(fetch.FailRequest(e.RequestID, network.ErrorReasonAborted))
	} else {
		err = h.run(fetch.ContinueRequest(e.RequestID))
	}
	if err != nil {
		slog.Warn("paused request not resumed", "url", rawURL, "intercept", intercept, "error", err)
	}
}

type bindingMessage struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	URL       string   `json:"url,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

func parseBinding(payload string) (bindingMessage, error) {
	var msg bindingMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msg, fmt.Errorf("decode binding payload: %w", err)
	}
	return msg, nil
}

func (h *Host) onBinding(e *runtime.EventBindingCalled) {
	msg, err := parseBinding(e.Payload)
	if err != nil {
		slog.Warn("ignoring binding call", "error", err)
		return
	}
	h.dispatchBinding(e.ExecutionContextID, msg)
}

func (h *Host) dispatchBinding(execCtx runtime.ExecutionContextID, msg bindingMessage) {
	switch msg.Type {
	case "navigate":
		h.onLinkClick(msg.URL)
	case "media":
		req := newMediaRequest(msg.ID, toResources(msg.Resources), func(granted []capability.Resource, ok bool) {
			h.resolveMedia(execCtx, msg.ID, granted, ok)
		})
		if err := h.shell.MediaRequest(req); err != nil {
			slog.Warn("media request not delivered, denying", "error", err)
			req.Deny()
		}
	default:
		slog.Debug("unknown binding message", "type", msg.Type)
	}
}

// onLinkClick handles non-web links and script navigations, which Chromium
// would otherwise pass to the OS protocol handler. An allowed non-web URL is
// the app's own scheme and is delivered to activation as the OS would.
func (h *Host) onLinkClick(rawURL string) {
	dec, err := h.shell.Navigate(h.tabCtx, rawURL)
	if err != nil {
		slog.Warn("link decision unavailable", "url", rawURL, "error", err)
		return
	}
	if dec.Intercepted() {
		return
	}
	if !isWebURL(rawURL) {
		h.shell.Enqueue(deeplink.ActivationEvent{Action: deeplink.ActionView, URI: rawURL})
		return
	}
	h.load(rawURL)
}

// webSchemes load inside the page; the gate script uses the same set.
var webSchemes = map[string]bool{
	"http": true, "https": true, "about": true, "blob": true, "data": true, "javascript": true,
}

func isWebURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return u.Scheme == "" || webSchemes[strings.ToLower(u.Scheme)]
}

func toResources(in []string) []capability.Resource {
	out := make([]capability.Resource, 0, len(in))
	for _, r := range in {
		out = append(out, capability.Resource(strings.TrimSpace(r)))
	}
	return out
}
