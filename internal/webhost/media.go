package webhost

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
)

// mediaRequest is one gated getUserMedia call. It resolves exactly once.
type mediaRequest struct {
	id        string
	resources []capability.Resource
	resolve   func(granted []capability.Resource, ok bool)
	once      sync.Once
}

func newMediaRequest(id string, resources []capability.Resource, resolve func([]capability.Resource, bool)) *mediaRequest {
	return &mediaRequest{id: id, resources: resources, resolve: resolve}
}

func (m *mediaRequest) Resources() []capability.Resource { return m.resources }

// Grant and Deny are called on the shell loop and must not block it.
func (m *mediaRequest) Grant(resources []capability.Resource) {
	m.once.Do(func() { go m.resolve(resources, true) })
}

func (m *mediaRequest) Deny() {
	m.once.Do(func() { go m.resolve(nil, false) })
}

func permissionName(r capability.Resource) string {
	switch r {
	case capability.ResourceVideoCapture:
		return "camera"
	case capability.ResourceAudioCapture:
		return "microphone"
	default:
		return ""
	}
}

func (h *Host) resolveMedia(execCtx runtime.ExecutionContextID, id string, granted []capability.Resource, ok bool) {
	setting := browser.PermissionSettingDenied
	if ok {
		setting = browser.PermissionSettingGranted
	}
	err := h.run(chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		browserCtx := cdp.WithExecutor(ctx, c.Browser)
		for _, r := range granted {
			name := permissionName(r)
			if name == "" {
				continue
			}
			p := browser.SetPermission(&browser.PermissionDescriptor{Name: name}, setting)
			if h.cfg.Origin != "" {
				p = p.WithOrigin(h.cfg.Origin)
			}
			if err := p.Do(browserCtx); err != nil {
				slog.Warn("browser permission not applied", "permission", name, "error", err)
			}
		}
		_, exc, err := runtime.Evaluate(resolveMediaExpr(id, ok)).WithContextID(execCtx).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			slog.Warn("media resolver threw", "id", id, "error", exc.Text)
		}
		return nil
	}))
	if err != nil {
		slog.Warn("media request not resolved in page", "id", id, "granted", ok, "error", err)
		return
	}
	slog.Info("media request resolved", "id", id, "granted", ok, "resources", granted)
}
