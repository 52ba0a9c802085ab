package webhost

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// onBrowserEvent watches for pages opened by the attached page. The shell is
// a single view: a popup is closed and its URL followed in the main page.
func (h *Host) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		h.onTargetInfo(e.TargetInfo)
	case *target.EventTargetInfoChanged:
		h.onTargetInfo(e.TargetInfo)
	case *target.EventTargetDestroyed:
		h.mu.Lock()
		delete(h.popups, e.TargetID)
		h.mu.Unlock()
	}
}

// onTargetInfo claims a popup once its URL is known. A popup still on
// about:blank is waited on; window.open sets the URL in a later update.
func (h *Host) onTargetInfo(info *target.Info) {
	if !h.claimPopup(info) {
		return
	}
	slog.Info("popup opened, following in main page", "target_id", info.TargetID, "url", info.URL)
	go h.followPopup(info.TargetID, info.URL)
}

func (h *Host) claimPopup(info *target.Info) bool {
	if info == nil || info.Type != "page" || info.URL == "" || info.URL == "about:blank" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.targetID == "" || string(info.OpenerID) != h.targetID || h.popups[info.TargetID] {
		return false
	}
	h.popups[info.TargetID] = true
	return true
}

// followPopup closes the popup and routes its URL the way a same-page
// navigation would be: web URLs through the main page's request vetting,
// anything else straight to the dispatcher.
func (h *Host) followPopup(id target.ID, rawURL string) {
	h.closeTarget(id)
	if isWebURL(rawURL) {
		h.load(rawURL)
		return
	}
	h.onLinkClick(rawURL)
}

func (h *Host) closePage(id target.ID) {
	if h.tabCtx == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.tabCtx, 5*time.Second)
	defer cancel()
	if err := target.CloseTarget(id).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser)); err != nil {
		slog.Debug("popup close failed", "target_id", id, "error", err)
	}
}
