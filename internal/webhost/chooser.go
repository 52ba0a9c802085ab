package webhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/platform"
)

type inputAttrs struct {
	Accept   string `json:"accept"`
	Capture  bool   `json:"capture"`
	Multiple bool   `json:"multiple"`
}

func chooserRequest(attrs inputAttrs, mode page.FileChooserOpenedMode) capability.FileChooserRequest {
	req := capability.FileChooserRequest{
		Capture:  attrs.Capture,
		Multiple: attrs.Multiple || mode == page.FileChooserOpenedModeSelectMultiple,
	}
	for _, a := range strings.Split(attrs.Accept, ",") {
		if a = strings.TrimSpace(a); a != "" {
			req.AcceptTypes = append(req.AcceptTypes, a)
		}
	}
	return req
}

// localPaths keeps the files Chromium can attach to an input.
func localPaths(files []string) []string {
	var out []string
	for _, f := range files {
		if p, ok := platform.PathFromURI(f); ok {
			out = append(out, p)
			continue
		}
		slog.Warn("selected file is not local, skipping", "uri", f)
	}
	return out
}

func (h *Host) onFileChooser(e *page.EventFileChooserOpened) {
	attrs, err := h.readInputAttrs(e.BackendNodeID)
	if err != nil {
		slog.Warn("file input attributes unreadable, assuming plain chooser", "error", err)
	}
	req := chooserRequest(attrs, e.Mode)
	node := e.BackendNodeID

	cb := capability.FileCallbackFunc(func(files []string) {
		go h.setInputFiles(node, files)
	})
	if err := h.shell.FileChooser(req, cb); err != nil {
		slog.Warn("file chooser not delivered", "error", err)
	}
}

func (h *Host) readInputAttrs(node cdp.BackendNodeID) (inputAttrs, error) {
	var attrs inputAttrs
	err := h.run(chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(node).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve file input: %w", err)
		}
		res, exc, err := runtime.CallFunctionOn(chooserAttrsFn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("read file input: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("read file input: %s", exc.Text)
		}
		return json.Unmarshal([]byte(res.Value), &attrs)
	}))
	return attrs, err
}

// setInputFiles fills the intercepted input. No selection leaves it empty.
func (h *Host) setInputFiles(node cdp.BackendNodeID, files []string) {
	paths := localPaths(files)
	if len(paths) == 0 {
		slog.Info("file chooser resolved without selection")
		return
	}
	if err := h.run(dom.SetFileInputFiles(paths).WithBackendNodeID(node)); err != nil {
		slog.Warn("setting file input failed", "files", len(paths), "error", err)
		return
	}
	slog.Info("file chooser resolved", "files", len(paths))
}
