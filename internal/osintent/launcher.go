// Package osintent turns dispatcher intents into host OS actions: VIEW opens
// the URI with the desktop opener, SEND publishes to the share target, and
// URIs the application itself owns are routed back into activation.
package osintent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
)

// ErrNoShareTarget is returned for SEND intents when no share target is set.
var ErrNoShareTarget = errors.New("no share target configured")

// Sharer receives SEND intents.
type Sharer interface {
	Share(ctx context.Context, title, text string) error
}

// Options configure a Launcher.
type Options struct {
	// OpenCommand is the opener and its leading arguments; the URI is appended.
	OpenCommand []string
	Sharer      Sharer
	// Owns reports URIs the OS would hand back to this application.
	Owns func(uri string) bool
	// Activate receives owned VIEW intents.
	Activate func(ev deeplink.ActivationEvent)
	// HasHandler reports whether a scheme has a registered OS handler.
	HasHandler func(scheme string) bool
	// Run starts a command without waiting for it.
	Run          func(name string, args ...string) error
	ShareTimeout time.Duration
}

// Launcher implements navigation.Launcher for a desktop host.
type Launcher struct {
	opts Options
}

// NewLauncher fills platform defaults into opts.
func NewLauncher(opts Options) *Launcher {
	if len(opts.OpenCommand) == 0 {
		opts.OpenCommand = DefaultOpenCommand()
	}
	if opts.HasHandler == nil {
		opts.HasHandler = SchemeHandlerLookup
	}
	if opts.Run == nil {
		opts.Run = startDetached
	}
	if opts.ShareTimeout <= 0 {
		opts.ShareTimeout = 10 * time.Second
	}
	return &Launcher{opts: opts}
}

// DefaultOpenCommand returns the desktop opener for the current OS.
func DefaultOpenCommand() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler"}
	default:
		return []string{"xdg-open"}
	}
}

// Start performs intent. It never blocks on the opened application.
func (l *Launcher) Start(intent navigation.Intent) error {
	switch intent.Action {
	case navigation.ActionSend:
		return l.share(intent)
	case navigation.ActionView:
		return l.view(intent.URI)
	default:
		return fmt.Errorf("unsupported intent action %q", intent.Action)
	}
}

// share publishes in the background like VIEW's detached opener; a failed
// publish is logged, not returned.
func (l *Launcher) share(intent navigation.Intent) error {
	if l.opts.Sharer == nil {
		return ErrNoShareTarget
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.opts.ShareTimeout)
		defer cancel()
		if err := l.opts.Sharer.Share(ctx, intent.Title, intent.Text); err != nil {
			slog.Warn("share failed", "title", intent.Title, "error", err)
			return
		}
		slog.Info("shared text", "title", intent.Title, "length", len(intent.Text))
	}()
	return nil
}

func (l *Launcher) view(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return errors.New("view intent without uri")
	}
	if l.opts.Owns != nil && l.opts.Owns(uri) && l.opts.Activate != nil {
		slog.Info("routing owned uri to activation", "uri", uri)
		l.opts.Activate(deeplink.ActivationEvent{Action: deeplink.ActionView, URI: uri})
		return nil
	}
	args := append(append([]string(nil), l.opts.OpenCommand[1:]...), uri)
	if err := l.opts.Run(l.opts.OpenCommand[0], args...); err != nil {
		return fmt.Errorf("open %s: %w", uri, err)
	}
	slog.Info("opened externally", "uri", uri, "opener", l.opts.OpenCommand[0])
	return nil
}

// CanResolve reports whether some application would handle uri.
func (l *Launcher) CanResolve(uri string) bool {
	if l.opts.Owns != nil && l.opts.Owns(uri) {
		return true
	}
	req, err := navigation.ParseRequest(uri)
	if err != nil {
		return false
	}
	if req.IsWeb() {
		return true
	}
	return l.opts.HasHandler(req.Scheme)
}

// SchemeHandlerLookup asks the desktop for a registered handler. On Linux it
// queries xdg-mime; other platforms only accept well-known schemes.
func SchemeHandlerLookup(scheme string) bool {
	scheme = strings.ToLower(scheme)
	switch scheme {
	case "http", "https", "mailto", "tel", "sms":
		return true
	case "intent", "javascript", "data", "file", "about", "blob":
		return false
	}
	if runtime.GOOS != "linux" {
		return false
	}
	out, err := exec.Command("xdg-mime", "query", "default", "x-scheme-handler/"+scheme).Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("opener exited with error", "command", name, "error", err)
		}
	}()
	return nil
}
