package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/nearil_shell/internal/api"
	"github.com/dgnsrekt/nearil_shell/internal/browser"
	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/config"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/devtools"
	"github.com/dgnsrekt/nearil_shell/internal/events"
	"github.com/dgnsrekt/nearil_shell/internal/journal"
	"github.com/dgnsrekt/nearil_shell/internal/metrics"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
	"github.com/dgnsrekt/nearil_shell/internal/netutil"
	"github.com/dgnsrekt/nearil_shell/internal/notify"
	"github.com/dgnsrekt/nearil_shell/internal/osintent"
	"github.com/dgnsrekt/nearil_shell/internal/platform"
	"github.com/dgnsrekt/nearil_shell/internal/shell"
	"github.com/dgnsrekt/nearil_shell/internal/webhost"
)

func main() {
	headless := flag.Bool("headless", false, "run chromium without a window")
	flag.Parse()
	activationURI := strings.TrimSpace(flag.Arg(0))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load shell config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("nearil_shell config loaded",
		"app_host", cfg.AppHost,
		"custom_scheme", cfg.CustomScheme,
		"bind_addr", cfg.BindAddr,
		"cdp", cfg.CDPURL(),
		"platform_level", cfg.PlatformLevel,
		"auto_grant", cfg.AutoGrant,
		"web_debugging", cfg.WebDebugging,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ln, err := netutil.Claim(cfg.BindAddr)
	if errors.Is(err, netutil.ErrAddrInUse) {
		os.Exit(handOff(cfg.BindAddr, activationURI))
	}
	if err != nil {
		slog.Error("failed to claim bind address", "addr", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	os.Exit(run(cfg, ln, activationURI, *headless))
}

// handOff forwards the activation URI to the instance already serving on
// addr, the way a running activity receives a new intent.
func handOff(addr, uri string) int {
	client := api.NewClient("http://" + addr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := client.State(ctx); err != nil {
		slog.Error("bind address is taken by something that is not a shell", "addr", addr, "error", err)
		return 1
	}
	if uri == "" {
		slog.Info("shell already running", "addr", addr)
		return 0
	}
	out, err := client.ForwardActivation(ctx, deeplink.ActivationEvent{Action: deeplink.ActionView, URI: uri})
	if err != nil {
		slog.Error("activation hand-off failed", "addr", addr, "uri", uri, "error", err)
		return 1
	}
	slog.Info("activation handed to running shell", "addr", addr, "kind", out.Kind, "result", out.Result)
	return 0
}

func run(cfg *config.Config, ln net.Listener, activationURI string, headless bool) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rules, err := config.LoadNavigationRules(cfg.NavigationRulesPath)
	if err != nil {
		slog.Error("failed to load navigation rules", "path", cfg.NavigationRulesPath, "error", err)
		return 1
	}
	policy := navigationPolicy(cfg, rules)

	broker := events.NewBroker()
	recorder := events.NewRecorder(broker)
	m := metrics.New()

	jr := journal.Open(journal.Options{
		Dir:       filepath.Join(cfg.DataDir, "journal"),
		SessionID: uuid.New().String(),
		OnDrop:    m.JournalDropped.Inc,
	})
	defer func() {
		if err := jr.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}()
	go jr.Follow(ctx, broker)

	loop := shell.NewLoop(256)
	go loop.Run(ctx)

	// The launcher routes owned VIEW intents back into activation, so it
	// needs the shell before the shell exists.
	var sh *shell.Shell
	var sharer osintent.Sharer
	if cfg.ShareEndpoint != "" {
		sharer = notify.NewPublisher(cfg.ShareEndpoint, &http.Client{Timeout: 10 * time.Second})
	}
	launcher := osintent.NewLauncher(osintent.Options{
		OpenCommand: strings.Fields(cfg.OpenCommand),
		Sharer:      sharer,
		Owns:        policy.Owns,
		Activate:    func(ev deeplink.ActivationEvent) { sh.Enqueue(ev) },
	})

	grants, err := platform.OpenGrantStore(filepath.Join(cfg.DataDir, "grants.json"))
	if err != nil {
		slog.Error("failed to open grant store", "error", err)
		return 1
	}
	captures, err := platform.NewCaptureStore(filepath.Join(cfg.DataDir, "captures"))
	if err != nil {
		slog.Error("failed to create capture store", "error", err)
		return 1
	}
	prompts := platform.NewPromptQueue(grants, cfg.AutoGrant)
	activities := platform.NewActivityRunner(ctx, cfg.CaptureCommand, cfg.PickerCommand, nil)

	sh = shell.New(loop, shell.Options{
		Dispatcher: navigation.NewDispatcher(policy, launcher),
		Reconciler: deeplink.Config{
			AppHost:         cfg.AppHost,
			CustomScheme:    cfg.CustomScheme,
			AuthSuccessPath: cfg.AuthSuccessPath,
			SessionPath:     cfg.SessionPath,
			TokenParam:      cfg.TokenParam,
			ErrorParam:      cfg.ErrorParam,
		},
		Bridge: capability.Config{
			PlatformLevel:      cfg.PlatformLevel,
			LegacyStorageBelow: cfg.LegacyStorageBelow,
		},
		Native: capability.Options{
			Permissions: prompts,
			Activities:  activities,
			Files:       captures,
			Filter:      platform.FilterAccepted,
		},
		Observers: []shell.Observer{recorder, m},
	})

	prompts.Bind(
		func(res capability.PermissionResult) {
			if err := sh.PermissionResult(res); err != nil {
				slog.Warn("permission result dropped", "kind", res.Kind, "error", err)
			}
		},
		func(pending []platform.Prompt) {
			m.PromptsChanged(len(pending))
			broker.Publish(events.Event{Type: events.TypePrompt, Data: pending})
		},
	)
	activities.Bind(func(res capability.ActivityResult) {
		if err := sh.ActivityResult(res); err != nil {
			slog.Warn("activity result dropped", "ok", res.OK, "error", err)
		}
	})

	host := webhost.New(webhost.Config{CDPURL: cfg.CDPURL(), Origin: cfg.Origin()}, sh)

	var relay http.Handler
	if cfg.WebDebugging {
		r := devtools.NewRelay(cfg.CDPURL())
		r.TargetID = host.TargetID
		relay = r
	}

	svc := &api.ShellService{Shell: sh, Prompts: prompts, Grants: grants, Captures: captures}
	h := api.NewServer(svc, api.Options{
		Events:     events.SSEHandler(broker),
		Metrics:    m.Handler(),
		DevTools:   relay,
		Middleware: []func(http.Handler) http.Handler{m.Middleware},
	})
	srv := &http.Server{Handler: h}

	go func() {
		slog.Info("nearil_shell listening", "addr", ln.Addr().String(), "docs", "http://"+ln.Addr().String()+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("control api server failed", "error", err)
			cancel()
		}
	}()

	// A cold-start URI is delivered before the browser exists so the
	// reconciler buffers it and the first navigation honours it.
	if activationURI != "" {
		out, err := sh.Activate(ctx, deeplink.ActivationEvent{Action: deeplink.ActionView, URI: activationURI})
		if err != nil {
			slog.Error("cold start activation failed", "uri", activationURI, "error", err)
		} else {
			slog.Info("cold start activation", "kind", out.Kind, "result", out.Result)
		}
	}

	chromium := browser.NewLauncher(browser.Config{
		CDPAddress: cfg.CDPAddress,
		CDPPort:    cfg.CDPPort,
		ProfileDir: cfg.ProfileDir,
		WindowSize: cfg.WindowSize,
		Headless:   headless,
	})
	defer chromium.Stop()

	if err := chromium.Launch(ctx); err != nil {
		slog.Error("failed to launch chromium", "error", err)
		return 1
	}
	if err := host.Connect(ctx); err != nil {
		slog.Error("failed to connect browser host", "cdp_url", cfg.CDPURL(), "error", err)
		return 1
	}
	defer host.Close()

	if _, err := sh.AttachBrowser(ctx, host); err != nil {
		slog.Error("failed to attach browser host", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutdown requested", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	prompts.CancelAll()
	if err := sh.DetachBrowser(shutdownCtx); err != nil {
		slog.Warn("capability requests not drained", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("control api shutdown failed", "error", err)
	}
	loop.Stop()
	return 0
}

// navigationPolicy combines environment settings with the rules file.
func navigationPolicy(cfg *config.Config, rules *config.NavigationRules) navigation.Policy {
	p := navigation.Policy{
		AppHost:                 cfg.AppHost,
		CustomScheme:            cfg.CustomScheme,
		AuthSuccessPath:         cfg.AuthSuccessPath,
		IdentityHosts:           append(append([]string(nil), cfg.IdentityHosts...), rules.IdentityHosts...),
		ShareTitle:              rules.ShareTitle,
		ExternalizeForeignHosts: cfg.ExternalizeForeignHosts,
	}
	for _, e := range rules.ShareEndpoints {
		p.ShareEndpoints = append(p.ShareEndpoints, navigation.ShareEndpoint{
			Host:         e.Host,
			PathContains: e.PathContains,
			Params:       e.Params,
		})
	}
	for _, s := range rules.MessagingSchemes {
		p.MessagingSchemes = append(p.MessagingSchemes, navigation.MessagingScheme{
			Scheme: s.Scheme,
			Param:  s.Param,
			Title:  s.Title,
		})
	}
	return p
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
