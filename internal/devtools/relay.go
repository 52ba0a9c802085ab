// Package devtools relays a WebSocket client to the browser host page's
// DevTools endpoint, the desktop counterpart of WebView content debugging.
package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Target is one entry of the browser's /json/list.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Relay proxies DevTools sessions for page targets.
type Relay struct {
	httpBase string
	client   *http.Client
	// TargetID selects the page; empty means the first page target.
	TargetID func() string
}

// NewRelay creates a relay for the browser whose HTTP endpoint is httpBase,
// e.g. http://127.0.0.1:9230.
func NewRelay(httpBase string) *Relay {
	return &Relay{
		httpBase: strings.TrimRight(httpBase, "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Targets lists the browser's debuggable targets.
func (r *Relay) Targets(ctx context.Context) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.httpBase+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("devtools: list targets: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("devtools: list targets: status=%d", resp.StatusCode)
	}
	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("devtools: decode targets: %w", err)
	}
	return targets, nil
}

func (r *Relay) pageURL(ctx context.Context, id string) (string, error) {
	targets, err := r.Targets(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range targets {
		if t.Type != "page" || t.WebSocketDebuggerURL == "" {
			continue
		}
		if id == "" || t.ID == id {
			return t.WebSocketDebuggerURL, nil
		}
	}
	if id != "" {
		return "", fmt.Errorf("devtools: page target %s not found", id)
	}
	return "", fmt.Errorf("devtools: no page target")
}

// ServeHTTP upgrades the request and pipes frames both ways until either
// side closes. ?target= overrides the default page.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Query().Get("target")
	if id == "" && r.TargetID != nil {
		id = r.TargetID()
	}
	upstreamURL, err := r.pageURL(req.Context(), id)
	if err != nil {
		slog.Warn("devtools relay target lookup failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	dialCtx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	upstream, _, _, err := ws.Dial(dialCtx, upstreamURL)
	cancel()
	if err != nil {
		slog.Warn("devtools relay dial failed", "url", upstreamURL, "error", err)
		http.Error(w, "devtools endpoint unavailable", http.StatusBadGateway)
		return
	}

	client, _, _, err := ws.UpgradeHTTP(req, w)
	if err != nil {
		upstream.Close()
		slog.Warn("devtools relay upgrade failed", "error", err)
		return
	}
	slog.Info("devtools relay opened", "remote", req.RemoteAddr, "upstream", upstreamURL)
	pipe(client, upstream)
	slog.Info("devtools relay closed", "remote", req.RemoteAddr)
}

// pipe copies client frames upstream and upstream frames back until one
// side fails, then closes both.
func pipe(client, upstream net.Conn) {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			client.Close()
			upstream.Close()
		})
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer closeBoth()
		for {
			data, op, err := wsutil.ReadClientData(client)
			if err != nil {
				return
			}
			if err := wsutil.WriteClientMessage(upstream, op, data); err != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		defer closeBoth()
		for {
			data, op, err := wsutil.ReadServerData(upstream)
			if err != nil {
				return
			}
			if err := wsutil.WriteServerMessage(client, op, data); err != nil {
				return
			}
		}
	}()
	wg.Wait()
}
