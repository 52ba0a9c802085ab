// Package notify publishes text to an ntfy topic. The shell uses it as the
// share target for SEND intents.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoEndpoint is returned when no topic endpoint is configured.
var ErrNoEndpoint = errors.New("ntfy endpoint is not configured")

// Message is one ntfy publish.
type Message struct {
	Title string
	Body  string
	// Click is opened when the notification is tapped.
	Click string
	Tags  []string
}

// Publisher posts messages to a single ntfy topic URL.
type Publisher struct {
	Endpoint string
	Client   *http.Client
}

// NewPublisher returns a publisher for endpoint using client, or
// http.DefaultClient when client is nil.
func NewPublisher(endpoint string, client *http.Client) *Publisher {
	return &Publisher{Endpoint: endpoint, Client: client}
}

// Share publishes a shared text payload. A payload that is itself a URL is
// also attached as the click action.
func (p *Publisher) Share(ctx context.Context, title, text string) error {
	msg := Message{Title: title, Body: text, Tags: []string{"link"}}
	if u, err := url.Parse(strings.TrimSpace(text)); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		msg.Click = u.String()
	}
	return p.Publish(ctx, msg)
}

// Publish posts msg using ntfy's header-based message options.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if strings.TrimSpace(p.Endpoint) == "" {
		return ErrNoEndpoint
	}
	header := http.Header{}
	if msg.Title != "" {
		header.Set("Title", msg.Title)
	}
	if msg.Click != "" {
		header.Set("Click", msg.Click)
	}
	if len(msg.Tags) > 0 {
		header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	return send(ctx, p.Client, p.Endpoint, msg.Body, header)
}

// Send sends a plain message to endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return send(ctx, client, endpoint, message, nil)
}

func send(ctx context.Context, client *http.Client, endpoint, message string, header http.Header) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy publish failed: status=%d", resp.StatusCode)
	}
	return nil
}
