package events

import (
	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
)

// NavigationData is the payload of a navigation event.
type NavigationData struct {
	URL          string `json:"url"`
	URLTruncated bool   `json:"url_truncated,omitempty"`
	URLBytes     int    `json:"url_bytes,omitempty"`
	URLSHA256    string `json:"url_sha256,omitempty"`
	Verdict      string `json:"verdict"`
	Rule         string `json:"rule"`
	Action       string `json:"action,omitempty"`
	LaunchErr    string `json:"launch_error,omitempty"`
}

// ActivationData is the payload of an activation event.
type ActivationData struct {
	Kind       string `json:"kind,omitempty"`
	Result     string `json:"result"`
	URI        string `json:"uri,omitempty"`
	NavigateTo string `json:"navigate_to,omitempty"`
}

// CapabilityData is the payload of a capability event.
type CapabilityData struct {
	Kind   string `json:"kind"`
	Result string `json:"result"`
	Files  int    `json:"files,omitempty"`
}

// Recorder publishes shell decisions to a broker.
type Recorder struct {
	broker *Broker
}

// NewRecorder returns a shell observer publishing to broker.
func NewRecorder(broker *Broker) *Recorder {
	return &Recorder{broker: broker}
}

func (r *Recorder) Navigation(d navigation.Decision) {
	data := NavigationData{
		Verdict: d.Verdict.String(),
		Rule:    d.Rule,
	}
	data.URL, data.URLTruncated, data.URLBytes, data.URLSHA256 = truncateString(d.URL, maxURLBytes)
	if !data.URLTruncated {
		data.URLBytes = 0
	}
	if d.Intent != nil {
		data.Action = string(d.Intent.Action)
	}
	if d.LaunchErr != nil {
		data.LaunchErr = d.LaunchErr.Error()
	}
	r.broker.Publish(Event{Type: TypeNavigation, Data: data})
}

func (r *Recorder) Activation(o deeplink.Outcome) {
	r.broker.Publish(Event{Type: TypeActivation, Data: ActivationData{
		Kind:       string(o.Kind),
		Result:     o.Result,
		URI:        o.URI,
		NavigateTo: o.NavigateTo,
	}})
}

func (r *Recorder) Capability(e capability.Event) {
	r.broker.Publish(Event{Type: TypeCapability, Data: CapabilityData{
		Kind:   string(e.Kind),
		Result: e.Result,
		Files:  e.Files,
	}})
}
