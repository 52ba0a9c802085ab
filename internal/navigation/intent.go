package navigation

import "fmt"

// Action is the typed OS action carried by an Intent.
type Action string

const (
	// ActionView asks the OS to open a URI with whatever handler owns it.
	ActionView Action = "VIEW"
	// ActionSend asks the OS to present its share chooser for a text payload.
	ActionSend Action = "SEND"
)

// Intent is an external hand-off produced by the dispatcher.
type Intent struct {
	Action Action `json:"action"`
	URI    string `json:"uri,omitempty"`
	Text   string `json:"text,omitempty"`
	Title  string `json:"title,omitempty"`
}

func (i Intent) String() string {
	switch i.Action {
	case ActionSend:
		return fmt.Sprintf("SEND(title=%q, text=%q)", i.Title, i.Text)
	default:
		return fmt.Sprintf("%s(%s)", i.Action, i.URI)
	}
}

// ViewIntent returns a generic "view URI externally" intent.
func ViewIntent(uri string) *Intent {
	return &Intent{Action: ActionView, URI: uri}
}

// ShareIntent returns a generic "share text" intent presented with a chooser title.
func ShareIntent(text, title string) *Intent {
	return &Intent{Action: ActionSend, Text: text, Title: title}
}

// Launcher starts external OS actions.
type Launcher interface {
	// Start performs the intent. Errors are reported to the caller, which
	// logs and swallows them.
	Start(intent Intent) error
	// CanResolve reports whether any external handler exists for the URI.
	CanResolve(uri string) bool
}
