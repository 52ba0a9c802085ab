// Package capability bridges web-originated camera, microphone and file
// requests to native permission checks and pick/capture flows.
package capability

import (
	"log/slog"
)

// Config controls which native permissions a request needs.
type Config struct {
	// PlatformLevel is the running platform version.
	PlatformLevel int
	// LegacyStorageBelow adds the write-storage permission to capture and
	// media requests when PlatformLevel is below it.
	LegacyStorageBelow int
}

// Options are the bridge's native collaborators.
type Options struct {
	Permissions PermissionService
	Activities  ActivityLauncher
	Files       FileStore
	// Filter narrows explicit picker selections to the request's accept
	// types. Nil keeps every selection.
	Filter func(files, acceptTypes []string) []string
	// Observer is told how each request was resolved.
	Observer func(Event)
}

// Snapshot is the bridge's outstanding work.
type Snapshot struct {
	FileChooserPending bool   `json:"file_chooser_pending"`
	AwaitingPermission bool   `json:"awaiting_permission"`
	ActivityInFlight   bool   `json:"activity_in_flight"`
	CaptureInFlight    bool   `json:"capture_in_flight"`
	MediaPending       bool   `json:"media_pending"`
	ActivityRequest    uint64 `json:"activity_request,omitempty"`
}

// Bridge holds at most one outstanding request per kind. It is not safe for
// concurrent use; the shell drives it from a single loop.
type Bridge struct {
	cfg  Config
	opts Options

	fileCallback   FileCallback
	fileRequest    FileChooserRequest
	awaitingCamera bool
	activityActive bool
	capture        *CapturedFile

	// lastLaunch numbers activity launches; activityID is the one in flight.
	lastLaunch uint64
	activityID uint64

	pendingMedia MediaRequest
}

// NewBridge returns a bridge with no outstanding requests.
func NewBridge(cfg Config, opts Options) *Bridge {
	return &Bridge{cfg: cfg, opts: opts}
}

// Snapshot reports outstanding requests.
func (b *Bridge) Snapshot() Snapshot {
	return Snapshot{
		FileChooserPending: b.fileCallback != nil,
		AwaitingPermission: b.awaitingCamera || b.pendingMedia != nil,
		ActivityInFlight:   b.activityActive,
		CaptureInFlight:    b.capture != nil,
		MediaPending:       b.pendingMedia != nil,
		ActivityRequest:    b.activityID,
	}
}

// CapturePermissions are the native permissions a capture-mode request needs.
func (b *Bridge) CapturePermissions() []Permission {
	return b.withLegacyStorage([]Permission{PermissionCamera})
}

// MediaPermissions maps requested resources to native permissions.
func (b *Bridge) MediaPermissions(resources []Resource) []Permission {
	var perms []Permission
	seen := map[Permission]bool{}
	for _, r := range resources {
		var p Permission
		switch r {
		case ResourceVideoCapture:
			p = PermissionCamera
		case ResourceAudioCapture:
			p = PermissionMicrophone
		default:
			continue
		}
		if !seen[p] {
			seen[p] = true
			perms = append(perms, p)
		}
	}
	if len(perms) == 0 {
		return nil
	}
	return b.withLegacyStorage(perms)
}

func (b *Bridge) withLegacyStorage(perms []Permission) []Permission {
	if b.cfg.PlatformLevel < b.cfg.LegacyStorageBelow {
		perms = append(perms, PermissionWriteStorage)
	}
	return perms
}

func (b *Bridge) missing(perms []Permission) []Permission {
	var out []Permission
	for _, p := range perms {
		if b.opts.Permissions == nil || !b.opts.Permissions.Granted(p) {
			out = append(out, p)
		}
	}
	return out
}

func (b *Bridge) emit(ev Event) {
	if b.opts.Observer != nil {
		b.opts.Observer(ev)
	}
}

// FileChooser accepts a web file picker request. A still-unresolved earlier
// request is resolved with no selection first.
func (b *Bridge) FileChooser(req FileChooserRequest, cb FileCallback) {
	if b.fileCallback != nil {
		slog.Warn("file chooser request superseded, resolving previous with no selection")
		b.deliver(nil, ResultStale)
	}
	b.fileCallback = cb
	b.fileRequest = req

	if !req.Capture {
		b.launchPicker()
		return
	}

	missing := b.missing(b.CapturePermissions())
	if len(missing) == 0 {
		b.launchCapture()
		return
	}

	if b.opts.Permissions == nil {
		b.deliver(nil, ResultDenied)
		return
	}
	b.awaitingCamera = true
	slog.Info("capture needs native permission", "missing", missing)
	if err := b.opts.Permissions.Request(KindFileCapture, missing); err != nil {
		slog.Warn("permission prompt failed", "kind", KindFileCapture, "error", err)
		b.deliver(nil, ResultDenied)
		return
	}
	b.emit(Event{Kind: KindFileCapture, Result: ResultPrompted})
}

func (b *Bridge) nextLaunch() uint64 {
	b.lastLaunch++
	return b.lastLaunch
}

func (b *Bridge) launchPicker() {
	id := b.nextLaunch()
	if err := b.opts.Activities.LaunchPicker(id, b.fileRequest); err != nil {
		slog.Warn("file picker launch failed", "error", err)
		b.deliver(nil, ResultEmpty)
		return
	}
	b.activityActive = true
	b.activityID = id
	b.emit(Event{Kind: KindFileCapture, Result: ResultLaunched})
}

func (b *Bridge) launchCapture() {
	b.awaitingCamera = false

	file, err := b.opts.Files.CreateCaptureFile()
	if err != nil {
		slog.Warn("capture file creation failed", "error", err)
		b.deliver(nil, ResultEmpty)
		return
	}
	b.capture = &file

	id := b.nextLaunch()
	if err := b.opts.Activities.LaunchCapture(id, file); err != nil {
		slog.Warn("capture launch failed, falling back to chooser", "error", err)
		if err := b.opts.Activities.LaunchChooser(id, b.fileRequest, file); err != nil {
			slog.Warn("chooser launch failed", "error", err)
			b.discardCapture()
			b.deliver(nil, ResultEmpty)
			return
		}
	}
	b.activityActive = true
	b.activityID = id
	slog.Info("capture launched", "target", file.URI, "request", id)
	b.emit(Event{Kind: KindFileCapture, Result: ResultLaunched})
}

// OnActivityResult resolves the pending file callback with the activity's
// outcome. Explicit data wins over the capture target. A result for an
// earlier, superseded launch is ignored.
func (b *Bridge) OnActivityResult(res ActivityResult) {
	if b.fileCallback == nil || !b.activityActive {
		slog.Debug("activity result without launched activity, ignoring", "ok", res.OK, "request", res.Request)
		return
	}
	if res.Request != 0 && res.Request != b.activityID {
		slog.Info("activity result for superseded launch, ignoring", "request", res.Request, "current", b.activityID)
		b.emit(Event{Kind: KindFileCapture, Result: ResultStale})
		return
	}

	var files []string
	switch {
	case res.OK && len(res.Data) > 0:
		files = res.Data
		if b.opts.Filter != nil {
			files = b.opts.Filter(files, b.fileRequest.AcceptTypes)
		}
		b.discardCapture()
	case res.OK && b.capture != nil:
		files = []string{b.capture.URI}
		b.capture = nil
	default:
		b.discardCapture()
	}

	if len(files) == 0 {
		b.deliver(nil, ResultEmpty)
		return
	}
	b.deliver(files, ResultDelivered)
}

// deliver hands exactly one result to the pending callback and clears all
// transient file state.
func (b *Bridge) deliver(files []string, result string) {
	cb := b.fileCallback
	b.fileCallback = nil
	b.fileRequest = FileChooserRequest{}
	b.awaitingCamera = false
	b.activityActive = false
	b.activityID = 0
	b.discardCapture()

	if len(files) == 0 {
		files = nil
	}
	if cb != nil {
		cb.Deliver(files)
	}
	b.emit(Event{Kind: KindFileCapture, Result: result, Files: len(files)})
}

func (b *Bridge) discardCapture() {
	if b.capture == nil {
		return
	}
	if b.opts.Files != nil {
		b.opts.Files.Discard(*b.capture)
	}
	b.capture = nil
}

// MediaRequest accepts a live media request. A still-unresolved earlier
// request is denied first. The full resource set is granted or denied,
// never a subset.
func (b *Bridge) MediaRequest(req MediaRequest) {
	if b.pendingMedia != nil {
		slog.Warn("media request superseded, denying previous")
		stale := b.pendingMedia
		b.pendingMedia = nil
		stale.Deny()
		b.emit(Event{Kind: KindMediaStream, Result: ResultStale})
	}

	missing := b.missing(b.MediaPermissions(req.Resources()))
	if len(missing) == 0 {
		req.Grant(req.Resources())
		b.emit(Event{Kind: KindMediaStream, Result: ResultGranted})
		return
	}

	if b.opts.Permissions == nil {
		req.Deny()
		b.emit(Event{Kind: KindMediaStream, Result: ResultDenied})
		return
	}
	b.pendingMedia = req
	slog.Info("media stream needs native permission", "resources", req.Resources(), "missing", missing)
	if err := b.opts.Permissions.Request(KindMediaStream, missing); err != nil {
		slog.Warn("permission prompt failed", "kind", KindMediaStream, "error", err)
		b.pendingMedia = nil
		req.Deny()
		b.emit(Event{Kind: KindMediaStream, Result: ResultDenied})
		return
	}
	b.emit(Event{Kind: KindMediaStream, Result: ResultPrompted})
}

// OnPermissionResult is the single fan-in for native permission results.
// Both stashed requests are resolved independently by the same outcome.
func (b *Bridge) OnPermissionResult(res PermissionResult) {
	granted := res.AllGranted()
	slog.Info("permission result", "kind", res.Kind, "granted", granted)

	if granted {
		if b.awaitingCamera && b.fileCallback != nil {
			b.launchCapture()
		}
		if b.pendingMedia != nil {
			m := b.pendingMedia
			b.pendingMedia = nil
			m.Grant(m.Resources())
			b.emit(Event{Kind: KindMediaStream, Result: ResultGranted})
		}
		return
	}

	if b.pendingMedia != nil {
		m := b.pendingMedia
		b.pendingMedia = nil
		m.Deny()
		b.emit(Event{Kind: KindMediaStream, Result: ResultDenied})
	}
	if b.awaitingCamera && b.fileCallback != nil {
		b.deliver(nil, ResultDenied)
	}
}

// Reset resolves everything outstanding, as when the browser host goes away.
func (b *Bridge) Reset() {
	if b.pendingMedia != nil {
		m := b.pendingMedia
		b.pendingMedia = nil
		m.Deny()
	}
	b.discardCapture()
	if b.fileCallback != nil {
		b.deliver(nil, ResultEmpty)
	}
}
