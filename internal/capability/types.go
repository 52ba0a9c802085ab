package capability

// Permission is a native OS permission.
type Permission string

const (
	PermissionCamera       Permission = "camera"
	PermissionMicrophone   Permission = "microphone"
	PermissionWriteStorage Permission = "write_storage"
)

// Resource is a web-originated media resource identifier.
type Resource string

const (
	ResourceVideoCapture Resource = "video-capture"
	ResourceAudioCapture Resource = "audio-capture"
)

// RequestKind tags which stashed request a permission prompt was issued for.
type RequestKind string

const (
	KindFileCapture RequestKind = "file_capture"
	KindMediaStream RequestKind = "media_stream"
)

// PermissionService checks and asynchronously requests native permissions.
// Request must not block; the outcome is fed back through
// Bridge.OnPermissionResult.
type PermissionService interface {
	Granted(p Permission) bool
	Request(kind RequestKind, perms []Permission) error
}

// PermissionResult is the outcome of one native permission prompt.
type PermissionResult struct {
	Kind   RequestKind         `json:"kind"`
	Grants map[Permission]bool `json:"grants"`
}

// AllGranted reports whether every prompted permission was granted. A
// cancelled prompt carries no grants and counts as denied.
func (r PermissionResult) AllGranted() bool {
	if len(r.Grants) == 0 {
		return false
	}
	for _, ok := range r.Grants {
		if !ok {
			return false
		}
	}
	return true
}

// FileChooserRequest is a web-originated file picker request.
type FileChooserRequest struct {
	Capture     bool     `json:"capture"`
	AcceptTypes []string `json:"accept_types,omitempty"`
	Multiple    bool     `json:"multiple"`
}

// FileCallback receives the single result of a file chooser request. A nil
// slice means no selection.
type FileCallback interface {
	Deliver(files []string)
}

// FileCallbackFunc adapts a function to FileCallback.
type FileCallbackFunc func(files []string)

func (f FileCallbackFunc) Deliver(files []string) { f(files) }

// CapturedFile is a freshly created capture target.
type CapturedFile struct {
	Path string `json:"path"`
	URI  string `json:"uri"`
}

// FileStore creates and discards capture targets.
type FileStore interface {
	CreateCaptureFile() (CapturedFile, error)
	Discard(f CapturedFile)
}

// ActivityLauncher starts out-of-process pick/capture flows. Each launch
// eventually yields one Bridge.OnActivityResult carrying the launch id.
type ActivityLauncher interface {
	LaunchCapture(id uint64, target CapturedFile) error
	LaunchPicker(id uint64, req FileChooserRequest) error
	// LaunchChooser presents the standard picker merged with a capture option
	// writing to target.
	LaunchChooser(id uint64, req FileChooserRequest, target CapturedFile) error
}

// ActivityResult is the outcome of a pick/capture activity. Request is the
// launch id it answers; zero means whichever activity is current.
type ActivityResult struct {
	Request uint64   `json:"request,omitempty"`
	OK      bool     `json:"ok"`
	Data    []string `json:"data,omitempty"`
}

// MediaRequest is a web-originated live media permission request.
type MediaRequest interface {
	Resources() []Resource
	Grant(resources []Resource)
	Deny()
}

// Event reports how a capability request was resolved.
type Event struct {
	Kind   RequestKind `json:"kind"`
	Result string      `json:"result"`
	Files  int         `json:"files,omitempty"`
}

const (
	ResultDelivered = "delivered"
	ResultEmpty     = "empty"
	ResultPrompted  = "prompted"
	ResultGranted   = "granted"
	ResultDenied    = "denied"
	ResultLaunched  = "launched"
	ResultStale     = "stale_resolved"
)
