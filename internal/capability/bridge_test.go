package capability

import (
	"errors"
	"reflect"
	"testing"
)

type fakePermissions struct {
	granted  map[Permission]bool
	requests []permissionRequest
	err      error
}

type permissionRequest struct {
	kind  RequestKind
	perms []Permission
}

func (f *fakePermissions) Granted(p Permission) bool { return f.granted[p] }

func (f *fakePermissions) Request(kind RequestKind, perms []Permission) error {
	f.requests = append(f.requests, permissionRequest{kind: kind, perms: perms})
	return f.err
}

type fakeActivities struct {
	ids        []uint64
	captures   []CapturedFile
	pickers    []FileChooserRequest
	choosers   []CapturedFile
	captureErr error
	chooserErr error
	pickerErr  error
}

func (f *fakeActivities) LaunchCapture(id uint64, target CapturedFile) error {
	f.ids = append(f.ids, id)
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captures = append(f.captures, target)
	return nil
}

func (f *fakeActivities) LaunchPicker(id uint64, req FileChooserRequest) error {
	f.ids = append(f.ids, id)
	if f.pickerErr != nil {
		return f.pickerErr
	}
	f.pickers = append(f.pickers, req)
	return nil
}

func (f *fakeActivities) LaunchChooser(_ uint64, _ FileChooserRequest, target CapturedFile) error {
	if f.chooserErr != nil {
		return f.chooserErr
	}
	f.choosers = append(f.choosers, target)
	return nil
}

type fakeFiles struct {
	created   int
	discarded []CapturedFile
	err       error
}

func (f *fakeFiles) CreateCaptureFile() (CapturedFile, error) {
	if f.err != nil {
		return CapturedFile{}, f.err
	}
	f.created++
	name := "capture-" + string(rune('0'+f.created)) + ".jpg"
	return CapturedFile{Path: "/tmp/" + name, URI: "file:///tmp/" + name}, nil
}

func (f *fakeFiles) Discard(c CapturedFile) { f.discarded = append(f.discarded, c) }

type callbackRecorder struct {
	calls   int
	results [][]string
}

func (c *callbackRecorder) Deliver(files []string) {
	c.calls++
	c.results = append(c.results, files)
}

type fakeMedia struct {
	resources []Resource
	granted   [][]Resource
	denied    int
}

func (m *fakeMedia) Resources() []Resource      { return m.resources }
func (m *fakeMedia) Grant(resources []Resource) { m.granted = append(m.granted, resources) }
func (m *fakeMedia) Deny()                      { m.denied++ }

type harness struct {
	perms  *fakePermissions
	acts   *fakeActivities
	files  *fakeFiles
	events []Event
	bridge *Bridge
}

func newHarness(cfg Config, granted ...Permission) *harness {
	h := &harness{
		perms: &fakePermissions{granted: map[Permission]bool{}},
		acts:  &fakeActivities{},
		files: &fakeFiles{},
	}
	for _, p := range granted {
		h.perms.granted[p] = true
	}
	h.bridge = NewBridge(cfg, Options{
		Permissions: h.perms,
		Activities:  h.acts,
		Files:       h.files,
		Observer:    func(ev Event) { h.events = append(h.events, ev) },
	})
	return h
}

var modern = Config{PlatformLevel: 34, LegacyStorageBelow: 29}

func TestCapturePermissions(t *testing.T) {
	if got := newHarness(modern).bridge.CapturePermissions(); !reflect.DeepEqual(got, []Permission{PermissionCamera}) {
		t.Fatalf("CapturePermissions() = %v; want camera only", got)
	}
	legacy := Config{PlatformLevel: 28, LegacyStorageBelow: 29}
	want := []Permission{PermissionCamera, PermissionWriteStorage}
	if got := newHarness(legacy).bridge.CapturePermissions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("CapturePermissions() legacy = %v; want %v", got, want)
	}
}

func TestMediaPermissions(t *testing.T) {
	b := newHarness(modern).bridge
	got := b.MediaPermissions([]Resource{ResourceAudioCapture, ResourceVideoCapture, ResourceVideoCapture})
	if want := []Permission{PermissionMicrophone, PermissionCamera}; !reflect.DeepEqual(got, want) {
		t.Fatalf("MediaPermissions() = %v; want %v", got, want)
	}
	if got := b.MediaPermissions([]Resource{"protected-media-id"}); got != nil {
		t.Fatalf("MediaPermissions(unknown) = %v; want nil", got)
	}
}

func TestPlainChooserSkipsPermissionGate(t *testing.T) {
	h := newHarness(modern)
	cb := &callbackRecorder{}
	req := FileChooserRequest{AcceptTypes: []string{"image/*"}, Multiple: true}

	h.bridge.FileChooser(req, cb)

	if len(h.perms.requests) != 0 {
		t.Fatalf("permission requests = %v; want none", h.perms.requests)
	}
	if len(h.acts.pickers) != 1 || !reflect.DeepEqual(h.acts.pickers[0], req) {
		t.Fatalf("pickers = %+v; want one launch of %+v", h.acts.pickers, req)
	}

	h.bridge.OnActivityResult(ActivityResult{OK: true, Data: []string{"file:///a.png", "file:///b.png"}})
	if cb.calls != 1 || !reflect.DeepEqual(cb.results[0], []string{"file:///a.png", "file:///b.png"}) {
		t.Fatalf("callback = %+v; want both selections once", cb)
	}
	if h.bridge.Snapshot() != (Snapshot{}) {
		t.Fatalf("Snapshot() = %+v; want cleared", h.bridge.Snapshot())
	}
}

func TestCaptureWithPermissionGranted(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	cb := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)

	if len(h.perms.requests) != 0 {
		t.Fatalf("permission requests = %v; want none", h.perms.requests)
	}
	if len(h.acts.captures) != 1 {
		t.Fatalf("captures = %v; want one", h.acts.captures)
	}
	target := h.acts.captures[0]

	// No data returned: the capture target is the result.
	h.bridge.OnActivityResult(ActivityResult{OK: true})
	if cb.calls != 1 || !reflect.DeepEqual(cb.results[0], []string{target.URI}) {
		t.Fatalf("callback = %+v; want capture target", cb)
	}
	if len(h.files.discarded) != 0 {
		t.Fatalf("discarded = %v; want capture kept", h.files.discarded)
	}
}

func TestScenarioCaptureGrantedAfterPrompt(t *testing.T) {
	h := newHarness(modern)
	cb := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)

	if len(h.perms.requests) != 1 || h.perms.requests[0].kind != KindFileCapture {
		t.Fatalf("permission requests = %+v; want one file capture prompt", h.perms.requests)
	}
	if len(h.acts.captures) != 0 {
		t.Fatal("capture launched before permission result")
	}
	if !h.bridge.Snapshot().AwaitingPermission {
		t.Fatal("Snapshot().AwaitingPermission = false; want true")
	}

	h.bridge.OnPermissionResult(PermissionResult{Kind: KindFileCapture, Grants: map[Permission]bool{PermissionCamera: true}})

	if h.files.created != 1 || len(h.acts.captures) != 1 {
		t.Fatalf("created = %d captures = %v; want one fresh capture", h.files.created, h.acts.captures)
	}
	if cb.calls != 0 {
		t.Fatal("callback resolved before activity result")
	}
}

func TestScenarioCaptureDenied(t *testing.T) {
	h := newHarness(modern)
	cb := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)
	h.bridge.OnPermissionResult(PermissionResult{Kind: KindFileCapture, Grants: map[Permission]bool{PermissionCamera: false}})

	if cb.calls != 1 || cb.results[0] != nil {
		t.Fatalf("callback = %+v; want single nil delivery", cb)
	}
	if len(h.acts.captures) != 0 || len(h.acts.choosers) != 0 || h.files.created != 0 {
		t.Fatal("capture launched after denial")
	}
}

func TestCancelledPromptCountsAsDenied(t *testing.T) {
	h := newHarness(modern)
	cb := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)
	h.bridge.OnPermissionResult(PermissionResult{Kind: KindFileCapture})

	if cb.calls != 1 || cb.results[0] != nil {
		t.Fatalf("callback = %+v; want nil delivery on cancelled prompt", cb)
	}
}

func TestCaptureFallsBackToChooser(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	h.acts.captureErr = errors.New("no camera app")
	cb := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)

	if len(h.acts.choosers) != 1 {
		t.Fatalf("choosers = %v; want fallback chooser", h.acts.choosers)
	}

	// User picked an existing file from the chooser instead of capturing.
	h.bridge.OnActivityResult(ActivityResult{OK: true, Data: []string{"file:///gallery/1.jpg"}})
	if !reflect.DeepEqual(cb.results, [][]string{{"file:///gallery/1.jpg"}}) {
		t.Fatalf("callback results = %v; want explicit selection", cb.results)
	}
	if len(h.files.discarded) != 1 {
		t.Fatalf("discarded = %v; want unused capture target discarded", h.files.discarded)
	}
}

func TestCaptureAndChooserLaunchFailure(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	h.acts.captureErr = errors.New("no camera app")
	h.acts.chooserErr = errors.New("no chooser")
	cb := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)

	if cb.calls != 1 || cb.results[0] != nil {
		t.Fatalf("callback = %+v; want nil", cb)
	}
	if len(h.files.discarded) != 1 {
		t.Fatalf("discarded = %v; want capture target discarded", h.files.discarded)
	}
}

func TestCaptureFileCreationFailure(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	h.files.err = errors.New("disk full")
	cb := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)

	if cb.calls != 1 || cb.results[0] != nil {
		t.Fatalf("callback = %+v; want nil", cb)
	}
	if len(h.acts.captures) != 0 {
		t.Fatal("capture launched without a target")
	}
}

func TestCancelledCaptureDiscardsTarget(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	cb := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)
	h.bridge.OnActivityResult(ActivityResult{OK: false})

	if cb.calls != 1 || cb.results[0] != nil {
		t.Fatalf("callback = %+v; want nil", cb)
	}
	if len(h.files.discarded) != 1 {
		t.Fatalf("discarded = %v; want one", h.files.discarded)
	}
}

func TestStaleChooserResolvedFirst(t *testing.T) {
	h := newHarness(modern)
	first := &callbackRecorder{}
	second := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{}, first)
	h.bridge.FileChooser(FileChooserRequest{}, second)

	if first.calls != 1 || first.results[0] != nil {
		t.Fatalf("first callback = %+v; want nil delivery", first)
	}
	if second.calls != 0 {
		t.Fatal("second callback resolved early")
	}

	h.bridge.OnActivityResult(ActivityResult{OK: true, Data: []string{"file:///x"}})
	if second.calls != 1 || first.calls != 1 {
		t.Fatalf("calls = first %d second %d; want 1 and 1", first.calls, second.calls)
	}
}

func TestSupersededCaptureResultIgnored(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	first := &callbackRecorder{}
	second := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, first)
	h.bridge.FileChooser(FileChooserRequest{Capture: true}, second)

	if len(h.acts.ids) != 2 || h.acts.ids[0] == h.acts.ids[1] {
		t.Fatalf("launch ids = %v; want two distinct", h.acts.ids)
	}
	firstID, secondID := h.acts.ids[0], h.acts.ids[1]
	if got := h.bridge.Snapshot().ActivityRequest; got != secondID {
		t.Fatalf("Snapshot().ActivityRequest = %d; want %d", got, secondID)
	}

	// The first capture process finishes late.
	h.bridge.OnActivityResult(ActivityResult{Request: firstID, OK: true})
	if second.calls != 0 {
		t.Fatalf("second callback = %+v; resolved by earlier launch", second)
	}
	if last := h.events[len(h.events)-1]; last.Result != ResultStale {
		t.Fatalf("last event = %+v; want %s", last, ResultStale)
	}

	h.bridge.OnActivityResult(ActivityResult{Request: secondID, OK: true})
	want := h.acts.captures[1].URI
	if second.calls != 1 || !reflect.DeepEqual(second.results[0], []string{want}) {
		t.Fatalf("second callback = %+v; want %s", second, want)
	}
	if first.calls != 1 || first.results[0] != nil {
		t.Fatalf("first callback = %+v; want one nil delivery", first)
	}
}

func TestSupersededPickerResultIgnored(t *testing.T) {
	h := newHarness(modern)
	first := &callbackRecorder{}
	second := &callbackRecorder{}

	h.bridge.FileChooser(FileChooserRequest{}, first)
	h.bridge.FileChooser(FileChooserRequest{}, second)
	firstID, secondID := h.acts.ids[0], h.acts.ids[1]

	h.bridge.OnActivityResult(ActivityResult{Request: firstID, OK: true, Data: []string{"file:///old.txt"}})
	if second.calls != 0 {
		t.Fatal("second callback resolved with earlier picker's selection")
	}
	h.bridge.OnActivityResult(ActivityResult{Request: secondID, OK: true, Data: []string{"file:///new.txt"}})
	if !reflect.DeepEqual(second.results, [][]string{{"file:///new.txt"}}) {
		t.Fatalf("second results = %v; want new selection", second.results)
	}
}

func TestActivityResultWithoutRequestIgnored(t *testing.T) {
	h := newHarness(modern)
	h.bridge.OnActivityResult(ActivityResult{OK: true, Data: []string{"file:///x"}})
	if len(h.events) != 0 {
		t.Fatalf("events = %v; want none", h.events)
	}

	// Awaiting permission: no activity launched yet.
	cb := &callbackRecorder{}
	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)
	h.bridge.OnActivityResult(ActivityResult{OK: true})
	if cb.calls != 0 {
		t.Fatal("callback resolved by unrelated activity result")
	}
}

func TestAcceptFilterApplied(t *testing.T) {
	h := newHarness(modern)
	h.bridge.opts.Filter = func(files, accept []string) []string {
		if !reflect.DeepEqual(accept, []string{"application/pdf"}) {
			t.Fatalf("filter accept = %v", accept)
		}
		return files[:1]
	}
	cb := &callbackRecorder{}
	h.bridge.FileChooser(FileChooserRequest{AcceptTypes: []string{"application/pdf"}}, cb)
	h.bridge.OnActivityResult(ActivityResult{OK: true, Data: []string{"file:///a.pdf", "file:///b.exe"}})

	if !reflect.DeepEqual(cb.results, [][]string{{"file:///a.pdf"}}) {
		t.Fatalf("results = %v; want filtered selection", cb.results)
	}
}

func TestMediaGrantedImmediately(t *testing.T) {
	h := newHarness(modern, PermissionCamera, PermissionMicrophone)
	m := &fakeMedia{resources: []Resource{ResourceVideoCapture, ResourceAudioCapture}}

	h.bridge.MediaRequest(m)

	if len(h.perms.requests) != 0 {
		t.Fatalf("requests = %v; want none", h.perms.requests)
	}
	if len(m.granted) != 1 || !reflect.DeepEqual(m.granted[0], m.resources) {
		t.Fatalf("granted = %v; want full set", m.granted)
	}
}

func TestMediaPromptThenGrant(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	m := &fakeMedia{resources: []Resource{ResourceVideoCapture, ResourceAudioCapture}}

	h.bridge.MediaRequest(m)

	if len(h.perms.requests) != 1 || !reflect.DeepEqual(h.perms.requests[0].perms, []Permission{PermissionMicrophone}) {
		t.Fatalf("requests = %+v; want microphone prompt only", h.perms.requests)
	}
	h.bridge.OnPermissionResult(PermissionResult{Kind: KindMediaStream, Grants: map[Permission]bool{PermissionMicrophone: true}})
	if len(m.granted) != 1 || !reflect.DeepEqual(m.granted[0], m.resources) {
		t.Fatalf("granted = %v; want full set", m.granted)
	}
	if h.bridge.Snapshot().MediaPending {
		t.Fatal("media still pending after grant")
	}
}

func TestMediaDeniedNeverPartiallyGranted(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	m := &fakeMedia{resources: []Resource{ResourceVideoCapture, ResourceAudioCapture}}

	h.bridge.MediaRequest(m)
	h.bridge.OnPermissionResult(PermissionResult{Kind: KindMediaStream, Grants: map[Permission]bool{PermissionMicrophone: false}})

	if m.denied != 1 || len(m.granted) != 0 {
		t.Fatalf("denied = %d granted = %v; want full denial", m.denied, m.granted)
	}
}

func TestStaleMediaDenied(t *testing.T) {
	h := newHarness(modern)
	first := &fakeMedia{resources: []Resource{ResourceAudioCapture}}
	second := &fakeMedia{resources: []Resource{ResourceAudioCapture}}

	h.bridge.MediaRequest(first)
	h.bridge.MediaRequest(second)

	if first.denied != 1 {
		t.Fatalf("first denied = %d; want 1", first.denied)
	}
	h.bridge.OnPermissionResult(PermissionResult{Kind: KindMediaStream, Grants: map[Permission]bool{PermissionMicrophone: true}})
	if len(second.granted) != 1 || len(first.granted) != 0 {
		t.Fatalf("second granted = %v first granted = %v", second.granted, first.granted)
	}
}

func TestPermissionFanIn(t *testing.T) {
	t.Run("granted resolves both", func(t *testing.T) {
		h := newHarness(modern)
		cb := &callbackRecorder{}
		m := &fakeMedia{resources: []Resource{ResourceVideoCapture}}

		h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)
		h.bridge.MediaRequest(m)
		h.bridge.OnPermissionResult(PermissionResult{Kind: KindMediaStream, Grants: map[Permission]bool{PermissionCamera: true}})

		if len(h.acts.captures) != 1 {
			t.Fatalf("captures = %v; want relaunch", h.acts.captures)
		}
		if len(m.granted) != 1 {
			t.Fatalf("media granted = %v; want grant", m.granted)
		}
	})

	t.Run("denied resolves both", func(t *testing.T) {
		h := newHarness(modern)
		cb := &callbackRecorder{}
		m := &fakeMedia{resources: []Resource{ResourceVideoCapture}}

		h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)
		h.bridge.MediaRequest(m)
		h.bridge.OnPermissionResult(PermissionResult{Kind: KindFileCapture, Grants: map[Permission]bool{PermissionCamera: false}})

		if cb.calls != 1 || cb.results[0] != nil {
			t.Fatalf("callback = %+v; want nil", cb)
		}
		if m.denied != 1 {
			t.Fatalf("media denied = %d; want 1", m.denied)
		}
		if h.bridge.Snapshot() != (Snapshot{}) {
			t.Fatalf("Snapshot() = %+v; want cleared", h.bridge.Snapshot())
		}
	})
}

func TestPermissionPromptFailureResolves(t *testing.T) {
	h := newHarness(modern)
	h.perms.err = errors.New("prompt unavailable")
	cb := &callbackRecorder{}
	m := &fakeMedia{resources: []Resource{ResourceAudioCapture}}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)
	h.bridge.MediaRequest(m)

	if cb.calls != 1 || cb.results[0] != nil {
		t.Fatalf("callback = %+v; want nil", cb)
	}
	if m.denied != 1 {
		t.Fatalf("media denied = %d; want 1", m.denied)
	}
}

func TestResetResolvesEverything(t *testing.T) {
	h := newHarness(modern, PermissionCamera)
	cb := &callbackRecorder{}
	m := &fakeMedia{resources: []Resource{ResourceAudioCapture}}

	h.bridge.FileChooser(FileChooserRequest{Capture: true}, cb)
	h.bridge.MediaRequest(m)
	h.bridge.Reset()

	if cb.calls != 1 || m.denied != 1 {
		t.Fatalf("callback calls = %d media denied = %d; want 1 and 1", cb.calls, m.denied)
	}
	if len(h.files.discarded) != 1 {
		t.Fatalf("discarded = %v; want capture target discarded", h.files.discarded)
	}
}
