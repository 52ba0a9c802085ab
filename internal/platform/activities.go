package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
)

// OutputPlaceholder in a capture command is replaced by the target path.
const OutputPlaceholder = "{output}"

// CommandFunc runs a command to completion and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ActivityRunner runs pick and capture flows as external desktop commands.
// An empty command leaves the activity open until a result is posted
// through the control API. It implements capability.ActivityLauncher.
type ActivityRunner struct {
	ctx        context.Context
	captureCmd []string
	pickerCmd  []string
	run        CommandFunc
	lookPath   func(string) (string, error)
	deliver    func(capability.ActivityResult)
}

// NewActivityRunner builds a runner. Commands are split on whitespace. A nil
// run executes real processes after checking they are on PATH.
func NewActivityRunner(ctx context.Context, captureCommand, pickerCommand string, run CommandFunc) *ActivityRunner {
	r := &ActivityRunner{
		ctx:        ctx,
		captureCmd: strings.Fields(captureCommand),
		pickerCmd:  strings.Fields(pickerCommand),
		run:        run,
		lookPath:   func(name string) (string, error) { return name, nil },
	}
	if run == nil {
		r.run = runCommand
		r.lookPath = exec.LookPath
	}
	return r
}

// Bind sets where activity results are sent.
func (r *ActivityRunner) Bind(deliver func(capability.ActivityResult)) {
	r.deliver = deliver
}

// LaunchPicker starts the file picker.
func (r *ActivityRunner) LaunchPicker(id uint64, req capability.FileChooserRequest) error {
	return r.startPicker(id, req, "picker")
}

// LaunchChooser starts the picker as a combined chooser. The desktop picker
// has no capture entry, so a cancelled chooser yields a failed result and
// target is discarded by the bridge.
func (r *ActivityRunner) LaunchChooser(id uint64, req capability.FileChooserRequest, _ capability.CapturedFile) error {
	return r.startPicker(id, req, "chooser")
}

func (r *ActivityRunner) startPicker(id uint64, req capability.FileChooserRequest, activity string) error {
	if r.deliver == nil {
		return errors.New("activity runner has no result sink")
	}
	if len(r.pickerCmd) == 0 {
		slog.Info("file picker awaiting external result", "activity", activity, "request", id)
		return nil
	}
	name, args := r.pickerCmd[0], pickerArgs(r.pickerCmd, req)
	if _, err := r.lookPath(name); err != nil {
		return fmt.Errorf("%s command %q: %w", activity, name, err)
	}
	go func() {
		out, err := r.run(r.ctx, name, args...)
		if err != nil {
			slog.Info("file picker closed without selection", "activity", activity, "error", err)
			r.deliver(capability.ActivityResult{Request: id, OK: false})
			return
		}
		r.deliver(capability.ActivityResult{Request: id, OK: true, Data: parseSelection(out)})
	}()
	return nil
}

// LaunchCapture starts the capture command writing into target. Its result
// is tagged with id.
func (r *ActivityRunner) LaunchCapture(id uint64, target capability.CapturedFile) error {
	if r.deliver == nil {
		return errors.New("activity runner has no result sink")
	}
	if len(r.captureCmd) == 0 {
		slog.Info("capture awaiting external result", "target", target.Path, "request", id)
		return nil
	}
	name := r.captureCmd[0]
	if _, err := r.lookPath(name); err != nil {
		return fmt.Errorf("capture command %q: %w", name, err)
	}
	args := captureArgs(r.captureCmd, target.Path)
	go func() {
		if _, err := r.run(r.ctx, name, args...); err != nil {
			slog.Info("capture cancelled", "error", err)
			r.deliver(capability.ActivityResult{Request: id, OK: false})
			return
		}
		st, err := os.Stat(target.Path)
		if err != nil || st.Size() == 0 {
			slog.Warn("capture command produced no image", "target", target.Path)
			r.deliver(capability.ActivityResult{Request: id, OK: false})
			return
		}
		r.deliver(capability.ActivityResult{Request: id, OK: true})
	}()
	return nil
}

func captureArgs(cmd []string, output string) []string {
	args := make([]string, 0, len(cmd))
	replaced := false
	for _, a := range cmd[1:] {
		if strings.Contains(a, OutputPlaceholder) {
			a = strings.ReplaceAll(a, OutputPlaceholder, output)
			replaced = true
		}
		args = append(args, a)
	}
	if !replaced {
		args = append(args, output)
	}
	return args
}

// pickerArgs adds selection flags understood by zenity.
func pickerArgs(cmd []string, req capability.FileChooserRequest) []string {
	args := append([]string(nil), cmd[1:]...)
	if filepath.Base(cmd[0]) != "zenity" {
		return args
	}
	if req.Multiple {
		args = append(args, "--multiple", "--separator=\n")
	}
	if patterns := globPatterns(req.AcceptTypes); len(patterns) > 0 {
		args = append(args, "--file-filter="+strings.Join(patterns, " "))
	}
	return args
}

func globPatterns(accept []string) []string {
	var out []string
	for _, a := range accept {
		a = strings.TrimSpace(a)
		if strings.HasPrefix(a, ".") {
			out = append(out, "*"+a)
		}
	}
	return out
}

func parseSelection(out []byte) []string {
	var files []string
	for _, line := range strings.Split(string(bytes.TrimSpace(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "://") {
			files = append(files, line)
			continue
		}
		if abs, err := filepath.Abs(line); err == nil {
			line = abs
		}
		files = append(files, FileURI(line))
	}
	return files
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}
