package api

import (
	"context"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
	"github.com/dgnsrekt/nearil_shell/internal/platform"
	"github.com/dgnsrekt/nearil_shell/internal/shell"
)

// ShellService adapts the running shell and its platform adapters to Service.
type ShellService struct {
	Shell    *shell.Shell
	Prompts  *platform.PromptQueue
	Grants   *platform.GrantStore
	Captures *platform.CaptureStore
}

var _ Service = (*ShellService)(nil)

func (s *ShellService) Activate(ctx context.Context, ev deeplink.ActivationEvent) (deeplink.Outcome, error) {
	return s.Shell.Activate(ctx, ev)
}

func (s *ShellService) State(ctx context.Context) (shell.State, error) {
	return s.Shell.State(ctx)
}

func (s *ShellService) Decide(ctx context.Context, rawURL string) (navigation.Decision, error) {
	return s.Shell.Decide(ctx, rawURL)
}

func (s *ShellService) ListPrompts(ctx context.Context) ([]platform.Prompt, error) {
	return s.Prompts.List(), nil
}

func (s *ShellService) AnswerPrompt(ctx context.Context, id string, granted bool) (platform.Prompt, error) {
	return s.Prompts.Answer(id, granted)
}

func (s *ShellService) ListGrants(ctx context.Context) (map[capability.Permission]platform.Grant, error) {
	return s.Grants.All(), nil
}

func (s *ShellService) RevokeGrant(ctx context.Context, perm capability.Permission) error {
	switch perm {
	case capability.PermissionCamera, capability.PermissionMicrophone, capability.PermissionWriteStorage:
	default:
		return &shell.CodedError{Code: shell.CodeValidation, Message: "unknown permission: " + string(perm)}
	}
	return s.Grants.Revoke(perm)
}

func (s *ShellService) ActivityResult(ctx context.Context, res capability.ActivityResult) error {
	return s.Shell.ActivityResult(res)
}

func (s *ShellService) ListCaptures(ctx context.Context) ([]platform.CaptureInfo, error) {
	return s.Captures.List()
}
