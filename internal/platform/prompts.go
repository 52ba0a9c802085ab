// Package platform provides the host OS adapters the capability bridge talks
// to: a permission prompt queue, capture file storage, an activity runner
// and accept-type filtering.
package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
)

// ErrPromptNotFound is returned when answering an unknown prompt.
var ErrPromptNotFound = errors.New("permission prompt not found")

// ErrNotBound is returned by Request before a result sink is bound.
var ErrNotBound = errors.New("permission prompt queue has no result sink")

// Prompt is one outstanding native permission dialog.
type Prompt struct {
	ID          string                  `json:"id"`
	Kind        capability.RequestKind  `json:"kind"`
	Permissions []capability.Permission `json:"permissions"`
	CreatedAt   time.Time               `json:"created_at"`
}

// PromptQueue stands in for the OS permission dialog. Prompts wait until
// they are answered through the control API, or are granted immediately
// when auto-grant is on. It implements capability.PermissionService.
type PromptQueue struct {
	grants    *GrantStore
	autoGrant bool

	mu       sync.Mutex
	order    []string
	pending  map[string]Prompt
	deliver  func(capability.PermissionResult)
	onChange func(prompts []Prompt)
}

// NewPromptQueue remembers answers in grants.
func NewPromptQueue(grants *GrantStore, autoGrant bool) *PromptQueue {
	return &PromptQueue{
		grants:    grants,
		autoGrant: autoGrant,
		pending:   make(map[string]Prompt),
	}
}

// Bind sets where prompt results are sent and who is told about queue
// changes. deliver must not block on the caller of Request.
func (q *PromptQueue) Bind(deliver func(capability.PermissionResult), onChange func([]Prompt)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deliver = deliver
	q.onChange = onChange
}

// Granted reports a remembered grant.
func (q *PromptQueue) Granted(p capability.Permission) bool {
	return q.grants.Granted(p)
}

// Request opens a prompt for perms. The answer arrives later through the
// bound sink, never synchronously.
func (q *PromptQueue) Request(kind capability.RequestKind, perms []capability.Permission) error {
	q.mu.Lock()
	if q.deliver == nil {
		q.mu.Unlock()
		return ErrNotBound
	}
	prompt := Prompt{
		ID:          uuid.New().String(),
		Kind:        kind,
		Permissions: append([]capability.Permission(nil), perms...),
		CreatedAt:   time.Now().UTC(),
	}
	if q.autoGrant {
		deliver := q.deliver
		q.mu.Unlock()
		if err := q.grants.Set(prompt.Permissions, true); err != nil {
			slog.Warn("grant store save failed", "error", err)
		}
		slog.Info("permission auto-granted", "kind", kind, "permissions", perms)
		go deliver(result(prompt, true))
		return nil
	}
	q.pending[prompt.ID] = prompt
	q.order = append(q.order, prompt.ID)
	snapshot, onChange := q.listLocked(), q.onChange
	q.mu.Unlock()

	slog.Info("permission prompt opened", "id", prompt.ID, "kind", kind, "permissions", perms)
	if onChange != nil {
		onChange(snapshot)
	}
	return nil
}

// List returns outstanding prompts, oldest first.
func (q *PromptQueue) List() []Prompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.listLocked()
}

func (q *PromptQueue) listLocked() []Prompt {
	out := make([]Prompt, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.pending[id])
	}
	return out
}

// Answer resolves a prompt as the user would.
func (q *PromptQueue) Answer(id string, granted bool) (Prompt, error) {
	q.mu.Lock()
	prompt, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return Prompt{}, fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}
	q.removeLocked(id)
	snapshot, onChange, deliver := q.listLocked(), q.onChange, q.deliver
	q.mu.Unlock()

	if err := q.grants.Set(prompt.Permissions, granted); err != nil {
		slog.Warn("grant store save failed", "error", err)
	}
	slog.Info("permission prompt answered", "id", id, "kind", prompt.Kind, "granted", granted)
	if onChange != nil {
		onChange(snapshot)
	}
	deliver(result(prompt, granted))
	return prompt, nil
}

// CancelAll resolves every outstanding prompt as cancelled. Nothing is
// remembered for cancelled prompts.
func (q *PromptQueue) CancelAll() {
	q.mu.Lock()
	prompts := q.listLocked()
	q.order = nil
	q.pending = make(map[string]Prompt)
	onChange, deliver := q.onChange, q.deliver
	q.mu.Unlock()

	if len(prompts) == 0 {
		return
	}
	if onChange != nil {
		onChange(nil)
	}
	for _, p := range prompts {
		slog.Info("permission prompt cancelled", "id", p.ID, "kind", p.Kind)
		if deliver != nil {
			deliver(capability.PermissionResult{Kind: p.Kind})
		}
	}
}

func (q *PromptQueue) removeLocked(id string) {
	delete(q.pending, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

func result(p Prompt, granted bool) capability.PermissionResult {
	grants := make(map[capability.Permission]bool, len(p.Permissions))
	for _, perm := range p.Permissions {
		grants[perm] = granted
	}
	return capability.PermissionResult{Kind: p.Kind, Grants: grants}
}
