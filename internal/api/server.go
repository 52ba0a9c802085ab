package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
	"github.com/dgnsrekt/nearil_shell/internal/platform"
	"github.com/dgnsrekt/nearil_shell/internal/shell"
)

// Service is everything the control API can ask of the running shell.
type Service interface {
	Activate(ctx context.Context, ev deeplink.ActivationEvent) (deeplink.Outcome, error)
	State(ctx context.Context) (shell.State, error)
	Decide(ctx context.Context, rawURL string) (navigation.Decision, error)
	ListPrompts(ctx context.Context) ([]platform.Prompt, error)
	AnswerPrompt(ctx context.Context, id string, granted bool) (platform.Prompt, error)
	ListGrants(ctx context.Context) (map[capability.Permission]platform.Grant, error)
	RevokeGrant(ctx context.Context, perm capability.Permission) error
	ActivityResult(ctx context.Context, res capability.ActivityResult) error
	ListCaptures(ctx context.Context) ([]platform.CaptureInfo, error)
}

// Options mounts the non-huma endpoints. Nil handlers are not mounted.
type Options struct {
	Events   http.Handler
	Metrics  http.Handler
	DevTools http.Handler
	// Middleware wraps every request, e.g. request metrics.
	Middleware []func(http.Handler) http.Handler
}

type decisionBody struct {
	Verdict string             `json:"verdict" enum:"allow,intercept"`
	Rule    string             `json:"rule"`
	URL     string             `json:"url"`
	Intent  *navigation.Intent `json:"intent,omitempty"`
}

func toDecisionBody(d navigation.Decision) decisionBody {
	return decisionBody{Verdict: d.Verdict.String(), Rule: d.Rule, URL: d.URL, Intent: d.Intent}
}

type outcomeOutput struct {
	Body deeplink.Outcome
}

type stateOutput struct {
	Body shell.State
}

type decisionOutput struct {
	Body decisionBody
}

type promptOutput struct {
	Body platform.Prompt
}

type listPromptsOutput struct {
	Body struct {
		Prompts []platform.Prompt `json:"prompts"`
	}
}

type listGrantsOutput struct {
	Body struct {
		Grants map[capability.Permission]platform.Grant `json:"grants"`
	}
}

type listCapturesOutput struct {
	Body struct {
		Captures []platform.CaptureInfo `json:"captures"`
	}
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	for _, mw := range opts.Middleware {
		router.Use(mw)
	}

	cfg := huma.DefaultConfig("Nearil Shell Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	var streams []docsLink
	if opts.Events != nil {
		router.Method(http.MethodGet, "/events", opts.Events)
		streams = append(streams, docsLink{Path: "/events", Label: "Shell decisions as server-sent events"})
	}
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
		streams = append(streams, docsLink{Path: "/metrics", Label: "Prometheus metrics"})
	}
	if opts.DevTools != nil {
		router.Method(http.MethodGet, "/devtools", opts.DevTools)
		streams = append(streams, docsLink{Path: "/devtools", Label: "DevTools protocol relay (WebSocket)"})
	}
	router.Get("/docs", docsHandler(api.OpenAPI(), streams))

	registerShellHandlers(api, svc)
	registerPermissionHandlers(api, svc)
	registerActivityHandlers(api, svc)

	return router
}

func registerShellHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "activate", Method: http.MethodPost, Path: "/api/v1/activation", Summary: "Deliver an activation event", Tags: []string{"Shell"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Action string `json:"action,omitempty" default:"VIEW" doc:"Activation action; only VIEW carries a routable URI"`
				URI    string `json:"uri" required:"true" doc:"Deep link or auth callback URI"`
			}
		}) (*outcomeOutput, error) {
			action := input.Body.Action
			if action == "" {
				action = deeplink.ActionView
			}
			outcome, err := svc.Activate(ctx, deeplink.ActivationEvent{Action: action, URI: input.Body.URI})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &outcomeOutput{}
			out.Body = outcome
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/v1/state", Summary: "Get reconciler and capability state", Tags: []string{"Shell"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			st, err := svc.State(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &stateOutput{}
			out.Body = st
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "decide-navigation", Method: http.MethodPost, Path: "/api/v1/navigation/decide", Summary: "Dry-run the navigation dispatcher for a URL", Tags: []string{"Navigation"}},
		func(ctx context.Context, input *struct {
			Body struct {
				URL string `json:"url" required:"true" doc:"URL the browser would navigate to"`
			}
		}) (*decisionOutput, error) {
			dec, err := svc.Decide(ctx, input.Body.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &decisionOutput{}
			out.Body = toDecisionBody(dec)
			return out, nil
		})
}

func registerPermissionHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "list-prompts", Method: http.MethodGet, Path: "/api/v1/permissions/prompts", Summary: "List outstanding permission prompts", Tags: []string{"Permissions"}},
		func(ctx context.Context, input *struct{}) (*listPromptsOutput, error) {
			prompts, err := svc.ListPrompts(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listPromptsOutput{}
			out.Body.Prompts = prompts
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "answer-prompt", Method: http.MethodPost, Path: "/api/v1/permissions/prompts/{prompt_id}", Summary: "Answer a permission prompt", Tags: []string{"Permissions"}},
		func(ctx context.Context, input *struct {
			PromptID string `path:"prompt_id"`
			Body     struct {
				Granted bool `json:"granted" doc:"Grant every permission in the prompt, or deny them all"`
			}
		}) (*promptOutput, error) {
			prompt, err := svc.AnswerPrompt(ctx, input.PromptID, input.Body.Granted)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &promptOutput{}
			out.Body = prompt
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "list-grants", Method: http.MethodGet, Path: "/api/v1/permissions/grants", Summary: "List remembered permission answers", Tags: []string{"Permissions"}},
		func(ctx context.Context, input *struct{}) (*listGrantsOutput, error) {
			grants, err := svc.ListGrants(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listGrantsOutput{}
			out.Body.Grants = grants
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "revoke-grant", Method: http.MethodDelete, Path: "/api/v1/permissions/grants/{permission}", Summary: "Forget a remembered permission answer", Tags: []string{"Permissions"}},
		func(ctx context.Context, input *struct {
			Permission string `path:"permission" doc:"camera, microphone or write_storage"`
		}) (*statusOutput, error) {
			if err := svc.RevokeGrant(ctx, capability.Permission(input.Permission)); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Status = "revoked"
			return out, nil
		})
}

func registerActivityHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "activity-result", Method: http.MethodPost, Path: "/api/v1/activities/result", Summary: "Complete the outstanding pick or capture activity", Tags: []string{"Activities"}},
		func(ctx context.Context, input *struct {
			Body capability.ActivityResult
		}) (*statusOutput, error) {
			if err := svc.ActivityResult(ctx, input.Body); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Status = "delivered"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "list-captures", Method: http.MethodGet, Path: "/api/v1/captures", Summary: "List capture files", Tags: []string{"Activities"}},
		func(ctx context.Context, input *struct{}) (*listCapturesOutput, error) {
			captures, err := svc.ListCaptures(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listCapturesOutput{}
			out.Body.Captures = captures
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, platform.ErrPromptNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("shell loop did not answer in time")
	}
	var coded *shell.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case shell.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case shell.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case shell.CodeShellStopped:
			return huma.Error503ServiceUnavailable(coded.Message)
		case shell.CodeBrowserUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
