package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"ares/internal/engine"
	"ares/internal/logging"
)

func registerMissionViews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "mission-history",
		Method:      http.MethodGet,
		Path:        "/missions/{name}/history",
		Summary:     "Mission history, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
		Type string `query:"type"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		loc, herr := parseLocation(input.Type, true)
		if herr != nil {
			return nil, herr
		}
		items, err := e.History(ctx, loc, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mission-snapshots",
		Method:      http.MethodGet,
		Path:        "/missions/{name}/snapshots",
		Summary:     "Copies of a mission taken at each release",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body SnapshotsResponse `json:"body"`
	}, error) {
		items, err := e.Snapshots(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SnapshotsResponse `json:"body"`
		}{Body: SnapshotsResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mission-changelist",
		Method:      http.MethodGet,
		Path:        "/missions/{name}/changelist",
		Summary:     "Release notes per version",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body ChangelistResponse `json:"body"`
	}, error) {
		items, err := e.Changelist(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChangelistResponse `json:"body"`
		}{Body: ChangelistResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-names",
		Method:      http.MethodGet,
		Path:        "/names",
		Summary:     "Every stored mission name",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body NamesResponse `json:"body"`
	}, error) {
		names, err := e.MissionNames(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NamesResponse `json:"body"`
		}{Body: NamesResponse{Items: nonNil(names)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-name",
		Method:      http.MethodGet,
		Path:        "/names/{name}",
		Summary:     "Whether a script name is still free",
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body NameCheckResponse `json:"body"`
	}, error) {
		ok, err := e.ValidateName(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NameCheckResponse `json:"body"`
		}{Body: NameCheckResponse{Name: input.Name, Available: ok}}, nil
	})
}

func registerCustomers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-customers",
		Method:      http.MethodGet,
		Path:        "/customers",
		Summary:     "Configured customers, or those a script name maps to",
	}, func(ctx context.Context, input *struct {
		ScriptName string `query:"script_name"`
	}) (*struct {
		Body CustomersResponse `json:"body"`
	}, error) {
		customers := e.Customers()
		if name := strings.TrimSpace(input.ScriptName); name != "" {
			customers = e.CustomersFor(name)
		}
		return &struct {
			Body CustomersResponse `json:"body"`
		}{Body: CustomersResponse{Customers: nonNil(customers)}}, nil
	})
}

func registerEffects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-effects",
		Method:      http.MethodGet,
		Path:        "/effects",
		Summary:     "Queued and executed side effects, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status  string `query:"status" enum:"pending,running,done,failed,"`
		Mission string `query:"mission"`
		Limit   int    `query:"limit" default:"50"`
	}) (*struct {
		Body EffectsResponse `json:"body"`
	}, error) {
		items, err := e.Effects(ctx, input.Status, input.Mission, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EffectsResponse `json:"body"`
		}{Body: EffectsResponse{Items: nonNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "retry-effect",
		Method:        http.MethodPost,
		Path:          "/effects/{id}/retry",
		Summary:       "Queue a failed side effect again",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.RetryEffect(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent audit events",
	}, func(ctx context.Context, input *struct {
		Mission string `query:"mission"`
		Limit   int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		items, err := e.AuditLog(ctx, input.Mission, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Items: nonNil(items)}}, nil
	})
}

func registerRemind(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "remind",
		Method:      http.MethodPost,
		Path:        "/remind",
		Summary:     "Queue due notices for idle missions",
	}, func(ctx context.Context, input *struct {
		Force bool `query:"force"`
	}) (*struct {
		Body engine.RemindReport `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.Remind(ctx, input.Force)
		if err != nil {
			return nil, handleError(err)
		}
		logging.Or(e.Logger).Info("remind round", "actor", actorID, "skipped", report.Skipped, "sent", len(report.Sent))
		return &struct {
			Body engine.RemindReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		var ttl time.Duration
		if input.Body.TTL != "" {
			d, err := time.ParseDuration(input.Body.TTL)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid ttl", map[string]any{"ttl": input.Body.TTL})
			}
			ttl = d
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles, ttl)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
