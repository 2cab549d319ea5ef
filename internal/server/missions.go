package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"ares/internal/domain"
	"ares/internal/engine"
)

type missionOutput struct {
	Body domain.Mission `json:"body"`
}

func parseLocation(raw string, allowEmpty bool) (domain.Location, huma.StatusError) {
	loc := domain.Location(strings.ToLower(strings.TrimSpace(raw)))
	if loc == "" && allowEmpty {
		return "", nil
	}
	if !loc.Valid() {
		return "", newAPIError(http.StatusBadRequest, "bad_request", "type must be create or update", map[string]any{"type": raw})
	}
	return loc, nil
}

// bodyName reconciles the mission named in the path with the payload.
func bodyName(pathName string, m *domain.Mission) huma.StatusError {
	name := strings.TrimSpace(m.ScriptName)
	if name == "" {
		m.ScriptName = pathName
		return nil
	}
	if name != pathName {
		return newAPIError(http.StatusBadRequest, "bad_request", "script_name does not match path", map[string]any{"path": pathName, "script_name": name})
	}
	return nil
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions of one store",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type    string `query:"type" enum:"create,update" default:"create"`
		Keyword string `query:"keyword"`
		Page    int    `query:"page" default:"1"`
		Size    int    `query:"size" default:"20"`
	}) (*struct {
		Body engine.MissionPage `json:"body"`
	}, error) {
		loc, herr := parseLocation(input.Type, false)
		if herr != nil {
			return nil, herr
		}
		page, err := e.ListMissions(ctx, engine.ListQuery{Location: loc, Keyword: input.Keyword, Page: input.Page, Size: input.Size})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MissionPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create a mission",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body domain.Mission `json:"body"`
	}) (*missionOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		m, err := e.CreateMission(ctx, input.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{name}",
		Summary:     "Get a mission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
		Type string `query:"type"`
	}) (*missionOutput, error) {
		loc, herr := parseLocation(input.Type, true)
		if herr != nil {
			return nil, herr
		}
		m, err := e.GetMission(ctx, loc, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recreate-mission",
		Method:      http.MethodPut,
		Path:        "/missions/{name}",
		Summary:     "Resubmit a mission from the create store",
		Description: "Restarts the mission at assess. A different script_name in the body renames it.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Name string         `path:"name"`
		Body domain.Mission `json:"body"`
	}) (*missionOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.ModifyMission(ctx, input.Name, input.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{name}/transitions",
		Summary:     "Move a mission one step",
		Description: "The body carries the edited record; status and revision must match the stored mission.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Name  string         `path:"name"`
		Type  string         `query:"type" enum:"create,update" required:"true"`
		Order string         `query:"order" enum:"next,prev" default:"next"`
		Body  domain.Mission `json:"body"`
	}) (*missionOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		loc, herr := parseLocation(input.Type, false)
		if herr != nil {
			return nil, herr
		}
		payload := input.Body
		if herr := bodyName(input.Name, &payload); herr != nil {
			return nil, herr
		}
		m, err := e.UpdateMission(ctx, payload, loc, domain.Order(input.Order), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reschedule-mission",
		Method:      http.MethodPut,
		Path:        "/missions/{name}/schedules",
		Summary:     "Move a mission's schedule dates",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Name string            `path:"name"`
		Type string            `query:"type" enum:"create,update" required:"true"`
		Body RescheduleRequest `json:"body"`
	}) (*missionOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		loc, herr := parseLocation(input.Type, false)
		if herr != nil {
			return nil, herr
		}
		m, err := e.RescheduleMission(ctx, domain.Reschedule{
			Name:      input.Name,
			Comment:   input.Body.Comment,
			Submitter: input.Body.Submitter,
			Href:      input.Body.Href,
			Type:      loc,
			Schedules: input.Body.Schedules,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rotate-testers",
		Method:      http.MethodPut,
		Path:        "/missions/{name}/testers",
		Summary:     "Replace a mission's testers",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Name string        `path:"name"`
		Type string        `query:"type" enum:"create,update" required:"true"`
		Body RotateRequest `json:"body"`
	}) (*missionOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		loc, herr := parseLocation(input.Type, false)
		if herr != nil {
			return nil, herr
		}
		m, err := e.RotateTesters(ctx, domain.Rotate{
			Name:      input.Name,
			Comment:   input.Body.Comment,
			Submitter: input.Body.Submitter,
			Href:      input.Body.Href,
			Type:      loc,
			TEName:    input.Body.TEName,
			Current:   input.Body.Current,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-mission",
		Method:      http.MethodDelete,
		Path:        "/missions/{name}",
		Summary:     "Delete or roll back a mission",
		Description: "Create-store missions are removed. Update-store missions roll back to the record saved when the update started, unless force is set.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Name  string `path:"name"`
		Type  string `query:"type" enum:"create,update" required:"true"`
		Force bool   `query:"force"`
	}) (*missionOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		loc, herr := parseLocation(input.Type, false)
		if herr != nil {
			return nil, herr
		}
		m, err := e.DeleteMission(ctx, input.Name, loc, input.Force, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: m}, nil
	})
}
