package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"backbeat/internal/domain"
	"backbeat/internal/engine"
	"backbeat/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"invalid posting date"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Backbeat API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Backbeat API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerGalaxies(group, cfg.Engine)
	registerSchedule(group, cfg.Engine)
	registerDeadlines(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerProfile(group, cfg.Engine)
	registerTeams(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerLog(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ie engine.InputError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	var ve engine.InvariantError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusConflict, "invariant_violation", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invariant_violation"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "store_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// viewerForGalaxy resolves the caller into an engine.Viewer scoped to the
// galaxy's team. The token's admin claim alone is never trusted; membership
// decides.
func viewerForGalaxy(ctx context.Context, e engine.Engine, galaxyID string) (engine.Viewer, huma.StatusError) {
	viewerID, authErr := viewerIDFromContext(ctx)
	if authErr != nil {
		return engine.Viewer{}, authErr
	}
	teamID, err := e.Repo.GetGalaxy(ctx, galaxyID)
	if err != nil {
		return engine.Viewer{}, handleError(err)
	}
	admin, err := e.Repo.IsAdmin(ctx, teamID, viewerID)
	if err != nil {
		return engine.Viewer{}, handleError(err)
	}
	return engine.Viewer{TeamID: teamID, ViewerID: viewerID, Admin: admin}, nil
}

func viewerForTeam(ctx context.Context, e engine.Engine, teamID string) (engine.Viewer, huma.StatusError) {
	viewerID, authErr := viewerIDFromContext(ctx)
	if authErr != nil {
		return engine.Viewer{}, authErr
	}
	admin, err := e.Repo.IsAdmin(ctx, teamID, viewerID)
	if err != nil {
		return engine.Viewer{}, handleError(err)
	}
	return engine.Viewer{TeamID: teamID, ViewerID: viewerID, Admin: admin}, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Backbeat API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerGalaxies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-galaxy",
		Method:        http.MethodPost,
		Path:          "/galaxies",
		Summary:       "Create galaxy",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateGalaxyRequest `json:"body"`
	}) (*struct {
		Body GalaxyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if input.Body.TeamID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "team_id is required", nil)
		}
		viewerID, authErr := viewerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		name := input.Body.Name
		if name == "" {
			name = input.Body.ID
		}
		if err := e.InitGalaxy(ctx, input.Body.TeamID, input.Body.ID, name, viewerID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GalaxyResponse `json:"body"`
		}{Body: GalaxyResponse{ID: input.Body.ID, TeamID: input.Body.TeamID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-galaxy",
		Method:      http.MethodGet,
		Path:        "/galaxies/{galaxy_id}",
		Summary:     "Get galaxy",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GalaxyID string `path:"galaxy_id"`
	}) (*struct {
		Body GalaxyResponse `json:"body"`
	}, error) {
		teamID, err := e.Repo.GetGalaxy(ctx, input.GalaxyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GalaxyResponse `json:"body"`
		}{Body: GalaxyResponse{ID: input.GalaxyID, TeamID: teamID}}, nil
	})
}

func registerSchedule(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/galaxies/{galaxy_id}/schedule",
		Summary:     "Compute posting schedule",
		Description: "Computes the release-anchored posting schedule. For administrators the slots are synchronized into shared calendar events; a store failure still returns the schedule with saved=false.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		GalaxyID string `path:"galaxy_id"`
		Weeks    int    `query:"weeks"`
	}) (*struct {
		Status int
		Body   ScheduleResponse `json:"body"`
	}, error) {
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		profile, err := e.Repo.GetProfile(ctx, input.GalaxyID)
		if err != nil {
			return nil, handleError(err)
		}
		slots, err := e.GenerateSchedule(profile, input.Weeks)
		if err != nil {
			return nil, handleError(err)
		}
		resp := ScheduleResponse{GalaxyID: input.GalaxyID, Slots: slots}
		status := http.StatusOK
		if v.Admin {
			sync, err := e.SyncEvents(ctx, v, input.GalaxyID, slots)
			if err != nil {
				// The schedule is still usable; tell the caller it was
				// not saved instead of failing the whole request.
				resp.Warning = "store_unavailable"
				status = http.StatusServiceUnavailable
			} else {
				resp.Saved = true
				resp.Sync = &sync
			}
		}
		return &struct {
			Status int
			Body   ScheduleResponse `json:"body"`
		}{Status: status, Body: resp}, nil
	})
}

func registerDeadlines(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-deadlines",
		Method:      http.MethodGet,
		Path:        "/galaxies/{galaxy_id}/deadlines",
		Summary:     "Backward-plan production deadlines",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GalaxyID string `path:"galaxy_id"`
		Date     string `query:"date" example:"2026-03-14"`
	}) (*struct {
		Body domain.Deadlines `json:"body"`
	}, error) {
		if _, authErr := viewerForGalaxy(ctx, e, input.GalaxyID); authErr != nil {
			return nil, authErr
		}
		if input.Date == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "date is required", nil)
		}
		d, err := e.PlanDeadlines(input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deadlines `json:"body"`
		}{Body: d}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	type TaskPath struct {
		GalaxyID string `path:"galaxy_id"`
		TaskID   string `path:"task_id"`
	}
	type taskBody struct {
		Body domain.TeamTask `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/galaxies/{galaxy_id}/tasks",
		Summary:     "List tasks visible to the caller",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GalaxyID string `path:"galaxy_id"`
	}) (*struct {
		Body []domain.TeamTask `json:"body"`
	}, error) {
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.TasksForViewer(ctx, v, input.GalaxyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TeamTask `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-calendar-events",
		Method:      http.MethodGet,
		Path:        "/galaxies/{galaxy_id}/events",
		Summary:     "List calendar events",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GalaxyID string `path:"galaxy_id"`
	}) (*struct {
		Body []domain.TeamTask `json:"body"`
	}, error) {
		if _, authErr := viewerForGalaxy(ctx, e, input.GalaxyID); authErr != nil {
			return nil, authErr
		}
		items, err := e.EventsForGalaxy(ctx, input.GalaxyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TeamTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/galaxies/{galaxy_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		GalaxyID string            `path:"galaxy_id"`
		Body     CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, v, engine.TaskCreateOptions{
			GalaxyID:    input.GalaxyID,
			Category:    input.Body.Category,
			Type:        input.Body.Type,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Date:        input.Body.Date,
			StartTime:   input.Body.StartTime,
			EndTime:     input.Body.EndTime,
			AssignedTo:  input.Body.AssignedTo,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task",
		Method:      http.MethodPost,
		Path:        "/galaxies/{galaxy_id}/tasks/{task_id}/assign",
		Summary:     "Assign task",
		Description: "Assigns a task to a team member. Synthetic default-* ids are materialized into durable tasks first.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body AssignTaskRequest `json:"body"`
	}) (*taskBody, error) {
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AssignTask(ctx, v, input.GalaxyID, input.TaskID, input.Body.AssigneeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reschedule-task",
		Method:      http.MethodPost,
		Path:        "/galaxies/{galaxy_id}/tasks/{task_id}/reschedule",
		Summary:     "Reschedule task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body RescheduleTaskRequest `json:"body"`
	}) (*taskBody, error) {
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Reschedule(ctx, v, input.TaskID, input.Body.Date, input.Body.StartTime, input.Body.EndTime)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/galaxies/{galaxy_id}/tasks/{task_id}/complete",
		Summary:     "Complete task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *TaskPath) (*taskBody, error) {
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CompleteTask(ctx, v, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/galaxies/{galaxy_id}/tasks/{task_id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, v, input.TaskID, engine.TaskUpdateOptions{
			Status:     input.Body.Status,
			PostStatus: input.Body.PostStatus,
			Notes:      input.Body.Notes,
			Caption:    input.Body.Caption,
			Hashtags:   input.Body.Hashtags,
			VideoRef:   input.Body.VideoRef,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/galaxies/{galaxy_id}/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *TaskPath) (*struct{}, error) {
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, v, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProfile(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/galaxies/{galaxy_id}/profile",
		Summary:     "Get content profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GalaxyID string `path:"galaxy_id"`
	}) (*struct {
		Body domain.ContentProfile `json:"body"`
	}, error) {
		if _, authErr := viewerForGalaxy(ctx, e, input.GalaxyID); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProfile(ctx, input.GalaxyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ContentProfile `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-profile",
		Method:      http.MethodPut,
		Path:        "/galaxies/{galaxy_id}/profile",
		Summary:     "Store content profile",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		GalaxyID string                `path:"galaxy_id"`
		Body     domain.ContentProfile `json:"body"`
	}) (*struct {
		Body domain.ContentProfile `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		v, authErr := viewerForGalaxy(ctx, e, input.GalaxyID)
		if authErr != nil {
			return nil, authErr
		}
		profile := input.Body
		profile.GalaxyID = input.GalaxyID
		p, err := e.SaveProfile(ctx, v, profile)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ContentProfile `json:"body"`
		}{Body: p}, nil
	})
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/teams/{team_id}/members",
		Summary:     "List team members",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TeamID string `path:"team_id"`
	}) (*struct {
		Body []domain.Member `json:"body"`
	}, error) {
		if _, authErr := viewerForTeam(ctx, e, input.TeamID); authErr != nil {
			return nil, authErr
		}
		members, err := e.Repo.ListMembers(ctx, input.TeamID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Member `json:"body"`
		}{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-member",
		Method:      http.MethodPut,
		Path:        "/teams/{team_id}/members/{viewer_id}",
		Summary:     "Add or update a team member",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TeamID   string              `path:"team_id"`
		ViewerID string              `path:"viewer_id"`
		Body     UpsertMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		v, authErr := viewerForTeam(ctx, e, input.TeamID)
		if authErr != nil {
			return nil, authErr
		}
		if !v.Admin {
			return nil, handleError(engine.InvariantError{Reason: "member management requires administrator permission"})
		}
		m := domain.Member{
			TeamID:   input.TeamID,
			ViewerID: input.ViewerID,
			Name:     input.Body.Name,
			Role:     input.Body.Role,
			Admin:    input.Body.Admin,
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/teams/{team_id}/members/{viewer_id}",
		Summary:       "Remove a team member",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusConflict,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TeamID   string `path:"team_id"`
		ViewerID string `path:"viewer_id"`
	}) (*struct{}, error) {
		v, authErr := viewerForTeam(ctx, e, input.TeamID)
		if authErr != nil {
			return nil, authErr
		}
		if !v.Admin {
			return nil, handleError(engine.InvariantError{Reason: "member management requires administrator permission"})
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := e.Repo.RemoveMember(ctx, tx, input.TeamID, input.ViewerID); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List notifications for the caller",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		viewerID, authErr := viewerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, viewerID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "read-notification",
		Method:        http.MethodPost,
		Path:          "/notifications/{notification_id}/read",
		Summary:       "Mark a notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		viewerID, authErr := viewerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkRead(ctx, input.NotificationID, viewerID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerLog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-log",
		Method:      http.MethodGet,
		Path:        "/galaxies/{galaxy_id}/log",
		Summary:     "List recent audit log entries",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GalaxyID   string `path:"galaxy_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"galaxy,task,profile"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := viewerForGalaxy(ctx, e, input.GalaxyID); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.GalaxyID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		var next string
		if len(items) > limit {
			items = items[:limit]
			next = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: paginatedEvents{Items: items, NextCursor: next}}, nil
	})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
