// Package server exposes the ledger over a read-only HTTP API: awards,
// scoreboards, disposition lookups and the reconciliation audit trail.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"kudosbot/internal/domain"
	"kudosbot/internal/events"
	"kudosbot/internal/ledger"
	"kudosbot/internal/report"
)

// Config for the HTTP API handler.
type Config struct {
	Ledger   ledger.Ledger
	Events   events.Writer
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"no disposition logged for comment"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the kudosbot API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Kudosbot API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAwards(group, cfg.Ledger)
	registerScoreboard(group, cfg.Ledger)
	registerDispositions(group, cfg.Ledger)
	registerEvents(group, cfg.Events)

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
	if errors.Is(err, ledger.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

type awardsQuery struct {
	Awardee string `query:"awardee" doc:"Filter by awarded comment author"`
	Year    int    `query:"year" doc:"Filter by award month (requires month)"`
	Month   int    `query:"month" minimum:"0" maximum:"12"`
}

type awardsBody struct {
	Awards []domain.Award `json:"awards"`
	Total  int            `json:"total"`
}

func registerAwards(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-awards",
		Method:      http.MethodGet,
		Path:        "/awards",
		Summary:     "List awards",
	}, func(ctx context.Context, input *awardsQuery) (*struct {
		Body awardsBody `json:"body"`
	}, error) {
		awards, err := queryAwards(ctx, l, input)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body awardsBody `json:"body"`
		}{Body: awardsBody{Awards: awards, Total: len(awards)}}, nil
	})
}

func queryAwards(ctx context.Context, l ledger.Ledger, input *awardsQuery) ([]domain.Award, huma.StatusError) {
	if (input.Year == 0) != (input.Month == 0) {
		return nil, newAPIError(http.StatusBadRequest, "bad_request", "year and month must be given together", nil)
	}
	var (
		awards []domain.Award
		err    error
	)
	switch {
	case input.Year != 0:
		awards, err = l.AwardsByMonth(ctx, input.Year, time.Month(input.Month))
	case input.Awardee != "":
		awards, err = l.AwardsByAwardee(ctx, input.Awardee)
	default:
		awards, err = l.AllAwards(ctx)
	}
	if err != nil {
		return nil, handleError(err)
	}
	if input.Awardee != "" && input.Year != 0 {
		filtered := awards[:0]
		for _, a := range awards {
			if a.AwardedCommentAuthor == input.Awardee {
				filtered = append(filtered, a)
			}
		}
		awards = filtered
	}
	if awards == nil {
		awards = []domain.Award{}
	}
	return awards, nil
}

type scoreboardQuery struct {
	Year  int `query:"year"`
	Month int `query:"month" minimum:"0" maximum:"12"`
	Limit int `query:"limit" doc:"Maximum rows, 0 for all"`
}

func registerScoreboard(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "scoreboard",
		Method:      http.MethodGet,
		Path:        "/scoreboard",
		Summary:     "Award scoreboard",
	}, func(ctx context.Context, input *scoreboardQuery) (*struct {
		Body struct {
			Leaders []report.Leader `json:"leaders"`
		} `json:"body"`
	}, error) {
		awards, err := queryAwards(ctx, l, &awardsQuery{Year: input.Year, Month: input.Month})
		if err != nil {
			return nil, err
		}
		leaders := report.TopAwardees(awards, input.Limit)
		if leaders == nil {
			leaders = []report.Leader{}
		}
		out := &struct {
			Body struct {
				Leaders []report.Leader `json:"leaders"`
			} `json:"body"`
		}{}
		out.Body.Leaders = leaders
		return out, nil
	})
}

func registerDispositions(api huma.API, l ledger.Ledger) {
	type dispoPath struct {
		CommentID string `path:"comment_id"`
	}
	type dispoBody struct {
		CommentID   string  `json:"comment_id"`
		Dispo       string  `json:"dispo"`
		ReplyID     string  `json:"reply_id,omitempty"`
		CommentTime float64 `json:"comment_time"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-disposition",
		Method:      http.MethodGet,
		Path:        "/dispositions/{comment_id}",
		Summary:     "Last logged disposition for a comment",
	}, func(ctx context.Context, input *dispoPath) (*struct {
		Body dispoBody `json:"body"`
	}, error) {
		entry, err := l.GetDispositionLog(ctx, input.CommentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dispoBody `json:"body"`
		}{Body: dispoBody{
			CommentID:   entry.CommentID,
			Dispo:       entry.Dispo.String(),
			ReplyID:     entry.ReplyID,
			CommentTime: entry.CommentTime,
		}}, nil
	})
}

func registerEvents(api huma.API, w events.Writer) {
	type eventsQuery struct {
		Limit int `query:"limit"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent reconciliation events",
	}, func(ctx context.Context, input *eventsQuery) (*struct {
		Body struct {
			Events []domain.ReconEvent `json:"events"`
		} `json:"body"`
	}, error) {
		evts, err := w.Recent(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if evts == nil {
			evts = []domain.ReconEvent{}
		}
		out := &struct {
			Body struct {
				Events []domain.ReconEvent `json:"events"`
			} `json:"body"`
		}{}
		out.Body.Events = evts
		return out, nil
	})
}
