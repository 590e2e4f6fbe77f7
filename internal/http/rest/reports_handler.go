package rest

import (
	"errors"
	"log"
	"net/http"

	"github.com/bwise1/safestreet/internal/pipeline"
	"github.com/bwise1/safestreet/util"
	"github.com/bwise1/safestreet/util/tracing"
	"github.com/bwise1/safestreet/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) ReportRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(api.RequireLogin)
		r.Method(http.MethodPost, "/", Handler(api.SubmitReport))
		r.Method(http.MethodPost, "/retry", Handler(api.RetrySubmission))
		r.Method(http.MethodGet, "/submission", Handler(api.GetSubmissionStatus))
		r.Method(http.MethodGet, "/mine", Handler(api.GetMyReports))
		r.Method(http.MethodGet, "/{reportID}", Handler(api.GetReportByID))
	})

	return mux
}

func submissionResponse(res pipeline.Result) *ServerResponse {
	status := outcomeStatus(res.Outcome)
	return &ServerResponse{
		Message:    res.Message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       res,
	}
}

func (api *API) SubmitReport(w http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	sub, err := api.submissionFromRequest(w, r, session.Account.ID)
	if err != nil {
		status := statusForError(err)
		if status == values.Error {
			status = values.BadRequestBody
		}
		return respondWithError(err, err.Error(), status, &tc)
	}

	res, err := api.Pipelines.For(session.SessionID).Submit(r.Context(), sub)
	if err != nil {
		return respondWithError(err, err.Error(), statusForError(err), &tc)
	}
	if res.Err != nil {
		log.Printf("[API] %s | %s: %v", tc, res.Message, res.Err)
	}
	return submissionResponse(res)
}

func (api *API) RetrySubmission(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	res, err := api.Pipelines.For(session.SessionID).Retry(r.Context())
	if err != nil {
		return respondWithError(err, err.Error(), statusForError(err), &tc)
	}
	if res.Err != nil {
		log.Printf("[API] %s | %s: %v", tc, res.Message, res.Err)
	}
	return submissionResponse(res)
}

func (api *API) GetSubmissionStatus(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	progress := pipeline.Progress{State: pipeline.StateIdle}
	if p, ok := api.Pipelines.Lookup(session.SessionID); ok {
		progress = p.Status()
	}

	return &ServerResponse{
		Message:    "Submission status retrieved",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       progress,
	}
}

func (api *API) GetMyReports(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	views, status, message, err := api.ListMyReportsHelper(r.Context(), session.Account.ID)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       views,
	}
}

func (api *API) GetReportByID(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	view, status, message, err := api.GetReportHelper(r.Context(), session, chi.URLParam(r, "reportID"))
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       view,
	}
}
