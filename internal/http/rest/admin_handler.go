package rest

import (
	"net/http"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util"
	"github.com/bwise1/safestreet/util/tracing"
	"github.com/bwise1/safestreet/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) AdminRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(api.RequireLogin)
		r.Use(api.RequireAdmin)
		r.Method(http.MethodGet, "/reports", Handler(api.ListReports))
		r.Method(http.MethodGet, "/reports/stats", Handler(api.GetReportStats))
		r.Method(http.MethodPatch, "/reports/{reportID}/status", Handler(api.UpdateReportStatus))
	})

	return mux
}

func (api *API) ListReports(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		return respondWithError(err, err.Error(), values.BadRequestBody, &tc)
	}

	page, status, message, err := api.ListReportsHelper(r.Context(), filter)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       page,
	}
}

func (api *API) GetReportStats(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	stats, status, message, err := api.ReportStatsHelper(r.Context())
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       stats,
	}
}

func (api *API) UpdateReportStatus(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req model.UpdateStatusRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}

	report, status, message, err := api.UpdateStatusHelper(r.Context(), chi.URLParam(r, "reportID"), req)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       report,
	}
}
