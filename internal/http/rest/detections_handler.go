package rest

import (
	"net/http"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util"
	"github.com/bwise1/safestreet/util/tracing"
	"github.com/bwise1/safestreet/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) DetectionRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(api.RequireDetectorToken)
		r.Method(http.MethodPost, "/", Handler(api.AttachDetection))
	})

	return mux
}

// AttachDetection is called back by the damage detector once the annotated
// image has been stored.
func (api *API) AttachDetection(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	var req model.Detection
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}

	report, status, message, err := api.AttachDetectionHelper(r.Context(), req)
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
