package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util"
	"github.com/bwise1/safestreet/util/tracing"
	"github.com/bwise1/safestreet/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) UserRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Route("/me", func(r chi.Router) {
		r.Use(api.RequireLogin)
		r.Method(http.MethodGet, "/profile", Handler(api.GetProfile))
		r.Method(http.MethodPut, "/profile", Handler(api.UpdateProfile))
		r.Method(http.MethodGet, "/theme", Handler(api.GetTheme))
		r.Method(http.MethodPut, "/theme", Handler(api.UpdateTheme))
	})

	return mux
}

func (api *API) GetTheme(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	theme := session.Account.Theme
	if theme.Mode == "" {
		theme = model.DefaultTheme()
	}

	return &ServerResponse{
		Message:    "Theme retrieved successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       theme,
	}
}

func (api *API) UpdateTheme(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	var req model.ThemeConfig
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}
	if err := util.ValidateStruct(req); err != nil {
		return respondWithError(err, "theme mode must be light or dark", values.BadRequestBody, &tc)
	}

	if err := api.Accounts.UpdateTheme(r.Context(), session.Account.ID, req); err != nil {
		return respondWithError(err, "failed to update theme", statusForError(err), &tc)
	}

	return &ServerResponse{
		Message:    "Theme updated successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       req,
	}
}

func (api *API) GetProfile(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	return &ServerResponse{
		Message:    "User profile retrieved successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       session.Account,
	}
}

func (api *API) UpdateProfile(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := r.Context().Value(values.ContextTracingKey).(tracing.Context)

	session, ok := sessionFromContext(r.Context())
	if !ok {
		return respondWithError(errors.New("no session"), "not-authorized", values.NotAuthorised, &tc)
	}

	var req model.UpdateProfileRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := util.ValidateStruct(req); err != nil {
		return respondWithError(err, "Invalid profile: "+util.ValidationMessage(err), values.BadRequestBody, &tc)
	}

	account, err := api.Accounts.UpdateAccountName(r.Context(), session.Account.ID, req.Name)
	if err != nil {
		return respondWithError(err, "failed to update user profile", statusForError(err), &tc)
	}

	return &ServerResponse{
		Message:    "User profile updated successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       account,
	}
}
