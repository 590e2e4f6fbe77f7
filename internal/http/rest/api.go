package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bwise1/safestreet/config"
	"github.com/bwise1/safestreet/internal/aggregator"
	deps "github.com/bwise1/safestreet/internal/debs"
	"github.com/bwise1/safestreet/internal/metrics"
	"github.com/bwise1/safestreet/internal/pipeline"
	"github.com/bwise1/safestreet/util/values"
	"github.com/bwise1/safestreet/util/websockets"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultIdleTimeout    = time.Minute
	defaultReadTimeout    = 30 * time.Second
	defaultShutdownPeriod = 30 * time.Second
)

type Handler func(w http.ResponseWriter, r *http.Request) *ServerResponse

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h(w, r)
	respByte, err := json.Marshal(resp)
	if err != nil {
		writeErrorResponse(w, err, values.Error, "unable to marshal server response")
		return
	}
	writeJSONResponse(w, respByte, resp.StatusCode)
}

type API struct {
	Server    *http.Server
	Config    *config.Config
	Deps      *deps.Dependencies
	Accounts  AccountStore
	Locator   AddressLocator
	Reports   *aggregator.Aggregator
	Pipelines *pipeline.Registry
	Hub       *websockets.WebSocketManager
}

// New wires the report aggregator and the per-session pipeline registry
// onto the shared dependencies.
func New(cfg *config.Config, d *deps.Dependencies) *API {
	api := &API{
		Config:   cfg,
		Deps:     d,
		Accounts: d.Store,
		Locator:  d.Locator,
		Hub:      d.WebSocket,
	}

	api.Reports = aggregator.New(d.Store, d.Cloudinary, d.Geocoder, aggregator.Options{
		PreviewWidth:  cfg.PreviewWidth,
		PreviewHeight: cfg.PreviewHeight,
		Concurrency:   cfg.GeocodeConcurrency,
		Events:        d.Events,
	})

	services := pipeline.Services{
		Classifier: d.Classifier,
		Storage:    d.Cloudinary,
		Reports:    d.Store,
		Detector:   d.Detector,
	}
	api.Pipelines = pipeline.NewRegistry(func() *pipeline.Pipeline {
		return pipeline.New(services, pipeline.Options{
			CallTimeout:       cfg.ExternalCallTimeout,
			CompensateOrphans: cfg.CompensateOrphanedImages,
			Normalizer:        d.Normalizer,
			Events:            d.Events,
			OnProgress:        api.pushProgress,
		})
	}, cfg.SubmissionIdleTTL)

	return api
}

func (api *API) pushProgress(ownerID string, p pipeline.Progress) {
	if api.Hub != nil {
		api.Hub.SendToUser(ownerID, websockets.MsgTypeSubmissionProgress, p)
	}
}

func (api *API) Serve() error {
	api.Server = &http.Server{
		Addr:        fmt.Sprintf(":%d", api.Config.Port),
		IdleTimeout: defaultIdleTimeout,
		ReadTimeout: defaultReadTimeout,
		// a submission runs up to four external calls back to back
		WriteTimeout: 4*api.Config.ExternalCallTimeout + 10*time.Second,
		Handler:      api.setUpServerHandler(),
	}
	return api.Server.ListenAndServe()
}

func (api *API) setUpServerHandler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(metrics.Middleware)

	mux.Get("/",
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("SafeStreet API"))
		},
	)
	mux.Get("/health", api.Health)
	mux.Handle("/metrics", metrics.Handler())
	mux.With(api.RequireLoginQuery).Get("/ws", api.ServeWebSocket)

	mux.Group(func(r chi.Router) {
		r.Use(RequestTracing)
		r.Mount("/auth", api.AuthRoutes())
		r.Mount("/users", api.UserRoutes())
		r.Mount("/reports", api.ReportRoutes())
		r.Mount("/admin", api.AdminRoutes())
		r.Mount("/detections", api.DetectionRoutes())
	})

	return mux
}

// Health reports whether the database is reachable.
func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	if api.Deps != nil && api.Deps.DB != nil {
		if err := api.Deps.DB.Ping(r.Context()); err != nil {
			writeErrorResponse(w, err, values.Failed, "database unavailable")
			return
		}
	}
	respByte, _ := json.Marshal(ServerResponse{Message: "ok", Status: values.Success})
	writeJSONResponse(w, respByte, http.StatusOK)
}

// ServeWebSocket streams submission progress and report events to the
// authenticated user.
func (api *API) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok || api.Hub == nil {
		writeErrorResponse(w, nil, values.NotAuthorised, "not-authorized")
		return
	}
	api.Hub.HandleConnections(w, r, session.Account.ID, session.Account.IsAdmin())
}

func (api *API) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownPeriod)
	defer cancel()

	if err := api.Server.Shutdown(ctx); err != nil {
		return err
	}
	log.Println("[Server] stopped accepting requests")
	return nil
}
