// Package api is the intake surface used by browser and server SDKs.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	jsoniter "github.com/json-iterator/go"
	"github.com/vinceanalytics/collector/internal/entry"
	"github.com/vinceanalytics/collector/internal/metrics"
	"github.com/vinceanalytics/collector/internal/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Processor runs a single event through the ingestion pipeline.
type Processor interface {
	Process(ctx context.Context, raw *entry.RawEvent) (pipeline.Outcome, error)
}

// Sites answers which sites are accepted and whether they allow enrichment.
type Sites interface {
	Lookup(site string) (enrich, ok bool)
	Allow(site string) bool
}

type API struct {
	pipe  Processor
	sites Sites
	now   func() time.Time
	log   *slog.Logger
}

// New returns the intake API. A nil sites accepts every site with
// enrichment.
func New(pipe Processor, sites Sites) *API {
	if sites == nil {
		sites = openSites{}
	}
	return &API{
		pipe:  pipe,
		sites: sites,
		now:   time.Now,
		log:   slog.Default().With("component", "api"),
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Post("/api/event", a.Event)
	})
	r.Get("/health", Health)
	r.Method(http.MethodGet, "/metrics", metrics.New())
	return r
}

type openSites struct{}

func (openSites) Lookup(site string) (bool, bool) { return true, site != "" }
func (openSites) Allow(string) bool               { return true }

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
