// Package api exposes the thin HTTP surface over Store/Queue/Blob/Expander
// described in the core spec: create a batch, start processing, read
// status, read the aggregated summary.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/eternis-tender/tender-pipeline/pkg/blob"
	"github.com/eternis-tender/tender-pipeline/pkg/config"
	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/expander"
	"github.com/eternis-tender/tender-pipeline/pkg/finalizer"
)

// Handler wires the HTTP surface to its collaborators.
type Handler struct {
	store            *db.Store
	blobStore        blob.Store
	expander         *expander.Expander
	finalizer        *finalizer.Finalizer
	log              *log.Logger
	maxFileSizeBytes int64
	processLimiter   *rate.Limiter
}

// NewRouter builds the chi.Mux serving the batch lifecycle endpoints, with
// permissive CORS matching the teacher's GraphQL router.
func NewRouter(cfg *config.Config, store *db.Store, blobStore blob.Store, exp *expander.Expander, fin *finalizer.Finalizer, logger *log.Logger) *chi.Mux {
	h := &Handler{
		store:            store,
		blobStore:        blobStore,
		expander:         exp,
		finalizer:        fin,
		log:              logger,
		maxFileSizeBytes: cfg.MaxFileSizeBytes,
		processLimiter:   rate.NewLimiter(rate.Every(time.Second), 5),
	}

	router := chi.NewRouter()
	router.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		Debug:            false,
	}).Handler)

	router.Post("/batches", h.createBatch)
	router.Post("/batches/{id}/process", h.processBatch)
	router.Get("/batches/{id}/status", h.batchStatus)
	router.Get("/batches/{id}/summary", h.batchSummary)

	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
