package routes

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/openletter/api/pkg/database"
)

type ListSignatoriesResponse struct {
	Signatories []database.Signatory `json:"signatories"`
}

func (sr SignatureRoutes) ListSignatories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The generation is read before the store so that a verification landing
	// in between makes the refill below unreachable.
	var generation int64
	refill := false

	if sr.cache != nil {
		cached, gen, err := sr.cache.Get(ctx)
		if err != nil {
			sr.logger.Warn("failed to read signatories from cache", zap.Error(err))
		} else if cached != nil {
			writeJSON(w, http.StatusOK, ListSignatoriesResponse{Signatories: cached})
			return
		} else {
			generation, refill = gen, true
		}
	}

	signatories, err := sr.store.ListVerified(ctx)
	if err != nil {
		sr.logger.Error("failed to list signatories", zap.Error(err))
		sr.writeError(w, http.StatusInternalServerError, "Failed to fetch signatories", err.Error())
		return
	}

	if refill {
		if err := sr.cache.Set(ctx, generation, signatories); err != nil {
			sr.logger.Warn("failed to cache signatories", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, ListSignatoriesResponse{Signatories: signatories})
}

func (sr SignatureRoutes) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := sr.store.CountVerified(r.Context())
	if err != nil {
		sr.logger.Error("failed to count signatures", zap.Error(err))
		sr.writeError(w, http.StatusInternalServerError, "Failed to fetch stats", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"signatures": count,
	})
}
