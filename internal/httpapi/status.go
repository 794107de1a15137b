package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/errs"
	"github.com/asyncengine/engine/internal/job"
)

// StatusManager is the subset of manager.Manager the Status handler needs.
type StatusManager interface {
	GetJobByID(ctx context.Context, id uuid.UUID) (*job.Job, error)
}

// Status builds the GET /jobs/{id} endpoint (spec.md §4.7), expecting the
// id path value under the ServeMux wildcard name "id".
func Status(m StatusManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid job id", http.StatusBadRequest)
			return
		}

		j, err := m.GetJobByID(r.Context(), id)
		if err != nil {
			var e *errs.E
			if errors.As(err, &e) && e.Kind == errs.KindNotFound {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to fetch job", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(ToSnapshot(j))
	}
}
