package httputils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/contextgg/go-projections/es"
)

type recoverResponse struct {
	Recovered int `json:"recovered"`
}

// StatusHandler serves projection status.
//
//	GET  ?projection=name&object_id=id  the status of one projection, 404 when absent
//	GET  ?status=Rebuilding             every projection in a status
//	POST                                fails every stuck rebuild and returns the count
func StatusHandler(coordinator es.StatusCoordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getStatus(coordinator, w, r)
		case http.MethodPost:
			n, err := coordinator.RecoverStuckRebuilds(r.Context())
			if err != nil {
				log.
					Error().
					Err(err).
					Msg("Could not recover stuck rebuilds")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, recoverResponse{Recovered: n})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func getStatus(coordinator es.StatusCoordinator, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		status, err := es.ParseProjectionStatus(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		list, err := coordinator.GetByStatus(r.Context(), status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	name, id := q.Get("projection"), q.Get("object_id")
	if name == "" || id == "" {
		http.Error(w, "projection and object_id are required", http.StatusBadRequest)
		return
	}
	info, err := coordinator.GetStatus(r.Context(), name, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if info == nil {
		http.Error(w, es.ErrStatusNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.
			Error().
			Err(err).
			Msg("Could not write response")
	}
}
