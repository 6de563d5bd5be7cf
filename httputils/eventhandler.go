package httputils

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/contextgg/go-projections/es"
)

type incomingEvent struct {
	StreamID  string                 `json:"stream_id"`
	Version   int64                  `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      json.RawMessage        `json:"data"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// EventHandler decodes a posted event with the registry and hands it to the handler
func EventHandler(registry es.EventRegistry, handler es.EventHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var in incomingEvent
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := registry.Get(in.Type)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, data); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		evt := &es.Event{
			StreamID:  in.StreamID,
			Version:   in.Version,
			Type:      in.Type,
			Timestamp: in.Timestamp,
			Data:      data,
			Metadata:  in.Metadata,
		}
		if err := handler.HandleEvent(r.Context(), evt); err != nil {
			log.
				Error().
				Err(err).
				Str("event", evt.String()).
				Msg("Could not handle event")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
	})
}
