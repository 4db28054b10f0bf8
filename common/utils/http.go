package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/models"
)

// WriteJSON writes data wrapped in the standard response envelope.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(models.BaseResponse{Data: data}); err != nil {
		log.Debug().Err(err).Msg("failed to encode response body")
	}
}

// WriteError writes an error envelope with the given status code.
func WriteError(w http.ResponseWriter, statusCode int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	err := json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: http.StatusText(statusCode),
		Msg:   msg,
	})
	if err != nil {
		log.Debug().Err(err).Msg("failed to encode error body")
	}
}
