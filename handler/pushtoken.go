package handler

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/services"
	"github.com/tdrizzle0202/hiddencash/common/utils"
)

// expoTokenPattern matches the token format the Expo push gateway issues.
var expoTokenPattern = regexp.MustCompile(`^Expo(?:nent)?PushToken\[[A-Za-z0-9_-]+\]$`)

type PushTokenHandler struct {
	tokens services.PushTokenService
	router *chi.Mux
}

func NewPushTokenHandler(tokens services.PushTokenService) *PushTokenHandler {
	h := &PushTokenHandler{
		tokens: tokens,
	}

	r := chi.NewRouter()
	r.Post("/", h.handleRegister)

	h.router = r
	return h
}

func (h *PushTokenHandler) Router() *chi.Mux {
	return h.router
}

type pushTokenParams struct {
	Token    string `json:"token" validate:"required"`
	DeviceID string `json:"device_id"`
	Platform string `json:"platform" validate:"omitempty,oneof=ios android"`
}

func (h *PushTokenHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var p pushTokenParams

	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !expoTokenPattern.MatchString(p.Token) {
		utils.WriteError(w, http.StatusBadRequest, "Malformed push token")
		return
	}

	if err := h.tokens.UpsertToken(r.Context(), UserID(r), p.Token, p.DeviceID, p.Platform); err != nil {
		log.Error().Err(err).Msg("failed to register push token")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to register push token")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})
}
