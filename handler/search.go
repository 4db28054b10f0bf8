package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common"
	"github.com/tdrizzle0202/hiddencash/common/utils"
	"github.com/tdrizzle0202/hiddencash/search"
)

type SearchHandler struct {
	orchestrator *search.Orchestrator
	router       *chi.Mux
}

func NewSearchHandler(orchestrator *search.Orchestrator) *SearchHandler {
	h := &SearchHandler{
		orchestrator: orchestrator,
	}

	r := chi.NewRouter()
	r.Post("/", h.handleSearch)

	h.router = r
	return h
}

func (h *SearchHandler) Router() *chi.Mux {
	return h.router
}

type searchParams struct {
	FirstName string   `json:"first_name" validate:"required,max=100"`
	LastName  string   `json:"last_name" validate:"required,max=100"`
	States    []string `json:"states" validate:"required,min=1,dive,len=2"`
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var p searchParams

	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.orchestrator.Search(r.Context(), search.Request{
		UserID:    UserID(r),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		States:    p.States,
	})
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, summary)
}

// writeSearchError maps business-rule rejections to distinct responses so
// the client can render a specific message instead of a blanket error.
func (h *SearchHandler) writeSearchError(w http.ResponseWriter, err error) {
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
	case errors.Is(err, common.ErrAlreadySearched):
		utils.WriteError(w, http.StatusForbidden, "You have already completed your initial search. Your claims are being processed.")
	case errors.Is(err, common.ErrQuotaExceeded):
		utils.WriteError(w, http.StatusForbidden, "Free users can search up to 3 states. Upgrade to search all 50!")
	case errors.Is(err, common.ErrInvalidState):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("search failed")
		utils.WriteError(w, http.StatusInternalServerError, "Search failed")
	}
}
