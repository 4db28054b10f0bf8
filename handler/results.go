package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/models"
	"github.com/tdrizzle0202/hiddencash/common/services"
	"github.com/tdrizzle0202/hiddencash/common/utils"
	"github.com/tdrizzle0202/hiddencash/entitlement"
)

type ResultsHandler struct {
	cache  services.CacheService
	jobs   services.JobService
	gate   *entitlement.Gate
	router *chi.Mux
}

func NewResultsHandler(cache services.CacheService, jobs services.JobService, gate *entitlement.Gate) *ResultsHandler {
	h := &ResultsHandler{
		cache: cache,
		jobs:  jobs,
		gate:  gate,
	}

	r := chi.NewRouter()
	r.Get("/", h.handleListResults)
	r.Patch("/{claimID}/status", h.handleUpdateStatus)

	h.router = r
	return h
}

func (h *ResultsHandler) Router() *chi.Mux {
	return h.router
}

type resultsResponse struct {
	Claims       []models.UserClaimView `json:"claims"`
	Jobs         models.JobCounts       `json:"jobs"`
	IsSubscribed bool                   `json:"is_subscribed"`
}

func (h *ResultsHandler) handleListResults(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)

	claims, err := h.cache.ListUserClaims(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to list claims")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load results")
		return
	}

	jobCounts, err := h.jobs.CountForUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to count jobs")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load results")
		return
	}

	entitled, err := h.gate.IsEntitled(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("entitlement check failed")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load results")
		return
	}

	// Unrevealed claims belong to future drip cycles and stay invisible.
	visible := lo.Filter(claims, func(c models.UserClaimView, _ int) bool {
		return c.Revealed
	})

	if !entitled {
		visible = lo.Map(visible, func(c models.UserClaimView, _ int) models.UserClaimView {
			return maskClaim(c)
		})
	}

	utils.WriteJSON(w, http.StatusOK, resultsResponse{
		Claims:       visible,
		Jobs:         jobCounts,
		IsSubscribed: entitled,
	})
}

// maskClaim hides everything a free user would need to file the claim
// themselves, while leaving enough to show the money is real.
func maskClaim(c models.UserClaimView) models.UserClaimView {
	c.OwnerName = utils.MaskName(c.OwnerName)
	c.HolderName = utils.MaskName(c.HolderName)
	c.OwnerCity = utils.MaskCity(c.OwnerCity)
	c.Amount = nil
	c.AmountText = ""
	c.IsLocked = true
	return c
}

type statusParams struct {
	Status string `json:"status" validate:"required"`
}

func (h *ResultsHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	var p statusParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !constants.ValidClaimStatus(p.Status) {
		utils.WriteError(w, http.StatusBadRequest, "Unknown claim status")
		return
	}

	err := h.cache.UpdateClaimStatus(r.Context(), UserID(r), claimID, p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		utils.WriteError(w, http.StatusNotFound, "Claim not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("claim_id", claimID).Msg("failed to update claim status")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to update claim")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})
}
