package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/utils"
	"github.com/tdrizzle0202/hiddencash/drip"
)

// DripHandler exposes a manual tick for the drip batch, used by external
// schedulers and for operational pokes. The in-process cron calls the
// scheduler directly.
type DripHandler struct {
	scheduler *drip.Scheduler
	router    *chi.Mux
}

func NewDripHandler(scheduler *drip.Scheduler) *DripHandler {
	h := &DripHandler{
		scheduler: scheduler,
	}

	r := chi.NewRouter()
	r.Post("/tick", h.handleTick)

	h.router = r
	return h
}

func (h *DripHandler) Router() *chi.Mux {
	return h.router
}

func (h *DripHandler) handleTick(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.RunBatch(r.Context(), constants.DripCandidateBatch)
	if err != nil {
		log.Error().Err(err).Msg("drip tick failed")
		utils.WriteError(w, http.StatusInternalServerError, "Drip batch failed")
		return
	}

	utils.WriteJSON(w, http.StatusOK, report)
}
