package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"risehigh-xp-service/internal/app"
)

// StudentHandler serves the read side of the XP log.
type StudentHandler struct {
	service *app.ClosingService
	log     logrus.FieldLogger
}

func NewStudentHandler(service *app.ClosingService, log logrus.FieldLogger) *StudentHandler {
	return &StudentHandler{service: service, log: log}
}

func (h *StudentHandler) Progression(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Progression(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *StudentHandler) SubmissionXP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	summary, err := h.service.SubmissionSummary(r.Context(), vars["id"], vars["sid"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
