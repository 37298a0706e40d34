package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"risehigh-xp-service/internal/app"
	"risehigh-xp-service/internal/domain"
)

// HookHandler receives the pipeline triggers.
type HookHandler struct {
	service  *app.ClosingService
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewHookHandler(service *app.ClosingService, log logrus.FieldLogger) *HookHandler {
	return &HookHandler{
		service:  service,
		validate: validator.New(),
		log:      log,
	}
}

type webhookRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// statusChangeRequest accepts either the flat trigger shape or the
// database webhook shape with record/old_record.
type statusChangeRequest struct {
	ChallengeID   string         `json:"challenge_id"`
	OldStatus     string         `json:"old_status"`
	NewStatus     string         `json:"new_status"`
	ManualTrigger bool           `json:"manual_trigger"`
	Record        *webhookRecord `json:"record"`
	OldRecord     *webhookRecord `json:"old_record"`
}

type statusChange struct {
	ChallengeID string `validate:"required"`
	OldStatus   string `validate:"omitempty,oneof=draft open closed archived"`
	NewStatus   string `validate:"required,oneof=draft open closed archived"`
}

func (req statusChangeRequest) normalize() statusChange {
	change := statusChange{ChallengeID: req.ChallengeID, OldStatus: req.OldStatus, NewStatus: req.NewStatus}
	if req.Record != nil {
		change.ChallengeID = req.Record.ID
		change.NewStatus = req.Record.Status
	}
	if req.OldRecord != nil {
		change.OldStatus = req.OldRecord.Status
	}
	return change
}

type submissionRatedRequest struct {
	SubmissionID string `json:"submission_id" validate:"required"`
}

// ChallengeStatus handles POST /hooks/challenge-status.
func (h *HookHandler) ChallengeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	change := req.normalize()
	if err := h.validate.Struct(change); err != nil {
		writeError(w, h.log, err)
		return
	}

	var (
		result app.RunResult
		err    error
	)
	if req.ManualTrigger {
		result, err = h.service.CloseChallenge(r.Context(), change.ChallengeID, true)
	} else {
		result, err = h.service.HandleStatusChange(r.Context(), app.StatusChange{
			ChallengeID: change.ChallengeID,
			OldStatus:   domain.ChallengeStatus(change.OldStatus),
			NewStatus:   domain.ChallengeStatus(change.NewStatus),
		})
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SubmissionRated handles POST /hooks/submission-rated.
func (h *HookHandler) SubmissionRated(w http.ResponseWriter, r *http.Request) {
	var req submissionRatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.log, err)
		return
	}
	result, err := h.service.AwardSubmission(r.Context(), req.SubmissionID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
