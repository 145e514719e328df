package handlers

import (
	"errors"
	"net/http"

	"qa-portal/internal/utils"
	"qa-portal/internal/workflow"
)

// writeErr maps the workflow error kinds onto HTTP statuses. Persistence
// details stay in the logs; callers see a generic message.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		utils.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrForbidden):
		utils.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		utils.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		utils.Error(w, http.StatusConflict, err.Error())
	default:
		utils.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func isCallerError(err error) bool {
	return errors.Is(err, workflow.ErrValidation) ||
		errors.Is(err, workflow.ErrForbidden) ||
		errors.Is(err, workflow.ErrNotFound) ||
		errors.Is(err, workflow.ErrInvalidTransition)
}
