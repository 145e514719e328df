package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"qa-portal/internal/middleware"
	"qa-portal/internal/repository"
	"qa-portal/internal/utils"
	"qa-portal/internal/workflow"
)

// NotificationHTTP serves the caller's own inbox.
type NotificationHTTP struct {
	repo repository.NotificationRepository
	log  zerolog.Logger
}

func NewNotificationHTTP(r repository.NotificationRepository, log zerolog.Logger) *NotificationHTTP {
	return &NotificationHTTP{repo: r, log: log}
}

func (h *NotificationHTTP) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	reqID, _ := r.Context().Value(middleware.CtxRequestID).(string)
	h.log.Error().Err(err).Str("request_id", reqID).Str("path", r.URL.Path).Msg("notification request failed")
	writeErr(w, workflow.Persistence(op, err))
}

// GET /api/notifications?unread=true&limit=&offset=
func (h *NotificationHTTP) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		uid := middleware.ActorFrom(r.Context()).ID
		unread := false
		if b := utils.QueryBool(qv, "unread"); b != nil {
			unread = *b
		}
		items, err := h.repo.ListForUser(r.Context(), uid, unread, utils.QueryInt(qv, "limit", 20), utils.QueryInt(qv, "offset", 0))
		if err != nil {
			h.fail(w, r, "list notifications", err)
			return
		}
		utils.JSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
	}
}

// GET /api/notifications/unread-count
func (h *NotificationHTTP) UnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.repo.CountUnread(r.Context(), middleware.ActorFrom(r.Context()).ID)
		if err != nil {
			h.fail(w, r, "count unread", err)
			return
		}
		utils.JSON(w, http.StatusOK, map[string]int{"unread": n})
	}
}

// POST /api/notifications/{id}/read
func (h *NotificationHTTP) MarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h.repo.MarkRead(r.Context(), chi.URLParam(r, "id"), middleware.ActorFrom(r.Context()).ID)
		if errors.Is(err, repository.ErrNotFound) {
			utils.Error(w, http.StatusNotFound, "not found")
			return
		}
		if err != nil {
			h.fail(w, r, "mark read", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /api/notifications/read-all
func (h *NotificationHTTP) MarkAllRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.repo.MarkAllRead(r.Context(), middleware.ActorFrom(r.Context()).ID)
		if err != nil {
			h.fail(w, r, "mark all read", err)
			return
		}
		utils.JSON(w, http.StatusOK, map[string]int{"updated": n})
	}
}
