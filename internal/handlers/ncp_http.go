package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"qa-portal/internal/middleware"
	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/service"
	"qa-portal/internal/utils"
	"qa-portal/internal/workflow"
)

// NCPHTTP exposes the NCP workflow.
type NCPHTTP struct {
	svc *service.NCPService
	log zerolog.Logger
}

func NewNCPHTTP(svc *service.NCPService, log zerolog.Logger) *NCPHTTP {
	return &NCPHTTP{svc: svc, log: log}
}

// TransitionFunc is the shape shared by the forward workflow operations.
type TransitionFunc func(ctx context.Context, actor models.Actor, id string, in workflow.Input) (*models.NCPReport, error)

func (h *NCPHTTP) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !isCallerError(err) {
		reqID, _ := r.Context().Value(middleware.CtxRequestID).(string)
		h.log.Error().Err(err).Str("request_id", reqID).Str("path", r.URL.Path).Msg("ncp request failed")
	}
	writeErr(w, err)
}

// GET /api/ncps?q=&status=a,b&qaLeader=&teamLeader=&submittedBy=&sort=&order=&limit=&offset=
func (h *NCPHTTP) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		f := repository.NCPFilter{
			Q:                  strings.TrimSpace(qv.Get("q")),
			QALeader:           strings.TrimSpace(qv.Get("qaLeader")),
			AssignedTeamLeader: strings.TrimSpace(qv.Get("teamLeader")),
			SubmittedBy:        strings.TrimSpace(qv.Get("submittedBy")),
			Limit:              utils.QueryInt(qv, "limit", 20),
			Offset:             utils.QueryInt(qv, "offset", 0),
			Sort:               qv.Get("sort"),
			Order:              qv.Get("order"),
		}
		for _, s := range utils.QueryList(qv, "status") {
			st := models.Status(s)
			if !st.Valid() {
				utils.Error(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", s))
				return
			}
			f.Statuses = append(f.Statuses, st)
		}

		items, total, err := h.svc.List(r.Context(), middleware.ActorFrom(r.Context()), f)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
		utils.JSON(w, http.StatusOK, map[string]any{"items": nonNil(items), "total": total})
	}
}

// GET /api/ncps/pending
func (h *NCPHTTP) Pending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		items, total, err := h.svc.Pending(r.Context(), middleware.ActorFrom(r.Context()),
			utils.QueryInt(qv, "limit", 50), utils.QueryInt(qv, "offset", 0))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
		utils.JSON(w, http.StatusOK, map[string]any{"items": nonNil(items), "total": total})
	}
}

// POST /api/ncps
func (h *NCPHTTP) Submit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in workflow.SubmitInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			utils.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		n, err := h.svc.Submit(r.Context(), middleware.ActorFrom(r.Context()), in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		utils.JSON(w, http.StatusCreated, n)
	}
}

// GET /api/ncps/{id}
func (h *NCPHTTP) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.svc.Get(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		utils.JSON(w, http.StatusOK, n)
	}
}

// GET /api/ncps/code/{code}
func (h *NCPHTTP) GetByCode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.svc.GetByCode(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "code"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		utils.JSON(w, http.StatusOK, n)
	}
}

// GET /api/ncps/{id}/audit
func (h *NCPHTTP) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.svc.History(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		utils.JSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
	}
}

// Transition serves POST /api/ncps/{id}/<action> for one forward operation.
func (h *NCPHTTP) Transition(op TransitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in workflow.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			utils.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		n, err := op(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"), in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		utils.JSON(w, http.StatusOK, n)
	}
}

// POST /api/ncps/{id}/revert
func (h *NCPHTTP) Revert() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			TargetStatus string `json:"targetStatus"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			utils.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		n, err := h.svc.Revert(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"), models.Status(in.TargetStatus))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		utils.JSON(w, http.StatusOK, n)
	}
}

// POST /api/ncps/{id}/reassign
func (h *NCPHTTP) Reassign() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Role        string `json:"role"`
			NewAssignee string `json:"newAssignee"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			utils.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		n, err := h.svc.Reassign(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"), models.Role(in.Role), in.NewAssignee)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		utils.JSON(w, http.StatusOK, n)
	}
}

// PATCH /api/ncps/{id}
// Body is a flat object of column -> value; numbers and strings are accepted.
func (h *NCPHTTP) Edit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			utils.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		fields := make(map[string]string, len(raw))
		for k, v := range raw {
			switch v := v.(type) {
			case nil:
				fields[k] = ""
			case string:
				fields[k] = v
			case json.Number:
				fields[k] = v.String()
			default:
				utils.Error(w, http.StatusBadRequest, fmt.Sprintf("field %q must be a string or number", k))
				return
			}
		}
		n, err := h.svc.Edit(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"), fields)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		utils.JSON(w, http.StatusOK, n)
	}
}

// DELETE /api/ncps/{id}
func (h *NCPHTTP) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.svc.Delete(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
