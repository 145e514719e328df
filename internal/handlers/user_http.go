package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"qa-portal/internal/middleware"
	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/service"
	"qa-portal/internal/utils"
	"qa-portal/internal/workflow"

	"github.com/go-chi/chi/v5"
)

type UserHTTP struct {
	repo repository.UserRepository
	auth *service.AuthService
}

func NewUserHTTP(r repository.UserRepository, auth *service.AuthService) *UserHTTP {
	return &UserHTTP{repo: r, auth: auth}
}

func (h *UserHTTP) writeUser(w http.ResponseWriter, u *models.User, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeErr(w, workflow.Persistence("user", err))
		return
	}
	utils.JSON(w, http.StatusOK, u)
}

// guardTarget refuses changes to a super admin account unless the caller is
// one too. It writes the response and returns false when the request must stop.
func (h *UserHTTP) guardTarget(w http.ResponseWriter, r *http.Request) bool {
	target, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, workflow.Persistence("load user", err))
		return false
	}
	if target == nil {
		utils.Error(w, http.StatusNotFound, "user not found")
		return false
	}
	if target.Role == models.RoleSuperAdmin && middleware.ActorFrom(r.Context()).Role != models.RoleSuperAdmin {
		utils.Error(w, http.StatusForbidden, "only a super admin can change a super admin account")
		return false
	}
	return true
}

// GET /api/users?q=&role=&active=&limit=&offset=
func (h *UserHTTP) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		limit := utils.QueryInt(qv, "limit", 20)
		offset := utils.QueryInt(qv, "offset", 0)

		users, total, err := h.repo.List(r.Context(), qv.Get("q"), models.Role(qv.Get("role")), utils.QueryBool(qv, "active"), limit, offset)
		if err != nil {
			writeErr(w, workflow.Persistence("list users", err))
			return
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
		utils.JSON(w, http.StatusOK, map[string]any{"items": nonNil(users), "total": total})
	}
}

// GET /api/users/{id}
func (h *UserHTTP) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err == nil && u == nil {
			err = repository.ErrNotFound
		}
		h.writeUser(w, u, err)
	}
}

// POST /api/users
func (h *UserHTTP) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			FullName string `json:"fullName"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		if !canGrant(middleware.ActorFrom(r.Context()), models.Role(req.Role)) {
			utils.Error(w, http.StatusForbidden, "only a super admin can grant super_admin")
			return
		}
		u, err := h.auth.CreateUser(r.Context(), req.Username, req.FullName, req.Password, models.Role(req.Role))
		if err != nil {
			writeErr(w, err)
			return
		}
		utils.JSON(w, http.StatusCreated, u)
	}
}

// PATCH /api/users/{id}/role
func (h *UserHTTP) UpdateRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !models.Role(req.Role).Valid() {
			utils.Error(w, http.StatusBadRequest, "invalid role")
			return
		}
		if !canGrant(middleware.ActorFrom(r.Context()), models.Role(req.Role)) {
			utils.Error(w, http.StatusForbidden, "only a super admin can grant super_admin")
			return
		}
		if !h.guardTarget(w, r) {
			return
		}
		u, err := h.repo.UpdateRole(r.Context(), chi.URLParam(r, "id"), models.Role(req.Role))
		h.writeUser(w, u, err)
	}
}

// PATCH /api/users/{id}/active
func (h *UserHTTP) SetActive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Active *bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
			utils.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if !h.guardTarget(w, r) {
			return
		}
		u, err := h.repo.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
		h.writeUser(w, u, err)
	}
}

// PATCH /api/users/{id}/basic
func (h *UserHTTP) UpdateBasic() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FullName string `json:"fullName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.FullName) == "" {
			utils.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if !h.guardTarget(w, r) {
			return
		}
		u, err := h.repo.UpdateBasic(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.FullName))
		h.writeUser(w, u, err)
	}
}

// PATCH /api/users/{id}/password
func (h *UserHTTP) UpdatePassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		if !h.guardTarget(w, r) {
			return
		}
		if err := h.auth.SetPassword(r.Context(), chi.URLParam(r, "id"), req.Password); err != nil {
			writeErr(w, err)
			return
		}
		utils.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func canGrant(actor models.Actor, role models.Role) bool {
	return role != models.RoleSuperAdmin || actor.Role == models.RoleSuperAdmin
}
