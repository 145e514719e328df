package handlers

import (
	"net/http"

	"qa-portal/internal/service"
	"qa-portal/internal/utils"
)

type AuditHTTP struct {
	svc *service.NCPService
}

func NewAuditHTTP(svc *service.NCPService) *AuditHTTP { return &AuditHTTP{svc: svc} }

// GET /api/audit?limit=&offset=
func (h *AuditHTTP) Recent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		items, err := h.svc.RecentAudit(r.Context(), utils.QueryInt(qv, "limit", 50), utils.QueryInt(qv, "offset", 0))
		if err != nil {
			writeErr(w, err)
			return
		}
		utils.JSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
	}
}
