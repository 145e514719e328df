package handlers

import (
	"net/http"

	"qa-portal/internal/models"
	"qa-portal/internal/service"
	"qa-portal/internal/utils"
)

type ReportsHTTP struct {
	svc *service.NCPService
}

func NewReportsHTTP(svc *service.NCPService) *ReportsHTTP { return &ReportsHTTP{svc: svc} }

// GET /api/reports/summary
// Returns: { byStatus: {status: n}, active, archived, total }
func (h *ReportsHTTP) Summary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := h.svc.Summary(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		active, archived := 0, 0
		for s, n := range counts {
			if s.Terminal() {
				archived += n
			} else {
				active += n
			}
		}
		byStatus := make(map[models.Status]int, len(models.Statuses))
		for _, s := range models.Statuses {
			byStatus[s] = counts[s]
		}
		utils.JSON(w, http.StatusOK, map[string]any{
			"byStatus": byStatus,
			"active":   active,
			"archived": archived,
			"total":    active + archived,
		})
	}
}
