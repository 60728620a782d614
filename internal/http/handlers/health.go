package handlers

import (
	"net/http"

	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/http/middleware"
)

type statusPayload struct {
	Status  string               `json:"status"`
	Service string               `json:"service"`
	Reports *domain.ReportCounts `json:"reports,omitempty"`
}

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Status is the liveness page. The process stays "up" even when the store
// cannot be counted.
func (api *API) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := api.reports.Counts(r.Context())
	if err != nil {
		api.logger.WithError(err).WithField("request_id", middleware.GetRequestID(r.Context())).Warn("report counts unavailable")
		writeJSON(w, http.StatusOK, statusPayload{Status: "degraded", Service: serviceName})
		return
	}
	writeJSON(w, http.StatusOK, statusPayload{Status: "ok", Service: serviceName, Reports: &counts})
}
