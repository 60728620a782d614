package handlers

import (
	"io"
	"net/http"

	"github.com/iago/report-relay/internal/http/middleware"
	"github.com/sirupsen/logrus"
)

// Webhook acknowledges LINE immediately. Events are handled by the worker,
// and nothing that happens after the enqueue can change this response.
func (api *API) Webhook(w http.ResponseWriter, r *http.Request) {
	log := api.logger.WithField("request_id", middleware.GetRequestID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, middleware.MaxWebhookBody))
	if err != nil {
		log.WithError(err).Warn("webhook body unreadable")
		writeOK(w)
		return
	}

	batch, err := api.webhooks.Accept(r.Context(), body)
	if err != nil {
		log.WithError(err).Error("failed to enqueue webhook batch")
	} else {
		log.WithFields(logrus.Fields{"batch_id": batch.ID, "bytes": len(body)}).Debug("webhook batch queued")
	}
	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
