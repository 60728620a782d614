package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/service"
	"github.com/sirupsen/logrus"
)

const serviceName = "report-relay"

var errInvalidPayload = errors.New("invalid payload")

// ReportSubmitter is the report intake the HTTP surface depends on.
type ReportSubmitter interface {
	Submit(ctx context.Context, input service.SubmitInput) (*domain.Report, error)
	Counts(ctx context.Context) (domain.ReportCounts, error)
}

// WebhookAcceptor queues a raw webhook body for asynchronous processing.
type WebhookAcceptor interface {
	Accept(ctx context.Context, body []byte) (domain.InboundBatch, error)
}

type API struct {
	reports   ReportSubmitter
	webhooks  WebhookAcceptor
	staticDir string
	logger    *logrus.Logger
}

func NewAPI(reports ReportSubmitter, webhooks WebhookAcceptor, staticDir string, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		reports:   reports,
		webhooks:  webhooks,
		staticDir: staticDir,
		logger:    logger,
	}
}

type errorPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorPayload{Success: false, Error: message})
}

func decodeJSON(r *http.Request, value any) error {
	if err := json.NewDecoder(r.Body).Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}
