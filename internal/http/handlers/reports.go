package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/http/middleware"
	"github.com/iago/report-relay/internal/policy"
	"github.com/iago/report-relay/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	maxReportBody = 64 << 10

	reportAcceptedMessage = "รายงานสำเร็จ"
)

type submitResponse struct {
	Success  bool   `json:"success"`
	ReportID int    `json:"reportId"`
	Message  string `json:"message"`
}

// SubmitReport accepts a LIFF submission as JSON or as a urlencoded form.
func (api *API) SubmitReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReportBody)

	input, err := readSubmitInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	report, err := api.reports.Submit(r.Context(), input)
	if err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			writeError(w, http.StatusBadRequest, "Missing required fields")
			return
		}
		api.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetRequestID(r.Context()),
			"point_id":   policy.MaskPIIString(input.PointID),
		}).Error("failed to save report")
		writeError(w, http.StatusInternalServerError, "failed to save report")
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Success:  true,
		ReportID: report.ReportID,
		Message:  reportAcceptedMessage,
	})
}

func readSubmitInput(r *http.Request) (service.SubmitInput, error) {
	var input service.SubmitInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return input, errInvalidPayload
		}
		input.UserID = r.PostForm.Get("userId")
		input.DisplayName = r.PostForm.Get("displayName")
		input.PointID = r.PostForm.Get("pointId")
		return input, nil
	}
	if err := decodeJSON(r, &input); err != nil {
		return input, err
	}
	return input, nil
}
