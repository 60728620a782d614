package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/iago/report-relay/internal/command"
	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/policy"
	"github.com/iago/report-relay/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	TaskAdminAlert  = "admin-alert"
	TaskReporterAck = "reporter-ack"
)

// Sender delivers one logical push with the configured retry budget.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

// Spawner runs work that the caller does not wait for.
type Spawner interface {
	Go(ctx context.Context, name string, fn func(context.Context) error)
}

type SubmitInput struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PointID     string `json:"pointId"`
}

type ReportsConfig struct {
	AdminUserID        string
	ReporterAckEnabled bool
}

type ReportsService struct {
	repo   repository.ReportsRepository
	sender Sender
	tasks  Spawner
	config ReportsConfig
	logger *logrus.Logger
}

func NewReportsService(
	repo repository.ReportsRepository,
	sender Sender,
	tasks Spawner,
	config ReportsConfig,
	logger *logrus.Logger,
) *ReportsService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ReportsService{
		repo:   repo,
		sender: sender,
		tasks:  tasks,
		config: config,
		logger: logger,
	}
}

// Submit stores a pending report and returns once it is durable. The admin
// alert and the reporter acknowledgment are spawned and never awaited.
func (s *ReportsService) Submit(ctx context.Context, input SubmitInput) (*domain.Report, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.PointID = strings.TrimSpace(input.PointID)

	var missing []string
	if input.UserID == "" {
		missing = append(missing, "userId")
	}
	if input.DisplayName == "" {
		missing = append(missing, "displayName")
	}
	if input.PointID == "" {
		missing = append(missing, "pointId")
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Fields: missing}
	}

	report, err := s.repo.Create(ctx, input.UserID, input.DisplayName, input.PointID)
	if err != nil {
		return nil, fmt.Errorf("submit report: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"report_id": report.ReportID,
		"point_id":  policy.MaskPIIString(report.PointID),
		"reporter":  policy.MaskUserID(report.ReporterID),
	}).Info("report submitted")

	if s.config.AdminUserID != "" {
		alert := command.NewReportAlertText(*report)
		s.tasks.Go(ctx, TaskAdminAlert, func(taskCtx context.Context) error {
			return s.sender.Send(taskCtx, s.config.AdminUserID, alert)
		})
	}
	if s.config.ReporterAckEnabled {
		ack := command.ReporterAckText(*report)
		reporterID := report.ReporterID
		s.tasks.Go(ctx, TaskReporterAck, func(taskCtx context.Context) error {
			return s.sender.Send(taskCtx, reporterID, ack)
		})
	}

	return report, nil
}

func (s *ReportsService) Counts(ctx context.Context) (domain.ReportCounts, error) {
	return s.repo.Counts(ctx)
}
