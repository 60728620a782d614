package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/repository"
	"github.com/sirupsen/logrus"
)

// Notifier pushes messages outside a reply context.
type Notifier interface {
	Send(ctx context.Context, recipient, text string) error
	PushOnce(ctx context.Context, recipient, text string) error
}

// Replier answers an inbound event with its one-time token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

type Config struct {
	AdminUserID string
	Keywords    Keywords
	RecentLimit int
	Location    *time.Location
}

// Command is one inbound admin text message.
type Command struct {
	SenderID   string
	ReplyToken string
	Text       string
}

// Interpreter is stateless: every Handle call maps one message to store reads,
// at most one completion, and replies or pushes.
type Interpreter struct {
	parser      *Parser
	reports     repository.ReportsRepository
	notifier    Notifier
	replier     Replier
	adminUserID string
	recentLimit int
	location    *time.Location
	logger      *logrus.Logger
}

func NewInterpreter(
	config Config,
	reports repository.ReportsRepository,
	notifier Notifier,
	replier Replier,
	logger *logrus.Logger,
) *Interpreter {
	if config.RecentLimit <= 0 {
		config.RecentLimit = repository.DefaultRecentLimit
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Interpreter{
		parser:      NewParser(config.Keywords),
		reports:     reports,
		notifier:    notifier,
		replier:     replier,
		adminUserID: config.AdminUserID,
		recentLimit: config.RecentLimit,
		location:    config.Location,
		logger:      logger,
	}
}

func (i *Interpreter) Handle(ctx context.Context, command Command) error {
	intent := i.parser.Parse(command.Text)

	if !i.isAdmin(command.SenderID) {
		if intent.Kind == IntentHelp {
			return i.reply(ctx, command.ReplyToken, staffOnlyText)
		}
		return nil
	}

	switch intent.Kind {
	case IntentClose:
		return i.closeReport(ctx, command, intent)
	case IntentStatus:
		return i.status(ctx, command)
	case IntentHelp:
		return i.reply(ctx, command.ReplyToken, helpText)
	default:
		return nil
	}
}

// isAdmin is true for everyone when no admin identity is configured.
func (i *Interpreter) isAdmin(senderID string) bool {
	return i.adminUserID == "" || senderID == i.adminUserID
}

func (i *Interpreter) closeReport(ctx context.Context, command Command, intent Intent) error {
	var (
		report *domain.Report
		err    error
	)
	if intent.HasID {
		report, err = i.reports.GetPendingByID(ctx, intent.ReportID)
		if errors.Is(err, repository.ErrNotFound) {
			return i.reply(ctx, command.ReplyToken, reportNotFoundText)
		}
	} else {
		report, err = i.reports.GetLatestPending(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return i.reply(ctx, command.ReplyToken, noPendingText)
		}
	}
	if err != nil {
		return fmt.Errorf("load report to close: %w", err)
	}

	changed, err := i.reports.Complete(ctx, report.ReportID)
	if err != nil {
		return fmt.Errorf("complete report %d: %w", report.ReportID, err)
	}
	log := i.logger.WithField("report_id", report.ReportID)
	if !changed {
		// Another close won the conditional update.
		log.Info("report already closed")
		return i.reply(ctx, command.ReplyToken, reportNotFoundText)
	}
	log.WithField("point_id", report.PointID).Info("report completed")

	replyErr := i.reply(ctx, command.ReplyToken, closedConfirmationText(*report))

	if err := i.notifier.Send(ctx, report.ReporterID, CompletionNoticeText(*report)); err != nil {
		log.WithError(err).Error("failed to notify reporter")
		if i.adminUserID != "" {
			if alertErr := i.notifier.PushOnce(ctx, i.adminUserID, deliveryFailureAlertText(*report)); alertErr != nil {
				log.WithError(alertErr).Error("failed to alert admin about reporter delivery failure")
			}
		}
	}
	return replyErr
}

func (i *Interpreter) status(ctx context.Context, command Command) error {
	counts, err := i.reports.Counts(ctx)
	if err != nil {
		return fmt.Errorf("count reports: %w", err)
	}
	recent, err := i.reports.Recent(ctx, i.recentLimit)
	if err != nil {
		return fmt.Errorf("list recent reports: %w", err)
	}
	return i.reply(ctx, command.ReplyToken, statusText(counts, recent, i.location))
}

func (i *Interpreter) reply(ctx context.Context, replyToken, text string) error {
	if err := i.replier.Reply(ctx, replyToken, text); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}
