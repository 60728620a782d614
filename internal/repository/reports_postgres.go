package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iago/report-relay/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const reportColumns = "id, report_id, user_id, display_name, point_id, status, created_at, completed_at"

type PostgresReportsRepository struct {
	pool  *pgxpool.Pool
	newID IDGenerator
}

func NewPostgresReportsRepository(ctx context.Context, databaseURL string) (*PostgresReportsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return NewPostgresReportsRepositoryFromPool(pool, RandomReportID), nil
}

// NewPostgresReportsRepositoryFromPool wraps an existing pool. The repository takes ownership of it.
func NewPostgresReportsRepositoryFromPool(pool *pgxpool.Pool, generator IDGenerator) *PostgresReportsRepository {
	if generator == nil {
		generator = RandomReportID
	}
	return &PostgresReportsRepository{pool: pool, newID: generator}
}

func (r *PostgresReportsRepository) Close() {
	r.pool.Close()
}

// ApplySchema runs the embedded migrations. Every statement is idempotent.
func (r *PostgresReportsRepository) ApplySchema(ctx context.Context) error {
	schema, err := Schema()
	if err != nil {
		return err
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Conn().PgConn().Exec(ctx, strings.TrimSpace(schema)).ReadAll(); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *PostgresReportsRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresReportsRepository) Create(
	ctx context.Context,
	reporterID string,
	displayName string,
	pointID string,
) (*domain.Report, error) {
	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		reportID := r.newID()
		row := r.pool.QueryRow(ctx, `
			INSERT INTO reports (report_id, user_id, display_name, point_id, status)
			VALUES ($1, $2, $3, $4, 'pending')
			RETURNING `+reportColumns,
			reportID,
			reporterID,
			displayName,
			pointID,
		)
		report, err := scanReport(row)
		if err == nil {
			return report, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			lastErr = errReportIDConflict
			continue
		}
		return nil, &domain.StorageError{Op: "create report", Err: err}
	}
	return nil, &domain.StorageError{Op: "create report", Err: lastErr}
}

func (r *PostgresReportsRepository) GetPendingByID(ctx context.Context, reportID int) (*domain.Report, error) {
	if !validReportID(reportID) {
		return nil, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE report_id = $1 AND status = 'pending'
	`, reportID)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &domain.StorageError{Op: "get pending report", Err: err}
	}
	return report, nil
}

func (r *PostgresReportsRepository) GetLatestPending(ctx context.Context) (*domain.Report, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE status = 'pending'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &domain.StorageError{Op: "get latest pending report", Err: err}
	}
	return report, nil
}

// Complete is the only mutation of an existing row. The status predicate makes
// it the concurrency boundary: of two racing closes only one sees a changed row.
func (r *PostgresReportsRepository) Complete(ctx context.Context, reportID int) (bool, error) {
	if !validReportID(reportID) {
		return false, nil
	}
	command, err := r.pool.Exec(ctx, `
		UPDATE reports
		SET status = 'completed',
			completed_at = NOW()
		WHERE report_id = $1 AND status = 'pending'
	`, reportID)
	if err != nil {
		return false, &domain.StorageError{Op: "complete report", Err: err}
	}
	return command.RowsAffected() == 1, nil
}

func (r *PostgresReportsRepository) Counts(ctx context.Context) (domain.ReportCounts, error) {
	var counts domain.ReportCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'completed')
		FROM reports
	`).Scan(&counts.Total, &counts.Pending, &counts.Completed)
	if err != nil {
		return domain.ReportCounts{}, &domain.StorageError{Op: "count reports", Err: err}
	}
	return counts, nil
}

func (r *PostgresReportsRepository) Recent(ctx context.Context, limit int) ([]domain.Report, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "list recent reports", Err: err}
	}
	defer rows.Close()

	items := make([]domain.Report, 0, limit)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "scan recent report", Err: err}
		}
		items = append(items, *report)
	}
	if rows.Err() != nil {
		return nil, &domain.StorageError{Op: "iterate recent reports", Err: rows.Err()}
	}
	return items, nil
}

func scanReport(row pgx.Row) (*domain.Report, error) {
	var (
		report      domain.Report
		status      string
		createdAt   time.Time
		completedAt *time.Time
	)
	if err := row.Scan(
		&report.ID,
		&report.ReportID,
		&report.ReporterID,
		&report.DisplayName,
		&report.PointID,
		&status,
		&createdAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	report.Status = domain.ReportStatus(status)
	report.CreatedAt = createdAt.UTC()
	if completedAt != nil {
		utc := completedAt.UTC()
		report.CompletedAt = &utc
	}
	return &report, nil
}
