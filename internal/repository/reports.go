package repository

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/iago/report-relay/internal/domain"
)

var (
	ErrNotFound = domain.ErrNotFound

	errReportIDConflict = errors.New("report id already in use")
)

const (
	reportIDMin = 1000
	reportIDMax = 9999

	// maxCreateAttempts bounds id regeneration when a drawn id collides.
	maxCreateAttempts = 5

	DefaultRecentLimit = 5
)

// validReportID rejects ids no report can carry, such as a typed reference
// that does not fit the 4-digit range.
func validReportID(reportID int) bool {
	return reportID >= reportIDMin && reportID <= reportIDMax
}

// ReportsRepository owns the report lifecycle: pending on insert, completed exactly once.
type ReportsRepository interface {
	Create(ctx context.Context, reporterID, displayName, pointID string) (*domain.Report, error)
	GetPendingByID(ctx context.Context, reportID int) (*domain.Report, error)
	GetLatestPending(ctx context.Context) (*domain.Report, error)
	Complete(ctx context.Context, reportID int) (bool, error)
	Counts(ctx context.Context) (domain.ReportCounts, error)
	Recent(ctx context.Context, limit int) ([]domain.Report, error)
	Ping(ctx context.Context) error
}

// IDGenerator draws a candidate report id.
type IDGenerator func() int

// RandomReportID draws uniformly from the four-digit range.
func RandomReportID() int {
	return reportIDMin + rand.IntN(reportIDMax-reportIDMin+1)
}

// MemoryReportsRepository keeps reports in memory for local development and tests.
type MemoryReportsRepository struct {
	mu      sync.RWMutex
	reports map[int]*domain.Report
	nextID  int64
	newID   IDGenerator
	now     func() time.Time
}

func NewMemoryReportsRepository() *MemoryReportsRepository {
	return NewMemoryReportsRepositoryWithIDs(RandomReportID)
}

func NewMemoryReportsRepositoryWithIDs(generator IDGenerator) *MemoryReportsRepository {
	if generator == nil {
		generator = RandomReportID
	}
	return &MemoryReportsRepository{
		reports: make(map[int]*domain.Report),
		newID:   generator,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryReportsRepository) Create(
	_ context.Context,
	reporterID string,
	displayName string,
	pointID string,
) (*domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		reportID := r.newID()
		if _, taken := r.reports[reportID]; taken {
			continue
		}
		r.nextID++
		report := &domain.Report{
			ID:          r.nextID,
			ReportID:    reportID,
			ReporterID:  reporterID,
			DisplayName: displayName,
			PointID:     pointID,
			Status:      domain.ReportStatusPending,
			CreatedAt:   r.now(),
		}
		r.reports[reportID] = report
		return cloneReport(report), nil
	}
	return nil, &domain.StorageError{Op: "create report", Err: errReportIDConflict}
}

func (r *MemoryReportsRepository) GetPendingByID(_ context.Context, reportID int) (*domain.Report, error) {
	if !validReportID(reportID) {
		return nil, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[reportID]
	if !ok || !report.IsPending() {
		return nil, ErrNotFound
	}
	return cloneReport(report), nil
}

func (r *MemoryReportsRepository) GetLatestPending(_ context.Context) (*domain.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Report
	for _, report := range r.reports {
		if !report.IsPending() {
			continue
		}
		if latest == nil || newerThan(report, latest) {
			latest = report
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneReport(latest), nil
}

func (r *MemoryReportsRepository) Complete(_ context.Context, reportID int) (bool, error) {
	if !validReportID(reportID) {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	report, ok := r.reports[reportID]
	if !ok || !report.IsPending() {
		return false, nil
	}
	completedAt := r.now()
	report.Status = domain.ReportStatusCompleted
	report.CompletedAt = &completedAt
	return true, nil
}

func (r *MemoryReportsRepository) Counts(_ context.Context) (domain.ReportCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := domain.ReportCounts{Total: len(r.reports)}
	for _, report := range r.reports {
		if report.IsPending() {
			counts.Pending++
		} else {
			counts.Completed++
		}
	}
	return counts, nil
}

func (r *MemoryReportsRepository) Recent(_ context.Context, limit int) ([]domain.Report, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*domain.Report, 0, len(r.reports))
	for _, report := range r.reports {
		items = append(items, report)
	}
	sort.Slice(items, func(i, j int) bool {
		return newerThan(items[i], items[j])
	})
	if len(items) > limit {
		items = items[:limit]
	}

	result := make([]domain.Report, 0, len(items))
	for _, report := range items {
		result = append(result, *cloneReport(report))
	}
	return result, nil
}

func (r *MemoryReportsRepository) Ping(_ context.Context) error {
	return nil
}

// newerThan orders by creation time, then by insertion order.
func newerThan(left, right *domain.Report) bool {
	if left.CreatedAt.Equal(right.CreatedAt) {
		return left.ID > right.ID
	}
	return left.CreatedAt.After(right.CreatedAt)
}

func cloneReport(report *domain.Report) *domain.Report {
	if report == nil {
		return nil
	}
	clone := *report
	if report.CompletedAt != nil {
		completedAt := *report.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return &clone
}
