package domain

import "time"

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusCompleted ReportStatus = "completed"
)

// Report is a single submitted incident tied to a checkpoint and the LINE user who filed it.
type Report struct {
	ID          int64
	ReportID    int
	ReporterID  string
	DisplayName string
	PointID     string
	Status      ReportStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func (r Report) IsPending() bool {
	return r.Status == ReportStatusPending
}

// ReportCounts aggregates the ledger. Pending+Completed always equals Total.
type ReportCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}
