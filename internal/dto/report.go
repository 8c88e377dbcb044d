package dto

import "time"

// ExportRequest queues a waitlist export job.
type ExportRequest struct {
	Type   string `json:"type" validate:"required,oneof=training_waitlist assignment_waitlist"`
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse reports the queued job state.
type ExportJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ExportDownloadResponse carries the signed download token for a finished job.
type ExportDownloadResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
