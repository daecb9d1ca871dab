package models

import (
	"time"

	"github.com/mmtuentertainment/apmatch/pkg/database"
)

// MatchJobStatus constants
const (
	MatchJobStatusQueued     = "queued"
	MatchJobStatusProcessing = "processing"
	MatchJobStatusCompleted  = "completed"
	MatchJobStatusFailed     = "failed"
	MatchJobStatusCancelled  = "cancelled"
)

// JobError is one per-invoice failure recorded on a job. The stored list is
// bounded; only the most recent errors are kept.
type JobError struct {
	InvoiceID string    `json:"invoice_id"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// JobSummary is the completion summary of a match job
type JobSummary struct {
	TotalInvoices  int `json:"total_invoices"`
	Matched        int `json:"matched"`
	Partial        int `json:"partial"`
	Exceptions     int `json:"exceptions"`
	Failed         int `json:"failed"`
	Errors         int `json:"errors"`
	AutoApproved   int `json:"auto_approved"`
	DurationMillis int `json:"duration_ms"`
}

// MatchJob is an asynchronous batch matching run. InvoiceIDs nil means all
// unmatched invoices for the tenant. Progress counters are checkpointed while
// the job runs so a poller sees forward motion.
type MatchJob struct {
	ID                   string                      `json:"id" db:"id"`
	TenantID             string                      `json:"tenant_id" db:"tenant_id"`
	Status               string                      `json:"status" db:"status"`
	InvoiceIDs           database.JSONB[[]string]    `json:"invoice_ids" db:"invoice_ids"`
	AutoApproveThreshold *float64                    `json:"auto_approve_threshold,omitempty" db:"auto_approve_threshold"`
	ProcessedCount       int                         `json:"processed_count" db:"processed_count"`
	MatchedCount         int                         `json:"matched_count" db:"matched_count"`
	ExceptionCount       int                         `json:"exception_count" db:"exception_count"`
	ErrorMessage         *string                     `json:"error_message,omitempty" db:"error_message"`
	Errors               database.JSONB[[]JobError]  `json:"errors" db:"errors"`
	ResultSummary        database.JSONB[*JobSummary] `json:"result_summary" db:"result_summary"`
	StartedAt            *time.Time                  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt          *time.Time                  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt            time.Time                   `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at" db:"updated_at"`
}

// CreateMatchJobRequest is the request to enqueue a batch matching job
type CreateMatchJobRequest struct {
	InvoiceIDs           []string `json:"invoice_ids,omitempty" validate:"omitempty,dive,uuid"`
	AutoApproveThreshold *float64 `json:"auto_approve_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
}
