package model

import "time"

type BatchStatus string

const (
	BatchIdle                 BatchStatus = "IDLE"
	BatchRunning              BatchStatus = "RUNNING"
	BatchCompleted            BatchStatus = "COMPLETED"
	BatchCompletedWithRejects BatchStatus = "COMPLETED_WITH_REJECTIONS"
	BatchError                BatchStatus = "ERROR"
)

// BatchRun is the explicit run-state value object the orchestrator owns.
// It is persisted at every chunk boundary so an interrupted run resumes from
// LastCommittedOffset, reprocessing only uncommitted items.
type BatchRun struct {
	RunID               string      `json:"run_id"`
	ProcessingDate      time.Time   `json:"processing_date"`
	Status              BatchStatus `json:"status"`
	ReadCount           int64       `json:"read_count"`
	PostedCount         int64       `json:"posted_count"`
	RejectCount         int64       `json:"reject_count"`
	LastCommittedOffset int64       `json:"last_committed_offset"`
	ErrorMessage        string      `json:"error_message,omitempty"`
	StartedAt           time.Time   `json:"started_at"`
	FinishedAt          time.Time   `json:"finished_at,omitempty"`
}

// ChunkItem is one staged input prepared for a chunk commit: the proposal,
// the account its card resolved to, or a rejection already decided before
// the chunk transaction (card not found). Account-state rejections are
// decided inside the transaction, against the locked row.
type ChunkItem struct {
	Proposed  *ProposedTransaction
	AccountID string
	Rejection *Rejection
}

// NewBatchRun starts a run in the Running state with zeroed counts.
func NewBatchRun(processingDate time.Time) *BatchRun {
	return &BatchRun{
		RunID:          GenerateUUIDWithSuffix("run"),
		ProcessingDate: processingDate,
		Status:         BatchRunning,
		StartedAt:      time.Now(),
	}
}

// Finish moves the run to its terminal state based on the reject count.
func (r *BatchRun) Finish() {
	if r.RejectCount > 0 {
		r.Status = BatchCompletedWithRejects
	} else {
		r.Status = BatchCompleted
	}
	r.FinishedAt = time.Now()
}

// Fail moves the run to the Error state, keeping counts for reporting.
func (r *BatchRun) Fail(message string) {
	r.Status = BatchError
	r.ErrorMessage = message
	r.FinishedAt = time.Now()
}

// Resumable reports whether a run can be restarted from its last
// committed chunk boundary.
func (r *BatchRun) Resumable() bool {
	return r.Status == BatchRunning || r.Status == BatchError
}
