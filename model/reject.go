package model

import "time"

// Validator reason codes. These are the stable numeric codes the legacy
// reject reports carry; the account-status rejection is a business rule
// with no numeric code.
const (
	ReasonCardNotFound = 100
	ReasonOverLimit    = 102
	ReasonExpired      = 103
)

// Rejection is the validator's verdict for a refused proposal.
type Rejection struct {
	Code         int    `json:"code,omitempty"`
	Message      string `json:"message"`
	BusinessRule bool   `json:"business_rule,omitempty"`
}

type RejectSeverity string

const (
	SeverityWarning RejectSeverity = "WARN"
	SeverityError   RejectSeverity = "ERROR"
)

// RejectTrailer is the audit block persisted with every reject: who recorded
// it, when, why, and the original field values for replay.
type RejectTrailer struct {
	Message    string         `json:"message"`
	Severity   RejectSeverity `json:"severity"`
	RecordedBy string         `json:"recorded_by"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// RejectRecord persists a rejected input unchanged, with its reason code and
// trailer. Immutable once written; a corrected transaction is a new input.
type RejectRecord struct {
	RejectID   string              `json:"reject_id"`
	BatchRunID string              `json:"batch_run_id,omitempty"`
	Input      ProposedTransaction `json:"input"`
	ReasonCode int                 `json:"reason_code"`
	Trailer    RejectTrailer       `json:"trailer"`
	CreatedAt  time.Time           `json:"created_at"`
}

const rejectRecordedBy = "posting-engine"

// NewRejectRecord freezes a refused input with its reason and audit trailer.
// The input is carried unchanged for replay; a corrected transaction is
// always a new input, never a reuse of the reject.
func NewRejectRecord(runID string, proposed *ProposedTransaction, rejection *Rejection) *RejectRecord {
	severity := SeverityError
	if rejection.BusinessRule {
		severity = SeverityWarning
	}
	return &RejectRecord{
		RejectID:   GenerateUUIDWithSuffix("rej"),
		BatchRunID: runID,
		Input:      *proposed,
		ReasonCode: rejection.Code,
		Trailer: RejectTrailer{
			Message:    rejection.Message,
			Severity:   severity,
			RecordedBy: rejectRecordedBy,
			RecordedAt: time.Now(),
		},
		CreatedAt: time.Now(),
	}
}
