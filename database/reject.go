package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardledger/cardledger/internal/apierror"
	"github.com/cardledger/cardledger/model"
)

// ErrRejectWrite marks a failed reject-record write. Losing a reject's audit
// trail undermines the reconciliation guarantee, so callers treat this as
// fatal for the run rather than retrying past it.
var ErrRejectWrite = errors.New("reject record write failed")

func insertReject(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}, rec *model.RejectRecord) error {
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejectWrite, err)
	}
	trailerJSON, err := json.Marshal(rec.Trailer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejectWrite, err)
	}

	var runID sql.NullString
	if rec.BatchRunID != "" {
		runID = sql.NullString{String: rec.BatchRunID, Valid: true}
	}

	_, err = execer.ExecContext(ctx, `
		INSERT INTO reject_records(reject_id, batch_run_id, input, reason_code, trailer, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, rec.RejectID, runID, inputJSON, rec.ReasonCode, trailerJSON, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejectWrite, err)
	}
	return nil
}

// RecordReject persists a rejected input unchanged with its reason code and
// audit trailer.
func (d Datasource) RecordReject(ctx context.Context, rec *model.RejectRecord) error {
	if rec.RejectID == "" {
		rec.RejectID = model.GenerateUUIDWithSuffix("rej")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return insertReject(ctx, d.Conn, rec)
}

func (d Datasource) GetBatchRejects(ctx context.Context, runID string) ([]*model.RejectRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT reject_id, batch_run_id, input, reason_code, trailer, created_at
		FROM reject_records
		WHERE batch_run_id = $1
		ORDER BY created_at ASC
	`, runID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve reject records", err)
	}
	defer rows.Close()

	var records []*model.RejectRecord
	for rows.Next() {
		rec := &model.RejectRecord{}
		var batchRunID sql.NullString
		var inputJSON, trailerJSON []byte
		err = rows.Scan(&rec.RejectID, &batchRunID, &inputJSON, &rec.ReasonCode, &trailerJSON, &rec.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan reject record", err)
		}
		rec.BatchRunID = batchRunID.String
		if err = json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal reject input", err)
		}
		if err = json.Unmarshal(trailerJSON, &rec.Trailer); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal reject trailer", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over reject records", err)
	}
	return records, nil
}
