package cardledger

import (
	"context"
	"fmt"

	"github.com/cardledger/cardledger/model"
)

// RecordReject persists a reject outside of a batch chunk. Batch rejects go
// through the chunk commit instead, so they share the chunk's atomicity.
func (c *CardLedger) RecordReject(ctx context.Context, proposed *model.ProposedTransaction, rejection *model.Rejection) (*model.RejectRecord, error) {
	rec := model.NewRejectRecord("", proposed, rejection)
	if err := c.datasource.RecordReject(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *CardLedger) GetBatchRejects(ctx context.Context, runID string) ([]*model.RejectRecord, error) {
	return c.datasource.GetBatchRejects(ctx, runID)
}

// RenderRejectSummary produces the human-readable run summary the reject
// report consumer expects.
func RenderRejectSummary(run *model.BatchRun) string {
	return fmt.Sprintf("%d transactions processed, %d rejected, status: %s", run.ReadCount, run.RejectCount, run.Status)
}
