package cardledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cardledger/cardledger/config"
	"github.com/cardledger/cardledger/database"
	"github.com/cardledger/cardledger/internal/apierror"
	"github.com/cardledger/cardledger/model"
)

// ErrClearingExtract marks a run whose postings committed and whose status
// is final, but whose clearing extract could not be written. The extract can
// be regenerated without re-running the batch.
var ErrClearingExtract = errors.New("clearing extract failed")

// RunBatch drives a full chunked run over the staged input for one
// processing date: Idle -> Running -> {Completed, CompletedWithRejections,
// Error}. Counts start at zero; the clearing extract is generated after the
// run reaches a completed state.
func (c *CardLedger) RunBatch(ctx context.Context, processingDate time.Time) (*model.BatchRun, error) {
	run := model.NewBatchRun(processingDate)
	if err := c.datasource.CreateBatchRun(ctx, run); err != nil {
		return nil, err
	}
	logrus.Infof("batch run %s started for %s", run.RunID, processingDate.Format("2006-01-02"))
	return c.driveRun(ctx, run)
}

// ResumeBatch restarts an interrupted run from its last committed chunk
// boundary, reprocessing only items after the progress marker.
func (c *CardLedger) ResumeBatch(ctx context.Context, runID string) (*model.BatchRun, error) {
	run, err := c.datasource.GetBatchRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Resumable() {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("batch run %s is %s and cannot be resumed", run.RunID, run.Status), nil)
	}
	run.Status = model.BatchRunning
	run.ErrorMessage = ""
	if err := c.datasource.UpdateBatchRun(ctx, run); err != nil {
		return nil, err
	}
	logrus.Infof("batch run %s resuming from offset %d", run.RunID, run.LastCommittedOffset)
	return c.driveRun(ctx, run)
}

func (c *CardLedger) driveRun(ctx context.Context, run *model.BatchRun) (*model.BatchRun, error) {
	ctx, span := tracer.Start(ctx, "Driving batch run")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return run, err
	}

	for {
		// Cancellation is observed between chunks only; a chunk either
		// commits whole or rolls back whole.
		if err := ctx.Err(); err != nil {
			return c.failRun(run, err)
		}

		items, err := c.datasource.GetBatchItems(ctx, run.ProcessingDate, run.LastCommittedOffset, cfg.Batch.ChunkSize)
		if err != nil {
			return c.failRun(run, logAndRecordError(span, "batch input error: ", err))
		}
		if len(items) == 0 {
			break
		}

		if err := c.processChunk(ctx, run, items, cfg.Batch.SkipLimit); err != nil {
			return c.failRun(run, logAndRecordError(span, "chunk commit error: ", err))
		}
	}

	run.Finish()
	if err := c.datasource.UpdateBatchRun(ctx, run); err != nil {
		return run, err
	}
	logrus.Infof("batch run %s finished: %s", run.RunID, RenderRejectSummary(run))

	if _, err := c.GenerateClearingFile(ctx, run); err != nil {
		// The postings are committed; the extract can be regenerated from
		// the run id, so the run keeps its completed status. Callers match
		// on ErrClearingExtract to tell this apart from a failed run.
		logrus.Errorf("clearing extract for run %s failed: %v", run.RunID, err)
		return run, fmt.Errorf("%w: %v", ErrClearingExtract, err)
	}

	return run, nil
}

func (c *CardLedger) failRun(run *model.BatchRun, cause error) (*model.BatchRun, error) {
	run.Fail(cause.Error())
	// Best effort with a fresh context: the run context may already be dead.
	if err := c.datasource.UpdateBatchRun(context.Background(), run); err != nil {
		logrus.Errorf("failed to persist error state for run %s: %v", run.RunID, err)
	}
	return run, cause
}

// processChunk resolves each item's card and commits the chunk as one unit.
// Storage-class failures are retried with exponential backoff up to the skip
// limit; rejections are never retried, and a failed reject write aborts
// immediately.
func (c *CardLedger) processChunk(ctx context.Context, run *model.BatchRun, items []*model.ProposedTransaction, skipLimit int) error {
	operation := func() error {
		chunk, err := c.buildChunk(ctx, items)
		if err != nil {
			return classifyChunkError(err)
		}

		// The commit mutates counts and the progress marker, so a retried
		// attempt works on a copy and the run advances only on success.
		next := *run
		sctx, cancel := c.storageContext(ctx)
		defer cancel()
		if err := c.datasource.CommitChunk(sctx, &next, chunk); err != nil {
			return classifyChunkError(err)
		}

		*run = next
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(skipLimit)), ctx)
	return backoff.Retry(operation, bo)
}

func classifyChunkError(err error) error {
	if errors.Is(err, database.ErrRejectWrite) {
		// Dropping a reject is worse than failing the run.
		return backoff.Permanent(err)
	}
	if !apierror.Retryable(err) {
		return backoff.Permanent(err)
	}
	return err
}

// buildChunk resolves card numbers for one chunk in input order. Only the
// immutable card lookup is decided here; limit, expiry, and status are
// decided inside the chunk transaction against each locked account row.
// Nothing is persisted here.
func (c *CardLedger) buildChunk(ctx context.Context, items []*model.ProposedTransaction) ([]*model.ChunkItem, error) {
	chunk := make([]*model.ChunkItem, 0, len(items))
	for _, item := range items {
		accountID, rejection, err := c.resolveCard(ctx, item.CardNumber)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "resolving batch item card")
		}
		chunk = append(chunk, &model.ChunkItem{
			Proposed:  item,
			AccountID: accountID,
			Rejection: rejection,
		})
	}
	return chunk, nil
}
