package cardledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	clearingstore "github.com/cardledger/cardledger/internal/clearing-store"
	"github.com/cardledger/cardledger/model"
)

const clearingStatusPosted = "P"

// RenderClearingExtract formats the posted transactions of one run as
// fixed-width clearing records, one per line, in transaction id order.
// An empty run produces a single NO ACTIVITY record so the receiving side
// can tell "no file" from "nothing posted".
func RenderClearingExtract(run *model.BatchRun, transactions []*model.Transaction) string {
	var b strings.Builder
	if len(transactions) == 0 {
		fmt.Fprintf(&b, "NO ACTIVITY %s\n", run.ProcessingDate.Format("2006-01-02"))
		return b.String()
	}
	for _, txn := range transactions {
		fmt.Fprintf(&b, "%012d%-11s%14s%s%s\n",
			txn.TransactionID,
			txn.AccountID,
			txn.Amount.String(),
			txn.ProcessedAt.Format("2006-01-02"),
			clearingStatusPosted,
		)
	}
	return b.String()
}

// GenerateClearingFile renders the extract for a completed run and writes it
// to the configured clearing store. The object key is derived from the
// processing date, so regenerating a run overwrites its previous extract.
func (c *CardLedger) GenerateClearingFile(ctx context.Context, run *model.BatchRun) (string, error) {
	ctx, span := tracer.Start(ctx, "Generating clearing extract")
	defer span.End()

	transactions, err := c.datasource.GetBatchTransactions(ctx, run.RunID)
	if err != nil {
		return "", logAndRecordError(span, "loading run transactions: ", err)
	}

	store, err := clearingstore.New()
	if err != nil {
		return "", logAndRecordError(span, "clearing store init: ", err)
	}

	key := fmt.Sprintf("clearing-%s.dat", run.ProcessingDate.Format("2006-01-02"))
	body := RenderClearingExtract(run, transactions)
	if err := store.Put(ctx, key, []byte(body)); err != nil {
		return "", logAndRecordError(span, "clearing store write: ", err)
	}

	logrus.Infof("clearing extract %s written with %d records", key, len(transactions))
	return key, nil
}
