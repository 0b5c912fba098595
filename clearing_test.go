package cardledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cardledger/cardledger/model"
)

func TestRenderClearingExtract(t *testing.T) {
	run := &model.BatchRun{
		ProcessingDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
	processed := time.Date(2024, 5, 2, 23, 10, 0, 0, time.UTC)

	amount, err := model.NewMoney("25.50")
	assert.NoError(t, err)
	big, err := model.NewMoney("1234567.89")
	assert.NoError(t, err)

	extract := RenderClearingExtract(run, []*model.Transaction{
		{TransactionID: 7, AccountID: "acc_1", Amount: amount, ProcessedAt: processed},
		{TransactionID: 120045, AccountID: "acc_2", Amount: big, ProcessedAt: processed},
	})

	// Fixed-width layout: 12-digit id, 11-char account, 14-char amount,
	// processed date, status flag.
	assert.Equal(t,
		"000000000007"+"acc_1      "+"         25.50"+"2024-05-02"+"P\n"+
			"000000120045"+"acc_2      "+"    1234567.89"+"2024-05-02"+"P\n",
		extract)
}

func TestRenderClearingExtractEmptyRun(t *testing.T) {
	run := &model.BatchRun{
		ProcessingDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "NO ACTIVITY 2024-05-02\n", RenderClearingExtract(run, nil))
}
