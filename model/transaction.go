package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Transaction is the append-only fact record of the ledger. It is created
// once by the posting engine and never mutated or deleted. TransactionID is
// allocated from the store-backed sequence: gapless and strictly increasing.
type Transaction struct {
	TransactionID int64     `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	CardNumber    string    `json:"card_number"`
	Amount        Money     `json:"amount"`
	TypeCode      string    `json:"type_code"`
	CategoryCode  string    `json:"category_code"`
	Source        string    `json:"source"`
	Description   string    `json:"description"`
	MerchantID    string    `json:"merchant_id"`
	MerchantName  string    `json:"merchant_name"`
	MerchantCity  string    `json:"merchant_city"`
	MerchantZip   string    `json:"merchant_zip"`
	BalanceBefore Money     `json:"balance_before"`
	BalanceAfter  Money     `json:"balance_after"`
	BatchRunID    string    `json:"batch_run_id,omitempty"`
	OriginatedAt  time.Time `json:"originated_at"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// Hash produces a SHA-256 digest of the transaction's identifying fields,
// recorded for integrity checks during audit replay.
func (t *Transaction) Hash() string {
	data := fmt.Sprintf("%d%s%s%s%s%s", t.TransactionID, t.AccountID, t.Amount.String(), t.TypeCode, t.CategoryCode, t.OriginatedAt.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// ProposedTransaction is an input to the engine: a transaction that has not
// been validated or posted yet. Batch items and interactive requests both
// arrive in this shape.
type ProposedTransaction struct {
	CardNumber   string    `json:"card_number"`
	Amount       Money     `json:"amount"`
	TypeCode     string    `json:"type_code"`
	CategoryCode string    `json:"category_code"`
	Source       string    `json:"source"`
	Description  string    `json:"description"`
	MerchantID   string    `json:"merchant_id"`
	MerchantName string    `json:"merchant_name"`
	MerchantCity string    `json:"merchant_city"`
	MerchantZip  string    `json:"merchant_zip"`
	OriginatedAt time.Time `json:"originated_at"`
}

// ToTransaction builds the fact record for a proposal resolved to an account.
// The transaction id is left unset; the datasource allocates it at commit.
func (p *ProposedTransaction) ToTransaction(accountID string, processedAt time.Time) *Transaction {
	return &Transaction{
		AccountID:    accountID,
		CardNumber:   p.CardNumber,
		Amount:       p.Amount,
		TypeCode:     p.TypeCode,
		CategoryCode: p.CategoryCode,
		Source:       p.Source,
		Description:  p.Description,
		MerchantID:   p.MerchantID,
		MerchantName: p.MerchantName,
		MerchantCity: p.MerchantCity,
		MerchantZip:  p.MerchantZip,
		OriginatedAt: p.OriginatedAt,
		ProcessedAt:  processedAt,
	}
}
