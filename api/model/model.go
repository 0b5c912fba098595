/*
Copyright 2024 CardLedger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/cardledger/cardledger/model"
)

// CreateAccount is the request body for opening an account.
type CreateAccount struct {
	AccountID      string   `json:"account_id"`
	CreditLimit    float64  `json:"credit_limit"`
	CashLimit      float64  `json:"cash_credit_limit"`
	ExpirationDate string   `json:"expiration_date"`
	GroupID        string   `json:"group_id"`
	CardNumbers    []string `json:"card_numbers"`
}

func (a *CreateAccount) ValidateCreateAccount() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.CreditLimit, validation.Required, validation.Min(0.0)),
		validation.Field(&a.ExpirationDate, validation.Required, validation.By(func(interface{}) error {
			return validateDateFormat("2006-01-02", a.ExpirationDate)
		})),
		validation.Field(&a.CardNumbers, validation.Required, validation.Length(1, 0)),
	)
}

func (a *CreateAccount) ToAccount() (*model.Account, error) {
	creditLimit, err := model.MoneyFromFloat(a.CreditLimit)
	if err != nil {
		return nil, err
	}
	cashLimit, err := model.MoneyFromFloat(a.CashLimit)
	if err != nil {
		return nil, err
	}
	expiration, err := time.Parse("2006-01-02", a.ExpirationDate)
	if err != nil {
		return nil, err
	}
	return &model.Account{
		AccountID:       a.AccountID,
		CreditLimit:     creditLimit,
		CashCreditLimit: cashLimit,
		ExpirationDate:  expiration,
		GroupID:         a.GroupID,
	}, nil
}

// RecordTransaction is the request body for an interactive posting.
type RecordTransaction struct {
	CardNumber   string  `json:"card_number"`
	Amount       float64 `json:"amount"`
	TypeCode     string  `json:"type_code"`
	CategoryCode string  `json:"category_code"`
	Source       string  `json:"source"`
	Description  string  `json:"description"`
	MerchantID   string  `json:"merchant_id"`
	MerchantName string  `json:"merchant_name"`
	MerchantCity string  `json:"merchant_city"`
	MerchantZip  string  `json:"merchant_zip"`
}

func (t *RecordTransaction) ValidateRecordTransaction() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.CardNumber, validation.Required),
		validation.Field(&t.Amount, validation.Required),
		validation.Field(&t.TypeCode, validation.Required),
		validation.Field(&t.CategoryCode, validation.Required),
	)
}

func (t *RecordTransaction) ToProposedTransaction() (*model.ProposedTransaction, error) {
	amount, err := model.MoneyFromFloat(t.Amount)
	if err != nil {
		return nil, err
	}
	return &model.ProposedTransaction{
		CardNumber:   t.CardNumber,
		Amount:       amount,
		TypeCode:     t.TypeCode,
		CategoryCode: t.CategoryCode,
		Source:       t.Source,
		Description:  t.Description,
		MerchantID:   t.MerchantID,
		MerchantName: t.MerchantName,
		MerchantCity: t.MerchantCity,
		MerchantZip:  t.MerchantZip,
		OriginatedAt: time.Now(),
	}, nil
}

// RunBatch is the request body for submitting a batch run.
type RunBatch struct {
	ProcessingDate string `json:"processing_date"`
}

func (b *RunBatch) ValidateRunBatch() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.ProcessingDate, validation.Required, validation.By(func(interface{}) error {
			return validateDateFormat("2006-01-02", b.ProcessingDate)
		})),
	)
}

func (b *RunBatch) Date() (time.Time, error) {
	return time.Parse("2006-01-02", b.ProcessingDate)
}

// BillPayment is the request body for paying off an account's balance.
type BillPayment struct {
	AccountID    string `json:"account_id"`
	Confirmation string `json:"confirmation"`
}

func (p *BillPayment) ValidateBillPayment() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.AccountID, validation.Required),
	)
}

func validateDateFormat(format, value string) error {
	if _, err := time.Parse(format, value); err != nil {
		return errors.New("please format the date as 'YYYY-MM-DD' (e.g., 2024-04-22)")
	}
	return nil
}
