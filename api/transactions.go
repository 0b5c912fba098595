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
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cardledger/cardledger"
	model2 "github.com/cardledger/cardledger/api/model"
	"github.com/cardledger/cardledger/internal/apierror"
)

// RecordTransaction posts a single transaction through the validator.
// A rejected input comes back as a 4xx with the reason code in the details.
func (a Api) RecordTransaction(c *gin.Context) {
	var newTransaction model2.RecordTransaction
	if err := c.ShouldBindJSON(&newTransaction); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newTransaction.ValidateRecordTransaction(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	proposed, err := newTransaction.ToProposedTransaction()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.ledger.SubmitTransaction(c.Request.Context(), proposed)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetTransaction retrieves a transaction by its numeric identifier.
func (a Api) GetTransaction(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	txnID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a number"})
		return
	}

	transaction, err := a.ledger.GetTransaction(c.Request.Context(), txnID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, transaction)
}

// ProcessBillPayment pays off an account's full balance. The confirmation
// flag travels with the request; an unconfirmed payment returns 200 with
// success false and nothing posted.
func (a Api) ProcessBillPayment(c *gin.Context) {
	var payment model2.BillPayment
	if err := c.ShouldBindJSON(&payment); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := payment.ValidateBillPayment(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	req := cardledger.BillPaymentRequest{
		AccountID:    payment.AccountID,
		Confirmation: payment.Confirmation,
	}
	resp, err := a.ledger.ProcessBillPayment(c.Request.Context(), &req)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if !resp.Success {
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
