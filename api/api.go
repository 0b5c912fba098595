package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cardledger/cardledger"
)

type Api struct {
	ledger *cardledger.CardLedger
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/accounts", a.CreateAccount)
	router.GET("/accounts/:id", a.GetAccount)
	router.GET("/accounts/:id/reconciliation", a.ReconcileAccount)
	router.GET("/accounts/:id/category-balances", a.GetCategoryBalance)

	router.POST("/transactions", a.RecordTransaction)
	router.GET("/transactions/:id", a.GetTransaction)

	router.POST("/bill-payments", a.ProcessBillPayment)

	router.POST("/batch-runs", a.SubmitBatchRun)
	router.GET("/batch-runs/:id", a.GetBatchRun)
	router.GET("/batch-runs/:id/rejects", a.GetBatchRejects)
	return a.router
}

func NewAPI(l *cardledger.CardLedger) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{ledger: l, router: r}
}
