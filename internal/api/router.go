// Package api is the HTTP presentation surface: REST endpoints over the
// engine call API, simulation controls, metrics and the WebSocket upgrade.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fracreserve/banksim/internal/engine"
	"github.com/fracreserve/banksim/internal/platform/logger"
	"github.com/fracreserve/banksim/internal/platform/metrics"
)

type RouterConfig struct {
	SimulationHandler *SimulationHandler
	Metrics           *metrics.Collector
	// WebSocket serves /ws when set.
	WebSocket http.HandlerFunc
	Logger    *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}
	r.Use(CORS())

	r.GET("/healthcheck", HealthCheck)

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.Handler()))
		r.GET("/metrics/prometheus", gin.WrapF(cfg.Metrics.PrometheusHandler()))
	}
	if cfg.WebSocket != nil {
		r.GET("/ws", gin.WrapF(cfg.WebSocket))
	}

	sim := cfg.SimulationHandler
	if sim == nil {
		return r
	}

	api := r.Group("/api")
	{
		api.GET("/overview", sim.GetOverview)

		api.GET("/fed", sim.GetFed)
		api.PUT("/fed/reserve-ratio", sim.ChangeReserveRatio)
		api.PUT("/fed/discount-rate", sim.ChangeDiscountRate)

		api.POST("/banks", sim.RegisterBank)
		api.GET("/banks", sim.ListBanks)
		api.GET("/banks/:id", sim.GetBank)
		api.GET("/banks/:id/compliance", sim.CheckCompliance)
		api.POST("/banks/:id/run", sim.BankRun)

		api.POST("/households", sim.RegisterHousehold)
		api.GET("/households/:id", sim.GetHousehold)

		tx := api.Group("/transactions")
		tx.POST("/deposit", sim.Transaction(engine.OpDeposit))
		tx.POST("/loan", sim.Transaction(engine.OpGiveLoan))
		tx.POST("/loan-repayment", sim.Transaction(engine.OpRepayLoan))
		tx.POST("/interbank-borrow", sim.Transaction(engine.OpBorrowFromBank))
		tx.POST("/interbank-repay", sim.Transaction(engine.OpRepayToBank))
		tx.POST("/fed-lend", sim.Transaction(engine.OpFedLend))
		tx.POST("/fed-repay", sim.Transaction(engine.OpFedRepay))

		api.POST("/simulation/step", sim.Step)
		api.POST("/simulation/start", sim.Start)
		api.POST("/simulation/stop", sim.Stop)
		api.GET("/simulation/status", sim.Status)
	}
	return r
}
