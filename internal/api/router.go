// Package api wires the HTTP API of the payout ledger.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payout-ledger/internal/api/handlers"
	"payout-ledger/internal/api/middleware"
	"payout-ledger/internal/metrics"
	"payout-ledger/internal/service"
)

// Deps are the collaborators of the router.
type Deps struct {
	Accounts  handlers.AccountService
	Purchases handlers.PurchaseService
	Admin     handlers.AdminService
	Auth      *middleware.Authenticator
	Limiter   *middleware.RateLimiter
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Health    func(ctx context.Context) error
	Mode      string
}

// accountAPI is satisfied by *service.AccountService.
type accountAPI interface {
	handlers.AccountService
	handlers.Reconciler
}

var _ accountAPI = (*service.AccountService)(nil)

// SetupRouter builds the gin engine with every route.
func SetupRouter(deps Deps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	// Request bodies with fields no handler knows are rejected, not dropped.
	binding.EnableDecoderDisallowUnknownFields = true

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}

	router.GET("/health", healthHandler(deps.Health))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.Purchases, deps.Auth)

	var reconciler handlers.Reconciler
	if r, ok := deps.Accounts.(handlers.Reconciler); ok {
		reconciler = r
	}
	adminHandler := handlers.NewAdminHandler(deps.Admin, reconciler)

	v1 := router.Group("/api/v1")
	if deps.Limiter != nil {
		v1.Use(deps.Limiter.Middleware())
	}

	v1.POST("/register", accountHandler.Register)

	authorized := v1.Group("/")
	authorized.Use(deps.Auth.Account())
	{
		authorized.GET("/account", accountHandler.GetAccount)
		authorized.GET("/transactions", accountHandler.GetTransactions)
		authorized.GET("/purchases", accountHandler.GetPurchases)
		authorized.POST("/purchases", accountHandler.CreatePurchase)
		authorized.POST("/purchases/:id/collect", accountHandler.CollectPayout)
		authorized.POST("/deposits", accountHandler.RequestDeposit)
		authorized.POST("/withdrawals", accountHandler.RequestWithdrawal)
		authorized.GET("/referrals/bonuses", accountHandler.GetReferralBonuses)
		authorized.GET("/referrals/team", accountHandler.GetReferralTeam)
	}

	system := router.Group("/internal")
	system.Use(deps.Auth.SystemOrAdmin())
	{
		system.POST("/payouts/run", adminHandler.Action(service.RunPayouts{}.Kind()))
	}

	admin := router.Group("/admin")
	admin.Use(deps.Auth.Admin())
	{
		admin.POST("/balance/add", adminHandler.Action(service.AddBalance{}.Kind()))
		admin.POST("/balance/deduct", adminHandler.Action(service.DeductBalance{}.Kind()))
		admin.POST("/balance/set", adminHandler.Action(service.SetBalance{}.Kind()))
		admin.POST("/deposits/approve", adminHandler.Action(service.ApproveDeposit{}.Kind()))
		admin.POST("/deposits/reject", adminHandler.Action(service.RejectDeposit{}.Kind()))
		admin.POST("/withdrawals/approve", adminHandler.Action(service.ApproveWithdrawal{}.Kind()))
		admin.POST("/withdrawals/reject", adminHandler.Action(service.RejectWithdrawal{}.Kind()))
		admin.POST("/purchases/cancel", adminHandler.Action(service.CancelPurchase{}.Kind()))
		admin.POST("/bulk", adminHandler.Bulk)
		admin.GET("/requests/pending", adminHandler.Pending)
		admin.GET("/logs", adminHandler.Logs)
		admin.POST("/actions", adminHandler.Execute)
		if reconciler != nil {
			admin.GET("/accounts/:id/reconcile", adminHandler.Reconcile)
		}
		admin.DELETE("/accounts/:id", adminHandler.DeleteAccount)
	}

	return router
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
