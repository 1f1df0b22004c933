package app

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework

	"wallet_saga/internal/api"        // HTTP handlers
	"wallet_saga/internal/middleware" // Request middleware
)

func (a *App) newRouter() (*gin.Engine, error) {
	if a.cfg.Server.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(a.log))

	// Identity headers are only trusted from the local gateway
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		return nil, err
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "role": a.cfg.Server.Role})
	})

	identity := middleware.IdentityMiddleware(a.cfg.IdentitySecret)
	admin := r.Group("/admin", identity, middleware.AdminOnlyMiddleware())
	admin.PUT("/users/:id", api.UpsertUserHandler(a.users))

	if a.wallets != nil {
		wallets := r.Group("/wallets", identity)
		wallets.POST("", api.CreateWalletHandler(a.wallets))
		wallets.GET("", api.ListWalletsHandler(a.wallets))
		wallets.POST("/credit", api.CreditHandler(a.wallets))
		wallets.POST("/withdraw", api.WithdrawHandler(a.wallets))
		wallets.POST("/transfer", api.TransferHandler(a.wallets))
		wallets.GET("/:id", api.GetWalletHandler(a.wallets))
		wallets.PUT("/:id", api.UpdateWalletHandler(a.wallets))
		wallets.DELETE("/:id", api.DeleteWalletHandler(a.wallets))
	}

	if a.ledger != nil {
		// The code itself proves the caller, so verification needs no identity
		r.POST("/transactions/verify-otp", api.VerifyOtpHandler(a.otp))

		txs := r.Group("/transactions", identity)
		txs.GET("", api.ListTransactionsHandler(a.ledger))
		txs.GET("/:id", api.GetTransactionHandler(a.ledger))

		admin.POST("/sweep", api.SweepHandler(a.sweeper))
	}
	return r, nil
}
