package api

import (
	"context"  // Request scoped context
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
	"github.com/google/uuid"   // Wallet and transaction ids

	"wallet_saga/internal/domain"     // Importing domain models
	"wallet_saga/internal/middleware" // Identity of the caller
	"wallet_saga/internal/wallet"     // Wallet requests
)

// WalletService is the wallet behaviour the handlers depend on
type WalletService interface {
	Create(ctx context.Context, who domain.Identity, req wallet.CreateRequest) (*domain.Wallet, error)
	List(ctx context.Context, who domain.Identity) ([]domain.Wallet, error)
	Get(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Wallet, error)
	Update(ctx context.Context, who domain.Identity, id uuid.UUID, req wallet.UpdateRequest) (*domain.Wallet, error)
	Delete(ctx context.Context, who domain.Identity, id uuid.UUID) error
	Credit(ctx context.Context, who domain.Identity, req wallet.MoneyRequest) (uuid.UUID, error)
	Withdraw(ctx context.Context, who domain.Identity, req wallet.MoneyRequest) (uuid.UUID, error)
	Transfer(ctx context.Context, who domain.Identity, req wallet.TransferRequest) (uuid.UUID, error)
}

const pendingMessage = "Transaction created. Verify the OTP sent to your email to complete it."

// identity returns the caller or aborts with 401
func identity(c *gin.Context) (domain.Identity, bool) {
	who, exists := middleware.GetIdentity(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return who, exists
}

// pathID parses the :id route parameter or aborts with 400
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// CreateWalletHandler opens a wallet for the caller, or for another user when called by an admin
func CreateWalletHandler(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c) // Get identity from context
		if !ok {
			return
		}
		var req wallet.CreateRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		w, err := svc.Create(c.Request.Context(), who, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Wallet created", "wallet": w})
	}
}

// ListWalletsHandler returns the caller's wallets, or all wallets for an admin
func ListWalletsHandler(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c)
		if !ok {
			return
		}
		wallets, err := svc.List(c.Request.Context(), who)
		if err != nil {
			respondError(c, err)
			return
		}
		if wallets == nil {
			wallets = []domain.Wallet{} // Render [] instead of null
		}
		c.JSON(http.StatusOK, gin.H{"wallets": wallets})
	}
}

// GetWalletHandler returns a single wallet
func GetWalletHandler(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}
		w, err := svc.Get(c.Request.Context(), who, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": w})
	}
}

// UpdateWalletHandler renames a wallet. Admins may also reassign its owner.
func UpdateWalletHandler(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req wallet.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		w, err := svc.Update(c.Request.Context(), who, id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Wallet updated", "wallet": w})
	}
}

// DeleteWalletHandler removes an empty wallet
func DeleteWalletHandler(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), who, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Wallet deleted"})
	}
}

// CreditHandler requests a credit. Funds move once the OTP is verified.
func CreditHandler(svc WalletService) gin.HandlerFunc {
	return moneyHandler(svc.Credit)
}

// WithdrawHandler requests a withdrawal. Funds move once the OTP is verified.
func WithdrawHandler(svc WalletService) gin.HandlerFunc {
	return moneyHandler(svc.Withdraw)
}

func moneyHandler(initiate func(context.Context, domain.Identity, wallet.MoneyRequest) (uuid.UUID, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c)
		if !ok {
			return
		}
		var req wallet.MoneyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		txID, err := initiate(c.Request.Context(), who, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"transaction_id": txID, "message": pendingMessage})
	}
}

// TransferHandler requests a transfer between two wallets
func TransferHandler(svc WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c)
		if !ok {
			return
		}
		var req wallet.TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		txID, err := svc.Transfer(c.Request.Context(), who, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"transaction_id": txID, "message": pendingMessage})
	}
}
