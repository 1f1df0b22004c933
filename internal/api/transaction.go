package api

import (
	"context"  // Request scoped context
	"errors"   // Error kind inspection
	"net/http" // HTTP status codes
	"strconv"  // Query parsing
	"strings"  // Message inspection

	"github.com/gin-gonic/gin" // Gin web framework
	"github.com/google/uuid"   // Transaction ids

	"wallet_saga/internal/domain" // Importing domain models
	"wallet_saga/internal/ledger" // Ledger queries
)

// OtpVerifier checks a submitted OTP
type OtpVerifier interface {
	Verify(ctx context.Context, txID uuid.UUID, code string) (bool, error)
}

// LedgerReader answers ledger queries for an identity
type LedgerReader interface {
	GetFor(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Transaction, error)
	List(ctx context.Context, who domain.Identity, f ledger.Filter) (*ledger.Page, error)
}

// Sweeper fails PENDING transactions whose OTP window elapsed
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// VerifyOtpRequest is the body of POST /transactions/verify-otp
type VerifyOtpRequest struct {
	TransactionID uuid.UUID `json:"transactionId" binding:"required"` // Transaction being authorised
	Otp           string    `json:"otp" binding:"required"`           // Code from the email
}

// VerifyOtpHandler submits an OTP for a pending transaction
func VerifyOtpHandler(v OtpVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyOtpRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid request"})
			return
		}
		ok, err := v.Verify(c.Request.Context(), req.TransactionID, strings.TrimSpace(req.Otp))
		switch {
		case err == nil && ok:
			c.JSON(http.StatusOK, gin.H{"status": "success", "message": "OTP verified successfully. Transaction is being processed."})
		case err == nil:
			c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "message": "OTP verification failed"})
		case errors.Is(err, domain.ErrValidation) && strings.Contains(messageFor(err), "Transaction has failed"):
			c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "message": messageFor(err)}) // Terminal, no retries left
		default:
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				_ = c.Error(err)
			}
			c.JSON(status, gin.H{"status": "error", "message": messageFor(err)})
		}
	}
}

// ListTransactionsHandler returns a page of ledger rows visible to the caller
func ListTransactionsHandler(l LedgerReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c) // Get identity from context
		if !ok {
			return
		}
		f := ledger.Filter{Kind: c.DefaultQuery("type", ledger.KindAll)}
		// If page exists in query
		if p := c.Query("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				f.Page = v // Set page if valid
			}
		}
		// If page_size exists in query, the ledger clamps it
		if ps := c.Query("page_size"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				f.PageSize = v
			}
		}
		switch c.DefaultQuery("sort", "desc") {
		case "asc":
			f.Ascending = true
		case "desc":
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "sort must be asc or desc"})
			return
		}

		page, err := l.List(c.Request.Context(), who, f)
		if err != nil {
			respondError(c, err)
			return
		}
		if page.Items == nil {
			page.Items = []domain.Transaction{} // Render [] instead of null
		}
		c.JSON(http.StatusOK, page)
	}
}

// GetTransactionHandler returns one ledger row
func GetTransactionHandler(l LedgerReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}
		tx, err := l.GetFor(c.Request.Context(), who, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": tx})
	}
}

// SweepHandler runs one expiry sweep on demand
func SweepHandler(s Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := s.Sweep(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"message": "Sweep completed", "failed": n})
	}
}
