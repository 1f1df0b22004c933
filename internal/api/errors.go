package api

import (
	"errors"   // Error kind inspection
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework

	"wallet_saga/internal/domain" // Error kinds
)

// statusFor maps a domain error kind to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the caller-safe message of err
func messageFor(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Msg
	}
	if statusFor(err) == http.StatusInternalServerError {
		return "Internal server error" // Never leak storage or broker details
	}
	return err.Error()
}

// respondError writes err as {"error": msg} and records unexpected failures for the request log
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err) // Picked up by the request logger
	}
	c.JSON(status, gin.H{"error": messageFor(err)})
}
