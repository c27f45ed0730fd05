package rpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum"
	"github.com/goran-ethernal/GovIndexor/pkg/chain"
)

// Error types used as the error_type metric label.
const (
	errTypeNotFound    = "not_found"
	errTypeNotReady    = "not_ready"
	errTypeTimeout     = "timeout"
	errTypeRateLimited = "rate_limited"
	errTypeNetwork     = "network"
	errTypeCanceled    = "canceled"
	errTypeOther       = "other"
)

var (
	timeoutMarkers     = []string{"timeout", "deadline exceeded"}
	rateLimitMarkers   = []string{"429", "too many requests", "rate limit"}
	serverErrorMarkers = []string{
		"502", "503", "504", "bad gateway", "service unavailable", "gateway timeout",
		"connection pool", "no available connection",
	}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}

	return false
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// retryableError reports whether a failed call is worth repeating within the same fetch.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if isConnectionError(err) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return containsAny(msg, timeoutMarkers) ||
		containsAny(msg, rateLimitMarkers) ||
		containsAny(msg, serverErrorMarkers)
}

// classifyError maps err to a low cardinality error_type label.
func classifyError(err error) string {
	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, ethereum.NotFound):
		return errTypeNotFound
	case errors.Is(err, chain.ErrBlockNotReady):
		return errTypeNotReady
	case errors.Is(err, context.Canceled):
		return errTypeCanceled
	case errors.Is(err, context.DeadlineExceeded) || containsAny(msg, timeoutMarkers):
		return errTypeTimeout
	case containsAny(msg, rateLimitMarkers):
		return errTypeRateLimited
	case isConnectionError(err):
		return errTypeNetwork
	default:
		return errTypeOther
	}
}
