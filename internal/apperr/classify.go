package apperr

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Category names the failure class of a remote-store error. Used for log
// attributes and metrics labels only; behavior never branches on it.
type Category string

const (
	CategoryNone              Category = ""
	CategoryTimeout           Category = "timeout"
	CategoryConnectionRefused Category = "connection_refused"
	CategoryDNS               Category = "dns"
	CategoryCanceled          Category = "canceled"
	CategoryRemote            Category = "remote"
)

// Classify maps a remote-store error onto a diagnostic category.
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return CategoryConnectionRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNS
	}

	// lib/pq wraps dial errors in plain strings in some paths.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return CategoryConnectionRefused
	case strings.Contains(msg, "no such host"):
		return CategoryDNS
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return CategoryTimeout
	}

	return CategoryRemote
}

// IsRetryable reports whether err is worth retrying according to its
// AppError classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return false
}
