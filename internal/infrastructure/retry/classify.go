package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iho/ledgersync/internal/domain"
)

// transientIndicators are matched case-insensitively against error messages.
var transientIndicators = []string{
	"timeout",
	"timed out",
	"connection",
	"socket",
	"econnreset",
	"econnrefused",
	"no such host",
	"dns",
	"network",
	"fetch",
	"eof",
	"broken pipe",
}

// IsTransient reports whether err looks like a network failure that a later
// attempt may not hit. Validation, not-found and configuration errors are
// never transient regardless of their wording.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrConfiguration) || domain.IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr net.Error
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range transientIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
