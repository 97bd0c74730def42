package domain

import "errors"

// Error taxonomy shared by providers, price sources and the aggregator.
// Classification happens at the network boundary; everything above it uses
// errors.Is.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRateLimited          = errors.New("rate limited")
	ErrTransientNetwork     = errors.New("transient network error")
	ErrUnsupportedTimeRange = errors.New("unsupported time range")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrNoDataAvailable      = errors.New("no data available")
	ErrTimeout              = errors.New("operation timed out")
)

// Retryable reports whether another attempt could succeed. Authentication,
// time-range and missing-data failures are final; so is a cancelled context.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransientNetwork)
}
