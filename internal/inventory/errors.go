package inventory

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/alecgard/cloudtally/internal/cloud"
)

// FetchError is a failed listing of one kind. A timeout is a FetchError like
// any other backend failure.
type FetchError struct {
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AggregationError aborts an aggregation because a fatal kind failed.
type AggregationError struct {
	Kind Kind
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation aborted: %v", e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// NormalizationError is a single malformed record. It drops that record only.
type NormalizationError struct {
	Kind   Kind
	Ref    string
	Reason string
}

func (e *NormalizationError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("normalizing %s record: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("normalizing %s record %q: %s", e.Kind, e.Ref, e.Reason)
}

// classifyFetchError buckets a backend error for metrics and logs.
func classifyFetchError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, cloud.ErrAuth) {
		return "auth"
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return "network"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "network"
	}
	return "other"
}
